// Package http provides the fiber-based administrative surface for plugin
// boundaries: health snapshots, forced recovery, manual disable, and reset.
package http
