// Package zap provides the zap-backed implementation of the log.Logger
// abstraction while preserving structured fields and trace correlation.
package zap
