// Package metrics provides a fluent factory for OpenTelemetry metric instruments.
//
// MetricsFactory caches instruments and exposes builder-style APIs for counters,
// gauges, and histograms with low-overhead attribute composition.
//
// Convenience methods (for example RecordPluginError) are provided for the
// plugin fault-isolation metrics emitted by the boundary and watchdog.
package metrics
