package metrics

import (
	"context"
	"errors"
	"sync"

	"github.com/novara-labs/lib-pluginguard/pluginguard/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// MetricsFactory provides a thread-safe factory for creating and managing
// OpenTelemetry metrics with lazy initialization, using sync.Map for
// high-performance concurrent access.
type MetricsFactory struct {
	meter      metric.Meter
	counters   sync.Map // string -> metric.Int64Counter
	gauges     sync.Map // string -> metric.Int64Gauge
	histograms sync.Map // string -> metric.Float64Histogram
	logger     log.Logger
}

// ErrNilMeter indicates that a nil OTEL meter was provided.
var ErrNilMeter = errors.New("metric meter cannot be nil")

// Metric describes an instrument that can be created by the factory.
type Metric struct {
	Name        string
	Description string
	Unit        string
	// For histograms: bucket boundaries.
	Buckets []float64
}

// Pre-configured metrics for the plugin fault-isolation domain.
var (
	// MetricPluginErrorsRecorded counts errors recorded by plugin boundaries.
	MetricPluginErrorsRecorded = Metric{
		Name:        "plugin_errors_recorded",
		Unit:        "1",
		Description: "Number of plugin errors recorded by error boundaries.",
	}

	// MetricRecoveryAttempts counts plugin recovery attempts.
	MetricRecoveryAttempts = Metric{
		Name:        "plugin_recovery_attempts",
		Unit:        "1",
		Description: "Number of plugin recovery attempts.",
	}

	// MetricRecoveriesSucceeded counts recovery attempts that healed a plugin.
	MetricRecoveriesSucceeded = Metric{
		Name:        "plugin_recoveries_succeeded",
		Unit:        "1",
		Description: "Number of recovery attempts that restored a plugin.",
	}

	// MetricPluginState reports the current plugin health state as a code
	// (0 healthy, 1 degraded, 2 recovering, 3 failed, 4 disabled).
	MetricPluginState = Metric{
		Name:        "plugin_state",
		Unit:        "1",
		Description: "Current plugin health state code.",
	}

	// MetricWatchdogPolls counts watchdog poll cycles.
	MetricWatchdogPolls = Metric{
		Name:        "watchdog_poll_cycles",
		Unit:        "1",
		Description: "Number of watchdog poll cycles executed.",
	}

	// MetricRecoveryDuration measures how long a successful recovery took.
	MetricRecoveryDuration = Metric{
		Name:        "plugin_recovery_duration_seconds",
		Unit:        "s",
		Description: "Duration of successful plugin recovery attempts.",
		Buckets:     DefaultLatencyBuckets,
	}
)

// DefaultLatencyBuckets for latency measurements (in seconds).
var DefaultLatencyBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// NewMetricsFactory creates a new MetricsFactory instance.
func NewMetricsFactory(meter metric.Meter, logger log.Logger) (*MetricsFactory, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}

	if logger == nil {
		logger = log.NewNop()
	}

	return &MetricsFactory{
		meter:  meter,
		logger: logger,
	}, nil
}

// NewNopFactory returns a MetricsFactory backed by OpenTelemetry's no-op
// meter. It is safe for use as a fallback when a real meter is unavailable.
func NewNopFactory() *MetricsFactory {
	return &MetricsFactory{
		meter:  noop.NewMeterProvider().Meter("nop"),
		logger: log.NewNop(),
	}
}

// Counter creates or retrieves a counter metric and returns a builder for
// fluent API usage. Instrument creation failures yield a no-op builder.
func (f *MetricsFactory) Counter(m Metric) *CounterBuilder {
	return &CounterBuilder{
		factory: f,
		counter: f.getOrCreateCounter(m),
		name:    m.Name,
	}
}

// Gauge creates or retrieves a gauge metric and returns a builder for fluent
// API usage.
func (f *MetricsFactory) Gauge(m Metric) *GaugeBuilder {
	return &GaugeBuilder{
		factory: f,
		gauge:   f.getOrCreateGauge(m),
		name:    m.Name,
	}
}

// Histogram creates or retrieves a histogram metric and returns a builder for
// fluent API usage.
func (f *MetricsFactory) Histogram(m Metric) *HistogramBuilder {
	return &HistogramBuilder{
		factory:   f,
		histogram: f.getOrCreateHistogram(m),
		name:      m.Name,
	}
}

func (f *MetricsFactory) getOrCreateCounter(m Metric) metric.Int64Counter {
	if cached, ok := f.counters.Load(m.Name); ok {
		return cached.(metric.Int64Counter)
	}

	counter, err := f.meter.Int64Counter(m.Name,
		metric.WithDescription(m.Description),
		metric.WithUnit(m.Unit))
	if err != nil {
		f.logger.Log(context.Background(), log.LevelError, "failed to create counter",
			log.String("metric", m.Name), log.Err(err))

		return nil
	}

	actual, _ := f.counters.LoadOrStore(m.Name, counter)

	return actual.(metric.Int64Counter)
}

func (f *MetricsFactory) getOrCreateGauge(m Metric) metric.Int64Gauge {
	if cached, ok := f.gauges.Load(m.Name); ok {
		return cached.(metric.Int64Gauge)
	}

	gauge, err := f.meter.Int64Gauge(m.Name,
		metric.WithDescription(m.Description),
		metric.WithUnit(m.Unit))
	if err != nil {
		f.logger.Log(context.Background(), log.LevelError, "failed to create gauge",
			log.String("metric", m.Name), log.Err(err))

		return nil
	}

	actual, _ := f.gauges.LoadOrStore(m.Name, gauge)

	return actual.(metric.Int64Gauge)
}

func (f *MetricsFactory) getOrCreateHistogram(m Metric) metric.Float64Histogram {
	if cached, ok := f.histograms.Load(m.Name); ok {
		return cached.(metric.Float64Histogram)
	}

	opts := []metric.Float64HistogramOption{
		metric.WithDescription(m.Description),
		metric.WithUnit(m.Unit),
	}
	if len(m.Buckets) > 0 {
		opts = append(opts, metric.WithExplicitBucketBoundaries(m.Buckets...))
	}

	histogram, err := f.meter.Float64Histogram(m.Name, opts...)
	if err != nil {
		f.logger.Log(context.Background(), log.LevelError, "failed to create histogram",
			log.String("metric", m.Name), log.Err(err))

		return nil
	}

	actual, _ := f.histograms.LoadOrStore(m.Name, histogram)

	return actual.(metric.Float64Histogram)
}
