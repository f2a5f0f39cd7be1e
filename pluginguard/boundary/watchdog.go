package boundary

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/novara-labs/lib-pluginguard/pluginguard/log"
	"github.com/novara-labs/lib-pluginguard/pluginguard/opentelemetry/metrics"
)

// Watchdog polls registered boundaries on a fixed interval, logs their health,
// and (when auto-recovery is enabled) triggers recovery on failed plugins
// whose re-check timer has elapsed. One long-lived goroutine per instance.
type Watchdog struct {
	interval     time.Duration
	autoRecovery bool
	logger       log.Logger
	metrics      *metrics.MetricsFactory
	now          func() time.Time

	mu         sync.RWMutex
	boundaries map[string]*Boundary

	stopChan       chan struct{}
	stopOnce       sync.Once
	immediateCheck chan string
	wg             sync.WaitGroup
}

// WatchdogOption customizes a Watchdog at construction time.
type WatchdogOption func(*Watchdog)

// WithWatchdogMetrics attaches an OpenTelemetry metrics factory so poll
// cycles are recorded.
func WithWatchdogMetrics(factory *metrics.MetricsFactory) WatchdogOption {
	return func(w *Watchdog) {
		w.metrics = factory
	}
}

// NewWatchdog creates a watchdog polling every checkInterval. autoRecovery
// controls whether failed plugins with an elapsed timer are recovered
// automatically on each poll. A nil logger falls back to a no-op logger.
func NewWatchdog(checkInterval time.Duration, autoRecovery bool, logger log.Logger, opts ...WatchdogOption) *Watchdog {
	if logger == nil {
		logger = log.NewNop()
	}

	w := &Watchdog{
		interval:       checkInterval,
		autoRecovery:   autoRecovery,
		logger:         logger.WithGroup("watchdog"),
		now:            time.Now,
		boundaries:     make(map[string]*Boundary),
		stopChan:       make(chan struct{}),
		immediateCheck: make(chan string, 10),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Register adds a boundary to the watchdog's registry. The watchdog holds a
// shared reference, not ownership. Re-registering a name overwrites.
func (w *Watchdog) Register(b *Boundary) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.boundaries[b.Plugin()] = b
	w.logger.Log(context.Background(), log.LevelInfo, "boundary registered",
		log.String("plugin", b.Plugin()))
}

// Unregister removes a boundary by plugin name. Unknown names are a no-op.
func (w *Watchdog) Unregister(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	delete(w.boundaries, name)
}

// Start launches the background polling loop.
func (w *Watchdog) Start() {
	w.wg.Add(1)

	go w.pollLoop()

	w.logger.Log(context.Background(), log.LevelInfo, "watchdog started",
		log.Duration("check_interval", w.interval),
		log.Bool("auto_recovery", w.autoRecovery))
}

// Stop signals the polling loop to exit and waits for it. Stopping only
// stops future polling; an in-flight recovery attempt is not interruptible.
func (w *Watchdog) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
	})

	w.wg.Wait()
	w.logger.Log(context.Background(), log.LevelInfo, "watchdog stopped")
}

// TriggerCheck schedules an out-of-cycle poll of one plugin. The nudge is
// non-blocking; if the queue is full the plugin is checked on the next tick.
func (w *Watchdog) TriggerCheck(name string) {
	select {
	case w.immediateCheck <- name:
	default:
		w.logger.Log(context.Background(), log.LevelWarn, "immediate check queue full",
			log.String("plugin", name))
	}
}

// ForceRecovery triggers an out-of-band recovery attempt regardless of the
// plugin's current state or timer, for manual operator intervention. Returns
// false for unregistered names.
func (w *Watchdog) ForceRecovery(ctx context.Context, name string) bool {
	w.mu.RLock()
	b, ok := w.boundaries[name]
	w.mu.RUnlock()

	if !ok {
		w.logger.Log(ctx, log.LevelWarn, "force recovery for unregistered plugin",
			log.String("plugin", name))

		return false
	}

	w.logger.Log(ctx, log.LevelInfo, "forcing plugin recovery",
		log.String("plugin", name))

	return b.AttemptRecovery(ctx)
}

// Boundary returns the registered boundary for a plugin name.
func (w *Watchdog) Boundary(name string) (*Boundary, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	b, ok := w.boundaries[name]

	return b, ok
}

// AllHealth returns a health snapshot for every registered boundary.
func (w *Watchdog) AllHealth() map[string]HealthRecord {
	w.mu.RLock()
	boundaries := make(map[string]*Boundary, len(w.boundaries))
	maps.Copy(boundaries, w.boundaries)
	w.mu.RUnlock()

	health := make(map[string]HealthRecord, len(boundaries))
	for name, b := range boundaries {
		health[name] = b.Health()
	}

	return health
}

func (w *Watchdog) pollLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.pollOnce()
		case name := <-w.immediateCheck:
			w.checkOne(name)
		case <-w.stopChan:
			return
		}
	}
}

// pollOnce reads a health snapshot of every boundary, logs it, and recovers
// failed plugins whose re-check timer has elapsed.
func (w *Watchdog) pollOnce() {
	ctx := context.Background()

	w.mu.RLock()
	boundaries := make(map[string]*Boundary, len(w.boundaries))
	maps.Copy(boundaries, w.boundaries)
	w.mu.RUnlock()

	if w.metrics != nil {
		w.metrics.RecordWatchdogPoll(ctx)
	}

	for name, b := range boundaries {
		health := b.Health()

		w.logger.Log(ctx, log.LevelDebug, "plugin health",
			log.String("plugin", name),
			log.String("state", string(health.State)),
			log.Int("consecutive_failures", health.ConsecutiveFailures),
			log.Int("error_count", health.ErrorCount))

		if w.shouldRecover(health) {
			w.logger.Log(ctx, log.LevelInfo, "auto-recovering failed plugin",
				log.String("plugin", name))

			b.AttemptRecovery(ctx)
		}
	}
}

// checkOne polls a single boundary outside the regular cadence.
func (w *Watchdog) checkOne(name string) {
	ctx := context.Background()

	w.mu.RLock()
	b, ok := w.boundaries[name]
	w.mu.RUnlock()

	if !ok {
		return
	}

	if w.shouldRecover(b.Health()) {
		b.AttemptRecovery(ctx)
	}
}

func (w *Watchdog) shouldRecover(health HealthRecord) bool {
	return w.autoRecovery &&
		health.State == StateFailed &&
		health.DisabledUntil != nil &&
		!w.now().Before(*health.DisabledUntil)
}
