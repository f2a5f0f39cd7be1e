package boundary

import (
	"context"
	"errors"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/novara-labs/lib-pluginguard/pluginguard/assert"
	"github.com/novara-labs/lib-pluginguard/pluginguard/backoff"
	"github.com/novara-labs/lib-pluginguard/pluginguard/log"
	"github.com/novara-labs/lib-pluginguard/pluginguard/opentelemetry/metrics"
)

// Boundary isolates the failures of one plugin from the host process. It owns
// the plugin's health record, its fallback table, and its recovery-handler
// list. All health mutation happens under the boundary's own mutex, so
// unrelated plugins never contend.
type Boundary struct {
	plugin  string
	cfg     Config
	logger  log.Logger
	metrics *metrics.MetricsFactory
	now     func() time.Time

	mu                  sync.Mutex
	state               PluginState
	lastError           *PluginError
	errorCount          int
	successCount        int
	lastSuccess         *time.Time
	lastFailure         *time.Time
	recoveryAttempts    int
	disabledUntil       *time.Time
	consecutiveFailures int
	errorLog            []*PluginError
	fallbacks           map[string]FallbackFunc
	recoveryHandlers    []RecoveryFunc
}

// Option customizes a Boundary at construction time.
type Option func(*Boundary)

// WithMetrics attaches an OpenTelemetry metrics factory. Boundary events
// (recorded errors, recovery attempts, state changes) are recorded through it.
func WithMetrics(factory *metrics.MetricsFactory) Option {
	return func(b *Boundary) {
		b.metrics = factory
	}
}

// New creates a boundary for the named plugin in the healthy state with all
// counters zero. A nil logger falls back to a no-op logger; zero Config
// fields fall back to DefaultConfig values.
func New(plugin string, cfg Config, logger log.Logger, opts ...Option) *Boundary {
	if logger == nil {
		logger = log.NewNop()
	}

	b := &Boundary{
		plugin:    plugin,
		cfg:       cfg.normalize(),
		logger:    logger.With(log.String("plugin", plugin)),
		now:       time.Now,
		state:     StateHealthy,
		fallbacks: make(map[string]FallbackFunc),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Plugin returns the name of the wrapped plugin.
func (b *Boundary) Plugin() string {
	return b.plugin
}

// RegisterFallback stores one fallback per operation name. Re-registering
// overwrites silently.
func (b *Boundary) RegisterFallback(operation string, fn FallbackFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.fallbacks[operation] = fn
}

// RegisterRecoveryHandler appends a handler tried in registration order during
// recovery. There is no uniqueness constraint.
func (b *Boundary) RegisterRecoveryHandler(fn RecoveryFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.recoveryHandlers = append(b.recoveryHandlers, fn)
}

// Execute runs one plugin operation through the boundary. If the boundary is
// unavailable the operation does not run and the execution is flagged to use
// its fallback. Any error or panic raised by fn is contained here: it is
// classified, recorded, and never propagated to the caller. The caller learns
// the outcome by inspecting the returned Execution and, when flagged, invoking
// ExecuteFallback.
func (b *Boundary) Execute(ctx context.Context, operation string, opCtx map[string]any, fn func(context.Context) (any, error)) *Execution {
	exec := &Execution{boundary: b, operation: operation, opCtx: opCtx}

	if !b.isAvailable() {
		exec.useFallback = true

		b.logger.Log(ctx, log.LevelDebug, "plugin unavailable, routing to fallback",
			log.String("operation", operation))

		return exec
	}

	result, err := b.invoke(ctx, fn)
	if err != nil {
		exec.err = b.recordError(ctx, err, opCtx)

		b.mu.Lock()
		_, hasFallback := b.fallbacks[operation]
		b.mu.Unlock()

		if hasFallback {
			exec.useFallback = true
		}

		return exec
	}

	b.recordSuccess(ctx)

	exec.success = true
	exec.result = result

	return exec
}

// invoke runs fn with panic containment so a crashing plugin cannot take the
// host goroutine down.
func (b *Boundary) invoke(ctx context.Context, fn func(context.Context) (any, error)) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, stack: debug.Stack()}
		}
	}()

	return fn(ctx)
}

// recordError classifies err, appends it to the error log, and applies the
// escalation rules. The rule order is deliberate: critical severity always
// circuit-breaks first, then the consecutive-failure thresholds are checked
// from worst to mildest.
func (b *Boundary) recordError(ctx context.Context, err error, opCtx map[string]any) *PluginError {
	kind, severity := Classify(err)

	b.mu.Lock()

	now := b.now()
	pluginErr := &PluginError{
		ID:        uuid.NewString(),
		Plugin:    b.plugin,
		Kind:      kind,
		Message:   err.Error(),
		Stack:     stackOf(err),
		Timestamp: now,
		Severity:  severity,
		Context:   opCtx,
		cause:     err,
	}

	b.errorLog = append(b.errorLog, pluginErr)
	b.lastError = pluginErr
	b.errorCount++
	b.consecutiveFailures++
	b.lastFailure = &now

	before := b.state

	switch {
	case severity == SeverityCritical:
		b.state = StateDisabled
		until := now.Add(b.cfg.CircuitBreakerTimeout)
		b.disabledUntil = &until
	case b.consecutiveFailures > b.cfg.MaxFailures:
		b.state = StateFailed
		until := now.Add(b.cfg.RecoveryTimeout)
		b.disabledUntil = &until
	case b.consecutiveFailures >= b.cfg.MaxFailures:
		b.state = StateDegraded
	case b.consecutiveFailures > 1:
		b.state = StateDegraded
	}

	after := b.state
	failures := b.consecutiveFailures
	total := b.errorCount

	b.mu.Unlock()

	// Consecutive failures only reset on success; they can never outrun the
	// lifetime error count.
	_ = assert.New(ctx, b.logger, "boundary", "record_error").
		That(failures <= total, "consecutive_failures_bounded",
			"consecutive failures exceed lifetime error count")

	b.logger.Log(ctx, log.LevelWarn, "plugin error recorded",
		log.String("error_id", pluginErr.ID),
		log.String("kind", string(kind)),
		log.String("severity", string(severity)),
		log.Int("consecutive_failures", failures),
		log.Err(err))

	if before != after {
		b.logStateChange(ctx, before, after)
	}

	if b.metrics != nil {
		b.metrics.RecordPluginError(ctx, b.plugin, string(severity))
		b.metrics.RecordPluginState(ctx, b.plugin, string(after), stateCode(after))
	}

	return pluginErr
}

// recordSuccess resets the consecutive-failure streak and heals a degraded
// plugin. Failed, disabled, and recovering plugins are not healed by a bare
// success; only AttemptRecovery heals those.
func (b *Boundary) recordSuccess(ctx context.Context) {
	b.mu.Lock()

	now := b.now()
	b.successCount++
	b.lastSuccess = &now
	b.consecutiveFailures = 0

	before := b.state
	if b.state == StateDegraded {
		b.state = StateHealthy
	}

	after := b.state

	b.mu.Unlock()

	if before != after {
		b.logStateChange(ctx, before, after)
	}
}

// isAvailable gates one call attempt. Failed and disabled plugins become
// available again once their re-check timer elapses, flipping to recovering
// so the next call acts as a trial. The check and the flip share one critical
// section so concurrent callers cannot both observe the elapsed timer.
func (b *Boundary) isAvailable() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateDisabled, StateFailed:
		// TODO: an unset disabledUntil re-enables a manually disabled plugin
		// on the next availability check; revisit whether Disable should pin
		// the state until an operator resets it.
		if b.disabledUntil == nil || !b.now().Before(*b.disabledUntil) {
			b.state = StateRecovering
			return true
		}

		return false
	case StateHealthy, StateDegraded, StateRecovering:
		return true
	default:
		return false
	}
}

// AttemptRecovery tries each registered recovery handler in order; the first
// one that completes without error heals the plugin. Handlers run outside the
// boundary lock and may block their calling goroutine indefinitely; callers
// needing bounded recovery must wrap handlers in their own timeout.
func (b *Boundary) AttemptRecovery(ctx context.Context) bool {
	b.mu.Lock()

	b.recoveryAttempts++
	attempt := b.recoveryAttempts
	before := b.state
	b.state = StateRecovering
	handlers := slices.Clone(b.recoveryHandlers)

	b.mu.Unlock()

	if before != StateRecovering {
		b.logStateChange(ctx, before, StateRecovering)
	}

	b.logger.Log(ctx, log.LevelInfo, "attempting plugin recovery",
		log.Int("attempt", attempt),
		log.Int("handlers", len(handlers)))

	if b.metrics != nil {
		b.metrics.RecordRecoveryAttempt(ctx, b.plugin)
	}

	started := b.now()

	for i, handler := range handlers {
		if err := handler(ctx); err != nil {
			b.logger.Log(ctx, log.LevelWarn, "recovery handler failed",
				log.Int("handler", i),
				log.Err(err))

			continue
		}

		b.mu.Lock()

		b.state = StateHealthy
		b.consecutiveFailures = 0
		b.disabledUntil = nil

		if b.lastError != nil {
			b.lastError.RecoveryAttempted = true
		}

		b.mu.Unlock()

		b.logStateChange(ctx, StateRecovering, StateHealthy)
		b.logger.Log(ctx, log.LevelInfo, "plugin recovered",
			log.Int("attempt", attempt),
			log.Int("handler", i))

		if b.metrics != nil {
			b.metrics.RecordRecoverySucceeded(ctx, b.plugin)
			b.metrics.RecordRecoveryDuration(ctx, b.plugin, b.now().Sub(started).Seconds())
		}

		return true
	}

	b.mu.Lock()

	b.state = StateFailed
	now := b.now()
	until := now.Add(b.recoveryDelay(attempt))
	b.disabledUntil = &until

	if b.lastError != nil {
		b.lastError.RecoveryAttempted = true
	}

	b.mu.Unlock()

	b.logStateChange(ctx, StateRecovering, StateFailed)
	b.logger.Log(ctx, log.LevelWarn, "plugin recovery failed",
		log.Int("attempt", attempt),
		log.Time("disabled_until", until))

	return false
}

// recoveryDelay computes how long a failed recovery keeps the plugin
// disabled. With RecoveryBackoff set, repeated attempts are spaced
// exponentially with jitter on top of the base timeout.
func (b *Boundary) recoveryDelay(attempt int) time.Duration {
	if !b.cfg.RecoveryBackoff {
		return b.cfg.RecoveryTimeout
	}

	return backoff.Exponential(b.cfg.RecoveryTimeout, attempt-1) +
		backoff.FullJitter(b.cfg.RecoveryTimeout)
}

// Health returns a snapshot of the boundary's health record. The last error,
// if any, is copied so readers never observe later mutation.
func (b *Boundary) Health() HealthRecord {
	b.mu.Lock()
	defer b.mu.Unlock()

	record := HealthRecord{
		Plugin:              b.plugin,
		State:               b.state,
		ErrorCount:          b.errorCount,
		SuccessCount:        b.successCount,
		RecoveryAttempts:    b.recoveryAttempts,
		ConsecutiveFailures: b.consecutiveFailures,
	}

	if b.lastError != nil {
		lastErr := *b.lastError
		record.LastError = &lastErr
	}

	if b.lastSuccess != nil {
		t := *b.lastSuccess
		record.LastSuccess = &t
	}

	if b.lastFailure != nil {
		t := *b.lastFailure
		record.LastFailure = &t
	}

	if b.disabledUntil != nil {
		t := *b.disabledUntil
		record.DisabledUntil = &t
	}

	return record
}

// ErrorLog returns a copy of the boundary's ordered error log.
func (b *Boundary) ErrorLog() []PluginError {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := make([]PluginError, len(b.errorLog))
	for i, e := range b.errorLog {
		entries[i] = *e
	}

	return entries
}

// ResetHealth forces the boundary back to healthy, zeroes all counters, and
// clears the error log. Intended for operator intervention.
func (b *Boundary) ResetHealth() {
	ctx := context.Background()

	b.mu.Lock()

	before := b.state
	b.state = StateHealthy
	b.lastError = nil
	b.errorCount = 0
	b.successCount = 0
	b.lastSuccess = nil
	b.lastFailure = nil
	b.recoveryAttempts = 0
	b.disabledUntil = nil
	b.consecutiveFailures = 0
	b.errorLog = nil

	b.mu.Unlock()

	if before != StateHealthy {
		b.logStateChange(ctx, before, StateHealthy)
	}

	b.logger.Log(ctx, log.LevelInfo, "plugin health reset")
}

// Disable forces the boundary into the disabled state with no scheduled
// re-check, intended as an indefinite manual override.
func (b *Boundary) Disable(reason string) {
	ctx := context.Background()

	b.mu.Lock()

	before := b.state
	b.state = StateDisabled
	b.disabledUntil = nil

	b.mu.Unlock()

	if before != StateDisabled {
		b.logStateChange(ctx, before, StateDisabled)
	}

	b.logger.Log(ctx, log.LevelWarn, "plugin disabled",
		log.String("reason", reason))
}

func (b *Boundary) logStateChange(ctx context.Context, from, to PluginState) {
	b.logger.Log(ctx, log.LevelInfo, "plugin state changed",
		log.String("from", string(from)),
		log.String("to", string(to)))

	if b.metrics != nil {
		b.metrics.RecordPluginState(ctx, b.plugin, string(to), stateCode(to))
	}
}

// stackOf extracts a captured stack trace if the error carries one.
func stackOf(err error) string {
	var pe *panicError
	if errors.As(err, &pe) {
		return string(pe.stack)
	}

	return ""
}

// stateCode maps a plugin state to a stable numeric gauge value.
func stateCode(state PluginState) int64 {
	switch state {
	case StateHealthy:
		return 0
	case StateDegraded:
		return 1
	case StateRecovering:
		return 2
	case StateFailed:
		return 3
	case StateDisabled:
		return 4
	default:
		return -1
	}
}
