package boundary

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFailedBoundary(t *testing.T, recoveryTimeout time.Duration) *Boundary {
	t.Helper()

	b := New("weather", Config{
		MaxFailures:           1,
		RecoveryTimeout:       recoveryTimeout,
		CircuitBreakerTimeout: time.Minute,
	}, nil)

	ctx := context.Background()
	b.Execute(ctx, "fetch", nil, failingOp)
	b.Execute(ctx, "fetch", nil, failingOp)

	require.Equal(t, StateFailed, b.Health().State)

	return b
}

func TestWatchdog_RegisterUnregister(t *testing.T) {
	w := NewWatchdog(time.Minute, false, nil)

	b := New("weather", DefaultConfig(), nil)
	w.Register(b)

	health := w.AllHealth()
	require.Contains(t, health, "weather")
	assert.Equal(t, StateHealthy, health["weather"].State)

	got, ok := w.Boundary("weather")
	require.True(t, ok)
	assert.Same(t, b, got)

	w.Unregister("weather")
	assert.Empty(t, w.AllHealth())

	_, ok = w.Boundary("weather")
	assert.False(t, ok)
}

func TestWatchdog_ForceRecovery_UnknownName(t *testing.T) {
	w := NewWatchdog(time.Minute, false, nil)

	assert.False(t, w.ForceRecovery(context.Background(), "ghost"))
}

func TestWatchdog_ForceRecovery(t *testing.T) {
	w := NewWatchdog(time.Minute, false, nil)

	b := newFailedBoundary(t, time.Hour)
	b.RegisterRecoveryHandler(func(_ context.Context) error { return nil })
	w.Register(b)

	// Force recovery ignores the (still running) disable timer.
	assert.True(t, w.ForceRecovery(context.Background(), "weather"))
	assert.Equal(t, StateHealthy, b.Health().State)
}

func TestWatchdog_AutoRecovery(t *testing.T) {
	b := newFailedBoundary(t, 20*time.Millisecond)
	b.RegisterRecoveryHandler(func(_ context.Context) error { return nil })

	w := NewWatchdog(10*time.Millisecond, true, nil)
	w.Register(b)
	w.Start()

	defer w.Stop()

	assert.Eventually(t, func() bool {
		return b.Health().State == StateHealthy
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatchdog_AutoRecoveryDisabled(t *testing.T) {
	b := newFailedBoundary(t, 20*time.Millisecond)
	b.RegisterRecoveryHandler(func(_ context.Context) error { return nil })

	w := NewWatchdog(10*time.Millisecond, false, nil)
	w.Register(b)
	w.Start()

	time.Sleep(100 * time.Millisecond)
	w.Stop()

	assert.Equal(t, StateFailed, b.Health().State)
	assert.Zero(t, b.Health().RecoveryAttempts)
}

func TestWatchdog_AutoRecoveryWaitsForTimer(t *testing.T) {
	b := newFailedBoundary(t, time.Hour)
	b.RegisterRecoveryHandler(func(_ context.Context) error { return nil })

	w := NewWatchdog(10*time.Millisecond, true, nil)
	w.Register(b)
	w.Start()

	time.Sleep(100 * time.Millisecond)
	w.Stop()

	// Timer has not elapsed, so the watchdog must leave the boundary alone.
	assert.Equal(t, StateFailed, b.Health().State)
	assert.Zero(t, b.Health().RecoveryAttempts)
}

func TestWatchdog_TriggerCheck(t *testing.T) {
	b := newFailedBoundary(t, 20*time.Millisecond)
	b.RegisterRecoveryHandler(func(_ context.Context) error { return nil })

	// Long poll interval: recovery should come from the immediate check.
	w := NewWatchdog(time.Hour, true, nil)
	w.Register(b)
	w.Start()

	defer w.Stop()

	time.Sleep(30 * time.Millisecond)
	w.TriggerCheck("weather")

	assert.Eventually(t, func() bool {
		return b.Health().State == StateHealthy
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatchdog_TriggerCheck_UnknownName(t *testing.T) {
	w := NewWatchdog(time.Hour, true, nil)
	w.Start()

	defer w.Stop()

	// Must not panic or block.
	w.TriggerCheck("ghost")
}

func TestWatchdog_StopIsIdempotent(t *testing.T) {
	w := NewWatchdog(10*time.Millisecond, false, nil)
	w.Start()

	w.Stop()
	w.Stop()
}

func TestWatchdog_FailedRecoveryReArmsTimer(t *testing.T) {
	b := newFailedBoundary(t, 20*time.Millisecond)
	b.RegisterRecoveryHandler(func(_ context.Context) error { return errBoom })

	w := NewWatchdog(10*time.Millisecond, true, nil)
	w.Register(b)
	w.Start()

	assert.Eventually(t, func() bool {
		return b.Health().RecoveryAttempts >= 1
	}, 2*time.Second, 10*time.Millisecond)

	w.Stop()

	health := b.Health()
	assert.Equal(t, StateFailed, health.State)
	assert.NotNil(t, health.DisabledUntil)
}
