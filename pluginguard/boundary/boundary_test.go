package boundary

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func failingOp(_ context.Context) (any, error) {
	return nil, errBoom
}

func succeedingOp(_ context.Context) (any, error) {
	return "ok", nil
}

func newTestBoundary(cfg Config) *Boundary {
	return New("weather", cfg, nil)
}

func TestNew_StartsHealthy(t *testing.T) {
	b := newTestBoundary(DefaultConfig())

	health := b.Health()
	assert.Equal(t, "weather", health.Plugin)
	assert.Equal(t, StateHealthy, health.State)
	assert.Zero(t, health.ErrorCount)
	assert.Zero(t, health.SuccessCount)
	assert.Zero(t, health.ConsecutiveFailures)
	assert.Nil(t, health.LastError)
	assert.Nil(t, health.DisabledUntil)
}

func TestEscalation_Sequence(t *testing.T) {
	// With MaxFailures=2: failure 1 leaves the state unchanged, failure 2
	// degrades, failure 3 fails the plugin and arms the recovery timer.
	b := newTestBoundary(Config{MaxFailures: 2, RecoveryTimeout: time.Second, CircuitBreakerTimeout: time.Minute})
	ctx := context.Background()

	b.Execute(ctx, "fetch", nil, failingOp)
	assert.Equal(t, StateHealthy, b.Health().State)
	assert.Equal(t, 1, b.Health().ConsecutiveFailures)

	b.Execute(ctx, "fetch", nil, failingOp)
	assert.Equal(t, StateDegraded, b.Health().State)
	assert.Equal(t, 2, b.Health().ConsecutiveFailures)

	before := time.Now()
	b.Execute(ctx, "fetch", nil, failingOp)

	health := b.Health()
	assert.Equal(t, StateFailed, health.State)
	assert.Equal(t, 3, health.ConsecutiveFailures)
	require.NotNil(t, health.DisabledUntil)
	assert.WithinDuration(t, before.Add(time.Second), *health.DisabledUntil, 200*time.Millisecond)
}

func TestEscalation_SecondFailureDegradesEvenBelowThreshold(t *testing.T) {
	b := newTestBoundary(Config{MaxFailures: 5, RecoveryTimeout: time.Second, CircuitBreakerTimeout: time.Minute})
	ctx := context.Background()

	b.Execute(ctx, "fetch", nil, failingOp)
	assert.Equal(t, StateHealthy, b.Health().State)

	b.Execute(ctx, "fetch", nil, failingOp)
	assert.Equal(t, StateDegraded, b.Health().State)
}

func TestCriticalError_DisablesImmediately(t *testing.T) {
	b := newTestBoundary(Config{MaxFailures: 10, RecoveryTimeout: time.Second, CircuitBreakerTimeout: time.Minute})
	ctx := context.Background()

	before := time.Now()
	exec := b.Execute(ctx, "synthesize", nil, func(_ context.Context) (any, error) {
		return nil, WithKind(errBoom, KindOutOfMemory)
	})

	require.NotNil(t, exec.Err())
	assert.Equal(t, SeverityCritical, exec.Err().Severity)

	health := b.Health()
	assert.Equal(t, StateDisabled, health.State)
	assert.Equal(t, 1, health.ConsecutiveFailures)
	require.NotNil(t, health.DisabledUntil)
	assert.WithinDuration(t, before.Add(time.Minute), *health.DisabledUntil, 200*time.Millisecond)
}

func TestPanicIsContainedAndCritical(t *testing.T) {
	b := newTestBoundary(DefaultConfig())

	exec := b.Execute(context.Background(), "transcribe", nil, func(_ context.Context) (any, error) {
		panic("plugin blew up")
	})

	require.NotNil(t, exec.Err())
	assert.Equal(t, KindRuntimeFault, exec.Err().Kind)
	assert.Equal(t, SeverityCritical, exec.Err().Severity)
	assert.NotEmpty(t, exec.Err().Stack)
	assert.Equal(t, StateDisabled, b.Health().State)
}

func TestRecordSuccess_HealsDegradedOnly(t *testing.T) {
	ctx := context.Background()

	// Degraded heals back to healthy.
	b := newTestBoundary(Config{MaxFailures: 2, RecoveryTimeout: time.Minute, CircuitBreakerTimeout: time.Minute})
	b.Execute(ctx, "fetch", nil, failingOp)
	b.Execute(ctx, "fetch", nil, failingOp)
	require.Equal(t, StateDegraded, b.Health().State)

	b.Execute(ctx, "fetch", nil, succeedingOp)

	health := b.Health()
	assert.Equal(t, StateHealthy, health.State)
	assert.Zero(t, health.ConsecutiveFailures)
	assert.Equal(t, 1, health.SuccessCount)
	assert.NotNil(t, health.LastSuccess)

	// Disabled is not healed by a bare success.
	b2 := newTestBoundary(DefaultConfig())
	b2.Disable("manual")
	b2.recordSuccess(ctx)
	assert.Equal(t, StateDisabled, b2.Health().State)

	// Failed is not healed by a bare success either.
	b3 := newTestBoundary(Config{MaxFailures: 1, RecoveryTimeout: time.Minute, CircuitBreakerTimeout: time.Minute})
	b3.Execute(ctx, "fetch", nil, failingOp)
	b3.Execute(ctx, "fetch", nil, failingOp)
	require.Equal(t, StateFailed, b3.Health().State)

	b3.recordSuccess(ctx)
	assert.Equal(t, StateFailed, b3.Health().State)
	assert.Zero(t, b3.Health().ConsecutiveFailures)
}

func TestIsAvailable_DisabledTimer(t *testing.T) {
	b := newTestBoundary(DefaultConfig())

	// Future timer: unavailable.
	b.mu.Lock()
	b.state = StateDisabled
	future := time.Now().Add(time.Hour)
	b.disabledUntil = &future
	b.mu.Unlock()

	assert.False(t, b.isAvailable())
	assert.Equal(t, StateDisabled, b.Health().State)

	// Elapsed timer: flips to recovering and allows the call through.
	b.mu.Lock()
	past := time.Now().Add(-time.Second)
	b.disabledUntil = &past
	b.mu.Unlock()

	assert.True(t, b.isAvailable())
	assert.Equal(t, StateRecovering, b.Health().State)
}

func TestIsAvailable_ManualDisableReArmsOnNextCheck(t *testing.T) {
	// Disable leaves the re-check timer unset, which the availability gate
	// treats as already elapsed. Documents current behavior.
	b := newTestBoundary(DefaultConfig())
	b.Disable("operator request")

	require.Equal(t, StateDisabled, b.Health().State)
	require.Nil(t, b.Health().DisabledUntil)

	assert.True(t, b.isAvailable())
	assert.Equal(t, StateRecovering, b.Health().State)
}

func TestAttemptRecovery_NoHandlers(t *testing.T) {
	b := newTestBoundary(Config{MaxFailures: 3, RecoveryTimeout: time.Second, CircuitBreakerTimeout: time.Minute})

	ok := b.AttemptRecovery(context.Background())

	assert.False(t, ok)

	health := b.Health()
	assert.Equal(t, StateFailed, health.State)
	assert.Equal(t, 1, health.RecoveryAttempts)
	assert.NotNil(t, health.DisabledUntil)
}

func TestAttemptRecovery_FirstSuccessWins(t *testing.T) {
	b := newTestBoundary(DefaultConfig())

	var secondCalled bool

	b.RegisterRecoveryHandler(func(_ context.Context) error { return nil })
	b.RegisterRecoveryHandler(func(_ context.Context) error {
		secondCalled = true
		return nil
	})

	// Put the boundary in a failed state with a streak first.
	ctx := context.Background()
	b.Execute(ctx, "fetch", nil, failingOp)

	ok := b.AttemptRecovery(ctx)

	assert.True(t, ok)
	assert.False(t, secondCalled)

	health := b.Health()
	assert.Equal(t, StateHealthy, health.State)
	assert.Zero(t, health.ConsecutiveFailures)
	assert.Nil(t, health.DisabledUntil)
	require.NotNil(t, health.LastError)
	assert.True(t, health.LastError.RecoveryAttempted)
}

func TestAttemptRecovery_HandlersTriedInOrder(t *testing.T) {
	b := newTestBoundary(DefaultConfig())

	var order []int

	b.RegisterRecoveryHandler(func(_ context.Context) error {
		order = append(order, 1)
		return errBoom
	})
	b.RegisterRecoveryHandler(func(_ context.Context) error {
		order = append(order, 2)
		return nil
	})
	b.RegisterRecoveryHandler(func(_ context.Context) error {
		order = append(order, 3)
		return nil
	})

	ok := b.AttemptRecovery(context.Background())

	assert.True(t, ok)
	assert.Equal(t, []int{1, 2}, order)
	assert.Equal(t, StateHealthy, b.Health().State)
}

func TestResetHealth(t *testing.T) {
	b := newTestBoundary(Config{MaxFailures: 1, RecoveryTimeout: time.Minute, CircuitBreakerTimeout: time.Minute})
	ctx := context.Background()

	b.Execute(ctx, "fetch", nil, failingOp)
	b.Execute(ctx, "fetch", nil, failingOp)
	require.Equal(t, StateFailed, b.Health().State)
	require.NotEmpty(t, b.ErrorLog())

	b.ResetHealth()

	health := b.Health()
	assert.Equal(t, StateHealthy, health.State)
	assert.Zero(t, health.ErrorCount)
	assert.Zero(t, health.SuccessCount)
	assert.Zero(t, health.ConsecutiveFailures)
	assert.Zero(t, health.RecoveryAttempts)
	assert.Nil(t, health.LastError)
	assert.Nil(t, health.DisabledUntil)
	assert.Empty(t, b.ErrorLog())
}

func TestConsecutiveFailures_NeverExceedErrorCount(t *testing.T) {
	b := newTestBoundary(Config{MaxFailures: 2, RecoveryTimeout: time.Minute, CircuitBreakerTimeout: time.Minute})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		b.Execute(ctx, "fetch", nil, failingOp)
	}

	health := b.Health()
	assert.LessOrEqual(t, health.ConsecutiveFailures, health.ErrorCount)
	assert.Equal(t, 5, health.ErrorCount)
}

func TestConcurrentFailures_NoLostUpdates(t *testing.T) {
	const workers = 50
	const failuresEach = 20

	b := newTestBoundary(Config{MaxFailures: 1, RecoveryTimeout: time.Hour, CircuitBreakerTimeout: time.Hour})
	ctx := context.Background()

	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for j := 0; j < failuresEach; j++ {
				b.Execute(ctx, "fetch", nil, failingOp)
			}
		}()
	}

	wg.Wait()

	health := b.Health()
	assert.Equal(t, workers*failuresEach, health.ErrorCount)
	assert.Len(t, b.ErrorLog(), workers*failuresEach)
}

func TestConcurrentFailures_TwoCallers(t *testing.T) {
	b := newTestBoundary(Config{MaxFailures: 1, RecoveryTimeout: time.Hour, CircuitBreakerTimeout: time.Hour})
	ctx := context.Background()

	var wg sync.WaitGroup

	for i := 0; i < 2; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()
			b.Execute(ctx, "fetch", nil, failingOp)
		}()
	}

	wg.Wait()

	health := b.Health()
	assert.Equal(t, 2, health.ConsecutiveFailures)
	assert.Equal(t, 2, health.ErrorCount)
	assert.Len(t, b.ErrorLog(), 2)
}

func TestEndToEnd_FailRecoverHeal(t *testing.T) {
	b := newTestBoundary(Config{MaxFailures: 2, RecoveryTimeout: 50 * time.Millisecond, CircuitBreakerTimeout: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		b.Execute(ctx, "fetch", nil, failingOp)
	}

	health := b.Health()
	require.Equal(t, StateFailed, health.State)
	require.NotNil(t, health.DisabledUntil)

	// Before the timer elapses the boundary stays unavailable.
	assert.False(t, b.isAvailable())

	time.Sleep(70 * time.Millisecond)

	assert.True(t, b.isAvailable())
	assert.Equal(t, StateRecovering, b.Health().State)

	b.RegisterRecoveryHandler(func(_ context.Context) error { return nil })

	assert.True(t, b.AttemptRecovery(ctx))
	assert.Equal(t, StateHealthy, b.Health().State)
}

func TestRecoveryBackoff_GrowsDelay(t *testing.T) {
	b := New("weather", Config{
		MaxFailures:           1,
		RecoveryTimeout:       100 * time.Millisecond,
		CircuitBreakerTimeout: time.Minute,
		RecoveryBackoff:       true,
	}, nil)

	ctx := context.Background()

	// No handlers: every attempt fails and re-arms the timer.
	start := b.now()
	require.False(t, b.AttemptRecovery(ctx))

	first := b.Health().DisabledUntil
	require.NotNil(t, first)

	require.False(t, b.AttemptRecovery(ctx))

	second := b.Health().DisabledUntil
	require.NotNil(t, second)

	// Attempt 1 delay is in [100ms, 200ms); attempt 2 in [200ms, 300ms).
	assert.GreaterOrEqual(t, first.Sub(start), 100*time.Millisecond)
	assert.GreaterOrEqual(t, second.Sub(start), 200*time.Millisecond)
}
