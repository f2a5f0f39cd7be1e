package backoff

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExponential(t *testing.T) {
	base := 100 * time.Millisecond

	assert.Equal(t, base, Exponential(base, 0))
	assert.Equal(t, 2*base, Exponential(base, 1))
	assert.Equal(t, 8*base, Exponential(base, 3))
}

func TestExponential_NegativeAttempt(t *testing.T) {
	base := time.Second
	assert.Equal(t, base, Exponential(base, -5))
}

func TestExponential_ZeroBase(t *testing.T) {
	assert.Equal(t, time.Duration(0), Exponential(0, 3))
	assert.Equal(t, time.Duration(0), Exponential(-time.Second, 3))
}

func TestExponential_OverflowSaturates(t *testing.T) {
	assert.Equal(t, time.Duration(math.MaxInt64), Exponential(time.Hour, 62))
}

func TestFullJitter_Range(t *testing.T) {
	delay := time.Second

	for i := 0; i < 100; i++ {
		got := FullJitter(delay)
		assert.GreaterOrEqual(t, got, time.Duration(0))
		assert.Less(t, got, delay)
	}
}

func TestFullJitter_NonPositive(t *testing.T) {
	assert.Equal(t, time.Duration(0), FullJitter(0))
	assert.Equal(t, time.Duration(0), FullJitter(-time.Second))
}

func TestExponentialWithJitter_Range(t *testing.T) {
	base := 50 * time.Millisecond

	for i := 0; i < 100; i++ {
		got := ExponentialWithJitter(base, 2)
		assert.GreaterOrEqual(t, got, time.Duration(0))
		assert.Less(t, got, 4*base)
	}
}
