package boundary

import "time"

// Config holds the escalation and recovery timing knobs for one boundary.
type Config struct {
	// MaxFailures is the consecutive-failure threshold. Reaching it degrades
	// the plugin; exceeding it marks the plugin failed and arms the recovery
	// timer.
	MaxFailures int

	// RecoveryTimeout is how long a failed plugin stays disabled before a
	// retry window opens.
	RecoveryTimeout time.Duration

	// CircuitBreakerTimeout is how long a critical failure disables the
	// plugin before a timed re-check.
	CircuitBreakerTimeout time.Duration

	// RecoveryBackoff, when set, spaces repeated failed recovery attempts
	// exponentially (with jitter on top of the base timeout) instead of
	// re-arming the flat RecoveryTimeout every time.
	RecoveryBackoff bool
}

// DefaultConfig provides balanced settings for most plugins.
func DefaultConfig() Config {
	return Config{
		MaxFailures:           3,
		RecoveryTimeout:       60 * time.Second,
		CircuitBreakerTimeout: 300 * time.Second,
	}
}

// AggressiveConfig for plugins requiring fast failure detection.
func AggressiveConfig() Config {
	return Config{
		MaxFailures:           1,
		RecoveryTimeout:       15 * time.Second,
		CircuitBreakerTimeout: 120 * time.Second,
		RecoveryBackoff:       true,
	}
}

// ConservativeConfig for plugins that should tolerate more failures.
func ConservativeConfig() Config {
	return Config{
		MaxFailures:           5,
		RecoveryTimeout:       120 * time.Second,
		CircuitBreakerTimeout: 600 * time.Second,
	}
}

// normalize fills zero values with defaults so a zero Config is usable.
func (c Config) normalize() Config {
	def := DefaultConfig()

	if c.MaxFailures <= 0 {
		c.MaxFailures = def.MaxFailures
	}

	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = def.RecoveryTimeout
	}

	if c.CircuitBreakerTimeout <= 0 {
		c.CircuitBreakerTimeout = def.CircuitBreakerTimeout
	}

	return c
}
