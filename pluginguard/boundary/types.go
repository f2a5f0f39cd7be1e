package boundary

import (
	"context"
	"fmt"
	"time"
)

// PluginState represents the health state of a wrapped plugin.
type PluginState string

const (
	// StateHealthy means the plugin is fully operational.
	StateHealthy PluginState = "healthy"
	// StateDegraded means the plugin is callable but has recent repeated failures.
	StateDegraded PluginState = "degraded"
	// StateFailed means the plugin exceeded its failure threshold and is
	// disabled until its recovery timer elapses.
	StateFailed PluginState = "failed"
	// StateDisabled means the plugin was circuit-broken by a critical failure
	// or disabled by an operator.
	StateDisabled PluginState = "disabled"
	// StateRecovering means a recovery attempt or trial call is in progress.
	StateRecovering PluginState = "recovering"
)

// String returns the string representation of a plugin state.
func (s PluginState) String() string {
	return string(s)
}

// ErrorSeverity classifies how dangerous a plugin failure is to the host.
type ErrorSeverity string

const (
	// SeverityLow covers failures with no known escalation class.
	SeverityLow ErrorSeverity = "low"
	// SeverityMedium covers transient runtime and environment faults.
	SeverityMedium ErrorSeverity = "medium"
	// SeverityHigh covers programming-contract violations.
	SeverityHigh ErrorSeverity = "high"
	// SeverityCritical covers process-fatal conditions; a single critical
	// failure circuit-breaks the plugin.
	SeverityCritical ErrorSeverity = "critical"
)

// ErrorKind names the class of a plugin failure. Severity is a pure function
// of the kind (see Classify).
type ErrorKind string

const (
	KindOutOfMemory     ErrorKind = "out_of_memory"
	KindRuntimeFault    ErrorKind = "runtime_fault"
	KindProcessExit     ErrorKind = "process_exit"
	KindMissingSymbol   ErrorKind = "missing_symbol"
	KindTypeMismatch    ErrorKind = "type_mismatch"
	KindInvalidArgument ErrorKind = "invalid_argument"
	KindInvalidValue    ErrorKind = "invalid_value"
	KindRuntime         ErrorKind = "runtime"
	KindIO              ErrorKind = "io"
	KindConnection      ErrorKind = "connection"
	KindUnknown         ErrorKind = "unknown"
)

// PluginError captures one failed plugin execution. Instances are appended to
// the owning boundary's in-memory error log and never persisted.
type PluginError struct {
	ID                string         `json:"id"`
	Plugin            string         `json:"plugin"`
	Kind              ErrorKind      `json:"kind"`
	Message           string         `json:"message"`
	Stack             string         `json:"stack,omitempty"`
	Timestamp         time.Time      `json:"timestamp"`
	Severity          ErrorSeverity  `json:"severity"`
	Context           map[string]any `json:"context,omitempty"`
	RecoveryAttempted bool           `json:"recoveryAttempted"`

	cause error
}

// Error implements the error interface.
func (e *PluginError) Error() string {
	if e == nil {
		return "plugin error: <nil>"
	}

	return fmt.Sprintf("plugin %s [%s/%s]: %s", e.Plugin, e.Kind, e.Severity, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/errors.As chains.
func (e *PluginError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.cause
}

// HealthRecord is a point-in-time snapshot of a boundary's health state.
// All fields are copies; mutating a snapshot never affects the boundary.
type HealthRecord struct {
	Plugin              string       `json:"plugin"`
	State               PluginState  `json:"state"`
	LastError           *PluginError `json:"lastError,omitempty"`
	ErrorCount          int          `json:"errorCount"`
	SuccessCount        int          `json:"successCount"`
	LastSuccess         *time.Time   `json:"lastSuccess,omitempty"`
	LastFailure         *time.Time   `json:"lastFailure,omitempty"`
	RecoveryAttempts    int          `json:"recoveryAttempts"`
	DisabledUntil       *time.Time   `json:"disabledUntil,omitempty"`
	ConsecutiveFailures int          `json:"consecutiveFailures"`
}

// FallbackFunc produces a substitute result when the real operation failed or
// the plugin is unavailable. Errors returned here propagate to the caller;
// fallbacks are the last line of defense and are not further boundaried.
type FallbackFunc func(ctx context.Context, opCtx map[string]any) (any, error)

// RecoveryFunc attempts to restore a plugin to working order. Handlers are
// tried strictly in registration order and the first success wins.
type RecoveryFunc func(ctx context.Context) error
