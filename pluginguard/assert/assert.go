// Package assert evaluates internal invariants and reports violations through
// the structured logger instead of panicking. Production code uses it to make
// "this should never happen" conditions observable.
package assert

import (
	"context"
	"errors"

	"github.com/novara-labs/lib-pluginguard/pluginguard/log"
)

// Logger defines the minimal logging interface required by assertions.
// It is satisfied by log.Logger.
type Logger interface {
	Log(ctx context.Context, level log.Level, msg string, fields ...log.Field)
}

// ErrAssertionFailed is the sentinel error for failed assertions.
var ErrAssertionFailed = errors.New("assertion failed")

// AssertionError represents a failed assertion with its origin.
type AssertionError struct {
	Assertion string
	Message   string
	Component string
	Operation string
}

// Error returns the formatted assertion failure message.
func (e *AssertionError) Error() string {
	if e == nil {
		return ErrAssertionFailed.Error()
	}

	return "assertion failed: " + e.Message
}

// Unwrap returns the sentinel assertion error for errors.Is.
func (e *AssertionError) Unwrap() error {
	return ErrAssertionFailed
}

// Asserter evaluates invariants and logs on failure.
type Asserter struct {
	ctx       context.Context
	logger    Logger
	component string
	operation string
}

// New creates an Asserter bound to a component and operation label.
// A nil logger falls back to a no-op logger.
func New(ctx context.Context, logger Logger, component, operation string) *Asserter {
	if logger == nil {
		logger = log.NewNop()
	}

	return &Asserter{
		ctx:       ctx,
		logger:    logger,
		component: component,
		operation: operation,
	}
}

// That checks a condition. On violation it logs at error level and returns an
// *AssertionError; on success it returns nil.
func (a *Asserter) That(condition bool, assertion, message string) error {
	if condition {
		return nil
	}

	failure := &AssertionError{
		Assertion: assertion,
		Message:   message,
		Component: a.component,
		Operation: a.operation,
	}

	a.logger.Log(a.ctx, log.LevelError, "invariant violated",
		log.String("assertion", assertion),
		log.String("component", a.component),
		log.String("operation", a.operation),
		log.String("message", message))

	return failure
}

// NotNil checks that a value is non-nil.
func (a *Asserter) NotNil(value any, assertion string) error {
	return a.That(value != nil, assertion, assertion+" must not be nil")
}
