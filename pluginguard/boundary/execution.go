package boundary

import "context"

// Execution is the short-lived result of one Boundary.Execute call. It
// carries the outcome signaling between the boundary and its caller and is
// never stored or reused across calls.
type Execution struct {
	boundary  *Boundary
	operation string
	opCtx     map[string]any

	success     bool
	useFallback bool
	result      any
	err         *PluginError
}

// Operation returns the operation name this execution was opened for.
func (e *Execution) Operation() string {
	return e.operation
}

// ShouldProceed reports whether the real operation was allowed to run, i.e.
// the execution is not flagged to use its fallback.
func (e *Execution) ShouldProceed() bool {
	return !e.useFallback
}

// Succeeded reports whether the wrapped operation completed without error.
func (e *Execution) Succeeded() bool {
	return e.success
}

// Result returns the value produced by the wrapped operation, or nil when it
// failed or did not run.
func (e *Execution) Result() any {
	return e.result
}

// Err returns the recorded plugin error, or nil when the operation succeeded
// or never ran.
func (e *Execution) Err() *PluginError {
	return e.err
}

// NeedsFallback reports whether the caller should invoke ExecuteFallback: the
// boundary was unavailable, or the operation failed and a fallback is
// registered for it.
func (e *Execution) NeedsFallback() bool {
	return e.useFallback
}

// ExecuteFallback invokes the fallback registered for this execution's
// operation. A missing fallback yields (nil, nil); callers must treat
// "no fallback, no result" as a valid degraded outcome. Errors produced by
// the fallback itself are propagated, not boundaried.
func (e *Execution) ExecuteFallback(ctx context.Context) (any, error) {
	e.boundary.mu.Lock()
	fn, ok := e.boundary.fallbacks[e.operation]
	e.boundary.mu.Unlock()

	if !ok {
		return nil, nil
	}

	return fn(ctx, e.opCtx)
}
