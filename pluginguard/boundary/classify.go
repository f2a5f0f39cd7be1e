package boundary

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"runtime"
	"strings"
	"syscall"
)

// KindError tags an error with an explicit ErrorKind so plugins can steer
// their own classification instead of relying on type inspection.
type KindError struct {
	Kind ErrorKind
	Err  error
}

// Error implements the error interface.
func (e *KindError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap returns the wrapped error.
func (e *KindError) Unwrap() error {
	return e.Err
}

// WithKind wraps err with an explicit error kind. Classify honors the tag
// before any type-based inspection.
func WithKind(err error, kind ErrorKind) error {
	if err == nil {
		return nil
	}

	return &KindError{Kind: kind, Err: err}
}

// panicError wraps a value recovered from a panicking plugin operation.
type panicError struct {
	value any
	stack []byte
}

// Error implements the error interface.
func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

// Classify maps an error to its kind and severity. The mapping is a pure
// function of the error, independent of plugin or call context:
//
//	process-fatal conditions (OOM, runtime faults, process exit)  -> critical
//	programming-contract violations (bad symbol/type/argument)    -> high
//	transient runtime/environment faults (runtime, I/O, network)  -> medium
//	anything else                                                  -> low
func Classify(err error) (ErrorKind, ErrorSeverity) {
	kind := kindOf(err)

	return kind, SeverityOf(kind)
}

// SeverityOf returns the severity for an error kind.
func SeverityOf(kind ErrorKind) ErrorSeverity {
	switch kind {
	case KindOutOfMemory, KindRuntimeFault, KindProcessExit:
		return SeverityCritical
	case KindMissingSymbol, KindTypeMismatch, KindInvalidArgument, KindInvalidValue:
		return SeverityHigh
	case KindRuntime, KindIO, KindConnection:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func kindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	// Explicit tags win over type inspection.
	var kindErr *KindError
	if errors.As(err, &kindErr) {
		return kindErr.Kind
	}

	var pe *panicError
	if errors.As(err, &pe) {
		if strings.Contains(fmt.Sprint(pe.value), "out of memory") {
			return KindOutOfMemory
		}

		return KindRuntimeFault
	}

	// Runtime faults surfaced as errors (nil deref, index out of range, ...)
	// are process-fatal if they ever cross a plugin call without a recover.
	var runtimeErr runtime.Error
	if errors.As(err, &runtimeErr) {
		return KindRuntimeFault
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return KindConnection
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) ||
		errors.Is(err, fs.ErrClosed) {
		return KindIO
	}

	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return KindIO
	}

	if errors.Is(err, os.ErrInvalid) {
		return KindInvalidArgument
	}

	return KindUnknown
}
