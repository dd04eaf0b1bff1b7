// Package errors provides structured error handling for StrikingDB.
// Every failure surfaced by the engine carries a classification code from
// the taxonomy below, optional context fields, and the underlying cause.
package errors

import (
	"fmt"
	"runtime"
	"strings"
)

// ErrorCode classifies a failure. Codes map 1:1 to the CLI exit codes.
type ErrorCode string

const (
	// Format / compatibility errors
	ErrCodeSignatureMismatch   ErrorCode = "SIGNATURE_MISMATCH"
	ErrCodeIncompatibleVersion ErrorCode = "INCOMPATIBLE_VERSION"

	// Structural corruption
	ErrCodeCorruptRecord     ErrorCode = "CORRUPT_RECORD"
	ErrCodeCorruptCheckpoint ErrorCode = "CORRUPT_CHECKPOINT"

	// Capacity errors
	ErrCodeStrandFull           ErrorCode = "STRAND_FULL"
	ErrCodeNoSpaceForCheckpoint ErrorCode = "NO_SPACE_FOR_CHECKPOINT"

	// Addressing errors
	ErrCodeInvalidPointer ErrorCode = "INVALID_POINTER"
	ErrCodeOutOfBounds    ErrorCode = "OUT_OF_BOUNDS"

	// Argument errors
	ErrCodeEmptyKey     ErrorCode = "EMPTY_KEY"
	ErrCodeInvalidKey   ErrorCode = "INVALID_KEY"
	ErrCodeInvalidValue ErrorCode = "INVALID_VALUE"

	// Item lookup results
	ErrCodeKeyNotFound ErrorCode = "KEY_NOT_FOUND"
	ErrCodeKeyExists   ErrorCode = "KEY_EXISTS"

	// Lifecycle and environment
	ErrCodeVolumeClosed  ErrorCode = "VOLUME_CLOSED"
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
	ErrCodeIo            ErrorCode = "IO_ERROR"

	// General errors
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeUnknown  ErrorCode = "UNKNOWN_ERROR"
)

// StoreError is a structured error with a code, context, and cause.
type StoreError struct {
	Code       ErrorCode              // Error classification code
	Message    string                 // Human-readable error message
	Cause      error                  // Underlying cause (if any)
	Context    map[string]interface{} // Additional context
	StackTrace string                 // Stack trace for debugging
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if len(e.Context) > 0 {
		sb.WriteString(" (")
		first := true
		for key, value := range e.Context {
			if !first {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s=%v", key, value))
			first = false
		}
		sb.WriteString(")")
	}

	if e.Cause != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.Cause))
	}

	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *StoreError) Unwrap() error {
	return e.Cause
}

// New creates a new StoreError with the specified code and message.
func New(code ErrorCode, message string) *StoreError {
	return &StoreError{
		Code:       code,
		Message:    message,
		Context:    make(map[string]interface{}),
		StackTrace: captureStackTrace(),
	}
}

// Wrap wraps an existing error with a code and message. Returns nil if err
// is nil so call sites can wrap unconditionally.
func Wrap(err error, code ErrorCode, message string) *StoreError {
	if err == nil {
		return nil
	}

	return &StoreError{
		Code:       code,
		Message:    message,
		Cause:      err,
		Context:    make(map[string]interface{}),
		StackTrace: captureStackTrace(),
	}
}

// WithContext adds contextual information to an error.
func (e *StoreError) WithContext(key string, value interface{}) *StoreError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// captureStackTrace captures the current stack trace.
func captureStackTrace() string {
	const maxDepth = 32
	var pcs [maxDepth]uintptr
	n := runtime.Callers(3, pcs[:])

	var sb strings.Builder
	frames := runtime.CallersFrames(pcs[:n])

	for {
		frame, more := frames.Next()
		sb.WriteString(fmt.Sprintf("\n\t%s:%d %s", frame.File, frame.Line, frame.Function))
		if !more {
			break
		}
	}

	return sb.String()
}

// IsCode checks if an error (anywhere in its chain) has a specific code.
func IsCode(err error, code ErrorCode) bool {
	for err != nil {
		if se, ok := err.(*StoreError); ok && se.Code == code {
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

// CodeOf returns the code of the outermost StoreError in the chain, or
// ErrCodeUnknown if there is none.
func CodeOf(err error) ErrorCode {
	for err != nil {
		if se, ok := err.(*StoreError); ok {
			return se.Code
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = unwrapper.Unwrap()
	}
	return ErrCodeUnknown
}

// Common error constructors for convenience

// NewSignatureMismatchError reports a magic constant that does not match.
func NewSignatureMismatchError(structure string) *StoreError {
	return New(ErrCodeSignatureMismatch, "signature magic mismatch").
		WithContext("structure", structure)
}

// NewIncompatibleVersionError reports an on-disk version this engine
// cannot open.
func NewIncompatibleVersionError(diskVersion, engineVersion string) *StoreError {
	return New(ErrCodeIncompatibleVersion, "on-disk format version is incompatible").
		WithContext("disk", diskVersion).
		WithContext("engine", engineVersion)
}

// NewCorruptRecordError reports malformed record framing.
func NewCorruptRecordError(message string) *StoreError {
	return New(ErrCodeCorruptRecord, message)
}

// NewStrandFullError reports an append that exceeds remaining capacity.
func NewStrandFullError(strand uint16, need, remaining uint64) *StoreError {
	return New(ErrCodeStrandFull, "strand has insufficient space").
		WithContext("strand", strand).
		WithContext("need", need).
		WithContext("remaining", remaining)
}

// NewInvalidPointerError reports a disk pointer that decodes out of range.
func NewInvalidPointerError(raw uint64) *StoreError {
	return New(ErrCodeInvalidPointer, "disk pointer is not valid for this volume").
		WithContext("pointer", fmt.Sprintf("0x%x", raw))
}

// NewEmptyKeyError reports a zero-length key.
func NewEmptyKeyError() *StoreError {
	return New(ErrCodeEmptyKey, "key must not be empty")
}

// NewVolumeClosedError reports an operation on a closed volume.
func NewVolumeClosedError() *StoreError {
	return New(ErrCodeVolumeClosed, "volume is closed")
}
