// Unit tests for the errors package
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

// TestNew tests creating a new StoreError
func TestNew(t *testing.T) {
	err := New(ErrCodeKeyNotFound, "test error message")

	if err == nil {
		t.Fatal("Expected non-nil error")
	}

	if err.Code != ErrCodeKeyNotFound {
		t.Errorf("Expected code %s, got %s", ErrCodeKeyNotFound, err.Code)
	}

	if err.Message != "test error message" {
		t.Errorf("Expected message 'test error message', got %s", err.Message)
	}

	if err.Cause != nil {
		t.Error("Expected nil cause")
	}

	if err.Context == nil {
		t.Error("Expected non-nil context map")
	}

	if err.StackTrace == "" {
		t.Error("Expected non-empty stack trace")
	}
}

// TestError tests the Error() method
func TestError(t *testing.T) {
	tests := []struct {
		name     string
		err      *StoreError
		contains []string
	}{
		{
			name: "simple error",
			err:  New(ErrCodeInternal, "something went wrong"),
			contains: []string{
				"[INTERNAL_ERROR]",
				"something went wrong",
			},
		},
		{
			name: "error with context",
			err: New(ErrCodeKeyNotFound, "key missing").
				WithContext("key", "user:123"),
			contains: []string{
				"[KEY_NOT_FOUND]",
				"key missing",
				"key=user:123",
			},
		},
		{
			name: "error with cause",
			err: Wrap(
				fmt.Errorf("original error"),
				ErrCodeIo,
				"device read failed",
			),
			contains: []string{
				"[IO_ERROR]",
				"device read failed",
				"original error",
			},
		},
		{
			name: "error with multiple context fields",
			err: New(ErrCodeStrandFull, "strand has insufficient space").
				WithContext("need", 300).
				WithContext("remaining", 128),
			contains: []string{
				"[STRAND_FULL]",
				"strand has insufficient space",
				"need=300",
				"remaining=128",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errStr := tt.err.Error()
			for _, substr := range tt.contains {
				if !strings.Contains(errStr, substr) {
					t.Errorf("Expected error string to contain '%s', got: %s", substr, errStr)
				}
			}
		})
	}
}

// TestWrap tests wrapping errors
func TestWrap(t *testing.T) {
	t.Run("wrap standard error", func(t *testing.T) {
		originalErr := fmt.Errorf("short write")
		wrapped := Wrap(originalErr, ErrCodeIo, "write error")

		if wrapped.Code != ErrCodeIo {
			t.Errorf("Expected code %s, got %s", ErrCodeIo, wrapped.Code)
		}

		if wrapped.Cause != originalErr {
			t.Error("Expected cause to be original error")
		}

		if !strings.Contains(wrapped.Error(), "short write") {
			t.Error("Expected wrapped error to contain original message")
		}
	})

	t.Run("wrap nil error", func(t *testing.T) {
		wrapped := Wrap(nil, ErrCodeInternal, "should be nil")
		if wrapped != nil {
			t.Error("Expected nil when wrapping nil error")
		}
	})
}

// TestUnwrap tests error unwrapping
func TestUnwrap(t *testing.T) {
	originalErr := fmt.Errorf("original error")
	wrapped := Wrap(originalErr, ErrCodeInternal, "wrapped")

	unwrapped := wrapped.Unwrap()
	if unwrapped != originalErr {
		t.Error("Expected Unwrap to return original error")
	}

	// Test with Is from standard library
	if !stderrors.Is(wrapped, originalErr) {
		t.Error("Expected Is to find original error")
	}
}

// TestWithContext tests adding context to errors
func TestWithContext(t *testing.T) {
	err := New(ErrCodeKeyNotFound, "key not found").
		WithContext("key", "user:123").
		WithContext("strand", 4)

	if err.Context["key"] != "user:123" {
		t.Error("Expected key context to be set")
	}

	if err.Context["strand"] != 4 {
		t.Error("Expected strand context to be set")
	}

	if len(err.Context) != 2 {
		t.Errorf("Expected 2 context fields, got %d", len(err.Context))
	}
}

// TestIsCode tests checking error codes
func TestIsCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		code     ErrorCode
		expected bool
	}{
		{
			name:     "matching code",
			err:      New(ErrCodeKeyNotFound, "not found"),
			code:     ErrCodeKeyNotFound,
			expected: true,
		},
		{
			name:     "non-matching code",
			err:      New(ErrCodeKeyNotFound, "not found"),
			code:     ErrCodeInternal,
			expected: false,
		},
		{
			name:     "standard error",
			err:      fmt.Errorf("standard error"),
			code:     ErrCodeInternal,
			expected: false,
		},
		{
			name:     "inner code through the chain",
			err:      fmt.Errorf("outer: %w", Wrap(New(ErrCodeCorruptRecord, "bad frame"), ErrCodeIo, "read path")),
			code:     ErrCodeCorruptRecord,
			expected: true,
		},
		{
			name:     "nil error",
			err:      nil,
			code:     ErrCodeInternal,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsCode(tt.err, tt.code)
			if result != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, result)
			}
		})
	}
}

// TestCodeOf tests extracting the outermost code
func TestCodeOf(t *testing.T) {
	inner := New(ErrCodeCorruptRecord, "bad frame")
	outer := Wrap(inner, ErrCodeIo, "read path")

	if code := CodeOf(outer); code != ErrCodeIo {
		t.Errorf("Expected outermost code IO_ERROR, got %s", code)
	}

	if code := CodeOf(fmt.Errorf("plain")); code != ErrCodeUnknown {
		t.Errorf("Expected UNKNOWN_ERROR for plain error, got %s", code)
	}
}

// TestCommonErrorConstructors tests convenience error constructors
func TestCommonErrorConstructors(t *testing.T) {
	t.Run("NewSignatureMismatchError", func(t *testing.T) {
		err := NewSignatureMismatchError("volume header")
		if err.Code != ErrCodeSignatureMismatch {
			t.Error("Expected SIGNATURE_MISMATCH code")
		}
		if err.Context["structure"] != "volume header" {
			t.Error("Expected structure context to be set")
		}
	})

	t.Run("NewIncompatibleVersionError", func(t *testing.T) {
		err := NewIncompatibleVersionError("2.0.0", "0.1.0")
		if err.Code != ErrCodeIncompatibleVersion {
			t.Error("Expected INCOMPATIBLE_VERSION code")
		}
		if err.Context["disk"] != "2.0.0" || err.Context["engine"] != "0.1.0" {
			t.Error("Expected both version contexts to be set")
		}
	})

	t.Run("NewStrandFullError", func(t *testing.T) {
		err := NewStrandFullError(3, 300, 128)
		if err.Code != ErrCodeStrandFull {
			t.Error("Expected STRAND_FULL code")
		}
		if err.Context["strand"] != uint16(3) {
			t.Error("Expected strand context to be set")
		}
		if err.Context["need"] != uint64(300) || err.Context["remaining"] != uint64(128) {
			t.Error("Expected need and remaining context to be set")
		}
	})

	t.Run("NewInvalidPointerError", func(t *testing.T) {
		err := NewInvalidPointerError(0xdeadbeef)
		if err.Code != ErrCodeInvalidPointer {
			t.Error("Expected INVALID_POINTER code")
		}
		if err.Context["pointer"] != "0xdeadbeef" {
			t.Errorf("Expected hex pointer context, got %v", err.Context["pointer"])
		}
	})

	t.Run("NewEmptyKeyError", func(t *testing.T) {
		err := NewEmptyKeyError()
		if err.Code != ErrCodeEmptyKey {
			t.Error("Expected EMPTY_KEY code")
		}
	})

	t.Run("NewVolumeClosedError", func(t *testing.T) {
		err := NewVolumeClosedError()
		if err.Code != ErrCodeVolumeClosed {
			t.Error("Expected VOLUME_CLOSED code")
		}
	})
}

// TestStackTrace tests that stack traces are captured
func TestStackTrace(t *testing.T) {
	err := New(ErrCodeInternal, "test error")

	if err.StackTrace == "" {
		t.Error("Expected stack trace to be captured")
	}

	// Stack trace should contain file and line information
	if !strings.Contains(err.StackTrace, "errors_test.go") {
		t.Error("Expected stack trace to contain test file name")
	}
}

// TestErrorChaining tests chaining multiple error wraps
func TestErrorChaining(t *testing.T) {
	baseErr := fmt.Errorf("base error")
	level1 := Wrap(baseErr, ErrCodeInternal, "level 1")
	level2 := Wrap(level1, ErrCodeIo, "level 2")
	level3 := Wrap(level2, ErrCodeCorruptRecord, "level 3")

	if level3.Code != ErrCodeCorruptRecord {
		t.Error("Expected top level code")
	}

	unwrapped1 := level3.Unwrap()
	if se, ok := unwrapped1.(*StoreError); !ok || se.Code != ErrCodeIo {
		t.Error("Expected level 2 code after first unwrap")
	}

	unwrapped2 := unwrapped1.(*StoreError).Unwrap()
	if se, ok := unwrapped2.(*StoreError); !ok || se.Code != ErrCodeInternal {
		t.Error("Expected level 1 code after second unwrap")
	}

	unwrapped3 := unwrapped2.(*StoreError).Unwrap()
	if unwrapped3 != baseErr {
		t.Error("Expected base error after third unwrap")
	}
}

// TestAllErrorCodes tests that all error codes are defined
func TestAllErrorCodes(t *testing.T) {
	codes := []ErrorCode{
		ErrCodeSignatureMismatch,
		ErrCodeIncompatibleVersion,
		ErrCodeCorruptRecord,
		ErrCodeCorruptCheckpoint,
		ErrCodeStrandFull,
		ErrCodeNoSpaceForCheckpoint,
		ErrCodeInvalidPointer,
		ErrCodeOutOfBounds,
		ErrCodeEmptyKey,
		ErrCodeInvalidKey,
		ErrCodeInvalidValue,
		ErrCodeKeyNotFound,
		ErrCodeKeyExists,
		ErrCodeVolumeClosed,
		ErrCodeInvalidConfig,
		ErrCodeIo,
		ErrCodeInternal,
		ErrCodeUnknown,
	}

	for _, code := range codes {
		err := New(code, "test")
		if err.Code != code {
			t.Errorf("Error code mismatch for %s", code)
		}
	}
}
