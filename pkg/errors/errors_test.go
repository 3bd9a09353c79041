package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeParse, "test message: %s", "value")

	if err.Code != ErrCodeParse {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeParse)
	}

	if err.Message != "test message: value" {
		t.Errorf("Message = %v, want %v", err.Message, "test message: value")
	}

	expected := "PARSE_ERROR: test message: value"
	if err.Error() != expected {
		t.Errorf("Error() = %v, want %v", err.Error(), expected)
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := Wrap(ErrCodeNetwork, cause, "failed to fetch")

	if err.Code != ErrCodeNetwork {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeNetwork)
	}

	if err.Cause != cause {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}

	// Test Unwrap
	unwrapped := errors.Unwrap(err)
	if unwrapped != cause {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
	}

	// Test errors.Is with wrapped error
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
}

func TestIs(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		code     Code
		expected bool
	}{
		{
			name:     "matching code",
			err:      New(ErrCodeVersionConflict, "test"),
			code:     ErrCodeVersionConflict,
			expected: true,
		},
		{
			name:     "non-matching code",
			err:      New(ErrCodeVersionConflict, "test"),
			code:     ErrCodeNetwork,
			expected: false,
		},
		{
			name:     "wrapped error",
			err:      Wrap(ErrCodeNetwork, New(ErrCodeIndexUnavailable, "inner"), "outer"),
			code:     ErrCodeNetwork,
			expected: true,
		},
		{
			name:     "typed error",
			err:      &AmbiguousVersionError{Package: "requests"},
			code:     ErrCodeAmbiguousVersion,
			expected: true,
		},
		{
			name:     "typed error wrapped in fmt",
			err:      fmt.Errorf("resolving: %w", &ParseError{Line: 3, Text: "x", Reason: "bad"}),
			code:     ErrCodeParse,
			expected: true,
		},
		{
			name:     "non-Error type",
			err:      errors.New("plain error"),
			code:     ErrCodeParse,
			expected: false,
		},
		{
			name:     "nil error",
			err:      nil,
			code:     ErrCodeParse,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.code); got != tt.expected {
				t.Errorf("Is() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Code
	}{
		{
			name:     "Error type",
			err:      New(ErrCodeInvalidPackage, "test"),
			expected: ErrCodeInvalidPackage,
		},
		{
			name:     "typed integrity error",
			err:      &PackageIntegrityError{Package: "flask", Version: "2.0.0"},
			expected: ErrCodePackageIntegrity,
		},
		{
			name:     "plain error",
			err:      errors.New("plain"),
			expected: "",
		},
		{
			name:     "nil",
			err:      nil,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.expected {
				t.Errorf("GetCode() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "Error type",
			err:      New(ErrCodeParse, "friendly message"),
			expected: "friendly message",
		},
		{
			name:     "plain error",
			err:      errors.New("plain error"),
			expected: "plain error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UserMessage(tt.err); got != tt.expected {
				t.Errorf("UserMessage() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestParseError(t *testing.T) {
	t.Run("with file", func(t *testing.T) {
		err := &ParseError{File: "requirements.txt", Line: 7, Text: "flask=1.0", Reason: "unknown operator"}
		expected := `requirements.txt:7: unknown operator: "flask=1.0"`
		if err.Error() != expected {
			t.Errorf("Error() = %v, want %v", err.Error(), expected)
		}
	})

	t.Run("without file", func(t *testing.T) {
		err := &ParseError{Line: 2, Text: "???", Reason: "not a requirement"}
		expected := `line 2: not a requirement: "???"`
		if err.Error() != expected {
			t.Errorf("Error() = %v, want %v", err.Error(), expected)
		}
	})

	t.Run("code method", func(t *testing.T) {
		err := &ParseError{}
		if err.Code() != ErrCodeParse {
			t.Errorf("Code() = %v, want %v", err.Code(), ErrCodeParse)
		}
	})
}

func TestVersionConflictError(t *testing.T) {
	t.Run("with constraints", func(t *testing.T) {
		err := &VersionConflictError{Package: "urllib3", Constraints: []string{"<2.0", ">=2.1"}}
		expected := `version conflict for "urllib3": no version satisfies <2.0 and >=2.1`
		if err.Error() != expected {
			t.Errorf("Error() = %v, want %v", err.Error(), expected)
		}
	})

	t.Run("without constraints", func(t *testing.T) {
		err := &VersionConflictError{Package: "urllib3"}
		expected := `version conflict for "urllib3"`
		if err.Error() != expected {
			t.Errorf("Error() = %v, want %v", err.Error(), expected)
		}
	})
}

func TestIndexUnavailableError(t *testing.T) {
	cause := errors.New("connection refused")
	err := &IndexUnavailableError{Index: "https://idx.example.com", Cause: cause}

	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}

	if err.Code() != ErrCodeIndexUnavailable {
		t.Errorf("Code() = %v, want %v", err.Code(), ErrCodeIndexUnavailable)
	}
}

func TestLockTimeoutError(t *testing.T) {
	t.Run("with holder", func(t *testing.T) {
		err := &LockTimeoutError{Fingerprint: "abc123", Holder: "pid 42 on hostA"}
		expected := "timed out waiting for lock on abc123 (held by pid 42 on hostA)"
		if err.Error() != expected {
			t.Errorf("Error() = %v, want %v", err.Error(), expected)
		}
	})

	t.Run("without holder", func(t *testing.T) {
		err := &LockTimeoutError{Fingerprint: "abc123"}
		expected := "timed out waiting for lock on abc123"
		if err.Error() != expected {
			t.Errorf("Error() = %v, want %v", err.Error(), expected)
		}
	})
}
