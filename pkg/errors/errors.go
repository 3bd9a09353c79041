// Package errors provides structured error types for the depstage engine.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the CLI and the engine packages
//   - Machine-readable error codes for programmatic handling and exit codes
//   - User-friendly error messages
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Every failure the engine can surface maps to exactly one code:
//   - PARSE_ERROR: a manifest line or lockfile could not be understood
//   - AMBIGUOUS_VERSION / VERSION_CONFLICT: resolution failures
//   - INDEX_UNAVAILABLE / NETWORK_ERROR: index and transport failures
//   - PACKAGE_INTEGRITY: checksum mismatch on a fetched artifact
//   - LOCK_TIMEOUT: could not acquire the environment lock in time
//   - INVALID_*: input validation failures
//   - INTERNAL: unexpected internal errors
//
// # Usage
//
//	err := errors.New(errors.ErrCodeVersionConflict, "no version of %s satisfies all constraints", name)
//	if errors.Is(err, errors.ErrCodeVersionConflict) {
//	    // Handle resolution conflict
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeNetwork, origErr, "failed to fetch %s", url)
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Manifest errors
	ErrCodeParse Code = "PARSE_ERROR"

	// Resolution errors
	ErrCodeAmbiguousVersion Code = "AMBIGUOUS_VERSION"
	ErrCodeVersionConflict  Code = "VERSION_CONFLICT"

	// Index and transport errors
	ErrCodeIndexUnavailable Code = "INDEX_UNAVAILABLE"
	ErrCodeNetwork          Code = "NETWORK_ERROR"

	// Artifact errors
	ErrCodePackageIntegrity Code = "PACKAGE_INTEGRITY"

	// Store errors
	ErrCodeLockTimeout Code = "LOCK_TIMEOUT"

	// Input validation errors
	ErrCodeInvalidConfig  Code = "INVALID_CONFIG"
	ErrCodeInvalidPackage Code = "INVALID_PACKAGE"
	ErrCodeInvalidPath    Code = "INVALID_PATH"

	// Resource not found errors
	ErrCodeNotFound Code = "NOT_FOUND"

	// Internal errors
	ErrCodeInternal Code = "INTERNAL_ERROR"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// coder is implemented by specialized error types that carry their own code.
type coder interface {
	Code() Code
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error or a typed error
// with a matching code.
func Is(err error, code Code) bool {
	return GetCode(err) == code
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if no error in the chain carries a code.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	var c coder
	if errors.As(err, &c) {
		return c.Code()
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// ParseError reports a manifest declaration that could not be understood.
// It identifies the offending file, line number and raw text so the user
// can find and fix the declaration.
type ParseError struct {
	File   string // Manifest path (may be empty for inline input)
	Line   int    // 1-based line number
	Text   string // Raw line content
	Reason string // What was wrong with it
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s:%d: %s: %q", e.File, e.Line, e.Reason, e.Text)
	}
	return fmt.Sprintf("line %d: %s: %q", e.Line, e.Reason, e.Text)
}

// Code returns the error code for this error type.
func (e *ParseError) Code() Code {
	return ErrCodeParse
}

// AmbiguousVersionError reports a requirement that strict resolution
// refuses to pin because no constraint narrows it down.
type AmbiguousVersionError struct {
	Package string // Requirement name as declared
}

// Error implements the error interface.
func (e *AmbiguousVersionError) Error() string {
	return fmt.Sprintf("ambiguous version for %q: strict mode requires a constraint or a single published version", e.Package)
}

// Code returns the error code for this error type.
func (e *AmbiguousVersionError) Code() Code {
	return ErrCodeAmbiguousVersion
}

// VersionConflictError reports constraints on one package that no
// available version can satisfy together.
type VersionConflictError struct {
	Package     string   // Requirement name as declared
	Constraints []string // The conflicting constraint expressions
}

// Error implements the error interface.
func (e *VersionConflictError) Error() string {
	if len(e.Constraints) == 0 {
		return fmt.Sprintf("version conflict for %q", e.Package)
	}
	return fmt.Sprintf("version conflict for %q: no version satisfies %s", e.Package, strings.Join(e.Constraints, " and "))
}

// Code returns the error code for this error type.
func (e *VersionConflictError) Code() Code {
	return ErrCodeVersionConflict
}

// IndexUnavailableError reports an index that stayed unreachable or kept
// failing after the retry budget was spent.
type IndexUnavailableError struct {
	Index string // Index base URL
	Cause error  // Last transport or server error
}

// Error implements the error interface.
func (e *IndexUnavailableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("index %s unavailable: %v", e.Index, e.Cause)
	}
	return fmt.Sprintf("index %s unavailable", e.Index)
}

// Unwrap returns the underlying cause.
func (e *IndexUnavailableError) Unwrap() error {
	return e.Cause
}

// Code returns the error code for this error type.
func (e *IndexUnavailableError) Code() Code {
	return ErrCodeIndexUnavailable
}

// PackageIntegrityError reports a fetched artifact whose checksum did not
// match the value published by the index.
type PackageIntegrityError struct {
	Package string // Package name
	Version string // Resolved version
	Want    string // Expected sha256 (hex)
	Got     string // Computed sha256 (hex)
}

// Error implements the error interface.
func (e *PackageIntegrityError) Error() string {
	return fmt.Sprintf("integrity check failed for %s %s: want sha256 %s, got %s", e.Package, e.Version, e.Want, e.Got)
}

// Code returns the error code for this error type.
func (e *PackageIntegrityError) Code() Code {
	return ErrCodePackageIntegrity
}

// LockTimeoutError reports a lock on an environment fingerprint that
// could not be acquired within the configured timeout.
type LockTimeoutError struct {
	Fingerprint string // Environment fingerprint being locked
	Holder      string // Observed holder description (may be empty)
}

// Error implements the error interface.
func (e *LockTimeoutError) Error() string {
	if e.Holder != "" {
		return fmt.Sprintf("timed out waiting for lock on %s (held by %s)", e.Fingerprint, e.Holder)
	}
	return fmt.Sprintf("timed out waiting for lock on %s", e.Fingerprint)
}

// Code returns the error code for this error type.
func (e *LockTimeoutError) Code() Code {
	return ErrCodeLockTimeout
}
