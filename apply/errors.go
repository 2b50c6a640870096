// Package apply implements the firmware-archive apply engine: manifest
// verification, task selection, the sparse deconcatenation reader, and the
// FAT write-back cache lifecycle described by the firmware manifest format.
package apply

import (
	"fmt"

	"github.com/dsoprea/go-logging"
)

// ErrorKind classifies an apply failure so that callers (in particular, the
// CLI) can map it onto a distinct process exit code or user-facing message.
type ErrorKind string

// Error kinds, one per failure mode named in spec.md §7.
const (
	ErrArchiveOpenFailed     ErrorKind = "archive-open-failed"
	ErrArchiveReadFailed     ErrorKind = "archive-read-failed"
	ErrMissingManifest       ErrorKind = "missing-manifest"
	ErrBadSignatureSize      ErrorKind = "bad-signature-size"
	ErrSignatureVerifyFailed ErrorKind = "signature-verify-failed"
	ErrNoApplicableTask      ErrorKind = "no-applicable-task"
	ErrMissingFileResource   ErrorKind = "missing-file-resource"
	ErrSparseMapInvalid      ErrorKind = "sparse-map-invalid"
	ErrFatCacheInitFailed    ErrorKind = "fat-cache-init-failed"
	ErrActionFailed          ErrorKind = "action-failed"
	ErrIOFailed              ErrorKind = "io-failed"
)

// AppliedError wraps an underlying cause with the ErrorKind that classifies
// it. It is the only error type this package ever hands back across its
// exported boundary (apply.Apply recovers any panic and normalizes it here).
type AppliedError struct {
	kind  ErrorKind
	cause error
}

// newError builds an *AppliedError, wrapping cause with go-logging the way
// the teacher wraps every error it raises.
func newError(kind ErrorKind, cause error) *AppliedError {
	return &AppliedError{kind: kind, cause: log.Wrap(cause)}
}

// errorf is the formatted-message equivalent of newError.
func errorf(kind ErrorKind, format string, args ...interface{}) *AppliedError {
	return &AppliedError{kind: kind, cause: log.Errorf(format, args...)}
}

// Kind returns the error's classification.
func (e *AppliedError) Kind() ErrorKind {
	return e.kind
}

// Error implements the error interface.
func (e *AppliedError) Error() string {
	return fmt.Sprintf("%s: %s", e.kind, e.cause.Error())
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *AppliedError) Unwrap() error {
	return e.cause
}
