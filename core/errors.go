package core

import (
	"errors"
	"fmt"
	"io/fs"
)

var (
	// ErrNotExist is returned when an object or directory does not exist.
	// Re-exported from io/fs for convenience.
	ErrNotExist = fs.ErrNotExist

	// ErrPermission is returned when access is denied.
	// Re-exported from io/fs for convenience.
	ErrPermission = fs.ErrPermission

	// ErrPrecondition is returned when the caller supplied an invalid input:
	// a missing local source, a symlink where a regular file is required, a
	// non-directory source for a recursive put, or an unsupported source
	// type. Precondition failures are never retried.
	ErrPrecondition = errors.New("precondition failed")

	// ErrUnsupportedScheme is returned when a path's scheme maps to no
	// configured backend. This is a configuration error and is never retried.
	ErrUnsupportedScheme = errors.New("unsupported storage scheme")
)

// NotFoundError indicates the requested remote object genuinely does not
// exist, as opposed to a transfer that failed. It is surfaced verbatim so
// callers can distinguish the two.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("data not found at %s", e.Path)
}

// Unwrap makes errors.Is(err, ErrNotExist) hold for not-found conditions.
func (e *NotFoundError) Unwrap() error { return fs.ErrNotExist }

// DownloadError wraps any non-not-found failure during a get, carrying both
// paths and the original cause.
type DownloadError struct {
	From      string
	To        string
	Recursive bool
	Err       error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("failed to get data from %s to %s (recursive=%t): %v", e.From, e.To, e.Recursive, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// UploadError wraps any failure during a put, carrying both paths and the
// original cause.
type UploadError struct {
	From      string
	To        string
	Recursive bool
	Err       error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("failed to put data from %s to %s (recursive=%t): %v", e.From, e.To, e.Recursive, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// IsNotFound reports whether err represents a genuine not-found condition.
func IsNotFound(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
