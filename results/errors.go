package results

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Sentinel errors for sink failure classification.
// Use errors.Is(err, ErrXxx) for typed assertions.
var (
	// ErrPermissionDenied indicates a permission/access failure.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound indicates the sink path does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDiskFull indicates storage is out of space.
	ErrDiskFull = errors.New("no space left on device")

	// ErrSinkClosed indicates a write after the sink was closed.
	ErrSinkClosed = errors.New("sink closed")
)

// SinkError wraps an underlying error with sink classification.
// It preserves the original error in the chain for inspection via errors.As.
type SinkError struct {
	// Kind is the sentinel error for classification.
	Kind error
	// Op is the operation that failed ("write", "read", "header").
	Op string
	// Path is the sink path involved.
	Path string
	// Err is the underlying error.
	Err error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Path, e.Kind, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As chain traversal.
func (e *SinkError) Unwrap() error { return e.Err }

// Is reports whether the error matches the target sentinel.
func (e *SinkError) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// wrapSinkError classifies and wraps a sink operation error.
// Returns nil if err is nil.
func wrapSinkError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &SinkError{Kind: classify(err), Op: op, Path: path, Err: err}
}

func classify(err error) error {
	switch {
	case errors.Is(err, os.ErrPermission):
		return ErrPermissionDenied
	case errors.Is(err, os.ErrNotExist):
		return ErrNotFound
	case strings.Contains(err.Error(), "no space left"):
		return ErrDiskFull
	default:
		return errors.New("sink failure")
	}
}
