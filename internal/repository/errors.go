package repository

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	// ErrUnavailable marks a store that cannot be reached at all. Batch jobs
	// abort on it instead of recording a per-item failure.
	ErrUnavailable = errors.New("store unavailable")
)

// IsUnavailable reports whether err signals a connection-level store failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
