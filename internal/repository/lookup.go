package repository

import "errors"

type lookupKind uint8

const (
	kindFound lookupKind = iota + 1
	kindNotFound
	kindFailed
)

// Lookup is the outcome of reading a single record: Found, NotFound or
// Failed. NotFound is a normal outcome and never carries an error.
type Lookup[T any] struct {
	value T
	kind  lookupKind
	err   error
}

func Found[T any](v T) Lookup[T] {
	return Lookup[T]{value: v, kind: kindFound}
}

func NotFound[T any]() Lookup[T] {
	return Lookup[T]{kind: kindNotFound}
}

func Failed[T any](err error) Lookup[T] {
	return Lookup[T]{kind: kindFailed, err: err}
}

// Classify turns a conventional (value, error) pair into a Lookup, mapping
// ErrNotFound to NotFound.
func Classify[T any](v T, err error) Lookup[T] {
	switch {
	case err == nil:
		return Found(v)
	case errors.Is(err, ErrNotFound):
		return NotFound[T]()
	default:
		return Failed[T](err)
	}
}

func (l Lookup[T]) Get() (T, bool) {
	return l.value, l.kind == kindFound
}

func (l Lookup[T]) IsFound() bool    { return l.kind == kindFound }
func (l Lookup[T]) IsNotFound() bool { return l.kind == kindNotFound }
func (l Lookup[T]) Err() error       { return l.err }
