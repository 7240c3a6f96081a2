package query

import (
	"errors"
)

var (
	// ErrEventNotFound means no stored roster row carries the signature.
	ErrEventNotFound = errors.New("no roster rows for event signature")
	// ErrOrderNotFound means the order is unknown to the shop. An existing
	// order without roster rows is not an error.
	ErrOrderNotFound = errors.New("order not found")
)
