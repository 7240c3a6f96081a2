package orders

import (
	"errors"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrInvalidTask   = errors.New("invalid deferred task payload")
)
