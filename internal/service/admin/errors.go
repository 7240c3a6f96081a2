package admin

import (
	"errors"
)

var (
	ErrEventNotFound    = errors.New("no roster rows carry this event signature")
	ErrInvalidSignature = errors.New("invalid event signature")
)
