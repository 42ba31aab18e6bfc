package service

import (
	"errors"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	// ErrUnresolvedEntity marks a match request naming an unknown user.
	ErrUnresolvedEntity = errors.New("unresolved entity")

	// ErrNotStarted is returned when an operation runs before Start.
	ErrNotStarted = errors.New("service not started")

	// ErrInvalidRequest marks a malformed match request.
	ErrInvalidRequest = errors.New("invalid request")
)
