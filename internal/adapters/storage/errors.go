package storage

import "errors"

// Sentinel kinds for storage errors.
var (
	ErrNotFound        = errors.New("record not found")
	ErrVersionMismatch = errors.New("version mismatch")
)
