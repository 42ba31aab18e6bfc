package index

import "errors"

// Sentinel kinds for index errors.
var (
	ErrNotFound          = errors.New("entity not indexed")
	ErrInvalidLimit      = errors.New("invalid query limit")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrUnavailable       = errors.New("index unavailable")
)
