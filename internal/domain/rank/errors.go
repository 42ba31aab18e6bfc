package rank

import "errors"

// Sentinel kinds for ranking errors.
var (
	ErrNegativeWeight = errors.New("negative signal weight")
)
