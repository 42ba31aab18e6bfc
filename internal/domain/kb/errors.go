package kb

import "errors"

// Sentinel kinds for vocabulary errors.
var (
	ErrSynonymConflict = errors.New("synonym already mapped")
	ErrUnknownSkill    = errors.New("unknown canonical skill")
	ErrCycle           = errors.New("category hierarchy cycle")
	ErrEmptyTerm       = errors.New("empty term")
)
