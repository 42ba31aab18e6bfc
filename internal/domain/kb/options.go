// Package kb maintains the controlled skill vocabulary.
package kb

import "sync"

// Option applies a configuration option to the Normalizer.
type Option func(*Normalizer)

// WithMaxEditDistance bounds the edit distance for fuzzy synonym lookup.
func WithMaxEditDistance(d int) Option {
	return func(n *Normalizer) {
		if d >= 0 {
			n.maxEditDistance = d
		}
	}
}

// WithOverlapThreshold sets the token-overlap ratio required for a
// multi-word fuzzy match.
func WithOverlapThreshold(t float64) Option {
	return func(n *Normalizer) {
		if t > 0 && t <= 1 {
			n.overlapThreshold = t
		}
	}
}

// WithKeepUnresolved controls whether unmatched tokens are returned for
// manual curation or silently discarded.
func WithKeepUnresolved(keep bool) Option {
	return func(n *Normalizer) {
		n.keepUnresolved = keep
	}
}

// WithStripeCount sets the number of write-lock stripes for synonym writes.
func WithStripeCount(c int) Option {
	return func(n *Normalizer) {
		if c > 0 {
			n.stripes = make([]sync.Mutex, c)
		}
	}
}
