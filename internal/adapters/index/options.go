// Package index defines the nearest-neighbor store interface and errors.
package index

// Option applies a configuration option to the IVFStore.
type Option func(*IVFStore, *int)

// WithCellCount sets the number of inverted-file cells.
func WithCellCount(n int) Option {
	return func(_ *IVFStore, nlist *int) {
		if n > 0 {
			*nlist = n
		}
	}
}

// WithProbeCount sets how many cells a query inspects. More probes trade
// latency for recall.
func WithProbeCount(n int) Option {
	return func(s *IVFStore, _ *int) {
		if n > 0 {
			s.probes = n
		}
	}
}

// WithStaleHandler registers the callback for stale-version vectors
// encountered during queries.
func WithStaleHandler(h StaleHandler) Option {
	return func(s *IVFStore, _ *int) {
		s.staleHandler = h
	}
}
