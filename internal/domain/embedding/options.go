package embedding

// Option applies a configuration option to the Embedder.
type Option func(*Embedder)

// WithDimension sets the vector dimension.
func WithDimension(d int) Option {
	return func(e *Embedder) {
		if d > 0 {
			e.dimension = d
		}
	}
}

// WithTextWeight sets the weight of free-text features relative to
// canonical skill features.
func WithTextWeight(w float64) Option {
	return func(e *Embedder) {
		if w >= 0 {
			e.textWeight = w
		}
	}
}
