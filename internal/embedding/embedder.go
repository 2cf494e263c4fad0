// Package embedding defines the optional embedding capability and wraps it
// with resilience behavior (circuit breaking, throttling) so a flaky or
// slow embedding backend degrades gracefully instead of blocking the
// memory store's core operations.
package embedding

import "context"

// Embedder turns text into a fixed-dimensional vector for similarity
// search. It is an optional capability: a server constructed without one
// still serves every non-embedding operation, and tools that need it are
// simply not advertised.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
	Dimensions() int
}
