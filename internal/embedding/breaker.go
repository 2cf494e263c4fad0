package embedding

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"github.com/rtkai/icm/internal/icmerr"
)

// BreakerEmbedder wraps an Embedder with a circuit breaker so repeated
// failures of the underlying capability stop cascading into every
// subsequent call: after three consecutive failures the breaker opens for
// 30 seconds, then allows two half-open probe calls before closing again.
type BreakerEmbedder struct {
	inner   Embedder
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerEmbedder wraps inner with the default breaker configuration.
func NewBreakerEmbedder(inner Embedder) *BreakerEmbedder {
	settings := gobreaker.Settings{
		Name:        "EmbeddingCircuitBreaker",
		MaxRequests: 2,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}
	return &BreakerEmbedder{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Dimensions delegates to the wrapped embedder.
func (b *BreakerEmbedder) Dimensions() int {
	return b.inner.Dimensions()
}

// Embed runs the wrapped embedder's Embed through the circuit breaker. A
// tripped breaker surfaces as icmerr.ErrEmbedding, the kind the dispatcher
// treats as non-fatal.
func (b *BreakerEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		return b.inner.Embed(ctx, text)
	})
	if err != nil {
		return nil, translateBreakerErr(err)
	}
	return result.([]float64), nil
}

// EmbedBatch runs the wrapped embedder's EmbedBatch through the circuit
// breaker.
func (b *BreakerEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		return b.inner.EmbedBatch(ctx, texts)
	})
	if err != nil {
		return nil, translateBreakerErr(err)
	}
	return result.([][]float64), nil
}

func translateBreakerErr(err error) error {
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return icmerr.Embeddingf("embedding capability unavailable: %v", err)
	}
	return icmerr.Embeddingf("%v", err)
}
