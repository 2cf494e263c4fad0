package embedding

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/rtkai/icm/internal/icmerr"
)

// ThrottledEmbedder wraps an Embedder's batch calls with a token-bucket
// rate limiter, so a backfill over a large store does not hammer a slow
// or locally-hosted embedding backend in one burst.
type ThrottledEmbedder struct {
	inner   Embedder
	limiter *rate.Limiter
}

// NewThrottledEmbedder wraps inner with a limiter allowing reqPerSec
// batch calls per second, with the given burst allowance.
func NewThrottledEmbedder(inner Embedder, reqPerSec float64, burst int) *ThrottledEmbedder {
	return &ThrottledEmbedder{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(reqPerSec), burst),
	}
}

// Dimensions delegates to the wrapped embedder.
func (t *ThrottledEmbedder) Dimensions() int {
	return t.inner.Dimensions()
}

// Embed delegates directly; throttling applies to batch calls only, where
// backfill volume actually accumulates.
func (t *ThrottledEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	return t.inner.Embed(ctx, text)
}

// EmbedBatch waits for a limiter token before delegating to the wrapped
// embedder.
func (t *ThrottledEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, icmerr.Embeddingf("rate limit wait: %v", err)
	}
	return t.inner.EmbedBatch(ctx, texts)
}
