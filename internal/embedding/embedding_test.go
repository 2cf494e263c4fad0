package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashEmbedderIsDeterministicAndNormalized(t *testing.T) {
	h := NewHashEmbedder()
	ctx := context.Background()

	v1, err := h.Embed(ctx, "goroutines are cheap")
	require.NoError(t, err)
	v2, err := h.Embed(ctx, "goroutines are cheap")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
	assert.Len(t, v1, h.Dimensions())

	var sumSq float64
	for _, f := range v1 {
		sumSq += f * f
	}
	assert.InDelta(t, 1.0, sumSq, 1e-9)
}

func TestHashEmbedderDistinctTextsDiffer(t *testing.T) {
	h := NewHashEmbedder()
	ctx := context.Background()
	v1, _ := h.Embed(ctx, "raft consensus algorithm")
	v2, _ := h.Embed(ctx, "completely different sentence")
	assert.NotEqual(t, v1, v2)
}

type failingEmbedder struct {
	calls int
}

func (f *failingEmbedder) Dimensions() int { return 3 }
func (f *failingEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	f.calls++
	return nil, errors.New("boom")
}
func (f *failingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	f.calls++
	return nil, errors.New("boom")
}

func TestBreakerEmbedderTripsAfterConsecutiveFailures(t *testing.T) {
	inner := &failingEmbedder{}
	b := NewBreakerEmbedder(inner)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := b.Embed(ctx, "x")
		require.Error(t, err)
	}

	callsBeforeOpen := inner.calls
	_, err := b.Embed(ctx, "x")
	require.Error(t, err)
	assert.Equal(t, callsBeforeOpen, inner.calls, "an open breaker must not invoke the wrapped embedder")
}

type passthroughEmbedder struct {
	calls int
}

func (p *passthroughEmbedder) Dimensions() int { return 3 }
func (p *passthroughEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	return []float64{1, 2, 3}, nil
}
func (p *passthroughEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	p.calls++
	return make([][]float64, len(texts)), nil
}

func TestThrottledEmbedderDelegatesEmbedDirectly(t *testing.T) {
	inner := &passthroughEmbedder{}
	th := NewThrottledEmbedder(inner, 100, 10)
	v, err := th.Embed(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, v)
}

func TestThrottledEmbedderDelegatesEmbedBatch(t *testing.T) {
	inner := &passthroughEmbedder{}
	th := NewThrottledEmbedder(inner, 100, 10)
	out, err := th.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Equal(t, 1, inner.calls)
}
