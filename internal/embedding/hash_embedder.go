package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// defaultDimensions is the vector width produced by HashEmbedder.
const defaultDimensions = 384

// HashEmbedder is a deterministic, dependency-free Embedder: it buckets
// hashed lowercase tokens into a fixed-width vector and L2-normalizes the
// result. It exists so the module is runnable without any external model
// configured; it makes no quality claim and is meant to be replaced by a
// real model-backed Embedder in deployment.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder returns a HashEmbedder with the default 384-dimension
// vector width.
func NewHashEmbedder() *HashEmbedder {
	return &HashEmbedder{dimensions: defaultDimensions}
}

// Dimensions returns the vector width this embedder produces.
func (h *HashEmbedder) Dimensions() int {
	return h.dimensions
}

// Embed hashes each lowercase token of text into a bucket of the output
// vector, then L2-normalizes it.
func (h *HashEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	vec := make([]float64, h.dimensions)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		hasher := fnv.New32a()
		_, _ = hasher.Write([]byte(tok))
		bucket := int(hasher.Sum32()) % h.dimensions
		if bucket < 0 {
			bucket += h.dimensions
		}
		vec[bucket]++
	}
	normalize(vec)
	return vec, nil
}

// EmbedBatch embeds each text independently.
func (h *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v, err := h.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func normalize(v []float64) {
	var sumSq float64
	for _, f := range v {
		sumSq += f * f
	}
	if sumSq == 0 {
		return
	}
	norm := math.Sqrt(sumSq)
	for i := range v {
		v[i] /= norm
	}
}
