package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractFactsFindsAlgorithm(t *testing.T) {
	text := "The replication algorithm implements a consensus protocol with O(n log n) complexity for fault tolerance across the cluster."
	facts := ExtractFacts("acme", text)
	require.NotEmpty(t, facts)
	assert.Equal(t, "high", facts[0].Importance)
	assert.Equal(t, "context-acme", facts[0].Topic)
}

func TestExtractFactsSkipsShort(t *testing.T) {
	facts := ExtractFacts("acme", "Yes. No. Maybe so.")
	assert.Empty(t, facts)
}

func TestExtractFactsCapsAtTwenty(t *testing.T) {
	var sb []byte
	for i := 0; i < 40; i++ {
		sb = append(sb, []byte("The architecture implements a distinct pipeline component design number ")...)
		sb = append(sb, byte('0'+(i%10)))
		sb = append(sb, '.')
	}
	facts := ExtractFacts("acme", string(sb))
	assert.LessOrEqual(t, len(facts), finalCap)
}

func TestJaccardSimilar(t *testing.T) {
	a := "the quick brown fox jumps over the lazy dog"
	b := "the quick brown fox jumps over the lazy cat"
	assert.True(t, jaccardSimilar(a, b))

	c := "completely unrelated sentence about databases and caches"
	assert.False(t, jaccardSimilar(a, c))
}

func TestSplitSentences(t *testing.T) {
	sentences := SplitSentences("This is a reasonably long first sentence.\nShort.\nThis is a reasonably long second sentence.")
	assert.Len(t, sentences, 2)
}
