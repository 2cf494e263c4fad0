package ids

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewLength(t *testing.T) {
	id := New()
	assert.Len(t, id, 26)
}

func TestNewMonotonicWithinMillisecond(t *testing.T) {
	t1 := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a := NewAt(t1)
	b := NewAt(t1)
	assert.NotEqual(t, a, b)
	assert.True(t, a < b, "ids minted in the same millisecond must sort increasingly")
}

func TestNewAlphabet(t *testing.T) {
	id := New()
	for _, c := range id {
		assert.Contains(t, crockford, string(c))
	}
}
