package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtkai/icm/internal/icmerr"
	"github.com/rtkai/icm/internal/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreAndGet(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	m := storage.NewMemory("topic-a", "a useful fact", storage.ImportanceMedium)
	id, err := s.Store(ctx, m)
	require.NoError(t, err)
	require.Len(t, id, 26)

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "topic-a", got.Topic)
	assert.Equal(t, "a useful fact", got.Summary)
	assert.Equal(t, 1.0, got.Weight)
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.Get(ctx, "missing-id")
	assert.ErrorIs(t, err, icmerr.ErrNotFound)
}

func TestUpdateAccessIncrementsCount(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	m := storage.NewMemory("t", "s", storage.ImportanceMedium)
	id, err := s.Store(ctx, m)
	require.NoError(t, err)

	require.NoError(t, s.UpdateAccess(ctx, id))
	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AccessCount)
	assert.Equal(t, 1.0, got.Weight, "update_access must not touch weight")
}

func TestApplyDecaySparesCritical(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	criticalID, err := s.Store(ctx, storage.NewMemory("t", "s", storage.ImportanceCritical))
	require.NoError(t, err)
	normalID, err := s.Store(ctx, storage.NewMemory("t", "s", storage.ImportanceMedium))
	require.NoError(t, err)

	n, err := s.ApplyDecay(ctx, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	critical, err := s.Get(ctx, criticalID)
	require.NoError(t, err)
	assert.Equal(t, 1.0, critical.Weight)

	normal, err := s.Get(ctx, normalID)
	require.NoError(t, err)
	assert.Equal(t, 0.5, normal.Weight)
}

func TestPruneRemovesLowWeightNonCritical(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	low := storage.NewMemory("t", "s", storage.ImportanceLow)
	low.Weight = 0.01
	lowID, err := s.Store(ctx, low)
	require.NoError(t, err)

	critical := storage.NewMemory("t", "s", storage.ImportanceCritical)
	critical.Weight = 0.01
	criticalID, err := s.Store(ctx, critical)
	require.NoError(t, err)

	n, err := s.Prune(ctx, 0.05)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.Get(ctx, lowID)
	assert.ErrorIs(t, err, icmerr.ErrNotFound)

	_, err = s.Get(ctx, criticalID)
	assert.NoError(t, err)
}

func TestSearchFTSFindsMatchingSummary(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.Store(ctx, storage.NewMemory("t", "the replication algorithm uses raft consensus", storage.ImportanceMedium))
	require.NoError(t, err)
	_, err = s.Store(ctx, storage.NewMemory("t", "completely unrelated content", storage.ImportanceMedium))
	require.NoError(t, err)

	results, err := s.SearchFTS(ctx, "raft", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Memory.Summary, "raft")
}

func TestConsolidateTopicReplacesMemories(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.Store(ctx, storage.NewMemory("proj", "fact one", storage.ImportanceMedium))
	require.NoError(t, err)
	_, err = s.Store(ctx, storage.NewMemory("proj", "fact two", storage.ImportanceMedium))
	require.NoError(t, err)

	consolidated := storage.NewMemory("proj", "consolidated summary", storage.ImportanceHigh)
	id, err := s.ConsolidateTopic(ctx, "proj", consolidated)
	require.NoError(t, err)

	remaining, err := s.GetByTopic(ctx, "proj")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, id, remaining[0].ID)
	assert.Equal(t, "consolidated summary", remaining[0].Summary)
}

func TestListTopicsGroupsByTopic(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.Store(ctx, storage.NewMemory("a", "x", storage.ImportanceMedium))
	require.NoError(t, err)
	_, err = s.Store(ctx, storage.NewMemory("a", "y", storage.ImportanceMedium))
	require.NoError(t, err)
	_, err = s.Store(ctx, storage.NewMemory("b", "z", storage.ImportanceMedium))
	require.NoError(t, err)

	topics, err := s.ListTopics(ctx)
	require.NoError(t, err)
	require.Len(t, topics, 2)
	assert.Equal(t, "a", topics[0].Topic)
	assert.Equal(t, 2, topics[0].Count)
	assert.Equal(t, "b", topics[1].Topic)
	assert.Equal(t, 1, topics[1].Count)
}

func TestSearchByEmbeddingRanksByCosineSimilarity(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	near := storage.NewMemory("t", "close", storage.ImportanceMedium)
	near.Embedding = []float64{1, 0, 0}
	closeID, err := s.Store(ctx, near)
	require.NoError(t, err)

	far := storage.NewMemory("t", "far", storage.ImportanceMedium)
	far.Embedding = []float64{0, 1, 0}
	_, err = s.Store(ctx, far)
	require.NoError(t, err)

	results, err := s.SearchByEmbedding(ctx, []float64{1, 0, 0}, 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, closeID, results[0].Memory.ID)
}

func TestDeleteMissingReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	err := s.Delete(ctx, "missing")
	assert.ErrorIs(t, err, icmerr.ErrNotFound)
}
