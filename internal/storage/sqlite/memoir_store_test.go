package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtkai/icm/internal/storage"
)

func seedMemoir(t *testing.T, s *Store) string {
	t.Helper()
	ctx := context.Background()
	id, err := s.CreateMemoir(ctx, storage.NewMemoir("test-memoir", "a test memoir"))
	require.NoError(t, err)
	return id
}

func TestCreateAndGetMemoir(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	id := seedMemoir(t, s)

	got, err := s.GetMemoir(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "test-memoir", got.Name)

	byName, err := s.GetMemoirByName(ctx, "test-memoir")
	require.NoError(t, err)
	assert.Equal(t, id, byName.ID)
}

func TestAddConceptAndRefineTwice(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	memoirID := seedMemoir(t, s)

	c := storage.NewConcept(memoirID, "raft", "a consensus algorithm")
	c.SourceMemoryIDs = []string{"mem-1"}
	id, err := s.AddConcept(ctx, c)
	require.NoError(t, err)

	refined, err := s.RefineConcept(ctx, id, "a consensus algorithm for replicated logs", []string{"mem-1", "mem-2"})
	require.NoError(t, err)
	assert.Equal(t, 2, refined.Revision)
	assert.InDelta(t, 0.6, refined.Confidence, 1e-9)
	assert.Equal(t, []string{"mem-1", "mem-2"}, refined.SourceMemoryIDs)

	refinedAgain, err := s.RefineConcept(ctx, id, "a consensus algorithm for replicated logs, refined", []string{"mem-2", "mem-3"})
	require.NoError(t, err)
	assert.Equal(t, 3, refinedAgain.Revision)
	assert.InDelta(t, 0.7, refinedAgain.Confidence, 1e-9)
	assert.Equal(t, []string{"mem-1", "mem-2", "mem-3"}, refinedAgain.SourceMemoryIDs)
}

func TestNeighborhoodBFSDedupesLinks(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	memoirID := seedMemoir(t, s)

	aID, err := s.AddConcept(ctx, storage.NewConcept(memoirID, "a", "concept a"))
	require.NoError(t, err)
	bID, err := s.AddConcept(ctx, storage.NewConcept(memoirID, "b", "concept b"))
	require.NoError(t, err)
	cID, err := s.AddConcept(ctx, storage.NewConcept(memoirID, "c", "concept c"))
	require.NoError(t, err)
	dID, err := s.AddConcept(ctx, storage.NewConcept(memoirID, "d", "concept d"))
	require.NoError(t, err)

	_, err = s.AddLink(ctx, storage.NewConceptLink(aID, bID, storage.RelationDependsOn))
	require.NoError(t, err)
	_, err = s.AddLink(ctx, storage.NewConceptLink(bID, cID, storage.RelationDependsOn))
	require.NoError(t, err)
	_, err = s.AddLink(ctx, storage.NewConceptLink(cID, dID, storage.RelationDependsOn))
	require.NoError(t, err)
	// extra edge back into the already-visited set, must not duplicate.
	_, err = s.AddLink(ctx, storage.NewConceptLink(aID, cID, storage.RelationRelatedTo))
	require.NoError(t, err)

	n, err := s.GetNeighborhood(ctx, aID, 3)
	require.NoError(t, err)

	assert.Len(t, n.Concepts, 4)
	assert.Len(t, n.Links, 4)
}

func TestSearchConceptsByLabel(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	memoirID := seedMemoir(t, s)

	tagged := storage.NewConcept(memoirID, "raft", "consensus")
	tagged.Labels = []storage.Label{{Namespace: "tag", Value: "distributed-systems"}}
	_, err := s.AddConcept(ctx, tagged)
	require.NoError(t, err)

	untagged := storage.NewConcept(memoirID, "http", "a protocol")
	_, err = s.AddConcept(ctx, untagged)
	require.NoError(t, err)

	results, err := s.SearchConceptsByLabel(ctx, memoirID, storage.Label{Namespace: "tag", Value: "distributed-systems"}, "", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "raft", results[0].Concept.Name)
}

func TestSearchConceptsByLabelOrdersByConfidenceAndRespectsLimitAndTextFilter(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	memoirID := seedMemoir(t, s)

	low := storage.NewConcept(memoirID, "paxos", "a consensus protocol")
	low.Labels = []storage.Label{{Namespace: "tag", Value: "distributed-systems"}}
	low.Confidence = 0.2
	_, err := s.AddConcept(ctx, low)
	require.NoError(t, err)

	high := storage.NewConcept(memoirID, "raft", "a consensus algorithm for replicated logs")
	high.Labels = []storage.Label{{Namespace: "tag", Value: "distributed-systems"}}
	high.Confidence = 0.9
	_, err = s.AddConcept(ctx, high)
	require.NoError(t, err)

	results, err := s.SearchConceptsByLabel(ctx, memoirID, storage.Label{Namespace: "tag", Value: "distributed-systems"}, "", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "raft", results[0].Concept.Name, "higher confidence must sort first")
	assert.Equal(t, "paxos", results[1].Concept.Name)

	limited, err := s.SearchConceptsByLabel(ctx, memoirID, storage.Label{Namespace: "tag", Value: "distributed-systems"}, "", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "raft", limited[0].Concept.Name)

	filtered, err := s.SearchConceptsByLabel(ctx, memoirID, storage.Label{Namespace: "tag", Value: "distributed-systems"}, "replicated", 10)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "raft", filtered[0].Concept.Name)
}

func TestSearchConceptsFTSGlobalSearchesAcrossMemoirs(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	memoirAID := seedMemoir(t, s)
	memoirBID, err := s.CreateMemoir(ctx, storage.NewMemoir("other-memoir", "a second memoir"))
	require.NoError(t, err)

	_, err = s.AddConcept(ctx, storage.NewConcept(memoirAID, "raft", "a consensus algorithm"))
	require.NoError(t, err)
	_, err = s.AddConcept(ctx, storage.NewConcept(memoirBID, "paxos", "another consensus algorithm"))
	require.NoError(t, err)

	results, err := s.SearchConceptsFTSGlobal(ctx, "consensus", 10)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestDeleteMemoirCascadesConcepts(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	memoirID := seedMemoir(t, s)

	conceptID, err := s.AddConcept(ctx, storage.NewConcept(memoirID, "a", "concept a"))
	require.NoError(t, err)

	require.NoError(t, s.DeleteMemoir(ctx, memoirID))

	_, err = s.GetConcept(ctx, conceptID)
	assert.Error(t, err)
}

func TestMemoirStats(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	memoirID := seedMemoir(t, s)

	aID, err := s.AddConcept(ctx, storage.NewConcept(memoirID, "a", "concept a"))
	require.NoError(t, err)
	bID, err := s.AddConcept(ctx, storage.NewConcept(memoirID, "b", "concept b"))
	require.NoError(t, err)
	_, err = s.AddLink(ctx, storage.NewConceptLink(aID, bID, storage.RelationRelatedTo))
	require.NoError(t, err)

	stats, err := s.MemoirStats(ctx, memoirID)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalConcepts)
	assert.Equal(t, 1, stats.TotalLinks)
	assert.InDelta(t, 0.5, stats.AvgConfidence, 1e-9)
}
