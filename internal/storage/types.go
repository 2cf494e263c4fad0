// Package storage defines the memory and concept-graph domain model and the
// store interfaces the sqlite package implements.
package storage

import (
	"context"
	"time"
)

// Importance classifies a memory. Critical memories are exempt from decay
// and pruning; the other three levels decay at the same rate.
type Importance string

const (
	ImportanceCritical Importance = "critical"
	ImportanceHigh     Importance = "high"
	ImportanceMedium   Importance = "medium"
	ImportanceLow      Importance = "low"
)

// SourceKind discriminates the payload carried by a MemorySource.
type SourceKind string

const (
	SourceManual       SourceKind = "manual"
	SourceSession      SourceKind = "session"
	SourceConversation SourceKind = "conversation"
)

// MemorySource records where a memory originated. Exactly the fields
// matching Kind are meaningful; the others are zero-valued.
type MemorySource struct {
	Kind      SourceKind `json:"type"`
	SessionID string     `json:"session_id,omitempty"`
	FilePath  string     `json:"file_path,omitempty"`
	ThreadID  string     `json:"thread_id,omitempty"`
}

// Memory is a single stored fact or excerpt, the unit the memory store
// operates on.
type Memory struct {
	ID           string       `json:"id"`
	CreatedAt    time.Time    `json:"created_at"`
	LastAccessed time.Time    `json:"last_accessed"`
	AccessCount  int          `json:"access_count"`
	Weight       float64      `json:"weight"`
	Topic        string       `json:"topic"`
	Summary      string       `json:"summary"`
	RawExcerpt   *string      `json:"raw_excerpt,omitempty"`
	Keywords     []string     `json:"keywords"`
	Importance   Importance   `json:"importance"`
	Source       MemorySource `json:"source"`
	RelatedIDs   []string     `json:"related_ids"`
	Embedding    []float64    `json:"embedding,omitempty"`
}

// NewMemory builds a Memory with weight 1.0, access_count 0, and a manual
// source unless overridden by the caller. The store writes these fields as
// given on insert and does not fill in defaults for them.
func NewMemory(topic, summary string, importance Importance) *Memory {
	return &Memory{
		Topic:      topic,
		Summary:    summary,
		Importance: importance,
		Weight:     1.0,
		Source:     MemorySource{Kind: SourceManual},
		Keywords:   []string{},
		RelatedIDs: []string{},
	}
}

// StoreStats summarizes the memory store's current contents.
type StoreStats struct {
	TotalMemories int
	TotalTopics   int
	AvgWeight     float64
	OldestMemory  *time.Time
	NewestMemory  *time.Time
}

// TopicCount pairs a topic name with the number of memories filed under it.
type TopicCount struct {
	Topic string
	Count int
}

// SearchResult pairs a Memory with its score under whichever search mode
// produced it (the memory's weight for keyword and FTS search, cosine
// similarity, or RRF).
type SearchResult struct {
	Memory Memory
	Score  float64
}

// MemoryStore is the persistence and search contract for memories.
type MemoryStore interface {
	Store(ctx context.Context, m *Memory) (string, error)
	Get(ctx context.Context, id string) (*Memory, error)
	Update(ctx context.Context, m *Memory) error
	Delete(ctx context.Context, id string) error

	SearchByKeywords(ctx context.Context, keywords []string, limit int) ([]SearchResult, error)
	SearchFTS(ctx context.Context, query string, limit int) ([]SearchResult, error)
	SearchByEmbedding(ctx context.Context, query []float64, limit int) ([]SearchResult, error)
	SearchHybrid(ctx context.Context, query string, queryEmbedding []float64, limit int) ([]SearchResult, error)

	UpdateAccess(ctx context.Context, id string) error
	ApplyDecay(ctx context.Context, factor float64) (int, error)
	Prune(ctx context.Context, threshold float64) (int, error)

	GetByTopic(ctx context.Context, topic string) ([]Memory, error)
	ListTopics(ctx context.Context) ([]TopicCount, error)
	ConsolidateTopic(ctx context.Context, topic string, consolidated *Memory) (string, error)

	Count(ctx context.Context) (int, error)
	Stats(ctx context.Context) (*StoreStats, error)
}

// Label is a namespaced tag attached to a Concept, e.g. "tag:golang" or
// "lang:rust". A bare value defaults to namespace "tag".
type Label struct {
	Namespace string `json:"namespace"`
	Value     string `json:"value"`
}

// String renders the label as "namespace:value".
func (l Label) String() string {
	return l.Namespace + ":" + l.Value
}

// ParseLabel parses "namespace:value", defaulting the namespace to "tag"
// when no colon is present.
func ParseLabel(s string) Label {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return Label{Namespace: s[:i], Value: s[i+1:]}
		}
	}
	return Label{Namespace: "tag", Value: s}
}

// Memoir is a named partition of a concept graph.
type Memoir struct {
	ID                     string    `json:"id"`
	Name                   string    `json:"name"`
	Description            string    `json:"description"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
	ConsolidationThreshold int       `json:"consolidation_threshold"`
}

// NewMemoir builds a Memoir with the default consolidation threshold.
func NewMemoir(name, description string) *Memoir {
	return &Memoir{
		Name:                   name,
		Description:            description,
		ConsolidationThreshold: 50,
	}
}

// Concept is a single node in a memoir's concept graph.
type Concept struct {
	ID              string    `json:"id"`
	MemoirID        string    `json:"memoir_id"`
	Name            string    `json:"name"`
	Definition      string    `json:"definition"`
	Labels          []Label   `json:"labels"`
	Confidence      float64   `json:"confidence"`
	Revision        int       `json:"revision"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	SourceMemoryIDs []string  `json:"source_memory_ids"`
}

// NewConcept builds a Concept with the defaults the store assigns on
// insert: confidence 0.5, revision 1.
func NewConcept(memoirID, name, definition string) *Concept {
	return &Concept{
		MemoirID:        memoirID,
		Name:            name,
		Definition:      definition,
		Confidence:      0.5,
		Revision:        1,
		Labels:          []Label{},
		SourceMemoryIDs: []string{},
	}
}

// Relation is the closed set of directed edge kinds a ConceptLink may carry.
type Relation string

const (
	RelationPartOf         Relation = "part_of"
	RelationDependsOn      Relation = "depends_on"
	RelationRelatedTo      Relation = "related_to"
	RelationContradicts    Relation = "contradicts"
	RelationRefines        Relation = "refines"
	RelationAlternativeTo  Relation = "alternative_to"
	RelationCausedBy       Relation = "caused_by"
	RelationInstanceOf     Relation = "instance_of"
	RelationSupersededBy   Relation = "superseded_by"
)

// Relations lists every valid Relation value, in the order the spec
// enumerates them.
var Relations = []Relation{
	RelationPartOf, RelationDependsOn, RelationRelatedTo, RelationContradicts,
	RelationRefines, RelationAlternativeTo, RelationCausedBy, RelationInstanceOf,
	RelationSupersededBy,
}

// IsValid reports whether r is one of the nine closed relation kinds.
func (r Relation) IsValid() bool {
	for _, v := range Relations {
		if v == r {
			return true
		}
	}
	return false
}

// ConceptLink is a directed, typed edge between two concepts in the same
// memoir.
type ConceptLink struct {
	ID        string    `json:"id"`
	SourceID  string    `json:"source_id"`
	TargetID  string    `json:"target_id"`
	Relation  Relation  `json:"relation"`
	Weight    float64   `json:"weight"`
	CreatedAt time.Time `json:"created_at"`
}

// NewConceptLink builds a ConceptLink with the default weight 1.0.
func NewConceptLink(sourceID, targetID string, relation Relation) *ConceptLink {
	return &ConceptLink{
		SourceID: sourceID,
		TargetID: targetID,
		Relation: relation,
		Weight:   1.0,
	}
}

// MemoirStats summarizes a single memoir's concept graph.
type MemoirStats struct {
	TotalConcepts int
	TotalLinks    int
	AvgConfidence float64
	LabelCounts   []LabelCount
}

// LabelCount pairs a rendered label with how many concepts in the memoir
// carry it.
type LabelCount struct {
	Label string
	Count int
}

// Neighborhood is the result of a bounded breadth-first traversal: every
// concept and link discovered within the requested depth, each appearing
// at most once.
type Neighborhood struct {
	Concepts []Concept
	Links    []ConceptLink
}

// ConceptSearchResult pairs a Concept with its FTS or label-match score.
type ConceptSearchResult struct {
	Concept Concept
	Score   float64
}

// MemoirStore is the persistence and traversal contract for memoirs,
// concepts, and the links between them.
type MemoirStore interface {
	CreateMemoir(ctx context.Context, m *Memoir) (string, error)
	GetMemoir(ctx context.Context, id string) (*Memoir, error)
	GetMemoirByName(ctx context.Context, name string) (*Memoir, error)
	UpdateMemoir(ctx context.Context, m *Memoir) error
	DeleteMemoir(ctx context.Context, id string) error
	ListMemoirs(ctx context.Context) ([]Memoir, error)

	AddConcept(ctx context.Context, c *Concept) (string, error)
	GetConcept(ctx context.Context, id string) (*Concept, error)
	GetConceptByName(ctx context.Context, memoirID, name string) (*Concept, error)
	UpdateConcept(ctx context.Context, c *Concept) error
	DeleteConcept(ctx context.Context, id string) error
	ListConcepts(ctx context.Context, memoirID string) ([]Concept, error)
	RefineConcept(ctx context.Context, id, newDefinition string, newSourceIDs []string) (*Concept, error)

	SearchConceptsFTS(ctx context.Context, memoirID, query string, limit int) ([]ConceptSearchResult, error)
	SearchConceptsFTSGlobal(ctx context.Context, query string, limit int) ([]ConceptSearchResult, error)
	SearchConceptsByLabel(ctx context.Context, memoirID string, label Label, textFilter string, limit int) ([]ConceptSearchResult, error)

	AddLink(ctx context.Context, l *ConceptLink) (string, error)
	GetLinksFrom(ctx context.Context, conceptID string) ([]ConceptLink, error)
	GetLinksTo(ctx context.Context, conceptID string) ([]ConceptLink, error)
	DeleteLink(ctx context.Context, id string) error
	GetNeighbors(ctx context.Context, conceptID string, relation *Relation) ([]Concept, error)
	GetNeighborhood(ctx context.Context, conceptID string, depth int) (*Neighborhood, error)

	MemoirStats(ctx context.Context, memoirID string) (*MemoirStats, error)
}
