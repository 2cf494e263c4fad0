package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/rtkai/icm/internal/icmerr"
	"github.com/rtkai/icm/internal/ids"
	"github.com/rtkai/icm/internal/storage"
)

// CreateMemoir inserts a new memoir.
func (s *Store) CreateMemoir(ctx context.Context, m *storage.Memoir) (string, error) {
	if m.ID == "" {
		m.ID = ids.New()
	}
	now := time.Now()
	m.CreatedAt, m.UpdatedAt = now, now
	if m.ConsolidationThreshold == 0 {
		m.ConsolidationThreshold = 50
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memoirs (id, name, description, created_at, updated_at, consolidation_threshold)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.Name, m.Description, formatTime(m.CreatedAt), formatTime(m.UpdatedAt), m.ConsolidationThreshold,
	)
	if err != nil {
		return "", icmerr.Databasef("insert memoir: %v", err)
	}
	return m.ID, nil
}

const memoirSelectColumns = `id, name, description, created_at, updated_at, consolidation_threshold`

func scanMemoir(row interface{ Scan(...interface{}) error }) (*storage.Memoir, error) {
	var m storage.Memoir
	var createdAt, updatedAt string
	if err := row.Scan(&m.ID, &m.Name, &m.Description, &createdAt, &updatedAt, &m.ConsolidationThreshold); err != nil {
		return nil, err
	}
	m.CreatedAt = parseTime(createdAt)
	m.UpdatedAt = parseTime(updatedAt)
	return &m, nil
}

// GetMemoir fetches a memoir by id.
func (s *Store) GetMemoir(ctx context.Context, id string) (*storage.Memoir, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+memoirSelectColumns+` FROM memoirs WHERE id = ?`, id)
	m, err := scanMemoir(row)
	if err == sql.ErrNoRows {
		return nil, icmerr.NotFoundf("memoir %s", id)
	}
	if err != nil {
		return nil, icmerr.Databasef("get memoir: %v", err)
	}
	return m, nil
}

// GetMemoirByName fetches a memoir by its unique name.
func (s *Store) GetMemoirByName(ctx context.Context, name string) (*storage.Memoir, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+memoirSelectColumns+` FROM memoirs WHERE name = ?`, name)
	m, err := scanMemoir(row)
	if err == sql.ErrNoRows {
		return nil, icmerr.NotFoundf("memoir %s", name)
	}
	if err != nil {
		return nil, icmerr.Databasef("get memoir by name: %v", err)
	}
	return m, nil
}

// UpdateMemoir overwrites a memoir's mutable fields.
func (s *Store) UpdateMemoir(ctx context.Context, m *storage.Memoir) error {
	m.UpdatedAt = time.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE memoirs SET name = ?, description = ?, updated_at = ?, consolidation_threshold = ?
		WHERE id = ?`,
		m.Name, m.Description, formatTime(m.UpdatedAt), m.ConsolidationThreshold, m.ID,
	)
	if err != nil {
		return icmerr.Databasef("update memoir: %v", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return icmerr.NotFoundf("memoir %s", m.ID)
	}
	return nil
}

// DeleteMemoir removes a memoir and, via ON DELETE CASCADE, every concept
// and link it owns.
func (s *Store) DeleteMemoir(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memoirs WHERE id = ?`, id)
	if err != nil {
		return icmerr.Databasef("delete memoir: %v", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return icmerr.NotFoundf("memoir %s", id)
	}
	return nil
}

// ListMemoirs returns every memoir, ordered by name.
func (s *Store) ListMemoirs(ctx context.Context) ([]storage.Memoir, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+memoirSelectColumns+` FROM memoirs ORDER BY name`)
	if err != nil {
		return nil, icmerr.Databasef("list memoirs: %v", err)
	}
	defer rows.Close()
	var out []storage.Memoir
	for rows.Next() {
		m, err := scanMemoir(rows)
		if err != nil {
			return nil, icmerr.Databasef("scan memoir row: %v", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func labelsJSON(labels []storage.Label) string {
	return marshalJSON(labels)
}

func unmarshalLabels(s string) []storage.Label {
	if s == "" {
		return []storage.Label{}
	}
	var out []storage.Label
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return []storage.Label{}
	}
	if out == nil {
		out = []storage.Label{}
	}
	return out
}

// AddConcept inserts a new concept into a memoir.
func (s *Store) AddConcept(ctx context.Context, c *storage.Concept) (string, error) {
	if c.ID == "" {
		c.ID = ids.New()
	}
	now := time.Now()
	c.CreatedAt, c.UpdatedAt = now, now
	if c.Confidence == 0 {
		c.Confidence = 0.5
	}
	if c.Revision == 0 {
		c.Revision = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO concepts (
			id, memoir_id, name, definition, labels, confidence, revision,
			created_at, updated_at, source_memory_ids
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.MemoirID, c.Name, c.Definition, labelsJSON(c.Labels), c.Confidence, c.Revision,
		formatTime(c.CreatedAt), formatTime(c.UpdatedAt), marshalJSON(c.SourceMemoryIDs),
	)
	if err != nil {
		return "", icmerr.Databasef("insert concept: %v", err)
	}
	return c.ID, nil
}

const conceptSelectColumns = `
	id, memoir_id, name, definition, labels, confidence, revision,
	created_at, updated_at, source_memory_ids`

func scanConcept(row interface{ Scan(...interface{}) error }) (*storage.Concept, error) {
	var (
		c                     storage.Concept
		labels, sourceIDs     string
		createdAt, updatedAt  string
	)
	if err := row.Scan(
		&c.ID, &c.MemoirID, &c.Name, &c.Definition, &labels, &c.Confidence, &c.Revision,
		&createdAt, &updatedAt, &sourceIDs,
	); err != nil {
		return nil, err
	}
	c.Labels = unmarshalLabels(labels)
	c.SourceMemoryIDs = unmarshalStrings(sourceIDs)
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

// GetConcept fetches a concept by id.
func (s *Store) GetConcept(ctx context.Context, id string) (*storage.Concept, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+conceptSelectColumns+` FROM concepts WHERE id = ?`, id)
	c, err := scanConcept(row)
	if err == sql.ErrNoRows {
		return nil, icmerr.NotFoundf("concept %s", id)
	}
	if err != nil {
		return nil, icmerr.Databasef("get concept: %v", err)
	}
	return c, nil
}

// GetConceptByName fetches a concept by its memoir-scoped unique name.
func (s *Store) GetConceptByName(ctx context.Context, memoirID, name string) (*storage.Concept, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+conceptSelectColumns+` FROM concepts WHERE memoir_id = ? AND name = ?`, memoirID, name)
	c, err := scanConcept(row)
	if err == sql.ErrNoRows {
		return nil, icmerr.NotFoundf("concept %s in memoir %s", name, memoirID)
	}
	if err != nil {
		return nil, icmerr.Databasef("get concept by name: %v", err)
	}
	return c, nil
}

// UpdateConcept overwrites a concept's mutable fields.
func (s *Store) UpdateConcept(ctx context.Context, c *storage.Concept) error {
	c.UpdatedAt = time.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE concepts SET
			name = ?, definition = ?, labels = ?, confidence = ?, revision = ?,
			updated_at = ?, source_memory_ids = ?
		WHERE id = ?`,
		c.Name, c.Definition, labelsJSON(c.Labels), c.Confidence, c.Revision,
		formatTime(c.UpdatedAt), marshalJSON(c.SourceMemoryIDs), c.ID,
	)
	if err != nil {
		return icmerr.Databasef("update concept: %v", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return icmerr.NotFoundf("concept %s", c.ID)
	}
	return nil
}

// DeleteConcept removes a concept and, via ON DELETE CASCADE, every link
// touching it.
func (s *Store) DeleteConcept(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM concepts WHERE id = ?`, id)
	if err != nil {
		return icmerr.Databasef("delete concept: %v", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return icmerr.NotFoundf("concept %s", id)
	}
	return nil
}

// ListConcepts returns every concept in a memoir, ordered by name.
func (s *Store) ListConcepts(ctx context.Context, memoirID string) ([]storage.Concept, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+conceptSelectColumns+` FROM concepts WHERE memoir_id = ? ORDER BY name`, memoirID)
	if err != nil {
		return nil, icmerr.Databasef("list concepts: %v", err)
	}
	defer rows.Close()
	var out []storage.Concept
	for rows.Next() {
		c, err := scanConcept(rows)
		if err != nil {
			return nil, icmerr.Databasef("scan concept row: %v", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// RefineConcept merges newSourceIDs into the concept's existing
// source_memory_ids (order-preserving, skipping duplicates), nudges
// confidence toward 1.0 by 0.1, bumps the revision, and replaces the
// definition.
func (s *Store) RefineConcept(ctx context.Context, id, newDefinition string, newSourceIDs []string) (*storage.Concept, error) {
	c, err := s.GetConcept(ctx, id)
	if err != nil {
		return nil, err
	}

	existing := map[string]bool{}
	for _, sid := range c.SourceMemoryIDs {
		existing[sid] = true
	}
	merged := append([]string{}, c.SourceMemoryIDs...)
	for _, sid := range newSourceIDs {
		if !existing[sid] {
			merged = append(merged, sid)
			existing[sid] = true
		}
	}

	c.Definition = newDefinition
	c.SourceMemoryIDs = merged
	c.Confidence = c.Confidence + 0.1
	if c.Confidence > 1.0 {
		c.Confidence = 1.0
	}
	c.Revision++

	if err := s.UpdateConcept(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// SearchConceptsFTS runs a full-text query scoped to a single memoir,
// ordered by confidence.
func (s *Store) SearchConceptsFTS(ctx context.Context, memoirID, query string, limit int) ([]storage.ConceptSearchResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+conceptSelectColumns+` FROM concepts
		WHERE memoir_id = ? AND id IN (
			SELECT c.id FROM concepts c
			JOIN concepts_fts ON concepts_fts.rowid = c.rowid
			WHERE concepts_fts MATCH ?
		)
		ORDER BY confidence DESC LIMIT ?`,
		memoirID, sanitizeFTSQuery(query), limit,
	)
	if err != nil {
		return nil, icmerr.Databasef("search concepts fts: %v", err)
	}
	defer rows.Close()
	return scanConceptSearchResults(rows)
}

// SearchConceptsFTSGlobal runs the same full-text query as SearchConceptsFTS
// but unrestricted by memoir, searching every concept in the store.
func (s *Store) SearchConceptsFTSGlobal(ctx context.Context, query string, limit int) ([]storage.ConceptSearchResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+conceptSelectColumns+` FROM concepts
		WHERE id IN (
			SELECT c.id FROM concepts c
			JOIN concepts_fts ON concepts_fts.rowid = c.rowid
			WHERE concepts_fts MATCH ?
		)
		ORDER BY confidence DESC LIMIT ?`,
		sanitizeFTSQuery(query), limit,
	)
	if err != nil {
		return nil, icmerr.Databasef("search concepts fts global: %v", err)
	}
	defer rows.Close()
	return scanConceptSearchResults(rows)
}

func scanConceptSearchResults(rows *sql.Rows) ([]storage.ConceptSearchResult, error) {
	var out []storage.ConceptSearchResult
	for rows.Next() {
		c, err := scanConcept(rows)
		if err != nil {
			return nil, icmerr.Databasef("scan concept row: %v", err)
		}
		out = append(out, storage.ConceptSearchResult{Concept: *c, Score: c.Confidence})
	}
	return out, rows.Err()
}

// SearchConceptsByLabel returns every concept in a memoir carrying the
// given label, optionally AND-filtered by a case-insensitive substring
// match against name or definition, ordered by descending confidence and
// capped at limit. Labels are matched by unmarshaling the JSON column and
// checking membership in Go, rather than LIKE-matching the serialized
// JSON text, since a substring match over "namespace":"x" can both miss
// and over-match depending on adjacent field values.
func (s *Store) SearchConceptsByLabel(ctx context.Context, memoirID string, label storage.Label, textFilter string, limit int) ([]storage.ConceptSearchResult, error) {
	all, err := s.ListConcepts(ctx, memoirID)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(strings.TrimSpace(textFilter))
	var matched []storage.Concept
	for _, c := range all {
		labeled := false
		for _, l := range c.Labels {
			if l.Namespace == label.Namespace && l.Value == label.Value {
				labeled = true
				break
			}
		}
		if !labeled {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(c.Name), needle) &&
			!strings.Contains(strings.ToLower(c.Definition), needle) {
			continue
		}
		matched = append(matched, c)
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].Confidence > matched[j].Confidence })
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]storage.ConceptSearchResult, len(matched))
	for i, c := range matched {
		out[i] = storage.ConceptSearchResult{Concept: c, Score: c.Confidence}
	}
	return out, nil
}

// AddLink inserts a directed edge between two concepts. The schema rejects
// self-links (CHECK(source_id != target_id)); callers should also reject
// links to a missing endpoint before calling this, since a foreign key
// violation surfaces here only as a generic database error.
func (s *Store) AddLink(ctx context.Context, l *storage.ConceptLink) (string, error) {
	if l.ID == "" {
		l.ID = ids.New()
	}
	l.CreatedAt = time.Now()
	if l.Weight == 0 {
		l.Weight = 1.0
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO concept_links (id, source_id, target_id, relation, weight, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		l.ID, l.SourceID, l.TargetID, string(l.Relation), l.Weight, formatTime(l.CreatedAt),
	)
	if err != nil {
		return "", icmerr.Databasef("insert concept link: %v", err)
	}
	return l.ID, nil
}

const linkSelectColumns = `id, source_id, target_id, relation, weight, created_at`

func scanLink(row interface{ Scan(...interface{}) error }) (*storage.ConceptLink, error) {
	var l storage.ConceptLink
	var relation, createdAt string
	if err := row.Scan(&l.ID, &l.SourceID, &l.TargetID, &relation, &l.Weight, &createdAt); err != nil {
		return nil, err
	}
	l.Relation = storage.Relation(relation)
	l.CreatedAt = parseTime(createdAt)
	return &l, nil
}

// GetLinksFrom returns every link with conceptID as its source.
func (s *Store) GetLinksFrom(ctx context.Context, conceptID string) ([]storage.ConceptLink, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+linkSelectColumns+` FROM concept_links WHERE source_id = ?`, conceptID)
	if err != nil {
		return nil, icmerr.Databasef("get links from: %v", err)
	}
	defer rows.Close()
	return scanLinks(rows)
}

// GetLinksTo returns every link with conceptID as its target.
func (s *Store) GetLinksTo(ctx context.Context, conceptID string) ([]storage.ConceptLink, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+linkSelectColumns+` FROM concept_links WHERE target_id = ?`, conceptID)
	if err != nil {
		return nil, icmerr.Databasef("get links to: %v", err)
	}
	defer rows.Close()
	return scanLinks(rows)
}

func scanLinks(rows *sql.Rows) ([]storage.ConceptLink, error) {
	var out []storage.ConceptLink
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, icmerr.Databasef("scan link row: %v", err)
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

// DeleteLink removes a single link by id.
func (s *Store) DeleteLink(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM concept_links WHERE id = ?`, id)
	if err != nil {
		return icmerr.Databasef("delete link: %v", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return icmerr.NotFoundf("link %s", id)
	}
	return nil
}

// GetNeighbors returns every concept directly connected to conceptID in
// either direction, optionally filtered to a single relation kind.
func (s *Store) GetNeighbors(ctx context.Context, conceptID string, relation *storage.Relation) ([]storage.Concept, error) {
	out, _, err := s.collectNeighbors(ctx, conceptID, relation)
	return out, err
}

func (s *Store) collectNeighbors(ctx context.Context, conceptID string, relation *storage.Relation) ([]storage.Concept, []storage.ConceptLink, error) {
	outgoing, err := s.GetLinksFrom(ctx, conceptID)
	if err != nil {
		return nil, nil, err
	}
	incoming, err := s.GetLinksTo(ctx, conceptID)
	if err != nil {
		return nil, nil, err
	}

	seen := map[string]bool{}
	var concepts []storage.Concept
	var links []storage.ConceptLink
	add := func(link storage.ConceptLink, otherID string) error {
		if relation != nil && link.Relation != *relation {
			return nil
		}
		links = append(links, link)
		if seen[otherID] {
			return nil
		}
		seen[otherID] = true
		c, err := s.GetConcept(ctx, otherID)
		if err != nil {
			return err
		}
		concepts = append(concepts, *c)
		return nil
	}
	for _, l := range outgoing {
		if err := add(l, l.TargetID); err != nil {
			return nil, nil, err
		}
	}
	for _, l := range incoming {
		if err := add(l, l.SourceID); err != nil {
			return nil, nil, err
		}
	}
	return concepts, links, nil
}

// GetNeighborhood performs a breadth-first traversal out to depth hops
// from conceptID, collecting every concept and link encountered. Each
// concept and each link appears at most once in the result, regardless of
// how many traversal paths reach it.
func (s *Store) GetNeighborhood(ctx context.Context, conceptID string, depth int) (*storage.Neighborhood, error) {
	root, err := s.GetConcept(ctx, conceptID)
	if err != nil {
		return nil, err
	}

	type queued struct {
		id    string
		depth int
	}
	visited := map[string]bool{conceptID: true}
	linkSeen := map[string]bool{}
	queue := []queued{{id: conceptID, depth: 0}}
	concepts := []storage.Concept{*root}
	var links []storage.ConceptLink

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= depth {
			continue
		}

		outgoing, err := s.GetLinksFrom(ctx, cur.id)
		if err != nil {
			return nil, err
		}
		incoming, err := s.GetLinksTo(ctx, cur.id)
		if err != nil {
			return nil, err
		}

		expand := func(link storage.ConceptLink, otherID string) error {
			if !linkSeen[link.ID] {
				linkSeen[link.ID] = true
				links = append(links, link)
			}
			if visited[otherID] {
				return nil
			}
			visited[otherID] = true
			c, err := s.GetConcept(ctx, otherID)
			if err != nil {
				return err
			}
			concepts = append(concepts, *c)
			queue = append(queue, queued{id: otherID, depth: cur.depth + 1})
			return nil
		}
		for _, l := range outgoing {
			if err := expand(l, l.TargetID); err != nil {
				return nil, err
			}
		}
		for _, l := range incoming {
			if err := expand(l, l.SourceID); err != nil {
				return nil, err
			}
		}
	}

	return &storage.Neighborhood{Concepts: concepts, Links: links}, nil
}

// MemoirStats summarizes a memoir's concept graph: concept and link
// counts, average confidence, and a label histogram sorted by frequency.
func (s *Store) MemoirStats(ctx context.Context, memoirID string) (*storage.MemoirStats, error) {
	concepts, err := s.ListConcepts(ctx, memoirID)
	if err != nil {
		return nil, err
	}

	var totalLinks int
	var totalConfidence float64
	labelCounts := map[string]int{}
	for _, c := range concepts {
		totalConfidence += c.Confidence
		for _, l := range c.Labels {
			labelCounts[l.String()]++
		}
		links, err := s.GetLinksFrom(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		totalLinks += len(links)
	}

	stats := &storage.MemoirStats{TotalConcepts: len(concepts), TotalLinks: totalLinks}
	if len(concepts) > 0 {
		stats.AvgConfidence = totalConfidence / float64(len(concepts))
	}
	for label, count := range labelCounts {
		stats.LabelCounts = append(stats.LabelCounts, storage.LabelCount{Label: label, Count: count})
	}
	sort.Slice(stats.LabelCounts, func(i, j int) bool {
		return stats.LabelCounts[i].Count > stats.LabelCounts[j].Count
	})
	return stats, nil
}
