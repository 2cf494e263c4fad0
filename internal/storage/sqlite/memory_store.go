package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rtkai/icm/internal/icmerr"
	"github.com/rtkai/icm/internal/ids"
	"github.com/rtkai/icm/internal/storage"
)

// decayStaleAfter is how long the store lets its own weight figures drift
// before the next retrieval triggers an advisory decay pass.
const decayStaleAfter = 24 * time.Hour

// decayDefaultFactor is applied by the advisory decay check; explicit
// ApplyDecay calls may use any factor the caller chooses.
const decayDefaultFactor = 0.95

func sourceData(s storage.MemorySource) (string, error) {
	switch s.Kind {
	case storage.SourceSession:
		b, err := json.Marshal(struct {
			SessionID string `json:"session_id"`
			FilePath  string `json:"file_path,omitempty"`
		}{s.SessionID, s.FilePath})
		return string(b), err
	case storage.SourceConversation:
		b, err := json.Marshal(struct {
			ThreadID string `json:"thread_id"`
		}{s.ThreadID})
		return string(b), err
	default:
		return "", nil
	}
}

func parseSource(sourceType, sourceData string) storage.MemorySource {
	src := storage.MemorySource{Kind: storage.SourceKind(sourceType)}
	if sourceData == "" {
		return src
	}
	switch src.Kind {
	case storage.SourceSession:
		var payload struct {
			SessionID string `json:"session_id"`
			FilePath  string `json:"file_path"`
		}
		if json.Unmarshal([]byte(sourceData), &payload) == nil {
			src.SessionID = payload.SessionID
			src.FilePath = payload.FilePath
		}
	case storage.SourceConversation:
		var payload struct {
			ThreadID string `json:"thread_id"`
		}
		if json.Unmarshal([]byte(sourceData), &payload) == nil {
			src.ThreadID = payload.ThreadID
		}
	}
	return src
}

// Store inserts a new memory, assigning it a fresh monotonic id.
func (s *Store) Store(ctx context.Context, m *storage.Memory) (string, error) {
	if m.ID == "" {
		m.ID = ids.New()
	}
	now := time.Now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	if m.LastAccessed.IsZero() {
		m.LastAccessed = now
	}

	sd, err := sourceData(m.Source)
	if err != nil {
		return "", icmerr.Serializationf("encode source data: %v", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memories (
			id, created_at, last_accessed, access_count, weight,
			topic, summary, raw_excerpt, keywords,
			importance, source_type, source_data, related_ids, embedding
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, formatTime(m.CreatedAt), formatTime(m.LastAccessed), m.AccessCount, m.Weight,
		m.Topic, m.Summary, m.RawExcerpt, marshalJSON(m.Keywords),
		string(m.Importance), string(m.Source.Kind), nullable(sd), marshalJSON(m.RelatedIDs),
		embeddingOrNil(m.Embedding),
	)
	if err != nil {
		return "", icmerr.Databasef("insert memory: %v", err)
	}
	return m.ID, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func embeddingOrNil(v []float64) interface{} {
	if len(v) == 0 {
		return nil
	}
	return serializeEmbedding(v)
}

const memorySelectColumns = `
	id, created_at, last_accessed, access_count, weight,
	topic, summary, raw_excerpt, keywords,
	importance, source_type, source_data, related_ids, embedding`

func scanMemory(row interface{ Scan(...interface{}) error }) (*storage.Memory, error) {
	var (
		m                      storage.Memory
		createdAt, lastAccess  string
		importance, sourceType string
		sourceData             sql.NullString
		rawExcerpt             sql.NullString
		keywords, relatedIDs   string
		embedding              []byte
	)
	if err := row.Scan(
		&m.ID, &createdAt, &lastAccess, &m.AccessCount, &m.Weight,
		&m.Topic, &m.Summary, &rawExcerpt, &keywords,
		&importance, &sourceType, &sourceData, &relatedIDs, &embedding,
	); err != nil {
		return nil, err
	}
	m.CreatedAt = parseTime(createdAt)
	m.LastAccessed = parseTime(lastAccess)
	m.Importance = storage.Importance(importance)
	m.Source = parseSource(sourceType, sourceData.String)
	m.Keywords = unmarshalStrings(keywords)
	m.RelatedIDs = unmarshalStrings(relatedIDs)
	m.Embedding = deserializeEmbedding(embedding)
	if rawExcerpt.Valid {
		m.RawExcerpt = &rawExcerpt.String
	}
	return &m, nil
}

// Get fetches a single memory by id.
func (s *Store) Get(ctx context.Context, id string) (*storage.Memory, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+memorySelectColumns+` FROM memories WHERE id = ?`, id)
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, icmerr.NotFoundf("memory %s", id)
	}
	if err != nil {
		return nil, icmerr.Databasef("get memory: %v", err)
	}
	return m, nil
}

// Update overwrites the mutable fields of an existing memory. The id and
// created_at are immutable.
func (s *Store) Update(ctx context.Context, m *storage.Memory) error {
	sd, err := sourceData(m.Source)
	if err != nil {
		return icmerr.Serializationf("encode source data: %v", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE memories SET
			last_accessed = ?, access_count = ?, weight = ?,
			topic = ?, summary = ?, raw_excerpt = ?, keywords = ?,
			importance = ?, source_type = ?, source_data = ?, related_ids = ?,
			embedding = ?
		WHERE id = ?`,
		formatTime(m.LastAccessed), m.AccessCount, m.Weight,
		m.Topic, m.Summary, m.RawExcerpt, marshalJSON(m.Keywords),
		string(m.Importance), string(m.Source.Kind), nullable(sd), marshalJSON(m.RelatedIDs),
		embeddingOrNil(m.Embedding),
		m.ID,
	)
	if err != nil {
		return icmerr.Databasef("update memory: %v", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return icmerr.NotFoundf("memory %s", m.ID)
	}
	return nil
}

// Delete hard-deletes a memory by id.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return icmerr.Databasef("delete memory: %v", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return icmerr.NotFoundf("memory %s", id)
	}
	return nil
}

// SearchByKeywords matches any of the given keywords against the keywords,
// summary, and topic columns, most-heavily-weighted first.
func (s *Store) SearchByKeywords(ctx context.Context, keywords []string, limit int) ([]storage.SearchResult, error) {
	s.maybeAutoDecay(ctx)

	if len(keywords) == 0 {
		return nil, nil
	}
	where := ""
	args := make([]interface{}, 0, len(keywords)*3)
	for i, kw := range keywords {
		if i > 0 {
			where += " OR "
		}
		pattern := "%" + kw + "%"
		where += "(keywords LIKE ? OR summary LIKE ? OR topic LIKE ?)"
		args = append(args, pattern, pattern, pattern)
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, `SELECT `+memorySelectColumns+` FROM memories WHERE `+where+` ORDER BY weight DESC LIMIT ?`, args...)
	if err != nil {
		return nil, icmerr.Databasef("search by keywords: %v", err)
	}
	defer rows.Close()
	return scanSearchResults(rows, func(m storage.Memory) float64 { return m.Weight })
}

func scanSearchResults(rows *sql.Rows, score func(storage.Memory) float64) ([]storage.SearchResult, error) {
	var out []storage.SearchResult
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, icmerr.Databasef("scan memory row: %v", err)
		}
		out = append(out, storage.SearchResult{Memory: *m, Score: score(*m)})
	}
	if err := rows.Err(); err != nil {
		return nil, icmerr.Databasef("iterate memory rows: %v", err)
	}
	return out, nil
}

// SearchFTS runs a full-text query against the memories_fts shadow table.
func (s *Store) SearchFTS(ctx context.Context, query string, limit int) ([]storage.SearchResult, error) {
	s.maybeAutoDecay(ctx)

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+memorySelectColumns+` FROM memories
		WHERE id IN (
			SELECT m.id FROM memories m
			JOIN memories_fts ON memories_fts.rowid = m.rowid
			WHERE memories_fts MATCH ?
		)
		ORDER BY weight DESC LIMIT ?`,
		sanitizeFTSQuery(query), limit,
	)
	if err != nil {
		return nil, icmerr.Databasef("search fts: %v", err)
	}
	defer rows.Close()
	return scanSearchResults(rows, func(m storage.Memory) float64 { return m.Weight })
}

// SearchByEmbedding scores every memory with a stored embedding by cosine
// similarity against the query vector and returns the top `limit`.
func (s *Store) SearchByEmbedding(ctx context.Context, query []float64, limit int) ([]storage.SearchResult, error) {
	s.maybeAutoDecay(ctx)

	rows, err := s.db.QueryContext(ctx, `SELECT `+memorySelectColumns+` FROM memories WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, icmerr.Databasef("search by embedding: %v", err)
	}
	defer rows.Close()

	var scored []storage.SearchResult
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, icmerr.Databasef("scan memory row: %v", err)
		}
		scored = append(scored, storage.SearchResult{Memory: *m, Score: cosineSimilarity(query, m.Embedding)})
	}
	if err := rows.Err(); err != nil {
		return nil, icmerr.Databasef("iterate memory rows: %v", err)
	}

	sortByScoreDesc(scored)
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

func sortByScoreDesc(r []storage.SearchResult) {
	for i := 1; i < len(r); i++ {
		for j := i; j > 0 && r[j].Score > r[j-1].Score; j-- {
			r[j], r[j-1] = r[j-1], r[j]
		}
	}
}

// rrfK is the reciprocal-rank-fusion smoothing constant.
const rrfK = 60

// SearchHybrid blends lexical and vector search via reciprocal rank
// fusion: each result's contribution is 1/(rrfK + rank + 1), summed across
// both ranked lists, ties broken by weight.
func (s *Store) SearchHybrid(ctx context.Context, query string, queryEmbedding []float64, limit int) ([]storage.SearchResult, error) {
	candidates := limit * 2
	if candidates < 10 {
		candidates = 10
	}

	lexical, err := s.SearchFTS(ctx, query, candidates)
	if err != nil {
		return nil, err
	}
	var vector []storage.SearchResult
	if len(queryEmbedding) > 0 {
		vector, err = s.SearchByEmbedding(ctx, queryEmbedding, candidates)
		if err != nil {
			return nil, err
		}
	}

	type fused struct {
		memory storage.Memory
		score  float64
	}
	byID := map[string]*fused{}
	order := []string{}
	add := func(list []storage.SearchResult) {
		for rank, r := range list {
			f, ok := byID[r.Memory.ID]
			if !ok {
				f = &fused{memory: r.Memory}
				byID[r.Memory.ID] = f
				order = append(order, r.Memory.ID)
			}
			f.score += 1.0 / float64(rrfK+rank+1)
		}
	}
	add(lexical)
	add(vector)

	out := make([]storage.SearchResult, 0, len(order))
	for _, id := range order {
		f := byID[id]
		out = append(out, storage.SearchResult{Memory: f.memory, Score: f.score})
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0; j-- {
			a, b := out[j], out[j-1]
			if a.Score > b.Score || (a.Score == b.Score && a.Memory.Weight > b.Memory.Weight) {
				out[j], out[j-1] = out[j-1], out[j]
				continue
			}
			break
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpdateAccess bumps last_accessed and access_count. It does not touch
// weight.
func (s *Store) UpdateAccess(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE memories SET last_accessed = ?, access_count = access_count + 1 WHERE id = ?`,
		formatTime(time.Now()), id,
	)
	if err != nil {
		return icmerr.Databasef("update access: %v", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return icmerr.NotFoundf("memory %s", id)
	}
	return nil
}

// ApplyDecay multiplies every non-critical memory's weight by factor and
// returns the number of rows changed.
func (s *Store) ApplyDecay(ctx context.Context, factor float64) (int, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE memories SET weight = weight * ? WHERE importance != ?`, factor, string(storage.ImportanceCritical))
	if err != nil {
		return 0, icmerr.Databasef("apply decay: %v", err)
	}
	n, _ := res.RowsAffected()
	s.recordDecay(ctx)
	return int(n), nil
}

// Prune deletes every non-critical memory whose weight has fallen below
// threshold and returns the number of rows removed.
func (s *Store) Prune(ctx context.Context, threshold float64) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE weight < ? AND importance != ?`, threshold, string(storage.ImportanceCritical))
	if err != nil {
		return 0, icmerr.Databasef("prune: %v", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// GetByTopic returns every memory filed under topic, most-weighted first.
func (s *Store) GetByTopic(ctx context.Context, topic string) ([]storage.Memory, error) {
	s.maybeAutoDecay(ctx)

	rows, err := s.db.QueryContext(ctx, `SELECT `+memorySelectColumns+` FROM memories WHERE topic = ? ORDER BY weight DESC`, topic)
	if err != nil {
		return nil, icmerr.Databasef("get by topic: %v", err)
	}
	defer rows.Close()
	var out []storage.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, icmerr.Databasef("scan memory row: %v", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// ListTopics returns every distinct topic with its memory count.
func (s *Store) ListTopics(ctx context.Context) ([]storage.TopicCount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT topic, COUNT(*) FROM memories GROUP BY topic ORDER BY topic`)
	if err != nil {
		return nil, icmerr.Databasef("list topics: %v", err)
	}
	defer rows.Close()
	var out []storage.TopicCount
	for rows.Next() {
		var tc storage.TopicCount
		if err := rows.Scan(&tc.Topic, &tc.Count); err != nil {
			return nil, icmerr.Databasef("scan topic row: %v", err)
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

// ConsolidateTopic atomically replaces every memory under topic with a
// single consolidated memory.
func (s *Store) ConsolidateTopic(ctx context.Context, topic string, consolidated *storage.Memory) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", icmerr.Databasef("begin consolidate transaction: %v", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE topic = ?`, topic); err != nil {
		return "", icmerr.Databasef("delete existing topic memories: %v", err)
	}

	if consolidated.ID == "" {
		consolidated.ID = ids.New()
	}
	now := time.Now()
	if consolidated.CreatedAt.IsZero() {
		consolidated.CreatedAt = now
	}
	if consolidated.LastAccessed.IsZero() {
		consolidated.LastAccessed = now
	}
	sd, err := sourceData(consolidated.Source)
	if err != nil {
		return "", icmerr.Serializationf("encode source data: %v", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO memories (
			id, created_at, last_accessed, access_count, weight,
			topic, summary, raw_excerpt, keywords,
			importance, source_type, source_data, related_ids, embedding
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		consolidated.ID, formatTime(consolidated.CreatedAt), formatTime(consolidated.LastAccessed),
		consolidated.AccessCount, consolidated.Weight,
		consolidated.Topic, consolidated.Summary, consolidated.RawExcerpt, marshalJSON(consolidated.Keywords),
		string(consolidated.Importance), string(consolidated.Source.Kind), nullable(sd), marshalJSON(consolidated.RelatedIDs),
		embeddingOrNil(consolidated.Embedding),
	)
	if err != nil {
		return "", icmerr.Databasef("insert consolidated memory: %v", err)
	}

	if err := tx.Commit(); err != nil {
		return "", icmerr.Databasef("commit consolidate transaction: %v", err)
	}
	return consolidated.ID, nil
}

// Count returns the total number of stored memories.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&n)
	if err != nil {
		return 0, icmerr.Databasef("count memories: %v", err)
	}
	return n, nil
}

// Stats summarizes the store's current contents.
func (s *Store) Stats(ctx context.Context) (*storage.StoreStats, error) {
	var stats storage.StoreStats
	var avgWeight sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*), AVG(weight) FROM memories`).Scan(&stats.TotalMemories, &avgWeight)
	if err != nil {
		return nil, icmerr.Databasef("compute memory stats: %v", err)
	}
	stats.AvgWeight = avgWeight.Float64

	var topics int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT topic) FROM memories`).Scan(&topics); err != nil {
		return nil, icmerr.Databasef("count topics: %v", err)
	}
	stats.TotalTopics = topics

	var oldest, newest sql.NullString
	err = s.db.QueryRowContext(ctx, `SELECT MIN(created_at), MAX(created_at) FROM memories`).Scan(&oldest, &newest)
	if err != nil {
		return nil, icmerr.Databasef("compute memory time range: %v", err)
	}
	if oldest.Valid {
		t := parseTime(oldest.String)
		stats.OldestMemory = &t
	}
	if newest.Valid {
		t := parseTime(newest.String)
		stats.NewestMemory = &t
	}
	return &stats, nil
}

// maybeAutoDecay applies one advisory decay pass if more than
// decayStaleAfter has elapsed since the last recorded decay. Failures are
// swallowed: auto-decay is an optimization, never a precondition for a
// read to succeed.
func (s *Store) maybeAutoDecay(ctx context.Context) {
	var lastDecay sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT last_decay_at FROM decay_state WHERE id = 1`).Scan(&lastDecay)
	if err != nil && err != sql.ErrNoRows {
		return
	}
	if err == nil && lastDecay.Valid {
		if time.Since(parseTime(lastDecay.String)) < decayStaleAfter {
			return
		}
	}
	_, _ = s.ApplyDecay(ctx, decayDefaultFactor)
}

func (s *Store) recordDecay(ctx context.Context) {
	_, _ = s.db.ExecContext(ctx, `
		INSERT INTO decay_state (id, last_decay_at) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET last_decay_at = excluded.last_decay_at`,
		formatTime(time.Now()),
	)
}
