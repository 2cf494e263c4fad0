package sqlite

import (
	"database/sql"
	"fmt"
)

// baseSchema creates every regular table and index this store needs if
// they are not already present. It is safe to run against an
// already-initialized database; every statement is guarded. The FTS5
// tables and their triggers are created separately by initSchema.
const baseSchema = `
CREATE TABLE IF NOT EXISTS memories (
	id TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	last_accessed TEXT NOT NULL,
	access_count INTEGER NOT NULL DEFAULT 0,
	weight REAL NOT NULL DEFAULT 1.0,
	topic TEXT NOT NULL,
	summary TEXT NOT NULL,
	raw_excerpt TEXT,
	keywords TEXT NOT NULL DEFAULT '[]',
	importance TEXT NOT NULL,
	source_type TEXT NOT NULL,
	source_data TEXT,
	related_ids TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_memories_topic ON memories(topic);
CREATE INDEX IF NOT EXISTS idx_memories_weight ON memories(weight);
CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(created_at);

CREATE TABLE IF NOT EXISTS decay_state (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	last_decay_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS memoirs (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	description TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	consolidation_threshold INTEGER NOT NULL DEFAULT 50
);

CREATE TABLE IF NOT EXISTS concepts (
	id TEXT PRIMARY KEY,
	memoir_id TEXT NOT NULL REFERENCES memoirs(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	definition TEXT NOT NULL,
	labels TEXT NOT NULL DEFAULT '[]',
	confidence REAL NOT NULL DEFAULT 0.5,
	revision INTEGER NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	source_memory_ids TEXT NOT NULL DEFAULT '[]',
	UNIQUE(memoir_id, name)
);
CREATE INDEX IF NOT EXISTS idx_concepts_memoir ON concepts(memoir_id);
CREATE INDEX IF NOT EXISTS idx_concepts_name ON concepts(name);
CREATE INDEX IF NOT EXISTS idx_concepts_confidence ON concepts(confidence);

CREATE TABLE IF NOT EXISTS concept_links (
	id TEXT PRIMARY KEY,
	source_id TEXT NOT NULL REFERENCES concepts(id) ON DELETE CASCADE,
	target_id TEXT NOT NULL REFERENCES concepts(id) ON DELETE CASCADE,
	relation TEXT NOT NULL,
	weight REAL NOT NULL DEFAULT 1.0,
	created_at TEXT NOT NULL,
	UNIQUE(source_id, target_id, relation),
	CHECK(source_id != target_id)
);
CREATE INDEX IF NOT EXISTS idx_links_source ON concept_links(source_id);
CREATE INDEX IF NOT EXISTS idx_links_target ON concept_links(target_id);
`

// initSchema runs the base schema, then applies the additive migrations
// (the embedding column and the FTS5 shadow tables) only if they are
// missing, following the pragma_table_info / sqlite_master existence-check
// idiom rather than a destructive rebuild.
func initSchema(db *sql.DB) error {
	if _, err := db.Exec(baseSchema); err != nil {
		return fmt.Errorf("apply base schema: %w", err)
	}
	if err := addEmbeddingColumn(db); err != nil {
		return fmt.Errorf("add embedding column: %w", err)
	}
	if err := createMemoriesFTS(db); err != nil {
		return fmt.Errorf("create memories fts: %w", err)
	}
	if err := createConceptsFTS(db); err != nil {
		return fmt.Errorf("create concepts fts: %w", err)
	}
	return nil
}

func hasColumn(db *sql.DB, table, column string) (bool, error) {
	var n int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func hasTable(db *sql.DB, name string) (bool, error) {
	var n int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`,
		name,
	).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func addEmbeddingColumn(db *sql.DB) error {
	ok, err := hasColumn(db, "memories", "embedding")
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	_, err = db.Exec(`ALTER TABLE memories ADD COLUMN embedding BLOB`)
	return err
}

func createMemoriesFTS(db *sql.DB) error {
	ok, err := hasTable(db, "memories_fts")
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	stmts := []string{
		`CREATE VIRTUAL TABLE memories_fts USING fts5(
			topic, summary, keywords,
			content='memories', content_rowid='rowid'
		)`,
		`INSERT INTO memories_fts(rowid, topic, summary, keywords)
			SELECT rowid, topic, summary, keywords FROM memories`,
		`CREATE TRIGGER memories_ai AFTER INSERT ON memories BEGIN
			INSERT INTO memories_fts(rowid, topic, summary, keywords)
			VALUES (new.rowid, new.topic, new.summary, new.keywords);
		END`,
		`CREATE TRIGGER memories_ad AFTER DELETE ON memories BEGIN
			INSERT INTO memories_fts(memories_fts, rowid, topic, summary, keywords)
			VALUES ('delete', old.rowid, old.topic, old.summary, old.keywords);
		END`,
		`CREATE TRIGGER memories_au AFTER UPDATE ON memories BEGIN
			INSERT INTO memories_fts(memories_fts, rowid, topic, summary, keywords)
			VALUES ('delete', old.rowid, old.topic, old.summary, old.keywords);
			INSERT INTO memories_fts(rowid, topic, summary, keywords)
			VALUES (new.rowid, new.topic, new.summary, new.keywords);
		END`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func createConceptsFTS(db *sql.DB) error {
	ok, err := hasTable(db, "concepts_fts")
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	stmts := []string{
		`CREATE VIRTUAL TABLE concepts_fts USING fts5(
			name, definition, labels,
			content='concepts', content_rowid='rowid'
		)`,
		`INSERT INTO concepts_fts(rowid, name, definition, labels)
			SELECT rowid, name, definition, labels FROM concepts`,
		`CREATE TRIGGER concepts_ai AFTER INSERT ON concepts BEGIN
			INSERT INTO concepts_fts(rowid, name, definition, labels)
			VALUES (new.rowid, new.name, new.definition, new.labels);
		END`,
		`CREATE TRIGGER concepts_ad AFTER DELETE ON concepts BEGIN
			INSERT INTO concepts_fts(concepts_fts, rowid, name, definition, labels)
			VALUES ('delete', old.rowid, old.name, old.definition, old.labels);
		END`,
		`CREATE TRIGGER concepts_au AFTER UPDATE ON concepts BEGIN
			INSERT INTO concepts_fts(concepts_fts, rowid, name, definition, labels)
			VALUES ('delete', old.rowid, old.name, old.definition, old.labels);
			INSERT INTO concepts_fts(rowid, name, definition, labels)
			VALUES (new.rowid, new.name, new.definition, new.labels);
		END`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}
