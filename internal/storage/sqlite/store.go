// Package sqlite implements storage.MemoryStore and storage.MemoirStore on
// top of a single SQLite file, using modernc.org/sqlite (CGO-free) exactly
// as the persistence layer this module was adapted from does.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Store is a single SQLite-backed connection implementing both the memory
// store and the memoir/concept-graph store. Only one writer connection is
// ever opened: SQLite serializes writers regardless, and a single
// *sql.DB with MaxOpenConns(1) avoids "database is locked" churn under
// WAL mode.
type Store struct {
	db *sql.DB
}

// Open creates the parent directory if needed, opens (or creates) the
// database file, applies the WAL/foreign-key pragmas, and runs the
// idempotent schema initialization.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("create data directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA busy_timeout = 5000`,
		`PRAGMA foreign_keys = ON`,
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}
