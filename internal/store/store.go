// Package store is the local persisted mirror: relational records of
// groups, members, threads, and interactions for fast local querying.
//
// The mirror is a derived cache of the distributed config state. The
// protocol engine is its only writer and always writes inside WithTx so
// mirror rows and config mutations advance or roll back together.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// Store wraps the SQLite database backing the local mirror.
type Store struct {
	db *sql.DB

	// Serializes read-modify-write transactions. SQLite would serialize
	// the writes anyway; this lock puts the read phase of a transaction
	// inside the critical section too.
	txMu sync.Mutex
}

const schema = `
CREATE TABLE IF NOT EXISTS groups (
	group_id TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	admin_seed BLOB,
	auth_token BLOB,
	invited INTEGER NOT NULL DEFAULT 0,
	destroyed INTEGER NOT NULL DEFAULT 0,
	should_poll INTEGER NOT NULL DEFAULT 0,
	expiry_seconds INTEGER NOT NULL DEFAULT 0,
	created_at_ms INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS members (
	group_id TEXT NOT NULL,
	profile_id TEXT NOT NULL,
	role INTEGER NOT NULL DEFAULT 0,
	role_status INTEGER NOT NULL,
	is_hidden INTEGER NOT NULL DEFAULT 0,
	name TEXT NOT NULL DEFAULT '',
	pic_url TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (group_id, profile_id)
);
CREATE TABLE IF NOT EXISTS threads (
	thread_id TEXT PRIMARY KEY,
	variant INTEGER NOT NULL,
	created_at_ms INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS interactions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	thread_id TEXT NOT NULL,
	author_id TEXT NOT NULL,
	variant INTEGER NOT NULL,
	body TEXT NOT NULL DEFAULT '',
	timestamp_ms INTEGER NOT NULL,
	server_hash TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_interactions_thread ON interactions (thread_id, timestamp_ms);
CREATE TABLE IF NOT EXISTS contacts (
	account_id TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	approved INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS config_dumps (
	group_id TEXT NOT NULL,
	kind INTEGER NOT NULL,
	data BLOB NOT NULL,
	PRIMARY KEY (group_id, kind)
);
`

// Open opens or creates the mirror database at the given path.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("store: create dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}

	// WAL keeps readers unblocked while the engine commits.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: set WAL mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Tx is one serialized read-modify-write transaction against the mirror.
type Tx struct {
	tx *sql.Tx
}

// WithTx runs fn inside a serialized transaction. If fn returns an error
// the transaction is rolled back and the mirror is untouched.
func (s *Store) WithTx(fn func(*Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	if err := fn(&Tx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("store: rollback after %v: %w", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit tx: %w", err)
	}
	return nil
}
