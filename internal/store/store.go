// Package store provides the SQLite-backed record store: named collections
// of JSON-encoded records with a primary id and zero or more secondary
// indexes, under a single lazily-opened process-wide handle.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/voss/murmur/internal/apperr"
)

// Collection names. Declared here so every layer agrees on them.
const (
	CollectionNotes    = "notes"
	CollectionFolders  = "folders"
	CollectionInsights = "insights"
	CollectionImages   = "images"
	CollectionSettings = "settings"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS records (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	data       BLOB NOT NULL,
	PRIMARY KEY (collection, id)
);

CREATE TABLE IF NOT EXISTS record_index (
	collection TEXT NOT NULL,
	idx        TEXT NOT NULL,
	value      TEXT NOT NULL,
	id         TEXT NOT NULL,
	PRIMARY KEY (collection, idx, id)
);

CREATE INDEX IF NOT EXISTS idx_record_index_value ON record_index(collection, idx, value);
`

// DB wraps a sql.DB with record store operations.
type DB struct {
	conn *sql.DB
}

// Manager is the process-wide store handle. Open is idempotent: the first
// caller initializes the schema and later callers share the same handle.
// Destroy closes the handle and erases the underlying database, after which
// a subsequent Open re-initializes from scratch.
type Manager struct {
	mu   sync.Mutex
	path string
	db   *DB
}

// NewManager creates a manager for the database at path. Nothing is opened
// until the first operation needs the handle.
func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Open returns the shared handle, initializing it on first use.
func (m *Manager) Open(_ context.Context) (*DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.db != nil {
		return m.db, nil
	}
	db, err := open(m.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err)
	}
	m.db = db
	return m.db, nil
}

// Close releases the handle without deleting data. The next Open re-opens.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.db == nil {
		return nil
	}
	err := m.db.conn.Close()
	m.db = nil
	return err
}

// Destroy closes the handle and irrecoverably erases all collections. Used
// only by the explicit erase-all user action. The manager stays usable: a
// later Open initializes a fresh database.
func (m *Manager) Destroy(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.db != nil {
		if err := m.db.conn.Close(); err != nil {
			return fmt.Errorf("store: close before destroy: %w", err)
		}
		m.db = nil
	}
	for _, p := range []string{m.path, m.path + "-wal", m.path + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("store: destroy %s: %w", p, err)
		}
	}
	return nil
}

// open opens (or creates) the SQLite database and applies the schema.
func open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}
