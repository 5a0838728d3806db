package cache

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"git.home.luguber.info/inful/contentmill/internal/document"
)

// SQLiteStore implements Store using SQLite, enabling incremental
// re-execution across engine runs.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore creates a new SQLite-based result store.
// Use ":memory:" for an in-memory database, or a file path for persistence.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close() // Best effort cleanup on initialization error
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS results (
		fingerprint TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL,
		outputs BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_created_at ON results(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Get retrieves the output set stored under fingerprint.
func (s *SQLiteStore) Get(ctx context.Context, fingerprint string) ([]*document.Document, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var blob []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT outputs FROM results WHERE fingerprint = ?", fingerprint,
	).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query result: %w", err)
	}

	docs, err := decodeDocuments(blob)
	if err != nil {
		return nil, false, err
	}
	return docs, true, nil
}

// Put stores the output set under fingerprint, replacing any previous entry.
func (s *SQLiteStore) Put(ctx context.Context, fingerprint string, outputs []*document.Document) error {
	blob, err := encodeDocuments(outputs)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO results (fingerprint, created_at, outputs) VALUES (?, ?, ?)",
		fingerprint, time.Now().Unix(), blob,
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
