// Package store persists the per-persona state: the personality model
// document, the append-only conversation and correction ledgers, and the
// inbox. Everything lives in one SQLite database per persona namespace.
//
// Updates for a persona are serialized through the store mutex, so
// concurrent section writers observe last-writer-wins behind an explicit
// serialization point rather than racing on the document.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// ErrModelNotFound is returned by ReadModel when no personality model
// document exists yet for the persona.
var ErrModelNotFound = errors.New("personality model not found")

// Store is the SQLite-backed persona state store.
type Store struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
	log  *zap.Logger
}

// Open initializes the database at the given path, creating the schema
// on first use.
func Open(path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("store")

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		log.Debug("failed to set sqlite busy_timeout", zap.Error(err))
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		log.Debug("failed to set sqlite journal_mode=WAL", zap.Error(err))
	}

	s := &Store{db: db, path: path, log: log}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Info("store ready", zap.String("path", path))
	return s, nil
}

// initialize creates the required tables.
func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS personality_models (
		persona TEXT PRIMARY KEY,
		sections TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		persona TEXT NOT NULL,
		ts DATETIME NOT NULL,
		requester TEXT NOT NULL,
		summary TEXT NOT NULL,
		twin_response TEXT NOT NULL,
		needs_approval INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_persona ON conversations(persona, ts);

	CREATE TABLE IF NOT EXISTS corrections (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		persona TEXT NOT NULL,
		ts DATETIME NOT NULL,
		original_response TEXT NOT NULL,
		correct_response TEXT NOT NULL,
		context TEXT NOT NULL,
		processed INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_corrections_unprocessed ON corrections(persona, processed);

	CREATE TABLE IF NOT EXISTS inbox_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		persona TEXT NOT NULL,
		title TEXT NOT NULL,
		details TEXT NOT NULL,
		provenance TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_inbox_persona ON inbox_items(persona, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the database connection.
func (s *Store) Close() error {
	s.log.Debug("closing store", zap.String("path", s.path))
	return s.db.Close()
}
