// Package store is the SQLite-backed configuration store: the settings
// blob, query caches, prompt template, and sealed API-provider credentials,
// plus a change notifier so the service can react to external writes.
package store

import (
	"crypto/sha256"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Store is the configuration database handle.
type Store struct {
	DB     *sql.DB
	logger *slog.Logger

	// sealKey encrypts credentials at rest. Nil when no secret is
	// configured; credential operations then fail cleanly.
	sealKey []byte
}

// Option customises Open behaviour.
type Option func(*Store)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithSecret derives the credential sealing key from a deployment secret.
// Without it the store works but refuses to read or write credentials.
func WithSecret(secret string) Option {
	return func(s *Store) {
		if secret == "" {
			return
		}
		key := sha256.Sum256([]byte(secret))
		s.sealKey = key[:]
	}
}

// Open opens (or creates) the configuration database at path, applying the
// production pragmas and the schema. Parent directories are created.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	s.DB = db
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}
