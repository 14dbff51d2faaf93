package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps values in a single scores table. Like FileStore it keeps
// an in-memory snapshot so Watch can diff external writes against it.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	values map[string]string
	feed   *feed
	logger Logger
	closed bool
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string, opts ...Option) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("store: sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("store: create database directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping database: %w", err)
	}
	o := buildOptions(opts)
	s := &SQLiteStore{db: db, path: path, feed: newFeed(o), logger: o.logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate database: %w", err)
	}
	values, err := s.load()
	if err != nil {
		db.Close()
		return nil, err
	}
	s.values = values
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS scores (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`)
	return err
}

func (s *SQLiteStore) load() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT key, value FROM scores`)
	if err != nil {
		return nil, fmt.Errorf("store: query scores: %w", err)
	}
	defer rows.Close()
	values := map[string]string{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("store: scan score: %w", err)
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate scores: %w", err)
	}
	return values, nil
}

func (s *SQLiteStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *SQLiteStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.values)
}

func (s *SQLiteStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	_, err := s.db.Exec(`
	INSERT INTO scores (key, value, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at
	`, key, value, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("store: save %s: %w", key, err)
	}
	s.values[key] = value
	return nil
}

func (s *SQLiteStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, err := s.db.Exec(`DELETE FROM scores WHERE key = ?`, key); err != nil {
		return fmt.Errorf("store: delete %s: %w", key, err)
	}
	delete(s.values, key)
	return nil
}

func (s *SQLiteStore) Subscribe() Subscription {
	return s.feed.subscribe()
}

// Watch blocks until ctx is done, publishing rows changed by other
// connections. Both the database file and its WAL are observed.
func (s *SQLiteStore) Watch(ctx context.Context) error {
	base := filepath.Base(s.path)
	names := []string{base, base + "-wal", base + "-journal"}
	return watchFiles(ctx, filepath.Dir(s.path), names, s.Reload, s.logger)
}

// Reload re-reads the table and publishes the difference.
func (s *SQLiteStore) Reload() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	values, err := s.load()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	changes := diff(s.values, values)
	s.values = values
	s.mu.Unlock()
	s.feed.publish(changes...)
	return nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	s.feed.close()
	return s.db.Close()
}
