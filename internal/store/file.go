package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps values in a JSON object on disk. Writes are atomic
// (temp file + rename). Watch turns writes by other processes into changes.
type FileStore struct {
	mu     sync.RWMutex
	path   string
	values map[string]string
	feed   *feed
	logger Logger
	closed bool
}

// OpenFile loads path, treating a missing file as empty.
func OpenFile(path string, opts ...Option) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("store: file path is required")
	}
	o := buildOptions(opts)
	values, err := readJSONFile(path)
	if err != nil {
		return nil, err
	}
	return &FileStore{path: path, values: values, feed: newFeed(o), logger: o.logger}, nil
}

// Path returns the backing file.
func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) Get(key string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.values[key]
	return v, ok
}

func (f *FileStore) Keys() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return sortedKeys(f.values)
}

func (f *FileStore) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	next := cloneMap(f.values)
	next[key] = value
	if err := writeJSONFile(f.path, next); err != nil {
		return err
	}
	f.values = next
	return nil
}

func (f *FileStore) Remove(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	if _, ok := f.values[key]; !ok {
		return nil
	}
	next := cloneMap(f.values)
	delete(next, key)
	if err := writeJSONFile(f.path, next); err != nil {
		return err
	}
	f.values = next
	return nil
}

func (f *FileStore) Subscribe() Subscription {
	return f.feed.subscribe()
}

// Watch blocks until ctx is done, publishing external edits to the file.
func (f *FileStore) Watch(ctx context.Context) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("store: create %s: %w", dir, err)
	}
	return watchFiles(ctx, dir, []string{filepath.Base(f.path)}, f.Reload, f.logger)
}

// Reload re-reads the file and publishes whatever differs from memory.
func (f *FileStore) Reload() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	values, err := readJSONFile(f.path)
	if err != nil {
		f.mu.Unlock()
		return err
	}
	changes := diff(f.values, values)
	f.values = values
	f.mu.Unlock()
	f.feed.publish(changes...)
	return nil
}

func (f *FileStore) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.feed.close()
	return nil
}

func readJSONFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", path, err)
	}
	values := map[string]string{}
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("store: parse %s: %w", path, err)
	}
	return values, nil
}

func writeJSONFile(path string, values map[string]string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("store: create %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".scores-*.tmp")
	if err != nil {
		return fmt.Errorf("store: temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("store: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store: write: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store: replace %s: %w", path, err)
	}
	return nil
}
