// Package store persists skill scores as string key/value pairs and notifies
// subscribers when another writer changes them.
//
// Writes made through a store handle never notify that handle's own
// subscribers. Only external changes (a second process writing the same file
// or database, or an explicit ApplyRemote on the in-memory store) produce
// Change values.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store: closed")

const defaultSubscriberCapacity = 64

// Change describes one key mutation. A removal has Removed set and an empty
// NewValue.
type Change struct {
	Key      string
	OldValue string
	NewValue string
	Removed  bool
}

// Reader is the read-only view the score model needs.
type Reader interface {
	Get(key string) (string, bool)
	Keys() []string
}

// Store is a persistent, observable key/value store.
type Store interface {
	Reader
	Set(key, value string) error
	Remove(key string) error
	Subscribe() Subscription
	Close() error
}

// Logger matches logging.Logger.
type Logger interface {
	Printf(format string, args ...any)
}

// Option customizes store construction.
type Option func(*options)

type options struct {
	logger   Logger
	capacity int
}

// WithLogger routes diagnostics (drops, watch errors) to logger.
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithSubscriberCapacity bounds each subscription's buffer.
func WithSubscriberCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.capacity = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{capacity: defaultSubscriberCapacity}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// Subscription receives changes until closed.
type Subscription struct {
	Changes <-chan Change
	cancel  func()
}

// Close ends the subscription and closes Changes.
func (s Subscription) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// feed fans changes out to subscribers. A full subscriber loses its oldest
// queued change so the newest state always gets through.
type feed struct {
	mu       sync.Mutex
	subs     map[*subscriber]struct{}
	capacity int
	logger   Logger
	closed   bool
}

func newFeed(o options) *feed {
	return &feed{
		subs:     map[*subscriber]struct{}{},
		capacity: o.capacity,
		logger:   o.logger,
	}
}

func (f *feed) subscribe() Subscription {
	sub := &subscriber{ch: make(chan Change, f.capacity)}
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		sub.close()
		return Subscription{Changes: sub.ch}
	}
	f.subs[sub] = struct{}{}
	f.mu.Unlock()
	return Subscription{
		Changes: sub.ch,
		cancel: func() {
			f.mu.Lock()
			delete(f.subs, sub)
			f.mu.Unlock()
			sub.close()
		},
	}
}

func (f *feed) publish(changes ...Change) {
	if len(changes) == 0 {
		return
	}
	f.mu.Lock()
	subs := make([]*subscriber, 0, len(f.subs))
	for sub := range f.subs {
		subs = append(subs, sub)
	}
	f.mu.Unlock()
	for _, sub := range subs {
		for _, c := range changes {
			if dropped, ok := sub.deliver(c); ok && f.logger != nil {
				f.logger.Printf("store: dropped change for %s (queue overflow)", dropped.Key)
			}
		}
	}
}

func (f *feed) close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	subs := f.subs
	f.subs = map[*subscriber]struct{}{}
	f.mu.Unlock()
	for sub := range subs {
		sub.close()
	}
}

type subscriber struct {
	mu     sync.Mutex
	ch     chan Change
	closed bool
}

// deliver enqueues c, evicting the oldest entry when full. It reports the
// evicted change, if any.
func (s *subscriber) deliver(c Change) (Change, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Change{}, false
	}
	select {
	case s.ch <- c:
		return Change{}, false
	default:
	}
	var (
		dropped Change
		evicted bool
	)
	select {
	case dropped = <-s.ch:
		evicted = true
	default:
	}
	s.ch <- c
	return dropped, evicted
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// diff compares two snapshots and returns the changes in key order.
func diff(before, after map[string]string) []Change {
	var changes []Change
	for key, old := range before {
		next, ok := after[key]
		switch {
		case !ok:
			changes = append(changes, Change{Key: key, OldValue: old, Removed: true})
		case next != old:
			changes = append(changes, Change{Key: key, OldValue: old, NewValue: next})
		}
	}
	for key, next := range after {
		if _, ok := before[key]; !ok {
			changes = append(changes, Change{Key: key, NewValue: next})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Key < changes[j].Key })
	return changes
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func cloneMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Watcher is implemented by stores that observe writes from other processes.
type Watcher interface {
	Watch(ctx context.Context) error
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Open builds the store for backend. The memory backend ignores path.
func Open(backend, path string, opts ...Option) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case BackendMemory:
		return NewMemory(nil, opts...), nil
	case "", BackendFile:
		return OpenFile(path, opts...)
	case BackendSQLite:
		return OpenSQLite(path, opts...)
	default:
		return nil, fmt.Errorf("store: unknown backend %q", backend)
	}
}
