package store

import "sync"

// MemoryStore keeps values in process. Set and Remove are silent; use
// ApplyRemote and RemoveRemote to simulate writes from another context.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
	feed   *feed
	closed bool
}

// NewMemory returns an empty store, optionally seeded.
func NewMemory(seed map[string]string, opts ...Option) *MemoryStore {
	values := map[string]string{}
	for k, v := range seed {
		values[k] = v
	}
	return &MemoryStore{values: values, feed: newFeed(buildOptions(opts))}
}

func (m *MemoryStore) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

func (m *MemoryStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedKeys(m.values)
}

func (m *MemoryStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.values[key] = value
	return nil
}

func (m *MemoryStore) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.values, key)
	return nil
}

// ApplyRemote writes value and notifies subscribers, as if another context
// had written it.
func (m *MemoryStore) ApplyRemote(key, value string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	old := m.values[key]
	m.values[key] = value
	m.mu.Unlock()
	m.feed.publish(Change{Key: key, OldValue: old, NewValue: value})
	return nil
}

// RemoveRemote deletes key and notifies subscribers.
func (m *MemoryStore) RemoveRemote(key string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	old, ok := m.values[key]
	delete(m.values, key)
	m.mu.Unlock()
	if ok {
		m.feed.publish(Change{Key: key, OldValue: old, Removed: true})
	}
	return nil
}

func (m *MemoryStore) Subscribe() Subscription {
	return m.feed.subscribe()
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.feed.close()
	return nil
}
