package store

import (
	"context"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func receive(t *testing.T, sub Subscription) Change {
	t.Helper()
	select {
	case c, ok := <-sub.Changes:
		if !ok {
			t.Fatalf("subscription closed")
		}
		return c
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for change")
	}
	return Change{}
}

func expectNone(t *testing.T, sub Subscription) {
	t.Helper()
	select {
	case c := <-sub.Changes:
		t.Fatalf("unexpected change %+v", c)
	default:
	}
}

func TestMemorySetIsSilent(t *testing.T) {
	m := NewMemory(map[string]string{"AC11": "10"})
	defer m.Close()
	sub := m.Subscribe()
	defer sub.Close()

	if err := m.Set("AC11", "40"); err != nil {
		t.Fatalf("set: %v", err)
	}
	expectNone(t, sub)
	if v, _ := m.Get("AC11"); v != "40" {
		t.Fatalf("Get = %q", v)
	}

	if err := m.ApplyRemote("AC11", "100"); err != nil {
		t.Fatalf("apply remote: %v", err)
	}
	got := receive(t, sub)
	want := Change{Key: "AC11", OldValue: "40", NewValue: "100"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("change mismatch (-want +got):\n%s", diff)
	}

	if err := m.RemoveRemote("AC11"); err != nil {
		t.Fatalf("remove remote: %v", err)
	}
	if got := receive(t, sub); !got.Removed || got.OldValue != "100" {
		t.Fatalf("removal = %+v", got)
	}
}

func TestMemoryClosed(t *testing.T) {
	m := NewMemory(nil)
	sub := m.Subscribe()
	m.Close()
	if _, ok := <-sub.Changes; ok {
		t.Fatalf("expected closed channel")
	}
	if err := m.Set("AC11", "1"); err != ErrClosed {
		t.Fatalf("Set after close = %v", err)
	}
}

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (r *recordingLogger) Printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, format)
}

func TestSubscriberDropsOldest(t *testing.T) {
	logger := &recordingLogger{}
	m := NewMemory(nil, WithSubscriberCapacity(2), WithLogger(logger))
	defer m.Close()
	sub := m.Subscribe()
	defer sub.Close()

	for i := 0; i < 4; i++ {
		if err := m.ApplyRemote("AC11", strconv.Itoa(i)); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}
	first := receive(t, sub)
	second := receive(t, sub)
	if first.NewValue != "2" || second.NewValue != "3" {
		t.Fatalf("kept %q,%q; want newest two", first.NewValue, second.NewValue)
	}
	if len(logger.lines) != 2 {
		t.Fatalf("expected 2 drop logs, got %d", len(logger.lines))
	}
}

func TestDiffIsSorted(t *testing.T) {
	before := map[string]string{"AC12": "1", "AC11": "5", "AC13": "7"}
	after := map[string]string{"AC11": "6", "AC13": "7", "AC10": "2"}
	want := []Change{
		{Key: "AC10", NewValue: "2"},
		{Key: "AC11", OldValue: "5", NewValue: "6"},
		{Key: "AC12", OldValue: "1", Removed: true},
	}
	if d := cmp.Diff(want, diff(before, after)); d != "" {
		t.Fatalf("diff mismatch (-want +got):\n%s", d)
	}
}

func TestFileStorePersistsAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scores.json")
	fs, err := OpenFile(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer fs.Close()
	sub := fs.Subscribe()
	defer sub.Close()

	if err := fs.Set("AC11", "73,5"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := fs.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	expectNone(t, sub)

	other, err := OpenFile(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if v, ok := other.Get("AC11"); !ok || v != "73,5" {
		t.Fatalf("persisted value = %q, %v", v, ok)
	}
	if err := other.Set("AC21", "100"); err != nil {
		t.Fatalf("other set: %v", err)
	}
	other.Close()

	if err := fs.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	got := receive(t, sub)
	if got.Key != "AC21" || got.NewValue != "100" {
		t.Fatalf("change = %+v", got)
	}
	if diff := cmp.Diff([]string{"AC11", "AC21"}, fs.Keys()); diff != "" {
		t.Fatalf("keys mismatch:\n%s", diff)
	}
}

func TestFileStoreWatchSeesExternalWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scores.json")
	fs, err := OpenFile(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer fs.Close()
	sub := fs.Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fs.Watch(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	deadline := time.After(3 * time.Second)
	for i := 1; ; i++ {
		if err := writeJSONFile(path, map[string]string{"AC31": strconv.Itoa(i)}); err != nil {
			t.Fatalf("external write: %v", err)
		}
		select {
		case c := <-sub.Changes:
			if c.Key != "AC31" {
				t.Fatalf("change = %+v", c)
			}
			return
		case <-time.After(150 * time.Millisecond):
		case <-deadline:
			t.Fatalf("watch never reported the external write")
		}
	}
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scores.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	sub := s.Subscribe()
	defer sub.Close()

	if err := s.Set("AC11", "40"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Set("AC11", "60"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if v, _ := s.Get("AC11"); v != "60" {
		t.Fatalf("Get = %q", v)
	}

	other, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("second connection: %v", err)
	}
	if err := other.Set("AC12", "100"); err != nil {
		t.Fatalf("other set: %v", err)
	}
	if err := other.Remove("AC11"); err != nil {
		t.Fatalf("other remove: %v", err)
	}
	other.Close()

	if err := s.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	first := receive(t, sub)
	second := receive(t, sub)
	if first.Key != "AC11" || !first.Removed {
		t.Fatalf("first change = %+v", first)
	}
	if second.Key != "AC12" || second.NewValue != "100" {
		t.Fatalf("second change = %+v", second)
	}
}

func TestOpenBackends(t *testing.T) {
	dir := t.TempDir()
	for _, backend := range []string{BackendMemory, BackendFile, BackendSQLite} {
		s, err := Open(backend, filepath.Join(dir, backend+".store"))
		if err != nil {
			t.Fatalf("Open(%s): %v", backend, err)
		}
		s.Close()
	}
	if _, err := Open("redis", ""); err == nil {
		t.Fatalf("expected unknown backend error")
	}
}
