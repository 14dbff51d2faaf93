package main

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/kingrea/skilltree/internal/dom"
	"github.com/kingrea/skilltree/internal/eventbridge"
	"github.com/kingrea/skilltree/internal/motion"
	"github.com/kingrea/skilltree/internal/parcours"
	"github.com/kingrea/skilltree/internal/store"
	"github.com/kingrea/skilltree/internal/visual"
	"github.com/kingrea/skilltree/internal/wiring"
)

func newSession(t *testing.T, markup string) (*session, *store.MemoryStore, *dom.Document) {
	t.Helper()
	doc, err := dom.ParseString(markup)
	if err != nil {
		t.Fatal(err)
	}
	s := store.NewMemory(nil)
	t.Cleanup(func() { _ = s.Close() })
	ctrl := wiring.New(s)
	t.Cleanup(func() { _ = ctrl.Close() })
	if err := ctrl.Init(context.Background(), doc.Root(), nil); err != nil {
		t.Fatal(err)
	}
	return &session{store: s, ctrl: ctrl}, s, doc
}

func mustEvent(t *testing.T, kind string, detail any) eventbridge.Event {
	t.Helper()
	evt, err := eventbridge.NewEvent(kind, "test", detail)
	if err != nil {
		t.Fatal(err)
	}
	return evt
}

func TestApplyScoreCopiesIntoMemoryStore(t *testing.T) {
	sess, s, _ := newSession(t, `<svg><g id="AC11"></g></svg>`)
	sess.applyScore(mustEvent(t, eventbridge.TypeScoreUpdated, eventbridge.ScoreDetail{Code: "AC11", Value: 80}))
	if got, _ := s.Get("AC11"); got != "80" {
		t.Fatalf("AC11 = %q, want 80", got)
	}

	// the wrong detail type is ignored
	sess.applyScore(mustEvent(t, eventbridge.TypeTrackSelected, eventbridge.TrackDetail{Choice: "dev"}))
	if got, _ := s.Get("AC11"); got != "80" {
		t.Fatalf("AC11 changed to %q", got)
	}
}

func TestApplyScoreRequestsOnePass(t *testing.T) {
	sess, s, doc := newSession(t, `<svg><g id="AC11"><rect/></g></svg>`)
	sub := s.Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sess.ctrl.Run(ctx, sub.Changes) }()
	defer func() {
		cancel()
		<-done
	}()

	sess.applyScore(mustEvent(t, eventbridge.TypeScoreUpdated, eventbridge.ScoreDetail{Code: "AC11", Value: 100}))
	deadline := time.Now().Add(2 * time.Second)
	for sess.ctrl.Passes() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("no pass after the score event")
		}
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	if got := sess.ctrl.Passes(); got != 2 {
		t.Fatalf("passes = %d, want exactly one after init", got)
	}
	var lit bool
	sess.ctrl.Do(func(*dom.Element) { lit = doc.ByID("AC11").HasClass(visual.ClassDone) })
	if !lit {
		t.Fatalf("AC11 was not styled by the pass")
	}
}

func TestApplyTrackFiltersTreeAndPersists(t *testing.T) {
	sess, s, doc := newSession(t, `<svg><g id="AC32"></g><g id="AC34"></g></svg>`)

	sess.applyTrack(mustEvent(t, eventbridge.TypeTrackSelected, eventbridge.TrackDetail{Choice: "dev"}))
	if got, _ := s.Get(parcours.StorageKey); got != "dev" {
		t.Fatalf("stored track %q", got)
	}
	var hidden []string
	sess.ctrl.Do(func(root *dom.Element) {
		for _, el := range root.Find("." + parcours.HiddenClass) {
			hidden = append(hidden, el.ID())
		}
	})
	if diff := cmp.Diff([]string{"AC32"}, hidden); diff != "" {
		t.Fatalf("hidden mismatch:\n%s", diff)
	}

	sess.applyTrack(mustEvent(t, eventbridge.TypeTrackSelected, eventbridge.TrackDetail{Choice: "all"}))
	if _, ok := s.Get(parcours.StorageKey); ok {
		t.Fatalf("all should clear the stored track")
	}
	if n := len(doc.Root().Find("." + parcours.HiddenClass)); n != 0 {
		t.Fatalf("%d nodes still hidden", n)
	}

	sess.applyTrack(mustEvent(t, eventbridge.TypeTrackSelected, eventbridge.TrackDetail{Choice: "marketing"}))
	if _, ok := s.Get(parcours.StorageKey); ok {
		t.Fatalf("unknown track must be ignored")
	}
}

func TestFrameHelpers(t *testing.T) {
	if got := frameTick(16 * time.Millisecond); got != minFrameTick {
		t.Fatalf("frameTick(16ms) = %s", got)
	}
	if got := frameTick(time.Second); got != time.Second {
		t.Fatalf("frameTick(1s) = %s", got)
	}
	if moving([]motion.Frame{{State: motion.StateRunning}, {State: motion.StateStopped}}) {
		t.Fatalf("steady frames reported as moving")
	}
	if !moving([]motion.Frame{{State: motion.StateStopped}, {State: motion.StateDecelerating}}) {
		t.Fatalf("decelerating frame not reported")
	}
}
