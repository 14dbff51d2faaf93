package eventbridge

import (
	"testing"
)

func TestRouterBuffersAndFlushes(t *testing.T) {
	router := NewRouter(RouterWithSubscriberCapacity(4))
	first := Event{EventID: "evt-1", Type: TypeScoreUpdated}
	second := Event{EventID: "evt-2", Type: TypeScoreUpdated}
	router.Route(first)
	router.Route(second)
	sub := router.Subscribe(TypeScoreUpdated)
	defer sub.Close()
	got1 := <-sub.Events
	if got1.EventID != first.EventID {
		t.Fatalf("expected first buffered event, got %s", got1.EventID)
	}
	got2 := <-sub.Events
	if got2.EventID != second.EventID {
		t.Fatalf("expected second buffered event, got %s", got2.EventID)
	}
}

func TestRouterDedupeByEventID(t *testing.T) {
	router := NewRouter()
	sub := router.Subscribe(TypeScoreUpdated)
	defer sub.Close()
	event := Event{EventID: "evt-1", Type: TypeScoreUpdated}
	router.Route(event)
	router.Route(event)
	select {
	case got := <-sub.Events:
		if got.EventID != event.EventID {
			t.Fatalf("unexpected event: %s", got.EventID)
		}
	default:
		t.Fatalf("expected first delivery")
	}
	select {
	case <-sub.Events:
		t.Fatalf("duplicate event delivered")
	default:
	}
}

func TestRouterTopicsAreSeparate(t *testing.T) {
	router := NewRouter()
	scores := router.Subscribe(TypeScoreUpdated)
	defer scores.Close()
	all := router.Subscribe(AllTopics)
	defer all.Close()
	router.Route(Event{EventID: "evt-1", Type: TypeTrackSelected})
	select {
	case got := <-scores.Events:
		t.Fatalf("score subscriber got %s", got.Type)
	default:
	}
	select {
	case got := <-all.Events:
		if got.EventID != "evt-1" {
			t.Fatalf("wildcard got %s", got.EventID)
		}
	default:
		t.Fatalf("wildcard subscriber missed event")
	}
	// no topic subscriber yet, so the track event waits in the backlog
	tracks := router.Subscribe(TypeTrackSelected)
	defer tracks.Close()
	if got := <-tracks.Events; got.EventID != "evt-1" {
		t.Fatalf("backlog not flushed, got %s", got.EventID)
	}
}

func TestRouterKeepsTrackSelectionOnOverflow(t *testing.T) {
	router := NewRouter(RouterWithSubscriberCapacity(1))
	sub := router.Subscribe(AllTopics)
	defer sub.Close()
	score := Event{EventID: "evt-1", Type: TypeScoreUpdated}
	track := Event{EventID: "evt-2", Type: TypeTrackSelected}
	router.Route(score)
	router.Route(track)
	if got := <-sub.Events; got.EventID != track.EventID {
		t.Fatalf("expected track selection to replace score update, got %s", got.EventID)
	}
}

func TestRouterDropsIncomingScoreWhenTrackQueued(t *testing.T) {
	router := NewRouter(RouterWithSubscriberCapacity(1))
	sub := router.Subscribe(AllTopics)
	defer sub.Close()
	track := Event{EventID: "evt-1", Type: TypeTrackSelected}
	score := Event{EventID: "evt-2", Type: TypeScoreUpdated}
	router.Route(track)
	router.Route(score)
	if got := <-sub.Events; got.EventID != track.EventID {
		t.Fatalf("expected queued track selection to remain, got %s", got.EventID)
	}
	select {
	case <-sub.Events:
		t.Fatalf("unexpected extra event")
	default:
	}
}

func TestRouterPrefersDroppingSyncedFrames(t *testing.T) {
	router := NewRouter(RouterWithSubscriberCapacity(1))
	sub := router.Subscribe(AllTopics)
	defer sub.Close()
	router.Route(Event{EventID: "evt-1", Type: TypeScoreUpdated})
	router.Route(Event{EventID: "evt-2", Type: TypeSynced})
	if got := <-sub.Events; got.EventID != "evt-1" {
		t.Fatalf("synced frame should have been dropped, got %s", got.EventID)
	}
}

func TestRouterBacklogKeepsNewest(t *testing.T) {
	router := NewRouter(RouterWithBacklogLimit(2))
	for _, id := range []string{"evt-1", "evt-2", "evt-3"} {
		router.Route(Event{EventID: id, Type: TypeScoreUpdated})
	}
	sub := router.Subscribe(TypeScoreUpdated)
	defer sub.Close()
	for _, want := range []string{"evt-2", "evt-3"} {
		if got := <-sub.Events; got.EventID != want {
			t.Fatalf("got %s, want %s", got.EventID, want)
		}
	}
	select {
	case got := <-sub.Events:
		t.Fatalf("unexpected held event %s", got.EventID)
	default:
	}
}

func TestRouterForgetsIDsOutsideWindow(t *testing.T) {
	router := NewRouter(RouterWithDedupeWindow(1))
	sub := router.Subscribe(TypeScoreUpdated)
	defer sub.Close()
	router.Route(Event{EventID: "evt-1", Type: TypeScoreUpdated})
	router.Route(Event{EventID: "evt-2", Type: TypeScoreUpdated})
	router.Route(Event{EventID: "evt-1", Type: TypeScoreUpdated})
	for _, want := range []string{"evt-1", "evt-2", "evt-1"} {
		if got := <-sub.Events; got.EventID != want {
			t.Fatalf("got %s, want %s", got.EventID, want)
		}
	}
}
