package eventbridge

import (
	"strings"
	"sync"
)

const (
	defaultSubscriberCapacity = 100
	defaultBacklogLimit       = 50
	defaultDedupeWindow       = 1024

	// AllTopics subscribes to every event type. Such subscriptions only see
	// live traffic; backlogs are kept for topic subscribers.
	AllTopics = "*"
)

// RouterOption customizes a Router.
type RouterOption func(*Router)

// Router fans accepted events out by type. Events of a type nobody listens
// to yet wait in a short backlog, so a panel edit posted before serve has
// subscribed is still applied. Event IDs seen recently are ignored.
type Router struct {
	mu     sync.RWMutex
	topics map[string]map[*subscriber]struct{}
	held   map[string][]Event
	seen   map[string]struct{}
	order  []string

	capacity int
	holdMax  int
	window   int
	logger   Logger
}

// Subscription is the receiving end of Subscribe. Events is closed by Close.
type Subscription struct {
	Events <-chan Event
	cancel func()
}

func (s Subscription) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

func NewRouter(opts ...RouterOption) *Router {
	r := &Router{
		topics:   map[string]map[*subscriber]struct{}{},
		held:     map[string][]Event{},
		seen:     map[string]struct{}{},
		capacity: defaultSubscriberCapacity,
		holdMax:  defaultBacklogLimit,
		window:   defaultDedupeWindow,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// RouterWithLogger reports dropped events.
func RouterWithLogger(logger Logger) RouterOption {
	return func(r *Router) {
		r.logger = logger
	}
}

// RouterWithSubscriberCapacity sets how many events a slow subscriber may
// fall behind before the drop policy applies.
func RouterWithSubscriberCapacity(n int) RouterOption {
	return func(r *Router) {
		if n > 0 {
			r.capacity = n
		}
	}
}

// RouterWithBacklogLimit sets how many events of one type are held while
// that type has no subscriber. The oldest goes first.
func RouterWithBacklogLimit(n int) RouterOption {
	return func(r *Router) {
		if n > 0 {
			r.holdMax = n
		}
	}
}

// RouterWithDedupeWindow sets how many event IDs are remembered to filter
// retried posts.
func RouterWithDedupeWindow(n int) RouterOption {
	return func(r *Router) {
		if n > 0 {
			r.window = n
		}
	}
}

// Subscribe listens to one event type, or to AllTopics. Held events of that
// type are handed over first.
func (r *Router) Subscribe(topic string) Subscription {
	topic = normalizeTopic(topic)
	if topic == "" {
		topic = AllTopics
	}
	sub := newSubscriber(r.capacity, r.logger)

	r.mu.Lock()
	if r.topics[topic] == nil {
		r.topics[topic] = map[*subscriber]struct{}{}
	}
	r.topics[topic][sub] = struct{}{}
	var pending []Event
	if topic != AllTopics {
		pending = r.held[topic]
		delete(r.held, topic)
	}
	r.mu.Unlock()

	for _, evt := range pending {
		sub.deliver(evt)
	}
	return Subscription{
		Events: sub.ch,
		cancel: func() { r.unsubscribe(topic, sub) },
	}
}

// HandleEvent routes evt; the router never rejects an event.
func (r *Router) HandleEvent(evt Event) error {
	r.Route(evt)
	return nil
}

// Route delivers evt to the subscribers of its type and to wildcard
// subscribers. Without a subscriber of its type the event is held.
func (r *Router) Route(evt Event) {
	if evt.EventID != "" && !r.remember(evt.EventID) {
		return
	}
	topic := normalizeTopic(evt.Type)
	if topic == "" || topic == AllTopics {
		return
	}
	r.mu.RLock()
	direct := r.listeners(topic)
	wildcard := r.listeners(AllTopics)
	r.mu.RUnlock()

	if len(direct) == 0 {
		r.hold(topic, evt)
	}
	for _, sub := range append(direct, wildcard...) {
		sub.deliver(evt)
	}
}

func (r *Router) listeners(topic string) []*subscriber {
	set := r.topics[topic]
	if len(set) == 0 {
		return nil
	}
	out := make([]*subscriber, 0, len(set))
	for sub := range set {
		out = append(out, sub)
	}
	return out
}

func (r *Router) unsubscribe(topic string, sub *subscriber) {
	r.mu.Lock()
	if set := r.topics[topic]; set != nil {
		delete(set, sub)
		if len(set) == 0 {
			delete(r.topics, topic)
		}
	}
	r.mu.Unlock()
	sub.close()
}

func (r *Router) hold(topic string, evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	queue := r.held[topic]
	if len(queue) >= r.holdMax {
		queue = queue[len(queue)-r.holdMax+1:]
		r.logf("eventbridge: no subscriber for %s, dropped oldest held event", topic)
	}
	r.held[topic] = append(queue, evt)
}

// remember records id and reports whether it is new.
func (r *Router) remember(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.seen[id]; dup {
		return false
	}
	r.seen[id] = struct{}{}
	r.order = append(r.order, id)
	if len(r.order) > r.window {
		delete(r.seen, r.order[0])
		r.order = r.order[1:]
	}
	return true
}

func (r *Router) logf(format string, args ...any) {
	if r.logger != nil {
		r.logger.Printf(format, args...)
	}
}

func normalizeTopic(topic string) string {
	return strings.ToLower(strings.TrimSpace(topic))
}

type subscriber struct {
	ch     chan Event
	logger Logger
	mu     sync.Mutex
	closed bool
}

func newSubscriber(capacity int, logger Logger) *subscriber {
	if capacity <= 0 {
		capacity = defaultSubscriberCapacity
	}
	return &subscriber{ch: make(chan Event, capacity), logger: logger}
}

// deliver never blocks. On a full queue either the oldest queued event or
// evt is dropped, whichever ranks lower. mu is held for the whole send so
// close cannot race it.
func (s *subscriber) deliver(evt Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- evt:
		return
	default:
	}
	var oldest Event
	select {
	case oldest = <-s.ch:
	default:
		// the reader caught up
		s.ch <- evt
		return
	}
	keep, drop := evt, oldest
	if rank(oldest.Type) > rank(evt.Type) {
		keep, drop = oldest, evt
	}
	s.ch <- keep
	if s.logger != nil {
		s.logger.Printf("eventbridge: subscriber full, dropped %s %s", drop.Type, drop.EventID)
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// rank orders event types for overflow. A track selection changes which
// nodes are visible and outranks score updates, which every pass re-reads
// anyway. A synced frame is superseded by the next one.
func rank(kind string) int {
	switch normalizeTopic(kind) {
	case TypeTrackSelected:
		return 2
	case TypeSynced:
		return 0
	default:
		return 1
	}
}
