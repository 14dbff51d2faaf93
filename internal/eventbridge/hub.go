package eventbridge

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultClientQueue = 32
	writeWait          = 5 * time.Second
)

// Hub pushes routed events to websocket clients and accepts events they send.
type Hub struct {
	upgrader  websocket.Upgrader
	processor EventProcessor
	logger    Logger
	clock     func() time.Time

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
	wg      sync.WaitGroup
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) stop() {
	c.once.Do(func() {
		close(c.send)
	})
}

// HubOption customizes hub construction.
type HubOption func(*Hub)

// HubWithLogger injects a logger.
func HubWithLogger(l Logger) HubOption {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// HubWithProcessor forwards client-sent events, typically to a Router.
func HubWithProcessor(p EventProcessor) HubOption {
	return func(h *Hub) {
		if p != nil {
			h.processor = p
		}
	}
}

// NewHub creates an empty hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		processor: EventProcessorFunc(func(Event) error { return nil }),
		logger:    nopLogger{},
		clock:     func() time.Time { return time.Now().UTC() },
		clients:   map[*client]struct{}{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Clients reports the number of connected sockets.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Run forwards every event from sub to connected clients until ctx ends or
// the subscription closes.
func (h *Hub) Run(ctx context.Context, sub Subscription) {
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sub.Events:
			if !ok {
				return
			}
			h.Broadcast(evt)
		}
	}
}

// Broadcast sends evt to every client. Slow clients lose the frame.
func (h *Hub) Broadcast(evt Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		h.logger.Printf("eventbridge: encode %s: %v", evt.Type, err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Printf("eventbridge: client %s too slow, dropped %s", c.conn.RemoteAddr(), evt.Type)
		}
	}
}

// ServeHTTP upgrades the request and serves the socket until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("eventbridge: websocket upgrade failed: %v", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, defaultClientQueue)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.wg.Add(2)
	h.mu.Unlock()

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *Hub) readLoop(c *client) {
	defer func() {
		h.drop(c)
		h.wg.Done()
	}()
	for {
		var evt Event
		if err := c.conn.ReadJSON(&evt); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Printf("eventbridge: websocket read error: %v", err)
			}
			return
		}
		evt.Normalize()
		if err := evt.Validate(); err != nil {
			h.logger.Printf("eventbridge: rejected client event: %v", err)
			continue
		}
		evt.StampServerTime(h.clock())
		if err := h.processor.HandleEvent(evt); err != nil {
			h.logger.Printf("eventbridge: processor error: %v", err)
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	defer func() {
		_ = c.conn.Close()
		h.wg.Done()
	}()
	for data := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Printf("eventbridge: websocket write error: %v", err)
			return
		}
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.stop()
	_ = c.conn.Close()
}

// Close disconnects every client and waits for their loops to exit.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
		delete(h.clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		c.stop()
		_ = c.conn.Close()
	}
	h.wg.Wait()
}
