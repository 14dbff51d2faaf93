package eventbridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"
)

// ServerStatus is reported by /health.
type ServerStatus string

const (
	StatusStarting ServerStatus = "starting"
	StatusReady    ServerStatus = "ready"
	StatusDraining ServerStatus = "draining"
)

const defaultShutdownGrace = 2 * time.Second

var (
	errServerDisabled = errors.New("eventbridge: server disabled")
	errServerRunning  = errors.New("eventbridge: server already started")
)

// Server is the HTTP face of a running sync: panels POST events to /events,
// browsers follow /ws and fetch the painted tree from /tree.svg.
type Server struct {
	settings  Settings
	processor EventProcessor
	logger    Logger
	clock     func() time.Time
	hub       *Hub
	snapshot  func() string

	mu       sync.RWMutex
	http     *http.Server
	listener net.Listener
	status   ServerStatus
	started  time.Time
}

// Option customizes a Server.
type Option func(*Server)

// WithProcessor receives every accepted event, typically a Router.
func WithProcessor(p EventProcessor) Option {
	return func(s *Server) {
		if p != nil {
			s.processor = p
		}
	}
}

func WithLogger(l Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithHub serves websocket clients on /ws. The hub is closed on Shutdown.
func WithHub(h *Hub) Option {
	return func(s *Server) {
		s.hub = h
	}
}

// WithSnapshot serves the rendered tree on /tree.svg.
func WithSnapshot(fn func() string) Option {
	return func(s *Server) {
		s.snapshot = fn
	}
}

// WithClock controls server timestamps and uptime in tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewServer builds a server that is not yet listening.
func NewServer(settings Settings, opts ...Option) *Server {
	s := &Server{
		settings:  settings,
		processor: EventProcessorFunc(func(Event) error { return nil }),
		logger:    nopLogger{},
		clock:     time.Now,
		status:    StatusStarting,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/tree.svg", s.handleTree)
	if s.hub != nil {
		mux.Handle("/ws", s.hub)
	}
	return mux
}

// Start listens on the configured address and serves in the background.
// Requests inherit ctx.
func (s *Server) Start(ctx context.Context) error {
	if !s.settings.Enabled {
		return errServerDisabled
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return errServerRunning
	}
	ln, err := net.Listen("tcp", s.settings.Address())
	if err != nil {
		return fmt.Errorf("eventbridge: listen %s: %w", s.settings.Address(), err)
	}
	srv := &http.Server{
		Handler:      s.routes(),
		ReadTimeout:  s.settings.ReadTimeout,
		WriteTimeout: s.settings.WriteTimeout,
		IdleTimeout:  s.settings.IdleTimeout,
	}
	if ctx != nil {
		srv.BaseContext = func(net.Listener) context.Context { return ctx }
	}
	s.listener, s.http = ln, srv
	s.started = s.clock()
	s.status = StatusReady

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("eventbridge: serve: %v", err)
		}
	}()
	s.logger.Printf("eventbridge: listening on %s", ln.Addr())
	return nil
}

// Shutdown disconnects websocket clients, then drains HTTP requests until
// ctx ends. A nil ctx waits a short grace period.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.http == nil {
		return nil
	}
	s.status = StatusDraining
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), defaultShutdownGrace)
		defer cancel()
	}
	if s.hub != nil {
		s.hub.Close()
	}
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("eventbridge: shutdown: %w", err)
	}
	s.listener, s.http = nil, nil
	return nil
}

// Addr is the bound address, empty before Start.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// BaseURL prefers the bound address so port 0 resolves to the real port.
func (s *Server) BaseURL() string {
	if addr := s.Addr(); addr != "" {
		return "http://" + addr
	}
	return s.settings.URL()
}

func (s *Server) Status() ServerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Server) uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.started.IsZero() {
		return 0
	}
	return s.clock().Sub(s.started)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}
