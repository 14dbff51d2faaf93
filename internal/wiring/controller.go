// Package wiring keeps a skill tree in sync with stored scores. A Controller
// owns one root element; each pass rebuilds the color map and re-applies the
// visual state of every bundle, atomic node, segmented indicator and rotating
// aggregate under it. Passes derive everything from the store, the taxonomy
// and the live tree, so repeating one is harmless.
package wiring

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kingrea/skilltree/internal/color"
	"github.com/kingrea/skilltree/internal/dom"
	"github.com/kingrea/skilltree/internal/motion"
	"github.com/kingrea/skilltree/internal/score"
	"github.com/kingrea/skilltree/internal/skill"
	"github.com/kingrea/skilltree/internal/store"
	"github.com/kingrea/skilltree/internal/taxonomy"
)

// ErrNotInitialized is returned by Update before Init.
var ErrNotInitialized = errors.New("wiring: controller not initialized")

// In-page notifications that always trigger a pass.
const (
	EventScoreUpdated  = "ac:updated"
	EventTrackSelected = "parcours:selected"
)

const defaultFrameInterval = 16 * time.Millisecond

// State is the controller lifecycle.
type State int

const (
	StateUninitialized State = iota
	StateAttached
	StateSynchronized
)

func (s State) String() string {
	switch s {
	case StateAttached:
		return "attached"
	case StateSynchronized:
		return "synchronized"
	default:
		return "uninitialized"
	}
}

// Logger matches logging.Logger.
type Logger interface {
	Printf(format string, args ...any)
}

type debugLogger interface {
	Debugf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Option customizes a Controller.
type Option func(*Controller)

// WithLogger routes pass diagnostics to logger.
func WithLogger(logger Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithCurve overrides the aggregate speed curve.
func WithCurve(curve motion.Curve) Option {
	return func(c *Controller) {
		c.curve = curve
	}
}

// WithPrecedence sets the color precedence used by every pass.
func WithPrecedence(p color.Precedence) Option {
	return func(c *Controller) {
		c.precedence = p
	}
}

// WithMotion shares a spinner registry, typically with the live view.
func WithMotion(r *motion.Registry) Option {
	return func(c *Controller) {
		if r != nil {
			c.motion = r
		}
	}
}

// WithFrameInterval sets how often a detached root is polled.
func WithFrameInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.frame = d
		}
	}
}

// WithExtractor replaces the default code extractor.
func WithExtractor(x skill.Extractor) Option {
	return func(c *Controller) {
		c.extract = x
	}
}

// WithObserver registers fn to run after every pass.
func WithObserver(fn func(PassResult)) Option {
	return func(c *Controller) {
		if fn != nil {
			c.observers = append(c.observers, fn)
		}
	}
}

// Controller synchronizes one tree. Tree access goes through its mutex, so
// callers that touch the tree concurrently should use Do.
type Controller struct {
	mu         sync.Mutex
	root       *dom.Element
	tax        *taxonomy.Taxonomy
	model      *score.Model
	extract    skill.Extractor
	precedence color.Precedence
	curve      motion.Curve
	motion     *motion.Registry
	frame      time.Duration
	logger     Logger
	observers  []func(PassResult)

	state  State
	passes int

	trigger chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
	closed  sync.Once

	// beforeApply runs inside each guarded element update; tests use it to
	// inject failures.
	beforeApply func(el *dom.Element)
}

// New builds a controller reading scores from r.
func New(r store.Reader, opts ...Option) *Controller {
	c := &Controller{
		model:   score.New(r),
		extract: skill.NewExtractor(),
		curve:   motion.DefaultCurve(),
		motion:  motion.NewRegistry(),
		frame:   defaultFrameInterval,
		logger:  nopLogger{},
		trigger: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Init binds root and the taxonomy. An attached root gets its first pass
// immediately. A detached root is polled once per frame interval until it is
// attached, ctx is cancelled, or the controller is closed.
func (c *Controller) Init(ctx context.Context, root *dom.Element, tax *taxonomy.Taxonomy) error {
	if root == nil {
		return errors.New("wiring: root element is required")
	}
	c.mu.Lock()
	c.root = root
	c.tax = tax
	attached := root.Connected()
	if attached {
		c.state = StateAttached
	}
	c.mu.Unlock()

	if attached {
		_, err := c.Update()
		return err
	}
	c.logger.Printf("wiring: root is detached, deferring first pass")
	c.wg.Add(1)
	go c.awaitAttach(ctx)
	return nil
}

func (c *Controller) awaitAttach(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.frame)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			attached := c.root.Connected()
			if attached && c.state == StateUninitialized {
				c.state = StateAttached
			}
			c.mu.Unlock()
			if attached {
				if _, err := c.Update(); err != nil {
					c.logger.Printf("wiring: first pass failed: %v", err)
				}
				return
			}
		}
	}
}

// Relevant reports whether a store change concerns skill scores: the key,
// or the old or new value, names a skill code.
func Relevant(ch store.Change) bool {
	return skill.Mentions(ch.Key) || skill.MentionsExact(ch.NewValue+ch.OldValue)
}

// HandleChange requests a pass for a relevant store change.
func (c *Controller) HandleChange(ch store.Change) bool {
	if !Relevant(ch) {
		return false
	}
	c.logger.Printf("wiring: store change on %s", ch.Key)
	c.Request()
	return true
}

// Notify requests a pass for a known in-page event.
func (c *Controller) Notify(event string) bool {
	switch event {
	case EventScoreUpdated, EventTrackSelected:
		c.logger.Printf("wiring: event %s", event)
		c.Request()
		return true
	default:
		return false
	}
}

// Request schedules a pass on the Run loop. Requests made while one is
// already pending coalesce.
func (c *Controller) Request() {
	select {
	case c.trigger <- struct{}{}:
	default:
	}
}

// Run executes requested passes and consumes changes until ctx is done or
// the controller is closed. A nil changes channel is allowed.
func (c *Controller) Run(ctx context.Context, changes <-chan store.Change) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return nil
		case ch, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			c.HandleChange(ch)
		case <-c.trigger:
			if _, err := c.Update(); err != nil && !errors.Is(err, ErrNotInitialized) {
				c.logger.Printf("wiring: pass failed: %v", err)
			}
		}
	}
}

// Do runs fn with exclusive access to the root.
func (c *Controller) Do(fn func(root *dom.Element)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.root)
}

// Snapshot renders the root with its current state.
func (c *Controller) Snapshot() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return dom.OuterHTML(c.root)
}

// State reports the lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Passes counts completed passes.
func (c *Controller) Passes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.passes
}

// Motion exposes the spinner registry.
func (c *Controller) Motion() *motion.Registry {
	return c.motion
}

// Close stops the attach poller and the Run loop.
func (c *Controller) Close() error {
	c.closed.Do(func() {
		close(c.done)
	})
	c.wg.Wait()
	return nil
}
