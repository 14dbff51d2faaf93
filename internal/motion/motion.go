// Package motion turns completion ratios into rotation speeds and eases
// aggregates between speeds over time.
package motion

import (
	"math"
	"sort"
	"sync"
	"time"
)

const (
	DefaultPower      = 2.0
	DefaultMaxSpeed   = 4.0
	DefaultEaseWindow = 500 * time.Millisecond
	DefaultStopWindow = 1500 * time.Millisecond
)

// Curve maps a completion ratio to a target speed: ratio^Power × MaxSpeed.
type Curve struct {
	Power    float64
	MaxSpeed float64
}

// DefaultCurve is power 2, four rotation units.
func DefaultCurve() Curve {
	return Curve{Power: DefaultPower, MaxSpeed: DefaultMaxSpeed}
}

// Speed clamps ratio to [0, 1] and applies the curve.
func (c Curve) Speed(ratio float64) float64 {
	if math.IsNaN(ratio) || ratio <= 0 {
		return 0
	}
	if ratio > 1 {
		ratio = 1
	}
	power := c.Power
	if power <= 0 {
		power = DefaultPower
	}
	return math.Pow(ratio, power) * c.MaxSpeed
}

// Ratio is done/total, or 0 for an empty set.
func Ratio(done, total int) float64 {
	if total <= 0 || done <= 0 {
		return 0
	}
	if done > total {
		return 1
	}
	return float64(done) / float64(total)
}

// State describes where a spinner is in its easing.
type State string

const (
	StateStopped      State = "stopped"
	StateEasing       State = "easing"
	StateRunning      State = "running"
	StateDecelerating State = "decelerating"
)

// Spinner eases one aggregate between speeds with a quadratic ease-out.
type Spinner struct {
	from   float64
	target float64
	start  time.Time
	window time.Duration
}

// Retarget starts easing from the current speed toward target. Slowing to
// zero uses stop; anything else uses ease. Retargeting to the current target
// keeps the easing in flight.
func (s *Spinner) Retarget(target float64, now time.Time, ease, stop time.Duration) {
	if target < 0 {
		target = 0
	}
	if target == s.target {
		return
	}
	current := s.Speed(now)
	s.from = current
	s.target = target
	s.start = now
	s.window = ease
	if target == 0 {
		s.window = stop
	}
}

// Speed is the eased speed at now.
func (s *Spinner) Speed(now time.Time) float64 {
	p := s.progress(now)
	eased := 1 - (1-p)*(1-p)
	return s.from + (s.target-s.from)*eased
}

// Target is the speed being eased toward.
func (s *Spinner) Target() float64 {
	return s.target
}

// State reports the phase at now.
func (s *Spinner) State(now time.Time) State {
	settled := s.progress(now) >= 1
	switch {
	case s.target == 0 && (settled || s.from == 0):
		return StateStopped
	case s.target == 0:
		return StateDecelerating
	case settled:
		return StateRunning
	default:
		return StateEasing
	}
}

func (s *Spinner) progress(now time.Time) float64 {
	if s.window <= 0 || s.start.IsZero() {
		return 1
	}
	elapsed := now.Sub(s.start)
	if elapsed <= 0 {
		return 0
	}
	if elapsed >= s.window {
		return 1
	}
	return float64(elapsed) / float64(s.window)
}

// Frame is a spinner snapshot.
type Frame struct {
	ID     string  `json:"id"`
	Speed  float64 `json:"speed"`
	Target float64 `json:"target"`
	State  State   `json:"state"`
}

// Option customizes a Registry.
type Option func(*Registry)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(r *Registry) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithWindows overrides the ease and stop windows.
func WithWindows(ease, stop time.Duration) Option {
	return func(r *Registry) {
		if ease > 0 {
			r.ease = ease
		}
		if stop > 0 {
			r.stop = stop
		}
	}
}

// Registry keeps one spinner per aggregate across passes.
type Registry struct {
	mu       sync.Mutex
	spinners map[string]*Spinner
	clock    func() time.Time
	ease     time.Duration
	stop     time.Duration
}

// NewRegistry builds an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		spinners: map[string]*Spinner{},
		clock:    time.Now,
		ease:     DefaultEaseWindow,
		stop:     DefaultStopWindow,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Drive retargets the spinner for id and returns its frame.
func (r *Registry) Drive(id string, target float64) Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.spinners[id]
	if s == nil {
		s = &Spinner{}
		r.spinners[id] = s
	}
	now := r.clock()
	s.Retarget(target, now, r.ease, r.stop)
	return frame(id, s, now)
}

// Frames reports every spinner, sorted by id.
func (r *Registry) Frames() []Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clock()
	out := make([]Frame, 0, len(r.spinners))
	for id, s := range r.spinners {
		out = append(out, frame(id, s, now))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Forget drops a spinner whose element left the tree.
func (r *Registry) Forget(id string) {
	r.mu.Lock()
	delete(r.spinners, id)
	r.mu.Unlock()
}

func frame(id string, s *Spinner, now time.Time) Frame {
	return Frame{ID: id, Speed: s.Speed(now), Target: s.Target(), State: s.State(now)}
}
