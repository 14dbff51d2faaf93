package wiring

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/kingrea/skilltree/internal/dom"
	"github.com/kingrea/skilltree/internal/motion"
	"github.com/kingrea/skilltree/internal/palette"
	"github.com/kingrea/skilltree/internal/skill"
	"github.com/kingrea/skilltree/internal/store"
	"github.com/kingrea/skilltree/internal/taxonomy"
	"github.com/kingrea/skilltree/internal/visual"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const tree = `<svg id="tree">
  <g id="AC11" class="ac-chip"><rect id="background-AC11"/><circle id="c11"/><text class="label">AC11</text></g>
  <g id="AC12"><rect id="r12"/></g>
  <g id="AC13"><rect id="r13"/></g>
  <g id="cable-1" data-ac="AC11,AC12"><path id="cable-path"/></g>
  <g id="ram-1" class="ram" data-acs="AC11,AC12,AC13,AC14">
    <rect class="ram-seg"/><rect class="ram-seg"/><rect class="ram-seg"/><rect class="ram-seg"/>
  </g>
  <g id="fan-1" class="fan" data-acs="AC11,AC12,AC13"><path id="pale1"/><path id="pale2"/></g>
  <g id="fan-dev" class="fan" data-name="Ventilateur Développer"><path id="pale3"/></g>
</svg>`

const groups = `{
  "UE4": {"libelle_long": "Développer pour le web", "niveaux": [{"annee": 1, "acs": [{"code": "AC11", "libelle": "a"}, {"code": "AC12", "libelle": "b"}]}]},
  "UE2": {"libelle_long": "Concevoir", "niveaux": [{"annee": 1, "acs": [{"code": "AC13", "libelle": "c"}]}]}
}`

type harness struct {
	doc   *dom.Document
	store *store.MemoryStore
	ctrl  *Controller
}

func newHarness(t *testing.T, scores map[string]string, opts ...Option) *harness {
	t.Helper()
	doc, err := dom.ParseString(tree)
	if err != nil {
		t.Fatalf("parse tree: %v", err)
	}
	tax, err := taxonomy.Parse([]byte(groups))
	if err != nil {
		t.Fatalf("parse taxonomy: %v", err)
	}
	st := store.NewMemory(scores)
	ctrl := New(st, opts...)
	t.Cleanup(func() {
		ctrl.Close()
		st.Close()
	})
	if err := ctrl.Init(context.Background(), doc.Root(), tax); err != nil {
		t.Fatalf("init: %v", err)
	}
	return &harness{doc: doc, store: st, ctrl: ctrl}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestInitRunsFirstPass(t *testing.T) {
	h := newHarness(t, nil)
	if h.ctrl.State() != StateSynchronized || h.ctrl.Passes() != 1 {
		t.Fatalf("state=%s passes=%d", h.ctrl.State(), h.ctrl.Passes())
	}
}

func TestUpdateBeforeInit(t *testing.T) {
	c := New(store.NewMemory(nil))
	if _, err := c.Update(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("Update err = %v", err)
	}
	if err := c.Init(context.Background(), nil, nil); err == nil {
		t.Fatalf("expected error for nil root")
	}
}

func TestPassIsIdempotent(t *testing.T) {
	h := newHarness(t, map[string]string{"AC11": "100", "AC12": "40", "AC13": "n/a"})
	first := h.ctrl.Snapshot()
	if _, err := h.ctrl.Update(); err != nil {
		t.Fatalf("update: %v", err)
	}
	if diff := cmp.Diff(first, h.ctrl.Snapshot()); diff != "" {
		t.Fatalf("second pass changed the tree (-first +second):\n%s", diff)
	}
}

func TestCableTakesMaxProgress(t *testing.T) {
	h := newHarness(t, map[string]string{"AC11": "40", "AC12": "100"})
	cable := h.doc.ByID("cable-1")
	if !cable.HasClass(visual.ClassDone) {
		t.Fatalf("cable classes = %v", cable.Classes())
	}
	path := h.doc.ByID("cable-path")
	if path.Style("stroke") != "#00ff41" || path.Style("fill") != "none" || path.Style("stroke-opacity") != "1" {
		t.Fatalf("cable path style = %q", attr(path, "style"))
	}
	if got := cable.Style(visual.WiringProperty); got != "#00ff41" {
		t.Fatalf("wiring color = %q", got)
	}
}

func TestAtomicNodes(t *testing.T) {
	h := newHarness(t, map[string]string{"AC11": "60", "AC13": "100"})
	chip := h.doc.ByID("AC11")
	if !chip.HasClass(visual.ClassPending) {
		t.Fatalf("AC11 classes = %v", chip.Classes())
	}
	if got := h.doc.ByID("c11").Style("fill"); got != palette.Neutral {
		t.Fatalf("pending chip shape fill = %q", got)
	}
	if got := h.doc.ByID("r13").Style("fill"); got != "#ffd700" {
		t.Fatalf("AC13 fill = %q, want concevoir color", got)
	}
	if !h.doc.ByID("AC13").HasClass(visual.ClassDone) {
		t.Fatalf("AC13 should be done")
	}
	if got := h.doc.ByID("r12").Style("stroke"); got != palette.Neutral {
		t.Fatalf("unscored AC12 stroke = %q", got)
	}
}

func TestSegmentedIndicator(t *testing.T) {
	h := newHarness(t, map[string]string{"AC11": "100", "AC12": "50", "AC13": "100", "AC14": "0"})
	var lit []bool
	for _, seg := range h.doc.ByID("ram-1").Find(".ram-seg") {
		lit = append(lit, seg.HasClass(visual.ClassLit))
	}
	if diff := cmp.Diff([]bool{true, true, false, false}, lit); diff != "" {
		t.Fatalf("lit segments mismatch:\n%s", diff)
	}
	seg := h.doc.ByID("ram-1").First(".ram-seg")
	if got := seg.Style("fill"); got != "#00ff41" {
		t.Fatalf("lit segment color = %q", got)
	}
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func TestAggregateSpeed(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	reg := motion.NewRegistry(motion.WithClock(clock.Now))
	var last PassResult
	h := newHarness(t, map[string]string{"AC11": "100", "AC12": "20"}, WithMotion(reg), WithObserver(func(r PassResult) { last = r }))

	fans := map[string]FanTarget{}
	for _, f := range last.Fans {
		fans[f.ID] = f
	}
	explicit := fans["fan-1"]
	if explicit.Done != 1 || len(explicit.Codes) != 3 || math.Abs(explicit.Target-4.0/9.0) > 1e-9 {
		t.Fatalf("fan-1 = %+v", explicit)
	}
	if got := h.doc.ByID("fan-1").Style(visual.SpeedProperty); got != "0.444" {
		t.Fatalf("fan-1 speed property = %q", got)
	}
	inferred := fans["fan-dev"]
	if diff := cmp.Diff([]skill.Code{"AC11", "AC12"}, inferred.Codes); diff != "" {
		t.Fatalf("inferred codes mismatch:\n%s", diff)
	}
	if math.Abs(inferred.Target-1) > 1e-9 {
		t.Fatalf("fan-dev target = %v, want 1", inferred.Target)
	}

	clock.now = clock.now.Add(time.Second)
	if err := h.store.Set("AC11", "0"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := h.ctrl.Update(); err != nil {
		t.Fatalf("update: %v", err)
	}
	for _, f := range last.Fans {
		if f.ID != "fan-1" {
			continue
		}
		if f.Target != 0 || f.Frame.State != motion.StateDecelerating || f.Frame.Speed <= 0 {
			t.Fatalf("fan-1 should decelerate, got %+v", f)
		}
	}
	if v, _ := h.doc.ByID("fan-1").Data("fanState"); v != "idle" {
		t.Fatalf("fan state = %q", v)
	}
}

func TestRemovedFanStopsSpinning(t *testing.T) {
	h := newHarness(t, map[string]string{"AC11": "100"})
	if got := len(h.ctrl.Motion().Frames()); got != 2 {
		t.Fatalf("frames after init = %d, want 2", got)
	}

	h.ctrl.Do(func(*dom.Element) {
		h.doc.ByID("fan-1").Remove()
	})
	if _, err := h.ctrl.Update(); err != nil {
		t.Fatalf("update: %v", err)
	}
	frames := h.ctrl.Motion().Frames()
	if len(frames) != 1 || frames[0].ID != "fan-dev" {
		t.Fatalf("frames = %+v, want only fan-dev", frames)
	}

	h.ctrl.Do(func(*dom.Element) {
		h.doc.ByID("fan-dev").Remove()
	})
	if _, err := h.ctrl.Update(); err != nil {
		t.Fatalf("update: %v", err)
	}
	if frames := h.ctrl.Motion().Frames(); len(frames) != 0 {
		t.Fatalf("frames = %+v, want none", frames)
	}
}

func TestFanWithoutBladesHasNoSpinner(t *testing.T) {
	doc, err := dom.ParseString(`<svg id="tree">
  <g id="AC11"><rect/></g>
  <g id="fan-bare" class="fan" data-acs="AC11"></g>
</svg>`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	c := New(store.NewMemory(map[string]string{"AC11": "100"}))
	defer c.Close()
	var last PassResult
	c.observers = append(c.observers, func(r PassResult) { last = r })
	if err := c.Init(context.Background(), doc.Root(), nil); err != nil {
		t.Fatalf("init: %v", err)
	}
	if len(last.Fans) != 1 || last.Fans[0].Target != 4 || last.Fans[0].Frame != (motion.Frame{}) {
		t.Fatalf("fans = %+v", last.Fans)
	}
	if frames := c.Motion().Frames(); len(frames) != 0 {
		t.Fatalf("frames = %+v, want none", frames)
	}
	if got := doc.ByID("fan-bare").Style(visual.SpeedProperty); got != "4.000" {
		t.Fatalf("speed property = %q", got)
	}
}

func TestStorageChangeTriggersOnePass(t *testing.T) {
	h := newHarness(t, nil)
	sub := h.store.Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.ctrl.Run(ctx, sub.Changes) }()
	defer func() {
		cancel()
		<-done
	}()

	if err := h.store.ApplyRemote("AC11", "100"); err != nil {
		t.Fatalf("apply: %v", err)
	}
	waitFor(t, "second pass", func() bool { return h.ctrl.Passes() == 2 })
	time.Sleep(50 * time.Millisecond)
	if got := h.ctrl.Passes(); got != 2 {
		t.Fatalf("passes = %d, want exactly one more after init", got)
	}
	var done11 bool
	h.ctrl.Do(func(*dom.Element) { done11 = h.doc.ByID("AC11").HasClass(visual.ClassDone) })
	if !done11 {
		t.Fatalf("AC11 did not gain %s", visual.ClassDone)
	}
}

func TestRelevance(t *testing.T) {
	cases := []struct {
		change store.Change
		want   bool
	}{
		{store.Change{Key: "AC11", NewValue: "100"}, true},
		{store.Change{Key: "ac21_note", NewValue: "ok"}, true},
		{store.Change{Key: "ac_history", NewValue: `[{"code":"AC11"}]`}, true},
		{store.Change{Key: "ac_history", NewValue: `[{"code":"ac11"}]`}, false},
		{store.Change{Key: "parcours", NewValue: "dev"}, false},
	}
	for _, tc := range cases {
		if got := Relevant(tc.change); got != tc.want {
			t.Fatalf("Relevant(%+v) = %v", tc.change, got)
		}
	}
	h := newHarness(t, nil)
	if h.ctrl.HandleChange(store.Change{Key: "theme", NewValue: "dark"}) {
		t.Fatalf("irrelevant change requested a pass")
	}
}

func TestEventsTriggerPass(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.ctrl.Run(ctx, nil) }()
	defer func() {
		cancel()
		<-done
	}()

	if h.ctrl.Notify("zoom:changed") {
		t.Fatalf("unknown event should be ignored")
	}
	if !h.ctrl.Notify(EventScoreUpdated) {
		t.Fatalf("ac:updated should trigger")
	}
	waitFor(t, "pass after ac:updated", func() bool { return h.ctrl.Passes() >= 2 })
	passes := h.ctrl.Passes()
	h.ctrl.Notify(EventTrackSelected)
	waitFor(t, "pass after parcours:selected", func() bool { return h.ctrl.Passes() > passes })
}

func TestDetachedRootIsDeferred(t *testing.T) {
	doc, err := dom.ParseString(`<svg id="host"></svg>`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	frag, err := doc.Fragment(`<svg id="late"><g id="AC11"><rect/></g></svg>`)
	if err != nil {
		t.Fatalf("fragment: %v", err)
	}
	st := store.NewMemory(map[string]string{"AC11": "100"})
	c := New(st, WithFrameInterval(time.Millisecond))
	defer c.Close()

	if err := c.Init(context.Background(), frag, nil); err != nil {
		t.Fatalf("init: %v", err)
	}
	if c.State() != StateUninitialized || c.Passes() != 0 {
		t.Fatalf("detached root ran a pass: state=%s passes=%d", c.State(), c.Passes())
	}
	res, err := c.Update()
	if err != nil || !res.Skipped {
		t.Fatalf("Update on detached root = %+v, %v", res, err)
	}

	c.Do(func(root *dom.Element) { doc.Root().Append(root) })
	waitFor(t, "deferred pass", func() bool { return c.Passes() == 1 })
	if c.State() != StateSynchronized {
		t.Fatalf("state = %s", c.State())
	}
	if !strings.Contains(c.Snapshot(), visual.ClassDone) {
		t.Fatalf("deferred pass did not style the tree")
	}
}

func TestDeferredPassStopsOnClose(t *testing.T) {
	doc, err := dom.ParseString(`<svg></svg>`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	frag, err := doc.Fragment(`<svg><g id="AC11"></g></svg>`)
	if err != nil {
		t.Fatalf("fragment: %v", err)
	}
	c := New(store.NewMemory(nil), WithFrameInterval(time.Millisecond))
	if err := c.Init(context.Background(), frag, nil); err != nil {
		t.Fatalf("init: %v", err)
	}
	c.Close()
	if c.Passes() != 0 {
		t.Fatalf("closed controller ran a pass")
	}
}

type captureLogger struct{ lines []string }

func (l *captureLogger) Printf(format string, args ...any) {
	l.lines = append(l.lines, format)
}

func TestElementFailureIsContained(t *testing.T) {
	logger := &captureLogger{}
	doc, err := dom.ParseString(tree)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	c := New(store.NewMemory(map[string]string{"AC11": "100", "AC12": "100"}), WithLogger(logger))
	defer c.Close()
	c.beforeApply = func(el *dom.Element) {
		if el.ID() == "AC12" {
			panic("malformed node")
		}
	}
	var last PassResult
	c.observers = append(c.observers, func(r PassResult) { last = r })
	if err := c.Init(context.Background(), doc.Root(), nil); err != nil {
		t.Fatalf("init: %v", err)
	}
	if last.Failures != 1 {
		t.Fatalf("failures = %d, want 1", last.Failures)
	}
	if !doc.ByID("AC11").HasClass(visual.ClassDone) {
		t.Fatalf("sibling element was not styled after failure")
	}
	if doc.ByID("AC12").HasClass(visual.ClassDone) {
		t.Fatalf("failed element should be untouched")
	}
	found := false
	for _, line := range logger.lines {
		if strings.Contains(line, "failed") {
			found = true
		}
	}
	if !found {
		t.Fatalf("failure was not logged: %v", logger.lines)
	}
}

func attr(el *dom.Element, name string) string {
	v, _ := el.Attr(name)
	return v
}
