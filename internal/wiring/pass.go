package wiring

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kingrea/skilltree/internal/color"
	"github.com/kingrea/skilltree/internal/dom"
	"github.com/kingrea/skilltree/internal/motion"
	"github.com/kingrea/skilltree/internal/palette"
	"github.com/kingrea/skilltree/internal/score"
	"github.com/kingrea/skilltree/internal/skill"
	"github.com/kingrea/skilltree/internal/visual"
)

// PassResult summarizes one pass.
type PassResult struct {
	Pass       int
	Skipped    bool
	Bundles    int
	Atomics    int
	Segments   int
	Aggregates int
	Failures   int
	Fans       []FanTarget
	Duration   time.Duration
}

// FanTarget is the outcome for one rotating aggregate. Frame is zero when
// the aggregate has no blades.
type FanTarget struct {
	ID     string       `json:"id"`
	Codes  []skill.Code `json:"codes"`
	Done   int          `json:"done"`
	Ratio  float64      `json:"ratio"`
	Target float64      `json:"target"`
	Frame  motion.Frame `json:"frame"`
}

type classified struct {
	el   *dom.Element
	kind skill.Kind
	code skill.Code
	ok   bool
}

// Update runs one full pass: bundles, then every single-code element, then
// segmented indicators, then rotating aggregates. One color map is built per
// pass. A failure on one element is logged and counted, never propagated.
func (c *Controller) Update() (PassResult, error) {
	c.mu.Lock()
	if c.root == nil {
		c.mu.Unlock()
		return PassResult{}, ErrNotInitialized
	}
	if !c.root.Connected() {
		c.mu.Unlock()
		c.logger.Printf("wiring: root is detached, skipping pass")
		return PassResult{Skipped: true}, nil
	}
	start := time.Now()
	res := c.pass()
	c.passes++
	res.Pass = c.passes
	c.state = StateSynchronized
	res.Duration = time.Since(start)
	observers := c.observers
	c.mu.Unlock()

	c.logger.Printf("wiring: pass %d: %d bundles, %d atomic, %d segmented, %d aggregates, %d failures (%s)",
		res.Pass, res.Bundles, res.Atomics, res.Segments, res.Aggregates, res.Failures, res.Duration.Round(time.Microsecond))
	for _, fn := range observers {
		fn(res)
	}
	return res, nil
}

func (c *Controller) pass() PassResult {
	var res PassResult
	resolver := color.New(c.root, c.tax, color.WithPrecedence(c.precedence), color.WithExtractor(c.extract))
	colors := resolver.BuildMap()

	elements := c.root.All()
	items := make([]classified, 0, len(elements))
	for _, el := range elements {
		code, ok := c.extract.Extract(el)
		items = append(items, classified{el: el, kind: skill.Classify(el, c.extract), code: code, ok: ok})
	}

	for _, it := range items {
		if it.kind != skill.KindBundle {
			continue
		}
		v, _ := it.el.Data("ac")
		codes := skill.ParseList(v)
		if len(codes) == 0 {
			continue
		}
		c.guard(&res, it.el, func() {
			progress := 0.0
			for _, code := range codes {
				if p := c.model.Progress(code); p > progress {
					progress = p
				}
			}
			visual.Apply(it.el, resolver.Color(codes[0]), progress, true)
			res.Bundles++
		})
	}

	for _, it := range items {
		if !it.ok {
			continue
		}
		c.guard(&res, it.el, func() {
			visual.Apply(it.el, resolver.Color(it.code), c.model.Progress(it.code), false)
			res.Atomics++
		})
	}

	for _, it := range items {
		if it.kind != skill.KindSegment {
			continue
		}
		c.guard(&res, it.el, func() {
			codes := skill.References(it.el)
			fallback := ""
			if len(codes) > 0 {
				fallback = resolver.Color(codes[0])
			}
			progress := make([]float64, len(codes))
			for i, code := range codes {
				progress[i] = c.model.Progress(code)
			}
			visual.Segments(it.el, visual.LitCount(progress), fallback)
			res.Segments++
		})
	}

	spinning := map[string]bool{}
	for i, it := range items {
		if it.kind != skill.KindAggregate {
			continue
		}
		c.guard(&res, it.el, func() {
			fan := c.aggregate(it.el, colors, i)
			if fan.Frame.ID != "" {
				spinning[fan.ID] = true
			}
			res.Fans = append(res.Fans, fan)
			res.Aggregates++
		})
	}
	for _, f := range c.motion.Frames() {
		if !spinning[f.ID] {
			c.motion.Forget(f.ID)
		}
	}
	return res
}

func (c *Controller) aggregate(el *dom.Element, colors color.Map, index int) FanTarget {
	codes := aggregateCodes(el, colors)
	done := 0
	for _, code := range codes {
		if score.Done(c.model.Progress(code)) {
			done++
		}
	}
	ratio := motion.Ratio(done, len(codes))
	target := c.curve.Speed(ratio)
	visual.Rotation(el, target)

	id := el.ID()
	if id == "" {
		id = fmt.Sprintf("aggregate-%d", index)
	}
	// Without blades there is nothing to spin: the target is recorded but
	// no spinner is kept.
	var frame motion.Frame
	if len(visual.Blades(el)) > 0 {
		frame = c.motion.Drive(id, target)
	}
	if d, ok := c.logger.(debugLogger); ok {
		d.Debugf("wiring: aggregate %s: %d/%d done, target %.3f", id, done, len(codes), target)
	}
	return FanTarget{ID: id, Codes: codes, Done: done, Ratio: ratio, Target: target, Frame: frame}
}

// aggregateCodes returns the explicit reference list, or else every mapped
// code sharing the aggregate's color. That color is data-color, else the
// category named by the aggregate (data-name, id, or title).
func aggregateCodes(el *dom.Element, colors color.Map) []skill.Code {
	if codes := skill.References(el); len(codes) > 0 {
		return codes
	}
	want, _ := el.Data("color")
	if strings.TrimSpace(want) == "" {
		cat, ok := palette.Classify(aggregateName(el))
		if !ok {
			return nil
		}
		want = cat.Color
	}
	var codes []skill.Code
	for code, c := range colors {
		if palette.SameColor(c, want) {
			codes = append(codes, code)
		}
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

func aggregateName(el *dom.Element) string {
	if v, ok := el.Data("name"); ok && strings.TrimSpace(v) != "" {
		return v
	}
	if id := el.ID(); id != "" {
		return id
	}
	for _, child := range el.Children() {
		if child.Tag() == "title" {
			return child.Text()
		}
	}
	return ""
}

func (c *Controller) guard(res *PassResult, el *dom.Element, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			res.Failures++
			c.logger.Printf("wiring: element %q failed: %v", el.ID(), r)
		}
	}()
	if c.beforeApply != nil {
		c.beforeApply(el)
	}
	fn()
}
