// Package visual writes presentation state onto tree elements: classes,
// inline style, and custom properties. It only sets final target values;
// transitions belong to the renderer.
package visual

import (
	"regexp"
	"strconv"

	"github.com/kingrea/skilltree/internal/dom"
	"github.com/kingrea/skilltree/internal/palette"
	"github.com/kingrea/skilltree/internal/score"
	"github.com/kingrea/skilltree/internal/skill"
)

const (
	// ShapeSelector matches drawable primitives.
	ShapeSelector = "path, rect, circle, ellipse, polygon, polyline, line"
	// LabelSelector matches text that must stay neutral.
	LabelSelector = ".label, text"
	// BladeSelector matches the rotating parts of an aggregate.
	BladeSelector = `[id^="pale"]`

	ClassDone      = "has-current"
	ClassPending   = "no-current"
	ClassLit       = "lit"
	ClassChip      = "ac-chip"
	WiringProperty = "--wiring-color"
	SpeedProperty  = "--fan-speed"
)

var (
	backplateID = regexp.MustCompile(`(?i)^(background|forground)`)
	selfShape   = regexp.MustCompile(`(?i)path|rect|circle|line`)
	chipID      = regexp.MustCompile(`AC\d+`)
)

// Apply writes the lit/unlit state of el. Cables are stroke-only and use
// three opacity tiers; other elements use fill, except backplates which keep
// a black fill and signal state through the stroke.
func Apply(el *dom.Element, color string, progress float64, cable bool) {
	if el == nil {
		return
	}
	done := score.Done(progress)
	active := progress > 0
	el.ToggleClass(ClassDone, done)
	el.ToggleClass(ClassPending, !done)

	dColor := palette.Neutral
	if active && color != "" {
		dColor = color
	}

	for _, s := range shapes(el) {
		remember(s)
		switch {
		case cable:
			s.SetStyle("stroke", dColor)
			s.SetStyle("stroke-opacity", tier(done, active, "1", "0.75", "0.6"))
			s.SetStyle("opacity", tier(done, active, "1", "0.85", "0.9"))
			s.SetStyle("fill", "none")
		case backplateID.MatchString(s.ID()):
			s.SetStyle("stroke", dColor)
			s.SetStyle("opacity", tier(done, active, "1", "0.7", "1"))
			s.SetStyle("fill", palette.Backplate)
		default:
			if active {
				s.SetStyle("fill", dColor)
			} else {
				s.SetStyle("fill", "")
			}
			if done {
				s.SetStyle("stroke", "")
			} else {
				s.SetStyle("stroke", dColor)
			}
			s.SetStyle("opacity", tier(done, active, "1", "0.6", "1"))
		}
	}
	if cable {
		el.SetStyle(WiringProperty, dColor)
	}
	Contrast(el)
}

// Contrast keeps labels neutral and, on chips that are not done, forces the
// shapes back to neutral so only completed nodes show an accent.
func Contrast(el *dom.Element) {
	if el == nil {
		return
	}
	for _, n := range el.Find(LabelSelector) {
		n.SetStyle("color", palette.Neutral)
		n.SetStyle("fill", palette.Neutral)
	}
	if !el.HasClass(ClassChip) && !chipID.MatchString(el.ID()) {
		return
	}
	el.SetStyle("color", palette.Neutral)
	if el.HasClass(ClassDone) {
		return
	}
	for _, s := range el.Find(ShapeSelector) {
		if backplateID.MatchString(s.ID()) {
			s.SetStyle("stroke", palette.Neutral)
		} else {
			s.SetStyle("fill", palette.Neutral)
		}
	}
}

// Segments lights the first lit segments of a segmented indicator. Lit
// segments use the element's data-color, else fallback, else the default
// accent; the rest are neutral.
func Segments(el *dom.Element, lit int, fallback string) {
	if el == nil {
		return
	}
	accent := palette.DefaultAccent
	if fallback != "" {
		accent = fallback
	}
	if v, ok := el.Data("color"); ok && v != "" {
		accent = v
	}
	for i, seg := range el.Find("." + skill.SegmentItemClass) {
		on := i < lit
		seg.ToggleClass(ClassLit, on)
		seg.ToggleClass(ClassPending, !on)
		c := palette.Neutral
		if on {
			c = accent
		}
		seg.SetStyle("background", c)
		seg.SetStyle("fill", c)
		seg.SetStyle("opacity", "1")
	}
}

// LitCount counts completed progress values.
func LitCount(progress []float64) int {
	n := 0
	for _, p := range progress {
		if score.Done(p) {
			n++
		}
	}
	return n
}

// Rotation records an aggregate's target speed. The running flag is the
// target state; easing toward it is the motion layer's job.
func Rotation(el *dom.Element, target float64) {
	if el == nil {
		return
	}
	el.SetStyle(SpeedProperty, strconv.FormatFloat(target, 'f', 3, 64))
	state := "idle"
	if target > 0 {
		state = "running"
	}
	el.SetData("fanState", state)
}

// Blades returns the rotating parts of an aggregate.
func Blades(el *dom.Element) []*dom.Element {
	if el == nil {
		return nil
	}
	return el.Find(BladeSelector)
}

func shapes(el *dom.Element) []*dom.Element {
	found := el.Find(ShapeSelector)
	if len(found) == 0 && selfShape.MatchString(el.Tag()) {
		return []*dom.Element{el}
	}
	return found
}

// remember stores the original stroke and width once, for renderers that
// restore them.
func remember(s *dom.Element) {
	if _, ok := s.Data("os"); !ok {
		v, _ := s.Attr("stroke")
		s.SetData("os", v)
	}
	if _, ok := s.Data("osw"); !ok {
		v, ok := s.Attr("stroke-width")
		if !ok || v == "" {
			v = s.Style("stroke-width")
		}
		if v == "" {
			v = "2"
		}
		s.SetData("osw", v)
	}
}

func tier(done, active bool, full, partial, none string) string {
	switch {
	case done:
		return full
	case active:
		return partial
	default:
		return none
	}
}
