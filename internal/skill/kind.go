package skill

import "github.com/kingrea/skilltree/internal/dom"

// Kind tags how an element participates in a synchronization pass.
type Kind int

const (
	KindNone Kind = iota
	KindAtomic
	KindBundle
	KindSegment
	KindAggregate
)

func (k Kind) String() string {
	switch k {
	case KindAtomic:
		return "atomic"
	case KindBundle:
		return "bundle"
	case KindSegment:
		return "segment"
	case KindAggregate:
		return "aggregate"
	default:
		return "none"
	}
}

const (
	// SegmentClass marks a segmented indicator container.
	SegmentClass = "ram"
	// SegmentItemClass marks one segment inside it.
	SegmentItemClass = "ram-seg"
	// AggregateClass marks a rotating aggregate.
	AggregateClass = "fan"
)

// Classify decides the element kind. Segments and aggregates are recognized
// by class (or data-fan), bundles by a data-ac reference list, atomic
// elements by any extractable code.
func Classify(el *dom.Element, x Extractor) Kind {
	if el == nil {
		return KindNone
	}
	if el.HasClass(SegmentClass) {
		return KindSegment
	}
	if _, ok := el.Attr("data-fan"); ok || el.HasClass(AggregateClass) {
		return KindAggregate
	}
	if _, ok := el.Attr("data-ac"); ok {
		return KindBundle
	}
	if _, ok := x.Extract(el); ok {
		return KindAtomic
	}
	return KindNone
}

// References returns the reference list of a composite element, preferring
// data-acs over data-ac.
func References(el *dom.Element) []Code {
	if v, ok := el.Data("acs"); ok && v != "" {
		return ParseList(v)
	}
	v, _ := el.Data("ac")
	return ParseList(v)
}
