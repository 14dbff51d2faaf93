package skill

import (
	"strings"

	"github.com/kingrea/skilltree/internal/dom"
)

// Strategy recovers a code from one element, or reports no match.
type Strategy interface {
	Name() string
	Extract(el *dom.Element) (Code, bool)
}

// IDStrategy reads a code embedded in the element id.
type IDStrategy struct{}

func (IDStrategy) Name() string { return "id" }

func (IDStrategy) Extract(el *dom.Element) (Code, bool) {
	return Find(el.ID())
}

// DatasetStrategy reads the first present dataset key. The value must name
// exactly one code: reference lists such as data-ac="AC11,AC12" belong to
// bundles and are not atomic. A bundle is therefore never restyled as the
// atom of its first code, so the bundle pass keeps the max over all of its
// codes instead of being overwritten by the first one.
type DatasetStrategy struct {
	Keys []string
}

func (DatasetStrategy) Name() string { return "dataset" }

func (s DatasetStrategy) Extract(el *dom.Element) (Code, bool) {
	for _, key := range s.Keys {
		v, ok := el.Data(key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		codes := FindAll(v)
		if len(codes) != 1 {
			return "", false
		}
		return codes[0], true
	}
	return "", false
}

// TitleStrategy reads a code from a direct <title> child.
type TitleStrategy struct{}

func (TitleStrategy) Name() string { return "title" }

func (TitleStrategy) Extract(el *dom.Element) (Code, bool) {
	for _, child := range el.Children() {
		if child.Tag() == "title" {
			return Find(child.Text())
		}
	}
	return "", false
}

// DefaultDatasetKeys is the dataset try-order.
var DefaultDatasetKeys = []string{"code", "ac", "dataCode", "name"}

// Extractor runs strategies in order and stops at the first hit.
type Extractor struct {
	strategies []Strategy
}

// NewExtractor builds an extractor; with no strategies it uses the default
// id → dataset → title order.
func NewExtractor(strategies ...Strategy) Extractor {
	if len(strategies) == 0 {
		strategies = []Strategy{
			IDStrategy{},
			DatasetStrategy{Keys: DefaultDatasetKeys},
			TitleStrategy{},
		}
	}
	return Extractor{strategies: strategies}
}

// Extract returns the element's code.
func (x Extractor) Extract(el *dom.Element) (Code, bool) {
	if el == nil {
		return "", false
	}
	code, _, ok := x.ExtractWith(el)
	return code, ok
}

// ExtractWith also reports which strategy matched.
func (x Extractor) ExtractWith(el *dom.Element) (Code, string, bool) {
	strategies := x.strategies
	if len(strategies) == 0 {
		strategies = NewExtractor().strategies
	}
	for _, s := range strategies {
		if code, ok := s.Extract(el); ok {
			return code, s.Name(), true
		}
	}
	return "", "", false
}
