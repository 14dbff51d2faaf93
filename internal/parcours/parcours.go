// Package parcours handles the third-year specialization track: the
// persisted choice, its announcement and the nodes it hides.
package parcours

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kingrea/skilltree/internal/dom"
	"github.com/kingrea/skilltree/internal/eventbridge"
	"github.com/kingrea/skilltree/internal/store"
)

// Choice names a track.
type Choice string

const (
	Dev    Choice = "dev"
	Design Choice = "des"
	Com    Choice = "com"
	All    Choice = "all"

	// StorageKey holds the persisted choice. All is never stored.
	StorageKey = "parcours"
	// HiddenClass marks nodes outside the chosen track.
	HiddenClass = "node-hidden"
)

// Choices lists the selectable tracks in menu order.
var Choices = []Choice{Dev, Design, Com, All}

var hiddenByChoice = map[Choice][]string{
	Dev:    {"2", "3"},
	Design: {"2", "4"},
	Com:    {"3", "4"},
}

var yearIndexPattern = regexp.MustCompile(`(?i)(AC(\d)(\d)(?:\.\d+)?)`)

// Parse validates a choice name.
func Parse(s string) (Choice, bool) {
	c := Choice(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Choices {
		if c == known {
			return c, true
		}
	}
	return "", false
}

// Hidden returns the third-year skill indexes the choice hides.
func (c Choice) Hidden() []string {
	return hiddenByChoice[c]
}

// Label is the menu text of a choice.
func (c Choice) Label() string {
	switch c {
	case Dev:
		return "Développement web"
	case Design:
		return "Création numérique"
	case Com:
		return "Stratégie Com."
	case All:
		return "Tout afficher"
	default:
		return string(c)
	}
}

// Saved returns the persisted choice. ok is false when none was made, which
// is when the selector should be offered.
func Saved(r store.Reader) (Choice, bool) {
	if r == nil {
		return "", false
	}
	raw, ok := r.Get(StorageKey)
	if !ok || strings.TrimSpace(raw) == "" {
		return "", false
	}
	return Choice(strings.TrimSpace(raw)), true
}

// Logger matches logging.Logger.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Selector persists and announces track choices.
type Selector struct {
	store  store.Store
	sink   eventbridge.EventProcessor
	logger Logger
}

// NewSelector announces choices to sink, which may be nil.
func NewSelector(s store.Store, sink eventbridge.EventProcessor, logger Logger) *Selector {
	if sink == nil {
		sink = eventbridge.EventProcessorFunc(func(eventbridge.Event) error { return nil })
	}
	if logger == nil {
		logger = nopLogger{}
	}
	return &Selector{store: s, sink: sink, logger: logger}
}

// Select stores choice (All clears the stored one) and emits
// parcours:selected.
func (s *Selector) Select(choice string) (Choice, error) {
	c, ok := Parse(choice)
	if !ok {
		return "", fmt.Errorf("parcours: unknown choice %q", choice)
	}
	var err error
	if c == All {
		err = s.store.Remove(StorageKey)
	} else {
		err = s.store.Set(StorageKey, string(c))
	}
	if err != nil {
		return "", fmt.Errorf("parcours: persist %s: %w", c, err)
	}
	evt, err := eventbridge.NewEvent(eventbridge.TypeTrackSelected, "parcours", eventbridge.TrackDetail{Choice: string(c)})
	if err != nil {
		return c, err
	}
	if err := s.sink.HandleEvent(evt); err != nil {
		s.logger.Printf("parcours: announce %s: %v", c, err)
	}
	return c, nil
}

// Filter shows every coded node, then hides the third-year ones the choice
// excludes. It returns the number of hidden nodes.
func Filter(root *dom.Element, c Choice) int {
	if root == nil {
		return 0
	}
	hidden := c.Hidden()
	count := 0
	for _, el := range root.All() {
		year, index, ok := yearIndex(el)
		if !ok {
			continue
		}
		hide := year == "3" && contains(hidden, index)
		el.ToggleClass(HiddenClass, hide)
		if hide {
			count++
		}
	}
	return count
}

func yearIndex(el *dom.Element) (string, string, bool) {
	var m []string
	if id := el.ID(); id != "" {
		m = yearIndexPattern.FindStringSubmatch(id)
	}
	if m == nil {
		if code, ok := el.Data("code"); ok {
			m = yearIndexPattern.FindStringSubmatch(code)
		}
	}
	if m == nil {
		return "", "", false
	}
	return m[2], m[3], true
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
