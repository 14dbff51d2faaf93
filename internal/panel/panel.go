// Package panel is the scoring side of the tree: it selects a skill, writes
// scores and notes to the store, keeps the save history and announces every
// change with an ac:updated event.
package panel

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/kingrea/skilltree/internal/dom"
	"github.com/kingrea/skilltree/internal/eventbridge"
	"github.com/kingrea/skilltree/internal/logbook"
	"github.com/kingrea/skilltree/internal/palette"
	"github.com/kingrea/skilltree/internal/score"
	"github.com/kingrea/skilltree/internal/skill"
	"github.com/kingrea/skilltree/internal/store"
	"github.com/kingrea/skilltree/internal/taxonomy"
)

const (
	// HistoryKey holds the JSON array of saved entries.
	HistoryKey = "ac_history"
	// MaxHistory bounds the saved entries, newest first.
	MaxHistory = 100
	// NoteSuffix is appended to a code to form its note key.
	NoteSuffix = "_note"

	eventSource = "panel"
)

// ErrNoSelection is returned by edits issued before Select.
var ErrNoSelection = errors.New("panel: no skill selected")

// Logger matches logging.Logger.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Selection describes the skill being edited.
type Selection struct {
	Code  skill.Code
	Name  string
	Label string
	Group string
	Year  string
	Color string
	Score int
	Note  string
}

// Validated reports whether the stored score is complete.
func (s Selection) Validated() bool {
	return score.Done(float64(s.Score))
}

// Entry is one saved score in the history.
type Entry struct {
	Code  string    `json:"code"`
	Value int       `json:"value"`
	Note  string    `json:"note"`
	Color string    `json:"color"`
	Time  time.Time `json:"time"`
}

// Option customizes a Panel.
type Option func(*Panel)

// WithTaxonomy enables labels, group colors and search.
func WithTaxonomy(t *taxonomy.Taxonomy) Option {
	return func(p *Panel) {
		p.tax = t
	}
}

// WithSink receives ac:updated events, typically a Router or a bridge Client.
func WithSink(sink eventbridge.EventProcessor) Option {
	return func(p *Panel) {
		if sink != nil {
			p.sink = sink
		}
	}
}

// WithLogbook journals saved scores.
func WithLogbook(book *logbook.Logbook) Option {
	return func(p *Panel) {
		p.book = book
	}
}

// WithLogger overrides the default no-op logger.
func WithLogger(l Logger) Option {
	return func(p *Panel) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithClock allows tests to control history timestamps.
func WithClock(clock func() time.Time) Option {
	return func(p *Panel) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// Panel edits scores in a store.
type Panel struct {
	store  store.Store
	tax    *taxonomy.Taxonomy
	sink   eventbridge.EventProcessor
	book   *logbook.Logbook
	logger Logger
	clock  func() time.Time
	active *Selection
}

// New creates a panel over s.
func New(s store.Store, opts ...Option) *Panel {
	p := &Panel{
		store:  s,
		sink:   eventbridge.EventProcessorFunc(func(eventbridge.Event) error { return nil }),
		logger: nopLogger{},
		clock:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Active returns the current selection, if any.
func (p *Panel) Active() (Selection, bool) {
	if p.active == nil {
		return Selection{}, false
	}
	return *p.active, true
}

// Select makes code the active skill. el may be nil; fallback is used when
// neither the element nor the taxonomy provides a color.
func (p *Panel) Select(code string, el *dom.Element, fallback string) (Selection, error) {
	c := skill.Normalize(code)
	if c == "" {
		return Selection{}, fmt.Errorf("panel: empty code")
	}
	note, _ := p.store.Get(string(c) + NoteSuffix)
	sel := Selection{
		Code:  c,
		Name:  displayName(el, c),
		Score: p.Score(c),
		Note:  note,
	}
	match, found := p.tax.Find(c)
	if found {
		sel.Label = match.Skill.Label
		sel.Group = match.Group.Label
		sel.Year = string(match.Level.Year)
	}
	sel.Color = resolveColor(el, match, found, fallback)
	p.active = &sel
	return sel, nil
}

// Score returns the stored score of code, rounded and clamped.
func (p *Panel) Score(code skill.Code) int {
	raw, _ := p.store.Get(string(code))
	return int(math.Round(score.Clamp(score.Parse(raw))))
}

func displayName(el *dom.Element, c skill.Code) string {
	if el == nil {
		return string(c)
	}
	if t := el.First("title"); t != nil {
		if name := strings.TrimSpace(t.Text()); name != "" {
			return name
		}
	}
	if l := el.First(".label"); l != nil {
		if name := strings.TrimSpace(l.Text()); name != "" {
			return name
		}
	}
	if name, ok := el.Data("name"); ok && strings.TrimSpace(name) != "" {
		return strings.TrimSpace(name)
	}
	return string(c)
}

func resolveColor(el *dom.Element, match taxonomy.Match, found bool, fallback string) string {
	if el != nil {
		if v, ok := el.Data("color"); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	if found {
		if cat, ok := match.Group.Category(); ok {
			return cat.Color
		}
	}
	if fallback = strings.TrimSpace(fallback); fallback != "" {
		return fallback
	}
	return palette.DefaultAccent
}

// Input writes value as the live score of the selection and announces it.
// Slider moves are not recorded in the history.
func (p *Panel) Input(value int) error {
	if p.active == nil {
		return ErrNoSelection
	}
	value = clampValue(value)
	if err := p.store.Set(string(p.active.Code), strconv.Itoa(value)); err != nil {
		return fmt.Errorf("panel: write %s: %w", p.active.Code, err)
	}
	p.active.Score = value
	p.emit(p.active.Code, value)
	return nil
}

// SetNote stores the justification of the selection.
func (p *Panel) SetNote(note string) error {
	if p.active == nil {
		return ErrNoSelection
	}
	if err := p.store.Set(string(p.active.Code)+NoteSuffix, note); err != nil {
		return fmt.Errorf("panel: write note for %s: %w", p.active.Code, err)
	}
	p.active.Note = note
	return nil
}

// Save writes score and note, records a history entry and announces it.
func (p *Panel) Save(value int, note string) (Entry, error) {
	if p.active == nil {
		return Entry{}, ErrNoSelection
	}
	value = clampValue(value)
	code := string(p.active.Code)
	if err := p.store.Set(code, strconv.Itoa(value)); err != nil {
		return Entry{}, fmt.Errorf("panel: write %s: %w", code, err)
	}
	if err := p.store.Set(code+NoteSuffix, note); err != nil {
		return Entry{}, fmt.Errorf("panel: write note for %s: %w", code, err)
	}
	p.active.Score = value
	p.active.Note = note

	entry := Entry{Code: code, Value: value, Note: note, Color: p.active.Color, Time: p.clock().UTC()}
	history := append([]Entry{entry}, p.History()...)
	if len(history) > MaxHistory {
		history = history[:MaxHistory]
	}
	if err := p.writeHistory(history); err != nil {
		return entry, err
	}
	if err := p.book.Record(code, value, note); err != nil {
		p.logger.Printf("panel: %v", err)
	}
	p.emit(p.active.Code, value)
	return entry, nil
}

// History returns saved entries, newest first. Unreadable history is empty.
func (p *Panel) History() []Entry {
	raw, ok := p.store.Get(HistoryKey)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	var entries []Entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		p.logger.Printf("panel: ignoring unreadable history: %v", err)
		return nil
	}
	return entries
}

// ClearHistory forgets every saved entry.
func (p *Panel) ClearHistory() error {
	if err := p.store.Remove(HistoryKey); err != nil {
		return fmt.Errorf("panel: clear history: %w", err)
	}
	return nil
}

func (p *Panel) writeHistory(entries []Entry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("panel: encode history: %w", err)
	}
	if err := p.store.Set(HistoryKey, string(data)); err != nil {
		return fmt.Errorf("panel: write history: %w", err)
	}
	return nil
}

// Global is the rounded mean score of the codes placed in the tree. Without
// a tree, or when it carries no codes, it averages every stored score key.
func (p *Panel) Global(root *dom.Element) int {
	var codes []skill.Code
	if root != nil {
		for _, el := range root.All() {
			if c, ok := nodeCode(el); ok {
				codes = append(codes, c)
			}
		}
	}
	if len(codes) == 0 {
		for _, key := range p.store.Keys() {
			if isScoreKey(key) {
				codes = append(codes, skill.Code(key))
			}
		}
	}
	if len(codes) == 0 {
		return 0
	}
	total := 0.0
	for _, c := range codes {
		raw, _ := p.store.Get(string(c))
		total += math.Trunc(score.Parse(raw))
	}
	return int(math.Round(total / float64(len(codes))))
}

func nodeCode(el *dom.Element) (skill.Code, bool) {
	if c, ok := skill.Find(el.ID()); ok && strings.HasPrefix(el.ID(), "AC") {
		return c, true
	}
	if v, ok := el.Data("code"); ok {
		return skill.Find(v)
	}
	return "", false
}

// isScoreKey accepts bare codes only, so note keys do not dilute the mean.
func isScoreKey(key string) bool {
	c, ok := skill.Find(key)
	return ok && string(c) == key
}

func (p *Panel) emit(code skill.Code, value int) {
	evt, err := eventbridge.NewEvent(eventbridge.TypeScoreUpdated, eventSource, eventbridge.ScoreDetail{Code: string(code), Value: value})
	if err != nil {
		p.logger.Printf("panel: %v", err)
		return
	}
	if err := p.sink.HandleEvent(evt); err != nil {
		p.logger.Printf("panel: announce %s: %v", code, err)
	}
}

func clampValue(v int) int {
	return int(score.Clamp(float64(v)))
}
