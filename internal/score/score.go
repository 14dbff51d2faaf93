// Package score turns stored values into progress numbers.
package score

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/kingrea/skilltree/internal/skill"
	"github.com/kingrea/skilltree/internal/store"
)

// Complete is the progress at which a skill counts as done.
const Complete = 100.0

var numberPattern = regexp.MustCompile(`-?\d+(?:[.,]\d+)?`)

// Parse extracts the first signed integer or decimal in raw. A comma is
// accepted as decimal separator. Anything unparsable yields 0.
func Parse(raw string) float64 {
	m := numberPattern.FindString(raw)
	if m == "" {
		return 0
	}
	v, err := strconv.ParseFloat(strings.Replace(m, ",", ".", 1), 64)
	if err != nil {
		return 0
	}
	return v
}

// Clamp bounds a raw score to [0, 100].
func Clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > Complete:
		return Complete
	default:
		return v
	}
}

// Done reports whether progress has reached completion.
func Done(progress float64) bool {
	return progress >= Complete
}

// Model reads scores from a store.
type Model struct {
	store store.Reader
}

// New wraps r. A nil reader behaves as an empty store.
func New(r store.Reader) *Model {
	return &Model{store: r}
}

// Get returns the parsed score for code. When no exact entry exists it
// falls back to an approximate match: the first stored code key (in sorted
// order) that contains code or is contained by it. AC12 therefore finds a
// score stored under AC12.1 and the reverse.
func (m *Model) Get(code skill.Code) float64 {
	k := skill.Normalize(string(code))
	if k == "" || m == nil || m.store == nil {
		return 0
	}
	if raw, ok := m.store.Get(string(k)); ok {
		return Parse(raw)
	}
	target := string(k)
	for _, key := range m.codeKeys() {
		if strings.Contains(key.upper, target) || strings.Contains(target, key.upper) {
			return m.parseKey(key.raw)
		}
	}
	return 0
}

// Progress is Get clamped to [0, 100].
func (m *Model) Progress(code skill.Code) float64 {
	return Clamp(m.Get(code))
}

// Read returns every stored code key (uppercased) with its parsed value.
func (m *Model) Read() map[skill.Code]float64 {
	out := map[skill.Code]float64{}
	if m == nil || m.store == nil {
		return out
	}
	for _, key := range m.codeKeys() {
		if _, seen := out[skill.Code(key.upper)]; seen {
			continue
		}
		out[skill.Code(key.upper)] = m.parseKey(key.raw)
	}
	return out
}

type codeKey struct {
	raw   string
	upper string
}

func (m *Model) codeKeys() []codeKey {
	var keys []codeKey
	for _, k := range m.store.Keys() {
		if skill.IsStoreKey(k) {
			keys = append(keys, codeKey{raw: k, upper: strings.ToUpper(k)})
		}
	}
	return keys
}

func (m *Model) parseKey(key string) float64 {
	raw, _ := m.store.Get(key)
	return Parse(raw)
}
