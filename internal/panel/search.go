package panel

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/kingrea/skilltree/internal/taxonomy"
)

// Hit is one search result.
type Hit struct {
	Code  string
	Label string
	Group string
	Year  string
	Score int
}

type skillSource []taxonomy.Match

func (s skillSource) String(i int) string {
	return string(s[i].Skill.Code) + " " + s[i].Skill.Label
}

func (s skillSource) Len() int { return len(s) }

// Search fuzzy-matches query against "code label" of every taxonomy skill.
// limit <= 0 returns every match.
func (p *Panel) Search(query string, limit int) []Hit {
	query = strings.TrimSpace(query)
	skills := skillSource(p.tax.Skills())
	if query == "" || len(skills) == 0 {
		return nil
	}
	matches := fuzzy.FindFrom(query, skills)
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	hits := make([]Hit, 0, len(matches))
	for _, m := range matches {
		s := skills[m.Index]
		hits = append(hits, Hit{
			Code:  string(s.Skill.Code),
			Label: s.Skill.Label,
			Group: s.Group.Label,
			Year:  string(s.Level.Year),
			Score: m.Score,
		})
	}
	return hits
}

// Export dumps every stored key as a JSON object. Values holding valid JSON
// are embedded as JSON, anything else as a string.
func (p *Panel) Export() ([]byte, error) {
	keys := p.store.Keys()
	sort.Strings(keys)
	out := make(map[string]json.RawMessage, len(keys))
	for _, key := range keys {
		raw, ok := p.store.Get(key)
		if !ok {
			continue
		}
		if json.Valid([]byte(raw)) {
			out[key] = json.RawMessage(raw)
			continue
		}
		quoted, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("panel: export %s: %w", key, err)
		}
		out[key] = quoted
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("panel: export: %w", err)
	}
	return data, nil
}
