// Package taxonomy loads the competency hierarchy (groups, levels, skill
// codes) from JSON or YAML and answers code lookups. Group order follows the
// source document.
package taxonomy

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kingrea/skilltree/internal/palette"
	"github.com/kingrea/skilltree/internal/skill"
)

// ErrEmpty is returned when a document holds no groups.
var ErrEmpty = errors.New("taxonomy: no groups")

// Taxonomy is the ordered list of competency groups.
type Taxonomy struct {
	Groups []Group
}

// Group is one competency. Label drives category color classification.
type Group struct {
	ID         string
	Label      string  `yaml:"libelle_long"`
	ShortLabel string  `yaml:"nom_court"`
	Levels     []Level `yaml:"niveaux"`
}

// Level is one year of a group.
type Level struct {
	Year   Year    `yaml:"annee"`
	Skills []Skill `yaml:"acs"`
}

// Skill is an atomic skill code with its display label.
type Skill struct {
	Code  skill.Code `yaml:"code"`
	Label string     `yaml:"libelle"`
}

// Year accepts both numeric and string years.
type Year string

func (y *Year) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("taxonomy: line %d: year must be a scalar", node.Line)
	}
	*y = Year(strings.TrimSpace(node.Value))
	return nil
}

// Match locates a code inside the hierarchy.
type Match struct {
	Group *Group
	Level *Level
	Skill *Skill
}

// Load reads a taxonomy file.
func Load(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("taxonomy: read %s: %w", path, err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("taxonomy: %s: %w", path, err)
	}
	return t, nil
}

// Parse decodes a document shaped as {groupID: {libelle_long, niveaux: [...]}}.
// JSON input is accepted since it is valid YAML.
func Parse(data []byte) (*Taxonomy, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if root.Kind == 0 || len(root.Content) == 0 {
		return nil, ErrEmpty
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parse: top level must be a mapping of groups")
	}
	t := &Taxonomy{}
	for i := 0; i+1 < len(doc.Content); i += 2 {
		key, value := doc.Content[i], doc.Content[i+1]
		if value.Kind != yaml.MappingNode {
			continue
		}
		var raw struct {
			Group `yaml:",inline"`
			Alt   string `yaml:"label"`
		}
		if err := value.Decode(&raw); err != nil {
			return nil, fmt.Errorf("group %s: %w", key.Value, err)
		}
		g := raw.Group
		g.ID = key.Value
		if g.Label == "" {
			g.Label = raw.Alt
		}
		for li := range g.Levels {
			for si := range g.Levels[li].Skills {
				s := &g.Levels[li].Skills[si]
				s.Code = skill.Normalize(string(s.Code))
			}
		}
		t.Groups = append(t.Groups, g)
	}
	if len(t.Groups) == 0 {
		return nil, ErrEmpty
	}
	return t, nil
}

// Find returns where code sits. Matching is exact after normalization.
func (t *Taxonomy) Find(code skill.Code) (Match, bool) {
	if t == nil {
		return Match{}, false
	}
	code = skill.Normalize(string(code))
	for gi := range t.Groups {
		g := &t.Groups[gi]
		for li := range g.Levels {
			l := &g.Levels[li]
			for si := range l.Skills {
				if l.Skills[si].Code == code {
					return Match{Group: g, Level: l, Skill: &l.Skills[si]}, true
				}
			}
		}
	}
	return Match{}, false
}

// Codes lists the group's codes in document order.
func (g *Group) Codes() []skill.Code {
	var out []skill.Code
	for _, l := range g.Levels {
		for _, s := range l.Skills {
			if s.Code != "" {
				out = append(out, s.Code)
			}
		}
	}
	return out
}

// Category classifies the group label against the palette.
func (g *Group) Category() (palette.Category, bool) {
	return palette.Classify(g.Label)
}

// Skills flattens the taxonomy in document order.
func (t *Taxonomy) Skills() []Match {
	if t == nil {
		return nil
	}
	var out []Match
	for gi := range t.Groups {
		g := &t.Groups[gi]
		for li := range g.Levels {
			l := &g.Levels[li]
			for si := range l.Skills {
				out = append(out, Match{Group: g, Level: l, Skill: &l.Skills[si]})
			}
		}
	}
	return out
}
