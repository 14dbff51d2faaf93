package dom

import "strings"

// declaration is one `property: value` pair of an inline style attribute.
type declaration struct {
	property string
	value    string
}

// parseStyle splits a style attribute into ordered declarations. Later
// duplicates replace earlier ones in place so serialization stays stable.
func parseStyle(raw string) []declaration {
	var decls []declaration
	for _, part := range strings.Split(raw, ";") {
		name, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		name = normalizeProperty(name)
		value = strings.TrimSpace(value)
		if name == "" || value == "" {
			continue
		}
		decls = setDeclaration(decls, name, value)
	}
	return decls
}

func setDeclaration(decls []declaration, property, value string) []declaration {
	for i := range decls {
		if decls[i].property == property {
			decls[i].value = value
			return decls
		}
	}
	return append(decls, declaration{property: property, value: value})
}

func removeDeclaration(decls []declaration, property string) []declaration {
	for i := range decls {
		if decls[i].property == property {
			return append(decls[:i], decls[i+1:]...)
		}
	}
	return decls
}

func lookupDeclaration(decls []declaration, property string) (string, bool) {
	for _, d := range decls {
		if d.property == property {
			return d.value, true
		}
	}
	return "", false
}

func formatStyle(decls []declaration) string {
	if len(decls) == 0 {
		return ""
	}
	parts := make([]string, 0, len(decls))
	for _, d := range decls {
		parts = append(parts, d.property+": "+d.value)
	}
	return strings.Join(parts, "; ")
}

// normalizeProperty lowercases standard properties. Custom properties
// (`--name`) are case-sensitive and kept verbatim.
func normalizeProperty(name string) string {
	name = strings.TrimSpace(name)
	if strings.HasPrefix(name, "--") {
		return name
	}
	return strings.ToLower(name)
}
