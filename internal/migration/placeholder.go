package migration

import (
	"fmt"
	"sort"
	"strings"
)

const (
	placeholderOpen  = "${"
	placeholderClose = "}"

	// builtinTable expands to the history table name.
	builtinTable = "migrator:table"

	// builtinScript expands to the script being applied.
	builtinScript = "migrator:script"
)

// Placeholders maps ${name} references in migration bodies to values.
type Placeholders map[string]string

// ParsePlaceholders parses "key=value" pairs.
func ParsePlaceholders(pairs []string) (Placeholders, error) {
	p := make(Placeholders, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid placeholder %q: expected key=value", pair)
		}
		p[key] = value
	}
	return p, nil
}

// Keys returns the configured names in sorted order.
func (p Placeholders) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Expand replaces every ${name} in body. Values in builtins take precedence
// over configured ones. An unterminated reference is left untouched.
func (p Placeholders) Expand(body string, builtins map[string]string) (string, error) {
	if !strings.Contains(body, placeholderOpen) {
		return body, nil
	}

	var out strings.Builder
	rest := body
	for {
		start := strings.Index(rest, placeholderOpen)
		if start < 0 {
			out.WriteString(rest)
			break
		}
		end := strings.Index(rest[start:], placeholderClose)
		if end < 0 {
			out.WriteString(rest)
			break
		}
		end += start

		name := rest[start+len(placeholderOpen) : end]
		value, ok := builtins[name]
		if !ok {
			value, ok = p[name]
		}
		if !ok {
			return "", fmt.Errorf("%w: ${%s}", ErrUnknownPlaceholder, name)
		}

		out.WriteString(rest[:start])
		out.WriteString(value)
		rest = rest[end+len(placeholderClose):]
	}
	return out.String(), nil
}
