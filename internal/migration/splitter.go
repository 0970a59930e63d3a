package migration

import (
	"strings"

	"github.com/example/schema-migrator/internal/database"
)

const defaultDelimiter = ";"

// SplitOptions selects the lexical rules used to split a migration body into
// statements.
type SplitOptions struct {
	// HashComments treats '#' as the start of a line comment.
	HashComments bool

	// BackslashEscapes lets a backslash escape the next character inside a
	// quoted string.
	BackslashEscapes bool

	// DelimiterDirective honours client-side "DELIMITER <token>" lines, used
	// to define stored procedures and triggers.
	DelimiterDirective bool

	// DollarQuotes treats $tag$ ... $tag$ as a single quoted body.
	DollarQuotes bool
}

// lenientSplit is used to detect bodies with no statements before the
// target dialect is known.
var lenientSplit = SplitOptions{HashComments: true, DelimiterDirective: true, DollarQuotes: true}

// SplitOptionsFor returns the lexical rules of d.
func SplitOptionsFor(d database.Dialect) SplitOptions {
	switch d.Name {
	case database.MySQL.Name:
		return SplitOptions{HashComments: true, BackslashEscapes: true, DelimiterDirective: true}
	case database.Postgres.Name:
		return SplitOptions{DollarQuotes: true}
	}
	return SplitOptions{}
}

// SplitStatements splits body into individual statements. Delimiters inside
// quotes, identifiers, comments and dollar-quoted bodies are not split on.
// Line comments are dropped; block comments are kept with the statement that
// follows them. Statements consisting only of comments are omitted.
func SplitStatements(body string, opts SplitOptions) []string {
	var (
		statements []string
		current    strings.Builder
		hasContent bool
		lineBlank  = true
		delimiter  = defaultDelimiter
	)

	flush := func() {
		if hasContent {
			statements = append(statements, strings.TrimSpace(current.String()))
		}
		current.Reset()
		hasContent = false
	}

	n := len(body)
	for i := 0; i < n; {
		c := body[i]

		// DELIMITER is a client directive and only counts between statements.
		if lineBlank && !hasContent && opts.DelimiterDirective && !isSpace(c) {
			if token, end, ok := delimiterDirective(body, i); ok {
				flush()
				delimiter = token
				i = end
				continue
			}
		}

		switch {
		case c == '\n':
			current.WriteByte(c)
			lineBlank = true
			i++
			continue

		case isSpace(c):
			current.WriteByte(c)
			i++
			continue

		case strings.HasPrefix(body[i:], "--") || (c == '#' && opts.HashComments):
			i = lineEnd(body, i)
			continue

		case strings.HasPrefix(body[i:], "/*"):
			end := strings.Index(body[i+2:], "*/")
			if end < 0 {
				end = n
			} else {
				end = i + 2 + end + 2
			}
			if strings.HasPrefix(body[i:], "/*!") {
				hasContent = true
			}
			current.WriteString(body[i:end])
			i = end
			lineBlank = false
			continue

		case strings.HasPrefix(body[i:], delimiter):
			flush()
			i += len(delimiter)
			lineBlank = false
			continue

		case c == '\'' || c == '"' || c == '`':
			end := quotedEnd(body, i, opts.BackslashEscapes)
			current.WriteString(body[i:end])
			i = end

		case c == '$' && opts.DollarQuotes:
			if tag := dollarTag(body, i); tag != "" {
				end := strings.Index(body[i+len(tag):], tag)
				if end < 0 {
					end = n
				} else {
					end = i + len(tag) + end + len(tag)
				}
				current.WriteString(body[i:end])
				i = end
			} else {
				current.WriteByte(c)
				i++
			}

		default:
			current.WriteByte(c)
			i++
		}
		hasContent = true
		lineBlank = false
	}
	flush()

	return statements
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\f' || c == '\v'
}

// lineEnd returns the index of the newline ending the line containing i, or
// len(s).
func lineEnd(s string, i int) int {
	if j := strings.IndexByte(s[i:], '\n'); j >= 0 {
		return i + j
	}
	return len(s)
}

// quotedEnd returns the index just past the quote that closes the quoted
// string starting at i. A doubled quote character is part of the string.
func quotedEnd(s string, i int, backslash bool) int {
	q := s[i]
	for j := i + 1; j < len(s); j++ {
		switch s[j] {
		case '\\':
			if backslash && q != '`' {
				j++
			}
		case q:
			if j+1 < len(s) && s[j+1] == q {
				j++
				continue
			}
			return j + 1
		}
	}
	return len(s)
}

// dollarTag returns the $tag$ opening a dollar-quoted body at i, or "".
func dollarTag(s string, i int) string {
	for j := i + 1; j < len(s); j++ {
		c := s[j]
		switch {
		case c == '$':
			return s[i : j+1]
		case c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z'):
		case c >= '0' && c <= '9' && j > i+1:
		default:
			return ""
		}
	}
	return ""
}

// delimiterDirective parses a "DELIMITER <token>" line starting at i. It
// returns the token and the index of the end of the line.
func delimiterDirective(s string, i int) (string, int, bool) {
	const keyword = "DELIMITER"
	if len(s)-i <= len(keyword) || !strings.EqualFold(s[i:i+len(keyword)], keyword) || !isSpace(s[i+len(keyword)]) {
		return "", 0, false
	}
	end := lineEnd(s, i)
	fields := strings.Fields(s[i+len(keyword) : end])
	if len(fields) != 1 {
		return "", 0, false
	}
	return fields[0], end, true
}
