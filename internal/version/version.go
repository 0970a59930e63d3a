// Package version implements the ordered version tokens that identify
// migrations: a plain integer ("7") or a dotted sequence ("1.2.10").
package version

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalid indicates that a version token is empty or malformed.
var ErrInvalid = errors.New("invalid migration version")

// Version is a parsed version token. Segments compare numerically and
// trailing zero segments are insignificant, so "1", "1.0" and "01" are equal.
// The zero value is the empty version, which sorts before every other.
type Version struct {
	segments []uint64
}

// Parse parses a version token. Both "." and "_" separate segments.
func Parse(s string) (Version, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Version{}, fmt.Errorf("%w: empty version", ErrInvalid)
	}

	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == '.' || r == '_' })
	if len(parts) == 0 || strings.Count(raw, ".")+strings.Count(raw, "_") != len(parts)-1 {
		return Version{}, fmt.Errorf("%w: %q has an empty segment", ErrInvalid, s)
	}

	segments := make([]uint64, len(parts))
	for i, part := range parts {
		for _, r := range part {
			if r < '0' || r > '9' {
				return Version{}, fmt.Errorf("%w: %q is not numeric", ErrInvalid, s)
			}
		}
		n, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return Version{}, fmt.Errorf("%w: %q: %v", ErrInvalid, s, err)
		}
		segments[i] = n
	}

	for len(segments) > 1 && segments[len(segments)-1] == 0 {
		segments = segments[:len(segments)-1]
	}
	return Version{segments: segments}, nil
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// IsZero reports whether v is the empty version.
func (v Version) IsZero() bool {
	return len(v.segments) == 0
}

// String returns the canonical form: no leading zeros and no trailing zero
// segments. The empty version renders as "".
func (v Version) String() string {
	parts := make([]string, len(v.segments))
	for i, s := range v.segments {
		parts[i] = strconv.FormatUint(s, 10)
	}
	return strings.Join(parts, ".")
}

// Compare returns -1, 0 or +1 depending on whether v sorts before, equal to or
// after other.
func (v Version) Compare(other Version) int {
	if v.IsZero() || other.IsZero() {
		switch {
		case v.IsZero() && other.IsZero():
			return 0
		case v.IsZero():
			return -1
		default:
			return 1
		}
	}

	n := len(v.segments)
	if len(other.segments) > n {
		n = len(other.segments)
	}
	for i := 0; i < n; i++ {
		a, b := v.segment(i), other.segment(i)
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
	}
	return 0
}

// Equal reports whether v and other denote the same version.
func (v Version) Equal(other Version) bool {
	return v.Compare(other) == 0
}

// Less reports whether v sorts before other.
func (v Version) Less(other Version) bool {
	return v.Compare(other) < 0
}

// Max returns the greater of a and b.
func Max(a, b Version) Version {
	if a.Less(b) {
		return b
	}
	return a
}

func (v Version) segment(i int) uint64 {
	if i < len(v.segments) {
		return v.segments[i]
	}
	return 0
}

// MarshalText renders the canonical form, so versions encode as JSON strings.
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText parses a version token.
func (v *Version) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*v = Version{}
		return nil
	}
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
