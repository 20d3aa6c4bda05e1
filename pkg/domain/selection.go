package domain

import (
	"fmt"
	"sort"
)

// SelectMode decides how a requested set of paths combines with the current selection.
type SelectMode uint8

const (
	SelectReplace SelectMode = iota
	SelectAdd
	SelectRemove
	SelectToggle
)

// String implements fmt.Stringer.
func (m SelectMode) String() string {
	switch m {
	case SelectReplace:
		return "replace"
	case SelectAdd:
		return "add"
	case SelectRemove:
		return "remove"
	case SelectToggle:
		return "toggle"
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// ParseSelectMode converts the textual form back into a SelectMode.
func ParseSelectMode(s string) (SelectMode, error) {
	switch s {
	case "replace", "":
		return SelectReplace, nil
	case "add", "append":
		return SelectAdd, nil
	case "remove", "deselect":
		return SelectRemove, nil
	case "toggle":
		return SelectToggle, nil
	}
	return 0, fmt.Errorf("unknown select mode %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (m SelectMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *SelectMode) UnmarshalText(b []byte) error {
	v, err := ParseSelectMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// PathSet is an unordered set of paths.
type PathSet map[Path]struct{}

// NewPathSet builds a set from paths.
func NewPathSet(paths ...Path) PathSet {
	s := make(PathSet, len(paths))
	for _, p := range paths {
		s[p] = struct{}{}
	}
	return s
}

func (s PathSet) Has(p Path) bool {
	_, ok := s[p]
	return ok
}

func (s PathSet) Add(p Path) { s[p] = struct{}{} }

func (s PathSet) Remove(p Path) { delete(s, p) }

// Clone returns an independent copy.
func (s PathSet) Clone() PathSet {
	c := make(PathSet, len(s))
	for p := range s {
		c[p] = struct{}{}
	}
	return c
}

// Equal reports whether both sets hold the same paths.
func (s PathSet) Equal(o PathSet) bool {
	if len(s) != len(o) {
		return false
	}
	for p := range s {
		if !o.Has(p) {
			return false
		}
	}
	return true
}

// Minus returns the paths of s missing from o, sorted.
func (s PathSet) Minus(o PathSet) []Path {
	var out []Path
	for p := range s {
		if !o.Has(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Sorted returns the members in lexical order.
func (s PathSet) Sorted() []Path {
	out := make([]Path, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
