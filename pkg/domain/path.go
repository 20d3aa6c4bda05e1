package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Path is an absolute, slash-delimited prim path (e.g. "/world/geo/mesh").
// The zero value is the empty path. "/" is the pseudo-root of a stage.
type Path string

// RootPath is the pseudo-root. It never has a shadow node of its own: the
// proxy shape itself stands in for it.
const RootPath Path = "/"

// ParsePath validates s and returns it as a Path.
// Relative paths, empty segments and trailing slashes are rejected.
func ParsePath(s string) (Path, error) {
	if s == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	if !strings.HasPrefix(s, "/") {
		return "", fmt.Errorf("%w: %q is not absolute", ErrInvalidPath, s)
	}
	if s == "/" {
		return RootPath, nil
	}
	if strings.HasSuffix(s, "/") {
		return "", fmt.Errorf("%w: %q has a trailing slash", ErrInvalidPath, s)
	}
	for _, seg := range strings.Split(s[1:], "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", fmt.Errorf("%w: %q has an invalid segment", ErrInvalidPath, s)
		}
	}
	return Path(s), nil
}

// MustParsePath is like ParsePath but panics on error. Intended for tests and literals.
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

// String implements fmt.Stringer.
func (p Path) String() string { return string(p) }

// IsEmpty reports whether p is the empty path.
func (p Path) IsEmpty() bool { return p == "" }

// IsRoot reports whether p is the pseudo-root.
func (p Path) IsRoot() bool { return p == RootPath }

// IsAbsolute reports whether p is a well formed absolute path.
func (p Path) IsAbsolute() bool {
	_, err := ParsePath(string(p))
	return err == nil
}

// Name returns the last segment of p. The root has no name.
func (p Path) Name() string {
	if p.IsEmpty() || p.IsRoot() {
		return ""
	}
	return string(p[strings.LastIndexByte(string(p), '/')+1:])
}

// Parent returns the parent path. The parent of a top level prim is the root;
// the root and the empty path have no parent and return the empty path.
func (p Path) Parent() Path {
	if p.IsEmpty() || p.IsRoot() {
		return ""
	}
	i := strings.LastIndexByte(string(p), '/')
	if i <= 0 {
		return RootPath
	}
	return p[:i]
}

// Child appends a single segment to p.
func (p Path) Child(name string) Path {
	if p.IsRoot() {
		return Path("/" + name)
	}
	return Path(string(p) + "/" + name)
}

// Depth returns the number of segments in p. The root has depth 0.
func (p Path) Depth() int {
	if p.IsEmpty() || p.IsRoot() {
		return 0
	}
	return strings.Count(string(p), "/")
}

// HasPrefix reports whether prefix is p or one of its ancestors.
// Segments are compared whole, so "/ab" does not have prefix "/a".
func (p Path) HasPrefix(prefix Path) bool {
	if prefix.IsRoot() {
		return !p.IsEmpty()
	}
	if p == prefix {
		return true
	}
	return strings.HasPrefix(string(p), string(prefix)+"/")
}

// Ancestors returns p's ancestors from the parent up to (excluding) the root.
func (p Path) Ancestors() []Path {
	var out []Path
	for q := p.Parent(); !q.IsEmpty() && !q.IsRoot(); q = q.Parent() {
		out = append(out, q)
	}
	return out
}

// SortByDepthDesc orders paths deepest first, so children always precede their
// parents. Ties are broken lexically to keep the order reproducible.
func SortByDepthDesc(paths []Path) {
	sort.SliceStable(paths, func(i, j int) bool {
		di, dj := paths[i].Depth(), paths[j].Depth()
		if di != dj {
			return di > dj
		}
		return paths[i] < paths[j]
	})
}

// SortByDepthAsc orders paths shallowest first, so parents always precede their children.
func SortByDepthAsc(paths []Path) {
	sort.SliceStable(paths, func(i, j int) bool {
		di, dj := paths[i].Depth(), paths[j].Depth()
		if di != dj {
			return di < dj
		}
		return paths[i] < paths[j]
	})
}
