package domain

import "fmt"

// PayloadFilter selects which payload prims a search returns.
type PayloadFilter uint8

const (
	// PayloadsLoadable matches every prim carrying a payload.
	PayloadsLoadable PayloadFilter = iota
	// PayloadsLoaded matches loadable prims whose payload is loaded.
	PayloadsLoaded
	// PayloadsUnloaded matches loadable prims whose payload is not loaded.
	PayloadsUnloaded
)

// String implements fmt.Stringer.
func (f PayloadFilter) String() string {
	switch f {
	case PayloadsLoadable:
		return "loadable"
	case PayloadsLoaded:
		return "loaded"
	case PayloadsUnloaded:
		return "unloaded"
	}
	return fmt.Sprintf("filter(%d)", uint8(f))
}

// ParsePayloadFilter converts the textual form back into a PayloadFilter.
func ParsePayloadFilter(s string) (PayloadFilter, error) {
	switch s {
	case "loadable", "all", "":
		return PayloadsLoadable, nil
	case "loaded":
		return PayloadsLoaded, nil
	case "unloaded":
		return PayloadsUnloaded, nil
	}
	return 0, fmt.Errorf("unknown payload filter %q", s)
}

// Match reports whether prim passes the filter.
func (f PayloadFilter) Match(p Prim) bool {
	if !p.HasPayload {
		return false
	}
	switch f {
	case PayloadsLoaded:
		return p.Loaded
	case PayloadsUnloaded:
		return !p.Loaded
	}
	return true
}
