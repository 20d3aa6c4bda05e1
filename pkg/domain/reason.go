package domain

import "fmt"

// Reason identifies which demand source holds a reference on a shadow node.
type Reason uint8

const (
	// ReasonSelection: the prim is part of the interactive selection.
	ReasonSelection Reason = iota
	// ReasonRequested: an explicit user or command request to materialize the prim.
	ReasonRequested
	// ReasonRequired: a translator needs the prim to exist as a structural parent.
	ReasonRequired
)

// String implements fmt.Stringer.
func (r Reason) String() string {
	switch r {
	case ReasonSelection:
		return "selection"
	case ReasonRequested:
		return "requested"
	case ReasonRequired:
		return "required"
	default:
		return fmt.Sprintf("reason(%d)", uint8(r))
	}
}

// ParseReason converts the textual form back into a Reason.
func ParseReason(s string) (Reason, error) {
	switch s {
	case "selection", "selected":
		return ReasonSelection, nil
	case "requested", "":
		return ReasonRequested, nil
	case "required":
		return ReasonRequired, nil
	}
	return 0, fmt.Errorf("unknown reason %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (r Reason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Reason) UnmarshalText(b []byte) error {
	v, err := ParseReason(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}
