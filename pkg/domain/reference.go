package domain

// TransformReference records why a shadow node must exist for a prim path.
//
// Each demand source owns one counter. SelectedTemp is only meaningful while a
// selection batch is being planned; it is zero at rest.
type TransformReference struct {
	Node         Handle `json:"node"`
	Selected     uint16 `json:"selected"`
	Required     uint16 `json:"required"`
	Requested    uint16 `json:"requested"`
	SelectedTemp uint16 `json:"-"`
}

// Count returns the committed counter for reason.
func (r *TransformReference) Count(reason Reason) uint16 {
	switch reason {
	case ReasonSelection:
		return r.Selected
	case ReasonRequired:
		return r.Required
	default:
		return r.Requested
	}
}

func (r *TransformReference) counter(reason Reason) *uint16 {
	switch reason {
	case ReasonSelection:
		return &r.Selected
	case ReasonRequired:
		return &r.Required
	default:
		return &r.Requested
	}
}

// Inc bumps the counter for reason, saturating at the uint16 maximum.
func (r *TransformReference) Inc(reason Reason) {
	c := r.counter(reason)
	if *c < ^uint16(0) {
		*c++
	}
}

// Dec lowers the counter for reason. It reports false when the counter was
// already zero; the counter is left at zero in that case.
func (r *TransformReference) Dec(reason Reason) bool {
	c := r.counter(reason)
	if *c == 0 {
		return false
	}
	*c--
	return true
}

// Live reports whether any committed counter is non-zero.
func (r *TransformReference) Live() bool {
	return r.Selected != 0 || r.Required != 0 || r.Requested != 0
}

// Reference is a TransformReference paired with its path, used for listings.
type Reference struct {
	Path Path `json:"path"`
	TransformReference
}
