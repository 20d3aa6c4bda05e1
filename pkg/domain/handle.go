package domain

import "strconv"

// NodeID is the host's identifier for a scene graph node.
type NodeID uint64

// Handle is a non-owning reference to a host node.
// The host scene graph owns the node; it may delete it at any time, so a
// Handle must be checked for liveness through the host before use.
type Handle struct {
	ID NodeID `json:"id"`
}

// NullHandle refers to no node.
var NullHandle = Handle{}

// IsNull reports whether h refers to no node.
func (h Handle) IsNull() bool { return h.ID == 0 }

// String implements fmt.Stringer.
func (h Handle) String() string {
	if h.IsNull() {
		return "<null>"
	}
	return "#" + strconv.FormatUint(uint64(h.ID), 10)
}
