package domain

import "time"

// EventType defines the category of the event.
type EventType string

const (
	EventNodeCreated      EventType = "node_created"
	EventNodeDestroyed    EventType = "node_destroyed"
	EventSelectionChanged EventType = "selection_changed"
	EventUndo             EventType = "undo"
	EventRedo             EventType = "redo"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	ProxyID   string    `json:"proxy_id,omitempty"`
}

// NodeEvent reports a shadow node coming into or going out of existence.
type NodeEvent struct {
	EventBase
	Path Path     `json:"path"`
	Node Handle   `json:"node"`
	Kind NodeKind `json:"kind,omitempty"`
}

// SelectionEvent reports a committed selection change.
type SelectionEvent struct {
	EventBase
	Mode     SelectMode `json:"mode"`
	Added    []Path     `json:"added,omitempty"`
	Removed  []Path     `json:"removed,omitempty"`
	Internal bool       `json:"internal,omitempty"`
}

// CommandEvent reports an undo or redo of a named command.
type CommandEvent struct {
	EventBase
	Command string `json:"command"`
}

// LifecycleHooks defines callbacks for observability.
// Any field may be nil.
type LifecycleHooks struct {
	OnNodeCreated      func(*NodeEvent)
	OnNodeDestroyed    func(*NodeEvent)
	OnSelectionChanged func(*SelectionEvent)
	OnCommand          func(*CommandEvent)
}

// Merge returns hooks that call h and then o.
func (h LifecycleHooks) Merge(o LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnNodeCreated:      chain(h.OnNodeCreated, o.OnNodeCreated),
		OnNodeDestroyed:    chain(h.OnNodeDestroyed, o.OnNodeDestroyed),
		OnSelectionChanged: chain(h.OnSelectionChanged, o.OnSelectionChanged),
		OnCommand:          chain(h.OnCommand, o.OnCommand),
	}
}

func chain[E any](a, b func(E)) func(E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(e E) {
		a(e)
		b(e)
	}
}
