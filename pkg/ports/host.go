package ports

import "github.com/aretw0/proxyshape/pkg/domain"

// HostGraph is the host application's scene graph as seen by the shadow node factory.
// The host owns every node; handles returned here are non-owning.
type HostGraph interface {
	// CreateNode creates a node of the given kind parented under parent.
	CreateNode(kind domain.NodeKind, parent domain.Handle) (domain.Handle, error)

	// DeleteNode deletes a node. Hosts cascade the delete to the node's children.
	DeleteNode(h domain.Handle) error

	// RestoreNode brings a node deleted through DeleteNode back to life under
	// parent, keeping its handle. Hosts without undoable deletes return an error.
	RestoreNode(h domain.Handle, parent domain.Handle) error

	// Reparent moves a node under a new parent.
	Reparent(h domain.Handle, parent domain.Handle) error

	// IsAlive reports whether h still refers to an existing node.
	IsAlive(h domain.Handle) bool

	// Scratch returns a location nodes can be parented under before deletion.
	Scratch() domain.Handle

	SetDisplayName(h domain.Handle, name string) error
	SetPrimPath(h domain.Handle, path domain.Path) error
	Connect(h domain.Handle, source domain.Plug) error
	LockTransform(h domain.Handle) error
}

// HostSelection is the host application's native selection list.
type HostSelection interface {
	// Selected returns the active selection list in host order.
	Selected() []domain.Handle

	// Select adjusts the active selection list by mode.
	Select(handles []domain.Handle, mode domain.SelectMode)
}
