package memory

import (
	"errors"
	"fmt"
	"sync"

	"github.com/aretw0/proxyshape/pkg/domain"
)

// HostNode is the in-memory host's record of one scene graph node.
type HostNode struct {
	ID       domain.NodeID
	Kind     domain.NodeKind
	Parent   domain.NodeID
	Children []domain.NodeID
	Name     string
	PrimPath domain.Path
	Plugs    map[domain.Plug]bool
	Locked   bool
}

// Host implements ports.HostGraph and ports.HostSelection in memory.
// Deleted nodes go to a graveyard so RestoreNode can undo a delete, the way a
// host's own undo queue would.
// Safe for concurrent use.
type Host struct {
	mu        sync.RWMutex
	next      domain.NodeID
	nodes     map[domain.NodeID]*HostNode
	graveyard map[domain.NodeID]*HostNode
	world     domain.Handle
	scratch   domain.Handle
	selection []domain.Handle

	created []domain.Handle
	deleted []domain.Handle

	failCreate func(kind domain.NodeKind, parent domain.Handle) error
	failWire   func(plug domain.Plug) error
	failDelete func(handle domain.Handle) error
}

// NewHost creates a host graph holding only its world and scratch roots.
func NewHost() *Host {
	h := &Host{
		nodes:     make(map[domain.NodeID]*HostNode),
		graveyard: make(map[domain.NodeID]*HostNode),
	}
	h.world = h.add("world", 0)
	h.scratch = h.add("scratch", 0)
	h.created = nil
	return h
}

func (h *Host) add(kind domain.NodeKind, parent domain.NodeID) domain.Handle {
	h.next++
	n := &HostNode{ID: h.next, Kind: kind, Parent: parent, Plugs: make(map[domain.Plug]bool)}
	h.nodes[n.ID] = n
	if p, ok := h.nodes[parent]; ok {
		p.Children = append(p.Children, n.ID)
	}
	handle := domain.Handle{ID: n.ID}
	h.created = append(h.created, handle)
	return handle
}

// World returns the root of the host scene graph.
func (h *Host) World() domain.Handle { return h.world }

// Scratch implements ports.HostGraph.
func (h *Host) Scratch() domain.Handle { return h.scratch }

// FailCreate installs a hook consulted before every CreateNode; a non-nil
// error makes the creation fail. Pass nil to clear it.
func (h *Host) FailCreate(fn func(kind domain.NodeKind, parent domain.Handle) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failCreate = fn
}

// FailConnect installs a hook consulted before every Connect.
func (h *Host) FailConnect(fn func(plug domain.Plug) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failWire = fn
}

// FailDelete installs a hook consulted before every DeleteNode of a live node.
func (h *Host) FailDelete(fn func(handle domain.Handle) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failDelete = fn
}

// CreateNode implements ports.HostGraph.
func (h *Host) CreateNode(kind domain.NodeKind, parent domain.Handle) (domain.Handle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.nodes[parent.ID]; !ok {
		return domain.NullHandle, fmt.Errorf("parent %s: %w", parent, domain.ErrStaleHandle)
	}
	if h.failCreate != nil {
		if err := h.failCreate(kind, parent); err != nil {
			return domain.NullHandle, err
		}
	}
	return h.add(kind, parent.ID), nil
}

// DeleteNode implements ports.HostGraph. Children are deleted with the node.
func (h *Host) DeleteNode(handle domain.Handle) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	n, ok := h.nodes[handle.ID]
	if !ok {
		return fmt.Errorf("delete %s: %w", handle, domain.ErrStaleHandle)
	}
	if h.failDelete != nil {
		if err := h.failDelete(handle); err != nil {
			return err
		}
	}
	h.detach(n)
	h.bury(n)
	return nil
}

func (h *Host) bury(n *HostNode) {
	for _, c := range n.Children {
		if child, ok := h.nodes[c]; ok {
			h.bury(child)
		}
	}
	n.Children = nil
	delete(h.nodes, n.ID)
	h.graveyard[n.ID] = n
	h.deleted = append(h.deleted, domain.Handle{ID: n.ID})

	kept := h.selection[:0]
	for _, s := range h.selection {
		if s.ID != n.ID {
			kept = append(kept, s)
		}
	}
	h.selection = kept
}

func (h *Host) detach(n *HostNode) {
	p, ok := h.nodes[n.Parent]
	if !ok {
		return
	}
	for i, c := range p.Children {
		if c == n.ID {
			p.Children = append(p.Children[:i], p.Children[i+1:]...)
			break
		}
	}
}

// RestoreNode implements ports.HostGraph.
func (h *Host) RestoreNode(handle domain.Handle, parent domain.Handle) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	n, ok := h.graveyard[handle.ID]
	if !ok {
		return fmt.Errorf("restore %s: %w", handle, domain.ErrStaleHandle)
	}
	p, ok := h.nodes[parent.ID]
	if !ok {
		return fmt.Errorf("restore parent %s: %w", parent, domain.ErrStaleHandle)
	}
	delete(h.graveyard, handle.ID)
	n.Parent = p.ID
	h.nodes[n.ID] = n
	p.Children = append(p.Children, n.ID)
	return nil
}

// Purge forgets every deleted node, making them unrestorable.
func (h *Host) Purge() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.graveyard = make(map[domain.NodeID]*HostNode)
}

// Reparent implements ports.HostGraph.
func (h *Host) Reparent(handle domain.Handle, parent domain.Handle) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	n, ok := h.nodes[handle.ID]
	if !ok {
		return fmt.Errorf("reparent %s: %w", handle, domain.ErrStaleHandle)
	}
	p, ok := h.nodes[parent.ID]
	if !ok {
		return fmt.Errorf("reparent under %s: %w", parent, domain.ErrStaleHandle)
	}
	for a := p; a != nil; a = h.nodes[a.Parent] {
		if a.ID == n.ID {
			return errors.New("cannot parent a node under itself")
		}
	}
	h.detach(n)
	n.Parent = p.ID
	p.Children = append(p.Children, n.ID)
	return nil
}

// IsAlive implements ports.HostGraph.
func (h *Host) IsAlive(handle domain.Handle) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.nodes[handle.ID]
	return ok
}

func (h *Host) with(handle domain.Handle, fn func(n *HostNode) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	n, ok := h.nodes[handle.ID]
	if !ok {
		return fmt.Errorf("%s: %w", handle, domain.ErrStaleHandle)
	}
	return fn(n)
}

// SetDisplayName implements ports.HostGraph.
func (h *Host) SetDisplayName(handle domain.Handle, name string) error {
	return h.with(handle, func(n *HostNode) error {
		n.Name = name
		return nil
	})
}

// SetPrimPath implements ports.HostGraph.
func (h *Host) SetPrimPath(handle domain.Handle, path domain.Path) error {
	return h.with(handle, func(n *HostNode) error {
		n.PrimPath = path
		return nil
	})
}

// Connect implements ports.HostGraph.
func (h *Host) Connect(handle domain.Handle, source domain.Plug) error {
	return h.with(handle, func(n *HostNode) error {
		if h.failWire != nil {
			if err := h.failWire(source); err != nil {
				return err
			}
		}
		n.Plugs[source] = true
		return nil
	})
}

// LockTransform implements ports.HostGraph.
func (h *Host) LockTransform(handle domain.Handle) error {
	return h.with(handle, func(n *HostNode) error {
		n.Locked = true
		return nil
	})
}

// Node returns a copy of the live node behind handle.
func (h *Host) Node(handle domain.Handle) (HostNode, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n, ok := h.nodes[handle.ID]
	if !ok {
		return HostNode{}, false
	}
	c := *n
	c.Children = append([]domain.NodeID(nil), n.Children...)
	c.Plugs = make(map[domain.Plug]bool, len(n.Plugs))
	for k, v := range n.Plugs {
		c.Plugs[k] = v
	}
	return c, true
}

// Parent returns the parent of a live node.
func (h *Host) Parent(handle domain.Handle) domain.Handle {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if n, ok := h.nodes[handle.ID]; ok {
		return domain.Handle{ID: n.Parent}
	}
	return domain.NullHandle
}

// Children returns the children of a live node in creation order.
func (h *Host) Children(handle domain.Handle) []domain.Handle {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n, ok := h.nodes[handle.ID]
	if !ok {
		return nil
	}
	out := make([]domain.Handle, len(n.Children))
	for i, c := range n.Children {
		out[i] = domain.Handle{ID: c}
	}
	return out
}

// FindByPrimPath returns the live node tagged with path.
func (h *Host) FindByPrimPath(path domain.Path) (domain.Handle, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, n := range h.nodes {
		if n.PrimPath == path {
			return domain.Handle{ID: id}, true
		}
	}
	return domain.NullHandle, false
}

// LiveCount returns the number of live nodes, world and scratch included.
func (h *Host) LiveCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.nodes)
}

// Created returns every handle created since NewHost, in order.
func (h *Host) Created() []domain.Handle {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]domain.Handle(nil), h.created...)
}

// Deleted returns every handle deleted, in order.
func (h *Host) Deleted() []domain.Handle {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]domain.Handle(nil), h.deleted...)
}

// Selected implements ports.HostSelection.
func (h *Host) Selected() []domain.Handle {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]domain.Handle(nil), h.selection...)
}

// Select implements ports.HostSelection. Handles of dead nodes are ignored.
func (h *Host) Select(handles []domain.Handle, mode domain.SelectMode) {
	h.mu.Lock()
	defer h.mu.Unlock()

	index := func(x domain.Handle) int {
		for i, s := range h.selection {
			if s == x {
				return i
			}
		}
		return -1
	}
	if mode == domain.SelectReplace {
		h.selection = nil
	}
	for _, x := range handles {
		if _, ok := h.nodes[x.ID]; !ok {
			continue
		}
		i := index(x)
		switch mode {
		case domain.SelectReplace, domain.SelectAdd:
			if i < 0 {
				h.selection = append(h.selection, x)
			}
		case domain.SelectRemove:
			if i >= 0 {
				h.selection = append(h.selection[:i], h.selection[i+1:]...)
			}
		case domain.SelectToggle:
			if i >= 0 {
				h.selection = append(h.selection[:i], h.selection[i+1:]...)
			} else {
				h.selection = append(h.selection, x)
			}
		}
	}
}
