// Package shadow creates and destroys the host nodes that stand in for USD prims.
package shadow

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/proxyshape/internal/logging"
	"github.com/aretw0/proxyshape/pkg/domain"
	"github.com/aretw0/proxyshape/pkg/ports"
)

// Factory wires shadow nodes into the host scene graph.
type Factory struct {
	host    ports.HostGraph
	logger  *slog.Logger
	hooks   domain.LifecycleHooks
	proxyID string
}

// Option configures the Factory.
type Option func(*Factory)

// WithLogger configures a logger for the Factory.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Factory) {
		f.logger = logger
	}
}

// WithHooks registers lifecycle callbacks fired on creation and destruction.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(f *Factory) {
		f.hooks = hooks
	}
}

// WithProxyID tags emitted events with the owning proxy.
func WithProxyID(id string) Option {
	return func(f *Factory) {
		f.proxyID = id
	}
}

// New creates a Factory over host.
func New(host ports.HostGraph, opts ...Option) *Factory {
	f := &Factory{
		host:   host,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Host returns the host scene graph the factory writes to.
func (f *Factory) Host() ports.HostGraph { return f.host }

// CreateNode creates exactly one shadow node for prim under parent.
// An invalid prim is a no-op returning the null handle.
//
// If wiring fails after the node exists, the node is deleted again so no
// half configured node is left in the host graph.
func (f *Factory) CreateNode(prim domain.Prim, parent domain.Handle) (domain.Handle, error) {
	if !prim.IsValid() {
		return domain.NullHandle, nil
	}

	kind := prim.NodeKind()
	h, err := f.host.CreateNode(kind, parent)
	if err != nil {
		return domain.NullHandle, fmt.Errorf("%w: %s: %v", domain.ErrNodeCreate, prim.Path, err)
	}

	if err := f.configure(h, prim, kind); err != nil {
		if delErr := f.host.DeleteNode(h); delErr != nil {
			f.logger.Warn("failed to delete half built shadow node", "path", prim.Path, "node", h, "err", delErr)
		}
		return domain.NullHandle, fmt.Errorf("%w: %s: %v", domain.ErrNodeCreate, prim.Path, err)
	}

	f.logger.Debug("shadow node created", "path", prim.Path, "node", h, "kind", kind)
	if f.hooks.OnNodeCreated != nil {
		f.hooks.OnNodeCreated(f.event(domain.EventNodeCreated, prim.Path, h, kind))
	}
	return h, nil
}

func (f *Factory) configure(h domain.Handle, prim domain.Prim, kind domain.NodeKind) error {
	switch kind {
	case domain.NodeKindGroup:
		if err := f.host.LockTransform(h); err != nil {
			return err
		}
		if err := f.host.Connect(h, domain.PlugStageData); err != nil {
			return err
		}
	case domain.NodeKindTransform:
		if err := f.host.Connect(h, domain.PlugTime); err != nil {
			return err
		}
		if err := f.host.Connect(h, domain.PlugStageData); err != nil {
			return err
		}
		if !prim.Transformable {
			if err := f.host.LockTransform(h); err != nil {
				return err
			}
		}
	}

	if err := f.host.SetDisplayName(h, prim.Name()); err != nil {
		return err
	}
	return f.host.SetPrimPath(h, prim.Path)
}

// DestroyNode detaches h from its parent and deletes it.
// Host deletes cascade to children, so the node is moved under the scratch
// location first; siblings parented elsewhere are never touched.
// A null or already deleted handle is a no-op.
func (f *Factory) DestroyNode(path domain.Path, h domain.Handle) error {
	if h.IsNull() || !f.host.IsAlive(h) {
		f.logger.Debug("skipping destroy of stale shadow node", "path", path, "node", h)
		return nil
	}
	if err := f.host.Reparent(h, f.host.Scratch()); err != nil {
		if errors.Is(err, domain.ErrStaleHandle) {
			return nil
		}
		return fmt.Errorf("failed to detach shadow node %s: %w", path, err)
	}
	if err := f.host.DeleteNode(h); err != nil {
		if errors.Is(err, domain.ErrStaleHandle) {
			return nil
		}
		return fmt.Errorf("failed to delete shadow node %s: %w", path, err)
	}

	f.logger.Debug("shadow node destroyed", "path", path, "node", h)
	if f.hooks.OnNodeDestroyed != nil {
		f.hooks.OnNodeDestroyed(f.event(domain.EventNodeDestroyed, path, h, ""))
	}
	return nil
}

// ReviveNode brings back a node previously removed with DestroyNode, keeping
// its handle, so undo and redo see the same nodes. When the host cannot
// restore it (the node was purged, or the handle is null) a fresh node is created.
func (f *Factory) ReviveNode(prim domain.Prim, h domain.Handle, parent domain.Handle) (domain.Handle, error) {
	if !h.IsNull() && !f.host.IsAlive(h) {
		if err := f.host.RestoreNode(h, parent); err == nil {
			f.logger.Debug("shadow node restored", "path", prim.Path, "node", h)
			if f.hooks.OnNodeCreated != nil {
				f.hooks.OnNodeCreated(f.event(domain.EventNodeCreated, prim.Path, h, prim.NodeKind()))
			}
			return h, nil
		}
	}
	return f.CreateNode(prim, parent)
}

func (f *Factory) event(typ domain.EventType, path domain.Path, h domain.Handle, kind domain.NodeKind) *domain.NodeEvent {
	return &domain.NodeEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), Type: typ, ProxyID: f.proxyID},
		Path:      path,
		Node:      h,
		Kind:      kind,
	}
}
