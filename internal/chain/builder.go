// Package chain materializes and tears down shadow node chains for prims.
//
// Every chain operation touches the leaf and each of its ancestors up to (not
// including) the root exactly once, so for any reason a parent's counter is
// never lower than a child's. That keeps liveness contiguous from any live
// node up to the proxy root, and makes teardown naturally leaf to root.
package chain

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/proxyshape/internal/logging"
	"github.com/aretw0/proxyshape/internal/refcount"
	"github.com/aretw0/proxyshape/internal/shadow"
	"github.com/aretw0/proxyshape/pkg/domain"
	"github.com/aretw0/proxyshape/pkg/ports"
)

// Builder drives the refcount table and the shadow node factory.
type Builder struct {
	table   *refcount.Table
	factory *shadow.Factory
	stage   ports.Stage
	root    domain.Handle
	logger  *slog.Logger
}

// Option configures the Builder.
type Option func(*Builder)

// WithLogger configures a logger for the Builder.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) {
		b.logger = logger
	}
}

// New creates a Builder. root is the proxy shape's own node, parent of every
// top level shadow node.
func New(table *refcount.Table, factory *shadow.Factory, stage ports.Stage, root domain.Handle, opts ...Option) *Builder {
	b := &Builder{
		table:   table,
		factory: factory,
		stage:   stage,
		root:    root,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Root returns the proxy root handle.
func (b *Builder) Root() domain.Handle { return b.root }

// Table returns the refcount table the builder maintains.
func (b *Builder) Table() *refcount.Table { return b.table }

// Stage returns the stage prims are read from.
func (b *Builder) Stage() ports.Stage { return b.stage }

// Lookup returns the shadow node for path, the root for the root path, or null.
func (b *Builder) Lookup(path domain.Path) domain.Handle {
	if path.IsRoot() {
		return b.root
	}
	return b.table.Lookup(path)
}

// MaterializeChain guarantees a shadow node exists for path and every
// ancestor, creating missing ones parent first, then takes one reference of
// reason on the whole chain. It returns the leaf's handle.
//
// The root path is the base case and returns the proxy root untouched. A path
// with no prim on the stage is a no-op returning the null handle. If the host
// fails part way, nodes created by this call are removed again and the table
// is left as it was.
func (b *Builder) MaterializeChain(path domain.Path, reason domain.Reason) (domain.Handle, error) {
	if path.IsRoot() {
		return b.root, nil
	}
	if _, ok := b.stage.Prim(path); !ok {
		b.logger.Debug("materialize skipped, no prim", "path", path, "reason", reason)
		return domain.NullHandle, nil
	}

	if _, err := b.EnsureChain(path, nil); err != nil {
		return domain.NullHandle, err
	}

	b.RetainChain(path, reason)
	return b.table.Lookup(path), nil
}

// MaterializeSubtree materializes the chain for path. For ReasonRequested it
// then takes one reference on every descendant prim as well, creating their
// nodes parent first. Other reasons never cascade: selecting a prim must not
// force editable nodes for its whole subtree.
//
// If the host fails inside the subtree, every reference this call took is
// released again and the nodes it created are destroyed.
func (b *Builder) MaterializeSubtree(path domain.Path, reason domain.Reason) (domain.Handle, error) {
	h, err := b.MaterializeChain(path, reason)
	if err != nil || h.IsNull() || reason != domain.ReasonRequested {
		return h, err
	}
	var retained []domain.Path
	if err := b.retainDescendants(path, reason, &retained); err != nil {
		var dead []domain.Path
		for i := len(retained) - 1; i >= 0; i-- {
			if b.table.DecRef(retained[i], reason) {
				dead = append(dead, retained[i])
			}
		}
		_ = b.Destroy(dead)
		_ = b.DematerializeChain(path, reason)
		return domain.NullHandle, err
	}
	return h, nil
}

func (b *Builder) retainDescendants(path domain.Path, reason domain.Reason, retained *[]domain.Path) error {
	for _, child := range b.stage.Children(path) {
		if _, err := b.ensure(child.Path, domain.NullHandle); err != nil {
			return err
		}
		b.table.IncRef(child.Path, reason)
		*retained = append(*retained, child.Path)
		if err := b.retainDescendants(child.Path, reason, retained); err != nil {
			return err
		}
	}
	return nil
}

// DematerializeChain drops one reference of reason from path and each
// ancestor, destroying every node that is left without references, children
// before parents. The references are released even when the host refuses to
// delete a node; see Destroy.
func (b *Builder) DematerializeChain(path domain.Path, reason domain.Reason) error {
	if path.IsRoot() || path.IsEmpty() {
		return nil
	}
	return b.Destroy(b.ReleaseChain(path, reason))
}

// DematerializeSubtree is the inverse of MaterializeSubtree: for
// ReasonRequested every descendant drops its own reference first (deepest
// first), then the chain of path itself is released.
func (b *Builder) DematerializeSubtree(path domain.Path, reason domain.Reason) error {
	if path.IsRoot() || path.IsEmpty() {
		return nil
	}
	var errs []error
	if reason == domain.ReasonRequested {
		var dead []domain.Path
		b.releaseDescendants(path, reason, &dead)
		errs = append(errs, b.Destroy(dead))
	}
	errs = append(errs, b.DematerializeChain(path, reason))
	return errors.Join(errs...)
}

func (b *Builder) releaseDescendants(path domain.Path, reason domain.Reason, dead *[]domain.Path) {
	for _, child := range b.stage.Children(path) {
		b.releaseDescendants(child.Path, reason, dead)
		if b.table.Has(child.Path) && b.table.DecRef(child.Path, reason) {
			*dead = append(*dead, child.Path)
		}
	}
}

// RetainChain takes one reference of reason on path and every ancestor.
// Every record on the chain must already exist; see EnsureChain.
func (b *Builder) RetainChain(path domain.Path, reason domain.Reason) {
	for q := path; !q.IsRoot() && !q.IsEmpty(); q = q.Parent() {
		b.table.IncRef(q, reason)
	}
}

// ReleaseChain drops one reference of reason on path and every ancestor and
// returns the paths left without references, leaf first. Nothing is destroyed.
func (b *Builder) ReleaseChain(path domain.Path, reason domain.Reason) []domain.Path {
	var dead []domain.Path
	for q := path; !q.IsRoot() && !q.IsEmpty(); q = q.Parent() {
		if b.table.DecRef(q, reason) {
			dead = append(dead, q)
		}
	}
	return dead
}

// ReserveChain is the planning form of a selection MaterializeChain: it only
// bumps transient counters. It returns the paths that have no node yet and
// will have to be created on commit, parent first.
func (b *Builder) ReserveChain(path domain.Path) []domain.Path {
	var fresh []domain.Path
	for q := path; !q.IsRoot() && !q.IsEmpty(); q = q.Parent() {
		if b.table.CheckIncRef(q, domain.ReasonSelection) {
			fresh = append(fresh, q)
		}
	}
	for i, j := 0, len(fresh)-1; i < j; i, j = i+1, j-1 {
		fresh[i], fresh[j] = fresh[j], fresh[i]
	}
	return fresh
}

// ProbeRelease is the planning form of a selection DematerializeChain: it
// consumes transient counters and returns the paths whose nodes would be
// destroyed on commit, leaf first.
func (b *Builder) ProbeRelease(path domain.Path) []domain.Path {
	var doomed []domain.Path
	for q := path; !q.IsRoot() && !q.IsEmpty(); q = q.Parent() {
		if b.table.CheckDecRef(q, domain.ReasonSelection) {
			doomed = append(doomed, q)
		}
	}
	return doomed
}

// EnsureChain guarantees path and every ancestor have a record backed by a
// live node, working parent first. A missing record gets a new node, reviving
// the handle hint returns for it when there is one. A record whose node the
// host deleted behind the proxy's back is rebound to a revived node and keeps
// its counters. No references are taken.
//
// It returns the paths that had no record, parent first. On failure the
// records this call added are removed again.
func (b *Builder) EnsureChain(path domain.Path, hint func(domain.Path) domain.Handle) ([]domain.Path, error) {
	if path.IsRoot() || path.IsEmpty() {
		return nil, nil
	}
	line := append(path.Ancestors(), path)
	domain.SortByDepthAsc(line)
	var created []domain.Path
	for _, q := range line {
		old := domain.NullHandle
		if hint != nil && !b.table.Has(q) {
			old = hint(q)
		}
		fresh, err := b.ensure(q, old)
		if err != nil {
			b.rollback(created)
			return nil, err
		}
		if fresh {
			created = append(created, q)
		}
	}
	return created, nil
}

// ensure makes the node for path live and reports whether the record is new.
func (b *Builder) ensure(path domain.Path, old domain.Handle) (bool, error) {
	if ref, ok := b.table.Get(path); ok {
		if b.alive(ref.Node) {
			return false, nil
		}
		b.logger.Warn("shadow node deleted outside the proxy, reviving", "path", path, "node", ref.Node)
		_, err := b.create(path, ref.Node)
		return false, err
	}
	_, err := b.create(path, old)
	return err == nil, err
}

func (b *Builder) alive(h domain.Handle) bool {
	return !h.IsNull() && b.factory.Host().IsAlive(h)
}

// create builds the shadow node for path under its already live parent,
// reviving old when it is not null, and binds the record to it.
func (b *Builder) create(path domain.Path, old domain.Handle) (domain.Handle, error) {
	prim, ok := b.stage.Prim(path)
	if !ok {
		return domain.NullHandle, fmt.Errorf("%s: %w", path, domain.ErrPrimNotFound)
	}
	parent := b.Lookup(path.Parent())
	if parent.IsNull() {
		return domain.NullHandle, fmt.Errorf("%w: parent of %s is not materialized", domain.ErrNodeCreate, path)
	}

	var (
		h   domain.Handle
		err error
	)
	if old.IsNull() {
		h, err = b.factory.CreateNode(prim, parent)
	} else {
		h, err = b.factory.ReviveNode(prim, old, parent)
	}
	if err != nil {
		return domain.NullHandle, err
	}
	b.table.Insert(path, h)
	return h, nil
}

// Destroy removes the shadow nodes of paths, deepest first, and erases their
// records. Stale handles are skipped silently.
//
// When the host refuses to delete a node, the node is put back under its
// parent and its record is kept, along with every ancestor in paths, so the
// table still matches the host graph. The failures are returned joined.
func (b *Builder) Destroy(paths []domain.Path) error {
	ordered := append([]domain.Path(nil), paths...)
	domain.SortByDepthDesc(ordered)
	var (
		kept []domain.Path
		errs []error
	)
	for i, p := range ordered {
		if i > 0 && ordered[i-1] == p {
			continue
		}
		if holdsKept(p, kept) {
			continue
		}
		h := b.table.Lookup(p)
		if err := b.factory.DestroyNode(p, h); err != nil && !errors.Is(err, domain.ErrStaleHandle) {
			b.logger.Warn("failed to destroy shadow node, keeping it", "path", p, "node", h, "err", err)
			if b.alive(h) {
				if rerr := b.factory.Host().Reparent(h, b.Lookup(p.Parent())); rerr != nil {
					b.logger.Warn("failed to reattach shadow node", "path", p, "node", h, "err", rerr)
				}
			}
			kept = append(kept, p)
			errs = append(errs, err)
			continue
		}
		b.table.Erase(p)
	}
	return errors.Join(errs...)
}

// holdsKept reports whether p is an ancestor of a kept path.
func holdsKept(p domain.Path, kept []domain.Path) bool {
	for _, k := range kept {
		if k != p && k.HasPrefix(p) {
			return true
		}
	}
	return false
}

func (b *Builder) rollback(created []domain.Path) {
	if len(created) == 0 {
		return
	}
	b.logger.Warn("rolling back partially materialized chain", "created", len(created))
	_ = b.Destroy(created)
}
