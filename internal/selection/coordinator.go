// Package selection keeps a proxy's selected prim paths and the shadow nodes
// backing them consistent with the host's native selection, with undo.
package selection

import (
	"log/slog"
	"time"

	"github.com/aretw0/proxyshape/internal/chain"
	"github.com/aretw0/proxyshape/internal/logging"
	"github.com/aretw0/proxyshape/pkg/domain"
	"github.com/aretw0/proxyshape/pkg/ports"
)

// Coordinator owns the selected-paths set of one proxy. Every change goes
// through PlanSelectionChange and the returned Op.
type Coordinator struct {
	builder  *chain.Builder
	policy   ports.Selectability
	host     ports.HostSelection
	selected domain.PathSet
	logger   *slog.Logger
	hooks    domain.LifecycleHooks
	proxyID  string

	// pushing is set while an Op writes to the host selection list, so
	// the host's own change notification does not loop back in.
	pushing bool
}

// Option configures the Coordinator.
type Option func(*Coordinator)

// WithLogger configures a logger for the Coordinator.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithSelectability installs the policy that filters requested paths.
func WithSelectability(policy ports.Selectability) Option {
	return func(c *Coordinator) {
		c.policy = policy
	}
}

// WithHostSelection connects the host's native selection list. Without one,
// ops only maintain the USD side.
func WithHostSelection(host ports.HostSelection) Option {
	return func(c *Coordinator) {
		c.host = host
	}
}

// WithHooks registers lifecycle callbacks.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(c *Coordinator) {
		c.hooks = hooks
	}
}

// WithProxyID tags emitted events with the owning proxy.
func WithProxyID(id string) Option {
	return func(c *Coordinator) {
		c.proxyID = id
	}
}

// NewCoordinator creates a Coordinator with an empty selection.
func NewCoordinator(builder *chain.Builder, opts ...Option) *Coordinator {
	c := &Coordinator{
		builder:  builder,
		selected: make(domain.PathSet),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Selected returns the selected paths in lexical order.
func (c *Coordinator) Selected() []domain.Path {
	return c.selected.Sorted()
}

// IsSelected reports whether path is selected.
func (c *Coordinator) IsSelected(path domain.Path) bool {
	return c.selected.Has(path)
}

// HostSelection returns the connected host selection, if any.
func (c *Coordinator) HostSelection() ports.HostSelection { return c.host }

// Pushing reports whether an Op is currently writing the host selection list.
func (c *Coordinator) Pushing() bool { return c.pushing }

// PlanSelectionChange computes, without touching live state, everything
// needed to move the selection by mode towards requested. Nothing happens
// until the returned Op's Do is called.
func (c *Coordinator) PlanSelectionChange(requested []domain.Path, mode domain.SelectMode) *Op {
	return c.plan(requested, mode, false)
}

// PlanClear plans deselecting everything.
func (c *Coordinator) PlanClear() *Op {
	return c.plan(nil, domain.SelectReplace, false)
}

func (c *Coordinator) plan(requested []domain.Path, mode domain.SelectMode, internal bool) *Op {
	paths := c.filter(requested)
	prev := c.selected.Clone()
	next := nextSet(prev, paths, mode)

	op := &Op{
		coord:     c,
		Mode:      mode,
		Requested: paths,
		Previous:  prev,
		Next:      next,
		internal:  internal,
	}

	// Additions keep request order; removals are processed in lexical order.
	for _, p := range paths {
		if next.Has(p) && !prev.Has(p) {
			op.Selecting = append(op.Selecting, p)
		}
	}
	op.Deselecting = prev.Minus(next)

	table := c.builder.Table()
	table.BeginBatch()
	// Reserve first: a node shared by a removed and an added chain must see
	// the new reference before the old one is released.
	seen := make(domain.PathSet)
	for _, p := range op.Selecting {
		for _, q := range c.builder.ReserveChain(p) {
			if !seen.Has(q) {
				seen.Add(q)
				op.Inserted = append(op.Inserted, Entry{Path: q})
			}
		}
	}
	var doomed []domain.Path
	for _, p := range op.Deselecting {
		doomed = append(doomed, c.builder.ProbeRelease(p)...)
	}
	table.EndBatch()

	domain.SortByDepthDesc(doomed)
	for i, q := range doomed {
		if i > 0 && doomed[i-1] == q {
			continue
		}
		op.Removed = append(op.Removed, Entry{Path: q, Node: table.Lookup(q)})
	}
	sortEntriesAsc(op.Inserted)

	c.logger.Debug("selection planned",
		"mode", mode,
		"selecting", len(op.Selecting),
		"deselecting", len(op.Deselecting),
		"create", len(op.Inserted),
		"destroy", len(op.Removed),
	)
	return op
}

// filter drops paths that are not absolute prim paths, have no prim, or are
// unselectable, and removes duplicates keeping the first occurrence.
func (c *Coordinator) filter(requested []domain.Path) []domain.Path {
	seen := make(domain.PathSet, len(requested))
	out := make([]domain.Path, 0, len(requested))
	for _, p := range requested {
		if p.IsRoot() || !p.IsAbsolute() || seen.Has(p) {
			continue
		}
		prim, ok := c.builder.Stage().Prim(p)
		if !ok || prim.Unselectable {
			continue
		}
		if c.policy != nil && !c.policy.IsSelectable(p) {
			continue
		}
		seen.Add(p)
		out = append(out, p)
	}
	return out
}

func nextSet(prev domain.PathSet, paths []domain.Path, mode domain.SelectMode) domain.PathSet {
	var next domain.PathSet
	switch mode {
	case domain.SelectReplace:
		next = domain.NewPathSet(paths...)
	case domain.SelectAdd:
		next = prev.Clone()
		for _, p := range paths {
			next.Add(p)
		}
	case domain.SelectRemove:
		next = prev.Clone()
		for _, p := range paths {
			next.Remove(p)
		}
	case domain.SelectToggle:
		next = prev.Clone()
		for _, p := range paths {
			if prev.Has(p) {
				next.Remove(p)
			} else {
				next.Add(p)
			}
		}
	default:
		next = prev.Clone()
	}
	return next
}

func (c *Coordinator) emit(op *Op, added, removed []domain.Path) {
	if c.hooks.OnSelectionChanged == nil {
		return
	}
	c.hooks.OnSelectionChanged(&domain.SelectionEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventSelectionChanged, ProxyID: c.proxyID},
		Mode:      op.Mode,
		Added:     added,
		Removed:   removed,
		Internal:  op.internal,
	})
}
