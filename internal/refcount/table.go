// Package refcount tracks, per prim path, why a shadow node must exist.
package refcount

import (
	"log/slog"
	"sort"

	"github.com/aretw0/proxyshape/internal/logging"
	"github.com/aretw0/proxyshape/pkg/domain"
)

// Table maps prim paths to their TransformReference.
//
// A record exists while at least one committed counter is non-zero, or while
// a selection batch is being planned (see BeginBatch). The table is owned by a
// single proxy and is not safe for concurrent use.
type Table struct {
	entries map[domain.Path]*domain.TransformReference
	batch   bool
	logger  *slog.Logger
}

// Option configures the Table.
type Option func(*Table)

// WithLogger routes underflow diagnostics to logger at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Table) {
		t.logger = logger
	}
}

// New creates an empty table.
func New(opts ...Option) *Table {
	t := &Table{
		entries: make(map[domain.Path]*domain.TransformReference),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Len returns the number of records.
func (t *Table) Len() int { return len(t.entries) }

// Get returns the record for path.
func (t *Table) Get(path domain.Path) (*domain.TransformReference, bool) {
	ref, ok := t.entries[path]
	return ref, ok
}

// Has reports whether path has a record.
func (t *Table) Has(path domain.Path) bool {
	_, ok := t.entries[path]
	return ok
}

// Lookup returns the shadow node handle for path, or the null handle.
func (t *Table) Lookup(path domain.Path) domain.Handle {
	if ref, ok := t.entries[path]; ok {
		return ref.Node
	}
	return domain.NullHandle
}

// Insert creates (or rebinds) the record for path to node, keeping any counts.
func (t *Table) Insert(path domain.Path, node domain.Handle) *domain.TransformReference {
	ref, ok := t.entries[path]
	if !ok {
		ref = &domain.TransformReference{}
		t.entries[path] = ref
	}
	ref.Node = node
	return ref
}

// Erase drops the record for path.
func (t *Table) Erase(path domain.Path) {
	delete(t.entries, path)
}

// IncRef finds or creates the record for path and bumps the counter for reason.
func (t *Table) IncRef(path domain.Path, reason domain.Reason) {
	ref, ok := t.entries[path]
	if !ok {
		ref = &domain.TransformReference{}
		t.entries[path] = ref
	}
	ref.Inc(reason)
	if t.batch && reason == domain.ReasonSelection {
		ref.SelectedTemp++
	}
}

// DecRef lowers the counter for reason and reports whether the record is now
// dead: the caller may then destroy the node and Erase the record.
//
// Decrementing a zero counter, or a path without a record, is a bookkeeping
// bug elsewhere. It is logged and otherwise ignored.
func (t *Table) DecRef(path domain.Path, reason domain.Reason) bool {
	ref, ok := t.entries[path]
	if !ok {
		t.logger.Debug("decref on unknown path", "path", path, "reason", reason)
		return false
	}
	if !ref.Dec(reason) {
		t.logger.Debug("refcount underflow", "path", path, "reason", reason)
	}
	return !ref.Live()
}

// CheckRef reports whether a DecRef of reason on path would leave the record
// dead. Nothing is modified. For ReasonSelection the transient counter of the
// batch in flight is consulted instead of the committed one.
func (t *Table) CheckRef(path domain.Path, reason domain.Reason) bool {
	ref, ok := t.entries[path]
	if !ok {
		return false
	}
	sel, req, rqd := ref.Selected, ref.Requested, ref.Required
	if t.batch {
		sel = ref.SelectedTemp
	}
	switch reason {
	case domain.ReasonSelection:
		sel = decFloor(sel)
	case domain.ReasonRequested:
		req = decFloor(req)
	case domain.ReasonRequired:
		rqd = decFloor(rqd)
	}
	return sel == 0 && req == 0 && rqd == 0
}

// CheckDecRef is CheckRef followed by consuming one transient selection
// reference, so later probes in the same batch see the earlier ones.
func (t *Table) CheckDecRef(path domain.Path, reason domain.Reason) bool {
	last := t.CheckRef(path, reason)
	if ref, ok := t.entries[path]; ok && t.batch && reason == domain.ReasonSelection {
		ref.SelectedTemp = decFloor(ref.SelectedTemp)
	}
	return last
}

// CheckIncRef reserves path for the batch in flight by bumping its transient
// counter. A record with no committed counts is created when none exists; it
// reports true in that case, meaning a node will have to be created on commit.
// Outside a batch, or for reasons other than selection, it does nothing.
func (t *Table) CheckIncRef(path domain.Path, reason domain.Reason) bool {
	if !t.batch || reason != domain.ReasonSelection {
		return false
	}
	ref, ok := t.entries[path]
	if !ok {
		ref = &domain.TransformReference{}
		t.entries[path] = ref
	}
	ref.SelectedTemp++
	return !ok
}

// BeginBatch starts planning a selection batch: every transient counter is
// seeded from its committed selection counter.
func (t *Table) BeginBatch() {
	t.batch = true
	for _, ref := range t.entries {
		ref.SelectedTemp = ref.Selected
	}
}

// EndBatch finishes planning. Transient counters are cleared and records that
// only existed as reservations are dropped, leaving committed state untouched.
func (t *Table) EndBatch() {
	t.batch = false
	for path, ref := range t.entries {
		ref.SelectedTemp = 0
		if !ref.Live() && ref.Node.IsNull() {
			delete(t.entries, path)
		}
	}
}

// InBatch reports whether a selection batch is being planned.
func (t *Table) InBatch() bool { return t.batch }

// HasDescendant reports whether any record lies strictly below path.
func (t *Table) HasDescendant(path domain.Path) bool {
	for p := range t.entries {
		if p != path && p.HasPrefix(path) {
			return true
		}
	}
	return false
}

// Paths returns every recorded path in lexical order.
func (t *Table) Paths() []domain.Path {
	out := make([]domain.Path, 0, len(t.entries))
	for p := range t.entries {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SortedByDepth returns every recorded path, deepest first.
func (t *Table) SortedByDepth() []domain.Path {
	out := t.Paths()
	domain.SortByDepthDesc(out)
	return out
}

// References returns a copy of every record in lexical path order.
func (t *Table) References() []domain.Reference {
	paths := t.Paths()
	out := make([]domain.Reference, 0, len(paths))
	for _, p := range paths {
		out = append(out, domain.Reference{Path: p, TransformReference: *t.entries[p]})
	}
	return out
}

func decFloor(v uint16) uint16 {
	if v == 0 {
		return 0
	}
	return v - 1
}
