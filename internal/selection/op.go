package selection

import (
	"sort"

	"github.com/aretw0/proxyshape/pkg/domain"
)

// Entry pairs a prim path with its shadow node.
type Entry struct {
	Path domain.Path   `json:"path"`
	Node domain.Handle `json:"node"`
}

// Op is one undoable selection change. It captures the selection before and
// after, the shadow nodes the change creates (Inserted) and destroys
// (Removed), and the host selection adjustment. Undo applies the same
// machinery with the lists swapped, so Do followed by Undo restores the
// selection, the refcount table and the set of live nodes exactly.
//
// The lists are rewritten every time the op is applied. Chains are rebuilt
// from the live table, not from the lists, which only supply the handles to
// revive: other references may have come and gone in between.
//
// An Op must be kept by the undo queue for as long as it may be undone.
type Op struct {
	coord *Coordinator

	Mode      domain.SelectMode
	Requested []domain.Path
	Previous  domain.PathSet
	Next      domain.PathSet

	// Selecting and Deselecting are the selection deltas.
	Selecting   []domain.Path
	Deselecting []domain.Path

	// Inserted are nodes created by Do, parent first.
	// Removed are nodes destroyed by Do, children first.
	Inserted []Entry
	Removed  []Entry

	internal   bool
	done       bool
	hostBefore []domain.Handle
	hostPaths  map[domain.Handle]domain.Path
	captured   bool
}

// Name implements undo.Command.
func (o *Op) Name() string { return "select " + o.Mode.String() }

// Internal reports whether the op skips pushing to the host selection list.
func (o *Op) Internal() bool { return o.internal }

// IsNoop reports whether the op changes nothing.
func (o *Op) IsNoop() bool {
	return len(o.Selecting) == 0 && len(o.Deselecting) == 0
}

// Done reports whether the op is currently applied.
func (o *Op) Done() bool { return o.done }

// Do applies the change. If the host fails to create a node, everything
// this call created is removed again and the error is returned with live
// state untouched.
func (o *Op) Do() error {
	if o.done {
		return nil
	}
	if err := o.apply(o.Selecting, o.Deselecting, &o.Inserted, &o.Removed, o.Next, true); err != nil {
		return err
	}
	o.done = true
	return nil
}

// Undo reverses a previous Do.
func (o *Op) Undo() error {
	if !o.done {
		return nil
	}
	if err := o.apply(o.Deselecting, o.Selecting, &o.Removed, &o.Inserted, o.Previous, false); err != nil {
		return err
	}
	o.done = false
	return nil
}

func (o *Op) apply(retain, release []domain.Path, created, destroyed *[]Entry, target domain.PathSet, forward bool) error {
	c := o.coord
	b := c.builder
	table := b.Table()

	if forward && c.host != nil && !o.internal && !o.captured {
		o.hostBefore = c.host.Selected()
		o.hostPaths = make(map[domain.Handle]domain.Path, len(o.hostBefore))
		for _, ref := range table.References() {
			o.hostPaths[ref.Node] = ref.Path
		}
		o.captured = true
	}

	// Revive keeps the handles the host handed out the last time round.
	previous := make(map[domain.Path]domain.Handle, len(*created))
	for _, e := range *created {
		previous[e.Path] = e.Node
	}
	hint := func(p domain.Path) domain.Handle { return previous[p] }

	var made []domain.Path
	for _, p := range retain {
		fresh, err := b.EnsureChain(p, hint)
		if err != nil {
			_ = b.Destroy(made)
			c.logger.Warn("selection change failed, rolled back", "mode", o.Mode, "path", p, "err", err)
			return err
		}
		made = append(made, fresh...)
	}
	domain.SortByDepthAsc(made)
	inserted := make([]Entry, 0, len(made))
	for _, p := range made {
		inserted = append(inserted, Entry{Path: p, Node: table.Lookup(p)})
	}
	*created = inserted

	// Resolve host handles now: nodes about to be destroyed are still live.
	var push []domain.Handle
	if c.host != nil && !o.internal && forward {
		for _, p := range o.Requested {
			if h := table.Lookup(p); !h.IsNull() {
				push = append(push, h)
			}
		}
	}

	for _, p := range retain {
		b.RetainChain(p, domain.ReasonSelection)
	}
	var dead []domain.Path
	for _, p := range release {
		dead = append(dead, b.ReleaseChain(p, domain.ReasonSelection)...)
	}
	domain.SortByDepthDesc(dead)
	gone := make([]Entry, 0, len(dead))
	for i, p := range dead {
		if i > 0 && dead[i-1] == p {
			continue
		}
		gone = append(gone, Entry{Path: p, Node: table.Lookup(p)})
	}
	// Nodes the host refuses to delete keep their records; Destroy logs them.
	_ = b.Destroy(dead)
	kept := gone[:0]
	for _, e := range gone {
		if !table.Has(e.Path) {
			kept = append(kept, e)
		}
	}
	*destroyed = kept

	c.selected = target.Clone()

	if c.host != nil && !o.internal {
		c.pushing = true
		if forward {
			c.host.Select(push, o.Mode)
		} else {
			c.host.Select(o.restoredHost(), domain.SelectReplace)
		}
		c.pushing = false
	}

	if forward {
		c.emit(o, o.Selecting, o.Deselecting)
	} else {
		c.emit(o, o.Deselecting, o.Selecting)
	}
	return nil
}

// restoredHost maps the host list captured before the first Do onto the
// current nodes, which differ from the captured ones when a node had to be
// recreated since.
func (o *Op) restoredHost() []domain.Handle {
	table := o.coord.builder.Table()
	out := make([]domain.Handle, 0, len(o.hostBefore))
	for _, h := range o.hostBefore {
		if p, ok := o.hostPaths[h]; ok {
			if cur := table.Lookup(p); !cur.IsNull() {
				h = cur
			}
		}
		out = append(out, h)
	}
	return out
}

func sortEntriesAsc(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		di, dj := entries[i].Path.Depth(), entries[j].Path.Depth()
		if di != dj {
			return di < dj
		}
		return entries[i].Path < entries[j].Path
	})
}
