package selection

import (
	"github.com/aretw0/proxyshape/pkg/domain"
)

// Snapshot holds the USD and host selections at one point in time.
// It replaces process wide "store then restore" selection state: the caller
// owns it and decides its lifetime.
type Snapshot struct {
	coord    *Coordinator
	selected []domain.Path
	host     []domain.Handle
	nodes    map[domain.Path]domain.Handle
}

// Capture records the current selections.
func (c *Coordinator) Capture() *Snapshot {
	s := &Snapshot{
		coord:    c,
		selected: c.Selected(),
		nodes:    make(map[domain.Path]domain.Handle),
	}
	for _, ref := range c.builder.Table().References() {
		s.nodes[ref.Path] = ref.Node
	}
	if c.host != nil {
		s.host = c.host.Selected()
	}
	return s
}

// Paths returns the captured USD selection.
func (s *Snapshot) Paths() []domain.Path { return s.selected }

// Restore brings both selections back to the captured state. The USD side
// goes through an internal op that revives the captured shadow nodes where
// the host still can, and the host list is then written once, directly.
func (s *Snapshot) Restore() error {
	op := s.coord.plan(s.selected, domain.SelectReplace, true)
	for i := range op.Inserted {
		op.Inserted[i].Node = s.nodes[op.Inserted[i].Path]
	}
	if !op.IsNoop() {
		if err := op.Do(); err != nil {
			return err
		}
	}
	if host := s.coord.host; host != nil {
		// Nodes the host could not restore come back with new handles; add
		// them so the host list still covers every restored path.
		handles := append([]domain.Handle(nil), s.host...)
		seen := make(map[domain.Handle]bool, len(handles))
		for _, h := range handles {
			seen[h] = true
		}
		for _, p := range s.selected {
			if h := s.coord.builder.Lookup(p); !h.IsNull() && !seen[h] {
				handles = append(handles, h)
				seen[h] = true
			}
		}
		s.coord.pushing = true
		host.Select(handles, domain.SelectReplace)
		s.coord.pushing = false
	}
	return nil
}
