package chain_test

import (
	"errors"
	"testing"

	"github.com/aretw0/proxyshape/internal/chain"
	"github.com/aretw0/proxyshape/internal/refcount"
	"github.com/aretw0/proxyshape/internal/shadow"
	"github.com/aretw0/proxyshape/pkg/adapters/memory"
	"github.com/aretw0/proxyshape/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	host    *memory.Host
	stage   *memory.Stage
	table   *refcount.Table
	root    domain.Handle
	builder *chain.Builder
}

func newFixture(t *testing.T, paths ...string) *fixture {
	t.Helper()
	host := memory.NewHost()
	root, err := host.CreateNode(domain.NodeKindProxy, host.World())
	require.NoError(t, err)

	stage := memory.MustStage(paths...)
	table := refcount.New()
	return &fixture{
		host:    host,
		stage:   stage,
		table:   table,
		root:    root,
		builder: chain.New(table, shadow.New(host), stage, root),
	}
}

func (f *fixture) ref(t *testing.T, path string) *domain.TransformReference {
	t.Helper()
	ref, ok := f.table.Get(domain.MustParsePath(path))
	require.True(t, ok, "expected a record for %s", path)
	return ref
}

// assertContiguous checks every recorded path has recorded ancestors and
// that each record's node is alive under its parent's node.
func (f *fixture) assertContiguous(t *testing.T) {
	t.Helper()
	for _, p := range f.table.Paths() {
		ref, _ := f.table.Get(p)
		assert.True(t, ref.Live(), "%s has a record but no references", p)
		assert.True(t, f.host.IsAlive(ref.Node), "%s has a dead node", p)
		parent := p.Parent()
		want := f.root
		if !parent.IsRoot() {
			require.True(t, f.table.Has(parent), "%s is live but its parent is not", p)
			want = f.table.Lookup(parent)
		}
		assert.Equal(t, want, f.host.Parent(ref.Node), "%s is parented under the wrong node", p)
	}
}

func TestMaterializeChain_CreatesParentFirst(t *testing.T) {
	f := newFixture(t, "/a", "/a/b", "/a/b/c")

	h, err := f.builder.MaterializeChain("/a/b/c", domain.ReasonRequested)
	require.NoError(t, err)

	assert.Equal(t, 3, f.table.Len())
	for _, p := range []string{"/a", "/a/b", "/a/b/c"} {
		assert.EqualValues(t, 1, f.ref(t, p).Requested, p)
	}

	created := f.host.Created()
	require.Len(t, created, 4, "proxy root plus three shadow nodes")
	var order []domain.Path
	for _, c := range created[1:] {
		n, ok := f.host.Node(c)
		require.True(t, ok)
		order = append(order, n.PrimPath)
	}
	assert.Equal(t, []domain.Path{"/a", "/a/b", "/a/b/c"}, order)
	assert.Equal(t, f.root, f.host.Parent(f.table.Lookup("/a")))
	assert.Equal(t, f.table.Lookup("/a/b/c"), h)
	f.assertContiguous(t)
}

func TestMaterializeChain_ReReferenceBumpsAncestors(t *testing.T) {
	f := newFixture(t, "/a", "/a/b", "/a/b/c")
	_, err := f.builder.MaterializeChain("/a/b/c", domain.ReasonRequested)
	require.NoError(t, err)
	before := len(f.host.Created())
	existing := f.table.Lookup("/a/b")

	h, err := f.builder.MaterializeChain("/a/b", domain.ReasonSelection)
	require.NoError(t, err)

	assert.Equal(t, existing, h)
	assert.Len(t, f.host.Created(), before, "no new node")
	assert.EqualValues(t, 1, f.ref(t, "/a/b").Selected)
	assert.EqualValues(t, 1, f.ref(t, "/a").Selected)
	assert.EqualValues(t, 0, f.ref(t, "/a/b/c").Selected)
}

func TestDematerializeChain_KeepsSelectedAncestors(t *testing.T) {
	f := newFixture(t, "/a", "/a/b", "/a/b/c")
	_, err := f.builder.MaterializeChain("/a/b/c", domain.ReasonRequested)
	require.NoError(t, err)
	_, err = f.builder.MaterializeChain("/a/b", domain.ReasonSelection)
	require.NoError(t, err)
	leaf := f.table.Lookup("/a/b/c")

	f.builder.DematerializeChain("/a/b/c", domain.ReasonRequested)

	assert.False(t, f.table.Has("/a/b/c"))
	assert.False(t, f.host.IsAlive(leaf))

	ab := f.ref(t, "/a/b")
	assert.EqualValues(t, 0, ab.Requested)
	assert.EqualValues(t, 1, ab.Selected)

	// /a carries the selection reference taken through /a/b, so it survives.
	a := f.ref(t, "/a")
	assert.EqualValues(t, 0, a.Requested)
	assert.EqualValues(t, 1, a.Selected)
	f.assertContiguous(t)
}

func TestMaterializeThenDematerialize_RoundTrip(t *testing.T) {
	for _, reason := range []domain.Reason{domain.ReasonSelection, domain.ReasonRequested, domain.ReasonRequired} {
		t.Run(reason.String(), func(t *testing.T) {
			f := newFixture(t, "/a", "/a/b", "/a/b/c", "/x")
			_, err := f.builder.MaterializeChain("/x", domain.ReasonRequired)
			require.NoError(t, err)
			before := f.table.References()
			live := f.host.LiveCount()

			_, err = f.builder.MaterializeChain("/a/b/c", reason)
			require.NoError(t, err)
			f.builder.DematerializeChain("/a/b/c", reason)

			assert.Equal(t, before, f.table.References())
			assert.Equal(t, live, f.host.LiveCount())
		})
	}
}

func TestMaterializeChain_RootIsBaseCase(t *testing.T) {
	f := newFixture(t, "/a")

	h, err := f.builder.MaterializeChain(domain.RootPath, domain.ReasonRequested)
	require.NoError(t, err)
	assert.Equal(t, f.root, h)
	assert.Equal(t, 0, f.table.Len())

	f.builder.DematerializeChain(domain.RootPath, domain.ReasonRequested)
	assert.True(t, f.host.IsAlive(f.root))
}

func TestMaterializeChain_UnknownPrimIsNoop(t *testing.T) {
	f := newFixture(t, "/a")

	h, err := f.builder.MaterializeChain("/nope/deeper", domain.ReasonRequested)
	require.NoError(t, err)
	assert.True(t, h.IsNull())
	assert.Equal(t, 0, f.table.Len())
}

func TestMaterializeChain_RollsBackOnHostFailure(t *testing.T) {
	f := newFixture(t, "/a", "/a/b", "/a/b/c")
	_, err := f.builder.MaterializeChain("/a", domain.ReasonRequired)
	require.NoError(t, err)
	before := f.table.References()
	live := f.host.LiveCount()

	calls := 0
	f.host.FailCreate(func(kind domain.NodeKind, parent domain.Handle) error {
		calls++
		if calls == 2 {
			return errors.New("out of nodes")
		}
		return nil
	})

	h, err := f.builder.MaterializeChain("/a/b/c", domain.ReasonRequested)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNodeCreate)
	assert.True(t, h.IsNull())
	assert.Equal(t, before, f.table.References(), "table must be untouched")
	assert.Equal(t, live, f.host.LiveCount(), "the /a/b node must be removed again")
}

func TestSubtree_CascadesOnlyForRequested(t *testing.T) {
	f := newFixture(t, "/a", "/a/b", "/a/b/c", "/a/d")

	_, err := f.builder.MaterializeSubtree("/a", domain.ReasonSelection)
	require.NoError(t, err)
	assert.Equal(t, 1, f.table.Len(), "selection must not cascade")
	f.builder.DematerializeSubtree("/a", domain.ReasonSelection)
	assert.Equal(t, 0, f.table.Len())

	_, err = f.builder.MaterializeSubtree("/a", domain.ReasonRequested)
	require.NoError(t, err)
	assert.Equal(t, []domain.Path{"/a", "/a/b", "/a/b/c", "/a/d"}, f.table.Paths())
	for _, p := range []string{"/a", "/a/b", "/a/b/c", "/a/d"} {
		assert.EqualValues(t, 1, f.ref(t, p).Requested, p)
	}
	f.assertContiguous(t)
}

func TestSubtree_RollsBackOnHostFailure(t *testing.T) {
	f := newFixture(t, "/a", "/a/b", "/a/b/c", "/a/d")
	_, err := f.builder.MaterializeChain("/a", domain.ReasonSelection)
	require.NoError(t, err)
	before := f.table.References()
	live := f.host.LiveCount()

	calls := 0
	f.host.FailCreate(func(domain.NodeKind, domain.Handle) error {
		calls++
		if calls == 3 {
			return errors.New("host refused")
		}
		return nil
	})

	h, err := f.builder.MaterializeSubtree("/a", domain.ReasonRequested)
	require.Error(t, err)
	assert.True(t, h.IsNull())
	assert.Equal(t, before, f.table.References())
	assert.Equal(t, live, f.host.LiveCount())
	f.assertContiguous(t)
}

func TestSubtree_RoundTripWithOverlappingChain(t *testing.T) {
	f := newFixture(t, "/a", "/a/b", "/a/b/c", "/a/d")
	live := f.host.LiveCount()

	_, err := f.builder.MaterializeSubtree("/a", domain.ReasonRequested)
	require.NoError(t, err)
	_, err = f.builder.MaterializeChain("/a/b/c", domain.ReasonRequested)
	require.NoError(t, err)

	f.builder.DematerializeSubtree("/a", domain.ReasonRequested)
	assert.Equal(t, []domain.Path{"/a", "/a/b", "/a/b/c"}, f.table.Paths(), "the explicit chain still holds /a/b/c")
	f.assertContiguous(t)

	f.builder.DematerializeChain("/a/b/c", domain.ReasonRequested)
	assert.Equal(t, 0, f.table.Len())
	assert.Equal(t, live, f.host.LiveCount())
}

func TestDestroy_ToleratesOutOfBandDeletes(t *testing.T) {
	f := newFixture(t, "/a", "/a/b")
	_, err := f.builder.MaterializeChain("/a/b", domain.ReasonRequested)
	require.NoError(t, err)

	// The host deletes /a (and with it /a/b) behind our back.
	require.NoError(t, f.host.DeleteNode(f.table.Lookup("/a")))

	f.builder.DematerializeChain("/a/b", domain.ReasonRequested)
	assert.Equal(t, 0, f.table.Len())
}

func TestDestroy_DoesNotCascadeIntoSiblings(t *testing.T) {
	f := newFixture(t, "/a", "/a/b", "/a/c")
	_, err := f.builder.MaterializeChain("/a/b", domain.ReasonRequested)
	require.NoError(t, err)
	_, err = f.builder.MaterializeChain("/a/c", domain.ReasonRequested)
	require.NoError(t, err)

	f.builder.DematerializeChain("/a/b", domain.ReasonRequested)

	assert.True(t, f.host.IsAlive(f.table.Lookup("/a/c")))
	assert.True(t, f.host.IsAlive(f.table.Lookup("/a")))
	f.assertContiguous(t)
}

func TestPlanning_ReserveAndProbe(t *testing.T) {
	f := newFixture(t, "/a", "/a/b", "/a/c")
	_, err := f.builder.MaterializeChain("/a/b", domain.ReasonSelection)
	require.NoError(t, err)

	f.table.BeginBatch()
	fresh := f.builder.ReserveChain("/a/c")
	doomed := f.builder.ProbeRelease("/a/b")
	f.table.EndBatch()

	assert.Equal(t, []domain.Path{"/a/c"}, fresh)
	assert.Equal(t, []domain.Path{"/a/b"}, doomed, "/a stays, /a/c reserved it")
	assert.Equal(t, []domain.Path{"/a", "/a/b"}, f.table.Paths(), "planning leaves the table untouched")
}

func TestMaterializeChain_RevivesAncestorsDeletedByHost(t *testing.T) {
	f := newFixture(t, "/a", "/a/b", "/a/b/c")
	_, err := f.builder.MaterializeChain("/a/b", domain.ReasonSelection)
	require.NoError(t, err)
	a, b := f.table.Lookup("/a"), f.table.Lookup("/a/b")

	// The host deletes /a, and with it /a/b, while both are still referenced.
	require.NoError(t, f.host.DeleteNode(a))

	h, err := f.builder.MaterializeChain("/a/b/c", domain.ReasonSelection)
	require.NoError(t, err)
	assert.Equal(t, a, f.table.Lookup("/a"), "restored with its old handle")
	assert.Equal(t, b, f.table.Lookup("/a/b"))
	assert.Equal(t, b, f.host.Parent(h))
	assert.Equal(t, uint16(2), f.ref(t, "/a").Selected)
	f.assertContiguous(t)
}

func TestMaterializeChain_RecreatesPurgedAncestors(t *testing.T) {
	f := newFixture(t, "/a", "/a/b")
	_, err := f.builder.MaterializeChain("/a", domain.ReasonRequired)
	require.NoError(t, err)
	a := f.table.Lookup("/a")
	require.NoError(t, f.host.DeleteNode(a))
	f.host.Purge()

	_, err = f.builder.MaterializeChain("/a/b", domain.ReasonRequested)
	require.NoError(t, err)
	assert.NotEqual(t, a, f.table.Lookup("/a"))
	assert.Equal(t, uint16(1), f.ref(t, "/a").Required, "counters survive the rebind")
	f.assertContiguous(t)
}

func TestDestroy_KeepsNodesTheHostRefusesToDelete(t *testing.T) {
	f := newFixture(t, "/a", "/a/b")
	_, err := f.builder.MaterializeChain("/a/b", domain.ReasonRequested)
	require.NoError(t, err)
	a, b := f.table.Lookup("/a"), f.table.Lookup("/a/b")

	boom := errors.New("host refused")
	f.host.FailDelete(func(h domain.Handle) error {
		if h == b {
			return boom
		}
		return nil
	})
	err = f.builder.DematerializeChain("/a/b", domain.ReasonRequested)
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, b, f.table.Lookup("/a/b"), "the record still points at the live node")
	assert.Equal(t, a, f.table.Lookup("/a"), "and its parent is kept with it")
	assert.True(t, f.host.IsAlive(a))
	assert.True(t, f.host.IsAlive(b))
	assert.Equal(t, a, f.host.Parent(b))

	f.host.FailDelete(nil)
	h, err := f.builder.MaterializeChain("/a/b", domain.ReasonRequested)
	require.NoError(t, err)
	assert.Equal(t, b, h, "the kept node is reused")

	require.NoError(t, f.builder.DematerializeChain("/a/b", domain.ReasonRequested))
	assert.Equal(t, 0, f.table.Len())
	assert.False(t, f.host.IsAlive(a))
	assert.False(t, f.host.IsAlive(b))
}
