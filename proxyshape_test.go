package proxyshape_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/aretw0/proxyshape"
	"github.com/aretw0/proxyshape/pkg/adapters/memory"
	"github.com/aretw0/proxyshape/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProxy(t *testing.T, opts ...proxyshape.Option) (*proxyshape.Proxy, *memory.Host) {
	t.Helper()
	stage := memory.MustStage("/a", "/a/b", "/a/b/c", "/c", "/c/d", "/x", "/y")
	host := memory.NewHost()
	opts = append([]proxyshape.Option{proxyshape.WithHostSelection(host)}, opts...)
	p, err := proxyshape.New("test", stage, host, opts...)
	require.NoError(t, err)
	return p, host
}

type counts struct{ Selected, Required, Requested uint16 }

func countsOf(p *proxyshape.Proxy) map[domain.Path]counts {
	out := make(map[domain.Path]counts)
	for _, r := range p.References() {
		out[r.Path] = counts{r.Selected, r.Required, r.Requested}
	}
	return out
}

func TestNew_CreatesAndCloseRemovesRoot(t *testing.T) {
	p, host := newProxy(t)
	root := p.Root()
	require.True(t, host.IsAlive(root))
	n, _ := host.Node(root)
	assert.Equal(t, domain.NodeKindProxy, n.Kind)
	assert.Equal(t, "test", n.Name)
	assert.Equal(t, host.Scratch(), host.Parent(root))
	assert.Equal(t, root, p.Lookup(domain.RootPath))

	_, err := p.Materialize("/a/b")
	require.NoError(t, err)
	_, err = p.Select([]domain.Path{"/x"}, domain.SelectReplace)
	require.NoError(t, err)

	require.NoError(t, p.Close())
	assert.Empty(t, p.References())
	assert.False(t, host.IsAlive(root))
	assert.Equal(t, 2, host.LiveCount())
}

func TestNew_WithRootUsesExistingNode(t *testing.T) {
	host := memory.NewHost()
	root, err := host.CreateNode(domain.NodeKindProxy, host.World())
	require.NoError(t, err)

	p, err := proxyshape.New("x", memory.MustStage("/a"), host, proxyshape.WithRoot(root))
	require.NoError(t, err)
	assert.Equal(t, root, p.Root())
	require.NoError(t, p.Close())
	assert.True(t, host.IsAlive(root), "a borrowed root is left alone")
}

func TestMaterialize_UndoRedo(t *testing.T) {
	p, host := newProxy(t)
	live := host.LiveCount()

	h, err := p.Materialize("/a/b/c")
	require.NoError(t, err)
	assert.True(t, host.IsAlive(h))
	assert.Equal(t, []string{"materialize /a/b/c"}, p.History())

	_, err = p.Undo()
	require.NoError(t, err)
	assert.Equal(t, live, host.LiveCount())
	assert.Empty(t, p.References())

	_, err = p.Redo()
	require.NoError(t, err)
	assert.Equal(t, counts{Requested: 1}, countsOf(p)["/a"])

	require.NoError(t, p.Dematerialize("/a/b/c"))
	assert.Empty(t, p.References())
	_, err = p.Undo()
	require.NoError(t, err)
	assert.Len(t, p.References(), 3)
}

func TestMaterialize_Errors(t *testing.T) {
	p, _ := newProxy(t)

	_, err := p.Materialize("relative")
	assert.ErrorIs(t, err, domain.ErrInvalidPath)

	_, err = p.Materialize("/missing")
	assert.ErrorIs(t, err, domain.ErrPrimNotFound)

	assert.ErrorIs(t, p.Dematerialize("/a"), domain.ErrNotRequested)
	assert.ErrorIs(t, p.DematerializeSubtree("/a"), domain.ErrNotRequested)

	_, err = p.Undo()
	assert.ErrorIs(t, err, domain.ErrNothingToUndo)
	_, err = p.Redo()
	assert.ErrorIs(t, err, domain.ErrNothingToRedo)
}

func TestMaterializeSubtree(t *testing.T) {
	p, _ := newProxy(t)
	_, err := p.MaterializeSubtree("/a")
	require.NoError(t, err)
	assert.Equal(t, []domain.Path{"/a", "/a/b", "/a/b/c"}, paths(p))

	require.NoError(t, p.DematerializeSubtree("/a"))
	assert.Empty(t, p.References())
}

func TestRequire_IsNotUndoable(t *testing.T) {
	p, _ := newProxy(t)
	_, err := p.Require("/c/d")
	require.NoError(t, err)
	assert.Empty(t, p.History())
	assert.Equal(t, counts{Required: 1}, countsOf(p)["/c"])

	require.NoError(t, p.Unrequire("/c/d"))
	assert.Empty(t, p.References())
}

func TestSelect_NoopIsNotRecorded(t *testing.T) {
	p, _ := newProxy(t)
	_, err := p.Select([]domain.Path{"/x"}, domain.SelectReplace)
	require.NoError(t, err)
	op, err := p.Select([]domain.Path{"/x"}, domain.SelectAdd)
	require.NoError(t, err)
	assert.True(t, op.IsNoop())
	assert.Equal(t, []string{"select replace"}, p.History())
}

func TestSelect_UndoRestoresHandles(t *testing.T) {
	p, host := newProxy(t)
	_, err := p.Select([]domain.Path{"/a/b", "/x"}, domain.SelectReplace)
	require.NoError(t, err)
	handles := map[domain.Path]domain.Handle{"/a/b": p.Lookup("/a/b"), "/x": p.Lookup("/x")}
	hostSel := host.Selected()

	_, err = p.ClearSelection()
	require.NoError(t, err)
	assert.Empty(t, p.References())

	_, err = p.Undo()
	require.NoError(t, err)
	for path, h := range handles {
		assert.Equal(t, h, p.Lookup(path))
	}
	assert.Equal(t, hostSel, host.Selected())
}

func TestPostSelect_RecordsBridgeOp(t *testing.T) {
	p, host := newProxy(t)
	_, err := p.Select([]domain.Path{"/x", "/y"}, domain.SelectReplace)
	require.NoError(t, err)

	host.Select([]domain.Handle{p.Lookup("/y")}, domain.SelectRemove)
	require.NoError(t, p.PostSelect())
	assert.Equal(t, []domain.Path{"/x"}, p.Selected())
	assert.Len(t, p.History(), 2)

	_, err = p.Undo()
	require.NoError(t, err)
	assert.Equal(t, []domain.Path{"/x", "/y"}, p.Selected())
}

func TestUndo_FiresCommandHook(t *testing.T) {
	var got []*domain.CommandEvent
	p, _ := newProxy(t, proxyshape.WithLifecycleHooks(domain.LifecycleHooks{
		OnCommand: func(e *domain.CommandEvent) { got = append(got, e) },
	}))
	_, err := p.Materialize("/x")
	require.NoError(t, err)
	_, err = p.Undo()
	require.NoError(t, err)
	_, err = p.Redo()
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, domain.EventUndo, got[0].Type)
	assert.Equal(t, domain.EventRedo, got[1].Type)
	assert.Equal(t, "materialize /x", got[1].Command)
	assert.Equal(t, "test", got[1].ProxyID)
}

func TestFindPayloads(t *testing.T) {
	stage, err := memory.NewStage(
		domain.Prim{Path: "/set", TypeName: "Xform"},
		domain.Prim{Path: "/set/tree", TypeName: "Xform", HasPayload: true, Loaded: true},
		domain.Prim{Path: "/set/rock", TypeName: "Xform", HasPayload: true},
		domain.Prim{Path: "/set/rock/moss", TypeName: "Xform", HasPayload: true, Loaded: true},
		domain.Prim{Path: "/sky", TypeName: "Xform"},
	)
	require.NoError(t, err)
	p, err := proxyshape.New("payloads", stage, memory.NewHost())
	require.NoError(t, err)

	assert.Equal(t, []domain.Path{"/set/tree", "/set/rock", "/set/rock/moss"}, p.FindPayloads(domain.RootPath, domain.PayloadsLoadable))
	assert.Equal(t, []domain.Path{"/set/tree", "/set/rock/moss"}, p.FindPayloads(domain.RootPath, domain.PayloadsLoaded))
	assert.Equal(t, []domain.Path{"/set/rock"}, p.FindPayloads(domain.RootPath, domain.PayloadsUnloaded))
	assert.Equal(t, []domain.Path{"/set/rock", "/set/rock/moss"}, p.FindPayloads("/set/rock", domain.PayloadsLoadable))
	assert.Empty(t, p.FindPayloads("/sky", domain.PayloadsLoadable))
	assert.Nil(t, p.FindPayloads("/nowhere", domain.PayloadsLoadable))
}

func TestWithSelectionSnapshot_RestoresOnErrorAndPanic(t *testing.T) {
	p, host := newProxy(t)
	_, err := p.Select([]domain.Path{"/x"}, domain.SelectReplace)
	require.NoError(t, err)
	hostSel := host.Selected()

	boom := errors.New("boom")
	err = p.WithSelectionSnapshot(func() error {
		_, err := p.Select([]domain.Path{"/a/b/c"}, domain.SelectReplace)
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []domain.Path{"/x"}, p.Selected())
	assert.Equal(t, hostSel, host.Selected())
	assert.Equal(t, []domain.Path{"/x"}, paths(p))

	assert.Panics(t, func() {
		_ = p.WithSelectionSnapshot(func() error {
			_, _ = p.Select([]domain.Path{"/y"}, domain.SelectAdd)
			panic("boom")
		})
	})
	assert.Equal(t, []domain.Path{"/x"}, p.Selected())
	assert.Equal(t, hostSel, host.Selected())
}

func TestWithSelectionSnapshot_RewindsUndoHistory(t *testing.T) {
	p, host := newProxy(t)
	_, err := p.Select([]domain.Path{"/x"}, domain.SelectReplace)
	require.NoError(t, err)

	err = p.WithSelectionSnapshot(func() error {
		if _, err := p.Select([]domain.Path{"/y"}, domain.SelectAdd); err != nil {
			return err
		}
		_, err := p.Materialize("/c")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"select replace"}, p.History())
	assert.Equal(t, []domain.Path{"/x"}, p.Selected())
	assert.Equal(t, counts{Requested: 1}, countsOf(p)["/c"], "materializations stay in place")

	_, err = p.Undo()
	require.NoError(t, err)
	assert.Empty(t, p.Selected())
	assert.Equal(t, []domain.Path{"/c"}, paths(p))

	_, err = p.Redo()
	require.NoError(t, err)
	assert.Equal(t, []domain.Path{"/x"}, p.Selected())
	assert.True(t, host.IsAlive(p.Lookup("/x")))

	// Undoing past the captured point leaves nothing consistent to keep.
	err = p.WithSelectionSnapshot(func() error {
		_, err := p.Undo()
		return err
	})
	require.NoError(t, err)
	assert.Empty(t, p.History())
	assert.Equal(t, []domain.Path{"/x"}, p.Selected())
	_, err = p.Redo()
	assert.ErrorIs(t, err, domain.ErrNothingToRedo)
}

func TestRedo_AfterRequireOutlivedUndo(t *testing.T) {
	p, host := newProxy(t)
	_, err := p.Select([]domain.Path{"/x"}, domain.SelectReplace)
	require.NoError(t, err)
	_, err = p.Require("/x")
	require.NoError(t, err)

	_, err = p.Undo()
	require.NoError(t, err)
	require.NoError(t, p.Unrequire("/x"))
	assert.Empty(t, p.References())

	_, err = p.Redo()
	require.NoError(t, err)
	h := p.Lookup("/x")
	assert.True(t, host.IsAlive(h))
	assert.Equal(t, counts{Selected: 1}, countsOf(p)["/x"])
	assert.Equal(t, []domain.Handle{h}, host.Selected())
}

func TestSelect_RevivesAncestorDeletedByHost(t *testing.T) {
	p, host := newProxy(t)
	_, err := p.Select([]domain.Path{"/a/b"}, domain.SelectReplace)
	require.NoError(t, err)
	require.NoError(t, host.DeleteNode(p.Lookup("/a")))

	_, err = p.Select([]domain.Path{"/a/b/c"}, domain.SelectAdd)
	require.NoError(t, err)
	for _, path := range []domain.Path{"/a", "/a/b", "/a/b/c"} {
		assert.True(t, host.IsAlive(p.Lookup(path)), "%s", path)
	}
	assert.Contains(t, host.Selected(), p.Lookup("/a/b/c"))
}

func TestSelect_HostFailureNamesCommandOnce(t *testing.T) {
	p, host := newProxy(t)
	host.FailCreate(func(domain.NodeKind, domain.Handle) error { return errors.New("host refused") })

	_, err := p.Select([]domain.Path{"/x"}, domain.SelectAdd)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNodeCreate)
	assert.Equal(t, 1, strings.Count(err.Error(), "select add"))
	assert.Empty(t, p.References())
}

func TestRestore_ReleasesEvenWhenHostKeepsNodes(t *testing.T) {
	p, host := newProxy(t)
	_, err := p.Materialize("/c/d")
	require.NoError(t, err)
	d := p.Lookup("/c/d")
	host.FailDelete(func(h domain.Handle) error {
		if h == d {
			return errors.New("host refused")
		}
		return nil
	})

	require.NoError(t, p.Restore(&domain.Snapshot{ProxyID: "test"}))
	assert.Empty(t, p.Snapshot().Requested)
	assert.Equal(t, d, p.Lookup("/c/d"), "the undeletable node stays reachable")
	assert.True(t, host.IsAlive(d))
	assert.Equal(t, p.Lookup("/c"), host.Parent(d))
}

func TestSnapshot_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	src, _ := newProxy(t)
	_, err := src.Materialize("/a/b")
	require.NoError(t, err)
	_, err = src.Materialize("/a/b")
	require.NoError(t, err)
	_, err = src.MaterializeSubtree("/c")
	require.NoError(t, err)
	_, err = src.Select([]domain.Path{"/x", "/a/b/c"}, domain.SelectReplace)
	require.NoError(t, err)
	require.NoError(t, src.SaveTo(ctx, store))

	snap := src.Snapshot()
	assert.Equal(t, []domain.Path{"/a/b", "/a/b"}, snap.Requested)
	assert.Equal(t, []domain.Path{"/c"}, snap.Subtrees)
	assert.Equal(t, []domain.Path{"/a/b/c", "/x"}, snap.Selected)

	dst, _ := newProxy(t)
	_, err = dst.Materialize("/y")
	require.NoError(t, err)
	require.NoError(t, dst.LoadFrom(ctx, store))

	assert.Equal(t, countsOf(src), countsOf(dst))
	assert.Equal(t, src.Selected(), dst.Selected())
	assert.Empty(t, dst.History())

	other, err := proxyshape.New("unknown", memory.MustStage("/a"), memory.NewHost())
	require.NoError(t, err)
	assert.ErrorIs(t, other.LoadFrom(ctx, store), domain.ErrSnapshotNotFound)
}

func TestProxy_ConcurrentSelect(t *testing.T) {
	p, _ := newProxy(t)
	var wg sync.WaitGroup
	for _, path := range []domain.Path{"/a/b/c", "/c/d", "/x", "/y"} {
		wg.Add(1)
		go func(path domain.Path) {
			defer wg.Done()
			_, err := p.Select([]domain.Path{path}, domain.SelectAdd)
			assert.NoError(t, err)
		}(path)
	}
	wg.Wait()
	assert.Len(t, p.Selected(), 4)

	_, err := p.ClearSelection()
	require.NoError(t, err)
	assert.Empty(t, p.References())
}

func paths(p *proxyshape.Proxy) []domain.Path {
	var out []domain.Path
	for _, r := range p.References() {
		out = append(out, r.Path)
	}
	return out
}
