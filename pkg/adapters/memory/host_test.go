package memory_test

import (
	"errors"
	"testing"

	"github.com/aretw0/proxyshape/pkg/adapters/memory"
	"github.com/aretw0/proxyshape/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHost_CreateAndDeleteCascades(t *testing.T) {
	h := memory.NewHost()
	a, err := h.CreateNode(domain.NodeKindTransform, h.World())
	require.NoError(t, err)
	b, err := h.CreateNode(domain.NodeKindTransform, a)
	require.NoError(t, err)
	assert.Equal(t, 4, h.LiveCount())
	assert.Equal(t, []domain.Handle{a, b}, h.Created())

	require.NoError(t, h.DeleteNode(a))
	assert.False(t, h.IsAlive(a))
	assert.False(t, h.IsAlive(b))
	assert.Equal(t, 2, h.LiveCount())

	err = h.DeleteNode(a)
	assert.ErrorIs(t, err, domain.ErrStaleHandle)

	_, err = h.CreateNode(domain.NodeKindTransform, a)
	assert.ErrorIs(t, err, domain.ErrStaleHandle)
}

func TestHost_RestoreKeepsHandle(t *testing.T) {
	h := memory.NewHost()
	a, err := h.CreateNode(domain.NodeKindTransform, h.World())
	require.NoError(t, err)
	require.NoError(t, h.SetPrimPath(a, "/a"))
	require.NoError(t, h.DeleteNode(a))

	require.NoError(t, h.RestoreNode(a, h.World()))
	n, ok := h.Node(a)
	require.True(t, ok)
	assert.Equal(t, domain.Path("/a"), n.PrimPath)
	found, ok := h.FindByPrimPath("/a")
	require.True(t, ok)
	assert.Equal(t, a, found)

	require.NoError(t, h.DeleteNode(a))
	h.Purge()
	assert.ErrorIs(t, h.RestoreNode(a, h.World()), domain.ErrStaleHandle)
}

func TestHost_Reparent(t *testing.T) {
	h := memory.NewHost()
	a, _ := h.CreateNode(domain.NodeKindTransform, h.World())
	b, _ := h.CreateNode(domain.NodeKindTransform, a)

	assert.Error(t, h.Reparent(a, b), "cycles are rejected")

	require.NoError(t, h.Reparent(b, h.Scratch()))
	assert.Equal(t, h.Scratch(), h.Parent(b))
	assert.Empty(t, h.Children(a))
}

func TestHost_FailureInjection(t *testing.T) {
	h := memory.NewHost()
	boom := errors.New("boom")
	h.FailCreate(func(domain.NodeKind, domain.Handle) error { return boom })
	_, err := h.CreateNode(domain.NodeKindTransform, h.World())
	assert.ErrorIs(t, err, boom)
	h.FailCreate(nil)

	a, err := h.CreateNode(domain.NodeKindTransform, h.World())
	require.NoError(t, err)
	h.FailConnect(func(p domain.Plug) error {
		if p == domain.PlugTime {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, h.Connect(a, domain.PlugTime), boom)
	require.NoError(t, h.Connect(a, domain.PlugStageData))

	n, _ := h.Node(a)
	assert.True(t, n.Plugs[domain.PlugStageData])
	assert.False(t, n.Plugs[domain.PlugTime])

	h.FailDelete(func(x domain.Handle) error {
		if x == a {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, h.DeleteNode(a), boom)
	assert.True(t, h.IsAlive(a))
	h.FailDelete(nil)
	require.NoError(t, h.DeleteNode(a))
	assert.False(t, h.IsAlive(a))
}

func TestHost_SelectionModes(t *testing.T) {
	h := memory.NewHost()
	a, _ := h.CreateNode(domain.NodeKindTransform, h.World())
	b, _ := h.CreateNode(domain.NodeKindTransform, h.World())
	c, _ := h.CreateNode(domain.NodeKindTransform, h.World())

	h.Select([]domain.Handle{a, b}, domain.SelectReplace)
	assert.Equal(t, []domain.Handle{a, b}, h.Selected())

	h.Select([]domain.Handle{c, a}, domain.SelectAdd)
	assert.Equal(t, []domain.Handle{a, b, c}, h.Selected())

	h.Select([]domain.Handle{b}, domain.SelectRemove)
	assert.Equal(t, []domain.Handle{a, c}, h.Selected())

	h.Select([]domain.Handle{a, b}, domain.SelectToggle)
	assert.Equal(t, []domain.Handle{c, b}, h.Selected())

	require.NoError(t, h.DeleteNode(c))
	assert.Equal(t, []domain.Handle{b}, h.Selected(), "deleted nodes leave the selection")

	h.Select([]domain.Handle{c}, domain.SelectAdd)
	assert.Equal(t, []domain.Handle{b}, h.Selected(), "dead handles are ignored")
}
