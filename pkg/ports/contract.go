package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/proxyshape/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSnapshotStoreContract runs a suite of tests to verify that a SnapshotStore implementation
// adheres to the defined interface contract.
func RunSnapshotStoreContract(t *testing.T, store SnapshotStore) {
	ctx := context.Background()
	proxyID := "contract-test-proxy-" + time.Now().Format("20060102150405")

	newSnap := func(id string) *domain.Snapshot {
		return &domain.Snapshot{
			ProxyID:   id,
			Requested: []domain.Path{"/world/geo"},
			Subtrees:  []domain.Path{"/world/rig"},
			Selected:  []domain.Path{"/world/geo/mesh", "/world/cam"},
			SavedAt:   time.Now().UTC().Truncate(time.Second),
		}
	}

	t.Run("Save and Load", func(t *testing.T) {
		snap := newSnap(proxyID)

		err := store.Save(ctx, proxyID, snap)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, proxyID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, snap.ProxyID, loaded.ProxyID)
		assert.Equal(t, snap.Requested, loaded.Requested)
		assert.Equal(t, snap.Subtrees, loaded.Subtrees)
		assert.ElementsMatch(t, snap.Selected, loaded.Selected)
		assert.True(t, snap.SavedAt.Equal(loaded.SavedAt))
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+proxyID)
		assert.ErrorIs(t, err, domain.ErrSnapshotNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, proxyID, newSnap(proxyID))
		require.NoError(t, err)

		err = store.Delete(ctx, proxyID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, proxyID)
		assert.ErrorIs(t, err, domain.ErrSnapshotNotFound, "Load after Delete should return ErrSnapshotNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := proxyID + "-1"
		id2 := proxyID + "-2"
		_ = store.Save(ctx, id1, newSnap(id1))
		_ = store.Save(ctx, id2, newSnap(id2))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, id1)
		assert.Contains(t, ids, id2)
	})
}
