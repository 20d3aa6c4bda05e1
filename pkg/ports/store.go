package ports

import (
	"context"

	"github.com/aretw0/proxyshape/pkg/domain"
)

// SnapshotStore persists proxy snapshots so demand state survives a restart.
type SnapshotStore interface {
	// Save persists the snapshot for a given proxy ID.
	Save(ctx context.Context, proxyID string, snap *domain.Snapshot) error

	// Load retrieves the snapshot for a given proxy ID.
	// Returns domain.ErrSnapshotNotFound if there is none.
	Load(ctx context.Context, proxyID string) (*domain.Snapshot, error)

	// Delete removes the snapshot for a given proxy ID.
	Delete(ctx context.Context, proxyID string) error

	// List returns the IDs of all stored snapshots.
	List(ctx context.Context) ([]string, error)
}
