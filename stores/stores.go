package stores

import (
	"context"
	"errors"
	"sync"

	"github.com/oarkflow/rbac"
)

// ErrNoSnapshot is returned by Load when nothing has been saved yet.
var ErrNoSnapshot = errors.New("no snapshot saved")

// SnapshotStore persists the flat form of an rbac.Store. Save replaces
// whatever was stored before.
type SnapshotStore interface {
	Save(ctx context.Context, snap *rbac.Snapshot) error
	Load(ctx context.Context) (*rbac.Snapshot, error)
}

// Persist snapshots s into dst.
func Persist(ctx context.Context, s *rbac.Store, dst SnapshotStore) error {
	return dst.Save(ctx, s.Snapshot())
}

// Hydrate loads the latest snapshot from src into s.
func Hydrate(ctx context.Context, s *rbac.Store, src SnapshotStore) error {
	snap, err := src.Load(ctx)
	if err != nil {
		return err
	}
	return s.Restore(snap)
}

// MemorySnapshotStore keeps the last saved snapshot in memory for tests and demos
type MemorySnapshotStore struct {
	mu   sync.RWMutex
	snap *rbac.Snapshot
}

func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{}
}

func (m *MemorySnapshotStore) Save(ctx context.Context, snap *rbac.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = cloneSnapshot(snap)
	return nil
}

func (m *MemorySnapshotStore) Load(ctx context.Context) (*rbac.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.snap == nil {
		return nil, ErrNoSnapshot
	}
	return cloneSnapshot(m.snap), nil
}
