package repository

import "context"

// SnapshotStore persists last-known-good operation results so a restarted
// client can render stale data before the first network round-trip completes.
type SnapshotStore interface {
	Store(ctx context.Context, key string, payload []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
