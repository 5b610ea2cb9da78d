package redis

import (
	"context"
	"time"

	"graphql-chat-client/internal/domain/ports/repository"
	"graphql-chat-client/internal/infra/security"
)

const snapshotPrefix = "op_snapshot:"

// SnapshotStore persists last-known-good operation results keyed by the
// cache key, optionally sealed at rest. Entries expire after ttl so a client
// that has been away for long does not resurrect ancient state.
type SnapshotStore struct {
	client RedisClient
	ttl    time.Duration
	sealer *security.Sealer // nil means plaintext
}

var _ repository.SnapshotStore = (*SnapshotStore)(nil)

func NewSnapshotStore(client RedisClient, ttl time.Duration, sealer *security.Sealer) *SnapshotStore {
	return &SnapshotStore{client: client, ttl: ttl, sealer: sealer}
}

func (s *SnapshotStore) Store(ctx context.Context, key string, payload []byte) error {
	if s.sealer != nil {
		sealed, err := s.sealer.Seal(payload)
		if err != nil {
			return err
		}
		payload = sealed
	}
	return s.client.Set(ctx, snapshotPrefix+key, payload, s.ttl)
}

func (s *SnapshotStore) Load(ctx context.Context, key string) ([]byte, error) {
	payload, found, err := s.client.Get(ctx, snapshotPrefix+key)
	if err != nil || !found {
		return nil, err
	}
	if s.sealer != nil {
		return s.sealer.Open(payload)
	}
	return payload, nil
}

func (s *SnapshotStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, snapshotPrefix+key)
}
