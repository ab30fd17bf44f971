package state

import "context"

// Store is a flat key/value store for encoded snapshots. Get reports false
// when the key is absent.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}
