package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested key does not exist.
var ErrNotFound = errors.New("kv: key not found")

// Store is a best-effort key-value backing for process-local caches.
// Implementations must treat absence or corruption as a miss, never a hard
// failure of the pipeline.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}
