// Package metadata stores small key/value settings of the local store,
// such as the per-user pull watermark.
package metadata

import (
	"context"
)

type Repository interface {
	// Get returns (nil, nil) when key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)

	// GetInt64 returns 0 when key is absent.
	GetInt64(ctx context.Context, key string) (int64, error)
	SetInt64(ctx context.Context, key string, v int64) error
}
