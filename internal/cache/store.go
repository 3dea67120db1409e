package cache

import (
	"context"
	"time"
)

// Store is the fast key-value contract consumed by the ACL middleware and the
// menu tree resolver. Implementations must treat a missing key as (nil, false, nil).
type Store interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, keys ...string) error
}
