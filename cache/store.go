// Package cache provides the key/value stores used by the chart client.
package cache

import (
	"context"
	"time"
)

// Store is a TTL key/value store. A missing key is reported with ok=false
// and a nil error.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Pinger is implemented by stores that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}
