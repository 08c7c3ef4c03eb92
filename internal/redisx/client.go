package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

func Exists(ctx context.Context, rdb *redis.Client, key string) (bool, error) {
	n, err := rdb.Exists(ctx, key).Result()
	return n > 0, err
}

// Deduper tracks already-handled ids in Redis. A nil *Deduper never reports a
// duplicate, so callers without Redis (memory mode) keep working.
type Deduper struct {
	R       *redis.Client
	Service string
}

func (d *Deduper) Seen(ctx context.Context, id string) bool {
	if d == nil || d.R == nil {
		return false
	}
	ok, _ := Exists(ctx, d.R, fmt.Sprintf(KeyDedup, d.Service, id))
	return ok
}

func (d *Deduper) Mark(ctx context.Context, id string) {
	if d == nil || d.R == nil {
		return
	}
	_ = d.R.Set(ctx, fmt.Sprintf(KeyDedup, d.Service, id), "1", TTLDedup).Err()
}

// ShipmentCache invalidates the GET /shipments/{id} read cache. A nil cache or
// client is a no-op.
type ShipmentCache struct {
	R *redis.Client
}

func (c *ShipmentCache) Invalidate(ctx context.Context, shipmentID string) {
	if c == nil || c.R == nil {
		return
	}
	_ = c.R.Del(ctx, fmt.Sprintf(KeyShipmentCache, shipmentID)).Err()
}
