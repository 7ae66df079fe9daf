package availability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SlotCache stores computed grids per provider under a version that is
// bumped whenever anything affecting the provider's availability changes.
// Entries written under an old version are never read again.
type SlotCache interface {
	Version(ctx context.Context, providerID int64) (int64, error)
	Get(ctx context.Context, providerID, version int64, rangeKey string) ([]Slot, bool, error)
	Set(ctx context.Context, providerID, version int64, rangeKey string, slots []Slot) error
	Invalidate(ctx context.Context, providerID int64) error
}

type RedisSlotCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSlotCache(client *redis.Client, ttl time.Duration) *RedisSlotCache {
	return &RedisSlotCache{client: client, ttl: ttl}
}

func versionKey(providerID int64) string {
	return fmt.Sprintf("avail:v:%d", providerID)
}

func slotsKey(providerID, version int64, rangeKey string) string {
	return fmt.Sprintf("avail:%d:%d:%s", providerID, version, rangeKey)
}

func (c *RedisSlotCache) Version(ctx context.Context, providerID int64) (int64, error) {
	v, err := c.client.Get(ctx, versionKey(providerID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

func (c *RedisSlotCache) Get(ctx context.Context, providerID, version int64, rangeKey string) ([]Slot, bool, error) {
	raw, err := c.client.Get(ctx, slotsKey(providerID, version, rangeKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var slots []Slot
	if err := json.Unmarshal(raw, &slots); err != nil {
		return nil, false, err
	}
	return slots, true, nil
}

func (c *RedisSlotCache) Set(ctx context.Context, providerID, version int64, rangeKey string, slots []Slot) error {
	raw, err := json.Marshal(slots)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, slotsKey(providerID, version, rangeKey), raw, c.ttl).Err()
}

func (c *RedisSlotCache) Invalidate(ctx context.Context, providerID int64) error {
	return c.client.Incr(ctx, versionKey(providerID)).Err()
}
