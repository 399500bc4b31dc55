package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/megalucky/internal/domain"
)

// SnapshotCache implements domain.SnapshotCache with a single JSON string
// key. A restarted process reads it to serve data before its first reload.
//
// Key schema:
//
//	<prefix>:snapshot - JSON LotterySnapshot, expires after ttl
type SnapshotCache struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

// NewSnapshotCache creates a SnapshotCache. ttl <= 0 keeps entries forever.
func NewSnapshotCache(c *Client, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{rdb: c.Underlying(), key: c.Key("snapshot"), ttl: ttl}
}

// SetSnapshot stores snap, replacing any previous snapshot.
func (sc *SnapshotCache) SetSnapshot(ctx context.Context, snap domain.LotterySnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot: %w", err)
	}
	ttl := sc.ttl
	if ttl < 0 {
		ttl = 0
	}
	if err := sc.rdb.Set(ctx, sc.key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set snapshot: %w", err)
	}
	return nil
}

// GetSnapshot returns the cached snapshot or domain.ErrNotFound.
func (sc *SnapshotCache) GetSnapshot(ctx context.Context) (domain.LotterySnapshot, error) {
	data, err := sc.rdb.Get(ctx, sc.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.LotterySnapshot{}, domain.ErrNotFound
		}
		return domain.LotterySnapshot{}, fmt.Errorf("redis: get snapshot: %w", err)
	}

	var snap domain.LotterySnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.LotterySnapshot{}, fmt.Errorf("redis: unmarshal snapshot: %w", err)
	}
	return snap, nil
}

var _ domain.SnapshotCache = (*SnapshotCache)(nil)
