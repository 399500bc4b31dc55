package domain

import (
	"context"
	"time"
)

// SnapshotCache keeps the last good lottery snapshot so a fresh process can
// serve data before its first reload completes.
type SnapshotCache interface {
	SetSnapshot(ctx context.Context, snap LotterySnapshot) error
	GetSnapshot(ctx context.Context) (LotterySnapshot, error)
}

// RateLimiter provides rate limiting keyed by caller.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides mutual exclusion keyed by string. Acquire returns
// ErrLockHeld when another holder owns key.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// Signal bus channel names.
const (
	ChannelSnapshot = "lottery:snapshot"
	ChannelPurchase = "lottery:purchase"
	ChannelDraw     = "lottery:draw"
	StreamPurchases = "lottery:purchases"
)
