package memory

import (
	"context"
	"sync"

	"github.com/alanyoungcy/megalucky/internal/domain"
)

// SnapshotCache holds the last lottery snapshot in memory.
type SnapshotCache struct {
	mu   sync.RWMutex
	snap *domain.LotterySnapshot
}

// NewSnapshotCache creates an empty SnapshotCache.
func NewSnapshotCache() *SnapshotCache { return &SnapshotCache{} }

func (c *SnapshotCache) SetSnapshot(_ context.Context, snap domain.LotterySnapshot) error {
	c.mu.Lock()
	c.snap = &snap
	c.mu.Unlock()
	return nil
}

func (c *SnapshotCache) GetSnapshot(_ context.Context) (domain.LotterySnapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil {
		return domain.LotterySnapshot{}, domain.ErrNotFound
	}
	return *c.snap, nil
}

var _ domain.SnapshotCache = (*SnapshotCache)(nil)
