package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/megalucky/internal/domain"
)

func TestLockManagerExclusive(t *testing.T) {
	lm := NewLockManager()
	ctx := context.Background()

	unlock, err := lm.Acquire(ctx, "purchase:0xabc:random:3", time.Minute)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, "purchase:0xabc:random:3", time.Minute)
	require.ErrorIs(t, err, domain.ErrLockHeld)

	other, err := lm.Acquire(ctx, "purchase:0xabc:random:4", time.Minute)
	require.NoError(t, err)
	other()

	unlock()
	unlock()
	again, err := lm.Acquire(ctx, "purchase:0xabc:random:3", time.Minute)
	require.NoError(t, err)
	again()
	assert.Equal(t, 0, lm.Held())
}

func TestLockManagerExpiry(t *testing.T) {
	lm := NewLockManager()
	now := time.Unix(1_700_000_000, 0)
	lm.now = func() time.Time { return now }

	stale, err := lm.Acquire(context.Background(), "k", time.Second)
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	fresh, err := lm.Acquire(context.Background(), "k", time.Second)
	require.NoError(t, err)

	// the expired holder must not release the new lease
	stale()
	_, err = lm.Acquire(context.Background(), "k", time.Second)
	require.ErrorIs(t, err, domain.ErrLockHeld)
	fresh()
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(time.Minute)
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "1.2.3.4", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, _ := rl.Allow(ctx, "1.2.3.4", 3, time.Minute)
	assert.False(t, ok)

	ok, _ = rl.Allow(ctx, "5.6.7.8", 3, time.Minute)
	assert.True(t, ok)

	now = now.Add(20 * time.Second)
	ok, _ = rl.Allow(ctx, "1.2.3.4", 3, time.Minute)
	assert.True(t, ok)
}

func TestSignalBusPublishSubscribe(t *testing.T) {
	bus := NewSignalBus(0)
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := bus.Subscribe(ctx, domain.ChannelPurchase)
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, domain.ChannelPurchase, []byte("a")))
	require.NoError(t, bus.Publish(ctx, domain.ChannelDraw, []byte("ignored")))

	select {
	case msg := <-ch:
		assert.Equal(t, []byte("a"), msg)
	case <-time.After(time.Second):
		t.Fatal("no message")
	}

	cancel()
	require.Eventually(t, func() bool {
		_, open := <-ch
		return !open
	}, time.Second, 10*time.Millisecond)
}

func TestSignalBusStreamTrimAndRead(t *testing.T) {
	bus := NewSignalBus(3)
	ctx := context.Background()
	for _, p := range []string{"1", "2", "3", "4"} {
		require.NoError(t, bus.StreamAppend(ctx, domain.StreamPurchases, []byte(p)))
	}

	msgs, err := bus.StreamRead(ctx, domain.StreamPurchases, "0", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, []byte("2"), msgs[0].Payload)

	rest, err := bus.StreamRead(ctx, domain.StreamPurchases, msgs[0].ID, 1)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, []byte("3"), rest[0].Payload)
}

func TestSnapshotCache(t *testing.T) {
	c := NewSnapshotCache()
	_, err := c.GetSnapshot(context.Background())
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, c.SetSnapshot(context.Background(), domain.LotterySnapshot{State: domain.StateOpen}))
	snap, err := c.GetSnapshot(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.IsOpen())
}

func TestPurchaseStore(t *testing.T) {
	s := NewPurchaseStore()
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)

	require.NoError(t, s.Insert(ctx, domain.PurchaseResult{ID: "a", Wallet: "0xAbC", CreatedAt: base}))
	require.NoError(t, s.Insert(ctx, domain.PurchaseResult{ID: "b", Wallet: "0xabc", CreatedAt: base.Add(time.Minute)}))
	require.NoError(t, s.Insert(ctx, domain.PurchaseResult{ID: "c", Wallet: "0xdef", CreatedAt: base}))
	require.ErrorIs(t, s.Insert(ctx, domain.PurchaseResult{ID: "a"}), domain.ErrAlreadyExists)

	got, err := s.GetByID(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "0xabc", got.Wallet)
	_, err = s.GetByID(ctx, "zz")
	require.ErrorIs(t, err, domain.ErrNotFound)

	list, err := s.ListByWallet(ctx, "0xABC", domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID)

	list, err = s.ListByWallet(ctx, "0xabc", domain.ListOpts{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "a", list[0].ID)
}

func TestAuditStore(t *testing.T) {
	s := NewAuditStore()
	ctx := context.Background()
	require.NoError(t, s.Log(ctx, "ticket_purchase", map[string]any{"count": 3}))
	require.NoError(t, s.Log(ctx, "access_redeemed", nil))

	entries, err := s.List(ctx, domain.ListOpts{Limit: 10})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "access_redeemed", entries[0].Event)
	assert.Equal(t, int64(1), entries[1].ID)
}

func TestAccessStore(t *testing.T) {
	s := NewAccessStore()
	ctx := context.Background()

	require.NoError(t, s.MarkUsed(ctx, "OMEGA", "session-1"))
	require.ErrorIs(t, s.MarkUsed(ctx, "omega", "session-2"), domain.ErrCodeUsed)

	codes, err := s.UsedCodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"omega"}, codes)

	ok, err := s.HasAccess(ctx, "session-1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = s.HasAccess(ctx, "session-2")
	assert.False(t, ok)
}
