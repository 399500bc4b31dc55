package redis

import (
	"context"
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/megalucky/internal/domain"
)

// testClient connects to MEGALUCKY_TEST_REDIS_ADDR or skips.
func testClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("MEGALUCKY_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("MEGALUCKY_TEST_REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := New(ctx, ClientConfig{Addr: addr})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestKeysArePrefixed(t *testing.T) {
	c := newClient(nil, "")
	assert.Equal(t, "megalucky", c.Prefix())
	assert.Equal(t, "megalucky:lock:purchase:0xabc:random:1", c.Key("lock", "purchase:0xabc:random:1"))
	assert.Equal(t, "megalucky:ratelimit:1.2.3.4", c.Key("ratelimit", "1.2.3.4"))
	assert.Contains(t, slidingWindowLua, "ZREMRANGEBYSCORE")
}

func TestKeyPrefixFromConfig(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		want   string
	}{
		{name: "custom", prefix: "staging", want: "staging:snapshot"},
		{name: "trailing colon trimmed", prefix: "staging:", want: "staging:snapshot"},
		{name: "blank falls back", prefix: "  ", want: "megalucky:snapshot"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, newClient(nil, tt.prefix).Key("snapshot"))
		})
	}
}

func TestComponentsUseClientPrefix(t *testing.T) {
	c := newClient(nil, "tenant-a")

	access := NewAccessStore(c)
	assert.Equal(t, "tenant-a:access:codes", access.codesKey)
	assert.Equal(t, "tenant-a:access:subjects", access.subjectsKey)
	assert.Equal(t, "tenant-a:snapshot", NewSnapshotCache(c, time.Minute).key)
	assert.Same(t, c, NewLockManager(c).keys)
	assert.Same(t, c, NewRateLimiter(c).keys)
	assert.Same(t, c, NewSignalBus(c, 0).keys)
}

func TestLockManagerRedis(t *testing.T) {
	c := testClient(t)
	lm := NewLockManager(c)
	ctx := context.Background()
	key := "test:" + uuid.NewString()

	unlock, err := lm.Acquire(ctx, key, 10*time.Second)
	require.NoError(t, err)
	_, err = lm.Acquire(ctx, key, 10*time.Second)
	require.ErrorIs(t, err, domain.ErrLockHeld)

	unlock()
	unlock()
	again, err := lm.Acquire(ctx, key, 10*time.Second)
	require.NoError(t, err)
	again()
}

func TestRateLimiterRedis(t *testing.T) {
	c := testClient(t)
	rl := NewRateLimiter(c)
	ctx := context.Background()
	key := "test:" + uuid.NewString()

	for i := 0; i < 2; i++ {
		ok, err := rl.Allow(ctx, key, 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := rl.Allow(ctx, key, 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSnapshotCacheRedis(t *testing.T) {
	c := testClient(t)
	sc := NewSnapshotCache(c, time.Minute)
	ctx := context.Background()

	winning := domain.Ticket{1, 2, 3, 4, 5, 6}
	want := domain.LotterySnapshot{
		LotteryID:      big.NewInt(5),
		State:          domain.StateClosed,
		DrawTime:       big.NewInt(1_700_000_000),
		TicketPrice:    domain.TicketPrice{Raw: big.NewInt(1_000_000_000_000_000_000), Formatted: "1"},
		TotalPrizes:    "250",
		WinningNumbers: &winning,
	}
	require.NoError(t, sc.SetSnapshot(ctx, want))

	got, err := sc.GetSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, want.TicketPrice.Raw.Cmp(got.TicketPrice.Raw))
	assert.Equal(t, *want.WinningNumbers, *got.WinningNumbers)
}

func TestSignalBusStreamRedis(t *testing.T) {
	c := testClient(t)
	bus := NewSignalBus(c, 100)
	ctx := context.Background()
	stream := "test:" + uuid.NewString()

	require.NoError(t, bus.StreamAppend(ctx, stream, []byte(`{"id":"a"}`)))
	require.NoError(t, bus.StreamAppend(ctx, stream, []byte(`{"id":"b"}`)))

	msgs, err := bus.StreamRead(ctx, stream, "0", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, []byte(`{"id":"b"}`), msgs[1].Payload)

	_ = c.Underlying().Del(ctx, c.Key(stream)).Err()
}
