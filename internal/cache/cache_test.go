package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilCacheIsNoop(t *testing.T) {
	var c *Cache
	ctx := context.Background()

	var dest int64
	hit, err := c.Get(ctx, BalanceKey("UALICE"), &dest)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.NoError(t, c.Set(ctx, BalanceKey("UALICE"), int64(10)))
	assert.NoError(t, c.InvalidateBalances(ctx, "UALICE", "UBOB"))
	assert.NoError(t, c.Ping(ctx))
	assert.NoError(t, c.Close())
}

func TestNewWithNilClient(t *testing.T) {
	assert.Nil(t, New(nil, time.Minute))
}

func TestBalanceKey(t *testing.T) {
	assert.Equal(t, "balance:user:UALICE", BalanceKey("UALICE"))
}

func TestUnreachableRedisReturnsErrors(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1", // nothing listens here
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	c := New(rdb, time.Minute)
	defer c.Close()
	ctx := context.Background()

	var dest int64
	hit, err := c.Get(ctx, BalanceKey("UALICE"), &dest)
	assert.Error(t, err)
	assert.False(t, hit)
	assert.Error(t, c.Set(ctx, BalanceKey("UALICE"), int64(1)))
	assert.Error(t, c.InvalidateBalances(ctx, "UALICE"))
}
