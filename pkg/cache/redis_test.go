package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisCacheFromClient(client), mr
}

func TestRedisCacheSetGet(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	type payload struct {
		Name string `json:"name"`
	}
	require.NoError(t, c.Set(ctx, "k", payload{Name: "unit-7"}, time.Minute))

	var got payload
	require.NoError(t, c.Get(ctx, "k", &got))
	assert.Equal(t, "unit-7", got.Name)

	err := c.Get(ctx, "missing", &got)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCacheIncrementSetsTTL(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	n, err := c.Increment(ctx, "seq", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = c.Increment(ctx, "seq", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, time.Hour, mr.TTL("seq"))
}

func TestRedisCacheListIsFIFO(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.LPush(ctx, "q", "a"))
	require.NoError(t, c.LPush(ctx, "q", "b"))

	size, err := c.LLen(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, int64(2), size)

	v, err := c.RPop(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, "a", v)

	v, err = c.RPop(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, "b", v)

	_, err = c.RPop(ctx, "q")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
