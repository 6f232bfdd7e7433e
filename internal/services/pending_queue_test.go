package services

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medidispatch/pkg/cache"
)

func newMiniredisCache(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return cache.NewRedisCacheFromClient(client), mr
}

func TestPendingQueues(t *testing.T) {
	queues := map[string]func(t *testing.T) PendingQueue{
		"memory": func(*testing.T) PendingQueue { return NewMemoryQueue() },
		"redis": func(t *testing.T) PendingQueue {
			c, _ := newMiniredisCache(t)
			return NewRedisQueue(c)
		},
	}

	for name, build := range queues {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			q := build(t)

			for _, id := range []string{"CALL-1", "CALL-2", "CALL-3", "CALL-1"} {
				require.NoError(t, q.Push(ctx, id))
			}
			n, err := q.Len(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(3), n)

			items, err := q.List(ctx)
			require.NoError(t, err)
			if name == "memory" {
				assert.Equal(t, []string{"CALL-1", "CALL-2", "CALL-3"}, items)
			} else {
				// Pushing an existing call moves it to the back.
				assert.Equal(t, []string{"CALL-2", "CALL-3", "CALL-1"}, items)
			}

			head, ok, err := q.Pop(ctx)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, items[0], head)

			require.NoError(t, q.Requeue(ctx, head))
			items, err = q.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, head, items[0])

			require.NoError(t, q.Remove(ctx, "CALL-3"))
			items, err = q.List(ctx)
			require.NoError(t, err)
			assert.NotContains(t, items, "CALL-3")
			assert.Len(t, items, 2)

			for range items {
				_, ok, err := q.Pop(ctx)
				require.NoError(t, err)
				require.True(t, ok)
			}
			_, ok, err = q.Pop(ctx)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}
