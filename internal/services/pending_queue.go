package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"medidispatch/internal/utils"
	"medidispatch/pkg/cache"
)

// PendingQueue holds call IDs waiting for an operator, oldest first.
type PendingQueue interface {
	Push(ctx context.Context, callID string) error
	// Requeue puts a call back at the head of the queue.
	Requeue(ctx context.Context, callID string) error
	// Pop returns false when the queue is empty.
	Pop(ctx context.Context) (string, bool, error)
	Remove(ctx context.Context, callID string) error
	Len(ctx context.Context) (int64, error)
	List(ctx context.Context) ([]string, error)
}

type memoryQueue struct {
	mu    sync.Mutex
	items []string
}

func NewMemoryQueue() PendingQueue {
	return &memoryQueue{}
}

func (q *memoryQueue) Push(_ context.Context, callID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if utils.Contains(q.items, callID) {
		return nil
	}
	q.items = append(q.items, callID)
	return nil
}

func (q *memoryQueue) Requeue(_ context.Context, callID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append([]string{callID}, utils.RemoveFromSlice(q.items, callID)...)
	return nil
}

func (q *memoryQueue) Pop(_ context.Context) (string, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return "", false, nil
	}
	head := q.items[0]
	q.items = q.items[1:]
	return head, true, nil
}

func (q *memoryQueue) Remove(_ context.Context, callID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = utils.RemoveFromSlice(q.items, callID)
	return nil
}

func (q *memoryQueue) Len(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.items)), nil
}

func (q *memoryQueue) List(_ context.Context) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.items))
	copy(out, q.items)
	return out, nil
}

// redisQueue shares the queue across instances. Calls are pushed on the
// left and popped from the right.
type redisQueue struct {
	cache *cache.RedisCache
	key   string
}

func NewRedisQueue(c *cache.RedisCache) PendingQueue {
	return &redisQueue{cache: c, key: utils.CachePendingQueueKey}
}

func (q *redisQueue) Push(ctx context.Context, callID string) error {
	if _, err := q.cache.LRem(ctx, q.key, callID); err != nil {
		return fmt.Errorf("failed to dedupe pending call: %w", err)
	}
	if err := q.cache.LPush(ctx, q.key, callID); err != nil {
		return fmt.Errorf("failed to queue call: %w", err)
	}
	return nil
}

func (q *redisQueue) Requeue(ctx context.Context, callID string) error {
	if _, err := q.cache.LRem(ctx, q.key, callID); err != nil {
		return fmt.Errorf("failed to dedupe pending call: %w", err)
	}
	if err := q.cache.RPush(ctx, q.key, callID); err != nil {
		return fmt.Errorf("failed to requeue call: %w", err)
	}
	return nil
}

func (q *redisQueue) Pop(ctx context.Context) (string, bool, error) {
	v, err := q.cache.RPop(ctx, q.key)
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to pop pending call: %w", err)
	}
	return v, true, nil
}

func (q *redisQueue) Remove(ctx context.Context, callID string) error {
	if _, err := q.cache.LRem(ctx, q.key, callID); err != nil {
		return fmt.Errorf("failed to remove pending call: %w", err)
	}
	return nil
}

func (q *redisQueue) Len(ctx context.Context) (int64, error) {
	return q.cache.LLen(ctx, q.key)
}

// List returns the queue oldest first.
func (q *redisQueue) List(ctx context.Context) ([]string, error) {
	items, err := q.cache.LRange(ctx, q.key, 0, -1)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending calls: %w", err)
	}
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items, nil
}
