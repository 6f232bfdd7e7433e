package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"medidispatch/internal/utils"
	"medidispatch/pkg/cache"
	"medidispatch/pkg/logger"
)

// IDGenerator issues business identifiers of the form
// <PREFIX>-<epochMillis>-<4-digit-sequence>.
type IDGenerator interface {
	Next(ctx context.Context, prefix string) (string, error)
}

type sequenceCounter interface {
	Increment(ctx context.Context, key string, expiration time.Duration) (int64, error)
}

const (
	maxSequence      = 9999
	maxSequenceSpill = 1000
)

type idGenerator struct {
	counter sequenceCounter
	ttl     time.Duration
	now     func() time.Time
	logger  *logger.Logger

	mu    sync.Mutex
	local map[string]localSequence
}

type localSequence struct {
	millis int64
	seq    int64
}

// NewIDGenerator shares sequences across instances through Redis when a
// cache is given, and falls back to a process local counter otherwise or
// when Redis is unreachable.
func NewIDGenerator(redisCache *cache.RedisCache, ttl time.Duration, now func() time.Time, log *logger.Logger) IDGenerator {
	g := &idGenerator{
		ttl:    ttl,
		now:    now,
		logger: log.WithComponent("id_generator"),
		local:  make(map[string]localSequence),
	}
	if redisCache != nil {
		g.counter = redisCache
	}
	return g
}

func (g *idGenerator) Next(ctx context.Context, prefix string) (string, error) {
	if prefix == "" {
		return "", fmt.Errorf("id prefix is required")
	}
	millis := g.now().UnixMilli()

	if g.counter != nil {
		id, err := g.nextShared(ctx, prefix, millis)
		if err == nil {
			return id, nil
		}
		g.logger.WithError(err).Warn("Sequence counter unavailable, using local sequence")
	}

	return g.nextLocal(prefix, millis), nil
}

// nextShared moves on to the following millisecond's counter once the
// current one passes maxSequence, as the local sequence does.
func (g *idGenerator) nextShared(ctx context.Context, prefix string, millis int64) (string, error) {
	for spill := 0; spill < maxSequenceSpill; spill++ {
		key := fmt.Sprintf("%s%s:%d", utils.CacheSequencePrefix, prefix, millis)
		n, err := g.counter.Increment(ctx, key, g.ttl)
		if err != nil {
			return "", err
		}
		if n <= maxSequence {
			return formatID(prefix, millis, n), nil
		}
		millis++
	}
	return "", fmt.Errorf("sequence for %s exhausted through %d", prefix, millis)
}

func (g *idGenerator) nextLocal(prefix string, millis int64) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := g.local[prefix]
	switch {
	case millis > s.millis:
		s = localSequence{millis: millis, seq: 1}
	case s.seq >= maxSequence:
		// Sequence exhausted within one millisecond; borrow the next one.
		s = localSequence{millis: s.millis + 1, seq: 1}
	default:
		s.seq++
	}
	g.local[prefix] = s
	return formatID(prefix, s.millis, s.seq)
}

func formatID(prefix string, millis, seq int64) string {
	return fmt.Sprintf("%s-%d-%04d", prefix, millis, seq)
}
