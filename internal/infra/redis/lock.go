package redis

import (
	"context"
	"fmt"
	"time"

	"frame-worker/internal/domain"
	"frame-worker/internal/domain/ports/adapter"
	"frame-worker/internal/infra/metrics"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var _ adapter.Locker = (*Locker)(nil)

// Locker is a single-key advisory lock with an owner token and a TTL.
// There is no renewal: the TTL must outlast the slowest job.
type Locker struct {
	cli *redis.Client
	log *zerolog.Logger
}

func NewLocker(c *Client, logger *zerolog.Logger) *Locker {
	compLog := logger.With().Str("component", "RedisLocker").Logger()
	return &Locker{cli: c.cli, log: &compLog}
}

func LockKey(jobID string) string { return "lock:job:" + jobID }

// TryAcquire makes exactly one attempt and never waits for a holder.
func (l *Locker) TryAcquire(ctx context.Context, jobID string, ttl time.Duration) (*adapter.Lock, error) {
	key := LockKey(jobID)
	token := uuid.NewString()
	ok, err := l.cli.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		metrics.IncCoordination("lock", "error")
		return nil, fmt.Errorf("%w: acquire %s: %v", domain.ErrCoordinationUnavailable, key, err)
	}
	if !ok {
		metrics.IncCoordination("lock", "held")
		return nil, nil
	}
	metrics.IncCoordination("lock", "acquired")
	return &adapter.Lock{Key: key, Token: token}, nil
}

var luaUnlock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

// Release deletes the key only while it still carries our token, so a lock
// that expired and was taken by another worker is left alone.
func (l *Locker) Release(ctx context.Context, lock *adapter.Lock) {
	if lock == nil {
		return
	}
	n, err := luaUnlock.Run(ctx, l.cli, []string{lock.Key}, lock.Token).Int()
	if err != nil {
		l.log.Warn().Err(err).Str("key", lock.Key).Msg("lock release failed")
		return
	}
	if n == 0 {
		l.log.Debug().Str("key", lock.Key).Msg("lock already expired or owned by another worker")
	}
}
