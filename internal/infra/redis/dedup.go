package redis

import (
	"context"
	"fmt"
	"time"

	"frame-worker/internal/domain"
	"frame-worker/internal/domain/ports/adapter"
	"frame-worker/internal/infra/metrics"

	"github.com/go-redis/redis/v8"
)

// DefaultDedupTTL is how long a delivery is remembered.
const DefaultDedupTTL = time.Hour

var _ adapter.DedupGate = (*DedupGate)(nil)

type DedupGate struct {
	cli *redis.Client
	ttl time.Duration
}

func NewDedupGate(c *Client, ttl time.Duration) *DedupGate {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &DedupGate{cli: c.cli, ttl: ttl}
}

// DedupKey scopes the marker to one delivery attempt of a job.
func DedupKey(jobID string, attempt int) string {
	return fmt.Sprintf("processed:%s:%d", jobID, attempt)
}

// MarkIfFirst is a single atomic SET NX EX, so of any number of concurrent
// callers exactly one observes true.
func (g *DedupGate) MarkIfFirst(ctx context.Context, jobID string, attempt int) (bool, error) {
	ok, err := g.cli.SetNX(ctx, DedupKey(jobID, attempt), 1, g.ttl).Result()
	if err != nil {
		metrics.IncCoordination("dedup", "error")
		return false, fmt.Errorf("%w: dedup %s: %v", domain.ErrCoordinationUnavailable, jobID, err)
	}
	if !ok {
		metrics.IncCoordination("dedup", "duplicate")
		return false, nil
	}
	metrics.IncCoordination("dedup", "first")
	return true, nil
}

func (g *DedupGate) Forget(ctx context.Context, jobID string, attempt int) error {
	if err := g.cli.Del(ctx, DedupKey(jobID, attempt)).Err(); err != nil {
		return fmt.Errorf("%w: forget %s: %v", domain.ErrCoordinationUnavailable, jobID, err)
	}
	return nil
}
