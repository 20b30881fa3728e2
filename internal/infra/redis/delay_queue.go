package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"frame-worker/internal/domain/model"
	"frame-worker/internal/domain/ports/adapter"

	"github.com/go-redis/redis/v8"
)

// DelayQueueKey holds scheduled retries scored by their due unix time.
const DelayQueueKey = "retry:delayed"

var _ adapter.RetryScheduler = (*DelayQueue)(nil)

// DelayQueue is a durable holding area for retries. Entries survive a worker
// restart and are moved back to the job queue by the retry relay.
type DelayQueue struct {
	cli *redis.Client
	key string
}

func NewDelayQueue(c *Client) *DelayQueue {
	return &DelayQueue{cli: c.cli, key: DelayQueueKey}
}

type delayedEntry struct {
	model.JobMessage
	Attempt int `json:"attempt"`
}

func (q *DelayQueue) Schedule(ctx context.Context, d model.Delivery, dueAt time.Time) error {
	member, err := json.Marshal(delayedEntry{JobMessage: d.Message, Attempt: d.Attempt})
	if err != nil {
		return fmt.Errorf("marshal delayed entry: %w", err)
	}
	return q.cli.ZAdd(ctx, q.key, &redis.Z{Score: float64(dueAt.Unix()), Member: string(member)}).Err()
}

// Claim removes and returns up to batch entries due at or before now. Each
// member is claimed by its own ZREM, so concurrent relays never return the
// same entry twice.
func (q *DelayQueue) Claim(ctx context.Context, now time.Time, batch int64) ([]model.Delivery, error) {
	members, err := q.cli.ZRangeByScore(ctx, q.key, &redis.ZRangeBy{
		Min: "-inf", Max: strconv.FormatInt(now.Unix(), 10), Offset: 0, Count: batch,
	}).Result()
	if err != nil || len(members) == 0 {
		return nil, err
	}

	out := make([]model.Delivery, 0, len(members))
	for _, m := range members {
		removed, err := q.cli.ZRem(ctx, q.key, m).Result()
		if err != nil {
			return out, err
		}
		if removed == 0 {
			continue // another relay got it
		}
		var e delayedEntry
		if err := json.Unmarshal([]byte(m), &e); err != nil {
			continue // unreadable member, already removed
		}
		out = append(out, model.Delivery{Message: e.JobMessage, Attempt: e.Attempt})
	}
	return out, nil
}

// Len reports how many retries are waiting.
func (q *DelayQueue) Len(ctx context.Context) (int64, error) {
	return q.cli.ZCard(ctx, q.key).Result()
}
