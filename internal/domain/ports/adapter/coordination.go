package adapter

import (
	"context"
	"time"
)

// DedupGate remembers which deliveries were already observed.
type DedupGate interface {
	// MarkIfFirst returns true only for the call that created the marker.
	MarkIfFirst(ctx context.Context, jobID string, attempt int) (bool, error)
	// Forget drops the marker so a requeued delivery is processed again.
	Forget(ctx context.Context, jobID string, attempt int) error
}

// Lock is an owned advisory lock handle.
type Lock struct {
	Key   string
	Token string
}

// Locker hands out time-bounded advisory locks scoped to a job.
type Locker interface {
	// TryAcquire returns (nil, nil) when the lock is held by someone else.
	TryAcquire(ctx context.Context, jobID string, ttl time.Duration) (*Lock, error)
	// Release is idempotent and never fails the caller.
	Release(ctx context.Context, lock *Lock)
}
