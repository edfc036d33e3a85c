package queue

import (
	"context"
	"errors"
	"time"
)

var (
	ErrJobNotFound    = errors.New("job not found")
	ErrInvalidURL     = errors.New("invalid job url")
	ErrInvalidRetries = errors.New("max attempts must be at least 1")
	ErrQueueClosed    = errors.New("queue is closed")
)

// Store is the persistence backend behind the queue. The memory store backs
// tests and single-process runs; the Redis store survives restarts. The
// scheduling contract (priority order, FIFO ties, delay floors, stall
// recovery) is enforced by Queue identically over either.
type Store interface {
	// Put inserts or fully overwrites a job record.
	Put(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	Delete(ctx context.Context, id string) error

	// Claim atomically takes the highest-priority waiting job whose
	// DelayUntil has passed, ties broken by enqueue sequence, marking it
	// active with the heartbeat deadline armed in the same write so an
	// interrupted claim is always visible to the stall scan. Returns
	// (nil, nil) when nothing is eligible.
	Claim(ctx context.Context, now, heartbeatDeadline time.Time) (*Job, error)

	// Active returns all jobs currently marked active, for stall scans.
	Active(ctx context.Context) ([]*Job, error)

	ByStatus(ctx context.Context, status Status, limit int) ([]*Job, error)
	Counts(ctx context.Context) (Stats, error)

	// NextSeq returns a monotonically increasing enqueue sequence number.
	NextSeq(ctx context.Context) (uint64, error)

	// Retire moves a job into its terminal ring, evicting the oldest
	// terminal record beyond the retention bound.
	Retire(ctx context.Context, job *Job, keep int) error

	Close() error
}
