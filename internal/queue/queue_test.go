package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outfitly/stylescout/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestQueue(t *testing.T, opts Options) *Queue {
	t.Helper()
	return New(NewMemoryStore(), opts, testLogger())
}

func testJob(url string) *Job {
	return &Job{URL: url, Brand: "generic", MaxAttempts: 3}
}

func TestEnqueueValidation(t *testing.T) {
	q := newTestQueue(t, DefaultOptions())
	ctx := context.Background()

	tests := []struct {
		name    string
		job     *Job
		wantErr error
	}{
		{
			name:    "valid job",
			job:     &Job{URL: "https://x.test/products/a", MaxAttempts: 3},
			wantErr: nil,
		},
		{
			name:    "zero max attempts",
			job:     &Job{URL: "https://x.test/products/a", MaxAttempts: 0},
			wantErr: ErrInvalidRetries,
		},
		{
			name:    "malformed url",
			job:     &Job{URL: "not a url", MaxAttempts: 3},
			wantErr: ErrInvalidURL,
		},
		{
			name:    "non-http scheme",
			job:     &Job{URL: "ftp://x.test/a", MaxAttempts: 3},
			wantErr: ErrInvalidURL,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := q.Enqueue(ctx, tt.job)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, id)
		})
	}
}

func TestDequeueFIFOWithinPriority(t *testing.T) {
	q := newTestQueue(t, DefaultOptions())
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := q.Enqueue(ctx, testJob(fmt.Sprintf("https://x.test/products/item-%d", i)))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	for i := 0; i < 3; i++ {
		job, err := q.Dequeue(ctx, "worker-1")
		require.NoError(t, err)
		require.NotNil(t, job)
		assert.Equal(t, ids[i], job.ID, "dequeue order must be FIFO")
		assert.Equal(t, StatusActive, job.Status)
		assert.Equal(t, "worker-1", job.WorkerID)
	}

	job, err := q.Dequeue(ctx, "worker-1")
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestDequeuePriorityOrder(t *testing.T) {
	q := newTestQueue(t, DefaultOptions())
	ctx := context.Background()

	// random enqueue order must not affect dequeue order
	priorities := []int{3, 1, 4, 1, 5, 9, 2, 6}
	for _, i := range rand.Perm(len(priorities)) {
		job := testJob(fmt.Sprintf("https://x.test/products/p-%d", i))
		job.Priority = priorities[i]
		_, err := q.Enqueue(ctx, job)
		require.NoError(t, err)
	}

	var got []int
	for {
		job, err := q.Dequeue(ctx, "w")
		require.NoError(t, err)
		if job == nil {
			break
		}
		got = append(got, job.Priority)
	}

	require.Len(t, got, len(priorities))
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1], got[i], "higher priority must dequeue first")
	}
}

func TestEnqueuePriorityBeatsEarlierJobs(t *testing.T) {
	q := newTestQueue(t, DefaultOptions())
	ctx := context.Background()

	_, err := q.Enqueue(ctx, testJob("https://x.test/products/first"))
	require.NoError(t, err)

	urgent := testJob("https://x.test/products/urgent")
	urgentID, err := q.EnqueuePriority(ctx, urgent)
	require.NoError(t, err)

	job, err := q.Dequeue(ctx, "w")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, urgentID, job.ID)
}

func TestDequeueRespectsDelayFloor(t *testing.T) {
	q := newTestQueue(t, DefaultOptions())
	ctx := context.Background()

	job := testJob("https://x.test/products/delayed")
	job.DelayUntil = time.Now().Add(time.Hour)
	_, err := q.Enqueue(ctx, job)
	require.NoError(t, err)

	got, err := q.Dequeue(ctx, "w")
	require.NoError(t, err)
	assert.Nil(t, got, "delayed job must not dequeue before its floor")

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Delayed)
	assert.Equal(t, 0, stats.Waiting)
}

func TestFailRetriesUntilBudgetExhausted(t *testing.T) {
	opts := DefaultOptions()
	opts.BaseDelay = time.Millisecond
	opts.MaxDelay = 2 * time.Millisecond
	q := newTestQueue(t, opts)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, testJob("https://x.test/products/flaky"))
	require.NoError(t, err)

	for attempt := 1; attempt <= 3; attempt++ {
		var job *Job
		require.Eventually(t, func() bool {
			var derr error
			job, derr = q.Dequeue(ctx, "w")
			require.NoError(t, derr)
			return job != nil
		}, time.Second, time.Millisecond, "attempt %d should become ready", attempt)

		require.NoError(t, q.Fail(ctx, job.ID, errors.New("connection reset")))
	}

	final, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, final.Status)
	assert.Equal(t, 3, final.AttemptCount)
	assert.Contains(t, final.LastError, "connection reset")

	// budget exhausted: nothing left to dequeue
	job, err := q.Dequeue(ctx, "w")
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestFailComputesBackoffDelay(t *testing.T) {
	opts := DefaultOptions()
	opts.BaseDelay = time.Minute
	q := newTestQueue(t, opts)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, testJob("https://x.test/products/backoff"))
	require.NoError(t, err)

	job, err := q.Dequeue(ctx, "w")
	require.NoError(t, err)
	require.NotNil(t, job)
	require.NoError(t, q.Fail(ctx, id, errors.New("timeout")))

	requeued, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusWaiting, requeued.Status)
	assert.Equal(t, 1, requeued.AttemptCount)
	// baseDelay*2^1 <= delay <= baseDelay*2^1 + jitter(baseDelay)
	minDelay := time.Now().Add(2*time.Minute - 5*time.Second)
	maxDelay := time.Now().Add(3*time.Minute + 5*time.Second)
	assert.True(t, requeued.DelayUntil.After(minDelay), "delay %v too short", requeued.DelayUntil)
	assert.True(t, requeued.DelayUntil.Before(maxDelay), "delay %v too long", requeued.DelayUntil)
}

func TestFailPermanentSkipsRemainingAttempts(t *testing.T) {
	q := newTestQueue(t, DefaultOptions())
	ctx := context.Background()

	id, err := q.Enqueue(ctx, testJob("https://x.test/products/rejected"))
	require.NoError(t, err)
	_, err = q.Dequeue(ctx, "w")
	require.NoError(t, err)

	require.NoError(t, q.FailPermanent(ctx, id, errors.New("product rejected: empty name")))

	final, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, final.Status)
	assert.Equal(t, 1, final.AttemptCount)
}

func TestCompleteIsIdempotent(t *testing.T) {
	q := newTestQueue(t, DefaultOptions())
	ctx := context.Background()

	id, err := q.Enqueue(ctx, testJob("https://x.test/products/done"))
	require.NoError(t, err)
	_, err = q.Dequeue(ctx, "w")
	require.NoError(t, err)

	product := &models.ScrapedProduct{Name: "Linen Shirt", BasePrice: 6800}
	require.NoError(t, q.Complete(ctx, id, product))
	// second completion and a late failure are both no-ops
	require.NoError(t, q.Complete(ctx, id, nil))
	require.NoError(t, q.Fail(ctx, id, errors.New("late error")))

	final, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, final.Status)
	require.NotNil(t, final.Result)
	assert.Equal(t, "Linen Shirt", final.Result.Name)
}

func TestEnqueueBulkPartialSuccess(t *testing.T) {
	q := newTestQueue(t, DefaultOptions())
	ctx := context.Background()

	jobs := make([]*Job, 10)
	for i := range jobs {
		jobs[i] = testJob(fmt.Sprintf("https://x.test/products/bulk-%d", i))
	}
	jobs[4].URL = "::not-a-url::"

	ids, errs := q.EnqueueBulk(ctx, jobs)
	assert.Len(t, ids, 9)
	require.Len(t, errs, 1)
	assert.Equal(t, 4, errs[0].Index)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 9, stats.Waiting)
}

func TestStalledJobIsRecovered(t *testing.T) {
	opts := DefaultOptions()
	opts.HeartbeatTimeout = 10 * time.Millisecond
	q := newTestQueue(t, opts)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, testJob("https://x.test/products/stall"))
	require.NoError(t, err)

	job, err := q.Dequeue(ctx, "dying-worker")
	require.NoError(t, err)
	require.NotNil(t, job)

	// worker never reports back; next dequeue runs the lazy stall scan
	time.Sleep(20 * time.Millisecond)
	recovered, err := q.Dequeue(ctx, "healthy-worker")
	require.NoError(t, err)
	require.NotNil(t, recovered, "stalled job must be recoverable")
	assert.Equal(t, id, recovered.ID)
	assert.Equal(t, 1, recovered.AttemptCount)
	assert.Equal(t, 1, recovered.StalledCount)
	assert.Equal(t, "healthy-worker", recovered.WorkerID)
}

func TestStalledJobForceFailedAfterLimit(t *testing.T) {
	opts := DefaultOptions()
	opts.HeartbeatTimeout = 5 * time.Millisecond
	opts.MaxStalledCount = 1
	q := newTestQueue(t, opts)
	ctx := context.Background()

	job := testJob("https://x.test/products/zombie")
	job.MaxAttempts = 10
	id, err := q.Enqueue(ctx, job)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		got, err := q.Dequeue(ctx, "w")
		require.NoError(t, err)
		if got == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	// one more scan to pick up the second stall
	_, err = q.Dequeue(ctx, "w")
	require.NoError(t, err)

	final, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, final.Status)
	assert.Contains(t, final.LastError, "stalled")
}

func TestRetryResetsFailedJob(t *testing.T) {
	q := newTestQueue(t, DefaultOptions())
	ctx := context.Background()

	job := testJob("https://x.test/products/retry")
	job.MaxAttempts = 1
	id, err := q.Enqueue(ctx, job)
	require.NoError(t, err)
	_, err = q.Dequeue(ctx, "w")
	require.NoError(t, err)
	require.NoError(t, q.Fail(ctx, id, errors.New("boom")))

	require.NoError(t, q.Retry(ctx, id))

	got, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusWaiting, got.Status)
	assert.Equal(t, 0, got.AttemptCount)
	assert.Empty(t, got.LastError)

	// retrying a non-failed job is an error
	assert.Error(t, q.Retry(ctx, id))
}

func TestTerminalRetentionBounded(t *testing.T) {
	opts := DefaultOptions()
	opts.KeepCompleted = 3
	q := newTestQueue(t, opts)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		id, err := q.Enqueue(ctx, testJob(fmt.Sprintf("https://x.test/products/r-%d", i)))
		require.NoError(t, err)
		_, err = q.Dequeue(ctx, "w")
		require.NoError(t, err)
		require.NoError(t, q.Complete(ctx, id, nil))
	}

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Completed, "completed ring must stay bounded")
}

func TestEnqueueClampsPriority(t *testing.T) {
	q := newTestQueue(t, DefaultOptions())
	ctx := context.Background()

	tests := []struct {
		name     string
		priority int
		want     int
	}{
		{name: "above urgent tier", priority: 5_000_000, want: PriorityUrgent},
		{name: "negative", priority: -7, want: 0},
		{name: "in range", priority: 42, want: 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := testJob("https://x.test/products/clamp")
			job.Priority = tt.priority
			id, err := q.Enqueue(ctx, job)
			require.NoError(t, err)

			stored, err := q.Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, tt.want, stored.Priority)
		})
	}
}

func TestClaimArmsHeartbeatDeadline(t *testing.T) {
	store := NewMemoryStore()
	q := New(store, DefaultOptions(), testLogger())
	ctx := context.Background()

	id, err := q.Enqueue(ctx, testJob("https://x.test/products/armed"))
	require.NoError(t, err)

	now := time.Now()
	deadline := now.Add(90 * time.Second)
	job, err := store.Claim(ctx, now, deadline)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, id, job.ID)
	assert.True(t, job.HeartbeatDeadline.Equal(deadline))

	// the deadline must be persisted by the claim itself, not a later write
	stored, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, stored.Status)
	assert.True(t, stored.HeartbeatDeadline.Equal(deadline))
}

func TestDequeueRecoversInterruptedClaim(t *testing.T) {
	store := NewMemoryStore()
	q := New(store, DefaultOptions(), testLogger())
	ctx := context.Background()

	id, err := q.Enqueue(ctx, testJob("https://x.test/products/orphan"))
	require.NoError(t, err)

	// Simulate a claimer that crashed after marking the job active but
	// before any deadline or worker assignment landed.
	job, err := store.Get(ctx, id)
	require.NoError(t, err)
	job.Status = StatusActive
	job.HeartbeatDeadline = time.Time{}
	require.NoError(t, store.Put(ctx, job))

	recovered, err := q.Dequeue(ctx, "healthy-worker")
	require.NoError(t, err)
	require.NotNil(t, recovered, "a deadline-less active job must not be stranded")
	assert.Equal(t, id, recovered.ID)
	assert.Equal(t, 1, recovered.StalledCount)
	assert.Equal(t, "healthy-worker", recovered.WorkerID)
}

func TestAttemptCountNeverExceedsMaxAttempts(t *testing.T) {
	opts := DefaultOptions()
	opts.BaseDelay = time.Millisecond
	opts.MaxDelay = time.Millisecond
	q := newTestQueue(t, opts)
	ctx := context.Background()

	job := testJob("https://x.test/products/budget")
	job.MaxAttempts = 2
	id, err := q.Enqueue(ctx, job)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		var got *Job
		deadline := time.Now().Add(200 * time.Millisecond)
		for got == nil && time.Now().Before(deadline) {
			var derr error
			got, derr = q.Dequeue(ctx, "w")
			require.NoError(t, derr)
			if got == nil {
				time.Sleep(time.Millisecond)
			}
		}
		if got == nil {
			break
		}
		require.NoError(t, q.Fail(ctx, got.ID, errors.New("transient")))
		cur, err := q.Get(ctx, id)
		require.NoError(t, err)
		assert.LessOrEqual(t, cur.AttemptCount, cur.MaxAttempts)
	}

	final, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, final.Status)
	assert.Equal(t, 2, final.AttemptCount)
}
