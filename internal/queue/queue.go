package queue

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/outfitly/stylescout/internal/models"
)

// PriorityUrgent is the tier used by EnqueuePriority. It sits above anything
// callers hand out through the normal path, so urgent jobs always dequeue
// first regardless of arrival order.
const PriorityUrgent = 1_000_000

type Options struct {
	BaseDelay        time.Duration
	MaxDelay         time.Duration
	HeartbeatTimeout time.Duration
	MaxStalledCount  int
	KeepCompleted    int
	KeepFailed       int
	StallScanEvery   time.Duration
}

func DefaultOptions() Options {
	return Options{
		BaseDelay:        5 * time.Second,
		MaxDelay:         5 * time.Minute,
		HeartbeatTimeout: 2 * time.Minute,
		MaxStalledCount:  2,
		KeepCompleted:    50,
		KeepFailed:       20,
		StallScanEvery:   30 * time.Second,
	}
}

// Queue owns the scrape-job lifecycle: admission, priority/delay scheduling,
// retry backoff, stall recovery and bounded terminal retention. All state
// lives in the Store; Queue itself is stateless apart from configuration.
type Queue struct {
	store  Store
	opts   Options
	logger *slog.Logger
}

func New(store Store, opts Options, logger *slog.Logger) *Queue {
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultOptions().BaseDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = DefaultOptions().MaxDelay
	}
	if opts.HeartbeatTimeout <= 0 {
		opts.HeartbeatTimeout = DefaultOptions().HeartbeatTimeout
	}
	if opts.MaxStalledCount <= 0 {
		opts.MaxStalledCount = DefaultOptions().MaxStalledCount
	}
	if opts.StallScanEvery <= 0 {
		opts.StallScanEvery = DefaultOptions().StallScanEvery
	}
	return &Queue{
		store:  store,
		opts:   opts,
		logger: logger.With("component", "queue"),
	}
}

// Enqueue validates and admits a single job, returning its id.
func (q *Queue) Enqueue(ctx context.Context, job *Job) (string, error) {
	if err := q.admit(ctx, job); err != nil {
		return "", err
	}
	if err := q.store.Put(ctx, job); err != nil {
		return "", err
	}
	q.logger.Debug("job enqueued", "job_id", job.ID, "url", job.URL, "brand", job.Brand, "priority", job.Priority)
	return job.ID, nil
}

// BulkError reports a single rejected item from EnqueueBulk.
type BulkError struct {
	Index int    `json:"index"`
	URL   string `json:"url"`
	Err   string `json:"error"`
}

// EnqueueBulk admits each job independently; one invalid job never blocks
// the rest.
func (q *Queue) EnqueueBulk(ctx context.Context, jobs []*Job) ([]string, []BulkError) {
	var ids []string
	var errs []BulkError
	for i, job := range jobs {
		id, err := q.Enqueue(ctx, job)
		if err != nil {
			errs = append(errs, BulkError{Index: i, URL: job.URL, Err: err.Error()})
			continue
		}
		ids = append(ids, id)
	}
	return ids, errs
}

// EnqueuePriority admits a job into the urgent tier, ahead of every
// normally-enqueued job.
func (q *Queue) EnqueuePriority(ctx context.Context, job *Job) (string, error) {
	if job.Priority < PriorityUrgent {
		job.Priority = PriorityUrgent
	}
	return q.Enqueue(ctx, job)
}

func (q *Queue) admit(ctx context.Context, job *Job) error {
	if job.MaxAttempts < 1 {
		return ErrInvalidRetries
	}
	u, err := url.Parse(job.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: %q", ErrInvalidURL, job.URL)
	}
	// PriorityUrgent is the ceiling: it keeps the urgent tier unbeatable and
	// keeps redis ready-set scores integer-exact.
	if job.Priority < 0 {
		job.Priority = 0
	}
	if job.Priority > PriorityUrgent {
		job.Priority = PriorityUrgent
	}
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Brand == "" {
		job.Brand = "generic"
	}
	job.Brand = strings.ToLower(job.Brand)
	job.Status = StatusWaiting
	job.EnqueuedAt = time.Now()
	seq, err := q.store.NextSeq(ctx)
	if err != nil {
		return err
	}
	job.Seq = seq
	return nil
}

// Dequeue claims the next eligible job for workerID, or returns nil when
// none is ready. Claiming records the worker and arms the heartbeat deadline
// used for stall detection.
func (q *Queue) Dequeue(ctx context.Context, workerID string) (*Job, error) {
	now := time.Now()
	if err := q.recoverStalled(ctx, now); err != nil {
		q.logger.Error("stall recovery failed", "error", err)
	}
	job, err := q.store.Claim(ctx, now, now.Add(q.opts.HeartbeatTimeout))
	if err != nil || job == nil {
		return nil, err
	}
	job.WorkerID = workerID
	job.Stage = StageInitializing
	if err := q.store.Put(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Complete records a successful result. Idempotent: completing an already
// terminal job is a no-op.
func (q *Queue) Complete(ctx context.Context, jobID string, result *models.ScrapedProduct) error {
	job, err := q.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.terminal() {
		return nil
	}
	job.Status = StatusCompleted
	job.Stage = ""
	job.WorkerID = ""
	job.Result = result
	now := time.Now()
	job.CompletedAt = &now
	return q.store.Retire(ctx, job, q.opts.KeepCompleted)
}

// Fail records a recoverable failure. The job re-enters the waiting state
// under exponential backoff until its attempt budget runs out, then lands in
// the failed ring with the last error retained.
func (q *Queue) Fail(ctx context.Context, jobID string, jobErr error) error {
	return q.fail(ctx, jobID, jobErr, false)
}

// FailPermanent terminally fails a job regardless of remaining attempts.
// Used for data-quality rejections, where retrying cannot change the page.
func (q *Queue) FailPermanent(ctx context.Context, jobID string, jobErr error) error {
	return q.fail(ctx, jobID, jobErr, true)
}

func (q *Queue) fail(ctx context.Context, jobID string, jobErr error, permanent bool) error {
	job, err := q.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.terminal() {
		return nil
	}
	job.AttemptCount++
	if jobErr != nil {
		job.LastError = jobErr.Error()
	}
	job.WorkerID = ""
	job.Stage = ""

	if permanent || job.AttemptCount >= job.MaxAttempts {
		job.Status = StatusFailed
		now := time.Now()
		job.CompletedAt = &now
		q.logger.Warn("job failed terminally",
			"job_id", job.ID, "attempts", job.AttemptCount, "error", job.LastError)
		return q.store.Retire(ctx, job, q.opts.KeepFailed)
	}

	job.Status = StatusWaiting
	job.DelayUntil = time.Now().Add(q.backoff(job.AttemptCount))
	q.logger.Info("job requeued with backoff",
		"job_id", job.ID, "attempt", job.AttemptCount, "delay_until", job.DelayUntil)
	return q.store.Put(ctx, job)
}

// backoff computes min(baseDelay * 2^attempt, maxDelay) plus uniform jitter
// in [0, baseDelay).
func (q *Queue) backoff(attempt int) time.Duration {
	d := time.Duration(float64(q.opts.BaseDelay) * math.Pow(2, float64(attempt)))
	if d > q.opts.MaxDelay || d <= 0 {
		d = q.opts.MaxDelay
	}
	return d + time.Duration(rand.Int63n(int64(q.opts.BaseDelay)))
}

// UpdateProgress records the stage a worker is in and extends the heartbeat
// deadline; a worker that keeps reporting progress is not stalled.
func (q *Queue) UpdateProgress(ctx context.Context, jobID, stage string) error {
	job, err := q.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != StatusActive {
		return nil
	}
	job.Stage = stage
	job.HeartbeatDeadline = time.Now().Add(q.opts.HeartbeatTimeout)
	return q.store.Put(ctx, job)
}

// Retry forces a failed job back into the waiting state with a fresh attempt
// budget.
func (q *Queue) Retry(ctx context.Context, jobID string) error {
	job, err := q.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != StatusFailed {
		return fmt.Errorf("job %s is %s, only failed jobs can be retried", jobID, job.Status)
	}
	job.Status = StatusWaiting
	job.AttemptCount = 0
	job.StalledCount = 0
	job.DelayUntil = time.Time{}
	job.LastError = ""
	job.CompletedAt = nil
	seq, err := q.store.NextSeq(ctx)
	if err != nil {
		return err
	}
	job.Seq = seq
	return q.store.Put(ctx, job)
}

func (q *Queue) Remove(ctx context.Context, jobID string) error {
	return q.store.Delete(ctx, jobID)
}

func (q *Queue) Get(ctx context.Context, jobID string) (*Job, error) {
	return q.store.Get(ctx, jobID)
}

func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	return q.store.Counts(ctx)
}

func (q *Queue) GetByStatus(ctx context.Context, status Status, limit int) ([]Summary, error) {
	jobs, err := q.store.ByStatus(ctx, status, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, job.summary())
	}
	return out, nil
}

// recoverStalled returns active jobs whose heartbeat deadline has passed to
// the waiting state, so a crashed worker cannot silently lose a job. A job
// stalled more than MaxStalledCount times is force-failed.
func (q *Queue) recoverStalled(ctx context.Context, now time.Time) error {
	active, err := q.store.Active(ctx)
	if err != nil {
		return err
	}
	for _, job := range active {
		if job.terminal() {
			// A claim race can leave a terminal job behind in the active
			// index; rewriting the record re-homes it.
			if err := q.store.Put(ctx, job); err != nil {
				return err
			}
			continue
		}
		// A zero deadline means the claim was interrupted before the worker
		// assignment landed; treat it as already expired.
		if job.HeartbeatDeadline.After(now) {
			continue
		}
		job.StalledCount++
		job.AttemptCount++
		job.WorkerID = ""
		job.Stage = ""
		if job.StalledCount > q.opts.MaxStalledCount || job.AttemptCount >= job.MaxAttempts {
			job.Status = StatusFailed
			job.LastError = "job stalled: worker stopped reporting"
			done := now
			job.CompletedAt = &done
			q.logger.Warn("stalled job force-failed", "job_id", job.ID, "stalls", job.StalledCount)
			if err := q.store.Retire(ctx, job, q.opts.KeepFailed); err != nil {
				return err
			}
			continue
		}
		job.Status = StatusWaiting
		job.DelayUntil = time.Time{}
		job.HeartbeatDeadline = time.Time{}
		q.logger.Warn("stalled job recovered", "job_id", job.ID, "stalls", job.StalledCount)
		if err := q.store.Put(ctx, job); err != nil {
			return err
		}
	}
	return nil
}

// Start runs the periodic stall scan until ctx is cancelled. Dequeue also
// scans lazily, so Start is belt-and-braces for quiet periods.
func (q *Queue) Start(ctx context.Context) {
	ticker := time.NewTicker(q.opts.StallScanEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := q.recoverStalled(ctx, time.Now()); err != nil {
				q.logger.Error("stall scan failed", "error", err)
			}
		}
	}
}

func (q *Queue) Close() error {
	return q.store.Close()
}
