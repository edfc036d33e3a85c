package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outfitly/stylescout/internal/adapters"
	"github.com/outfitly/stylescout/internal/engine"
	"github.com/outfitly/stylescout/internal/models"
	"github.com/outfitly/stylescout/internal/normalize"
	"github.com/outfitly/stylescout/internal/queue"
	"github.com/outfitly/stylescout/internal/sink"
)

// stubCrawler returns canned outcomes per URL instead of driving a browser.
type stubCrawler struct {
	calls   atomic.Int64
	outcome func(url string) (*models.ScrapedProduct, error)
}

func (s *stubCrawler) FetchAndExtract(ctx context.Context, url string, adapter adapters.Adapter, progress engine.Progress) (*models.ScrapedProduct, error) {
	s.calls.Add(1)
	if progress != nil {
		progress(queue.StageNavigating)
		progress(queue.StageExtracting)
	}
	return s.outcome(url)
}

type poolFixture struct {
	queue *queue.Queue
	sink  *sink.MemorySink
	pool  *Pool
}

func newPoolFixture(t *testing.T, crawler Crawler) *poolFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	qopts := queue.DefaultOptions()
	qopts.BaseDelay = time.Millisecond
	qopts.MaxDelay = 2 * time.Millisecond
	q := queue.New(queue.NewMemoryStore(), qopts, logger)

	memSink := sink.NewMemorySink()
	pool := NewPool(q, crawler, adapters.NewRegistry(), memSink, NewMetrics(), Options{
		PollInterval:  5 * time.Millisecond,
		JobTimeout:    time.Second,
		ShutdownGrace: time.Second,
	}, logger)

	t.Cleanup(func() { pool.Stop(false) })
	return &poolFixture{queue: q, sink: memSink, pool: pool}
}

func enqueue(t *testing.T, q *queue.Queue, url string, maxAttempts int) string {
	t.Helper()
	id, err := q.Enqueue(context.Background(), &queue.Job{URL: url, MaxAttempts: maxAttempts})
	require.NoError(t, err)
	return id
}

func TestPoolProcessesJobToCompletion(t *testing.T) {
	crawler := &stubCrawler{outcome: func(url string) (*models.ScrapedProduct, error) {
		return &models.ScrapedProduct{Name: "Linen Shirt", BasePrice: 6800, URL: url}, nil
	}}
	f := newPoolFixture(t, crawler)
	id := enqueue(t, f.queue, "https://shop.test/products/shirt", 3)

	f.pool.Start(2)

	require.Eventually(t, func() bool {
		job, err := f.queue.Get(context.Background(), id)
		return err == nil && job.Status == queue.StatusCompleted
	}, 2*time.Second, 5*time.Millisecond)

	products := f.sink.Products()
	require.Len(t, products, 1)
	assert.Equal(t, "Linen Shirt", products[0].Name)

	stats := f.pool.Stats()
	assert.Equal(t, uint64(1), stats.Processed)
	assert.Equal(t, uint64(0), stats.Failed)
	assert.Equal(t, 1.0, stats.SuccessRate)
}

func TestPoolRetriesTransientErrorsUntilTerminal(t *testing.T) {
	crawler := &stubCrawler{outcome: func(url string) (*models.ScrapedProduct, error) {
		return nil, errors.New("navigation timeout")
	}}
	f := newPoolFixture(t, crawler)
	id := enqueue(t, f.queue, "https://shop.test/products/flaky", 3)

	f.pool.Start(1)

	require.Eventually(t, func() bool {
		job, err := f.queue.Get(context.Background(), id)
		return err == nil && job.Status == queue.StatusFailed
	}, 3*time.Second, 5*time.Millisecond)

	job, err := f.queue.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 3, job.AttemptCount, "full attempt budget spent on transient errors")
	assert.EqualValues(t, 3, crawler.calls.Load())

	failures := f.sink.Failures()
	require.Len(t, failures, 1, "one failure record once terminal, not one per attempt")
	assert.Equal(t, id, failures[0].JobID)
	assert.Contains(t, failures[0].LastErr, "navigation timeout")
}

func TestPoolRejectionFailsImmediately(t *testing.T) {
	crawler := &stubCrawler{outcome: func(url string) (*models.ScrapedProduct, error) {
		return nil, &normalize.RejectError{Reason: "empty product name"}
	}}
	f := newPoolFixture(t, crawler)
	id := enqueue(t, f.queue, "https://shop.test/products/bad-data", 5)

	f.pool.Start(1)

	require.Eventually(t, func() bool {
		job, err := f.queue.Get(context.Background(), id)
		return err == nil && job.Status == queue.StatusFailed
	}, 2*time.Second, 5*time.Millisecond)

	job, err := f.queue.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 1, job.AttemptCount, "rejection must not burn the retry budget")
	assert.EqualValues(t, 1, crawler.calls.Load())
	assert.Len(t, f.sink.Failures(), 1)
}

func TestPoolIsolatesPanics(t *testing.T) {
	var calls atomic.Int64
	crawler := &stubCrawler{outcome: func(url string) (*models.ScrapedProduct, error) {
		if calls.Add(1) == 1 {
			panic("selector exploded")
		}
		return &models.ScrapedProduct{Name: "Recovered", BasePrice: 100, URL: url}, nil
	}}
	f := newPoolFixture(t, crawler)
	id := enqueue(t, f.queue, "https://shop.test/products/panicky", 3)

	f.pool.Start(1)

	require.Eventually(t, func() bool {
		job, err := f.queue.Get(context.Background(), id)
		return err == nil && job.Status == queue.StatusCompleted
	}, 3*time.Second, 5*time.Millisecond, "panic becomes a retryable failure, second attempt succeeds")

	job, err := f.queue.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 1, job.AttemptCount)
	assert.Len(t, f.sink.Products(), 1)
}

// failingSink rejects the first n product writes.
type failingSink struct {
	*sink.MemorySink
	failuresLeft atomic.Int64
}

func (s *failingSink) StoreProduct(ctx context.Context, product *models.ScrapedProduct) error {
	if s.failuresLeft.Add(-1) >= 0 {
		return errors.New("connection refused")
	}
	return s.MemorySink.StoreProduct(ctx, product)
}

func TestPoolRetriesWhenSinkWriteFails(t *testing.T) {
	crawler := &stubCrawler{outcome: func(url string) (*models.ScrapedProduct, error) {
		return &models.ScrapedProduct{Name: "Persistent", BasePrice: 100, URL: url}, nil
	}}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	qopts := queue.DefaultOptions()
	qopts.BaseDelay = time.Millisecond
	qopts.MaxDelay = 2 * time.Millisecond
	q := queue.New(queue.NewMemoryStore(), qopts, logger)

	flaky := &failingSink{MemorySink: sink.NewMemorySink()}
	flaky.failuresLeft.Store(1)

	pool := NewPool(q, crawler, adapters.NewRegistry(), flaky, nil, Options{
		PollInterval: 5 * time.Millisecond,
		JobTimeout:   time.Second,
	}, logger)
	t.Cleanup(func() { pool.Stop(false) })

	id := enqueue(t, q, "https://shop.test/products/sink-flake", 3)
	pool.Start(1)

	require.Eventually(t, func() bool {
		job, err := q.Get(context.Background(), id)
		return err == nil && job.Status == queue.StatusCompleted
	}, 3*time.Second, 5*time.Millisecond, "delivery is at-least-once: sink failure retries the job")

	assert.Len(t, flaky.Products(), 1)
}

func TestPoolFailedCountsTerminalOutcomesOnly(t *testing.T) {
	var calls atomic.Int64
	crawler := &stubCrawler{outcome: func(url string) (*models.ScrapedProduct, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("navigation timeout")
		}
		return &models.ScrapedProduct{Name: "Second Try", BasePrice: 100, URL: url}, nil
	}}
	f := newPoolFixture(t, crawler)
	id := enqueue(t, f.queue, "https://shop.test/products/second-try", 3)

	f.pool.Start(1)

	require.Eventually(t, func() bool {
		job, err := f.queue.Get(context.Background(), id)
		return err == nil && job.Status == queue.StatusCompleted
	}, 3*time.Second, 5*time.Millisecond)

	// one failed attempt, but the job completed: the failure counters and
	// the success rate track jobs, not attempts
	stats := f.pool.Stats()
	assert.Equal(t, uint64(1), stats.Processed)
	assert.Equal(t, uint64(0), stats.Failed)
	assert.Equal(t, 1.0, stats.SuccessRate)
	assert.Equal(t, 0.0, testutil.ToFloat64(f.pool.metrics.FailedTotal))
	assert.Empty(t, f.sink.Failures(), "no failure record for a job that eventually completed")
}

func TestPoolStopHaltsClaiming(t *testing.T) {
	crawler := &stubCrawler{outcome: func(url string) (*models.ScrapedProduct, error) {
		return &models.ScrapedProduct{Name: "X", BasePrice: 1, URL: url}, nil
	}}
	f := newPoolFixture(t, crawler)

	f.pool.Start(2)
	f.pool.Stop(true)

	id := enqueue(t, f.queue, "https://shop.test/products/after-stop", 3)
	time.Sleep(50 * time.Millisecond)

	job, err := f.queue.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusWaiting, job.Status, "stopped pool must not claim new jobs")
}

func TestPoolStats(t *testing.T) {
	crawler := &stubCrawler{outcome: func(url string) (*models.ScrapedProduct, error) {
		return nil, &normalize.RejectError{Reason: "bad"}
	}}
	f := newPoolFixture(t, crawler)
	id := enqueue(t, f.queue, "https://shop.test/products/reject", 3)

	f.pool.Start(1)
	require.Eventually(t, func() bool {
		job, err := f.queue.Get(context.Background(), id)
		return err == nil && job.Status == queue.StatusFailed
	}, 2*time.Second, 5*time.Millisecond)

	stats := f.pool.Stats()
	assert.Equal(t, uint64(0), stats.Processed)
	assert.Equal(t, uint64(1), stats.Failed)
	assert.Equal(t, 0.0, stats.SuccessRate)
	assert.Greater(t, stats.Uptime, time.Duration(0))
}
