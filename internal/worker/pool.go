// Package worker drains the job queue with a bounded pool of long-lived
// workers, isolating each job so one crash never takes down the loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/outfitly/stylescout/internal/adapters"
	"github.com/outfitly/stylescout/internal/engine"
	"github.com/outfitly/stylescout/internal/models"
	"github.com/outfitly/stylescout/internal/normalize"
	"github.com/outfitly/stylescout/internal/queue"
	"github.com/outfitly/stylescout/internal/sink"
)

// Crawler is what a worker runs per job; satisfied by *engine.Engine and
// stubbed in tests.
type Crawler interface {
	FetchAndExtract(ctx context.Context, url string, adapter adapters.Adapter, progress engine.Progress) (*models.ScrapedProduct, error)
}

type Options struct {
	PollInterval  time.Duration
	JobTimeout    time.Duration
	ShutdownGrace time.Duration
}

func DefaultOptions() Options {
	return Options{
		PollInterval:  2 * time.Second,
		JobTimeout:    3 * time.Minute,
		ShutdownGrace: 30 * time.Second,
	}
}

type Pool struct {
	queue    *queue.Queue
	crawler  Crawler
	registry *adapters.Registry
	sink     sink.ProductSink
	metrics  *Metrics
	opts     Options
	logger   *slog.Logger

	mu         sync.Mutex
	claimStop  context.CancelFunc
	hardStop   context.CancelFunc
	wg         sync.WaitGroup
	startedAt  time.Time
	processed  atomic.Uint64
	failed     atomic.Uint64
}

func NewPool(q *queue.Queue, crawler Crawler, registry *adapters.Registry, productSink sink.ProductSink, metrics *Metrics, opts Options, logger *slog.Logger) *Pool {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultOptions().PollInterval
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = DefaultOptions().JobTimeout
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = DefaultOptions().ShutdownGrace
	}
	return &Pool{
		queue:    q,
		crawler:  crawler,
		registry: registry,
		sink:     productSink,
		metrics:  metrics,
		opts:     opts,
		logger:   logger.With("component", "worker_pool"),
	}
}

// Start spins up exactly concurrency workers. Claiming stops when Stop is
// called; in-flight jobs run on a separate context so they can outlive the
// claim loop during graceful shutdown.
func (p *Pool) Start(concurrency int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	claimCtx, claimCancel := context.WithCancel(context.Background())
	hardCtx, hardCancel := context.WithCancel(context.Background())
	p.claimStop = claimCancel
	p.hardStop = hardCancel
	p.startedAt = time.Now()

	for i := 0; i < concurrency; i++ {
		workerID := fmt.Sprintf("worker-%d", i+1)
		p.wg.Add(1)
		go p.run(claimCtx, hardCtx, workerID)
	}
	p.logger.Info("worker pool started", "concurrency", concurrency)
}

func (p *Pool) run(claimCtx, hardCtx context.Context, workerID string) {
	defer p.wg.Done()
	logger := p.logger.With("worker_id", workerID)

	for {
		select {
		case <-claimCtx.Done():
			logger.Info("worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(claimCtx, workerID)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				logger.Error("dequeue failed", "error", err)
			}
			p.sleep(claimCtx)
			continue
		}
		if job == nil {
			p.sleep(claimCtx)
			continue
		}
		p.execute(hardCtx, logger, job)
	}
}

func (p *Pool) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(p.opts.PollInterval):
	}
}

// execute runs one job end-to-end and always reports a terminal outcome to
// the queue; a job must never vanish without a queue-visible status.
func (p *Pool) execute(ctx context.Context, logger *slog.Logger, job *queue.Job) {
	if p.metrics != nil {
		p.metrics.InFlight.Inc()
		defer p.metrics.InFlight.Dec()
	}
	start := time.Now()
	defer func() {
		if p.metrics != nil {
			p.metrics.observeJob(time.Since(start))
		}
	}()

	jobCtx, cancel := context.WithTimeout(ctx, p.opts.JobTimeout)
	defer cancel()

	product, err := p.runCrawl(jobCtx, job)
	// Reporting must survive job-context expiry.
	reportCtx, reportCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer reportCancel()

	if err == nil {
		if sinkErr := p.sink.StoreProduct(reportCtx, product); sinkErr != nil {
			logger.Error("sink write failed, job will retry", "job_id", job.ID, "error", sinkErr)
			p.reportFailure(reportCtx, logger, job, sinkErr, false)
			return
		}
		if err := p.queue.Complete(reportCtx, job.ID, product); err != nil {
			logger.Error("failed to mark job complete", "job_id", job.ID, "error", err)
		}
		p.processed.Add(1)
		if p.metrics != nil {
			p.metrics.ProcessedTotal.Inc()
		}
		logger.Info("job completed", "job_id", job.ID, "url", job.URL, "duration", time.Since(start))
		return
	}

	var reject *normalize.RejectError
	permanent := errors.As(err, &reject)
	if permanent && p.metrics != nil {
		p.metrics.RejectedTotal.Inc()
	}
	p.reportFailure(reportCtx, logger, job, err, permanent)
}

// runCrawl wraps the engine call with panic isolation: a single job's crash
// becomes a recoverable failure instead of killing the worker.
func (p *Pool) runCrawl(ctx context.Context, job *queue.Job) (product *models.ScrapedProduct, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()

	adapter := p.registry.Lookup(job.Brand)
	progress := func(stage string) {
		if updateErr := p.queue.UpdateProgress(ctx, job.ID, stage); updateErr != nil {
			p.logger.Debug("progress update failed", "job_id", job.ID, "error", updateErr)
		}
	}
	return p.crawler.FetchAndExtract(ctx, job.URL, adapter, progress)
}

func (p *Pool) reportFailure(ctx context.Context, logger *slog.Logger, job *queue.Job, jobErr error, permanent bool) {
	var err error
	if permanent {
		err = p.queue.FailPermanent(ctx, job.ID, jobErr)
	} else {
		err = p.queue.Fail(ctx, job.ID, jobErr)
	}
	if err != nil {
		logger.Error("failed to report job failure", "job_id", job.ID, "error", err)
		return
	}

	// Count the failure and emit the consumer-visible error record only once
	// the job is terminal, so Failed and Processed stay in the same unit and
	// the success rate compares like with like.
	final, err := p.queue.Get(ctx, job.ID)
	if err != nil || final.Status != queue.StatusFailed {
		return
	}
	p.failed.Add(1)
	if p.metrics != nil {
		p.metrics.FailedTotal.Inc()
	}
	failure := &sink.Failure{
		JobID:    final.ID,
		URL:      final.URL,
		Brand:    final.Brand,
		Attempts: final.AttemptCount,
		LastErr:  final.LastError,
	}
	if sinkErr := p.sink.StoreFailure(ctx, failure); sinkErr != nil {
		logger.Error("failed to record failure downstream", "job_id", job.ID, "error", sinkErr)
	}
}

// Stop halts claiming immediately. When graceful, in-flight jobs get the
// shutdown grace to finish before being abandoned to stall recovery.
func (p *Pool) Stop(graceful bool) {
	p.mu.Lock()
	claimStop, hardStop := p.claimStop, p.hardStop
	p.mu.Unlock()
	if claimStop == nil {
		return
	}
	claimStop()

	if graceful {
		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			p.logger.Info("worker pool drained")
		case <-time.After(p.opts.ShutdownGrace):
			p.logger.Warn("shutdown grace expired, abandoning in-flight jobs")
		}
	}
	hardStop()
	p.wg.Wait()
}

// Stats are the pool's running counters.
type Stats struct {
	Processed   uint64        `json:"processed"`
	Failed      uint64        `json:"failed"`
	Uptime      time.Duration `json:"uptime"`
	SuccessRate float64       `json:"success_rate"`
}

func (p *Pool) Stats() Stats {
	processed := p.processed.Load()
	failed := p.failed.Load()
	s := Stats{
		Processed: processed,
		Failed:    failed,
	}
	p.mu.Lock()
	if !p.startedAt.IsZero() {
		s.Uptime = time.Since(p.startedAt)
	}
	p.mu.Unlock()
	if total := processed + failed; total > 0 {
		s.SuccessRate = float64(processed) / float64(total)
	}
	return s
}
