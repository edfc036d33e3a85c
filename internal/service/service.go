// Package service is the producer-facing facade consumed by the RPC layer:
// job submission, queue introspection and health.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/outfitly/stylescout/internal/queue"
	"github.com/outfitly/stylescout/internal/worker"
)

type Service struct {
	queue  *queue.Queue
	pool   *worker.Pool
	logger *slog.Logger

	// health thresholds
	maxWaitingDepth int
	minSuccessRate  float64
}

func New(q *queue.Queue, pool *worker.Pool, logger *slog.Logger) *Service {
	return &Service{
		queue:           q,
		pool:            pool,
		logger:          logger.With("component", "service"),
		maxWaitingDepth: 1000,
		minSuccessRate:  0.5,
	}
}

func (s *Service) AddJob(ctx context.Context, url, brand string, priority, maxRetries int) (string, error) {
	return s.queue.Enqueue(ctx, &queue.Job{
		URL:         url,
		Brand:       brand,
		Priority:    priority,
		MaxAttempts: maxRetries,
	})
}

// BulkItem is one entry of a bulk submission.
type BulkItem struct {
	URL   string `json:"url"`
	Brand string `json:"brand"`
}

// AddBulkJobs enqueues every valid item and reports per-item errors for the
// rest; one malformed URL never blocks the batch.
func (s *Service) AddBulkJobs(ctx context.Context, items []BulkItem, priority, maxRetries int) ([]string, []queue.BulkError) {
	jobs := make([]*queue.Job, 0, len(items))
	for _, item := range items {
		jobs = append(jobs, &queue.Job{
			URL:         item.URL,
			Brand:       item.Brand,
			Priority:    priority,
			MaxAttempts: maxRetries,
		})
	}
	return s.queue.EnqueueBulk(ctx, jobs)
}

// ScheduleBrandCatalog bulk-enqueues a full catalog crawl for one brand.
func (s *Service) ScheduleBrandCatalog(ctx context.Context, brand string, urls []string, priority int) ([]string, []queue.BulkError) {
	items := make([]BulkItem, 0, len(urls))
	for _, u := range urls {
		items = append(items, BulkItem{URL: u, Brand: brand})
	}
	ids, errs := s.AddBulkJobs(ctx, items, priority, 3)
	s.logger.Info("brand catalog scheduled",
		"brand", brand, "enqueued", len(ids), "rejected", len(errs))
	return ids, errs
}

func (s *Service) GetQueueStats(ctx context.Context) (queue.Stats, error) {
	return s.queue.Stats(ctx)
}

func (s *Service) GetJobsByStatus(ctx context.Context, status queue.Status, limit int) ([]queue.Summary, error) {
	switch status {
	case queue.StatusWaiting, queue.StatusActive, queue.StatusCompleted, queue.StatusFailed:
	default:
		return nil, fmt.Errorf("unknown job status %q", status)
	}
	return s.queue.GetByStatus(ctx, status, limit)
}

// RetryFailedJobs re-admits up to limit failed jobs with a fresh attempt
// budget, returning how many were requeued.
func (s *Service) RetryFailedJobs(ctx context.Context, limit int) (int, error) {
	failed, err := s.queue.GetByStatus(ctx, queue.StatusFailed, limit)
	if err != nil {
		return 0, err
	}
	retried := 0
	for _, job := range failed {
		if err := s.queue.Retry(ctx, job.ID); err != nil {
			s.logger.Warn("retry failed", "job_id", job.ID, "error", err)
			continue
		}
		retried++
	}
	return retried, nil
}

func (s *Service) RemoveJob(ctx context.Context, jobID string) error {
	return s.queue.Remove(ctx, jobID)
}

// Health is the aggregated verdict exposed to operators.
type Health struct {
	Healthy       bool     `json:"healthy"`
	QueueHealthy  bool     `json:"queue_healthy"`
	WorkerHealthy bool     `json:"worker_healthy"`
	Issues        []string `json:"issues"`
}

// HealthCheck folds queue-depth and failure-rate signals into one verdict
// with itemized issues.
func (s *Service) HealthCheck(ctx context.Context) Health {
	h := Health{Healthy: true, QueueHealthy: true, WorkerHealthy: true, Issues: []string{}}

	stats, err := s.queue.Stats(ctx)
	if err != nil {
		h.QueueHealthy = false
		h.Issues = append(h.Issues, fmt.Sprintf("queue stats unavailable: %v", err))
	} else if stats.Waiting > s.maxWaitingDepth {
		h.QueueHealthy = false
		h.Issues = append(h.Issues, fmt.Sprintf("queue backlog: %d waiting jobs", stats.Waiting))
	}

	ws := s.pool.Stats()
	if total := ws.Processed + ws.Failed; total >= 10 && ws.SuccessRate < s.minSuccessRate {
		h.WorkerHealthy = false
		h.Issues = append(h.Issues,
			fmt.Sprintf("success rate %.0f%% below %.0f%%", ws.SuccessRate*100, s.minSuccessRate*100))
	}

	h.Healthy = h.QueueHealthy && h.WorkerHealthy
	return h
}

func (s *Service) WorkerStats() worker.Stats {
	return s.pool.Stats()
}
