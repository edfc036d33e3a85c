// Package sink delivers terminal job outcomes to downstream consumers: a
// validated product for every completed job, an error record for every
// terminally failed one.
package sink

import (
	"context"
	"fmt"
	"sync"

	"github.com/outfitly/stylescout/internal/models"
)

// ProductSink is the downstream consumer boundary. Delivery is at-least-once:
// the queue retries a job whose sink write fails.
type ProductSink interface {
	StoreProduct(ctx context.Context, product *models.ScrapedProduct) error
	StoreFailure(ctx context.Context, failure *Failure) error
}

// Failure is the error record emitted for a terminally failed job.
type Failure struct {
	JobID    string `json:"job_id"`
	URL      string `json:"url"`
	Brand    string `json:"brand"`
	Attempts int    `json:"attempts"`
	LastErr  string `json:"last_error"`
}

// MemorySink collects outcomes in memory for tests.
type MemorySink struct {
	mu       sync.Mutex
	products []*models.ScrapedProduct
	failures []*Failure
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) StoreProduct(ctx context.Context, product *models.ScrapedProduct) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = append(s.products, product)
	return nil
}

func (s *MemorySink) StoreFailure(ctx context.Context, failure *Failure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, failure)
	return nil
}

func (s *MemorySink) Products() []*models.ScrapedProduct {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.ScrapedProduct, len(s.products))
	copy(out, s.products)
	return out
}

func (s *MemorySink) Failures() []*Failure {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Failure, len(s.failures))
	copy(out, s.failures)
	return out
}

// MultiSink fans out to several sinks; the first error wins but every sink
// is attempted.
type MultiSink struct {
	sinks []ProductSink
}

func NewMultiSink(sinks ...ProductSink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (s *MultiSink) StoreProduct(ctx context.Context, product *models.ScrapedProduct) error {
	var firstErr error
	for _, sub := range s.sinks {
		if err := sub.StoreProduct(ctx, product); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("sink write failed: %w", err)
		}
	}
	return firstErr
}

func (s *MultiSink) StoreFailure(ctx context.Context, failure *Failure) error {
	var firstErr error
	for _, sub := range s.sinks {
		if err := sub.StoreFailure(ctx, failure); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("sink write failed: %w", err)
		}
	}
	return firstErr
}
