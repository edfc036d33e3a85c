package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/outfitly/stylescout/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	EventProductScraped = "PRODUCT_SCRAPED"
	EventScrapeFailed   = "SCRAPE_FAILED"
)

// RedisStreamSink publishes terminal outcomes as events on a Redis stream so
// downstream consumers (catalog sync, image pipeline) can react without
// polling.
type RedisStreamSink struct {
	client *redis.Client
	stream string
}

func NewRedisStreamSink(client *redis.Client, stream string) *RedisStreamSink {
	if stream == "" {
		stream = "stylescout:events"
	}
	return &RedisStreamSink{client: client, stream: stream}
}

func (s *RedisStreamSink) StoreProduct(ctx context.Context, product *models.ScrapedProduct) error {
	payload, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("failed to marshal product event: %w", err)
	}
	return s.publish(ctx, EventProductScraped, payload)
}

func (s *RedisStreamSink) StoreFailure(ctx context.Context, failure *Failure) error {
	payload, err := json.Marshal(failure)
	if err != nil {
		return fmt.Errorf("failed to marshal failure event: %w", err)
	}
	return s.publish(ctx, EventScrapeFailed, payload)
}

func (s *RedisStreamSink) publish(ctx context.Context, eventType string, payload []byte) error {
	err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{
			"event_id":   uuid.New().String(),
			"event_type": eventType,
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
			"payload":    string(payload),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", eventType, err)
	}
	return nil
}
