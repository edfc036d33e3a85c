package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyJobPrefix = "stylescout:job:"
	keyReady     = "stylescout:ready"
	keyDelayed   = "stylescout:delayed"
	keyActive    = "stylescout:active"
	keySeq       = "stylescout:seq"
	keyCompleted = "stylescout:completed"
	keyFailed    = "stylescout:failed"
)

// RedisStore persists queue state in Redis so jobs survive process restarts.
// Ready jobs live in a sorted set scored by priority and enqueue sequence,
// delayed jobs in a sorted set scored by their delay floor, and terminal jobs
// in capped lists.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func jobKey(id string) string { return keyJobPrefix + id }

// seqBand separates priority tiers in the ready-set score. With priorities
// clamped to [0, PriorityUrgent] the tier component tops out at 2^52, so
// every score up to seq 2^32 is integer-exact in float64 and FIFO ties
// survive the round-trip through Redis.
const seqBand = 1 << 32

// readyScore orders the ready set: higher priority first, then FIFO by
// enqueue sequence.
func readyScore(job *Job) float64 {
	return -float64(job.Priority)*seqBand + float64(job.Seq)
}

func (s *RedisStore) Put(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, jobKey(job.ID), data, 0)
	pipe.ZRem(ctx, keyReady, job.ID)
	pipe.ZRem(ctx, keyDelayed, job.ID)
	pipe.SRem(ctx, keyActive, job.ID)

	switch job.Status {
	case StatusWaiting:
		if job.DelayUntil.After(time.Now()) {
			pipe.ZAdd(ctx, keyDelayed, redis.Z{
				Score:  float64(job.DelayUntil.UnixMilli()),
				Member: job.ID,
			})
		} else {
			pipe.ZAdd(ctx, keyReady, redis.Z{Score: readyScore(job), Member: job.ID})
		}
	case StatusActive:
		pipe.SAdd(ctx, keyActive, job.ID)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store job: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Job, error) {
	data, err := s.client.Get(ctx, jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, jobKey(id))
	pipe.ZRem(ctx, keyReady, id)
	pipe.ZRem(ctx, keyDelayed, id)
	pipe.SRem(ctx, keyActive, id)
	pipe.LRem(ctx, keyCompleted, 0, id)
	pipe.LRem(ctx, keyFailed, 0, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	if del.Val() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *RedisStore) Claim(ctx context.Context, now, heartbeatDeadline time.Time) (*Job, error) {
	if err := s.promoteDelayed(ctx, now); err != nil {
		return nil, err
	}

	// Optimistic claim: pop the head of the ready set; losing a race with
	// another worker just means trying the next candidate.
	for attempt := 0; attempt < 8; attempt++ {
		ids, err := s.client.ZRange(ctx, keyReady, 0, 0).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read ready set: %w", err)
		}
		if len(ids) == 0 {
			return nil, nil
		}
		// Remove from ready and index as active in one transaction, so the
		// job is in at least one scheduling set at every point; a crash
		// before the record update lands in the stall scan instead of
		// stranding the job.
		pipe := s.client.TxPipeline()
		removed := pipe.ZRem(ctx, keyReady, ids[0])
		pipe.SAdd(ctx, keyActive, ids[0])
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("failed to claim job: %w", err)
		}
		if removed.Val() == 0 {
			continue
		}
		job, err := s.Get(ctx, ids[0])
		if errors.Is(err, ErrJobNotFound) {
			s.client.SRem(ctx, keyActive, ids[0])
			continue
		}
		if err != nil {
			return nil, err
		}
		job.Status = StatusActive
		job.HeartbeatDeadline = heartbeatDeadline
		if err := s.Put(ctx, job); err != nil {
			return nil, err
		}
		return job, nil
	}
	return nil, nil
}

func (s *RedisStore) promoteDelayed(ctx context.Context, now time.Time) error {
	ids, err := s.client.ZRangeByScore(ctx, keyDelayed, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now.UnixMilli()),
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to scan delayed set: %w", err)
	}
	for _, id := range ids {
		job, err := s.Get(ctx, id)
		if errors.Is(err, ErrJobNotFound) {
			s.client.ZRem(ctx, keyDelayed, id)
			continue
		}
		if err != nil {
			return err
		}
		pipe := s.client.TxPipeline()
		pipe.ZRem(ctx, keyDelayed, id)
		pipe.ZAdd(ctx, keyReady, redis.Z{Score: readyScore(job), Member: id})
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to promote delayed job: %w", err)
		}
	}
	return nil
}

func (s *RedisStore) Active(ctx context.Context) ([]*Job, error) {
	ids, err := s.client.SMembers(ctx, keyActive).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list active jobs: %w", err)
	}
	return s.getAll(ctx, ids)
}

func (s *RedisStore) ByStatus(ctx context.Context, status Status, limit int) ([]*Job, error) {
	var ids []string
	var err error
	switch status {
	case StatusActive:
		ids, err = s.client.SMembers(ctx, keyActive).Result()
	case StatusWaiting:
		ids, err = s.client.ZRange(ctx, keyReady, 0, int64(limit)-1).Result()
		if err == nil {
			var delayed []string
			delayed, err = s.client.ZRange(ctx, keyDelayed, 0, int64(limit)-1).Result()
			ids = append(ids, delayed...)
		}
	case StatusCompleted:
		ids, err = s.client.LRange(ctx, keyCompleted, 0, int64(limit)-1).Result()
	case StatusFailed:
		ids, err = s.client.LRange(ctx, keyFailed, 0, int64(limit)-1).Result()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs by status: %w", err)
	}
	jobs, err := s.getAll(ctx, ids)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (s *RedisStore) getAll(ctx context.Context, ids []string) ([]*Job, error) {
	var out []*Job
	for _, id := range ids {
		job, err := s.Get(ctx, id)
		if errors.Is(err, ErrJobNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, nil
}

func (s *RedisStore) Counts(ctx context.Context) (Stats, error) {
	now := time.Now().UnixMilli()
	pipe := s.client.Pipeline()
	ready := pipe.ZCard(ctx, keyReady)
	due := pipe.ZCount(ctx, keyDelayed, "-inf", fmt.Sprintf("%d", now))
	delayed := pipe.ZCount(ctx, keyDelayed, fmt.Sprintf("(%d", now), "+inf")
	active := pipe.SCard(ctx, keyActive)
	completed := pipe.LLen(ctx, keyCompleted)
	failed := pipe.LLen(ctx, keyFailed)
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, fmt.Errorf("failed to count jobs: %w", err)
	}
	return Stats{
		Active:    int(active.Val()),
		Waiting:   int(ready.Val() + due.Val()),
		Completed: int(completed.Val()),
		Failed:    int(failed.Val()),
		Delayed:   int(delayed.Val()),
	}, nil
}

func (s *RedisStore) NextSeq(ctx context.Context) (uint64, error) {
	seq, err := s.client.Incr(ctx, keySeq).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to allocate sequence: %w", err)
	}
	return uint64(seq), nil
}

func (s *RedisStore) Retire(ctx context.Context, job *Job, keep int) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	ring := keyCompleted
	if job.Status == StatusFailed {
		ring = keyFailed
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, jobKey(job.ID), data, 0)
	pipe.ZRem(ctx, keyReady, job.ID)
	pipe.ZRem(ctx, keyDelayed, job.ID)
	pipe.SRem(ctx, keyActive, job.ID)
	pipe.LRem(ctx, ring, 0, job.ID)
	pipe.LPush(ctx, ring, job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to retire job: %w", err)
	}

	if keep > 0 {
		evicted, err := s.client.LRange(ctx, ring, int64(keep), -1).Result()
		if err != nil {
			return fmt.Errorf("failed to scan retention ring: %w", err)
		}
		if len(evicted) > 0 {
			pipe := s.client.TxPipeline()
			pipe.LTrim(ctx, ring, 0, int64(keep)-1)
			for _, id := range evicted {
				pipe.Del(ctx, jobKey(id))
			}
			if _, err := pipe.Exec(ctx); err != nil {
				return fmt.Errorf("failed to trim retention ring: %w", err)
			}
		}
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
