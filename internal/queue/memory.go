package queue

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps all job state in process. Used by tests and by
// deployments that can tolerate losing the queue on restart.
type MemoryStore struct {
	mu     sync.Mutex
	jobs   map[string]*Job
	seq    uint64
	closed bool

	// terminal retention rings, oldest first
	completed []string
	failed    []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*Job),
	}
}

func (s *MemoryStore) Put(ctx context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrQueueClosed
	}
	cp := *job
	s.jobs[job.ID] = &cp
	if !job.terminal() {
		s.completed = removeID(s.completed, job.ID)
		s.failed = removeID(s.failed, job.ID)
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return ErrJobNotFound
	}
	delete(s.jobs, id)
	s.completed = removeID(s.completed, id)
	s.failed = removeID(s.failed, id)
	return nil
}

func (s *MemoryStore) Claim(ctx context.Context, now, heartbeatDeadline time.Time) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrQueueClosed
	}

	var best *Job
	for _, job := range s.jobs {
		if !job.ready(now) {
			continue
		}
		if best == nil || job.Priority > best.Priority ||
			(job.Priority == best.Priority && job.Seq < best.Seq) {
			best = job
		}
	}
	if best == nil {
		return nil, nil
	}
	best.Status = StatusActive
	best.HeartbeatDeadline = heartbeatDeadline
	cp := *best
	return &cp, nil
}

func (s *MemoryStore) Active(ctx context.Context) ([]*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Job
	for _, job := range s.jobs {
		if job.Status == StatusActive {
			cp := *job
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) ByStatus(ctx context.Context, status Status, limit int) ([]*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Job
	for _, job := range s.jobs {
		if job.Status != status {
			continue
		}
		cp := *job
		out = append(out, &cp)
	}
	// newest enqueue first for observability queries
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].Seq > out[i].Seq {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Counts(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stats Stats
	now := time.Now()
	for _, job := range s.jobs {
		switch job.Status {
		case StatusActive:
			stats.Active++
		case StatusWaiting:
			if job.DelayUntil.After(now) {
				stats.Delayed++
			} else {
				stats.Waiting++
			}
		case StatusCompleted:
			stats.Completed++
		case StatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

func (s *MemoryStore) NextSeq(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq, nil
}

func (s *MemoryStore) Retire(ctx context.Context, job *Job, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	s.jobs[job.ID] = &cp

	var ring *[]string
	switch job.Status {
	case StatusCompleted:
		ring = &s.completed
	case StatusFailed:
		ring = &s.failed
	default:
		return nil
	}
	*ring = removeID(*ring, job.ID)
	*ring = append(*ring, job.ID)
	for keep > 0 && len(*ring) > keep {
		evict := (*ring)[0]
		*ring = (*ring)[1:]
		delete(s.jobs, evict)
	}
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
