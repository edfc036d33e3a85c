package queue

import (
	"time"

	"github.com/outfitly/stylescout/internal/models"
)

type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Progress stages reported by workers while a job is active.
const (
	StageInitializing = "initializing"
	StageNavigating   = "navigating"
	StageExtracting   = "extracting"
	StageValidating   = "validating"
)

// Job is a single scrape request and its full lifecycle state. Workers never
// mutate a Job directly; every transition goes through the queue so status is
// a single source of truth.
type Job struct {
	ID       string            `json:"id"`
	URL      string            `json:"url"`
	Brand    string            `json:"brand"`
	Priority int               `json:"priority"`
	Metadata map[string]string `json:"metadata,omitempty"`

	MaxAttempts  int `json:"max_attempts"`
	AttemptCount int `json:"attempt_count"`
	StalledCount int `json:"stalled_count"`

	Status     Status    `json:"status"`
	Stage      string    `json:"stage,omitempty"`
	DelayUntil time.Time `json:"delay_until"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	Seq        uint64    `json:"seq"`

	WorkerID          string    `json:"worker_id,omitempty"`
	HeartbeatDeadline time.Time `json:"heartbeat_deadline,omitempty"`

	LastError   string                 `json:"last_error,omitempty"`
	Result      *models.ScrapedProduct `json:"result,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
}

func (j *Job) terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// ready reports whether the job is eligible for dequeue at now.
func (j *Job) ready(now time.Time) bool {
	return j.Status == StatusWaiting && !j.DelayUntil.After(now)
}

// Summary is the external view of a job returned by status queries.
type Summary struct {
	ID           string    `json:"id"`
	URL          string    `json:"url"`
	Brand        string    `json:"brand"`
	Priority     int       `json:"priority"`
	Status       Status    `json:"status"`
	Stage        string    `json:"stage,omitempty"`
	AttemptCount int       `json:"attempt_count"`
	MaxAttempts  int       `json:"max_attempts"`
	LastError    string    `json:"last_error,omitempty"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
}

func (j *Job) summary() Summary {
	return Summary{
		ID:           j.ID,
		URL:          j.URL,
		Brand:        j.Brand,
		Priority:     j.Priority,
		Status:       j.Status,
		Stage:        j.Stage,
		AttemptCount: j.AttemptCount,
		MaxAttempts:  j.MaxAttempts,
		LastError:    j.LastError,
		EnqueuedAt:   j.EnqueuedAt,
	}
}

// Stats are point-in-time queue depth counts. Delayed counts waiting jobs
// whose delay floor has not passed yet.
type Stats struct {
	Active    int `json:"active"`
	Waiting   int `json:"waiting"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Delayed   int `json:"delayed"`
}
