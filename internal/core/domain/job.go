package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobState is the lifecycle state of a NotificationJob.
type JobState string

const (
	JobWaiting    JobState = "WAITING"
	JobInProgress JobState = "IN_PROGRESS"
	JobSucceeded  JobState = "SUCCEEDED"
	JobFailed     JobState = "FAILED"
	JobAbandoned  JobState = "ABANDONED"
)

// DefaultMaxAttempts is the attempt ceiling for a job unless configured otherwise.
const DefaultMaxAttempts = 3

// NotificationJob is the queued, retryable unit of work derived from a DomainEvent.
type NotificationJob struct {
	ID          uuid.UUID     `json:"id"`
	Event       DomainEvent   `json:"event"`
	Channels    []Channel     `json:"channels"`
	Weight      int           `json:"weight"`
	Attempt     int           `json:"attempt"`
	MaxAttempts int           `json:"max_attempts"`
	BaseBackoff time.Duration `json:"base_backoff"`
	State       JobState      `json:"state"`
	LastError   string        `json:"last_error,omitempty"`
	EnqueuedAt  time.Time     `json:"enqueued_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// NewNotificationJob derives a job from an event and its resolved channel set.
func NewNotificationJob(event DomainEvent, channels []Channel, maxAttempts int, baseBackoff time.Duration) *NotificationJob {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if baseBackoff <= 0 {
		baseBackoff = time.Second
	}
	now := time.Now().UTC()
	return &NotificationJob{
		ID:          uuid.New(),
		Event:       event,
		Channels:    channels,
		Weight:      event.Priority.Weight(),
		MaxAttempts: maxAttempts,
		BaseBackoff: baseBackoff,
		State:       JobWaiting,
		EnqueuedAt:  now,
		UpdatedAt:   now,
	}
}

// Backoff returns the delay before the next attempt: base * 2^attempt.
func (j *NotificationJob) Backoff() time.Duration {
	return j.BaseBackoff * time.Duration(1<<uint(j.Attempt))
}

// Exhausted reports whether the attempt ceiling has been reached.
func (j *NotificationJob) Exhausted() bool {
	return j.Attempt >= j.MaxAttempts
}

// IsTerminal returns true once the job will never run again.
func (j *NotificationJob) IsTerminal() bool {
	return j.State == JobSucceeded || j.State == JobAbandoned
}

// JobAttempt is one physical send attempt, kept in the queue's own history.
type JobAttempt struct {
	Attempt     int       `json:"attempt"`
	PushOK      bool      `json:"push_ok"`
	EmailOK     bool      `json:"email_ok"`
	RealtimeOK  bool      `json:"realtime_ok"`
	Succeeded   bool      `json:"succeeded"`
	Error       string    `json:"error,omitempty"`
	Mode        string    `json:"mode"`
	AttemptedAt time.Time `json:"attempted_at"`
}
