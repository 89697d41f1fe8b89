package domain

import "time"

// JobType enumerates supported generation job categories.
type JobType string

const (
	JobTypeGeneration JobType = "generation"
	JobTypeVariation  JobType = "variation"
	JobTypeUpscale    JobType = "upscale"
)

// Valid reports whether the type is one the pipeline knows how to render.
func (t JobType) Valid() bool {
	switch t {
	case JobTypeGeneration, JobTypeVariation, JobTypeUpscale:
		return true
	}
	return false
}

// EstimateCredits is the price reserved when a job of this type is queued.
// The generation service reports the actual cost on completion and the
// scheduler reconciles the difference.
func (t JobType) EstimateCredits() int64 {
	switch t {
	case JobTypeUpscale:
		return 1
	case JobTypeVariation:
		return 2
	default:
		return 4
	}
}

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether no further transition may leave this status.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// GenerationJob is one unit of work turning an uploaded product image into a
// rendered mockup. It is created by the generate entry point and owned by the
// scheduler until it reaches a terminal status; everything else only reads it.
type GenerationJob struct {
	ID       string
	MockupID string
	UserID   string
	Type     JobType
	Status   JobStatus

	// Priority orders dispatch; a lower value is served first. Jobs with
	// equal priority dispatch in QueuedAt order.
	Priority int

	Attempts    int
	MaxAttempts int

	QueuedAt  time.Time
	StartedAt *time.Time

	// Exactly one of these is set once the job reaches the matching
	// terminal status, and it never changes afterwards.
	CompletedAt *time.Time
	FailedAt    *time.Time
	CancelledAt *time.Time

	// NextRetryAt is set only while the job sits queued after a failed
	// attempt; the scheduler skips it until the retry time is due.
	NextRetryAt *time.Time

	EstimatedCredits int64
	ActualCredits    *int64

	// ErrorMessage holds the most recent attempt's failure reason only.
	ErrorMessage string
}

// Eligible reports whether the scheduler may dispatch the job at now.
func (j *GenerationJob) Eligible(now time.Time) bool {
	if j.Status != JobStatusQueued {
		return false
	}
	return j.NextRetryAt == nil || !j.NextRetryAt.After(now)
}

// ProgressPercent derives the coarse user-visible progress for a status.
// Processing reports a midpoint estimate since the external service exposes
// no finer-grained signal.
func ProgressPercent(s JobStatus) int {
	switch s {
	case JobStatusProcessing:
		return 50
	case JobStatusCompleted:
		return 100
	default:
		return 0
	}
}
