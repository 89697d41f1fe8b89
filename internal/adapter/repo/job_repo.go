package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mockforge/internal/domain"
	"mockforge/internal/infra"
	"mockforge/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobRepository. Every status transition
// is a conditional update guarded by the expected prior status, so a row can
// only move along the queued -> processing -> terminal state machine and two
// schedulers can never both claim the same job.
type JobRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewJobRepository creates a job repository backed by PostgreSQL.
func NewJobRepository(sql infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{sql: sql}
}

// Create inserts a new queued job record.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.GenerationJob) error {
	_, err := r.sql.Exec(ctx, sqlinline.QInsertJob,
		job.ID,
		job.MockupID,
		job.UserID,
		job.Type,
		job.Priority,
		job.MaxAttempts,
		job.QueuedAt,
		job.EstimatedCredits,
	)
	return err
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.GenerationJob, error) {
	return r.scanOne(r.sql.QueryRow(ctx, sqlinline.QSelectJobByID, jobID))
}

// GetByMockupID fetches the job producing a given mockup.
func (r *JobRepositoryPG) GetByMockupID(ctx context.Context, mockupID string) (*domain.GenerationJob, error) {
	return r.scanOne(r.sql.QueryRow(ctx, sqlinline.QSelectJobByMockupID, mockupID))
}

// ListByIDs fetches a batch of jobs; missing ids are silently absent.
func (r *JobRepositoryPG) ListByIDs(ctx context.Context, jobIDs []string) ([]domain.GenerationJob, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QSelectJobsByIDs, jobIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

// ListEligible returns dispatchable jobs in priority-then-FIFO order.
func (r *JobRepositoryPG) ListEligible(ctx context.Context, now time.Time, limit int) ([]domain.GenerationJob, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QSelectEligibleJobs, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

// Claim performs the exclusive queued -> processing transition.
func (r *JobRepositoryPG) Claim(ctx context.Context, jobID string, now time.Time) (*domain.GenerationJob, bool, error) {
	job, err := r.scanOne(r.sql.QueryRow(ctx, sqlinline.QClaimJob, jobID, now))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Either gone or no longer queued; the caller moves on.
			return nil, false, nil
		}
		return nil, false, err
	}
	return job, true, nil
}

// MarkCompleted finalizes a successful job.
func (r *JobRepositoryPG) MarkCompleted(ctx context.Context, jobID string, actualCredits int64, now time.Time) error {
	return r.transition(ctx, sqlinline.QCompleteJob, "completed", jobID, actualCredits, now)
}

// MarkRetry schedules the next attempt after a transient failure.
func (r *JobRepositoryPG) MarkRetry(ctx context.Context, jobID, errMsg string, nextRetryAt time.Time) error {
	return r.transition(ctx, sqlinline.QRetryJob, "retry", jobID, errMsg, nextRetryAt)
}

// MarkFailed records terminal failure once attempts are exhausted.
func (r *JobRepositoryPG) MarkFailed(ctx context.Context, jobID, errMsg string, now time.Time) error {
	return r.transition(ctx, sqlinline.QFailJob, "failed", jobID, errMsg, now)
}

// Cancel removes a job before dispatch.
func (r *JobRepositoryPG) Cancel(ctx context.Context, jobID string, now time.Time) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QCancelJob, jobID, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobNotCancellable
	}
	return nil
}

// ListStuck returns processing jobs abandoned by a crashed scheduler.
func (r *JobRepositoryPG) ListStuck(ctx context.Context, cutoff time.Time) ([]domain.GenerationJob, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QSelectStuckJobs, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (r *JobRepositoryPG) transition(ctx context.Context, query, name, jobID string, args ...any) error {
	all := append([]any{jobID}, args...)
	tag, err := r.sql.Exec(ctx, query, all...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: %s transition rejected: %w", jobID, name, domain.ErrConflict)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *JobRepositoryPG) scanOne(row rowScanner) (*domain.GenerationJob, error) {
	var job domain.GenerationJob
	if err := scanJob(row, &job); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

func scanJob(row rowScanner, job *domain.GenerationJob) error {
	return row.Scan(
		&job.ID,
		&job.MockupID,
		&job.UserID,
		&job.Type,
		&job.Status,
		&job.Priority,
		&job.Attempts,
		&job.MaxAttempts,
		&job.QueuedAt,
		&job.StartedAt,
		&job.CompletedAt,
		&job.FailedAt,
		&job.CancelledAt,
		&job.NextRetryAt,
		&job.EstimatedCredits,
		&job.ActualCredits,
		&job.ErrorMessage,
	)
}

type rowIterator interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanJobs(rows rowIterator) ([]domain.GenerationJob, error) {
	var jobs []domain.GenerationJob
	for rows.Next() {
		var job domain.GenerationJob
		if err := scanJob(rows, &job); err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
