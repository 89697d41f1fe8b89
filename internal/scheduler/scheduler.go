// Package scheduler drives the asynchronous generation pipeline: a recurring
// sweep claims eligible jobs, calls the generation service through its
// circuit breaker and records the outcome with bounded retries.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mockforge/internal/breaker"
	"mockforge/internal/domain"
	"mockforge/internal/providers/generation"
)

// Generator is the external generation call. The production implementation
// is *generation.Client.
type Generator interface {
	Render(ctx context.Context, req generation.RenderRequest) (generation.RenderResult, error)
}

// Observer learns about jobs entering the pipeline; the progress tracker
// implements it. A nil observer is valid.
type Observer interface {
	Track(jobIDs ...string)
}

// Config tunes the dispatch loop.
type Config struct {
	Tick              time.Duration
	BatchSize         int
	MaxConcurrent     int
	ProcessingTimeout time.Duration
	BackoffBase       time.Duration
	BackoffMax        time.Duration
}

// Scheduler owns every queued and processing job until it reaches a
// terminal state.
type Scheduler struct {
	jobs     domain.JobRepository
	mockups  domain.MockupRepository
	ledger   domain.LedgerRepository
	gen      Generator
	breaker  *breaker.Breaker
	observer Observer
	cfg      Config
	logger   zerolog.Logger

	now func() time.Time
}

func New(jobs domain.JobRepository, mockups domain.MockupRepository, ledger domain.LedgerRepository, gen Generator, brk *breaker.Breaker, cfg Config, logger zerolog.Logger) *Scheduler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 25
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	return &Scheduler{
		jobs:    jobs,
		mockups: mockups,
		ledger:  ledger,
		gen:     gen,
		breaker: brk,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// SetObserver registers the progress tracker; call before Run.
func (s *Scheduler) SetObserver(o Observer) {
	s.observer = o
}

// Run sweeps on the configured tick until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info().
		Dur("tick", s.cfg.Tick).
		Int("batch_size", s.cfg.BatchSize).
		Msg("scheduler: started")

	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.DispatchEligible(ctx); err != nil {
				s.logger.Error().Err(err).Msg("scheduler: dispatch sweep failed")
			}
			if err := s.SweepStuck(ctx); err != nil {
				s.logger.Error().Err(err).Msg("scheduler: stuck sweep failed")
			}
		}
	}
}

// DispatchEligible claims and dispatches every due job, in priority order
// then creation order within a priority band. Claims happen sequentially so
// dispatch ordering holds; the generation calls themselves run concurrently
// up to MaxConcurrent. Returns the number of jobs dispatched.
func (s *Scheduler) DispatchEligible(ctx context.Context) (int, error) {
	now := s.now()
	eligible, err := s.jobs.ListEligible(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(eligible) == 0 {
		return 0, nil
	}

	sem := make(chan struct{}, s.cfg.MaxConcurrent)
	var wg sync.WaitGroup
	dispatched := 0

	for i := range eligible {
		claimed, ok, err := s.jobs.Claim(ctx, eligible[i].ID, s.now())
		if err != nil {
			s.logger.Error().Err(err).Str("job_id", eligible[i].ID).Msg("scheduler: claim failed")
			continue
		}
		if !ok {
			// Another instance won the race or the user cancelled; move on.
			continue
		}
		if s.observer != nil {
			s.observer.Track(claimed.ID)
		}
		dispatched++

		wg.Add(1)
		sem <- struct{}{}
		go func(job *domain.GenerationJob) {
			defer wg.Done()
			defer func() { <-sem }()
			s.process(ctx, job)
		}(claimed)
	}

	wg.Wait()
	return dispatched, nil
}

func (s *Scheduler) process(ctx context.Context, job *domain.GenerationJob) {
	s.logger.Info().
		Str("job_id", job.ID).
		Str("type", string(job.Type)).
		Int("attempt", job.Attempts).
		Int("max_attempts", job.MaxAttempts).
		Msg("scheduler: dispatching job")

	mockup, err := s.mockups.GetByID(ctx, job.MockupID)
	if err != nil {
		s.handleFailure(ctx, job, err)
		return
	}

	var result generation.RenderResult
	err = s.breaker.Execute(ctx, func(ctx context.Context) error {
		var renderErr error
		result, renderErr = s.gen.Render(ctx, generation.RenderRequest{
			JobID:      job.ID,
			MockupID:   mockup.ID,
			TemplateID: mockup.TemplateID,
			SourceKey:  mockup.SourceKey,
			Operation:  job.Type,
		})
		return renderErr
	})
	if err != nil {
		s.handleFailure(ctx, job, err)
		return
	}
	s.handleSuccess(ctx, job, result)
}

func (s *Scheduler) handleSuccess(ctx context.Context, job *domain.GenerationJob, result generation.RenderResult) {
	now := s.now()
	if err := s.jobs.MarkCompleted(ctx, job.ID, result.CreditsUsed, now); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("scheduler: complete transition failed")
		return
	}
	if err := s.mockups.SetResult(ctx, job.MockupID, result.ResultKey); err != nil {
		s.logger.Error().Err(err).Str("mockup_id", job.MockupID).Msg("scheduler: mockup result update failed")
	}
	s.reconcileCredits(ctx, job, result.CreditsUsed)

	s.logger.Info().
		Str("job_id", job.ID).
		Str("result_key", result.ResultKey).
		Int64("actual_credits", result.CreditsUsed).
		Msg("scheduler: job completed")
}

// reconcileCredits settles the gap between the estimate reserved at enqueue
// and the cost the service actually charged.
func (s *Scheduler) reconcileCredits(ctx context.Context, job *domain.GenerationJob, actual int64) {
	diff := actual - job.EstimatedCredits
	var err error
	switch {
	case diff > 0:
		_, err = s.ledger.DebitFloored(ctx, job.UserID, diff, domain.LedgerReasonJobReconcile, job.ID)
	case diff < 0:
		_, err = s.ledger.Credit(ctx, job.UserID, -diff, domain.LedgerReasonJobReconcile, job.ID)
	}
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Int64("diff", diff).Msg("scheduler: credit reconciliation failed")
	}
}

// handleFailure covers direct failures, timeouts and breaker-open
// rejections alike: all consume the attempt the claim already counted. The
// breaker's own reset timeout naturally staggers retries away from a
// downstream outage.
func (s *Scheduler) handleFailure(ctx context.Context, job *domain.GenerationJob, cause error) {
	now := s.now()
	msg := cause.Error()

	if job.Attempts < job.MaxAttempts {
		retryAt := now.Add(backoff(s.cfg.BackoffBase, s.cfg.BackoffMax, job.Attempts))
		if err := s.jobs.MarkRetry(ctx, job.ID, msg, retryAt); err != nil {
			s.logger.Error().Err(err).Str("job_id", job.ID).Msg("scheduler: retry transition failed")
			return
		}
		s.logger.Warn().
			Str("job_id", job.ID).
			Int("attempt", job.Attempts).
			Time("next_retry_at", retryAt).
			Bool("breaker_open", errors.Is(cause, domain.ErrBreakerOpen)).
			Str("error", msg).
			Msg("scheduler: job attempt failed, retry scheduled")
		return
	}

	if err := s.jobs.MarkFailed(ctx, job.ID, msg, now); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("scheduler: fail transition failed")
		return
	}
	if err := s.mockups.SetStatus(ctx, job.MockupID, domain.MockupStatusFailed); err != nil {
		s.logger.Error().Err(err).Str("mockup_id", job.MockupID).Msg("scheduler: mockup status update failed")
	}
	// Attempts exhausted: release the credits reserved at enqueue.
	if _, err := s.ledger.Credit(ctx, job.UserID, job.EstimatedCredits, domain.LedgerReasonJobRelease, job.ID); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("scheduler: credit release failed")
	}
	s.logger.Error().
		Str("job_id", job.ID).
		Int("attempts", job.Attempts).
		Str("error", msg).
		Msg("scheduler: job failed terminally")
}

// SweepStuck converts processing jobs older than the processing timeout
// into retryable failures. Such jobs mean a scheduler crashed between claim
// and outcome; without the sweep they would hang in processing forever.
func (s *Scheduler) SweepStuck(ctx context.Context) error {
	cutoff := s.now().Add(-s.cfg.ProcessingTimeout)
	stuck, err := s.jobs.ListStuck(ctx, cutoff)
	if err != nil {
		return err
	}
	for i := range stuck {
		job := &stuck[i]
		s.logger.Warn().
			Str("job_id", job.ID).
			Time("started_at", derefTime(job.StartedAt)).
			Msg("scheduler: reaping stuck job")
		s.handleFailure(ctx, job, errors.New("processing timed out"))
	}
	return nil
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
