package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"mockforge/internal/domain"
)

type jobView struct {
	ID               string     `json:"id"`
	MockupID         string     `json:"mockup_id"`
	Type             string     `json:"type"`
	Status           string     `json:"status"`
	Priority         int        `json:"priority"`
	Attempts         int        `json:"attempts"`
	MaxAttempts      int        `json:"max_attempts"`
	Percent          int        `json:"percent"`
	QueuedAt         time.Time  `json:"queued_at"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	FailedAt         *time.Time `json:"failed_at,omitempty"`
	CancelledAt      *time.Time `json:"cancelled_at,omitempty"`
	NextRetryAt      *time.Time `json:"next_retry_at,omitempty"`
	EstimatedCredits int64      `json:"estimated_credits"`
	ActualCredits    *int64     `json:"actual_credits,omitempty"`
	Error            string     `json:"error,omitempty"`
}

type mockupView struct {
	ID         string `json:"id"`
	TemplateID string `json:"template_id"`
	SourceKey  string `json:"source_key"`
	ResultKey  string `json:"result_key,omitempty"`
	Status     string `json:"status"`
}

func viewJob(j *domain.GenerationJob) jobView {
	return jobView{
		ID:               j.ID,
		MockupID:         j.MockupID,
		Type:             string(j.Type),
		Status:           string(j.Status),
		Priority:         j.Priority,
		Attempts:         j.Attempts,
		MaxAttempts:      j.MaxAttempts,
		Percent:          domain.ProgressPercent(j.Status),
		QueuedAt:         j.QueuedAt,
		StartedAt:        j.StartedAt,
		CompletedAt:      j.CompletedAt,
		FailedAt:         j.FailedAt,
		CancelledAt:      j.CancelledAt,
		NextRetryAt:      j.NextRetryAt,
		EstimatedCredits: j.EstimatedCredits,
		ActualCredits:    j.ActualCredits,
		Error:            j.ErrorMessage,
	}
}

func viewMockup(m *domain.Mockup) mockupView {
	return mockupView{
		ID:         m.ID,
		TemplateID: m.TemplateID,
		SourceKey:  m.SourceKey,
		ResultKey:  m.ResultKey,
		Status:     string(m.Status),
	}
}

// JobStatus returns the job and its mockup, looked up by either id.
func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}

	jobID := r.URL.Query().Get("jobId")
	mockupID := r.URL.Query().Get("mockupId")
	if jobID == "" && mockupID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "jobId or mockupId required")
		return
	}

	var (
		job *domain.GenerationJob
		err error
	)
	if jobID != "" {
		job, err = a.Jobs.GetByID(r.Context(), jobID)
	} else {
		job, err = a.Jobs.GetByMockupID(r.Context(), mockupID)
	}
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.Logger.Error().Err(err).Msg("jobs: status lookup failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return
	}
	if job.UserID != userID {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}

	resp := map[string]any{"job": viewJob(job)}
	if mockup, err := a.Mockups.GetByID(r.Context(), job.MockupID); err == nil {
		resp["mockup"] = viewMockup(mockup)
	}
	a.json(w, http.StatusOK, resp)
}

// JobCancel cancels a queued job and refunds the reserved estimate. Jobs
// already processing or terminal are not cancellable.
func (a *App) JobCancel(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
		return
	}

	job, err := a.Jobs.GetByID(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("jobs: cancel lookup failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return
	}
	if job.UserID != userID {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}

	if err := a.Jobs.Cancel(r.Context(), jobID, time.Now().UTC()); err != nil {
		if errors.Is(err, domain.ErrJobNotCancellable) {
			a.error(w, http.StatusConflict, "not_cancellable", "job is no longer queued")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("jobs: cancel failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to cancel job")
		return
	}

	if err := a.Mockups.SetStatus(r.Context(), job.MockupID, domain.MockupStatusFailed); err != nil {
		a.Logger.Error().Err(err).Str("mockup_id", job.MockupID).Msg("jobs: mockup status update failed")
	}
	if _, err := a.Ledger.Credit(r.Context(), userID, job.EstimatedCredits, domain.LedgerReasonJobRelease, job.ID); err != nil {
		a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("jobs: cancel refund failed")
	}

	a.Logger.Info().Str("job_id", jobID).Msg("jobs: cancelled")
	a.json(w, http.StatusOK, map[string]string{"id": jobID, "status": string(domain.JobStatusCancelled)})
}

// JobsProgress returns coarse progress for up to 50 job ids in one call.
func (a *App) JobsProgress(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	raw := r.URL.Query().Get("ids")
	if raw == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "ids required")
		return
	}
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 || len(ids) > 50 {
		a.error(w, http.StatusBadRequest, "bad_request", "between 1 and 50 ids required")
		return
	}

	updates, err := a.Progress.Snapshot(r.Context(), ids)
	if err != nil {
		a.Logger.Error().Err(err).Msg("jobs: progress snapshot failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load progress")
		return
	}

	done := true
	for _, u := range updates {
		if !u.Terminal {
			done = false
			break
		}
	}
	a.json(w, http.StatusOK, map[string]any{"jobs": updates, "done": done})
}
