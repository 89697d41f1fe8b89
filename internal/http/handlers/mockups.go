package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"mockforge/internal/domain"
)

type mockupGenerateRequest struct {
	TemplateID string `json:"template_id"`
	SourceKey  string `json:"source_key"`
	Type       string `json:"type"`
	Priority   int    `json:"priority"`
}

type mockupGenerateResponse struct {
	MockupID         string `json:"mockup_id"`
	JobID            string `json:"job_id"`
	Status           string `json:"status"`
	EstimatedCredits int64  `json:"estimated_credits"`
}

const (
	defaultPriority = 5
	minPriority     = 1
	maxPriority     = 9
)

// MockupsGenerate creates the mockup record, reserves the estimated credits
// and queues the generation job. The scheduler picks it up on its next tick.
func (a *App) MockupsGenerate(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req mockupGenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.TemplateID == "" || req.SourceKey == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "template_id and source_key required")
		return
	}
	jobType := domain.JobType(req.Type)
	if req.Type == "" {
		jobType = domain.JobTypeGeneration
	}
	if !jobType.Valid() {
		a.error(w, http.StatusBadRequest, "bad_request", "unsupported job type")
		return
	}
	priority := req.Priority
	if priority == 0 {
		priority = defaultPriority
	}
	if priority < minPriority || priority > maxPriority {
		a.error(w, http.StatusBadRequest, "bad_request", "priority out of range")
		return
	}

	now := time.Now().UTC()
	mockup := &domain.Mockup{
		ID:         uuid.NewString(),
		UserID:     userID,
		TemplateID: req.TemplateID,
		SourceKey:  req.SourceKey,
		Status:     domain.MockupStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	job := &domain.GenerationJob{
		ID:               uuid.NewString(),
		MockupID:         mockup.ID,
		UserID:           userID,
		Type:             jobType,
		Status:           domain.JobStatusQueued,
		Priority:         priority,
		MaxAttempts:      a.MaxAttempts,
		QueuedAt:         now,
		EstimatedCredits: jobType.EstimateCredits(),
	}

	// Reserve before creating the job so a job never runs unfunded. A
	// failure after the debit refunds the reservation.
	if _, err := a.Ledger.Debit(r.Context(), userID, job.EstimatedCredits, domain.LedgerReasonJobReserve, job.ID); err != nil {
		if errors.Is(err, domain.ErrInsufficientCredits) {
			a.error(w, http.StatusPaymentRequired, "insufficient_credits", "not enough credits for this operation")
			return
		}
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("mockups: credit reserve failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to reserve credits")
		return
	}

	if err := a.Mockups.Create(r.Context(), mockup); err != nil {
		a.refundReservation(r, userID, job)
		a.Logger.Error().Err(err).Msg("mockups: create failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to create mockup")
		return
	}
	if err := a.Jobs.Create(r.Context(), job); err != nil {
		a.refundReservation(r, userID, job)
		a.Logger.Error().Err(err).Msg("mockups: job enqueue failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to queue job")
		return
	}

	a.Logger.Info().
		Str("job_id", job.ID).
		Str("mockup_id", mockup.ID).
		Str("type", string(jobType)).
		Int("priority", priority).
		Msg("mockups: job queued")
	a.json(w, http.StatusAccepted, mockupGenerateResponse{
		MockupID:         mockup.ID,
		JobID:            job.ID,
		Status:           string(domain.JobStatusQueued),
		EstimatedCredits: job.EstimatedCredits,
	})
}

func (a *App) refundReservation(r *http.Request, userID string, job *domain.GenerationJob) {
	if _, err := a.Ledger.Credit(r.Context(), userID, job.EstimatedCredits, domain.LedgerReasonJobRelease, job.ID); err != nil {
		a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("mockups: reservation refund failed")
	}
}
