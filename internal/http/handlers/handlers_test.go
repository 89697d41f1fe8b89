package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"mockforge/internal/billing"
	"mockforge/internal/domain"
	"mockforge/internal/progress"
)

type stubJobs struct {
	jobs map[string]*domain.GenerationJob
}

func newStubJobs() *stubJobs {
	return &stubJobs{jobs: make(map[string]*domain.GenerationJob)}
}

func (s *stubJobs) Create(_ context.Context, job *domain.GenerationJob) error {
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *stubJobs) GetByID(_ context.Context, id string) (*domain.GenerationJob, error) {
	if j, ok := s.jobs[id]; ok {
		cp := *j
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (s *stubJobs) GetByMockupID(_ context.Context, mockupID string) (*domain.GenerationJob, error) {
	for _, j := range s.jobs {
		if j.MockupID == mockupID {
			cp := *j
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *stubJobs) ListByIDs(_ context.Context, ids []string) ([]domain.GenerationJob, error) {
	var out []domain.GenerationJob
	for _, id := range ids {
		if j, ok := s.jobs[id]; ok {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (s *stubJobs) ListEligible(context.Context, time.Time, int) ([]domain.GenerationJob, error) {
	return nil, nil
}

func (s *stubJobs) Claim(context.Context, string, time.Time) (*domain.GenerationJob, bool, error) {
	return nil, false, nil
}

func (s *stubJobs) MarkCompleted(context.Context, string, int64, time.Time) error { return nil }
func (s *stubJobs) MarkRetry(context.Context, string, string, time.Time) error { return nil }
func (s *stubJobs) MarkFailed(context.Context, string, string, time.Time) error { return nil }

func (s *stubJobs) Cancel(_ context.Context, id string, now time.Time) error {
	j, ok := s.jobs[id]
	if !ok || j.Status != domain.JobStatusQueued {
		return domain.ErrJobNotCancellable
	}
	j.Status = domain.JobStatusCancelled
	j.CancelledAt = &now
	return nil
}

func (s *stubJobs) ListStuck(context.Context, time.Time) ([]domain.GenerationJob, error) {
	return nil, nil
}

type stubMockups struct {
	mockups map[string]*domain.Mockup
}

func newStubMockups() *stubMockups {
	return &stubMockups{mockups: make(map[string]*domain.Mockup)}
}

func (s *stubMockups) Create(_ context.Context, m *domain.Mockup) error {
	cp := *m
	s.mockups[m.ID] = &cp
	return nil
}

func (s *stubMockups) GetByID(_ context.Context, id string) (*domain.Mockup, error) {
	if m, ok := s.mockups[id]; ok {
		cp := *m
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (s *stubMockups) SetResult(_ context.Context, id, key string) error {
	if m, ok := s.mockups[id]; ok {
		m.ResultKey = key
		m.Status = domain.MockupStatusReady
	}
	return nil
}

func (s *stubMockups) SetStatus(_ context.Context, id string, status domain.MockupStatus) error {
	if m, ok := s.mockups[id]; ok {
		m.Status = status
	}
	return nil
}

type stubLedger struct {
	balance map[string]int64
}

func newStubLedger() *stubLedger {
	return &stubLedger{balance: make(map[string]int64)}
}

func (s *stubLedger) Balance(_ context.Context, userID string) (int64, error) {
	return s.balance[userID], nil
}

func (s *stubLedger) Credit(_ context.Context, userID string, amount int64, _ domain.LedgerReason, _ string) (*domain.LedgerEntry, error) {
	s.balance[userID] += amount
	return &domain.LedgerEntry{UserID: userID, Delta: amount, BalanceAfter: s.balance[userID]}, nil
}

func (s *stubLedger) Debit(_ context.Context, userID string, amount int64, _ domain.LedgerReason, _ string) (*domain.LedgerEntry, error) {
	if s.balance[userID] < amount {
		return nil, domain.ErrInsufficientCredits
	}
	s.balance[userID] -= amount
	return &domain.LedgerEntry{UserID: userID, Delta: -amount, BalanceAfter: s.balance[userID]}, nil
}

func (s *stubLedger) DebitFloored(ctx context.Context, userID string, amount int64, reason domain.LedgerReason, ref string) (*domain.LedgerEntry, error) {
	if s.balance[userID] < amount {
		amount = s.balance[userID]
	}
	return s.Debit(ctx, userID, amount, reason, ref)
}

type stubBilling struct {
	seen    map[string]struct{}
	credits map[string]int64
}

func newStubBilling() *stubBilling {
	return &stubBilling{seen: make(map[string]struct{}), credits: make(map[string]int64)}
}

func (s *stubBilling) dedupe(eventID string) bool {
	if _, ok := s.seen[eventID]; ok {
		return false
	}
	s.seen[eventID] = struct{}{}
	return true
}

func (s *stubBilling) CreditPurchase(_ context.Context, eventID, userID string, credits int64) (bool, error) {
	if !s.dedupe(eventID) {
		return false, nil
	}
	s.credits[userID] += credits
	return true, nil
}

func (s *stubBilling) RecordPaymentFailure(_ context.Context, eventID, _, _ string) (bool, error) {
	return s.dedupe(eventID), nil
}

func (s *stubBilling) RefundPurchase(_ context.Context, eventID, userID string, credits int64) (bool, error) {
	if !s.dedupe(eventID) {
		return false, nil
	}
	s.credits[userID] -= credits
	if s.credits[userID] < 0 {
		s.credits[userID] = 0
	}
	return true, nil
}

const testSecret = "whsec_test"

func newTestApp(t *testing.T) (*App, *stubJobs, *stubMockups, *stubLedger) {
	t.Helper()
	jobs := newStubJobs()
	mockups := newStubMockups()
	ledger := newStubLedger()
	app := &App{
		Jobs:        jobs,
		Mockups:     mockups,
		Ledger:      ledger,
		Webhooks:    billing.NewService(testSecret, newStubBilling(), zerolog.Nop()),
		Progress:    progress.New(jobs, progress.LogNotifier{Logger: zerolog.Nop()}, progress.Config{}, zerolog.Nop()),
		Logger:      zerolog.Nop(),
		MaxAttempts: 3,
	}
	return app, jobs, mockups, ledger
}

func signPayload(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestPaymentWebhookAcknowledges(t *testing.T) {
	app, _, _, _ := newTestApp(t)
	payload := []byte(`{"type":"payment.succeeded","data":{"payment_id":"pay_1","user_id":"user-1","amount":500,"currency":"usd","metadata":{"creditsToPurchase":100,"packSize":1}},"timestamp":1756200000}`)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(payload))
	req.Header.Set("signature", signPayload(payload))
	rec := httptest.NewRecorder()
	app.PaymentWebhook(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if !body["received"] {
		t.Fatalf("body = %s, want received:true", rec.Body.String())
	}
}

func TestPaymentWebhookRejectsBadSignature(t *testing.T) {
	app, _, _, _ := newTestApp(t)
	payload := []byte(`{"type":"payment.succeeded","data":{"payment_id":"pay_1","user_id":"user-1"},"timestamp":1}`)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(payload))
	req.Header.Set("signature", signPayload([]byte("other bytes")))
	rec := httptest.NewRecorder()
	app.PaymentWebhook(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestMockupsGenerate(t *testing.T) {
	app, jobs, mockups, ledger := newTestApp(t)
	ledger.balance["user-1"] = 10

	body := `{"template_id":"tpl-1","source_key":"uploads/shirt.png","type":"generation"}`
	req := httptest.NewRequest(http.MethodPost, "/mockups/generate", strings.NewReader(body))
	req.Header.Set("X-User-ID", "user-1")
	rec := httptest.NewRecorder()
	app.MockupsGenerate(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	var resp mockupGenerateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.JobID == "" || resp.MockupID == "" || resp.Status != "queued" {
		t.Fatalf("response = %+v", resp)
	}

	job, err := jobs.GetByID(context.Background(), resp.JobID)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != domain.JobStatusQueued || job.MaxAttempts != 3 || job.Priority != defaultPriority {
		t.Fatalf("job = %+v", job)
	}
	if _, err := mockups.GetByID(context.Background(), resp.MockupID); err != nil {
		t.Fatalf("mockup missing: %v", err)
	}
	if got := ledger.balance["user-1"]; got != 10-job.EstimatedCredits {
		t.Fatalf("balance = %d, want estimate debited", got)
	}
}

func TestMockupsGenerateInsufficientCredits(t *testing.T) {
	app, _, _, _ := newTestApp(t)

	body := `{"template_id":"tpl-1","source_key":"uploads/shirt.png"}`
	req := httptest.NewRequest(http.MethodPost, "/mockups/generate", strings.NewReader(body))
	req.Header.Set("X-User-ID", "user-broke")
	rec := httptest.NewRecorder()
	app.MockupsGenerate(rec, req)

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", rec.Code)
	}
}

func TestMockupsGenerateValidation(t *testing.T) {
	app, _, _, _ := newTestApp(t)

	tests := []struct {
		name string
		body string
		user string
		want int
	}{
		{"missing user", `{"template_id":"t","source_key":"s"}`, "", http.StatusUnauthorized},
		{"malformed json", `{`, "user-1", http.StatusBadRequest},
		{"missing template", `{"source_key":"s"}`, "user-1", http.StatusBadRequest},
		{"unknown type", `{"template_id":"t","source_key":"s","type":"hologram"}`, "user-1", http.StatusBadRequest},
		{"priority out of range", `{"template_id":"t","source_key":"s","priority":12}`, "user-1", http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/mockups/generate", strings.NewReader(tc.body))
			if tc.user != "" {
				req.Header.Set("X-User-ID", tc.user)
			}
			rec := httptest.NewRecorder()
			app.MockupsGenerate(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func seedJob(jobs *stubJobs, mockups *stubMockups, id, userID string, status domain.JobStatus) {
	jobs.jobs[id] = &domain.GenerationJob{
		ID:               id,
		MockupID:         "mock-" + id,
		UserID:           userID,
		Type:             domain.JobTypeGeneration,
		Status:           status,
		Priority:         defaultPriority,
		MaxAttempts:      3,
		QueuedAt:         time.Now().UTC(),
		EstimatedCredits: 4,
	}
	mockups.mockups["mock-"+id] = &domain.Mockup{
		ID:     "mock-" + id,
		UserID: userID,
		Status: domain.MockupStatusPending,
	}
}

func TestJobStatusByEitherID(t *testing.T) {
	app, jobs, mockups, _ := newTestApp(t)
	seedJob(jobs, mockups, "job-1", "user-1", domain.JobStatusProcessing)

	for _, query := range []string{"jobId=job-1", "mockupId=mock-job-1"} {
		req := httptest.NewRequest(http.MethodGet, "/jobs?"+query, nil)
		req.Header.Set("X-User-ID", "user-1")
		rec := httptest.NewRecorder()
		app.JobStatus(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d, want 200", query, rec.Code)
		}
		var resp struct {
			Job    jobView    `json:"job"`
			Mockup mockupView `json:"mockup"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if resp.Job.ID != "job-1" || resp.Job.Percent != 50 || resp.Mockup.ID != "mock-job-1" {
			t.Fatalf("%s: resp = %+v", query, resp)
		}
	}
}

func TestJobStatusHidesOtherUsersJobs(t *testing.T) {
	app, jobs, mockups, _ := newTestApp(t)
	seedJob(jobs, mockups, "job-1", "user-1", domain.JobStatusQueued)

	req := httptest.NewRequest(http.MethodGet, "/jobs?jobId=job-1", nil)
	req.Header.Set("X-User-ID", "user-2")
	rec := httptest.NewRecorder()
	app.JobStatus(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func cancelRequest(app *App, jobID, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/jobs/"+jobID+"/cancel", nil)
	req.Header.Set("X-User-ID", userID)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("job_id", jobID)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	rec := httptest.NewRecorder()
	app.JobCancel(rec, req)
	return rec
}

func TestJobCancelRefunds(t *testing.T) {
	app, jobs, mockups, ledger := newTestApp(t)
	seedJob(jobs, mockups, "job-1", "user-1", domain.JobStatusQueued)

	rec := cancelRequest(app, "job-1", "user-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	job, _ := jobs.GetByID(context.Background(), "job-1")
	if job.Status != domain.JobStatusCancelled || job.CancelledAt == nil {
		t.Fatalf("job = %+v, want cancelled", job)
	}
	if got := ledger.balance["user-1"]; got != 4 {
		t.Fatalf("balance = %d, want refunded estimate 4", got)
	}
}

func TestJobCancelConflictsWhenProcessing(t *testing.T) {
	app, jobs, mockups, ledger := newTestApp(t)
	seedJob(jobs, mockups, "job-1", "user-1", domain.JobStatusProcessing)

	rec := cancelRequest(app, "job-1", "user-1")
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if got := ledger.balance["user-1"]; got != 0 {
		t.Fatalf("balance = %d, refund issued for uncancelled job", got)
	}
}

func TestJobsProgress(t *testing.T) {
	app, jobs, mockups, _ := newTestApp(t)
	seedJob(jobs, mockups, "job-1", "user-1", domain.JobStatusProcessing)
	seedJob(jobs, mockups, "job-2", "user-1", domain.JobStatusCompleted)

	req := httptest.NewRequest(http.MethodGet, "/jobs/progress?ids=job-1,job-2", nil)
	req.Header.Set("X-User-ID", "user-1")
	rec := httptest.NewRecorder()
	app.JobsProgress(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Jobs []progress.Update `json:"jobs"`
		Done bool              `json:"done"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Jobs) != 2 || resp.Done {
		t.Fatalf("resp = %+v, want two jobs and done=false", resp)
	}
}

func TestHealth(t *testing.T) {
	app, _, _, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/healthz", nil)
	rec := httptest.NewRecorder()
	app.Health(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
