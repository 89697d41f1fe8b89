// Package handlers holds the HTTP surface: webhook ingestion, mockup
// generation, job status and cancellation, progress reads and health.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"mockforge/internal/billing"
	"mockforge/internal/breaker"
	"mockforge/internal/domain"
	"mockforge/internal/progress"
)

// Pinger is the connectivity probe the health endpoint runs; *pgxpool.Pool
// satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ProgressReader serves the progress aggregation read; *progress.Tracker
// satisfies it.
type ProgressReader interface {
	Snapshot(ctx context.Context, jobIDs []string) ([]progress.Update, error)
}

type App struct {
	Jobs     domain.JobRepository
	Mockups  domain.MockupRepository
	Ledger   domain.LedgerRepository
	Webhooks *billing.Service
	Progress ProgressReader
	Breakers *breaker.Registry
	DB       Pinger
	Logger   zerolog.Logger

	MaxAttempts int
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]string{"error": errCode, "message": message})
}

// currentUserID trusts the X-User-ID header set by the edge proxy after
// authentication. The API itself never sees credentials.
func (a *App) currentUserID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}
