package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"mockforge/internal/http/handlers"
	"mockforge/internal/middleware"
	"mockforge/internal/ratelimit"
)

func NewRouter(app *handlers.App, limiter *ratelimit.Limiter, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(logger),
	)

	// Health
	r.Get("/v1/healthz", app.Health)

	// Webhooks verify their own signature; the rate limiter would only
	// punish the commerce platform's retry behavior.
	r.Post("/webhooks/payment", app.PaymentWebhook)

	// Reads stay unthrottled so status polling cannot lock a client out
	// of its own jobs.
	r.Get("/jobs", app.JobStatus)
	r.Get("/jobs/progress", app.JobsProgress)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(limiter, logger))

		r.Post("/mockups/generate", app.MockupsGenerate)
		r.Post("/jobs/{job_id}/cancel", app.JobCancel)
	})

	return r
}
