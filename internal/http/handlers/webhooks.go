package handlers

import (
	"errors"
	"io"
	"net/http"

	"mockforge/internal/domain"
)

const maxWebhookBody = 1 << 20

// PaymentWebhook ingests one delivery from the commerce platform. The raw
// body is read in full before verification because the HMAC covers the
// exact bytes on the wire.
func (a *App) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "unreadable body")
		return
	}

	result, err := a.Webhooks.Ingest(r.Context(), raw, r.Header.Get("signature"))
	switch {
	case err == nil:
		a.json(w, http.StatusOK, map[string]bool{"received": true})
	case errors.Is(err, domain.ErrInvalidSignature):
		a.error(w, http.StatusUnauthorized, "invalid_signature", "signature verification failed")
	case errors.Is(err, domain.ErrInvalidPayload):
		a.error(w, http.StatusBadRequest, "invalid_payload", "payload could not be parsed")
	default:
		a.Logger.Error().Err(err).Str("event_type", result.EventType).Msg("webhook: ingest failed")
		a.error(w, http.StatusInternalServerError, "internal", "webhook processing failed")
	}
}
