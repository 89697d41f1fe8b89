// Package billing ingests signed payment events from the commerce platform
// and applies them to the credit ledger exactly once per logical event.
package billing

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"mockforge/internal/domain"
)

// Event types posted by the commerce platform. charge.succeeded is a legacy
// alias carrying the same metadata shape as payment.succeeded; both families
// are validated identically and deduplicated on the same identifier space.
const (
	EventPaymentSucceeded = "payment.succeeded"
	EventChargeSucceeded  = "charge.succeeded"
	EventPaymentFailed    = "payment.failed"
	EventPaymentRefunded  = "payment.refunded"
)

type event struct {
	Type string    `json:"type"`
	Data eventData `json:"data"`
	// Unix seconds at which the platform emitted the event; informational.
	Timestamp int64 `json:"timestamp"`
}

type eventData struct {
	PaymentID string        `json:"payment_id"`
	RefundID  string        `json:"refund_id"`
	UserID    string        `json:"user_id"`
	Amount    int64         `json:"amount"`
	Currency  string        `json:"currency"`
	Reason    string        `json:"reason"`
	Metadata  eventMetadata `json:"metadata"`
}

type eventMetadata struct {
	CreditsToPurchase int64 `json:"creditsToPurchase"`
	PackSize          int   `json:"packSize"`
}

// Result reports what an acknowledged ingest did.
type Result struct {
	EventType string
	EventID   string
	Applied   bool
	Duplicate bool
	Ignored   bool
}

// Service verifies, deduplicates and applies webhook deliveries.
type Service struct {
	secret []byte
	repo   domain.BillingRepository
	logger zerolog.Logger
}

func NewService(secret string, repo domain.BillingRepository, logger zerolog.Logger) *Service {
	return &Service{secret: []byte(secret), repo: repo, logger: logger}
}

// Ingest processes one webhook delivery. The signature over the raw payload
// bytes is checked before anything is parsed; a mismatch or malformed header
// returns domain.ErrInvalidSignature and the payload never reaches business
// logic. Duplicate deliveries acknowledge without mutating.
func (s *Service) Ingest(ctx context.Context, rawPayload []byte, signature string) (Result, error) {
	if !VerifySignature(s.secret, rawPayload, signature) {
		s.logger.Warn().Msg("webhook: signature rejected")
		return Result{}, domain.ErrInvalidSignature
	}

	var ev event
	if err := json.Unmarshal(rawPayload, &ev); err != nil {
		return Result{}, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}

	switch ev.Type {
	case EventPaymentSucceeded, EventChargeSucceeded:
		return s.applyPurchase(ctx, ev)
	case EventPaymentFailed:
		return s.applyFailure(ctx, ev)
	case EventPaymentRefunded:
		return s.applyRefund(ctx, ev)
	default:
		// Unrecognized types acknowledge and no-op so upstream additions
		// never bounce.
		s.logger.Info().Str("event_type", ev.Type).Msg("webhook: ignoring unrecognized event type")
		return Result{EventType: ev.Type, Ignored: true}, nil
	}
}

func (s *Service) applyPurchase(ctx context.Context, ev event) (Result, error) {
	if ev.Data.PaymentID == "" || ev.Data.UserID == "" {
		return Result{}, fmt.Errorf("%w: %s missing payment_id or user_id", domain.ErrInvalidPayload, ev.Type)
	}
	credits := ev.Data.Metadata.CreditsToPurchase
	if credits <= 0 {
		return Result{}, fmt.Errorf("%w: %s carries no credits", domain.ErrInvalidPayload, ev.Type)
	}

	applied, err := s.repo.CreditPurchase(ctx, ev.Data.PaymentID, ev.Data.UserID, credits)
	if err != nil {
		return Result{}, fmt.Errorf("apply purchase %s: %w", ev.Data.PaymentID, err)
	}
	return s.result(ev.Type, ev.Data.PaymentID, ev.Data.UserID, applied, credits), nil
}

func (s *Service) applyFailure(ctx context.Context, ev event) (Result, error) {
	if ev.Data.PaymentID == "" || ev.Data.UserID == "" {
		return Result{}, fmt.Errorf("%w: %s missing payment_id or user_id", domain.ErrInvalidPayload, ev.Type)
	}

	applied, err := s.repo.RecordPaymentFailure(ctx, ev.Data.PaymentID, ev.Data.UserID, ev.Data.Reason)
	if err != nil {
		return Result{}, fmt.Errorf("record payment failure %s: %w", ev.Data.PaymentID, err)
	}
	return s.result(ev.Type, ev.Data.PaymentID, ev.Data.UserID, applied, 0), nil
}

func (s *Service) applyRefund(ctx context.Context, ev event) (Result, error) {
	eventID := ev.Data.RefundID
	if eventID == "" {
		eventID = ev.Data.PaymentID
	}
	if eventID == "" || ev.Data.UserID == "" {
		return Result{}, fmt.Errorf("%w: %s missing refund_id or user_id", domain.ErrInvalidPayload, ev.Type)
	}
	credits := ev.Data.Metadata.CreditsToPurchase
	if credits <= 0 {
		return Result{}, fmt.Errorf("%w: %s carries no credits", domain.ErrInvalidPayload, ev.Type)
	}

	applied, err := s.repo.RefundPurchase(ctx, eventID, ev.Data.UserID, credits)
	if err != nil {
		return Result{}, fmt.Errorf("apply refund %s: %w", eventID, err)
	}
	return s.result(ev.Type, eventID, ev.Data.UserID, applied, -credits), nil
}

func (s *Service) result(eventType, eventID, userID string, applied bool, delta int64) Result {
	if applied {
		s.logger.Info().
			Str("event_type", eventType).
			Str("event_id", eventID).
			Str("user_id", userID).
			Int64("credits_delta", delta).
			Msg("webhook: event applied")
	} else {
		s.logger.Info().
			Str("event_type", eventType).
			Str("event_id", eventID).
			Msg("webhook: duplicate delivery acknowledged")
	}
	return Result{
		EventType: eventType,
		EventID:   eventID,
		Applied:   applied,
		Duplicate: !applied,
	}
}
