package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrBreakerOpen         = errors.New("circuit breaker open")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrInvalidSignature    = errors.New("invalid signature")
	ErrInvalidPayload      = errors.New("invalid payload")
	ErrDuplicateEvent      = errors.New("duplicate event")
	ErrJobNotCancellable   = errors.New("job not cancellable")
)
