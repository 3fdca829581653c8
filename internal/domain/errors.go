package domain

import "errors"

// Caller-visible outcomes. Validation and business errors are rejected with no
// balance mutation; ErrConcurrencyConflict is retryable.
var (
	ErrMissingIdempotencyKey = errors.New("idempotency key is required")

	ErrInvalidAmount       = errors.New("invalid amount")
	ErrSameAccount         = errors.New("source and destination accounts must differ")
	ErrAccountNotFound     = errors.New("account not found")
	ErrTransferNotFound    = errors.New("transfer not found")
	ErrInactiveAccount     = errors.New("account is not active")
	ErrCurrencyMismatch    = errors.New("account currencies do not match")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrDailyLimitExceeded  = errors.New("daily transfer limit exceeded")
	ErrConcurrencyConflict = errors.New("concurrent modification detected, retry the request")
)

// IsBusinessError reports whether err is a business-rule violation that should
// mark the transfer FAILED rather than bubble up as an infrastructure fault.
func IsBusinessError(err error) bool {
	return errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrInactiveAccount) ||
		errors.Is(err, ErrCurrencyMismatch) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrDailyLimitExceeded)
}
