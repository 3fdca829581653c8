package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Account struct {
	ID            uuid.UUID       `json:"id"`
	AccountNumber string          `json:"account_number"`
	OwnerName     string          `json:"owner_name"`
	OwnerEmail    string          `json:"owner_email"`
	Balance       decimal.Decimal `json:"balance"`
	Currency      string          `json:"currency"`
	Status        string          `json:"status"`
	DailyLimit    decimal.Decimal `json:"daily_limit"`
	DailyUsed     decimal.Decimal `json:"daily_used"`
	Version       int64           `json:"version"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// CanDebit reports whether amount can leave the account right now: the
// account is active, covered by the balance, and within the daily limit.
func (a *Account) CanDebit(amount decimal.Decimal) bool {
	if a.Status != AccountStatusActive {
		return false
	}
	if a.Balance.LessThan(amount) {
		return false
	}
	return a.DailyUsed.Add(amount).LessThanOrEqual(a.DailyLimit)
}

// CanCredit reports whether the account may receive funds.
func (a *Account) CanCredit() bool {
	return a.Status == AccountStatusActive
}

type Transfer struct {
	ID                   uuid.UUID       `json:"id"`
	IdempotencyKey       uuid.UUID       `json:"idempotency_key"`
	SourceAccountID      uuid.UUID       `json:"source_account_id"`
	DestinationAccountID uuid.UUID       `json:"destination_account_id"`
	Amount               decimal.Decimal `json:"amount"`
	Currency             string          `json:"currency"`
	Status               string          `json:"status"`
	Description          string          `json:"description"`
	ErrorMessage         string          `json:"error_message,omitempty"`
	RequiresApproval     bool            `json:"requires_approval"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
	CompletedAt          *time.Time      `json:"completed_at,omitempty"`
}

// IsFinal reports whether the transfer reached a terminal state.
func (t *Transfer) IsFinal() bool {
	switch t.Status {
	case TransferStatusCompleted, TransferStatusFailed, TransferStatusCompensated:
		return true
	}
	return false
}

type LedgerEntry struct {
	ID           uuid.UUID       `json:"id"`
	TransferID   uuid.UUID       `json:"transfer_id"`
	AccountID    uuid.UUID       `json:"account_id"`
	Type         string          `json:"type"` // DEBIT or CREDIT
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	CreatedAt    time.Time       `json:"created_at"`
}

// AuditEvent is one link of the hash chain. Payload is the canonical JSON
// string that was hashed; it must be stored byte for byte.
type AuditEvent struct {
	ID            uuid.UUID  `json:"id"`
	ChainPosition int64      `json:"chain_position"`
	AggregateID   uuid.UUID  `json:"aggregate_id"`
	AggregateType string     `json:"aggregate_type"`
	EventType     string     `json:"event_type"`
	Payload       string     `json:"payload"`
	EventHash     string     `json:"event_hash"`
	PreviousHash  string     `json:"previous_hash"`
	UserID        *uuid.UUID `json:"user_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
