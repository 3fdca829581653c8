package ledger

import (
	"context"
	"fmt"

	"github.com/geomark27/autumn-api/internal/domain"
	"github.com/geomark27/autumn-api/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Writer mutates account balances and records the matching immutable
// double-entry rows. It never acquires locks of its own: every method runs
// against queries bound to a transaction in which the orchestrator already
// holds the account's row lock, and every write is fenced on the account
// version that was read under that lock.
type Writer struct{}

func NewWriter() *Writer {
	return &Writer{}
}

// Debit withdraws amount from acc, raising daily usage, and snapshots the
// post-mutation balance in a DEBIT entry.
func (w *Writer) Debit(ctx context.Context, q *repository.Queries, acc *domain.Account, transferID uuid.UUID, amount decimal.Decimal) (*domain.LedgerEntry, error) {
	if acc.Balance.LessThan(amount) {
		return nil, fmt.Errorf("%w: balance %s, requested %s",
			domain.ErrInsufficientFunds, domain.FormatAmount(acc.Balance), domain.FormatAmount(amount))
	}
	if acc.DailyUsed.Add(amount).GreaterThan(acc.DailyLimit) {
		return nil, fmt.Errorf("%w: used %s of %s, requested %s",
			domain.ErrDailyLimitExceeded, domain.FormatAmount(acc.DailyUsed),
			domain.FormatAmount(acc.DailyLimit), domain.FormatAmount(amount))
	}

	acc.Balance = acc.Balance.Sub(amount)
	acc.DailyUsed = acc.DailyUsed.Add(amount)
	if err := q.UpdateAccountCAS(ctx, acc); err != nil {
		return nil, err
	}

	return w.writeEntry(ctx, q, acc, transferID, domain.EntryTypeDebit, amount)
}

// Credit deposits amount into acc and snapshots the post-mutation balance in
// a CREDIT entry.
func (w *Writer) Credit(ctx context.Context, q *repository.Queries, acc *domain.Account, transferID uuid.UUID, amount decimal.Decimal) (*domain.LedgerEntry, error) {
	if !acc.CanCredit() {
		return nil, fmt.Errorf("%w: account %s is %s", domain.ErrInactiveAccount, acc.AccountNumber, acc.Status)
	}

	acc.Balance = acc.Balance.Add(amount)
	if err := q.UpdateAccountCAS(ctx, acc); err != nil {
		return nil, err
	}

	return w.writeEntry(ctx, q, acc, transferID, domain.EntryTypeCredit, amount)
}

// Reverse undoes a previously applied debit on acc: funds return and the
// daily usage consumed by the original debit is released. Used only by the
// orchestrator's compensation path; the reversal is recorded as a CREDIT
// entry against the same transfer.
func (w *Writer) Reverse(ctx context.Context, q *repository.Queries, acc *domain.Account, transferID uuid.UUID, amount decimal.Decimal) (*domain.LedgerEntry, error) {
	acc.Balance = acc.Balance.Add(amount)
	acc.DailyUsed = acc.DailyUsed.Sub(amount)
	if acc.DailyUsed.IsNegative() {
		acc.DailyUsed = decimal.Zero
	}
	if err := q.UpdateAccountCAS(ctx, acc); err != nil {
		return nil, err
	}

	return w.writeEntry(ctx, q, acc, transferID, domain.EntryTypeCredit, amount)
}

func (w *Writer) writeEntry(ctx context.Context, q *repository.Queries, acc *domain.Account, transferID uuid.UUID, entryType string, amount decimal.Decimal) (*domain.LedgerEntry, error) {
	entry := &domain.LedgerEntry{
		ID:           uuid.New(),
		TransferID:   transferID,
		AccountID:    acc.ID,
		Type:         entryType,
		Amount:       amount,
		BalanceAfter: acc.Balance,
	}
	if err := q.CreateLedgerEntry(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}
