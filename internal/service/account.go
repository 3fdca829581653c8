package service

import (
	"context"
	"fmt"

	"github.com/geomark27/autumn-api/internal/domain"
	"github.com/geomark27/autumn-api/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// defaultDailyLimit applies when account opening does not specify one.
var defaultDailyLimit = decimal.RequireFromString("50000.00")

type AccountService struct {
	store *repository.Store
}

func NewAccountService(store *repository.Store) *AccountService {
	return &AccountService{store: store}
}

type OpenAccountCommand struct {
	AccountNumber  string
	OwnerName      string
	OwnerEmail     string
	Currency       string
	OpeningBalance decimal.Decimal
	DailyLimit     decimal.Decimal
}

func (s *AccountService) OpenAccount(ctx context.Context, cmd OpenAccountCommand) (*domain.Account, error) {
	if !domain.IsSupportedCurrency(cmd.Currency) {
		return nil, fmt.Errorf("%w: unsupported currency %q", domain.ErrCurrencyMismatch, cmd.Currency)
	}
	if cmd.OpeningBalance.IsNegative() {
		return nil, fmt.Errorf("%w: opening balance may not be negative", domain.ErrInvalidAmount)
	}

	limit := cmd.DailyLimit
	if limit.IsZero() {
		limit = defaultDailyLimit
	}

	account := &domain.Account{
		ID:            uuid.New(),
		AccountNumber: cmd.AccountNumber,
		OwnerName:     cmd.OwnerName,
		OwnerEmail:    cmd.OwnerEmail,
		Balance:       domain.QuantizeAmount(cmd.OpeningBalance),
		Currency:      cmd.Currency,
		Status:        domain.AccountStatusActive,
		DailyLimit:    domain.QuantizeAmount(limit),
		DailyUsed:     decimal.Zero,
	}
	if err := s.store.Queries().CreateAccount(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

func (s *AccountService) GetByNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	return s.store.Queries().GetAccountByNumber(ctx, accountNumber)
}

// GetLedger returns the account's ledger entries, newest first. Replaying
// balance_after in creation order reconstructs the full balance history.
func (s *AccountService) GetLedger(ctx context.Context, accountNumber string, page, pageSize int) ([]domain.LedgerEntry, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	account, err := s.store.Queries().GetAccountByNumber(ctx, accountNumber)
	if err != nil {
		return nil, err
	}
	return s.store.Queries().ListLedgerEntriesByAccount(ctx, account.ID, pageSize, (page-1)*pageSize)
}

// ResetDailyUsage zeroes every account's daily_used counter. Runs nightly.
func (s *AccountService) ResetDailyUsage(ctx context.Context) error {
	n, err := s.store.Queries().ResetDailyUsage(ctx)
	if err != nil {
		return err
	}
	zap.L().Info("daily usage reset", zap.Int64("accounts", n))
	return nil
}
