package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/geomark27/autumn-api/internal/audit"
	"github.com/geomark27/autumn-api/internal/domain"
	"github.com/geomark27/autumn-api/internal/idempotency"
	"github.com/geomark27/autumn-api/internal/ledger"
	"github.com/geomark27/autumn-api/internal/observability"
	"github.com/geomark27/autumn-api/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const conflictBackoff = 25 * time.Millisecond

// TransferCommand is a validated funds-transfer request.
type TransferCommand struct {
	IdempotencyKey           uuid.UUID
	SourceAccountNumber      string
	DestinationAccountNumber string
	Amount                   decimal.Decimal
	Description              string
}

// TransferService orchestrates a transfer through its state machine:
// PENDING -> PROCESSING -> {COMPLETED | FAILED}, with COMPENSATED reachable
// from any non-terminal state when a partially applied mutation had to be
// reversed.
type TransferService struct {
	store       *repository.Store
	writer      *ledger.Writer
	gate        *idempotency.Gate
	chain       *audit.Chain
	lockTimeout time.Duration
	maxAttempts int
}

func NewTransferService(store *repository.Store, writer *ledger.Writer, gate *idempotency.Gate, chain *audit.Chain, lockTimeout time.Duration, maxAttempts int) *TransferService {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &TransferService{
		store:       store,
		writer:      writer,
		gate:        gate,
		chain:       chain,
		lockTimeout: lockTimeout,
		maxAttempts: maxAttempts,
	}
}

// CreateTransfer executes one transfer request end to end. A duplicate
// idempotency key returns the prior transfer's current state and never
// touches balances; business-rule violations end FAILED with no mutation;
// a partial mutation that could not complete ends COMPENSATED with funds
// restored. The returned transfer reflects the reached state even when err
// carries the business rejection.
func (s *TransferService) CreateTransfer(ctx context.Context, cmd TransferCommand) (*domain.Transfer, error) {
	if cmd.IdempotencyKey == uuid.Nil {
		return nil, domain.ErrMissingIdempotencyKey
	}
	if !cmd.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidAmount, domain.FormatAmount(cmd.Amount))
	}
	if cmd.SourceAccountNumber == cmd.DestinationAccountNumber {
		return nil, domain.ErrSameAccount
	}

	queries := s.store.Queries()

	// Fast path: the cache answers most duplicates without touching storage.
	if transferID, hit := s.gate.Probe(ctx, cmd.IdempotencyKey); hit {
		if existing, err := queries.GetTransfer(ctx, transferID); err == nil {
			return s.resumeOrReturn(ctx, existing)
		}
	}

	// Authoritative duplicate check against the unique idempotency key.
	if existing, err := queries.GetTransferByIdempotencyKey(ctx, cmd.IdempotencyKey); err == nil {
		observability.IncrementIdempotencyGate("storage_hit")
		return s.resumeOrReturn(ctx, existing)
	} else if !errors.Is(err, domain.ErrTransferNotFound) {
		return nil, err
	}

	source, err := queries.GetAccountByNumber(ctx, cmd.SourceAccountNumber)
	if err != nil {
		return nil, err
	}
	destination, err := queries.GetAccountByNumber(ctx, cmd.DestinationAccountNumber)
	if err != nil {
		return nil, err
	}
	if source.ID == destination.ID {
		return nil, domain.ErrSameAccount
	}
	if source.Currency != destination.Currency {
		return nil, fmt.Errorf("%w: %s vs %s", domain.ErrCurrencyMismatch, source.Currency, destination.Currency)
	}

	transfer := &domain.Transfer{
		ID:                   uuid.New(),
		IdempotencyKey:       cmd.IdempotencyKey,
		SourceAccountID:      source.ID,
		DestinationAccountID: destination.ID,
		Amount:               domain.QuantizeAmount(cmd.Amount),
		Currency:             source.Currency,
		Status:               domain.TransferStatusPending,
		Description:          cmd.Description,
	}
	if err := queries.CreateTransfer(ctx, transfer); err != nil {
		// A rejected write for key collision means a concurrent request won
		// the race: a duplicate, not a failure.
		if repository.IsUniqueViolation(err, "") {
			observability.IncrementIdempotencyGate("constraint_hit")
			existing, lookupErr := queries.GetTransferByIdempotencyKey(ctx, cmd.IdempotencyKey)
			if lookupErr != nil {
				return nil, lookupErr
			}
			return s.resumeOrReturn(ctx, existing)
		}
		return nil, err
	}

	s.appendEvent(ctx, transfer.ID, domain.EventTransferCreated, map[string]any{
		"transfer_id":         transfer.ID,
		"source_account":      cmd.SourceAccountNumber,
		"destination_account": cmd.DestinationAccountNumber,
		"amount":              domain.FormatAmount(transfer.Amount),
		"currency":            transfer.Currency,
	})

	return s.run(ctx, transfer)
}

// resumeOrReturn returns a final transfer unchanged; a non-terminal transfer
// (left PENDING by a crash or an exhausted conflict retry) is driven forward
// instead of being frozen in limbo.
func (s *TransferService) resumeOrReturn(ctx context.Context, transfer *domain.Transfer) (*domain.Transfer, error) {
	if transfer.IsFinal() {
		return transfer, nil
	}
	return s.run(ctx, transfer)
}

// run drives a PENDING transfer to a terminal state, retrying only
// concurrency conflicts, where no mutation is visible to any other party.
func (s *TransferService) run(ctx context.Context, transfer *domain.Transfer) (*domain.Transfer, error) {
	var outcome *execOutcome
	var err error
	for attempt := 1; ; attempt++ {
		outcome, err = s.execute(ctx, transfer)
		if err == nil {
			break
		}
		if repository.IsLockTimeout(err) {
			err = fmt.Errorf("%w: lock wait exceeded", domain.ErrConcurrencyConflict)
		}
		if !errors.Is(err, domain.ErrConcurrencyConflict) || attempt >= s.maxAttempts {
			break
		}
		zap.L().Warn("transfer retrying after concurrency conflict",
			zap.String("transfer_id", transfer.ID.String()),
			zap.Int("attempt", attempt),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(conflictBackoff):
		}
	}

	switch {
	case err == nil && outcome.final != nil:
		// Another executor finished this transfer first; its committed
		// state is the answer.
		return outcome.final, nil

	case err == nil && outcome.compensated:
		s.appendEvent(ctx, transfer.ID, domain.EventTransferCompensated, map[string]any{
			"transfer_id": transfer.ID,
			"reason":      outcome.cause.Error(),
		})
		observability.IncrementTransfer(domain.TransferStatusCompensated)
		transfer.Status = domain.TransferStatusCompensated
		transfer.ErrorMessage = outcome.cause.Error()
		return transfer, outcome.cause

	case err == nil:
		s.appendEvent(ctx, transfer.ID, domain.EventTransferCompleted, map[string]any{
			"transfer_id": transfer.ID,
			"amount":      domain.FormatAmount(transfer.Amount),
		})
		s.gate.Claim(ctx, transfer.IdempotencyKey, transfer.ID)
		observability.IncrementTransfer(domain.TransferStatusCompleted)
		transfer.Status = domain.TransferStatusCompleted
		transfer.CompletedAt = outcome.completedAt
		return transfer, nil

	case domain.IsBusinessError(err):
		s.markFailed(ctx, transfer, err)
		return transfer, err

	default:
		// Concurrency conflict after bounded retry, or an infrastructure
		// fault. The transfer stays PENDING; a client retry with the same
		// idempotency key resumes it.
		return nil, err
	}
}

type execOutcome struct {
	final       *domain.Transfer
	compensated bool
	cause       error
	completedAt *time.Time
	milestones  []milestone
}

// milestone is an audit event recorded during the transaction but chained
// only after it commits, so a rollback leaves no trace of a mutation that
// never happened and no second connection is borrowed while row locks are
// held.
type milestone struct {
	aggregateID uuid.UUID
	eventType   string
	payload     map[string]any
}

func (o *execOutcome) record(aggregateID uuid.UUID, eventType string, payload map[string]any) {
	o.milestones = append(o.milestones, milestone{aggregateID: aggregateID, eventType: eventType, payload: payload})
}

// execute performs the locked read-validate-mutate-write unit as one atomic
// transaction. Nothing it does is visible to anyone unless the transaction
// commits; it commits either fully applied (COMPLETED) or fully reversed
// (COMPENSATED).
func (s *TransferService) execute(ctx context.Context, transfer *domain.Transfer) (*execOutcome, error) {
	outcome := &execOutcome{}

	err := s.store.RunInLockedTx(ctx, s.lockTimeout, func(q *repository.Queries) error {
		// The transfer row lock serializes every executor of this transfer.
		// A duplicate request that lost the race blocks here until the
		// winner commits, then observes the terminal state instead of
		// re-running the mutation.
		stored, err := q.GetTransferForUpdate(ctx, transfer.ID)
		if err != nil {
			return err
		}
		if stored.IsFinal() {
			outcome.final = stored
			return nil
		}

		source, destination, err := acquireAccounts(ctx, q, transfer.SourceAccountID, transfer.DestinationAccountID)
		if err != nil {
			return err
		}

		// Re-validate every business rule under the held locks; on failure
		// the transaction aborts with no mutation applied.
		if err := validateUnderLock(source, destination, transfer.Amount); err != nil {
			return err
		}

		if err := q.UpdateTransferStatus(ctx, transfer.ID, domain.TransferStatusProcessing, "", nil); err != nil {
			return err
		}
		outcome.record(transfer.ID, domain.EventTransferProcessing, map[string]any{
			"transfer_id": transfer.ID,
		})

		debitEntry, err := s.writer.Debit(ctx, q, source, transfer.ID, transfer.Amount)
		if err != nil {
			return err
		}
		outcome.record(source.ID, domain.EventAccountDebited, map[string]any{
			"transfer_id":   transfer.ID,
			"account_id":    source.ID,
			"amount":        domain.FormatAmount(transfer.Amount),
			"balance_after": domain.FormatAmount(debitEntry.BalanceAfter),
		})

		creditEntry, err := s.writer.Credit(ctx, q, destination, transfer.ID, transfer.Amount)
		if err != nil {
			// The debit already applied inside this unit; reverse it and
			// commit the reversal so funds are visibly restored.
			if _, revErr := s.writer.Reverse(ctx, q, source, transfer.ID, transfer.Amount); revErr != nil {
				return fmt.Errorf("compensation failed (%v) after: %w", revErr, err)
			}
			if trErr := q.UpdateTransferStatus(ctx, transfer.ID, domain.TransferStatusCompensated, err.Error(), nil); trErr != nil {
				return trErr
			}
			outcome.compensated = true
			outcome.cause = err
			return nil
		}
		outcome.record(destination.ID, domain.EventAccountCredited, map[string]any{
			"transfer_id":   transfer.ID,
			"account_id":    destination.ID,
			"amount":        domain.FormatAmount(transfer.Amount),
			"balance_after": domain.FormatAmount(creditEntry.BalanceAfter),
		})

		now := time.Now().UTC()
		if err := q.UpdateTransferStatus(ctx, transfer.ID, domain.TransferStatusCompleted, "", &now); err != nil {
			return err
		}
		outcome.completedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, m := range outcome.milestones {
		s.appendEvent(ctx, m.aggregateID, m.eventType, m.payload)
	}
	return outcome, nil
}

func validateUnderLock(source, destination *domain.Account, amount decimal.Decimal) error {
	if source.Status != domain.AccountStatusActive {
		return fmt.Errorf("%w: source account %s is %s", domain.ErrInactiveAccount, source.AccountNumber, source.Status)
	}
	if !destination.CanCredit() {
		return fmt.Errorf("%w: destination account %s is %s", domain.ErrInactiveAccount, destination.AccountNumber, destination.Status)
	}
	if source.Currency != destination.Currency {
		return fmt.Errorf("%w: %s vs %s", domain.ErrCurrencyMismatch, source.Currency, destination.Currency)
	}
	if source.Balance.LessThan(amount) {
		return fmt.Errorf("%w: balance %s, requested %s",
			domain.ErrInsufficientFunds, domain.FormatAmount(source.Balance), domain.FormatAmount(amount))
	}
	if source.DailyUsed.Add(amount).GreaterThan(source.DailyLimit) {
		return fmt.Errorf("%w: used %s of %s",
			domain.ErrDailyLimitExceeded, domain.FormatAmount(source.DailyUsed), domain.FormatAmount(source.DailyLimit))
	}
	return nil
}

// markFailed records the terminal FAILED state in its own transaction.
func (s *TransferService) markFailed(ctx context.Context, transfer *domain.Transfer, cause error) {
	err := s.store.RunInTx(ctx, func(q *repository.Queries) error {
		return q.UpdateTransferStatus(ctx, transfer.ID, domain.TransferStatusFailed, cause.Error(), nil)
	})
	if err != nil {
		zap.L().Error("failed to mark transfer FAILED",
			zap.String("transfer_id", transfer.ID.String()),
			zap.Error(err),
		)
	}
	s.appendEvent(ctx, transfer.ID, domain.EventTransferFailed, map[string]any{
		"transfer_id": transfer.ID,
		"reason":      cause.Error(),
	})
	observability.IncrementTransfer(domain.TransferStatusFailed)
	transfer.Status = domain.TransferStatusFailed
	transfer.ErrorMessage = cause.Error()
}

// appendEvent writes a chain link for a milestone already reached. The chain
// is a forensic record with its own commit boundary: append failures are
// logged loudly but never fail the transfer.
func (s *TransferService) appendEvent(ctx context.Context, aggregateID uuid.UUID, eventType string, payload map[string]any) {
	aggregateType := domain.AggregateTypeTransfer
	if eventType == domain.EventAccountDebited || eventType == domain.EventAccountCredited {
		aggregateType = domain.AggregateTypeAccount
	}
	if _, err := s.chain.Append(ctx, aggregateID, aggregateType, eventType, payload, nil); err != nil {
		zap.L().Error("audit append failed",
			zap.String("event_type", eventType),
			zap.String("aggregate_id", aggregateID.String()),
			zap.Error(err),
		)
	}
}

// GetTransfer returns a transfer by id.
func (s *TransferService) GetTransfer(ctx context.Context, id uuid.UUID) (*domain.Transfer, error) {
	return s.store.Queries().GetTransfer(ctx, id)
}

// GetTransfersByAccount lists transfers where the account is source or
// destination, newest first.
func (s *TransferService) GetTransfersByAccount(ctx context.Context, accountID uuid.UUID, page, pageSize int) ([]domain.Transfer, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	return s.store.Queries().ListTransfersByAccount(ctx, accountID, pageSize, (page-1)*pageSize)
}
