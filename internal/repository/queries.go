package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/geomark27/autumn-api/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx so the same query set runs
// with or without an enclosing transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a query set bound to tx.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

const accountColumns = `id, account_number, owner_name, owner_email, balance, currency, status, daily_limit, daily_used, version, created_at, updated_at`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	acc := &domain.Account{}
	err := row.Scan(&acc.ID, &acc.AccountNumber, &acc.OwnerName, &acc.OwnerEmail,
		&acc.Balance, &acc.Currency, &acc.Status, &acc.DailyLimit, &acc.DailyUsed,
		&acc.Version, &acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return acc, nil
}

func (q *Queries) CreateAccount(ctx context.Context, acc *domain.Account) error {
	query := `
		INSERT INTO accounts (id, account_number, owner_name, owner_email, balance, currency, status, daily_limit, daily_used, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1, NOW(), NOW())
		RETURNING version, created_at, updated_at`
	err := q.db.QueryRow(ctx, query, acc.ID, acc.AccountNumber, acc.OwnerName, acc.OwnerEmail,
		acc.Balance, acc.Currency, acc.Status, acc.DailyLimit, acc.DailyUsed).
		Scan(&acc.Version, &acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (q *Queries) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	acc, err := scanAccount(q.db.QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return acc, nil
}

func (q *Queries) GetAccountByNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE account_number = $1`
	acc, err := scanAccount(q.db.QueryRow(ctx, query, accountNumber))
	if err != nil {
		if IsNoRows(err) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account by number: %w", err)
	}
	return acc, nil
}

// GetAccountForUpdate acquires an exclusive row lock on the account for the
// duration of the enclosing transaction.
func (q *Queries) GetAccountForUpdate(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`
	acc, err := scanAccount(q.db.QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("lock account %s: %w", id, err)
	}
	return acc, nil
}

// UpdateAccountCAS writes balance and daily usage fenced on the version the
// caller read. A stale version matches zero rows and surfaces as a
// concurrency conflict; on success the in-memory version is advanced.
func (q *Queries) UpdateAccountCAS(ctx context.Context, acc *domain.Account) error {
	query := `
		UPDATE accounts
		SET balance = $1, daily_used = $2, status = $3, version = version + 1, updated_at = NOW()
		WHERE id = $4 AND version = $5`
	tag, err := q.db.Exec(ctx, query, acc.Balance, acc.DailyUsed, acc.Status, acc.ID, acc.Version)
	if err != nil {
		return fmt.Errorf("update account %s: %w", acc.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConcurrencyConflict
	}
	acc.Version++
	return nil
}

// ResetDailyUsage zeroes daily_used for every account, returning the number
// of rows touched. Runs from the nightly reset worker.
func (q *Queries) ResetDailyUsage(ctx context.Context) (int64, error) {
	tag, err := q.db.Exec(ctx, `UPDATE accounts SET daily_used = 0, version = version + 1, updated_at = NOW() WHERE daily_used <> 0`)
	if err != nil {
		return 0, fmt.Errorf("reset daily usage: %w", err)
	}
	return tag.RowsAffected(), nil
}

const transferColumns = `id, idempotency_key, source_account_id, destination_account_id, amount, currency, status, description, error_message, requires_approval, created_at, updated_at, completed_at`

func scanTransfer(row pgx.Row) (*domain.Transfer, error) {
	tr := &domain.Transfer{}
	err := row.Scan(&tr.ID, &tr.IdempotencyKey, &tr.SourceAccountID, &tr.DestinationAccountID,
		&tr.Amount, &tr.Currency, &tr.Status, &tr.Description, &tr.ErrorMessage,
		&tr.RequiresApproval, &tr.CreatedAt, &tr.UpdatedAt, &tr.CompletedAt)
	if err != nil {
		return nil, err
	}
	return tr, nil
}

func (q *Queries) CreateTransfer(ctx context.Context, tr *domain.Transfer) error {
	query := `
		INSERT INTO transfers (id, idempotency_key, source_account_id, destination_account_id, amount, currency, status, description, requires_approval, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		RETURNING created_at, updated_at`
	err := q.db.QueryRow(ctx, query, tr.ID, tr.IdempotencyKey, tr.SourceAccountID, tr.DestinationAccountID,
		tr.Amount, tr.Currency, tr.Status, tr.Description, tr.RequiresApproval).
		Scan(&tr.CreatedAt, &tr.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create transfer: %w", err)
	}
	return nil
}

func (q *Queries) GetTransfer(ctx context.Context, id uuid.UUID) (*domain.Transfer, error) {
	query := `SELECT ` + transferColumns + ` FROM transfers WHERE id = $1`
	tr, err := scanTransfer(q.db.QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, domain.ErrTransferNotFound
		}
		return nil, fmt.Errorf("get transfer: %w", err)
	}
	return tr, nil
}

func (q *Queries) GetTransferByIdempotencyKey(ctx context.Context, key uuid.UUID) (*domain.Transfer, error) {
	query := `SELECT ` + transferColumns + ` FROM transfers WHERE idempotency_key = $1`
	tr, err := scanTransfer(q.db.QueryRow(ctx, query, key))
	if err != nil {
		if IsNoRows(err) {
			return nil, domain.ErrTransferNotFound
		}
		return nil, fmt.Errorf("get transfer by idempotency key: %w", err)
	}
	return tr, nil
}

// GetTransferForUpdate acquires an exclusive row lock on the transfer for
// the duration of the enclosing transaction, serializing all executors of
// the same transfer.
func (q *Queries) GetTransferForUpdate(ctx context.Context, id uuid.UUID) (*domain.Transfer, error) {
	query := `SELECT ` + transferColumns + ` FROM transfers WHERE id = $1 FOR UPDATE`
	tr, err := scanTransfer(q.db.QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, domain.ErrTransferNotFound
		}
		return nil, fmt.Errorf("lock transfer %s: %w", id, err)
	}
	return tr, nil
}

func (q *Queries) ListTransfersByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.Transfer, error) {
	query := `
		SELECT ` + transferColumns + `
		FROM transfers
		WHERE source_account_id = $1 OR destination_account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`
	rows, err := q.db.Query(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	defer rows.Close()

	var transfers []domain.Transfer
	for rows.Next() {
		tr, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transfer: %w", err)
		}
		transfers = append(transfers, *tr)
	}
	return transfers, rows.Err()
}

// UpdateTransferStatus moves a transfer to next after checking the state
// machine against the currently stored status.
func (q *Queries) UpdateTransferStatus(ctx context.Context, id uuid.UUID, next, errorMessage string, completedAt *time.Time) error {
	var current string
	if err := q.db.QueryRow(ctx, `SELECT status FROM transfers WHERE id = $1 FOR UPDATE`, id).Scan(&current); err != nil {
		if IsNoRows(err) {
			return domain.ErrTransferNotFound
		}
		return fmt.Errorf("get transfer status: %w", err)
	}
	if current == next {
		return nil
	}
	if err := domain.ValidateTransition(current, next); err != nil {
		return err
	}

	query := `
		UPDATE transfers
		SET status = $1, error_message = $2, completed_at = $3, updated_at = NOW()
		WHERE id = $4`
	if _, err := q.db.Exec(ctx, query, next, errorMessage, completedAt, id); err != nil {
		return fmt.Errorf("update transfer status: %w", err)
	}
	return nil
}

func (q *Queries) CreateLedgerEntry(ctx context.Context, entry *domain.LedgerEntry) error {
	query := `
		INSERT INTO ledger_entries (id, transfer_id, account_id, type, amount, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING created_at`
	err := q.db.QueryRow(ctx, query, entry.ID, entry.TransferID, entry.AccountID,
		entry.Type, entry.Amount, entry.BalanceAfter).Scan(&entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("create ledger entry: %w", err)
	}
	return nil
}

func (q *Queries) ListLedgerEntriesByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, error) {
	query := `
		SELECT id, transfer_id, account_id, type, amount, balance_after, created_at
		FROM ledger_entries
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`
	rows, err := q.db.Query(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.ID, &e.TransferID, &e.AccountID, &e.Type, &e.Amount, &e.BalanceAfter, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// auditChainLockKey is the advisory lock key serializing all chain appends.
const auditChainLockKey = 815042023

// AcquireChainLock takes the exclusive chain-tail lock for the duration of
// the enclosing transaction. Must only be called inside RunInTx.
func (q *Queries) AcquireChainLock(ctx context.Context) error {
	if _, err := q.db.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, auditChainLockKey); err != nil {
		return fmt.Errorf("acquire chain lock: %w", err)
	}
	return nil
}

// GetLatestEventHash returns the event_hash of the newest chain link, or the
// genesis sentinel when the chain is empty.
func (q *Queries) GetLatestEventHash(ctx context.Context) (string, error) {
	var hash string
	err := q.db.QueryRow(ctx, `SELECT event_hash FROM audit_events ORDER BY chain_position DESC LIMIT 1`).Scan(&hash)
	if err != nil {
		if IsNoRows(err) {
			return domain.GenesisHash, nil
		}
		return "", fmt.Errorf("get latest event hash: %w", err)
	}
	return hash, nil
}

func (q *Queries) InsertAuditEvent(ctx context.Context, ev *domain.AuditEvent) error {
	query := `
		INSERT INTO audit_events (id, aggregate_id, aggregate_type, event_type, payload, event_hash, previous_hash, user_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING chain_position`
	err := q.db.QueryRow(ctx, query, ev.ID, ev.AggregateID, ev.AggregateType, ev.EventType,
		ev.Payload, ev.EventHash, ev.PreviousHash, ev.UserID, ev.CreatedAt).Scan(&ev.ChainPosition)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListAuditEvents scans the whole chain in creation order.
func (q *Queries) ListAuditEvents(ctx context.Context) ([]domain.AuditEvent, error) {
	query := `
		SELECT id, chain_position, aggregate_id, aggregate_type, event_type, payload, event_hash, previous_hash, user_id, created_at
		FROM audit_events
		ORDER BY chain_position ASC`
	rows, err := q.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []domain.AuditEvent
	for rows.Next() {
		var ev domain.AuditEvent
		if err := rows.Scan(&ev.ID, &ev.ChainPosition, &ev.AggregateID, &ev.AggregateType,
			&ev.EventType, &ev.Payload, &ev.EventHash, &ev.PreviousHash, &ev.UserID, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
