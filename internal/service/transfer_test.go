package service

import (
	"context"
	"testing"

	"github.com/geomark27/autumn-api/internal/audit"
	"github.com/geomark27/autumn-api/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransferCompletes(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	svc, store := newTransferService(db)
	ctx := context.Background()

	src := seedAccount(t, store, "ACC-1000000001", "100.0000", "50000.0000")
	dst := seedAccount(t, store, "ACC-1000000002", "0.0000", "50000.0000")

	transfer, err := svc.CreateTransfer(ctx, TransferCommand{
		IdempotencyKey:           uuid.New(),
		SourceAccountNumber:      src.AccountNumber,
		DestinationAccountNumber: dst.AccountNumber,
		Amount:                   dec("50.00"),
		Description:              "rent",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TransferStatusCompleted, transfer.Status)
	require.NotNil(t, transfer.CompletedAt)

	srcAfter, err := store.Queries().GetAccount(ctx, src.ID)
	require.NoError(t, err)
	assert.True(t, srcAfter.Balance.Equal(dec("50.0000")), "source balance %s", srcAfter.Balance)
	assert.True(t, srcAfter.DailyUsed.Equal(dec("50.0000")), "daily used %s", srcAfter.DailyUsed)

	dstAfter, err := store.Queries().GetAccount(ctx, dst.ID)
	require.NoError(t, err)
	assert.True(t, dstAfter.Balance.Equal(dec("50.0000")), "destination balance %s", dstAfter.Balance)

	// Double entry: exactly one DEBIT and one CREDIT, with running balances.
	entries, err := store.Queries().ListLedgerEntriesByAccount(ctx, src.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.EntryTypeDebit, entries[0].Type)
	assert.True(t, entries[0].BalanceAfter.Equal(dec("50.0000")))

	entries, err = store.Queries().ListLedgerEntriesByAccount(ctx, dst.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.EntryTypeCredit, entries[0].Type)
	assert.True(t, entries[0].BalanceAfter.Equal(dec("50.0000")))
}

func TestTransferIdempotentReplay(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	svc, store := newTransferService(db)
	ctx := context.Background()

	src := seedAccount(t, store, "ACC-2000000001", "100.0000", "50000.0000")
	dst := seedAccount(t, store, "ACC-2000000002", "0.0000", "50000.0000")

	cmd := TransferCommand{
		IdempotencyKey:           uuid.New(),
		SourceAccountNumber:      src.AccountNumber,
		DestinationAccountNumber: dst.AccountNumber,
		Amount:                   dec("25.00"),
	}

	first, err := svc.CreateTransfer(ctx, cmd)
	require.NoError(t, err)

	second, err := svc.CreateTransfer(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, domain.TransferStatusCompleted, second.Status)

	// The replay observed state; it must not have re-applied the mutation.
	var transferCount int
	require.NoError(t, db.QueryRow(ctx, "SELECT COUNT(*) FROM transfers").Scan(&transferCount))
	assert.Equal(t, 1, transferCount)

	var entryCount int
	require.NoError(t, db.QueryRow(ctx, "SELECT COUNT(*) FROM ledger_entries").Scan(&entryCount))
	assert.Equal(t, 2, entryCount)

	srcAfter, err := store.Queries().GetAccount(ctx, src.ID)
	require.NoError(t, err)
	assert.True(t, srcAfter.Balance.Equal(dec("75.0000")), "source balance %s", srcAfter.Balance)
}

func TestTransferIdempotentConcurrent(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	svc, store := newTransferService(db)
	ctx := context.Background()

	src := seedAccount(t, store, "ACC-3000000001", "100.0000", "50000.0000")
	dst := seedAccount(t, store, "ACC-3000000002", "0.0000", "50000.0000")

	cmd := TransferCommand{
		IdempotencyKey:           uuid.New(),
		SourceAccountNumber:      src.AccountNumber,
		DestinationAccountNumber: dst.AccountNumber,
		Amount:                   dec("10.00"),
	}

	type result struct {
		transfer *domain.Transfer
		err      error
	}

	n := 8
	results := make(chan result, n)
	for i := 0; i < n; i++ {
		go func() {
			tr, err := svc.CreateTransfer(ctx, cmd)
			results <- result{transfer: tr, err: err}
		}()
	}

	// Every racer, winner or duplicate, gets the same completed transfer.
	var winnerID uuid.UUID
	for i := 0; i < n; i++ {
		res := <-results
		require.NoError(t, res.err)
		require.NotNil(t, res.transfer)
		assert.Equal(t, domain.TransferStatusCompleted, res.transfer.Status)
		if winnerID == uuid.Nil {
			winnerID = res.transfer.ID
		}
		assert.Equal(t, winnerID, res.transfer.ID)
	}

	// Whatever order the racers finished in, the money moved exactly once.
	var transferCount int
	require.NoError(t, db.QueryRow(ctx, "SELECT COUNT(*) FROM transfers").Scan(&transferCount))
	assert.Equal(t, 1, transferCount)

	var entryCount int
	require.NoError(t, db.QueryRow(ctx, "SELECT COUNT(*) FROM ledger_entries").Scan(&entryCount))
	assert.Equal(t, 2, entryCount)

	srcAfter, err := store.Queries().GetAccount(ctx, src.ID)
	require.NoError(t, err)
	assert.True(t, srcAfter.Balance.Equal(dec("90.0000")), "source balance %s", srcAfter.Balance)

	dstAfter, err := store.Queries().GetAccount(ctx, dst.ID)
	require.NoError(t, err)
	assert.True(t, dstAfter.Balance.Equal(dec("10.0000")), "destination balance %s", dstAfter.Balance)
}

func TestReciprocalTransfersNoDeadlock(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	svc, store := newTransferService(db)
	ctx := context.Background()

	a := seedAccount(t, store, "ACC-4000000001", "1000.0000", "50000.0000")
	b := seedAccount(t, store, "ACC-4000000002", "1000.0000", "50000.0000")

	n := 10
	errs := make(chan error, n*2)
	for i := 0; i < n; i++ {
		go func() {
			_, err := svc.CreateTransfer(ctx, TransferCommand{
				IdempotencyKey:           uuid.New(),
				SourceAccountNumber:      a.AccountNumber,
				DestinationAccountNumber: b.AccountNumber,
				Amount:                   dec("10.00"),
			})
			errs <- err
		}()
		go func() {
			_, err := svc.CreateTransfer(ctx, TransferCommand{
				IdempotencyKey:           uuid.New(),
				SourceAccountNumber:      b.AccountNumber,
				DestinationAccountNumber: a.AccountNumber,
				Amount:                   dec("10.00"),
			})
			errs <- err
		}()
	}
	for i := 0; i < n*2; i++ {
		assert.NoError(t, <-errs)
	}

	// n transfers each way cancel out.
	aAfter, err := store.Queries().GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, aAfter.Balance.Equal(dec("1000.0000")), "balance %s", aAfter.Balance)

	bAfter, err := store.Queries().GetAccount(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, bAfter.Balance.Equal(dec("1000.0000")), "balance %s", bAfter.Balance)
}

func TestTransferInsufficientFunds(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	svc, store := newTransferService(db)
	ctx := context.Background()

	src := seedAccount(t, store, "ACC-5000000001", "30.0000", "50000.0000")
	dst := seedAccount(t, store, "ACC-5000000002", "0.0000", "50000.0000")

	transfer, err := svc.CreateTransfer(ctx, TransferCommand{
		IdempotencyKey:           uuid.New(),
		SourceAccountNumber:      src.AccountNumber,
		DestinationAccountNumber: dst.AccountNumber,
		Amount:                   dec("30.01"),
	})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	require.NotNil(t, transfer)
	assert.Equal(t, domain.TransferStatusFailed, transfer.Status)
	assert.NotEmpty(t, transfer.ErrorMessage)

	var entryCount int
	require.NoError(t, db.QueryRow(ctx, "SELECT COUNT(*) FROM ledger_entries").Scan(&entryCount))
	assert.Equal(t, 0, entryCount)

	srcAfter, err := store.Queries().GetAccount(ctx, src.ID)
	require.NoError(t, err)
	assert.True(t, srcAfter.Balance.Equal(dec("30.0000")), "balance %s", srcAfter.Balance)
	assert.True(t, srcAfter.DailyUsed.IsZero(), "daily used %s", srcAfter.DailyUsed)

	// The rolled-back attempt leaves no debit or processing milestones in
	// the chain, only the creation and the terminal failure.
	rows, err := db.Query(ctx, "SELECT event_type FROM audit_events ORDER BY chain_position")
	require.NoError(t, err)
	defer rows.Close()
	var eventTypes []string
	for rows.Next() {
		var et string
		require.NoError(t, rows.Scan(&et))
		eventTypes = append(eventTypes, et)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{domain.EventTransferCreated, domain.EventTransferFailed}, eventTypes)
}

func TestTransferDailyLimit(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	svc, store := newTransferService(db)
	ctx := context.Background()

	src := seedAccount(t, store, "ACC-6000000001", "100.0000", "50.0000")
	dst := seedAccount(t, store, "ACC-6000000002", "0.0000", "50000.0000")

	_, err := db.Exec(ctx, "UPDATE accounts SET daily_used = 40.0000 WHERE id = $1", src.ID)
	require.NoError(t, err)

	// 40 used of 50: a 5.00 transfer fits exactly within the remaining headroom.
	transfer, err := svc.CreateTransfer(ctx, TransferCommand{
		IdempotencyKey:           uuid.New(),
		SourceAccountNumber:      src.AccountNumber,
		DestinationAccountNumber: dst.AccountNumber,
		Amount:                   dec("5.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TransferStatusCompleted, transfer.Status)

	srcAfter, err := store.Queries().GetAccount(ctx, src.ID)
	require.NoError(t, err)
	assert.True(t, srcAfter.Balance.Equal(dec("95.0000")), "balance %s", srcAfter.Balance)
	assert.True(t, srcAfter.DailyUsed.Equal(dec("45.0000")), "daily used %s", srcAfter.DailyUsed)

	// 45 used of 50: a 10.00 transfer breaches the limit and must not move funds.
	transfer, err = svc.CreateTransfer(ctx, TransferCommand{
		IdempotencyKey:           uuid.New(),
		SourceAccountNumber:      src.AccountNumber,
		DestinationAccountNumber: dst.AccountNumber,
		Amount:                   dec("10.00"),
	})
	require.ErrorIs(t, err, domain.ErrDailyLimitExceeded)
	assert.Equal(t, domain.TransferStatusFailed, transfer.Status)

	srcAfter, err = store.Queries().GetAccount(ctx, src.ID)
	require.NoError(t, err)
	assert.True(t, srcAfter.Balance.Equal(dec("95.0000")), "balance %s", srcAfter.Balance)
	assert.True(t, srcAfter.DailyUsed.Equal(dec("45.0000")), "daily used %s", srcAfter.DailyUsed)
}

func TestTransferValidation(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	svc, store := newTransferService(db)
	ctx := context.Background()

	src := seedAccount(t, store, "ACC-7000000001", "100.0000", "50000.0000")

	_, err := svc.CreateTransfer(ctx, TransferCommand{
		SourceAccountNumber:      src.AccountNumber,
		DestinationAccountNumber: "ACC-7000000002",
		Amount:                   dec("10.00"),
	})
	assert.ErrorIs(t, err, domain.ErrMissingIdempotencyKey)

	_, err = svc.CreateTransfer(ctx, TransferCommand{
		IdempotencyKey:           uuid.New(),
		SourceAccountNumber:      src.AccountNumber,
		DestinationAccountNumber: src.AccountNumber,
		Amount:                   dec("10.00"),
	})
	assert.ErrorIs(t, err, domain.ErrSameAccount)

	_, err = svc.CreateTransfer(ctx, TransferCommand{
		IdempotencyKey:           uuid.New(),
		SourceAccountNumber:      src.AccountNumber,
		DestinationAccountNumber: "ACC-7000000002",
		Amount:                   dec("0"),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = svc.CreateTransfer(ctx, TransferCommand{
		IdempotencyKey:           uuid.New(),
		SourceAccountNumber:      src.AccountNumber,
		DestinationAccountNumber: "ACC-does-not-exist",
		Amount:                   dec("10.00"),
	})
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	// No validation failure may leave a transfer row behind.
	var transferCount int
	require.NoError(t, db.QueryRow(ctx, "SELECT COUNT(*) FROM transfers").Scan(&transferCount))
	assert.Equal(t, 0, transferCount)
}

func TestTransferCurrencyMismatch(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	svc, store := newTransferService(db)
	ctx := context.Background()

	src := seedAccount(t, store, "ACC-8000000001", "100.0000", "50000.0000")
	dst := seedAccount(t, store, "ACC-8000000002", "0.0000", "50000.0000")
	_, err := db.Exec(ctx, "UPDATE accounts SET currency = 'EUR' WHERE id = $1", dst.ID)
	require.NoError(t, err)

	_, err = svc.CreateTransfer(ctx, TransferCommand{
		IdempotencyKey:           uuid.New(),
		SourceAccountNumber:      src.AccountNumber,
		DestinationAccountNumber: dst.AccountNumber,
		Amount:                   dec("10.00"),
	})
	assert.ErrorIs(t, err, domain.ErrCurrencyMismatch)
}

func TestCompletedTransferWritesVerifiableChain(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	svc, store := newTransferService(db)
	ctx := context.Background()

	src := seedAccount(t, store, "ACC-9000000001", "100.0000", "50000.0000")
	dst := seedAccount(t, store, "ACC-9000000002", "0.0000", "50000.0000")

	_, err := svc.CreateTransfer(ctx, TransferCommand{
		IdempotencyKey:           uuid.New(),
		SourceAccountNumber:      src.AccountNumber,
		DestinationAccountNumber: dst.AccountNumber,
		Amount:                   dec("12.34"),
	})
	require.NoError(t, err)

	// CREATED, PROCESSING, DEBITED, CREDITED, COMPLETED.
	events, err := store.Queries().ListAuditEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 5)
	assert.Equal(t, domain.EventTransferCreated, events[0].EventType)
	assert.Equal(t, domain.EventTransferCompleted, events[4].EventType)
	assert.Equal(t, domain.GenesisHash, events[0].PreviousHash)

	verifySvc := NewVerificationService(audit.NewChain(store))
	report, err := verifySvc.Run(ctx)
	require.NoError(t, err)
	assert.True(t, report.Valid, "chain invalid: %s", report.Detail)
	assert.Equal(t, 5, report.EventsChecked)
}
