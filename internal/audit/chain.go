package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/geomark27/autumn-api/internal/domain"
	"github.com/geomark27/autumn-api/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// hashTimeLayout renders the event timestamp inside the hash input. Events
// are stamped at microsecond precision so the stored timestamptz round-trips
// byte-for-byte through this layout during verification.
const hashTimeLayout = time.RFC3339Nano

const appendAttempts = 3

// Chain appends and verifies the hash-linked audit log. Every append reads
// the latest chain hash and inserts the next link under an exclusive advisory
// lock on the chain tail, so appends are totally ordered system-wide. Each
// append commits in its own transaction, independent of any business
// transaction in flight.
type Chain struct {
	store *repository.Store
}

func NewChain(store *repository.Store) *Chain {
	return &Chain{store: store}
}

// ComputeEventHash derives the SHA-256 link hash from the predecessor hash
// and the event fields. The timestamp is normalized to UTC before rendering
// so the hash does not depend on the location a scanned timestamptz carries.
func ComputeEventHash(previousHash string, aggregateID uuid.UUID, eventType, payload string, createdAt time.Time) string {
	data := previousHash + "|" +
		aggregateID.String() + "|" +
		eventType + "|" +
		payload + "|" +
		createdAt.UTC().Format(hashTimeLayout)
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// Append serializes payload, links it to the current chain tail and inserts
// the event. Infrastructure failures are retried a bounded number of times;
// the returned error is only for callers that must not lose the record.
func (c *Chain) Append(ctx context.Context, aggregateID uuid.UUID, aggregateType, eventType string, payload any, userID *uuid.UUID) (*domain.AuditEvent, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal audit payload: %w", err)
	}

	var appended *domain.AuditEvent
	for attempt := 1; ; attempt++ {
		appended, err = c.appendOnce(ctx, aggregateID, aggregateType, eventType, string(body), userID)
		if err == nil {
			return appended, nil
		}
		if attempt >= appendAttempts || ctx.Err() != nil {
			return nil, fmt.Errorf("append audit event %s: %w", eventType, err)
		}
		zap.L().Warn("audit append retrying",
			zap.String("event_type", eventType),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}

func (c *Chain) appendOnce(ctx context.Context, aggregateID uuid.UUID, aggregateType, eventType, payload string, userID *uuid.UUID) (*domain.AuditEvent, error) {
	ev := &domain.AuditEvent{
		ID:            uuid.New(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Payload:       payload,
		UserID:        userID,
	}

	err := c.store.RunInTx(ctx, func(q *repository.Queries) error {
		if err := q.AcquireChainLock(ctx); err != nil {
			return err
		}
		prev, err := q.GetLatestEventHash(ctx)
		if err != nil {
			return err
		}
		ev.PreviousHash = prev
		ev.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
		ev.EventHash = ComputeEventHash(prev, aggregateID, eventType, payload, ev.CreatedAt)
		return q.InsertAuditEvent(ctx, ev)
	})
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// Report is the outcome of a chain verification pass.
type Report struct {
	Valid         bool       `json:"valid"`
	EventsChecked int        `json:"events_checked"`
	BadEventID    *uuid.UUID `json:"bad_event_id,omitempty"`
	Detail        string     `json:"detail,omitempty"`
}

// Verify recomputes every link hash in creation order and checks each
// previous_hash against its predecessor. It stops at the first mismatch and
// never mutates the chain.
func (c *Chain) Verify(ctx context.Context) (*Report, error) {
	events, err := c.store.Queries().ListAuditEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("load audit chain: %w", err)
	}

	prev := domain.GenesisHash
	for i := range events {
		ev := &events[i]
		if ev.PreviousHash != prev {
			return &Report{
				Valid:         false,
				EventsChecked: i + 1,
				BadEventID:    &ev.ID,
				Detail:        fmt.Sprintf("previous_hash of event %s does not match chain order", ev.ID),
			}, nil
		}
		recomputed := ComputeEventHash(ev.PreviousHash, ev.AggregateID, ev.EventType, ev.Payload, ev.CreatedAt)
		if recomputed != ev.EventHash {
			return &Report{
				Valid:         false,
				EventsChecked: i + 1,
				BadEventID:    &ev.ID,
				Detail:        fmt.Sprintf("stored hash of event %s does not match recomputation", ev.ID),
			}, nil
		}
		prev = ev.EventHash
	}

	return &Report{Valid: true, EventsChecked: len(events)}, nil
}
