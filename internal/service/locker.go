package service

import (
	"context"

	"github.com/geomark27/autumn-api/internal/domain"
	"github.com/geomark27/autumn-api/internal/repository"
	"github.com/google/uuid"
)

// acquireAccounts takes exclusive row locks on both accounts of a transfer in
// ascending account-id order, regardless of which is source or destination.
// Two concurrent transfers over the same pair in opposite directions always
// lock in the same order, so circular wait cannot occur. The holds last until
// the enclosing transaction commits or aborts.
func acquireAccounts(ctx context.Context, q *repository.Queries, sourceID, destinationID uuid.UUID) (source, destination *domain.Account, err error) {
	firstID, secondID := sourceID, destinationID
	if firstID.String() > secondID.String() {
		firstID, secondID = secondID, firstID
	}

	first, err := q.GetAccountForUpdate(ctx, firstID)
	if err != nil {
		return nil, nil, err
	}
	second, err := q.GetAccountForUpdate(ctx, secondID)
	if err != nil {
		return nil, nil, err
	}

	if first.ID == sourceID {
		return first, second, nil
	}
	return second, first, nil
}
