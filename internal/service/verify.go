package service

import (
	"context"

	"github.com/geomark27/autumn-api/internal/audit"
	"github.com/geomark27/autumn-api/internal/observability"
	"go.uber.org/zap"
)

// VerificationService runs audit chain integrity checks. It reads only, so
// it never interferes with live traffic; an integrity failure is surfaced
// loudly and counted, never swallowed.
type VerificationService struct {
	chain *audit.Chain
}

func NewVerificationService(chain *audit.Chain) *VerificationService {
	return &VerificationService{chain: chain}
}

func (s *VerificationService) Run(ctx context.Context) (*audit.Report, error) {
	report, err := s.chain.Verify(ctx)
	if err != nil {
		return nil, err
	}

	if !report.Valid {
		observability.IncrementChainIntegrityFailure()
		zap.L().Error("CRITICAL: audit chain integrity compromised",
			zap.Stringer("bad_event_id", report.BadEventID),
			zap.Int("events_checked", report.EventsChecked),
			zap.String("detail", report.Detail),
		)
		return report, nil
	}

	zap.L().Info("audit chain verified", zap.Int("events_checked", report.EventsChecked))
	return report, nil
}
