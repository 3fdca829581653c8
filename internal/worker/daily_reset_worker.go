package worker

import (
	"context"
	"sync"
	"time"

	"github.com/geomark27/autumn-api/internal/observability"
	"github.com/geomark27/autumn-api/internal/service"
	"go.uber.org/zap"
)

// DailyResetWorker zeroes account daily-usage counters once per day, at the
// first UTC midnight after startup and every 24h thereafter.
type DailyResetWorker struct {
	svc      *service.AccountService
	stopCh   chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

func NewDailyResetWorker(svc *service.AccountService) *DailyResetWorker {
	return &DailyResetWorker{
		svc:    svc,
		stopCh: make(chan struct{}),
		now:    time.Now,
	}
}

// Start blocks until the worker is stopped.
func (w *DailyResetWorker) Start(ctx context.Context) {
	wait := untilNextMidnightUTC(w.now())
	zap.L().Info("daily reset worker starting", zap.Duration("first_run_in", wait))

	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("daily reset worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("daily reset worker stop signal received")
			return
		case <-timer.C:
			w.runOnce(ctx)
			timer.Reset(untilNextMidnightUTC(w.now()))
		}
	}
}

// Stop stops the running worker loop.
func (w *DailyResetWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *DailyResetWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

func (w *DailyResetWorker) runOnce(ctx context.Context) {
	if err := w.svc.ResetDailyUsage(ctx); err != nil {
		observability.IncrementWorkerRun("daily_reset", "failed")
		zap.L().Error("daily usage reset failed", zap.Error(err))
		return
	}
	observability.IncrementWorkerRun("daily_reset", "success")
}

func untilNextMidnightUTC(now time.Time) time.Duration {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
	return next.Sub(now)
}
