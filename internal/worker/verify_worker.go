package worker

import (
	"context"
	"sync"
	"time"

	"github.com/geomark27/autumn-api/internal/observability"
	"github.com/geomark27/autumn-api/internal/service"
	"go.uber.org/zap"
)

// VerifyWorker runs periodic audit chain integrity checks.
type VerifyWorker struct {
	svc      *service.VerificationService
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewVerifyWorker constructs a worker with a default hourly interval.
func NewVerifyWorker(svc *service.VerificationService) *VerifyWorker {
	return &VerifyWorker{
		svc:      svc,
		interval: time.Hour,
		stopCh:   make(chan struct{}),
	}
}

// WithInterval updates the run interval.
func (w *VerifyWorker) WithInterval(interval time.Duration) *VerifyWorker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// Start blocks and verifies the chain at the configured interval.
func (w *VerifyWorker) Start(ctx context.Context) {
	zap.L().Info("chain verify worker starting", zap.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Run once immediately at startup.
	w.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("chain verify worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("chain verify worker stop signal received")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// Stop stops the running worker loop.
func (w *VerifyWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *VerifyWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

func (w *VerifyWorker) runOnce(ctx context.Context) {
	if _, err := w.svc.Run(ctx); err != nil {
		observability.IncrementWorkerRun("chain_verify", "failed")
		zap.L().Error("chain verification run failed", zap.Error(err))
		return
	}
	observability.IncrementWorkerRun("chain_verify", "success")
}
