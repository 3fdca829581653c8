package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/geomark27/autumn-api/internal/api"
	"github.com/geomark27/autumn-api/internal/audit"
	"github.com/geomark27/autumn-api/internal/config"
	"github.com/geomark27/autumn-api/internal/db"
	"github.com/geomark27/autumn-api/internal/idempotency"
	"github.com/geomark27/autumn-api/internal/ledger"
	"github.com/geomark27/autumn-api/internal/observability"
	"github.com/geomark27/autumn-api/internal/repository"
	"github.com/geomark27/autumn-api/internal/service"
	"github.com/geomark27/autumn-api/internal/worker"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Run bootstraps the HTTP server and background workers, blocking until
// shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	// The gate is best-effort: a missing cache only disables the fast path.
	redisClient, err := newRedisClient(cfg.RedisURL)
	if err != nil {
		logger.Warn("redis unavailable, idempotency gate degrades to storage constraint", zap.Error(err))
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	store := repository.NewStore(pool)
	chain := audit.NewChain(store)
	writer := ledger.NewWriter()
	var gateCache redis.Cmdable
	if redisClient != nil {
		gateCache = redisClient
	}
	gate := idempotency.NewGate(gateCache, cfg.IdempotencyTTL)

	transferSvc := service.NewTransferService(store, writer, gate, chain, cfg.LockTimeout, cfg.TransferAttempts)
	accountSvc := service.NewAccountService(store)
	verifySvc := service.NewVerificationService(chain)

	verifyWorker := worker.NewVerifyWorker(verifySvc).WithInterval(cfg.VerifyInterval)
	stopVerify := verifyWorker.Run(ctx)

	resetWorker := worker.NewDailyResetWorker(accountSvc)
	stopReset := resetWorker.Run(ctx)

	router := api.NewRouter(cfg, logger, pool, gateCache, transferSvc, accountSvc, verifySvc)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort))
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("stopping workers")
	stopVerify()
	stopReset()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
