package api

import (
	"github.com/geomark27/autumn-api/internal/api/handler"
	"github.com/geomark27/autumn-api/internal/api/middleware"
	"github.com/geomark27/autumn-api/internal/config"
	"github.com/geomark27/autumn-api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Router struct {
	cfg         *config.Config
	logger      *zap.Logger
	db          *pgxpool.Pool
	redis       redis.Cmdable
	transferSvc *service.TransferService
	accountSvc  *service.AccountService
	verifySvc   *service.VerificationService
}

func NewRouter(
	cfg *config.Config,
	logger *zap.Logger,
	db *pgxpool.Pool,
	redis redis.Cmdable,
	transferSvc *service.TransferService,
	accountSvc *service.AccountService,
	verifySvc *service.VerificationService,
) *Router {
	return &Router{
		cfg:         cfg,
		logger:      logger,
		db:          db,
		redis:       redis,
		transferSvc: transferSvc,
		accountSvc:  accountSvc,
		verifySvc:   verifySvc,
	}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)

	// Handlers
	healthHandler := handler.NewHealthHandler(api.db, api.redis)
	transferHandler := handler.NewTransferHandler(api.transferSvc)
	accountHandler := handler.NewAccountHandler(api.accountSvc)
	auditHandler := handler.NewAuditHandler(api.verifySvc)

	// Operational endpoints, unthrottled.
	r.Get("/healthz", healthHandler.Live)
	r.Get("/readyz", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(api.cfg.PublicRateLimitRPS))

		// Transfers
		r.Post("/transfers", transferHandler.CreateTransfer)
		r.Get("/transfers/generate-key", transferHandler.GenerateKey)
		r.Get("/transfers/account/{accountId}", transferHandler.ListByAccount)
		r.Get("/transfers/{id}", transferHandler.GetTransfer)

		// Accounts
		r.Post("/accounts", accountHandler.OpenAccount)
		r.Get("/accounts/{accountNumber}", accountHandler.GetAccount)
		r.Get("/accounts/{accountNumber}/ledger", accountHandler.GetLedger)

		// Audit
		r.Get("/audit/verify", auditHandler.VerifyChain)
	})

	return r
}
