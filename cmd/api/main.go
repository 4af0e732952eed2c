package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tutor-payment-engine/config"
	"tutor-payment-engine/internal/adapter/gateway"
	httpHandler "tutor-payment-engine/internal/adapter/http/handler"
	pgStorage "tutor-payment-engine/internal/adapter/storage/postgres"
	redisStorage "tutor-payment-engine/internal/adapter/storage/redis"
	"tutor-payment-engine/internal/core/ports"
	"tutor-payment-engine/internal/service"
	"tutor-payment-engine/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting Tutor Payment Engine")

	ctx := context.Background()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Initialize repositories
	txRepo := pgStorage.NewTransactionRepo(pool)
	escrowRepo := pgStorage.NewEscrowRepo(pool)
	idempotencyRepo := pgStorage.NewIdempotencyRepo(pool)
	walletRepo := pgStorage.NewWalletRepo(pool)
	auditRepo := pgStorage.NewAuditRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Initialize Redis stores
	idempotencyCache := redisStorage.NewIdempotencyCache(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Initialize gateway adapters
	momoAdapter := gateway.NewMoMoAdapter(cfg.MoMo, &http.Client{Timeout: 10 * time.Second}, log)
	vnpayAdapter := gateway.NewVNPayAdapter(cfg.VNPay, log)
	adapters := []ports.GatewayAdapter{momoAdapter, vnpayAdapter}

	// Initialize core services
	hashSvc := service.NewArgon2HashService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)

	// Initialize business services
	authSvc := service.NewAuthService(cfg.Dashboard, hashSvc, tokenSvc)
	paymentSvc := service.NewPaymentService(
		txRepo,
		escrowRepo,
		idempotencyRepo,
		idempotencyCache,
		adapters,
		transactor,
		cfg.Escrow,
		log,
	)
	escrowSvc := service.NewEscrowService(txRepo, escrowRepo, transactor, log)
	payoutSvc := service.NewPayoutService(txRepo, transactor, cfg.Payout, log)
	reportingSvc := service.NewReportingService(txRepo, walletRepo)
	auditSvc := service.NewAuditService(auditRepo, log)
	sweeperSvc := service.NewSweeperService(txRepo, cfg.Sweeper, log)

	// Initialize health checkers
	pgHealth := pgStorage.NewHealth(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		AuthSvc:        authSvc,
		PaymentSvc:     paymentSvc,
		EscrowSvc:      escrowSvc,
		PayoutSvc:      payoutSvc,
		ReportingSvc:   reportingSvc,
		AuditSvc:       auditSvc,
		TokenSvc:       tokenSvc,
		Adapters:       adapters,
		RateLimitStore: rateLimitStore,
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth},
		Logger:         log,
	})

	// Background loops run until shutdown: the stale-pending sweeper
	// and the scheduled payout batcher.
	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	go sweeperSvc.Run(workerCtx)
	go payoutSvc.Run(workerCtx)

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	stopWorkers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
