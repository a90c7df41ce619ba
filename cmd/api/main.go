package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wallet-ledger/config"
	httpHandler "wallet-ledger/internal/adapter/http/handler"
	"wallet-ledger/internal/adapter/messaging/amqp"
	redisStorage "wallet-ledger/internal/adapter/storage/redis"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/internal/service"
	"wallet-ledger/pkg/logger"
	"wallet-ledger/pkg/metrics"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)
	if cfg.JWT.Secret == "" {
		log.Fatal().Msg("jwt.secret must be set (WL_JWT_SECRET)")
	}
	gin.SetMode(cfg.Server.Mode)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Str("driver", cfg.Database.Driver).
		Int("port", cfg.Server.Port).
		Msg("Starting Wallet Ledger")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openStorage(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer db.close()

	healthCheckers := []ports.HealthChecker{db.health}
	collector := metrics.NewCollector()

	// Redis is optional: without it idempotency falls back to the database
	// and rate limiting is off.
	var (
		idempCache     ports.IdempotencyCache
		rateLimitStore *redisStorage.RateLimitStore
	)
	if cfg.Redis.Enabled {
		rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
		idempCache = redisStorage.NewIdempotencyCache(rdb)
		rateLimitStore = redisStorage.NewRateLimitStore(rdb)
		healthCheckers = append(healthCheckers, redisStorage.NewHealthCheck(rdb))
		log.Info().Msg("Redis connected")
	}

	var events ports.EventPublisher
	if cfg.AMQP.URL != "" {
		publisher, err := amqp.Dial(cfg.AMQP.URL, cfg.AMQP.Exchange, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to RabbitMQ")
		}
		defer publisher.Close()
		events = publisher
	}

	// Core services
	hashSvc := service.NewArgon2HashService(service.DefaultArgon2Params)
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	resolver := service.NewIdentityResolver(cfg.Ledger.DefaultRegion)
	auditSvc := service.NewAuditService(db.audit, logger.Component(log, "audit"))

	accountSvc := service.NewAccountService(db.store, db.accounts, hashSvc, tokenSvc, service.AccountConfig{
		StartingBalance: cfg.Ledger.StartingBalance,
		Region:          cfg.Ledger.DefaultRegion,
	}, logger.Component(log, "accounts"))
	transferSvc := service.NewTransferService(db.store, resolver, idempCache, events, collector, service.TransferConfig{
		MinCashIn:      cfg.Ledger.MinCashIn,
		MintCashIn:     cfg.Ledger.CashInMode == config.CashInModeMint,
		MaxAttempts:    cfg.Ledger.MaxAttempts,
		RetryBackoff:   cfg.Ledger.RetryBackoff,
		IdempotencyTTL: cfg.Ledger.IdempotencyTTL,
	}, logger.Component(log, "transfers"))
	reportingSvc := service.NewReportingService(db.txns, db.wallets)

	if cfg.Admin.Email != "" {
		if _, err := accountSvc.EnsureAdmin(ctx, ports.RegisterRequest{
			Name:     cfg.Admin.Name,
			Email:    cfg.Admin.Email,
			Phone:    cfg.Admin.Phone,
			Password: cfg.Admin.Password,
		}); err != nil {
			log.Fatal().Err(err).Msg("Failed to seed admin account")
		}
	}

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		AccountSvc:     accountSvc,
		TransferSvc:    transferSvc,
		ReportingSvc:   reportingSvc,
		TokenSvc:       tokenSvc,
		RateLimitStore: rateLimitStore,
		HealthCheckers: healthCheckers,
		AuditSvc:       auditSvc,
		Metrics:        collector,
		Logger:         log,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server stopped with error")
	}

	// Flush audit writes still in flight before the database closes.
	auditSvc.Wait()
	log.Info().Msg("Server exited")
}
