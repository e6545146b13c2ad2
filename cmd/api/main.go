package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crowdwave-ledger/config"
	httpHandler "crowdwave-ledger/internal/adapter/http/handler"
	"crowdwave-ledger/internal/adapter/notify"
	stripeProvider "crowdwave-ledger/internal/adapter/provider/stripe"
	pgStorage "crowdwave-ledger/internal/adapter/storage/postgres"
	redisStorage "crowdwave-ledger/internal/adapter/storage/redis"
	"crowdwave-ledger/internal/core/ports"
	"crowdwave-ledger/internal/service"
	"crowdwave-ledger/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
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
		Msg("Starting CrowdWave Ledger")

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
	walletRepo := pgStorage.NewWalletRepo(pool)
	txRepo := pgStorage.NewTransactionRepo(pool)
	escrowRepo := pgStorage.NewEscrowRepo(pool)
	contactRepo := pgStorage.NewContactRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Initialize Redis stores
	idempotencyCache := redisStorage.NewIdempotencyCache(rdb)

	// Initialize metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := service.NewLedgerMetrics(registry)

	// Initialize notification channels
	var pushGateway ports.PushNotifier
	if cfg.Push.GatewayURL != "" {
		pushGateway = notify.NewPushGateway(cfg.Push, nil, log)
	}
	var mailer ports.Mailer
	if cfg.SMTP.Host != "" {
		mailer = notify.NewSMTPMailer(cfg.SMTP, log)
	}
	notificationSvc := service.NewNotificationService(contactRepo, pushGateway, mailer, log)

	// Initialize core services
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)

	// Initialize business services
	escrowSvc := service.NewEscrowService(
		escrowRepo,
		walletRepo,
		txRepo,
		idempotencyCache,
		transactor,
		notificationSvc,
		metrics,
		log,
	)
	walletSvc := service.NewWalletService(walletRepo, txRepo, transactor, metrics, log)

	provider := stripeProvider.NewProvider(cfg.Stripe, log)
	paymentSvc := service.NewPaymentService(provider, escrowSvc, notificationSvc, metrics, log)

	var verifier httpHandler.WebhookVerifier
	if cfg.Stripe.WebhookSecret != "" {
		verifier = stripeProvider.NewWebhookVerifier(cfg.Stripe.WebhookSecret)
	} else {
		log.Warn().Msg("Stripe webhook secret not configured, /webhooks/stripe disabled")
	}

	// Initialize health checkers
	pgHealth := pgStorage.NewHealth(pool)
	redisHealth := redisStorage.NewHealth(rdb)

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		EscrowSvc:       escrowSvc,
		WalletSvc:       walletSvc,
		PaymentSvc:      paymentSvc,
		TokenSvc:        tokenSvc,
		ContactRepo:     contactRepo,
		WebhookVerifier: verifier,
		HealthCheckers:  []ports.HealthChecker{pgHealth, redisHealth},
		MetricsRegistry: registry,
		Logger:          log,
	})

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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
