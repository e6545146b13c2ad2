package handler

import (
	"crowdwave-ledger/internal/adapter/http/middleware"
	"crowdwave-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	EscrowSvc       ports.EscrowService
	WalletSvc       ports.WalletService
	PaymentSvc      ports.PaymentService
	TokenSvc        ports.TokenService
	ContactRepo     ports.ContactRepository
	WebhookVerifier WebhookVerifier // nil = provider webhooks disabled
	HealthCheckers  []ports.HealthChecker
	MetricsRegistry *prometheus.Registry // nil = /metrics disabled
	Logger          zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Health check (deep, verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	if deps.MetricsRegistry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.MetricsRegistry, promhttp.HandlerOpts{})))
	}

	// --- Provider webhooks (signature-verified, no JWT) ---
	if deps.WebhookVerifier != nil {
		webhookHandler := NewWebhookHandler(deps.WebhookVerifier, deps.PaymentSvc, deps.Logger)
		r.POST("/webhooks/stripe", webhookHandler.HandleStripe)
	}

	// --- JWT-authenticated user routes ---
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)
	v1 := r.Group("/api/v1", jwtAuth)

	paymentHandler := NewPaymentHandler(deps.PaymentSvc)
	payments := v1.Group("/payments")
	{
		payments.POST("/intent", paymentHandler.CreateIntent)
		payments.POST("/confirm", paymentHandler.ConfirmPayment)
		payments.POST("/refund", paymentHandler.RefundPayment)
	}

	walletHandler := NewWalletHandler(deps.WalletSvc)
	wallets := v1.Group("/wallets")
	{
		wallets.GET("/balance", walletHandler.GetBalance)
		wallets.GET("/stats", walletHandler.GetStats)
		wallets.POST("/deposit", walletHandler.Deposit)
		wallets.POST("/withdraw", walletHandler.Withdraw)
	}

	v1.GET("/transactions", walletHandler.ListTransactions)

	escrowHandler := NewEscrowHandler(deps.EscrowSvc)
	escrow := v1.Group("/escrow")
	{
		escrow.GET("/:bookingID", escrowHandler.GetState)
		escrow.POST("/:bookingID/release", escrowHandler.Release)
	}

	contactHandler := NewContactHandler(deps.ContactRepo)
	v1.POST("/contacts", contactHandler.Register)

	return r
}
