package handler

import (
	"tutor-payment-engine/internal/adapter/http/middleware"
	redisStore "tutor-payment-engine/internal/adapter/storage/redis"
	"tutor-payment-engine/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	AuthSvc        ports.AuthService
	PaymentSvc     ports.PaymentService
	EscrowSvc      ports.EscrowService
	PayoutSvc      ports.PayoutService
	ReportingSvc   ports.ReportingService
	AuditSvc       ports.AuditService // nil = audit logging disabled
	TokenSvc       ports.TokenService
	Adapters       []ports.GatewayAdapter
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
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

	// Rate limit rules
	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	paymentHandler := NewPaymentHandler(deps.PaymentSvc, deps.Adapters, deps.AuditSvc, deps.Logger)

	// --- Gateway-facing routes (no auth; IPNs authenticate by signature) ---
	payment := r.Group("/api/payment")
	{
		momo := payment.Group("/momo")
		{
			momo.POST("/create", rl("payments_create"), paymentHandler.CreateMoMoPayment)
			momo.POST("/ipn", paymentHandler.MoMoIPN)
		}
		vnpay := payment.Group("/vnpay")
		{
			vnpay.POST("/create", rl("payments_create"), paymentHandler.CreateVNPayPayment)
			vnpay.GET("/return", paymentHandler.VNPayReturn)
			vnpay.GET("/ipn", paymentHandler.VNPayIPN)
			vnpay.POST("/ipn", paymentHandler.VNPayIPN)
		}
	}

	// API v1 routes
	v1 := r.Group("/api/v1")

	// --- Public routes (no auth) ---
	authHandler := NewAuthHandler(deps.AuthSvc)
	auth := v1.Group("/auth")
	{
		auth.POST("/login", rl("auth_login"), authHandler.Login)
	}

	// --- JWT-authenticated routes (operator commands + dashboard) ---
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)
	escrowHandler := NewEscrowHandler(deps.EscrowSvc)
	payoutHandler := NewPayoutHandler(deps.PayoutSvc)
	dashboardHandler := NewDashboardHandler(deps.ReportingSvc)

	payments := v1.Group("/payments", jwtAuth)
	{
		payments.POST("/refund", rl("payments_refund"), paymentHandler.ProcessRefund)
	}

	escrow := v1.Group("/escrow", jwtAuth)
	{
		escrow.GET("/:class_id", rl("escrow"), escrowHandler.Get)
		escrow.POST("/:class_id/release", rl("escrow"), escrowHandler.Release)
		escrow.POST("/:class_id/forfeit", rl("escrow"), escrowHandler.Forfeit)
	}

	payouts := v1.Group("/payouts", jwtAuth)
	{
		payouts.GET("/:tutor_id/eligible", rl("payouts"), payoutHandler.GetEligible)
		payouts.POST("/:tutor_id", rl("payouts"), payoutHandler.Process)
	}

	dashboard := v1.Group("/dashboard", jwtAuth)
	{
		dashboard.GET("/report", rl("dashboard"), dashboardHandler.GetReport)
	}

	transactions := v1.Group("/transactions", jwtAuth)
	{
		transactions.GET("", rl("dashboard"), dashboardHandler.ListTransactions)
	}

	wallets := v1.Group("/wallets", jwtAuth)
	{
		wallets.GET("/:user_id/balance", rl("dashboard"), dashboardHandler.GetWalletBalance)
	}

	return r
}
