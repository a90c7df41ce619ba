package handler

import (
	"wallet-ledger/internal/adapter/http/middleware"
	redisStore "wallet-ledger/internal/adapter/storage/redis"
	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	AccountSvc     ports.AccountService
	TransferSvc    ports.TransferService
	ReportingSvc   ports.ReportingService
	TokenSvc       ports.TokenService
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	AuditSvc       ports.AuditService // nil = audit logging disabled
	Metrics        *metrics.Collector // nil = no /metrics endpoint
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	var obs middleware.HTTPObserver
	if deps.Metrics != nil {
		obs = deps.Metrics
	}

	// Global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger, obs))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	r.GET("/health", HealthCheck(deps.HealthCheckers...))
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	rules := middleware.DefaultRateLimitRules()
	rl := func(group string) gin.HandlerFunc {
		rule, ok := rules[group]
		if deps.RateLimitStore == nil || !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)
	admin := middleware.RequireRole(domain.RoleAdmin)

	authHandler := NewAuthHandler(deps.AccountSvc)
	userHandler := NewUserHandler(deps.AccountSvc)
	walletHandler := NewWalletHandler(deps.TransferSvc, deps.ReportingSvc, deps.AccountSvc)
	txHandler := NewTransactionHandler(deps.ReportingSvc)

	v1 := r.Group("/api/v1")

	// --- Public routes (no auth) ---
	auth := v1.Group("/auth")
	{
		auth.POST("/register", rl("auth_register"), authHandler.Register)
		auth.POST("/login", rl("auth_login"), authHandler.Login)
	}

	users := v1.Group("/users", jwtAuth)
	{
		users.GET("/me", rl("read"), userHandler.Me)
		users.PATCH("/me", rl("read"), userHandler.UpdateMe)
		users.GET("", admin, rl("admin"), userHandler.List)
		users.PATCH("/agents/:id", admin, rl("admin"), userHandler.SetAgentApproval)
	}

	wallets := v1.Group("/wallets", jwtAuth)
	{
		wallets.POST("/cash-in", middleware.RequireRole(domain.RoleAgent), rl("money"), walletHandler.CashIn)
		wallets.POST("/cash-out", middleware.RequireRole(domain.RoleUser), rl("money"), walletHandler.CashOut)
		wallets.POST("/send", middleware.RequireRole(domain.RoleUser), rl("money"), walletHandler.Send)
		wallets.GET("/me", rl("read"), walletHandler.Me)
		wallets.GET("", admin, rl("admin"), walletHandler.List)
		wallets.PATCH("/:ownerId", admin, rl("admin"), walletHandler.SetStatus)
	}

	transactions := v1.Group("/transactions", jwtAuth)
	{
		transactions.GET("/me", rl("read"), txHandler.Mine)
		transactions.GET("", admin, rl("admin"), txHandler.List)
		transactions.GET("/summary", admin, rl("admin"), txHandler.Summary)
	}

	return r
}
