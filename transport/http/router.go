package http

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/layer-3/palette/internal/metrics"
	"github.com/layer-3/palette/service"
)

// RouterConfig carries the collaborators the router needs.
type RouterConfig struct {
	Auth     *service.AuthService
	Vouchers *service.VoucherService
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
	Health   func(ctx context.Context) error
}

// SetupRouter sets up the Gin router
func SetupRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(cfg.Logger, cfg.Metrics))

	handlers := NewHandlers(cfg.Auth, cfg.Vouchers, cfg.Health)

	router.GET("/healthz", handlers.Health)
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	// Auth routes
	auth := router.Group("/auth")
	auth.Use(BodyLimit(maxAuthBody))
	{
		auth.POST("/wallet", handlers.WalletAuth)
		auth.POST("/logout", handlers.Logout)
	}

	// Vouchers check the bearer token themselves when sessions are required.
	router.POST("/api/claims/sign", handlers.SignClaim)

	// Protected API routes
	api := router.Group("/api")
	api.Use(AuthMiddleware(cfg.Auth))
	{
		api.GET("/me", handlers.Me)
		api.POST("/stats", handlers.RecordStats)
	}

	return router
}
