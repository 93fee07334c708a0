package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourorg/strategy-optimizer/internal/middleware"
)

// Handlers groups the HTTP handlers served by the router
type Handlers struct {
	MarketData   *MarketDataHandler
	Backtest     *BacktestHandler
	Optimization *OptimizationHandler
	Decision     *DecisionHandler
}

// RouterConfig holds the credentials of the protected routes. An empty
// JWTSecret leaves the user routes open.
type RouterConfig struct {
	JWTSecret  string
	ServiceKey string
}

// SetupRouter wires the handlers into a gin engine
func SetupRouter(h Handlers, cfg RouterConfig, logger *zap.Logger) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	v1 := router.Group("/api/v1")
	{
		user := v1.Group("")
		if cfg.JWTSecret != "" {
			user.Use(middleware.JWTAuth(cfg.JWTSecret, logger))
		} else {
			logger.Warn("auth.jwtSecret is empty, user routes are unauthenticated")
		}

		user.GET("/market-data/candles", h.MarketData.GetCandles)
		user.POST("/backtests", h.Backtest.RunBacktest)
		user.POST("/optimizations", h.Optimization.Optimize)
		user.GET("/optimizations", h.Optimization.ListLatest)
		user.GET("/optimizations/latest", h.Optimization.GetLatest)
		user.POST("/decisions", h.Decision.Decide)

		// Service-to-service routes (requires service key)
		service := v1.Group("/service")
		service.Use(middleware.ServiceAuth(cfg.ServiceKey, logger))
		{
			service.POST("/optimizations", h.Optimization.TriggerOptimization)
			service.GET("/optimizations/latest", h.Optimization.GetLatest)
			service.GET("/optimizations", h.Optimization.ListLatest)
		}
	}

	return router
}
