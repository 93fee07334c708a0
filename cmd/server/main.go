package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourorg/strategy-optimizer/internal/app"
	"github.com/yourorg/strategy-optimizer/internal/config"
	"github.com/yourorg/strategy-optimizer/internal/handler"
	"github.com/yourorg/strategy-optimizer/internal/logging"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	// Load configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Set up logger
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize application", zap.Error(err))
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("Failed to close connections", zap.Error(err))
		}
	}()

	// Initialize handlers
	router := handler.SetupRouter(handler.Handlers{
		MarketData:   handler.NewMarketDataHandler(a.MarketData, logger),
		Backtest:     handler.NewBacktestHandler(a.Backtests, logger),
		Optimization: handler.NewOptimizationHandler(a.Optimizations, cfg.Market.Interval, logger),
		Decision:     handler.NewDecisionHandler(a.Decisions, logger),
	}, handler.RouterConfig{
		JWTSecret:  cfg.Auth.JWTSecret,
		ServiceKey: cfg.Auth.ServiceKey,
	}, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start the server in a goroutine
	go func() {
		logger.Info("Starting server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited properly")
}
