// Package app wires configuration into the repositories, clients and
// services shared by the server and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/yourorg/strategy-optimizer/internal/cache"
	"github.com/yourorg/strategy-optimizer/internal/client"
	"github.com/yourorg/strategy-optimizer/internal/config"
	"github.com/yourorg/strategy-optimizer/internal/events"
	"github.com/yourorg/strategy-optimizer/internal/repository"
	"github.com/yourorg/strategy-optimizer/internal/service"
	"github.com/yourorg/strategy-optimizer/internal/storage"
)

// App holds the wired services and the connections they depend on
type App struct {
	Config *config.Config
	Logger *zap.Logger

	DB       *sqlx.DB
	Redis    *redis.Client
	Producer *events.Producer
	Binance  *client.BinanceClient

	MarketData    *service.MarketDataService
	Backtests     *service.BacktestService
	Optimizations *service.OptimizationService
	Decisions     *service.DecisionService
}

// New connects the enabled backends and builds the services
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	var (
		candleRepo service.CandleRepository
		records    service.OptimizationStore
		candles    service.CandleCache = cache.NewMemoryCandleCache()
		publisher  service.EventPublisher
	)

	if cfg.Database.Enabled {
		db, err := connectToDB(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.DB = db
		candleRepo = repository.NewMarketDataRepository(db, logger)
		records = repository.NewOptimizationRepository(db, logger)
	}

	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Warn("Redis unavailable, candle cache falls back to storage", zap.Error(err))
		}
		a.Redis = rdb
		candles = cache.NewRedisCandleCache(rdb, cfg.Redis.KeyPrefix, logger)
	}

	if cfg.Kafka.Enabled {
		a.Producer = events.NewProducer(cfg.Kafka.BrokerList(), "strategy-optimizer", logger)
		publisher = a.Producer
	}

	reports, err := storage.New(cfg.Storage)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize report storage: %w", err)
	}

	a.Binance = client.NewBinanceClient(cfg.Binance, logger)

	a.MarketData = service.NewMarketDataService(candles, candleRepo, a.Binance, service.MarketDataOptions{
		KlineLimit:   cfg.Binance.KlineLimit,
		FollowToNow:  cfg.Market.FollowToNow,
		BacktestMode: cfg.Market.BacktestMode,
	}, logger)

	a.Backtests = service.NewBacktestService(a.MarketData, service.BacktestDefaults{
		Start:  cfg.Market.Start,
		Costs:  cfg.Backtest,
		Warmup: cfg.Optimizer.Space.MaxPeriod(),
	}, logger)

	a.Optimizations = service.NewOptimizationService(
		a.MarketData,
		records,
		reports,
		publisher,
		cfg.Kafka.Topics["optimizationevents"],
		service.OptimizationDefaults{
			Start:       cfg.Market.Start,
			Variant:     cfg.Optimizer.Variant,
			Space:       cfg.Optimizer.Space,
			Costs:       cfg.Backtest,
			Workers:     cfg.Optimizer.Workers,
			Seed:        cfg.Optimizer.Seed,
			RequireFlat: cfg.Optimizer.RequireFlat,
		},
		logger,
	)

	a.Decisions = service.NewDecisionService(a.MarketData, records, a.Binance, service.DecisionOptions{
		Start:              cfg.Market.Start,
		OrderAmountPercent: cfg.Backtest.OrderAmountPercent,
	}, logger)

	return a, nil
}

// Close releases every open connection
func (a *App) Close() error {
	var errs []error
	if a.Producer != nil {
		errs = append(errs, a.Producer.Close())
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}

func connectToDB(dbConfig config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Connect("pgx", dbConfig.DSN())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(dbConfig.MaxOpenConns)
	db.SetMaxIdleConns(dbConfig.MaxIdleConns)
	db.SetConnMaxLifetime(dbConfig.ConnMaxLifetime)

	return db, nil
}
