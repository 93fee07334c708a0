package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/yourorg/strategy-optimizer/internal/model"
)

// MarketDataRepository handles database operations for candles
type MarketDataRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewMarketDataRepository creates a new market data repository
func NewMarketDataRepository(db *sqlx.DB, logger *zap.Logger) *MarketDataRepository {
	return &MarketDataRepository{
		db:     db,
		logger: logger,
	}
}

// GetCandles retrieves candles for a symbol and interval in open time order
func (r *MarketDataRepository) GetCandles(ctx context.Context, q model.CandleQuery) ([]model.Candle, error) {
	query := `
		SELECT open_time, close_time, open, high, low, close, volume
		FROM candles
		WHERE symbol = $1 AND timeframe = $2 AND open_time >= $3
	`

	args := []interface{}{strings.ToUpper(q.Symbol), q.Interval, q.StartTime}

	if q.EndTime > 0 {
		query += " AND open_time <= $4"
		args = append(args, q.EndTime)
	}

	query += " ORDER BY open_time"

	var candles []model.Candle
	if err := r.db.SelectContext(ctx, &candles, query, args...); err != nil {
		r.logger.Error("Failed to get candles",
			zap.Error(err),
			zap.String("symbol", q.Symbol),
			zap.String("interval", q.Interval))
		return nil, fmt.Errorf("failed to get candles: %w", err)
	}

	return candles, nil
}

// UpsertCandles inserts a batch of candles, overwriting existing bars
func (r *MarketDataRepository) UpsertCandles(ctx context.Context, symbol, interval string, candles []model.Candle) error {
	// Using transaction for batch insert
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		r.logger.Error("Failed to begin transaction", zap.Error(err))
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO candles (symbol, timeframe, open_time, close_time, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (symbol, timeframe, open_time)
		DO UPDATE SET
			close_time = EXCLUDED.close_time,
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume,
			updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		r.logger.Error("Failed to prepare statement", zap.Error(err))
		return err
	}
	defer stmt.Close()

	symbol = strings.ToUpper(symbol)
	for _, c := range candles {
		_, err = stmt.ExecContext(ctx,
			symbol,
			interval,
			c.OpenTime,
			c.CloseTime,
			c.Open,
			c.High,
			c.Low,
			c.Close,
			c.Volume,
		)
		if err != nil {
			r.logger.Error("Failed to upsert candle",
				zap.Error(err),
				zap.Int64("open_time", c.OpenTime))
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		r.logger.Error("Failed to commit transaction", zap.Error(err))
		return err
	}

	r.logger.Debug("Upserted candles",
		zap.String("symbol", symbol),
		zap.String("interval", interval),
		zap.Int("count", len(candles)))

	return nil
}
