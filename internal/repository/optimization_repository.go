package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/yourorg/strategy-optimizer/internal/model"
)

// ErrNotFound is returned when no optimization has been stored yet
var ErrNotFound = errors.New("optimization not found")

// OptimizationRepository persists the best parameters of each sweep
type OptimizationRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewOptimizationRepository creates a new optimization repository
func NewOptimizationRepository(db *sqlx.DB, logger *zap.Logger) *OptimizationRepository {
	return &OptimizationRepository{
		db:     db,
		logger: logger,
	}
}

// Create stores a sweep outcome and fills in ID and CreatedAt
func (r *OptimizationRepository) Create(ctx context.Context, rec *model.OptimizationRecord) error {
	query := `
		INSERT INTO optimizations (
			run_id, symbol, timeframe, variant, rsi_period, upper_level, lower_level, leverage,
			fund, position_type, still_has_position, evaluated, invalidated, report_location
		)
		VALUES (
			:run_id, :symbol, :timeframe, :variant, :rsi_period, :upper_level, :lower_level, :leverage,
			:fund, :position_type, :still_has_position, :evaluated, :invalidated, :report_location
		)
		RETURNING id, created_at
	`

	rec.Symbol = strings.ToUpper(rec.Symbol)

	rows, err := r.db.NamedQueryContext(ctx, query, rec)
	if err != nil {
		r.logger.Error("Failed to create optimization record",
			zap.Error(err),
			zap.String("symbol", rec.Symbol))
		return err
	}
	defer rows.Close()

	if rows.Next() {
		if err := rows.Scan(&rec.ID, &rec.CreatedAt); err != nil {
			return err
		}
	}
	return rows.Err()
}

// GetLatest returns the newest record for a symbol and interval
func (r *OptimizationRepository) GetLatest(ctx context.Context, symbol, interval string) (*model.OptimizationRecord, error) {
	query := `
		SELECT id, run_id, symbol, timeframe, variant, rsi_period, upper_level, lower_level, leverage,
			fund, position_type, still_has_position, evaluated, invalidated, report_location, created_at
		FROM optimizations
		WHERE symbol = $1 AND timeframe = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	var rec model.OptimizationRecord
	err := r.db.GetContext(ctx, &rec, query, strings.ToUpper(symbol), interval)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get latest optimization",
			zap.Error(err),
			zap.String("symbol", symbol))
		return nil, err
	}
	return &rec, nil
}

// ListLatest returns the newest record per symbol for the given symbols
func (r *OptimizationRepository) ListLatest(ctx context.Context, symbols []string, interval string) ([]model.OptimizationRecord, error) {
	upper := make([]string, len(symbols))
	for i, s := range symbols {
		upper[i] = strings.ToUpper(s)
	}

	query := `
		SELECT DISTINCT ON (symbol)
			id, run_id, symbol, timeframe, variant, rsi_period, upper_level, lower_level, leverage,
			fund, position_type, still_has_position, evaluated, invalidated, report_location, created_at
		FROM optimizations
		WHERE symbol = ANY($1) AND timeframe = $2
		ORDER BY symbol, created_at DESC, id DESC
	`

	var records []model.OptimizationRecord
	if err := r.db.SelectContext(ctx, &records, query, pq.Array(upper), interval); err != nil {
		r.logger.Error("Failed to list optimizations",
			zap.Error(err),
			zap.Strings("symbols", upper))
		return nil, err
	}
	return records, nil
}
