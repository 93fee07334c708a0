package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yourorg/strategy-optimizer/internal/backtest"
	"github.com/yourorg/strategy-optimizer/internal/events"
	"github.com/yourorg/strategy-optimizer/internal/indicator"
	"github.com/yourorg/strategy-optimizer/internal/model"
	"github.com/yourorg/strategy-optimizer/internal/optimizer"
	"github.com/yourorg/strategy-optimizer/internal/storage"
	"github.com/yourorg/strategy-optimizer/internal/strategy"
)

// OptimizationStore persists sweep outcomes
type OptimizationStore interface {
	Create(ctx context.Context, rec *model.OptimizationRecord) error
	GetLatest(ctx context.Context, symbol, interval string) (*model.OptimizationRecord, error)
	ListLatest(ctx context.Context, symbols []string, interval string) ([]model.OptimizationRecord, error)
}

// EventPublisher announces finished sweeps
type EventPublisher interface {
	PublishOptimizationCompleted(ctx context.Context, topic string, ev events.OptimizationCompleted) error
}

// OptimizationDefaults fill in whatever a request leaves out
type OptimizationDefaults struct {
	// Start resolves the first candle when a request has no start time
	Start       func(now time.Time) (time.Time, error)
	Variant     string
	Space       optimizer.SearchSpace
	Costs       backtest.Costs
	Workers     int
	Seed        int64
	RequireFlat bool
}

// OptimizationRequest describes one sweep
type OptimizationRequest struct {
	Symbol      string                 `json:"symbol" binding:"required"`
	Interval    string                 `json:"interval" binding:"required"`
	StartTime   int64                  `json:"start_time"`
	EndTime     int64                  `json:"end_time"`
	Variant     string                 `json:"variant"`
	Space       *optimizer.SearchSpace `json:"space,omitempty"`
	Costs       *backtest.Costs        `json:"costs,omitempty"`
	Seed        int64                  `json:"seed"`
	RequireFlat *bool                  `json:"require_flat,omitempty"`
}

// OptimizationReport is the stored and returned outcome of a sweep
type OptimizationReport struct {
	RunID          string                `json:"run_id"`
	Symbol         string                `json:"symbol"`
	Interval       string                `json:"interval"`
	Variant        string                `json:"variant"`
	Space          optimizer.SearchSpace `json:"space"`
	Costs          backtest.Costs        `json:"costs"`
	Candles        int                   `json:"candles"`
	Warmup         int                   `json:"warmup"`
	From           int64                 `json:"from"`
	To             int64                 `json:"to"`
	Best           model.BestResult      `json:"best"`
	Trades         []model.Trade         `json:"trades"`
	Elapsed        string                `json:"elapsed"`
	ReportLocation string                `json:"report_location,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
}

// OptimizationService runs parameter sweeps end to end: candles, indicator
// cache, sweep, trade log of the winner, persistence and notification.
type OptimizationService struct {
	market   CandleProvider
	store    OptimizationStore
	reports  storage.Storage
	events   EventPublisher
	topic    string
	defaults OptimizationDefaults
	progress optimizer.ProgressFunc
	logger   *zap.Logger
}

// NewOptimizationService creates a new optimization service. store, reports
// and publisher may be nil.
func NewOptimizationService(
	market CandleProvider,
	store OptimizationStore,
	reports storage.Storage,
	publisher EventPublisher,
	topic string,
	defaults OptimizationDefaults,
	logger *zap.Logger,
) *OptimizationService {
	return &OptimizationService{
		market:   market,
		store:    store,
		reports:  reports,
		events:   publisher,
		topic:    topic,
		defaults: defaults,
		logger:   logger,
	}
}

// WithProgress sets the progress callback of subsequent sweeps
func (s *OptimizationService) WithProgress(fn optimizer.ProgressFunc) *OptimizationService {
	s.progress = fn
	return s
}

// Optimize runs a sweep and returns its report
func (s *OptimizationService) Optimize(ctx context.Context, req *OptimizationRequest) (*OptimizationReport, error) {
	started := time.Now()

	variantName := req.Variant
	if variantName == "" {
		variantName = s.defaults.Variant
	}
	variant, err := strategy.Lookup(variantName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	space := s.defaults.Space
	if req.Space != nil {
		space = *req.Space
	}
	if err := space.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	costs := s.defaults.Costs
	if req.Costs != nil {
		costs = *req.Costs
	}

	requireFlat := s.defaults.RequireFlat
	if req.RequireFlat != nil {
		requireFlat = *req.RequireFlat
	}

	seed := req.Seed
	if seed == 0 {
		seed = s.defaults.Seed
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	startTime := req.StartTime
	if startTime == 0 && s.defaults.Start != nil {
		t, err := s.defaults.Start(time.Now())
		if err != nil {
			return nil, err
		}
		startTime = t.UnixMilli()
	}

	candles, err := s.market.GetCandles(ctx, model.CandleQuery{
		Symbol:    req.Symbol,
		Interval:  req.Interval,
		StartTime: startTime,
		EndTime:   req.EndTime,
	})
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%w for %s %s", ErrNoCandles, req.Symbol, req.Interval)
	}

	periods, err := space.Periods()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if len(periods) == 0 {
		report := newReport(req, variant.Name, space, costs, candles, 0, model.BestResult{}, started)
		s.logger.Warn("Empty period range, nothing to evaluate", zap.String("symbol", report.Symbol))
		return report, nil
	}

	cache, err := indicator.BuildCache(ctx, candles, periods, nil)
	if err != nil {
		return nil, err
	}

	sim, err := backtest.NewSimulator(candles, cache, variant, costs)
	if err != nil {
		return nil, asRequestError(err)
	}

	opt := optimizer.NewOptimizer(sim, optimizer.Options{
		Workers:     s.defaults.Workers,
		Rand:        rand.New(rand.NewSource(seed)),
		Progress:    s.progress,
		RequireFlat: requireFlat,
	}, s.logger)

	best, err := opt.Optimize(ctx, space)
	if err != nil {
		return nil, asRequestError(err)
	}

	trades := []model.Trade{}
	if best.Found {
		if _, err := sim.Run(best.Result.Parameters, backtest.Collect(&trades)); err != nil {
			return nil, err
		}
	}

	report := newReport(req, variant.Name, space, costs, candles, cache.MaxPeriod(), best, started)
	report.Trades = trades

	if !best.Found {
		s.logger.Warn("No valid parameter set found",
			zap.String("symbol", report.Symbol),
			zap.Int("evaluated", best.Evaluated),
			zap.Int("invalidated", best.Invalidated))
		return report, nil
	}

	s.persist(ctx, report)
	return report, nil
}

func newReport(
	req *OptimizationRequest,
	variant string,
	space optimizer.SearchSpace,
	costs backtest.Costs,
	candles []model.Candle,
	warmup int,
	best model.BestResult,
	started time.Time,
) *OptimizationReport {
	return &OptimizationReport{
		RunID:     uuid.NewString(),
		Symbol:    candlesSymbol(req.Symbol),
		Interval:  req.Interval,
		Variant:   variant,
		Space:     space,
		Costs:     costs,
		Candles:   len(candles),
		Warmup:    warmup,
		From:      candles[0].OpenTime,
		To:        candles[len(candles)-1].CloseTime,
		Best:      best,
		Trades:    []model.Trade{},
		Elapsed:   time.Since(started).Round(time.Millisecond).String(),
		CreatedAt: time.Now().UTC(),
	}
}

// persist stores the report, the record and the event. Failures are logged
// and do not fail the sweep.
func (s *OptimizationService) persist(ctx context.Context, report *OptimizationReport) {
	if s.reports != nil {
		body, err := json.MarshalIndent(report, "", "  ")
		if err == nil {
			report.ReportLocation, err = s.reports.Store(ctx, storage.ReportKey(report.Symbol, report.RunID), "application/json", body)
		}
		if err != nil {
			s.logger.Error("Failed to store optimization report", zap.String("run_id", report.RunID), zap.Error(err))
		}
	}

	res := report.Best.Result
	rec := model.OptimizationRecord{
		RunID:            report.RunID,
		Symbol:           report.Symbol,
		Interval:         report.Interval,
		Variant:          report.Variant,
		RSIPeriod:        res.Parameters.RSIPeriod,
		UpperLevel:       res.Parameters.UpperLevel,
		LowerLevel:       res.Parameters.LowerLevel,
		Leverage:         res.Parameters.Leverage,
		Fund:             res.Fund,
		PositionType:     res.PositionType.String(),
		StillHasPosition: res.StillHasPosition,
		Evaluated:        report.Best.Evaluated,
		Invalidated:      report.Best.Invalidated,
		ReportLocation:   report.ReportLocation,
		CreatedAt:        report.CreatedAt,
	}

	if s.store != nil {
		if err := s.store.Create(ctx, &rec); err != nil {
			s.logger.Error("Failed to persist optimization", zap.String("run_id", report.RunID), zap.Error(err))
		}
	}

	if s.events != nil {
		if err := s.events.PublishOptimizationCompleted(ctx, s.topic, events.NewOptimizationCompleted(rec)); err != nil {
			s.logger.Error("Failed to publish optimization event", zap.String("run_id", report.RunID), zap.Error(err))
		}
	}

	s.logger.Info("Optimization stored",
		zap.String("run_id", report.RunID),
		zap.String("symbol", report.Symbol),
		zap.Stringer("parameters", res.Parameters),
		zap.Float64("fund", res.Fund),
		zap.String("report", report.ReportLocation))
}

// Latest returns the newest persisted optimization of a symbol
func (s *OptimizationService) Latest(ctx context.Context, symbol, interval string) (*model.OptimizationRecord, error) {
	if s.store == nil {
		return nil, fmt.Errorf("%w: persistence is disabled", ErrInvalidRequest)
	}
	if symbol == "" || interval == "" {
		return nil, fmt.Errorf("%w: symbol and interval are required", ErrInvalidRequest)
	}
	return s.store.GetLatest(ctx, candlesSymbol(symbol), interval)
}

// LatestMany returns the newest persisted optimization of each symbol.
// Symbols without a stored run are left out.
func (s *OptimizationService) LatestMany(ctx context.Context, symbols []string, interval string) ([]model.OptimizationRecord, error) {
	if s.store == nil {
		return nil, fmt.Errorf("%w: persistence is disabled", ErrInvalidRequest)
	}
	if interval == "" {
		return nil, fmt.Errorf("%w: interval is required", ErrInvalidRequest)
	}

	normalized := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		if symbol = candlesSymbol(symbol); symbol != "" {
			normalized = append(normalized, symbol)
		}
	}
	if len(normalized) == 0 {
		return nil, fmt.Errorf("%w: at least one symbol is required", ErrInvalidRequest)
	}

	records, err := s.store.ListLatest(ctx, normalized, interval)
	if err != nil {
		return nil, fmt.Errorf("failed to list optimizations: %w", err)
	}
	if records == nil {
		records = []model.OptimizationRecord{}
	}
	return records, nil
}
