package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/yourorg/strategy-optimizer/internal/app"
	"github.com/yourorg/strategy-optimizer/internal/backtest"
	"github.com/yourorg/strategy-optimizer/internal/config"
	"github.com/yourorg/strategy-optimizer/internal/logging"
	"github.com/yourorg/strategy-optimizer/internal/service"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := pflag.NewFlagSet("optimize", pflag.ContinueOnError)
	var (
		configPath   = fs.StringP("config", "c", "", "path to the config file")
		symbol       = fs.StringP("symbol", "s", "", "futures symbol, e.g. BTCUSDT")
		interval     = fs.StringP("interval", "i", "", "candle interval, e.g. 1h")
		variant      = fs.String("variant", "", "strategy variant (two-sided, long-only, flat, flat-profit-gated)")
		startDate    = fs.String("start", "", "first candle date (YYYY-MM-DD or RFC3339)")
		workers      = fs.IntP("workers", "w", 0, "concurrent backtests")
		seed         = fs.Int64("seed", 0, "sampling seed, 0 seeds from the clock")
		samples      = fs.Int("samples", -1, "random samples from the grid, 0 sweeps the whole grid")
		requireFlat  = fs.Bool("require-flat", false, "only accept runs that end without a position")
		backtestMode = fs.Bool("backtest-mode", false, "reuse stored candles without refreshing them")
		noColor      = fs.Bool("no-color", false, "disable the coloured trade log")
		asJSON       = fs.Bool("json", false, "print the full report as JSON")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return err
	}

	if fs.Changed("symbol") {
		cfg.Market.Symbol = *symbol
	}
	if fs.Changed("interval") {
		cfg.Market.Interval = *interval
	}
	if fs.Changed("variant") {
		cfg.Optimizer.Variant = *variant
	}
	if fs.Changed("start") {
		cfg.Market.StartDate = *startDate
	}
	if fs.Changed("workers") {
		cfg.Optimizer.Workers = *workers
	}
	if fs.Changed("seed") {
		cfg.Optimizer.Seed = *seed
	}
	if fs.Changed("samples") {
		cfg.Optimizer.Space.Samples = *samples
	}
	if fs.Changed("require-flat") {
		cfg.Optimizer.RequireFlat = *requireFlat
	}
	if fs.Changed("backtest-mode") {
		cfg.Market.BacktestMode = *backtestMode
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	start, err := cfg.Market.Start(time.Now())
	if err != nil {
		return err
	}

	report, err := a.Optimizations.
		WithProgress(progressLogger(logger)).
		Optimize(ctx, &service.OptimizationRequest{
			Symbol:    cfg.Market.Symbol,
			Interval:  cfg.Market.Interval,
			StartTime: start.UnixMilli(),
		})
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	if !report.Best.Found {
		return fmt.Errorf("no parameter set survived %d backtests (%d liquidated)",
			report.Best.Evaluated, report.Best.Invalidated)
	}

	printTrades := backtest.WriterHook(os.Stdout, time.Local, !*noColor)
	for _, t := range report.Trades {
		printTrades(t)
	}

	best := report.Best.Result
	fmt.Printf("\n%s %s %s: %d candles, %d backtests (%d liquidated) in %s\n",
		report.Symbol, report.Interval, report.Variant,
		report.Candles, report.Best.Evaluated, report.Best.Invalidated, report.Elapsed)
	fmt.Printf("Best: %s  Warm-up: %d bars\n", best.Parameters, report.Warmup)
	fmt.Printf("Fund: %.2f  Trades: %d  Position: %s\n", best.Fund, best.Trades, best.PositionType)
	if report.ReportLocation != "" {
		fmt.Printf("Report: %s\n", report.ReportLocation)
	}
	return nil
}

// progressLogger logs every tenth of the sweep
func progressLogger(logger *zap.Logger) func(done, total int) {
	next := 0
	return func(done, total int) {
		if pct := done * 100 / total; pct >= next || done == total {
			logger.Info("Sweep progress",
				zap.Int("done", done),
				zap.Int("total", total),
				zap.Int("percent", pct))
			next = pct - pct%10 + 10
		}
	}
}
