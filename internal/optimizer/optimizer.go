package optimizer

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yourorg/strategy-optimizer/internal/backtest"
	"github.com/yourorg/strategy-optimizer/internal/model"
)

// ProgressFunc receives the number of finished evaluations out of total.
// Calls are serialized.
type ProgressFunc func(done, total int)

// Options tunes a sweep
type Options struct {
	// Workers is the number of concurrent evaluations. Values below 2 run
	// the sweep sequentially.
	Workers int
	// Rand drives sampling. Defaults to a time-seeded source.
	Rand *rand.Rand
	// Progress is called after every evaluation
	Progress ProgressFunc
	// RequireFlat skips results that still hold a position at the end
	RequireFlat bool
}

// Optimizer sweeps a parameter space over one simulator
type Optimizer struct {
	sim    *backtest.Simulator
	opts   Options
	logger *zap.Logger
}

// NewOptimizer creates a new optimizer
func NewOptimizer(sim *backtest.Simulator, opts Options, logger *zap.Logger) *Optimizer {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Optimizer{sim: sim, opts: opts, logger: logger}
}

// Candidates returns the parameter sets a sweep of the space evaluates, in
// evaluation order
func (o *Optimizer) Candidates(space SearchSpace) ([]model.Parameters, error) {
	grid, err := Enumerate(space)
	if err != nil {
		return nil, err
	}
	if space.Samples <= 0 || len(grid) == 0 {
		return grid, nil
	}

	sampled := make([]model.Parameters, space.Samples)
	for i := range sampled {
		sampled[i] = grid[o.opts.Rand.Intn(len(grid))]
	}
	return sampled, nil
}

type candidate struct {
	index  int
	result model.BacktestResult
}

// better reports whether c should replace best. Ties keep the earlier index.
func (c candidate) better(best *candidate) bool {
	if best == nil {
		return true
	}
	if c.result.Fund != best.result.Fund {
		return c.result.Fund > best.result.Fund
	}
	return c.index < best.index
}

// Optimize evaluates every candidate of the space and returns the one with
// the highest final fund. Liquidated runs never win. An empty space yields
// a result with Found == false.
func (o *Optimizer) Optimize(ctx context.Context, space SearchSpace) (model.BestResult, error) {
	if err := ctx.Err(); err != nil {
		return model.BestResult{}, err
	}
	candidates, err := o.Candidates(space)
	if err != nil {
		return model.BestResult{}, err
	}

	total := len(candidates)
	out := model.BestResult{Total: total}
	if total == 0 {
		o.logger.Warn("Empty search space, nothing to evaluate")
		return out, nil
	}

	workers := o.opts.Workers
	if workers > total {
		workers = total
	}

	o.logger.Info("Starting parameter sweep",
		zap.String("variant", o.sim.Variant().Name),
		zap.Int("candidates", total),
		zap.Int("workers", workers),
		zap.Bool("sampled", space.Samples > 0))
	started := time.Now()

	var (
		evaluated   int
		invalidated int64
		progressMu  sync.Mutex
		locals      = make([]*candidate, workers)
		jobs        = make(chan int)
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobs)
		for i := range candidates {
			select {
			case jobs <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			for i := range jobs {
				if err := gctx.Err(); err != nil {
					return err
				}
				res, err := o.sim.Run(candidates[i], nil)
				if err != nil {
					return err
				}

				switch {
				case res.Invalidated:
					atomic.AddInt64(&invalidated, 1)
				case o.opts.RequireFlat && res.StillHasPosition:
				default:
					c := candidate{index: i, result: res}
					if c.better(locals[w]) {
						locals[w] = &c
					}
				}

				// counted under the lock so progress never goes backwards
				progressMu.Lock()
				evaluated++
				if o.opts.Progress != nil {
					o.opts.Progress(evaluated, total)
				}
				progressMu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return model.BestResult{}, err
	}

	var best *candidate
	for _, c := range locals {
		if c != nil && c.better(best) {
			best = c
		}
	}

	out.Evaluated = evaluated
	out.Invalidated = int(invalidated)
	if best != nil {
		out.Found = true
		out.Result = best.result
	}

	fields := []zap.Field{
		zap.Int("evaluated", out.Evaluated),
		zap.Int("invalidated", out.Invalidated),
		zap.Duration("elapsed", time.Since(started)),
	}
	if out.Found {
		fields = append(fields,
			zap.Stringer("parameters", out.Result.Parameters),
			zap.Float64("fund", out.Result.Fund))
	}
	o.logger.Info("Parameter sweep finished", fields...)

	return out, nil
}
