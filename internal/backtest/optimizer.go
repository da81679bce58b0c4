package backtest

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"gridbot/internal/domain"
	"gridbot/internal/strategy"
	"gridbot/internal/util"
)

// Trial is the outcome of one optimizer combination. A failed trial carries
// its error and is excluded from ranking without aborting siblings.
type Trial struct {
	Index  int
	Params strategy.Params
	Result *Result
	Err    error
}

// OptimizationResult holds the ranked outcome of a parameter search.
type OptimizationResult struct {
	Best   *Trial
	Trials []Trial
}

// Optimizer explores a strategy's parameter grid: it enumerates the
// Cartesian product of the discretized parameter ranges and runs one
// independent backtest per combination on a fixed-size worker pool. Trials
// share only the immutable bar slice; each owns its strategy and runner
// state.
type Optimizer struct {
	registry *strategy.Registry
	cfg      Config
	workers  int
	log      *slog.Logger
}

// NewOptimizer creates an Optimizer running trials on the given registry.
// workers <= 0 sizes the pool from the CPU count.
func NewOptimizer(reg *strategy.Registry, cfg Config, workers int, log *slog.Logger) *Optimizer {
	if workers <= 0 {
		workers = util.Workers()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Optimizer{registry: reg, cfg: cfg, workers: workers, log: log}
}

// Run searches the named strategy's parameter grid over the given bars and
// returns the best trial by Sharpe ratio, descending. Ties resolve to the
// earliest combination in enumeration order. Run fails only when the grid is
// empty or every trial fails.
func (o *Optimizer) Run(name, symbol string, bars []domain.Bar) (*OptimizationResult, error) {
	probe, err := o.registry.New(name, symbol, nil)
	if err != nil {
		return nil, fmt.Errorf("optimize %s: %w", name, err)
	}

	combos := enumerate(probe.ParamRanges())
	if len(combos) == 0 {
		return nil, fmt.Errorf("optimize %s: no parameter combinations", name)
	}
	o.log.Info("running optimization",
		"strategy", name, "symbol", symbol,
		"combinations", len(combos), "workers", o.workers)

	trials := make([]Trial, len(combos))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < o.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				trials[i] = o.runTrial(name, symbol, i, combos[i], bars)
			}
		}()
	}
	for i := range combos {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	var best *Trial
	var firstErr error
	for i := range trials {
		t := &trials[i]
		if t.Err != nil {
			if firstErr == nil {
				firstErr = t.Err
			}
			o.log.Warn("optimization trial failed",
				"strategy", name, "trial", t.Index, "error", t.Err)
			continue
		}
		if best == nil || t.Result.Metrics.SharpeRatio > best.Result.Metrics.SharpeRatio {
			best = t
		}
	}
	if best == nil {
		return nil, fmt.Errorf("optimize %s: all %d trials failed: %w", name, len(trials), firstErr)
	}

	return &OptimizationResult{Best: best, Trials: trials}, nil
}

// runTrial backtests one combination with a freshly constructed strategy.
func (o *Optimizer) runTrial(name, symbol string, index int, params strategy.Params, bars []domain.Bar) Trial {
	t := Trial{Index: index, Params: params}

	strat, err := o.registry.New(name, symbol, params)
	if err != nil {
		t.Err = err
		return t
	}

	if gs, ok := strat.(GridStrategy); ok {
		t.Result, t.Err = NewGridRunner(o.cfg, o.log).Run(bars, gs)
	} else {
		t.Result, t.Err = NewRunner(o.cfg, o.log).Run(bars, strat)
	}
	return t
}

// enumerate expands the parameter ranges into the Cartesian product of their
// discretized values. Parameters are ordered by sorted name so the
// enumeration, and therefore tie-breaking, is deterministic.
func enumerate(ranges map[string]strategy.Range) []strategy.Params {
	if len(ranges) == 0 {
		return nil
	}

	names := make([]string, 0, len(ranges))
	for name := range ranges {
		names = append(names, name)
	}
	sort.Strings(names)

	values := make([][]float64, len(names))
	for i, name := range names {
		values[i] = expand(ranges[name])
	}

	combos := []strategy.Params{{}}
	for i, name := range names {
		next := make([]strategy.Params, 0, len(combos)*len(values[i]))
		for _, combo := range combos {
			for _, v := range values[i] {
				c := combo.Clone()
				c[name] = v
				next = append(next, c)
			}
		}
		combos = next
	}
	return combos
}

// expand discretizes one range into min, min+step, ... up to max inclusive.
// A non-positive step yields just the minimum.
func expand(r strategy.Range) []float64 {
	if r.Step <= 0 || r.Max < r.Min {
		return []float64{r.Min}
	}
	var out []float64
	// A small tolerance keeps max inclusive despite accumulated float error.
	for v := r.Min; v <= r.Max+r.Step*1e-9; v += r.Step {
		out = append(out, v)
	}
	return out
}
