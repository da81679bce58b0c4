// Runs a parameter-grid optimization for one strategy and prints the
// best-performing combinations.
//
// Usage:
//
//	go run cmd/optimize/main.go -strategy grid -symbol AAPL -start 2023-01-01 -end 2024-01-01 -top 5
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"

	"gridbot/internal/backtest"
	"gridbot/internal/config"
	"gridbot/internal/domain"
	"gridbot/internal/store"
	"gridbot/internal/strategy"
	"gridbot/internal/strategy/builtins"
	"gridbot/internal/util"
)

func main() {
	var (
		stratName = flag.String("strategy", "", "strategy name (required)")
		symbol    = flag.String("symbol", "", "symbol to optimize on (required)")
		csvPath   = flag.String("csv", "", "load bars from a CSV file instead of the Parquet store")
		startStr  = flag.String("start", "2023-01-01", "start date (YYYY-MM-DD)")
		endStr    = flag.String("end", time.Now().UTC().Format("2006-01-02"), "end date (YYYY-MM-DD)")
		top       = flag.Int("top", 5, "number of best trials to print")
		save      = flag.Bool("save", false, "archive the best run summary to SQLite")
	)
	flag.Parse()

	if *stratName == "" || *symbol == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg := loadConfig()
	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	reg := strategy.NewRegistry()
	if err := builtins.RegisterAll(reg); err != nil {
		log.Fatalf("registering strategies: %v", err)
	}

	ctx := context.Background()
	bars, err := loadBars(ctx, cfg, *csvPath, *symbol, *startStr, *endStr)
	if err != nil {
		log.Fatalf("loading bars: %v", err)
	}
	logger.Info("loaded bars", "symbol", *symbol, "bars", len(bars))

	opt := backtest.NewOptimizer(reg, backtestConfig(cfg), cfg.Optimizer.MaxWorkers, logger)
	runStart := time.Now()
	res, err := opt.Run(*stratName, *symbol, bars)
	if err != nil {
		log.Fatalf("optimization failed: %v", err)
	}
	logger.Info("optimization complete",
		"trials", len(res.Trials), "elapsed", time.Since(runStart).Round(time.Second))

	printTrials(res, *top)

	if *save {
		if err := saveBest(ctx, cfg, res.Best.Result); err != nil {
			log.Fatalf("saving run: %v", err)
		}
	}
}

// loadConfig reads the YAML config named by GRIDBOT_CONFIG (default
// config/gridbot.yaml), falling back to built-in defaults when the file does
// not exist.
func loadConfig() *config.Config {
	cfgPath := "config/gridbot.yaml"
	if p := os.Getenv("GRIDBOT_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		if os.IsNotExist(err) {
			return config.Default()
		}
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// backtestConfig maps the file configuration onto runner settings.
func backtestConfig(cfg *config.Config) backtest.Config {
	bt := backtest.DefaultConfig()
	bt.InitialCapital = cfg.Backtest.InitialCapital
	bt.CommissionRate = cfg.Backtest.CommissionRate
	bt.RiskFraction = cfg.Backtest.RiskFraction
	bt.RiskFreeRate = cfg.Backtest.RiskFreeRate
	bt.Interval = cfg.Backtest.Interval
	bt.Indicators.SMAWindows = cfg.Indicators.SMAWindows
	bt.Indicators.BBWindow = cfg.Indicators.BBWindow
	bt.Indicators.BBStd = cfg.Indicators.BBStd
	bt.Indicators.RSIWindow = cfg.Indicators.RSIWindow
	bt.Indicators.ATRWindow = cfg.Indicators.ATRWindow
	bt.Indicators.MACDFast = cfg.Indicators.MACDFast
	bt.Indicators.MACDSlow = cfg.Indicators.MACDSlow
	bt.Indicators.MACDSignal = cfg.Indicators.MACDSignal
	bt.Indicators.MinChunkSize = cfg.Indicators.MinChunkSize
	return bt
}

func loadBars(ctx context.Context, cfg *config.Config, csvPath, symbol, startStr, endStr string) ([]domain.Bar, error) {
	if csvPath != "" {
		return store.ReadCSVBars(csvPath, symbol)
	}

	start, err := time.Parse("2006-01-02", startStr)
	if err != nil {
		return nil, fmt.Errorf("parsing start date %q: %w", startStr, err)
	}
	end, err := time.Parse("2006-01-02", endStr)
	if err != nil {
		return nil, fmt.Errorf("parsing end date %q: %w", endStr, err)
	}

	pstore := store.NewParquetStore(cfg.Storage.DataDir)
	return pstore.ReadBars(ctx, symbol, start, end.Add(24*time.Hour-time.Nanosecond))
}

// printTrials lists the top n successful trials by Sharpe ratio.
func printTrials(res *backtest.OptimizationResult, n int) {
	ranked := make([]*backtest.Trial, 0, len(res.Trials))
	for i := range res.Trials {
		if res.Trials[i].Err == nil {
			ranked = append(ranked, &res.Trials[i])
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Result.Metrics.SharpeRatio > ranked[j].Result.Metrics.SharpeRatio
	})
	if n > len(ranked) {
		n = len(ranked)
	}

	fmt.Printf("\n=== top %d of %d trials ===\n", n, len(res.Trials))
	for i := 0; i < n; i++ {
		t := ranked[i]
		params, _ := json.Marshal(t.Params)
		fmt.Printf("%2d. sharpe %7.3f  return %7.2f%%  maxDD %6.2f%%  trades %3d  %s\n",
			i+1,
			t.Result.Metrics.SharpeRatio,
			t.Result.Metrics.TotalReturn*100,
			t.Result.Metrics.MaxDrawdown*100,
			t.Result.Metrics.TotalTrades,
			params,
		)
	}
}

func saveBest(ctx context.Context, cfg *config.Config, r *backtest.Result) error {
	runs, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return err
	}
	defer runs.Close()

	paramsJSON, err := json.Marshal(r.Params)
	if err != nil {
		return err
	}

	rec := &store.RunRecord{
		ID:           uuid.NewString(),
		Strategy:     r.Strategy,
		Symbol:       r.Symbol,
		ParamsJSON:   string(paramsJSON),
		TotalReturn:  r.Metrics.TotalReturn,
		SharpeRatio:  r.Metrics.SharpeRatio,
		MaxDrawdown:  r.Metrics.MaxDrawdown,
		WinRate:      r.Metrics.WinRate,
		TotalTrades:  r.Metrics.TotalTrades,
		FinalCapital: r.FinalCapital,
		CreatedAt:    time.Now().UTC(),
	}
	if err := runs.SaveRun(ctx, rec); err != nil {
		return err
	}
	fmt.Printf("Saved best run %s\n", rec.ID)
	return nil
}
