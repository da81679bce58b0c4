// Package store persists and retrieves bar data and backtest run records.
// Bars live in Parquet files partitioned by symbol and year; run summaries
// are archived in SQLite.
package store

import (
	"context"
	"time"

	"gridbot/internal/domain"
)

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars, merging with existing data by
	// (symbol, timestamp) with incoming bars winning.
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol within [start, end],
	// sorted by timestamp.
	ReadBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols with stored bars.
	ListSymbols(ctx context.Context) ([]string, error)
}

// RunRecord is the archived summary of one backtest or optimization run.
type RunRecord struct {
	ID           string
	Strategy     string
	Symbol       string
	ParamsJSON   string
	TotalReturn  float64
	SharpeRatio  float64
	MaxDrawdown  float64
	WinRate      float64
	TotalTrades  int
	FinalCapital float64
	CreatedAt    time.Time
}

// RunStore archives backtest run summaries.
type RunStore interface {
	// SaveRun inserts a run record.
	SaveRun(ctx context.Context, run *RunRecord) error

	// GetRun retrieves a single run by its ID.
	GetRun(ctx context.Context, id string) (*RunRecord, error)

	// ListRuns returns the most recent runs for a strategy, newest first,
	// up to limit. An empty strategy matches all.
	ListRuns(ctx context.Context, strategy string, limit int) ([]RunRecord, error)

	// BestRun returns the highest-Sharpe run for a strategy and symbol.
	BestRun(ctx context.Context, strategy, symbol string) (*RunRecord, error)
}
