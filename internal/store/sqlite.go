package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ RunStore = (*SQLiteStore)(nil)

// SQLiteStore implements RunStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

const runSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	strategy      TEXT NOT NULL,
	symbol        TEXT NOT NULL,
	params        TEXT NOT NULL,
	total_return  REAL NOT NULL,
	sharpe_ratio  REAL NOT NULL,
	max_drawdown  REAL NOT NULL,
	win_rate      REAL NOT NULL,
	total_trades  INTEGER NOT NULL,
	final_capital REAL NOT NULL,
	created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_strategy ON runs (strategy, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_runs_sharpe ON runs (strategy, symbol, sharpe_ratio DESC);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// schema, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db %s: %w", dbPath, err)
	}
	if _, err := db.Exec(runSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying run schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun inserts a run record.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *RunRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, strategy, symbol, params, total_return, sharpe_ratio,
			max_drawdown, win_rate, total_trades, final_capital, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Strategy, run.Symbol, run.ParamsJSON,
		run.TotalReturn, run.SharpeRatio, run.MaxDrawdown, run.WinRate,
		run.TotalTrades, run.FinalCapital, run.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("saving run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun retrieves a single run by its ID, or nil if absent.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, strategy, symbol, params, total_return, sharpe_ratio,
			max_drawdown, win_rate, total_trades, final_capital, created_at
		FROM runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

// ListRuns returns the most recent runs for a strategy, newest first. An
// empty strategy matches all runs.
func (s *SQLiteStore) ListRuns(ctx context.Context, strategy string, limit int) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, strategy, symbol, params, total_return, sharpe_ratio,
			max_drawdown, win_rate, total_trades, final_capital, created_at
		FROM runs
		WHERE (? = '' OR strategy = ?)
		ORDER BY created_at DESC
		LIMIT ?`, strategy, strategy, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// BestRun returns the highest-Sharpe run for a strategy and symbol, or nil
// if none exists.
func (s *SQLiteStore) BestRun(ctx context.Context, strategy, symbol string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, strategy, symbol, params, total_return, sharpe_ratio,
			max_drawdown, win_rate, total_trades, final_capital, created_at
		FROM runs
		WHERE strategy = ? AND symbol = ?
		ORDER BY sharpe_ratio DESC, created_at DESC
		LIMIT 1`, strategy, symbol)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	var run RunRecord
	var createdAt int64
	err := row.Scan(
		&run.ID, &run.Strategy, &run.Symbol, &run.ParamsJSON,
		&run.TotalReturn, &run.SharpeRatio, &run.MaxDrawdown, &run.WinRate,
		&run.TotalTrades, &run.FinalCapital, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	run.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &run, nil
}
