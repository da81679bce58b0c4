// Package backtest replays historical bars through a strategy, tracking
// capital, positions and trades, and derives performance metrics from the
// resulting equity curve. A Runner handles signal-family strategies with a
// single net position; a GridRunner handles grid-family strategies whose
// fills are independent paired entries. The Optimizer wraps either over a
// parameter grid.
package backtest

import (
	"time"

	"gridbot/internal/domain"
	"gridbot/internal/strategy"
)

// Trade is one immutable entry in the append-only trade ledger. Entries have
// zero PnL; closing trades carry the realized PnL and the open time of the
// position they closed.
type Trade struct {
	ID         string
	Timestamp  time.Time
	Side       domain.Side
	Price      float64
	Size       float64
	Commission float64
	Value      float64 // signed cash flow, negative for outflows
	PnL        float64
	OpenTime   time.Time // zero for entries
}

// SkippedTrade records a prospective trade that could not be funded. This is
// a normal outcome of the capital constraint, not an error.
type SkippedTrade struct {
	Timestamp time.Time
	Side      domain.Side
	Price     float64
	Size      float64
	Notional  float64
	Reason    string
}

// EquityPoint is one sample of the equity curve: remaining capital plus the
// value of open positions marked to the bar's close. Exactly one point is
// recorded per simulated bar, in bar order.
type EquityPoint struct {
	Timestamp time.Time
	Equity    float64
}

// Result is the full outcome of one backtest run.
type Result struct {
	Symbol       string
	Strategy     string
	Params       strategy.Params
	Metrics      Metrics
	Trades       []Trade
	Skipped      []SkippedTrade
	EquityCurve  []EquityPoint
	FinalCapital float64
}
