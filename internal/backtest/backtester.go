package backtest

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"gridbot/internal/domain"
	"gridbot/internal/indicator"
	"gridbot/internal/strategy"
	"gridbot/internal/util"
)

// Config carries the simulation parameters shared by runners.
type Config struct {
	InitialCapital float64
	CommissionRate float64
	RiskFraction   float64 // fraction of capital committed per entry
	RiskFreeRate   float64
	Interval       string // bar interval, drives annualisation
	Indicators     indicator.Settings
	Workers        int // preprocessing workers; 0 means cores-1
}

// DefaultConfig returns the conventional simulation parameters.
func DefaultConfig() Config {
	return Config{
		InitialCapital: 100000,
		CommissionRate: 0.001,
		RiskFraction:   0.02,
		RiskFreeRate:   0.02,
		Interval:       "1d",
		Indicators:     indicator.DefaultSettings(),
	}
}

func (c Config) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return util.Workers()
}

// position is a single open net position held by the Runner.
type position struct {
	id       string
	side     domain.Side
	size     float64
	entry    float64
	openTime time.Time
}

// Runner simulates signal-family strategies: one net position at a time,
// with a flatten-then-reverse execution rule. Opening in the direction of
// the existing position is a no-op; an opposite signal first closes the
// position, realizing its PnL, then opens the new one.
type Runner struct {
	cfg Config
	log *slog.Logger
}

// NewRunner creates a Runner with the given configuration.
func NewRunner(cfg Config, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{cfg: cfg, log: log}
}

// Run replays bars through the strategy. Bars must be sorted, deduplicated
// and strictly increasing; preprocessing failures and missing indicator
// columns fail the run. Processing within the run is strictly sequential.
func (r *Runner) Run(bars []domain.Bar, strat strategy.Strategy) (*Result, error) {
	if err := domain.ValidateBars(bars); err != nil {
		return nil, fmt.Errorf("backtest %s: %w", strat.Name(), err)
	}

	f := indicator.ComputeParallel(bars, r.cfg.Indicators, r.cfg.workers())
	if err := indicator.Require(f, strat.RequiredIndicators()); err != nil {
		return nil, fmt.Errorf("backtest %s: %w", strat.Name(), err)
	}

	strat.Reset()
	signals, err := strat.GenerateSignals(f)
	if err != nil {
		return nil, fmt.Errorf("backtest %s: generate signals: %w", strat.Name(), err)
	}
	if len(signals) != len(bars) {
		return nil, fmt.Errorf("backtest %s: %d signals for %d bars", strat.Name(), len(signals), len(bars))
	}

	res := &Result{
		Symbol:   strat.Symbol(),
		Strategy: strat.Name(),
		Params:   strat.Params(),
	}

	capital := r.cfg.InitialCapital
	sizeMultiplier := 1.0
	if m, ok := strat.Params()["size_multiplier"]; ok && m > 0 {
		sizeMultiplier = m
	}

	var pos *position
	for i, bar := range bars {
		price := bar.Close
		sig := signals[i]

		switch sig.Action {
		case domain.ActionBuy:
			if pos == nil || pos.side != domain.SideBuy {
				capital = r.execute(res, &pos, domain.SideBuy, bar, capital, sizeMultiplier)
			}
		case domain.ActionSell:
			if pos == nil || pos.side != domain.SideSell {
				capital = r.execute(res, &pos, domain.SideSell, bar, capital, sizeMultiplier)
			}
		}

		res.EquityCurve = append(res.EquityCurve, EquityPoint{
			Timestamp: bar.Timestamp,
			Equity:    capital + markValue(pos, price),
		})
	}

	res.FinalCapital = capital
	res.Metrics = ComputeMetrics(
		res.EquityCurve, res.Trades,
		util.PeriodsPerYear(r.cfg.Interval), r.cfg.RiskFreeRate,
	)
	return res, nil
}

// markValue is the signed value of the open position at the given price.
func markValue(pos *position, price float64) float64 {
	if pos == nil {
		return 0
	}
	if pos.side == domain.SideBuy {
		return pos.size * price
	}
	return -pos.size * price
}

// execute flattens any opposite position and opens a new one sized as a risk
// fraction of current capital. It returns the updated capital; an unfundable
// entry is recorded as skipped and leaves state unchanged apart from the
// flatten.
func (r *Runner) execute(res *Result, pos **position, side domain.Side, bar domain.Bar, capital, sizeMultiplier float64) float64 {
	price := bar.Close

	if p := *pos; p != nil {
		capital = r.close(res, p, bar, capital)
		*pos = nil
	}

	size := capital * r.cfg.RiskFraction / price * sizeMultiplier
	notional := size * price
	commission := notional * r.cfg.CommissionRate

	// Long entries debit the full notional; short entries only pay
	// commission against the sale credit.
	cost := commission
	if side == domain.SideBuy {
		cost += notional
	}
	if cost > capital {
		r.log.Warn("trade skipped: insufficient capital",
			"strategy", res.Strategy, "side", string(side),
			"notional", notional, "capital", capital)
		res.Skipped = append(res.Skipped, SkippedTrade{
			Timestamp: bar.Timestamp,
			Side:      side,
			Price:     price,
			Size:      size,
			Notional:  notional,
			Reason:    "insufficient capital",
		})
		return capital
	}

	value := -notional - commission
	if side == domain.SideSell {
		value = notional - commission
	}
	capital += value

	*pos = &position{
		id:       uuid.NewString(),
		side:     side,
		size:     size,
		entry:    price,
		openTime: bar.Timestamp,
	}
	res.Trades = append(res.Trades, Trade{
		ID:         (*pos).id,
		Timestamp:  bar.Timestamp,
		Side:       side,
		Price:      price,
		Size:       size,
		Commission: commission,
		Value:      value,
	})
	return capital
}

// close unwinds the open position at the bar's close, realizing its PnL.
func (r *Runner) close(res *Result, p *position, bar domain.Bar, capital float64) float64 {
	price := bar.Close
	notional := p.size * price
	commission := notional * r.cfg.CommissionRate

	var value, pnl float64
	var side domain.Side
	if p.side == domain.SideBuy {
		side = domain.SideSell
		value = notional - commission
		pnl = (price - p.entry) * p.size
	} else {
		side = domain.SideBuy
		value = -notional - commission
		pnl = (p.entry - price) * p.size
	}
	capital += value

	res.Trades = append(res.Trades, Trade{
		ID:         uuid.NewString(),
		Timestamp:  bar.Timestamp,
		Side:       side,
		Price:      price,
		Size:       p.size,
		Commission: commission,
		Value:      value,
		PnL:        pnl - commission,
		OpenTime:   p.openTime,
	})
	return capital
}
