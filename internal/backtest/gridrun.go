package backtest

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"gridbot/internal/domain"
	"gridbot/internal/grid"
	"gridbot/internal/indicator"
	"gridbot/internal/strategy"
	"gridbot/internal/util"
)

// GridStrategy is implemented by strategies that expose a live paired-level
// grid for the runner to drive.
type GridStrategy interface {
	strategy.Strategy
	Grid() *grid.Grid
}

// GridRunner simulates grid-family strategies. Unlike the Runner's single
// net position, every level fill is an independent entry: commission is
// charged at fill time, and a completed pair settles as one consolidated
// trade with both legs unwound at the current price.
type GridRunner struct {
	cfg Config
	log *slog.Logger
}

// NewGridRunner creates a GridRunner with the given configuration.
func NewGridRunner(cfg Config, log *slog.Logger) *GridRunner {
	if log == nil {
		log = slog.Default()
	}
	return &GridRunner{cfg: cfg, log: log}
}

// Run replays bars against the strategy's grid: the first bar seeds the
// ladder, later bars fill crossed levels, close completed pairs and
// re-center the grid when price drifts to its boundary. Fills respect the
// capital constraint; an unfundable fill is skipped and the level stays
// pending.
func (r *GridRunner) Run(bars []domain.Bar, strat GridStrategy) (*Result, error) {
	if err := domain.ValidateBars(bars); err != nil {
		return nil, fmt.Errorf("grid backtest %s: %w", strat.Name(), err)
	}

	f := indicator.ComputeParallel(bars, r.cfg.Indicators, r.cfg.workers())
	if err := indicator.Require(f, strat.RequiredIndicators()); err != nil {
		return nil, fmt.Errorf("grid backtest %s: %w", strat.Name(), err)
	}

	strat.Reset()
	g := strat.Grid()

	res := &Result{
		Symbol:   strat.Symbol(),
		Strategy: strat.Name(),
		Params:   strat.Params(),
	}
	capital := r.cfg.InitialCapital

	prev := 0.0
	for _, bar := range bars {
		price := bar.Close

		if prev != 0 {
			capital = r.fillCrossed(res, g, bar, prev, capital)
			capital = r.closePairs(res, g, bar, capital)
		}
		if g.ShouldAdjust(price) {
			g.Adjust(price)
		}
		prev = price

		res.EquityCurve = append(res.EquityCurve, EquityPoint{
			Timestamp: bar.Timestamp,
			Equity:    capital + openValue(g, price),
		})
	}

	res.FinalCapital = capital
	res.Metrics = ComputeMetrics(
		res.EquityCurve, res.Trades,
		util.PeriodsPerYear(r.cfg.Interval), r.cfg.RiskFreeRate,
	)
	return res, nil
}

// openValue marks every filled, unclosed leg to the given price: long legs
// positive, short legs negative.
func openValue(g *grid.Grid, price float64) float64 {
	v := 0.0
	for _, l := range g.Levels() {
		if !l.IsFilled() {
			continue
		}
		if l.Side == domain.SideBuy {
			v += l.Size * price
		} else {
			v -= l.Size * price
		}
	}
	return v
}

// fillCrossed fills every pending level the close crossed since the previous
// bar, charging commission at the fill. A fill whose cost exceeds capital is
// skipped and the level stays pending; once the grid's open-level cap is
// reached, remaining crossings wait for a pair to close.
func (r *GridRunner) fillCrossed(res *Result, g *grid.Grid, bar domain.Bar, prev, capital float64) float64 {
	price := bar.Close
	for _, l := range g.Levels() {
		if g.AtCapacity() {
			break
		}
		if !l.IsPending() || !l.Crossed(prev, price) {
			continue
		}

		notional := l.Size * price
		commission := notional * r.cfg.CommissionRate
		cost := commission
		if l.Side == domain.SideBuy {
			cost += notional
		}
		if cost > capital {
			r.log.Warn("grid fill skipped: insufficient capital",
				"strategy", res.Strategy, "side", string(l.Side),
				"level", l.Price, "notional", notional, "capital", capital)
			res.Skipped = append(res.Skipped, SkippedTrade{
				Timestamp: bar.Timestamp,
				Side:      l.Side,
				Price:     price,
				Size:      l.Size,
				Notional:  notional,
				Reason:    "insufficient capital",
			})
			continue
		}

		if err := l.Fill(price, bar.Timestamp); err != nil {
			// Cannot happen for a pending level; guard anyway.
			continue
		}

		value := -notional - commission
		if l.Side == domain.SideSell {
			value = notional - commission
		}
		capital += value

		res.Trades = append(res.Trades, Trade{
			ID:         uuid.NewString(),
			Timestamp:  bar.Timestamp,
			Side:       l.Side,
			Price:      price,
			Size:       l.Size,
			Commission: commission,
			Value:      value,
		})
	}
	return capital
}

// closePairs settles every pair whose close condition holds, unwinding both
// legs at the current price into one consolidated trade. Leg cash flows were
// settled at fill time, so only the size mismatch between legs moves cash.
func (r *GridRunner) closePairs(res *Result, g *grid.Grid, bar domain.Bar, capital float64) float64 {
	price := bar.Close
	for _, pair := range g.ClosePairs(price, bar.Timestamp) {
		longPnL := (price - pair.Buy.FillPrice()) * pair.Buy.Size
		shortPnL := (pair.Sell.FillPrice() - price) * pair.Sell.Size
		value := (pair.Buy.Size - pair.Sell.Size) * price
		capital += value

		res.Trades = append(res.Trades, Trade{
			ID:        uuid.NewString(),
			Timestamp: pair.CloseTime,
			Side:      domain.SideSell,
			Price:     price,
			Size:      pair.Buy.Size,
			Value:     value,
			PnL:       longPnL + shortPnL,
			OpenTime:  pair.OpenTime,
		})
	}
	return capital
}
