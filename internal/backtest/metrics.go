package backtest

import (
	"math"
	"time"

	"github.com/montanaflynn/stats"
)

// Metrics holds the return, risk and trade statistics derived from an equity
// curve and trade ledger. Ratio metrics that would divide by zero resolve to
// 0 or +Inf by the conventions documented on ComputeMetrics; no field is
// ever NaN.
type Metrics struct {
	TotalReturn      float64
	AnnualizedReturn float64
	Volatility       float64
	SharpeRatio      float64
	SortinoRatio     float64
	CalmarRatio      float64
	MaxDrawdown      float64
	WinRate          float64
	ProfitFactor     float64
	TotalTrades      int
	WinningTrades    int
	LosingTrades     int
	AvgWin           float64
	AvgLoss          float64
	LargestWin       float64
	LargestLoss      float64
	AvgTradeDuration time.Duration
}

// ComputeMetrics derives performance statistics from an equity curve and
// trade ledger.
//
// Degenerate inputs follow fixed conventions rather than erroring:
//   - Sharpe and Sortino are 0 for an empty or zero-variance return series,
//     and +Inf when volatility is exactly 0 but returns are not.
//   - Calmar is 0 (not +Inf) when max drawdown is exactly 0.
//   - Profit factor is +Inf when there are winning trades but no losers,
//     and 0 when there are neither.
//   - Annualized return is -1 for a wiped-out account (total return at or
//     below -100%).
func ComputeMetrics(equity []EquityPoint, trades []Trade, periodsPerYear, riskFreeRate float64) Metrics {
	var m Metrics
	m.TotalTrades = len(trades)
	computeTradeStats(&m, trades)

	if len(equity) < 2 || equity[0].Equity == 0 {
		return m
	}

	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Equity
		if prev == 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, (equity[i].Equity-prev)/prev)
	}

	m.TotalReturn = equity[len(equity)-1].Equity/equity[0].Equity - 1
	if base := 1 + m.TotalReturn; base > 0 {
		m.AnnualizedReturn = math.Pow(base, periodsPerYear/float64(len(returns))) - 1
	} else {
		// Equity at or below zero cannot compound; a fractional exponent
		// on a non-positive base would be NaN.
		m.AnnualizedReturn = -1
	}

	vol := sampleStd(returns) * math.Sqrt(periodsPerYear)
	m.Volatility = vol

	var downside []float64
	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	downsideVol := sampleStd(downside) * math.Sqrt(periodsPerYear)

	m.SharpeRatio = excessRatio(m.AnnualizedReturn-riskFreeRate, vol, m.TotalReturn)
	m.SortinoRatio = excessRatio(m.AnnualizedReturn-riskFreeRate, downsideVol, m.TotalReturn)

	m.MaxDrawdown = maxDrawdown(equity)
	if m.MaxDrawdown > 0 {
		m.CalmarRatio = math.Abs(m.TotalReturn / m.MaxDrawdown)
	}
	return m
}

// excessRatio applies the Sharpe/Sortino degeneracy conventions: a flat
// curve (zero total return, zero deviation) rates 0, a nonzero return with
// zero deviation rates +Inf.
func excessRatio(excess, deviation, totalReturn float64) float64 {
	if deviation > 0 {
		return excess / deviation
	}
	if totalReturn == 0 {
		return 0
	}
	return math.Inf(1)
}

// sampleStd is the sample standard deviation, 0 for fewer than two points.
func sampleStd(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	sd, err := stats.StandardDeviationSample(stats.Float64Data(values))
	if err != nil || math.IsNaN(sd) {
		return 0
	}
	return sd
}

// maxDrawdown is the largest peak-to-trough decline of the equity curve,
// expressed as a positive fraction of the peak.
func maxDrawdown(equity []EquityPoint) float64 {
	peak := equity[0].Equity
	worst := 0.0
	for _, p := range equity {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak <= 0 {
			continue
		}
		if dd := (p.Equity - peak) / peak; dd < worst {
			worst = dd
		}
	}
	return math.Abs(worst)
}

func computeTradeStats(m *Metrics, trades []Trade) {
	var winSum, lossSum float64
	var durations []time.Duration

	for _, t := range trades {
		switch {
		case t.PnL > 0:
			m.WinningTrades++
			winSum += t.PnL
			if t.PnL > m.LargestWin {
				m.LargestWin = t.PnL
			}
		case t.PnL < 0:
			m.LosingTrades++
			lossSum += t.PnL
			if t.PnL < m.LargestLoss {
				m.LargestLoss = t.PnL
			}
		}
		if !t.OpenTime.IsZero() {
			durations = append(durations, t.Timestamp.Sub(t.OpenTime))
		}
	}

	if m.TotalTrades > 0 {
		m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades)
	}
	if m.WinningTrades > 0 {
		m.AvgWin = winSum / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AvgLoss = lossSum / float64(m.LosingTrades)
		m.ProfitFactor = math.Abs(winSum / lossSum)
	} else if m.WinningTrades > 0 {
		m.ProfitFactor = math.Inf(1)
	}

	if len(durations) > 0 {
		var total time.Duration
		for _, d := range durations {
			total += d
		}
		m.AvgTradeDuration = total / time.Duration(len(durations))
	}
}
