package builtins

import (
	"math"

	"gridbot/internal/domain"
	"gridbot/internal/indicator"
	"gridbot/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*Hedging)(nil)

// Hedging is a dynamic hedging strategy: it opens a hedge against sharp
// price moves that occur in elevated volatility, sizing the hedge by a
// volatility-adjusted ratio clamped to a configured band. A drop beyond the
// threshold hedges long, a rally beyond it hedges short.
type Hedging struct {
	strategy.Base

	hedged bool
}

// NewHedging constructs the "hedging" strategy for the given symbol.
func NewHedging(symbol string, overrides strategy.Params) (strategy.Strategy, error) {
	base, err := strategy.NewBase("hedging", symbol,
		strategy.Params{
			"hedge_threshold":    0.02,
			"risk_factor":        1.0,
			"correlation_window": 20,
			"volatility_window":  14,
			"min_hedge_ratio":    0.5,
			"max_hedge_ratio":    2.0,
		},
		[]string{"hedge_threshold", "risk_factor", "correlation_window"},
		overrides,
	)
	if err != nil {
		return nil, err
	}
	return &Hedging{Base: base}, nil
}

// ParamRanges returns the optimisation grid for each parameter.
func (s *Hedging) ParamRanges() map[string]strategy.Range {
	return map[string]strategy.Range{
		"hedge_threshold":    {Min: 0.01, Max: 0.05, Step: 0.005},
		"risk_factor":        {Min: 0.5, Max: 2.0, Step: 0.1},
		"correlation_window": {Min: 10, Max: 50, Step: 5},
		"volatility_window":  {Min: 7, Max: 28, Step: 7},
	}
}

// RequiredIndicators lists the volatility column consumed by the per-bar
// path.
func (s *Hedging) RequiredIndicators() []string {
	return []string{indicator.ColVolatilityRatio}
}

// Reset clears the open-hedge flag.
func (s *Hedging) Reset() { s.hedged = false }

// hedgeRatio scales the base risk factor by the current volatility relative
// to its running mean, clamped to the configured band.
func (s *Hedging) hedgeRatio(vol, meanVol float64) float64 {
	ratio := s.P("risk_factor")
	if meanVol > 0 {
		ratio *= vol / meanVol
	}
	return math.Min(math.Max(ratio, s.P("min_hedge_ratio")), s.P("max_hedge_ratio"))
}

// GenerateSignals computes bar returns and their rolling volatility, then
// hedges the bars where the return breaches the threshold while volatility
// sits above its running mean. Signal size is the hedge ratio.
func (s *Hedging) GenerateSignals(f *indicator.Frame) ([]domain.Signal, error) {
	closes := domain.Closes(f.Bars)
	signals := make([]domain.Signal, len(closes))
	if len(closes) < 2 {
		return signals, nil
	}

	returns := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		if closes[i-1] != 0 {
			returns[i] = (closes[i] - closes[i-1]) / closes[i-1]
		}
	}
	vol := indicator.RollingStd(returns, s.PInt("volatility_window"))

	threshold := s.P("hedge_threshold")
	volSum := 0.0
	for i := 1; i < len(closes); i++ {
		volSum += vol[i]
		meanVol := volSum / float64(i)
		if vol[i] <= meanVol {
			continue
		}

		switch {
		case returns[i] < -threshold:
			signals[i] = domain.Signal{Action: domain.ActionBuy, Size: s.hedgeRatio(vol[i], meanVol)}
		case returns[i] > threshold:
			signals[i] = domain.Signal{Action: domain.ActionSell, Size: s.hedgeRatio(vol[i], meanVol)}
		}
	}
	return signals, nil
}

// Analyze hedges a single bar from its own open-to-close move, using the
// frame's volatility ratio column as the regime gate. At most one hedge is
// held at a time; a counter-move closes it.
func (s *Hedging) Analyze(bar domain.Bar, row map[string]float64) ([]domain.Signal, error) {
	if bar.Open == 0 {
		return nil, nil
	}
	move := (bar.Close - bar.Open) / bar.Open
	threshold := s.P("hedge_threshold")

	volRatio, ok := row[indicator.ColVolatilityRatio]
	if !ok {
		return nil, &indicator.MissingColumnError{Column: indicator.ColVolatilityRatio}
	}

	switch {
	case !s.hedged && move < -threshold && volRatio > 1:
		s.hedged = true
		return []domain.Signal{{Action: domain.ActionBuy, Size: s.hedgeRatio(volRatio, 1)}}, nil
	case s.hedged && move > threshold/2:
		s.hedged = false
		return []domain.Signal{{Action: domain.ActionSell, Size: s.P("risk_factor")}}, nil
	}
	return nil, nil
}
