package builtins

import (
	"gridbot/internal/domain"
	"gridbot/internal/indicator"
	"gridbot/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*BollingerBreakout)(nil)

// BollingerBreakout trades band breakouts: a buy when the close falls below
// the lower Bollinger band, a sell when it rises above the upper band. Each
// signal carries a fixed trade amount plus percentage stop-loss and
// take-profit levels.
type BollingerBreakout struct {
	strategy.Base
}

// NewBollingerBreakout constructs the "bollinger-breakout" strategy.
func NewBollingerBreakout(symbol string, overrides strategy.Params) (strategy.Strategy, error) {
	base, err := strategy.NewBase("bollinger-breakout", symbol,
		strategy.Params{
			"bb_period":   20,
			"bb_std":      2,
			"amount":      100,
			"stop_loss":   0.02,
			"take_profit": 0.04,
		},
		[]string{"bb_period", "bb_std", "amount", "stop_loss", "take_profit"},
		overrides,
	)
	if err != nil {
		return nil, err
	}
	return &BollingerBreakout{Base: base}, nil
}

// ParamRanges returns the optimisation grid for each parameter.
func (s *BollingerBreakout) ParamRanges() map[string]strategy.Range {
	return map[string]strategy.Range{
		"bb_period":   {Min: 10, Max: 50, Step: 5},
		"bb_std":      {Min: 1.5, Max: 3.0, Step: 0.1},
		"amount":      {Min: 50, Max: 200, Step: 50},
		"stop_loss":   {Min: 0.01, Max: 0.05, Step: 0.005},
		"take_profit": {Min: 0.03, Max: 0.06, Step: 0.005},
	}
}

// RequiredIndicators lists the band columns consumed by the per-bar path.
func (s *BollingerBreakout) RequiredIndicators() []string {
	return []string{indicator.ColBBUpper, indicator.ColBBMiddle, indicator.ColBBLower}
}

// Reset is a no-op: the strategy keeps no per-run state.
func (s *BollingerBreakout) Reset() {}

// GenerateSignals recomputes the bands from closes with the strategy's own
// period and width, then marks breakouts bar by bar.
func (s *BollingerBreakout) GenerateSignals(f *indicator.Frame) ([]domain.Signal, error) {
	closes := domain.Closes(f.Bars)
	signals := make([]domain.Signal, len(closes))

	_, upper, lower := indicator.BollingerBands(closes, s.PInt("bb_period"), s.P("bb_std"))

	amount := s.P("amount")
	stopLoss := s.P("stop_loss")
	takeProfit := s.P("take_profit")

	for i, price := range closes {
		switch {
		case price < lower[i]:
			signals[i] = domain.Signal{
				Action:     domain.ActionBuy,
				Size:       amount,
				StopLoss:   price * (1 - stopLoss),
				TakeProfit: price * (1 + takeProfit),
			}
		case price > upper[i]:
			signals[i] = domain.Signal{
				Action:     domain.ActionSell,
				Size:       amount,
				StopLoss:   price * (1 + stopLoss),
				TakeProfit: price * (1 - takeProfit),
			}
		}
	}
	return signals, nil
}

// Analyze applies the breakout rule to one bar using the band values from
// its indicator row.
func (s *BollingerBreakout) Analyze(bar domain.Bar, row map[string]float64) ([]domain.Signal, error) {
	upper, ok := row[indicator.ColBBUpper]
	if !ok {
		return nil, &indicator.MissingColumnError{Column: indicator.ColBBUpper}
	}
	lower, ok := row[indicator.ColBBLower]
	if !ok {
		return nil, &indicator.MissingColumnError{Column: indicator.ColBBLower}
	}

	price := bar.Close
	amount := s.P("amount")
	stopLoss := s.P("stop_loss")
	takeProfit := s.P("take_profit")

	switch {
	case price < lower:
		return []domain.Signal{{
			Action:     domain.ActionBuy,
			Size:       amount,
			StopLoss:   price * (1 - stopLoss),
			TakeProfit: price * (1 + takeProfit),
		}}, nil
	case price > upper:
		return []domain.Signal{{
			Action:     domain.ActionSell,
			Size:       amount,
			StopLoss:   price * (1 + stopLoss),
			TakeProfit: price * (1 - takeProfit),
		}}, nil
	}
	return nil, nil
}
