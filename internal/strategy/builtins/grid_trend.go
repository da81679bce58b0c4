package builtins

import (
	"math"

	"gridbot/internal/domain"
	"gridbot/internal/indicator"
	"gridbot/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*GridTrend)(nil)

// GridTrend is a grid trading strategy with a trend filter. It lays a static
// ladder of evenly spaced price levels around the first close and trades
// level crossings in the direction of the prevailing trend: buying dips in an
// uptrend, selling rallies in a downtrend. Every entry carries a percentage
// stop loss.
type GridTrend struct {
	strategy.Base

	// Per-run state used by Analyze.
	levels        []float64
	lastGridIndex int
	position      int
	stopLossPrice float64
	prevClose     float64
}

// NewGridTrend constructs the "grid" strategy for the given symbol.
func NewGridTrend(symbol string, overrides strategy.Params) (strategy.Strategy, error) {
	base, err := strategy.NewBase("grid", symbol,
		strategy.Params{
			"grid_size":       20,
			"grid_spacing":    0.005,
			"size_multiplier": 1.0,
			"min_profit":      0.001,
			"stop_loss":       0.02,
			"trend_period":    20,
			"risk_per_trade":  0.01,
		},
		[]string{
			"grid_size", "grid_spacing", "size_multiplier", "min_profit",
			"stop_loss", "trend_period", "risk_per_trade",
		},
		overrides,
	)
	if err != nil {
		return nil, err
	}
	s := &GridTrend{Base: base}
	s.Reset()
	return s, nil
}

// ParamRanges returns the optimisation grid for each parameter.
func (s *GridTrend) ParamRanges() map[string]strategy.Range {
	return map[string]strategy.Range{
		"grid_size":       {Min: 5, Max: 50, Step: 5},
		"grid_spacing":    {Min: 0.001, Max: 0.05, Step: 0.005},
		"size_multiplier": {Min: 0.1, Max: 5.0, Step: 0.5},
		"min_profit":      {Min: 0.0001, Max: 0.01, Step: 0.001},
		"stop_loss":       {Min: 0.005, Max: 0.05, Step: 0.005},
		"trend_period":    {Min: 10, Max: 50, Step: 10},
		"risk_per_trade":  {Min: 0.001, Max: 0.05, Step: 0.005},
	}
}

// RequiredIndicators returns nil: the trend filter is computed from closes
// with the strategy's own period, which may differ from the frame settings.
func (s *GridTrend) RequiredIndicators() []string { return nil }

// Reset clears the per-run grid walk state.
func (s *GridTrend) Reset() {
	s.levels = nil
	s.lastGridIndex = -1
	s.position = 0
	s.stopLossPrice = 0
	s.prevClose = 0
}

// gridLevels builds 2*gridSize+1 evenly spaced levels spanning
// center*(1-range) to center*(1+range).
func (s *GridTrend) gridLevels(center float64) []float64 {
	gridSize := s.PInt("grid_size")
	gridRange := float64(gridSize) * s.P("grid_spacing")
	lower := center * (1 - gridRange)
	upper := center * (1 + gridRange)

	n := 2*gridSize + 1
	levels := make([]float64, n)
	step := (upper - lower) / float64(n-1)
	for i := range levels {
		levels[i] = lower + float64(i)*step
	}
	return levels
}

// closestLevel returns the index of the grid level nearest to price.
func closestLevel(levels []float64, price float64) int {
	best, bestDist := 0, math.Inf(1)
	for i, l := range levels {
		if d := math.Abs(l - price); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// GenerateSignals walks the close series bar by bar. Signals start after the
// trend warm-up period. A long stop triggers a sell, a short stop triggers a
// buy; otherwise a downward level change in an uptrend buys and an upward
// level change in a downtrend sells.
func (s *GridTrend) GenerateSignals(f *indicator.Frame) ([]domain.Signal, error) {
	closes := domain.Closes(f.Bars)
	signals := make([]domain.Signal, len(closes))
	if len(closes) == 0 {
		return signals, nil
	}

	trendPeriod := s.PInt("trend_period")
	stopLoss := s.P("stop_loss")
	sma := indicator.RollingMean(closes, trendPeriod)
	levels := s.gridLevels(closes[0])

	lastGridIndex := -1
	position := 0
	stopLossPrice := 0.0

	for i := trendPeriod; i < len(closes); i++ {
		price := closes[i]
		uptrend := price > sma[i]

		if stopLossPrice != 0 {
			if position > 0 && price <= stopLossPrice {
				signals[i] = domain.Signal{Action: domain.ActionSell}
				position = 0
				stopLossPrice = 0
				continue
			}
			if position < 0 && price >= stopLossPrice {
				signals[i] = domain.Signal{Action: domain.ActionBuy}
				position = 0
				stopLossPrice = 0
				continue
			}
		}

		gridIndex := closestLevel(levels, price)
		if lastGridIndex >= 0 && gridIndex != lastGridIndex {
			switch {
			case gridIndex > lastGridIndex && !uptrend:
				stopLossPrice = price * (1 + stopLoss)
				signals[i] = domain.Signal{Action: domain.ActionSell, StopLoss: stopLossPrice}
				position--
			case gridIndex < lastGridIndex && uptrend:
				stopLossPrice = price * (1 - stopLoss)
				signals[i] = domain.Signal{Action: domain.ActionBuy, StopLoss: stopLossPrice}
				position++
			}
		}
		lastGridIndex = gridIndex
	}
	return signals, nil
}

// Analyze applies the same level-crossing rule to a single bar, keeping the
// walk state between calls.
func (s *GridTrend) Analyze(bar domain.Bar, _ map[string]float64) ([]domain.Signal, error) {
	price := bar.Close
	if s.levels == nil {
		s.levels = s.gridLevels(price)
	}
	defer func() { s.prevClose = price }()

	stopLoss := s.P("stop_loss")
	if s.stopLossPrice != 0 {
		if s.position > 0 && price <= s.stopLossPrice {
			s.position = 0
			s.stopLossPrice = 0
			return []domain.Signal{{Action: domain.ActionSell}}, nil
		}
		if s.position < 0 && price >= s.stopLossPrice {
			s.position = 0
			s.stopLossPrice = 0
			return []domain.Signal{{Action: domain.ActionBuy}}, nil
		}
	}

	gridIndex := closestLevel(s.levels, price)
	last := s.lastGridIndex
	s.lastGridIndex = gridIndex
	if last < 0 || gridIndex == last {
		return nil, nil
	}

	// Without frame context the per-bar trend is approximated by the last
	// price change direction.
	uptrend := s.prevClose != 0 && price > s.prevClose
	switch {
	case gridIndex > last && !uptrend:
		s.stopLossPrice = price * (1 + stopLoss)
		s.position--
		return []domain.Signal{{Action: domain.ActionSell, StopLoss: s.stopLossPrice}}, nil
	case gridIndex < last && uptrend:
		s.stopLossPrice = price * (1 - stopLoss)
		s.position++
		return []domain.Signal{{Action: domain.ActionBuy, StopLoss: s.stopLossPrice}}, nil
	}
	return nil, nil
}
