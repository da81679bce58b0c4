package builtins

import (
	"gridbot/internal/domain"
	"gridbot/internal/grid"
	"gridbot/internal/indicator"
	"gridbot/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*GridHedge)(nil)

// GridHedge runs a paired-level grid: BUY levels below and SELL levels above
// a center price, each BUY paired to a SELL so that a completed pair forms
// one hedged round trip. Bulk signal generation marks level crossings; the
// per-bar path additionally manages the live grid, filling crossed levels,
// closing profitable pairs and re-centering the ladder when price drifts to
// its boundary.
type GridHedge struct {
	strategy.Base

	grid      *grid.Grid
	prevClose float64
}

// NewGridHedge constructs the "grid-hedge" strategy for the given symbol.
func NewGridHedge(symbol string, overrides strategy.Params) (strategy.Strategy, error) {
	base, err := strategy.NewBase("grid-hedge", symbol,
		strategy.Params{
			"grid_levels":     5,
			"grid_spacing":    0.01,
			"position_size":   0.1,
			"max_positions":   10,
			"min_profit":      0.005,
			"max_loss":        0.05,
			"size_multiplier": 1.0,
			"base_order_size": 0.01,
		},
		[]string{"grid_levels", "grid_spacing", "position_size"},
		overrides,
	)
	if err != nil {
		return nil, err
	}
	s := &GridHedge{Base: base}
	s.Reset()
	return s, nil
}

// ParamRanges returns the optimisation grid for each parameter.
func (s *GridHedge) ParamRanges() map[string]strategy.Range {
	return map[string]strategy.Range{
		"grid_levels":   {Min: 3, Max: 10, Step: 1},
		"grid_spacing":  {Min: 0.005, Max: 0.02, Step: 0.001},
		"position_size": {Min: 0.05, Max: 0.2, Step: 0.01},
		"max_positions": {Min: 5, Max: 20, Step: 1},
		"min_profit":    {Min: 0.002, Max: 0.01, Step: 0.001},
	}
}

// RequiredIndicators lists the momentum columns consulted alongside the grid.
func (s *GridHedge) RequiredIndicators() []string {
	return []string{indicator.ColRSI, indicator.ColMACDLine, indicator.ColMACDSignal}
}

// Reset discards the live grid.
func (s *GridHedge) Reset() {
	s.grid = grid.New(s.gridConfig())
	s.prevClose = 0
}

// Grid exposes the live grid for inspection by runners and tests.
func (s *GridHedge) Grid() *grid.Grid { return s.grid }

func (s *GridHedge) gridConfig() grid.Config {
	return grid.Config{
		Levels:         s.PInt("grid_levels"),
		Spacing:        s.P("grid_spacing"),
		BaseSize:       s.P("base_order_size"),
		SizeMultiplier: s.P("size_multiplier"),
		MinProfit:      s.P("min_profit"),
		MaxLoss:        s.P("max_loss"),
		MaxOpen:        s.PInt("max_positions"),
	}
}

// GenerateSignals lays a static ladder around the first close and marks each
// bar where the close crosses a rung. A downward cross buys, an upward cross
// sells; both carry the position size and a take-profit one min_profit above
// the crossed rung.
func (s *GridHedge) GenerateSignals(f *indicator.Frame) ([]domain.Signal, error) {
	closes := domain.Closes(f.Bars)
	signals := make([]domain.Signal, len(closes))
	if len(closes) == 0 {
		return signals, nil
	}

	spacing := s.P("grid_spacing")
	numLevels := s.PInt("grid_levels")
	positionSize := s.P("position_size")
	minProfit := s.P("min_profit")

	center := closes[0]
	rungs := make([]float64, 0, 2*numLevels+1)
	for i := -numLevels; i <= numLevels; i++ {
		rungs = append(rungs, center*(1+spacing*float64(i)))
	}

	for i := 1; i < len(closes); i++ {
		prev, cur := closes[i-1], closes[i]
		for _, rung := range rungs {
			switch {
			case prev >= rung && cur < rung:
				signals[i] = domain.Signal{
					Action:     domain.ActionBuy,
					Size:       positionSize,
					TakeProfit: rung * (1 + minProfit),
				}
			case prev <= rung && cur > rung:
				signals[i] = domain.Signal{
					Action:     domain.ActionSell,
					Size:       positionSize,
					TakeProfit: rung * (1 + minProfit),
				}
			}
		}
	}
	return signals, nil
}

// Analyze advances the live grid by one bar: re-centers the ladder when the
// price nears its boundary, fills levels crossed since the previous close up
// to the max_positions cap, and emits closing signals for pairs whose round
// trip completed. Fill signals carry the level's size; close signals carry
// the pair's.
func (s *GridHedge) Analyze(bar domain.Bar, _ map[string]float64) ([]domain.Signal, error) {
	price := bar.Close
	prev := s.prevClose
	s.prevClose = price

	if prev == 0 {
		// First bar only seeds the ladder.
		if s.grid.ShouldAdjust(price) {
			s.grid.Adjust(price)
		}
		return nil, nil
	}

	var signals []domain.Signal
	for _, l := range s.grid.Levels() {
		if s.grid.AtCapacity() {
			break
		}
		if !l.IsPending() || !l.Crossed(prev, price) {
			continue
		}
		if err := l.Fill(price, bar.Timestamp); err != nil {
			return nil, err
		}
		action := domain.ActionBuy
		if l.Side == domain.SideSell {
			action = domain.ActionSell
		}
		signals = append(signals, domain.Signal{Action: action, Size: l.Size})
	}

	// Completed round trips unwind both legs.
	for _, pair := range s.grid.ClosePairs(price, bar.Timestamp) {
		signals = append(signals,
			domain.Signal{Action: domain.ActionSell, Size: pair.Buy.Size},
			domain.Signal{Action: domain.ActionBuy, Size: pair.Sell.Size},
		)
	}

	// Fills and closes settle against the ladder that was live during the
	// bar; re-centering happens afterwards.
	if s.grid.ShouldAdjust(price) {
		s.grid.Adjust(price)
	}
	return signals, nil
}
