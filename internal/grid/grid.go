// Package grid implements the paired-level lifecycle used by grid-style
// strategies: a ladder of BUY levels below and SELL levels above a center
// price, where each BUY/SELL pair forms one round trip. Levels move through
// PENDING → FILLED → CLOSED exactly once; CLOSED is terminal.
package grid

import (
	"fmt"
	"time"

	"gridbot/internal/domain"
)

// State is the lifecycle state of a grid level.
type State int

const (
	// Pending levels are active and waiting for price to cross them.
	Pending State = iota
	// Filled levels have been crossed; fill price and time are recorded.
	Filled
	// Closed levels belong to a pair whose round trip has completed.
	Closed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case Filled:
		return "FILLED"
	case Closed:
		return "CLOSED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Level is one price level in a grid. Paired points at the opposite-side
// level that closes the same round trip; pairing is always symmetric.
type Level struct {
	Price  float64
	Side   domain.Side
	Size   float64
	Paired *Level

	state     State
	fillPrice float64
	fillTime  time.Time
}

// NewLevel creates a pending, unpaired level.
func NewLevel(price float64, side domain.Side, size float64) *Level {
	return &Level{Price: price, Side: side, Size: size}
}

// State returns the current lifecycle state.
func (l *Level) State() State { return l.state }

// IsPending reports whether the level is still waiting for a cross.
func (l *Level) IsPending() bool { return l.state == Pending }

// IsFilled reports whether the level has been filled (and not yet closed).
func (l *Level) IsFilled() bool { return l.state == Filled }

// IsClosed reports whether the level's round trip has completed.
func (l *Level) IsClosed() bool { return l.state == Closed }

// FillPrice returns the recorded fill price (zero until filled).
func (l *Level) FillPrice() float64 { return l.fillPrice }

// FillTime returns the recorded fill time (zero until filled).
func (l *Level) FillTime() time.Time { return l.fillTime }

// PairWith establishes a symmetric pairing between l and other.
func (l *Level) PairWith(other *Level) {
	l.Paired = other
	other.Paired = l
}

// Fill transitions the level PENDING → FILLED, recording price and time.
// Any other transition is an error: a level fills at most once.
func (l *Level) Fill(price float64, at time.Time) error {
	if l.state != Pending {
		return fmt.Errorf("cannot fill %s level at %.4f: state is %s", l.Side, l.Price, l.state)
	}
	l.state = Filled
	l.fillPrice = price
	l.fillTime = at
	return nil
}

// Crossed reports whether a close-price move from prev to cur crosses the
// level in its directional sense: falling through a BUY level, or rising
// through a SELL level. Only the bar where the cross is first observed
// triggers, never retroactively.
func (l *Level) Crossed(prev, cur float64) bool {
	if l.Side == domain.SideBuy {
		return prev > l.Price && cur <= l.Price
	}
	return prev < l.Price && cur >= l.Price
}

// LegProfit is this leg's own fractional profit marked to the given price.
// Zero until the level is filled.
func (l *Level) LegProfit(price float64) float64 {
	if l.state == Pending || l.fillPrice == 0 {
		return 0
	}
	if l.Side == domain.SideBuy {
		return (price - l.fillPrice) / l.fillPrice
	}
	return (l.fillPrice - price) / l.fillPrice
}

// PairProfit is the fractional round-trip profit of a fully filled pair,
// computed from both fill prices and sign-adjusted by side. It is zero
// unless both legs are filled.
func PairProfit(l *Level) float64 {
	if l.Paired == nil || l.state == Pending || l.Paired.state == Pending {
		return 0
	}
	var buyPrice, sellPrice float64
	if l.Side == domain.SideBuy {
		buyPrice, sellPrice = l.fillPrice, l.Paired.fillPrice
	} else {
		buyPrice, sellPrice = l.Paired.fillPrice, l.fillPrice
	}
	if buyPrice == 0 {
		return 0
	}
	return (sellPrice - buyPrice) / buyPrice
}

// ---------------------------------------------------------------------------
// Grid
// ---------------------------------------------------------------------------

// Config defines the shape and close conditions of a grid.
type Config struct {
	Levels         int     // level count on each side of the center
	Spacing        float64 // fractional price distance between levels
	BaseSize       float64 // size of the innermost levels
	SizeMultiplier float64 // size growth per level step away from center
	MinProfit      float64 // round-trip profit that closes a pair
	MaxLoss        float64 // round-trip loss enabling the hedge unwind
	AdjustBuffer   float64 // fraction of the grid range treated as boundary
	MaxOpen        int     // cap on concurrently filled levels; 0 is unlimited
}

// Normalize fills zero-valued fields with conventional defaults.
func (c *Config) Normalize() {
	if c.Levels == 0 {
		c.Levels = 5
	}
	if c.Spacing == 0 {
		c.Spacing = 0.01
	}
	if c.BaseSize == 0 {
		c.BaseSize = 0.01
	}
	if c.SizeMultiplier == 0 {
		c.SizeMultiplier = 1
	}
	if c.MinProfit == 0 {
		c.MinProfit = 0.005
	}
	if c.MaxLoss == 0 {
		c.MaxLoss = 0.05
	}
	if c.AdjustBuffer == 0 {
		c.AdjustBuffer = 0.1
	}
}

// Grid owns the current set of levels for one instrument.
type Grid struct {
	cfg    Config
	levels []*Level
}

// New creates an empty grid with the given configuration.
func New(cfg Config) *Grid {
	cfg.Normalize()
	return &Grid{cfg: cfg}
}

// Levels returns the current level set in construction order.
func (g *Grid) Levels() []*Level { return g.levels }

// FilledCount returns the number of levels currently in the FILLED state.
func (g *Grid) FilledCount() int {
	n := 0
	for _, l := range g.levels {
		if l.IsFilled() {
			n++
		}
	}
	return n
}

// AtCapacity reports whether MaxOpen filled levels are already held, so no
// further level may fill until a pair closes.
func (g *Grid) AtCapacity() bool {
	return g.cfg.MaxOpen > 0 && g.FilledCount() >= g.cfg.MaxOpen
}

// Config returns the grid configuration.
func (g *Grid) Config() Config { return g.cfg }

// CalculateLevels builds an ordered ladder around the center price: BUY
// levels below, SELL levels above, sizes growing with distance from the
// center. Each new SELL level is paired with the earliest still-unpaired BUY
// level, establishing symmetric round-trip pairs.
func (g *Grid) CalculateLevels(center float64) []*Level {
	priceRange := center * g.cfg.Spacing * float64(g.cfg.Levels)
	minPrice := center - priceRange/2

	var levels []*Level
	var unpairedBuys []*Level

	for i := 0; i < g.cfg.Levels*2; i++ {
		price := minPrice + float64(i)*center*g.cfg.Spacing
		size := g.cfg.BaseSize * (1 + float64(i/2)*(g.cfg.SizeMultiplier-1))

		switch {
		case price < center:
			buy := NewLevel(price, domain.SideBuy, size)
			levels = append(levels, buy)
			unpairedBuys = append(unpairedBuys, buy)
		case price > center:
			sell := NewLevel(price, domain.SideSell, size)
			levels = append(levels, sell)
			if len(unpairedBuys) > 0 {
				unpairedBuys[0].PairWith(sell)
				unpairedBuys = unpairedBuys[1:]
			}
		}
	}
	return levels
}

// Rebuild replaces the entire level set with a fresh ladder around center.
func (g *Grid) Rebuild(center float64) {
	g.levels = g.CalculateLevels(center)
}

// ShouldAdjust reports whether the price has drifted close enough to the
// grid's outer boundary (within AdjustBuffer of its range) that the ladder
// should be re-centered. An empty grid always needs adjustment.
func (g *Grid) ShouldAdjust(price float64) bool {
	if len(g.levels) == 0 {
		return true
	}

	minPrice, maxPrice := g.levels[0].Price, g.levels[0].Price
	for _, l := range g.levels[1:] {
		if l.Price < minPrice {
			minPrice = l.Price
		}
		if l.Price > maxPrice {
			maxPrice = l.Price
		}
	}

	buffer := (maxPrice - minPrice) * g.cfg.AdjustBuffer
	return price < minPrice+buffer || price > maxPrice-buffer
}

// Adjust re-centers the grid around price. FILLED levels are preserved along
// with their pending counterparts, so open round trips stay completable.
// All other PENDING levels are replaced by a freshly computed ladder, and
// CLOSED levels drop out.
func (g *Grid) Adjust(price float64) {
	var kept []*Level
	for _, l := range g.levels {
		if l.IsFilled() || (l.IsPending() && l.Paired != nil && l.Paired.IsFilled()) {
			kept = append(kept, l)
		}
	}
	g.levels = append(kept, g.CalculateLevels(price)...)
}

// ClosedPair records one completed round trip.
type ClosedPair struct {
	Buy       *Level
	Sell      *Level
	Profit    float64 // fractional round-trip profit
	OpenTime  time.Time
	CloseTime time.Time
}

// ClosePairs scans for fully filled pairs whose close condition holds and
// closes them: round-trip profit at or above MinProfit, or loss at or beyond
// MaxLoss while the opposite leg is independently profitable at the current
// price (the hedge unwind). Closing marks both levels CLOSED, which is
// terminal, and returns one record per pair.
func (g *Grid) ClosePairs(price float64, now time.Time) []ClosedPair {
	var closed []ClosedPair
	for _, l := range g.levels {
		// Process each pair once, from its BUY side.
		if l.Side != domain.SideBuy || !l.IsFilled() {
			continue
		}
		if l.Paired == nil || !l.Paired.IsFilled() {
			continue
		}

		profit := PairProfit(l)
		unwind := profit <= -g.cfg.MaxLoss && l.Paired.LegProfit(price) > 0
		if profit < g.cfg.MinProfit && !unwind {
			continue
		}

		l.state = Closed
		l.Paired.state = Closed

		open := l.fillTime
		if l.Paired.fillTime.Before(open) {
			open = l.Paired.fillTime
		}
		closed = append(closed, ClosedPair{
			Buy:       l,
			Sell:      l.Paired,
			Profit:    profit,
			OpenTime:  open,
			CloseTime: now,
		})
	}
	return closed
}
