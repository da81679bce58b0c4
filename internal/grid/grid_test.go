package grid

import (
	"testing"
	"time"

	"gridbot/internal/domain"
)

func testConfig() Config {
	return Config{
		Levels:         3,
		Spacing:        0.01,
		BaseSize:       1,
		SizeMultiplier: 1.5,
		MinProfit:      0.005,
		MaxLoss:        0.05,
		AdjustBuffer:   0.1,
	}
}

func TestCalculateLevelsShape(t *testing.T) {
	g := New(testConfig())
	levels := g.CalculateLevels(100)

	if len(levels) != 6 {
		t.Fatalf("got %d levels, want 6", len(levels))
	}
	for _, l := range levels {
		if l.Side == domain.SideBuy && l.Price >= 100 {
			t.Errorf("BUY level at %v is not below center", l.Price)
		}
		if l.Side == domain.SideSell && l.Price <= 100 {
			t.Errorf("SELL level at %v is not above center", l.Price)
		}
		if !l.IsPending() {
			t.Errorf("fresh level at %v is %s, want PENDING", l.Price, l.State())
		}
	}
}

func TestCalculateLevelsPairingSymmetry(t *testing.T) {
	g := New(testConfig())
	for _, l := range g.CalculateLevels(100) {
		if l.Paired == nil {
			continue
		}
		if l.Paired.Paired != l {
			t.Fatalf("pairing not symmetric for level at %v", l.Price)
		}
		if l.Paired.Side != l.Side.Opposite() {
			t.Errorf("level at %v paired with same side %s", l.Price, l.Paired.Side)
		}
	}
}

func TestCalculateLevelsSizeRamp(t *testing.T) {
	g := New(testConfig())
	levels := g.CalculateLevels(100)

	// Sizes grow away from the center on the SELL side.
	var prev float64
	for _, l := range levels {
		if l.Side != domain.SideSell {
			continue
		}
		if prev != 0 && l.Size < prev {
			t.Errorf("SELL size %v at %v shrank from %v", l.Size, l.Price, prev)
		}
		prev = l.Size
	}
}

func TestLevelLifecycle(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	l := NewLevel(99, domain.SideBuy, 1)

	if err := l.Fill(98.9, now); err != nil {
		t.Fatalf("Fill returned error: %v", err)
	}
	if !l.IsFilled() || l.FillPrice() != 98.9 || !l.FillTime().Equal(now) {
		t.Errorf("after Fill: state=%s fillPrice=%v fillTime=%v", l.State(), l.FillPrice(), l.FillTime())
	}
	// A level fills at most once.
	if err := l.Fill(98.5, now.Add(time.Hour)); err == nil {
		t.Error("second Fill = nil, want error")
	}
	if l.FillPrice() != 98.9 {
		t.Errorf("second Fill changed fill price to %v", l.FillPrice())
	}
}

func TestCrossedDirectional(t *testing.T) {
	buy := NewLevel(99, domain.SideBuy, 1)
	if !buy.Crossed(100, 98.5) {
		t.Error("falling through BUY level not detected")
	}
	if buy.Crossed(98, 97) {
		t.Error("price already below BUY level counted as a cross")
	}
	if buy.Crossed(98, 100) {
		t.Error("rising through BUY level counted as a cross")
	}

	sell := NewLevel(101, domain.SideSell, 1)
	if !sell.Crossed(100, 101.5) {
		t.Error("rising through SELL level not detected")
	}
	if sell.Crossed(102, 103) {
		t.Error("price already above SELL level counted as a cross")
	}
}

func TestPairProfitRoundTrip(t *testing.T) {
	now := time.Now()
	buy := NewLevel(99, domain.SideBuy, 1)
	sell := NewLevel(101, domain.SideSell, 1)
	buy.PairWith(sell)

	if PairProfit(buy) != 0 {
		t.Errorf("PairProfit with unfilled legs = %v, want 0", PairProfit(buy))
	}

	buy.Fill(99, now)
	sell.Fill(101, now.Add(time.Hour))

	want := (101.0 - 99.0) / 99.0
	if got := PairProfit(buy); got != want {
		t.Errorf("PairProfit from buy side = %v, want %v", got, want)
	}
	if got := PairProfit(sell); got != want {
		t.Errorf("PairProfit from sell side = %v, want %v", got, want)
	}
}

func TestClosePairsMinProfit(t *testing.T) {
	now := time.Now()
	g := New(testConfig())
	g.Rebuild(100)

	var buy, sell *Level
	for _, l := range g.Levels() {
		if l.Side == domain.SideBuy && l.Paired != nil {
			buy, sell = l, l.Paired
			break
		}
	}
	if buy == nil {
		t.Fatal("no paired BUY level in fresh grid")
	}

	buy.Fill(buy.Price, now)
	sell.Fill(sell.Price, now.Add(time.Hour))

	closed := g.ClosePairs(100, now.Add(2*time.Hour))
	if len(closed) != 1 {
		t.Fatalf("closed %d pairs, want 1", len(closed))
	}
	if !buy.IsClosed() || !sell.IsClosed() {
		t.Errorf("legs after close: buy=%s sell=%s, want both CLOSED", buy.State(), sell.State())
	}
	if closed[0].Profit < g.Config().MinProfit {
		t.Errorf("closed pair profit %v below MinProfit %v", closed[0].Profit, g.Config().MinProfit)
	}
	// Terminal: a second scan finds nothing.
	if again := g.ClosePairs(100, now.Add(3*time.Hour)); len(again) != 0 {
		t.Errorf("second ClosePairs closed %d pairs, want 0", len(again))
	}
}

func TestClosePairsHedgeUnwind(t *testing.T) {
	now := time.Now()
	cfg := testConfig()
	cfg.MaxLoss = 0.02
	g := New(cfg)

	// An inverted fill: bought high, sold low, a 6% round-trip loss.
	buy := NewLevel(106, domain.SideBuy, 1)
	sell := NewLevel(100, domain.SideSell, 1)
	buy.PairWith(sell)
	buy.Fill(106, now)
	sell.Fill(100, now.Add(time.Hour))
	g.levels = []*Level{buy, sell}

	// At price 95 the SELL leg is profitable, so the unwind applies.
	closed := g.ClosePairs(95, now.Add(2*time.Hour))
	if len(closed) != 1 {
		t.Fatalf("closed %d pairs at 95, want 1 (hedge unwind)", len(closed))
	}
	if closed[0].Profit >= 0 {
		t.Errorf("unwound pair profit = %v, want a loss", closed[0].Profit)
	}
}

func TestClosePairsHedgeUnwindRequiresProfitableLeg(t *testing.T) {
	now := time.Now()
	cfg := testConfig()
	cfg.MaxLoss = 0.02
	g := New(cfg)

	buy := NewLevel(106, domain.SideBuy, 1)
	sell := NewLevel(100, domain.SideSell, 1)
	buy.PairWith(sell)
	buy.Fill(106, now)
	sell.Fill(100, now.Add(time.Hour))
	g.levels = []*Level{buy, sell}

	// At price 105 the SELL leg is losing too, so the pair stays open.
	if closed := g.ClosePairs(105, now.Add(2*time.Hour)); len(closed) != 0 {
		t.Errorf("closed %d pairs with both legs losing, want 0", len(closed))
	}
}

func TestShouldAdjust(t *testing.T) {
	g := New(testConfig())
	if !g.ShouldAdjust(100) {
		t.Error("empty grid should always need adjustment")
	}

	g.Rebuild(100)
	if g.ShouldAdjust(100) {
		t.Error("price at center should not trigger adjustment")
	}
	if !g.ShouldAdjust(103.2) {
		t.Error("price past upper boundary should trigger adjustment")
	}
	if !g.ShouldAdjust(97) {
		t.Error("price past lower boundary should trigger adjustment")
	}
}

func TestAdjustKeepsFilledLevels(t *testing.T) {
	now := time.Now()
	g := New(testConfig())
	g.Rebuild(100)

	var filled *Level
	for _, l := range g.Levels() {
		if l.Side == domain.SideBuy {
			l.Fill(l.Price, now)
			filled = l
			break
		}
	}

	g.Adjust(104)

	foundFilled, foundPair := false, false
	for _, l := range g.Levels() {
		switch l {
		case filled:
			foundFilled = true
		case filled.Paired:
			foundPair = true
		default:
			if !l.IsPending() {
				t.Errorf("replacement level at %v is %s, want PENDING", l.Price, l.State())
			}
		}
	}
	if !foundFilled {
		t.Error("FILLED level dropped by Adjust")
	}
	if !foundPair {
		t.Error("pending counterpart of FILLED level dropped by Adjust")
	}
	if len(g.Levels()) != 8 {
		t.Errorf("grid has %d levels after Adjust, want 8 (pair kept + 6 fresh)", len(g.Levels()))
	}
}

func TestAtCapacityLimitsOpenLevels(t *testing.T) {
	now := time.Now()
	cfg := testConfig()
	cfg.MaxOpen = 1
	g := New(cfg)
	g.Rebuild(100)

	if g.AtCapacity() {
		t.Fatal("fresh grid reports AtCapacity")
	}

	var buy *Level
	for _, l := range g.Levels() {
		if l.Side == domain.SideBuy {
			buy = l
			break
		}
	}
	buy.Fill(buy.Price, now)

	if g.FilledCount() != 1 {
		t.Fatalf("FilledCount = %d, want 1", g.FilledCount())
	}
	if !g.AtCapacity() {
		t.Error("grid with MaxOpen filled levels does not report AtCapacity")
	}

	// Closing the pair frees the slot again.
	buy.Paired.Fill(buy.Paired.Price, now)
	if pairs := g.ClosePairs(buy.Paired.Price, now); len(pairs) != 1 {
		t.Fatalf("closed %d pairs, want 1", len(pairs))
	}
	if g.AtCapacity() {
		t.Error("grid still AtCapacity after its only pair closed")
	}
}

func TestAtCapacityUnlimitedByDefault(t *testing.T) {
	now := time.Now()
	g := New(testConfig())
	g.Rebuild(100)

	for _, l := range g.Levels() {
		l.Fill(l.Price, now)
	}
	if g.AtCapacity() {
		t.Error("MaxOpen 0 should never report AtCapacity")
	}
}
