package builtins

import (
	"errors"
	"math"
	"testing"
	"time"

	"gridbot/internal/domain"
	"gridbot/internal/indicator"
	"gridbot/internal/strategy"
)

func makeBars(closes []float64) []domain.Bar {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{
			Symbol:    "TEST",
			Timestamp: base.Add(time.Duration(i) * 24 * time.Hour),
			Open:      c,
			High:      c * 1.005,
			Low:       c * 0.995,
			Close:     c,
			Volume:    100,
		}
	}
	return bars
}

func waveCloses(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100 + 10*math.Sin(float64(i)/7) + 3*math.Cos(float64(i)/3)
	}
	return out
}

func TestRegisterAll(t *testing.T) {
	reg := strategy.NewRegistry()
	if err := RegisterAll(reg); err != nil {
		t.Fatalf("RegisterAll returned error: %v", err)
	}

	want := []string{"bollinger-breakout", "grid", "grid-hedge", "hedging"}
	got := reg.List()
	if len(got) != len(want) {
		t.Fatalf("registered %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("registered %v, want %v", got, want)
		}
	}

	// Registering twice is idempotent.
	if err := RegisterAll(reg); err != nil {
		t.Errorf("second RegisterAll returned error: %v", err)
	}

	for _, name := range want {
		s, err := reg.New(name, "BTCUSD", nil)
		if err != nil {
			t.Fatalf("constructing %q with defaults: %v", name, err)
		}
		if s.Name() != name {
			t.Errorf("strategy Name() = %q, want %q", s.Name(), name)
		}
		if s.Symbol() != "BTCUSD" {
			t.Errorf("%s Symbol() = %q, want BTCUSD", name, s.Symbol())
		}
	}
}

func TestMissingOverrideStillValid(t *testing.T) {
	// Defaults cover every required parameter, so empty overrides succeed
	// and a partial override only replaces what it names.
	s, err := NewGridTrend("BTCUSD", strategy.Params{"grid_size": 10})
	if err != nil {
		t.Fatalf("NewGridTrend returned error: %v", err)
	}
	p := s.Params()
	if p["grid_size"] != 10 {
		t.Errorf("grid_size = %v, want 10", p["grid_size"])
	}
	if p["grid_spacing"] != 0.005 {
		t.Errorf("grid_spacing = %v, want default 0.005", p["grid_spacing"])
	}
}

func TestGridTrendSignals(t *testing.T) {
	bars := makeBars(waveCloses(200))
	f := indicator.Compute(bars, indicator.DefaultSettings())

	s, err := NewGridTrend("BTCUSD", nil)
	if err != nil {
		t.Fatalf("NewGridTrend returned error: %v", err)
	}
	signals, err := s.GenerateSignals(f)
	if err != nil {
		t.Fatalf("GenerateSignals returned error: %v", err)
	}
	if len(signals) != len(bars) {
		t.Fatalf("got %d signals for %d bars", len(signals), len(bars))
	}

	// The warm-up period stays flat.
	for i := 0; i < 20; i++ {
		if signals[i].Action != domain.ActionHold {
			t.Fatalf("signal[%d] = %v inside warm-up, want hold", i, signals[i].Action)
		}
	}

	// An oscillating series must trade at least once.
	active := 0
	for _, sig := range signals {
		if sig.Action != domain.ActionHold {
			active++
		}
	}
	if active == 0 {
		t.Error("no signals generated on an oscillating series")
	}
}

func TestGridTrendFlatSeriesGeneratesNothing(t *testing.T) {
	flat := make([]float64, 100)
	for i := range flat {
		flat[i] = 100
	}
	f := indicator.Compute(makeBars(flat), indicator.DefaultSettings())

	s, _ := NewGridTrend("BTCUSD", nil)
	signals, err := s.GenerateSignals(f)
	if err != nil {
		t.Fatalf("GenerateSignals returned error: %v", err)
	}
	for i, sig := range signals {
		if sig.Action != domain.ActionHold {
			t.Fatalf("signal[%d] = %v on flat series, want hold", i, sig.Action)
		}
	}
}

func TestBollingerBreakoutSignals(t *testing.T) {
	// Stable prices, then a sharp drop below the lower band and a spike
	// above the upper band.
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + math.Sin(float64(i))*0.5
	}
	closes[40] = 80
	closes[50] = 120
	f := indicator.Compute(makeBars(closes), indicator.DefaultSettings())

	s, err := NewBollingerBreakout("BTCUSD", nil)
	if err != nil {
		t.Fatalf("NewBollingerBreakout returned error: %v", err)
	}
	signals, err := s.GenerateSignals(f)
	if err != nil {
		t.Fatalf("GenerateSignals returned error: %v", err)
	}

	if signals[40].Action != domain.ActionBuy {
		t.Errorf("signal at drop bar = %v, want buy", signals[40].Action)
	}
	if signals[40].Size != 100 {
		t.Errorf("buy size = %v, want amount 100", signals[40].Size)
	}
	if signals[40].StopLoss >= closes[40] {
		t.Errorf("buy stop loss %v not below entry %v", signals[40].StopLoss, closes[40])
	}
	if signals[50].Action != domain.ActionSell {
		t.Errorf("signal at spike bar = %v, want sell", signals[50].Action)
	}
}

func TestBollingerBreakoutAnalyzeRequiresBands(t *testing.T) {
	s, _ := NewBollingerBreakout("BTCUSD", nil)
	bar := domain.Bar{Close: 100}

	_, err := s.Analyze(bar, map[string]float64{})
	var missing *indicator.MissingColumnError
	if !errors.As(err, &missing) {
		t.Fatalf("Analyze without bands = %v, want MissingColumnError", err)
	}

	row := map[string]float64{
		indicator.ColBBUpper:  102,
		indicator.ColBBMiddle: 100,
		indicator.ColBBLower:  98,
	}
	signals, err := s.Analyze(domain.Bar{Close: 97}, row)
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if len(signals) != 1 || signals[0].Action != domain.ActionBuy {
		t.Errorf("Analyze below lower band = %v, want one buy", signals)
	}
}

func TestGridHedgeGenerateSignalsCrossings(t *testing.T) {
	// Center 100, spacing 1%. The series crosses 99 downward and later
	// 101 upward.
	closes := []float64{100, 100.2, 98.5, 99.3, 100.4, 101.5}
	f := indicator.NewFrame(makeBars(closes))

	s, err := NewGridHedge("BTCUSD", nil)
	if err != nil {
		t.Fatalf("NewGridHedge returned error: %v", err)
	}
	signals, err := s.GenerateSignals(f)
	if err != nil {
		t.Fatalf("GenerateSignals returned error: %v", err)
	}

	if signals[2].Action != domain.ActionBuy {
		t.Errorf("downward cross signal = %v, want buy", signals[2].Action)
	}
	if signals[2].Size != 0.1 {
		t.Errorf("cross signal size = %v, want position_size 0.1", signals[2].Size)
	}
	if signals[2].TakeProfit == 0 {
		t.Error("cross signal has no take profit")
	}
	if signals[5].Action != domain.ActionSell {
		t.Errorf("upward cross signal = %v, want sell", signals[5].Action)
	}
}

func TestGridHedgeAnalyzeFillsAndCloses(t *testing.T) {
	s, err := NewGridHedge("BTCUSD", strategy.Params{
		"grid_levels":  3,
		"grid_spacing": 0.01,
		"min_profit":   0.001,
	})
	if err != nil {
		t.Fatalf("NewGridHedge returned error: %v", err)
	}
	gh := s.(*GridHedge)

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	bar := func(i int, close float64) domain.Bar {
		return domain.Bar{Symbol: "BTCUSD", Timestamp: base.AddDate(0, 0, i), Open: close, Close: close}
	}

	// First bar seeds the grid, no fills yet.
	signals, err := s.Analyze(bar(0, 100), nil)
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if len(signals) != 0 {
		t.Fatalf("first bar produced %d signals, want 0", len(signals))
	}
	if len(gh.Grid().Levels()) == 0 {
		t.Fatal("first bar did not seed the grid")
	}

	// Drop through the BUY side, then rally through the SELL side.
	buySignals, err := s.Analyze(bar(1, 98.4), nil)
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if len(buySignals) == 0 {
		t.Fatal("drop through BUY levels produced no fills")
	}
	for _, sig := range buySignals {
		if sig.Action != domain.ActionBuy {
			t.Errorf("fill on the way down = %v, want buy", sig.Action)
		}
	}

	sellSignals, err := s.Analyze(bar(2, 101.6), nil)
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if len(sellSignals) == 0 {
		t.Fatal("rally through SELL levels produced no signals")
	}

	// At least one pair completed its round trip and closed.
	closedPair := false
	for _, l := range gh.Grid().Levels() {
		if l.IsClosed() {
			closedPair = true
			break
		}
	}
	if !closedPair {
		t.Error("no pair closed after both sides filled in profit")
	}
}

func TestHedgingSignals(t *testing.T) {
	// Calm series with one sharp 5% drop.
	closes := make([]float64, 60)
	closes[0] = 100
	for i := 1; i < len(closes); i++ {
		closes[i] = closes[i-1] * 1.001
	}
	drop := 45
	closes[drop] = closes[drop-1] * 0.95
	for i := drop + 1; i < len(closes); i++ {
		closes[i] = closes[i-1] * 1.001
	}
	f := indicator.NewFrame(makeBars(closes))

	s, err := NewHedging("BTCUSD", nil)
	if err != nil {
		t.Fatalf("NewHedging returned error: %v", err)
	}
	signals, err := s.GenerateSignals(f)
	if err != nil {
		t.Fatalf("GenerateSignals returned error: %v", err)
	}

	if signals[drop].Action != domain.ActionBuy {
		t.Errorf("signal at drop bar = %v, want long hedge (buy)", signals[drop].Action)
	}
	if signals[drop].Size < 0.5 || signals[drop].Size > 2.0 {
		t.Errorf("hedge size %v outside [min, max] hedge ratio band", signals[drop].Size)
	}
}

func TestGridHedgeAnalyzeHonorsMaxPositions(t *testing.T) {
	s, err := NewGridHedge("BTCUSD", strategy.Params{
		"grid_levels":   3,
		"grid_spacing":  0.01,
		"max_positions": 1,
	})
	if err != nil {
		t.Fatalf("NewGridHedge returned error: %v", err)
	}
	gh := s.(*GridHedge)

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	bar := func(i int, close float64) domain.Bar {
		return domain.Bar{Symbol: "BTCUSD", Timestamp: base.AddDate(0, 0, i), Open: close, Close: close}
	}

	if _, err := s.Analyze(bar(0, 100), nil); err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}

	// The drop to 98 crosses both BUY rungs; the cap allows only one fill.
	signals, err := s.Analyze(bar(1, 98), nil)
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if len(signals) != 1 {
		t.Fatalf("got %d fill signals with max_positions 1, want 1", len(signals))
	}
	if signals[0].Action != domain.ActionBuy {
		t.Errorf("fill signal = %v, want buy", signals[0].Action)
	}
	if got := gh.Grid().FilledCount(); got != 1 {
		t.Errorf("FilledCount = %d, want 1", got)
	}
}
