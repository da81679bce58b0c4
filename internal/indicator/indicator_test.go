package indicator

import (
	"errors"
	"math"
	"testing"
	"time"

	"gridbot/internal/domain"
)

func makeBars(closes []float64) []domain.Bar {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{
			Symbol:    "TEST",
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Open:      c,
			High:      c * 1.005,
			Low:       c * 0.995,
			Close:     c,
			Volume:    100,
		}
	}
	return bars
}

// waveCloses produces a deterministic oscillating price series around 100.
func waveCloses(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100 + 10*math.Sin(float64(i)/7) + 3*math.Cos(float64(i)/3)
	}
	return out
}

func TestRollingMean(t *testing.T) {
	values := []float64{2, 4, 6, 8, 10}
	got := RollingMean(values, 3)
	want := []float64{2, 3, 4, 6, 8}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("RollingMean[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestBollingerBandsFlatSeries(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100
	}
	middle, upper, lower := BollingerBands(closes, 20, 2)
	for i := range closes {
		if middle[i] != 100 || upper[i] != 100 || lower[i] != 100 {
			t.Fatalf("flat series bands at %d = (%v, %v, %v), want all 100", i, lower[i], middle[i], upper[i])
		}
	}
}

func TestATRShortSeriesDegradesToZero(t *testing.T) {
	bars := makeBars(waveCloses(10))
	atr := ATR(bars, 14)
	for i, v := range atr {
		if v != 0 {
			t.Fatalf("ATR[%d] = %v for series shorter than window, want 0", i, v)
		}
	}
}

func TestATRNonNegative(t *testing.T) {
	bars := makeBars(waveCloses(100))
	for i, v := range ATR(bars, 14) {
		if v < 0 {
			t.Fatalf("ATR[%d] = %v, want >= 0", i, v)
		}
	}
}

func TestRSIBounds(t *testing.T) {
	rising := make([]float64, 50)
	for i := range rising {
		rising[i] = 100 + float64(i)
	}
	rsi := RSI(rising, 14)
	if rsi[0] != 50 {
		t.Errorf("RSI[0] = %v, want neutral 50", rsi[0])
	}
	if rsi[len(rsi)-1] != 100 {
		t.Errorf("RSI of strictly rising series = %v, want 100", rsi[len(rsi)-1])
	}

	flat := make([]float64, 50)
	for i := range flat {
		flat[i] = 100
	}
	for i, v := range RSI(flat, 14) {
		if v != 50 {
			t.Fatalf("RSI[%d] of flat series = %v, want 50", i, v)
		}
	}
}

func TestMACDFlatSeries(t *testing.T) {
	flat := make([]float64, 60)
	for i := range flat {
		flat[i] = 100
	}
	line, signal, hist := MACD(flat, 12, 26, 9)
	for i := range flat {
		if line[i] != 0 || signal[i] != 0 || hist[i] != 0 {
			t.Fatalf("MACD of flat series at %d = (%v, %v, %v), want zeros", i, line[i], signal[i], hist[i])
		}
	}
}

func TestComputeColumns(t *testing.T) {
	bars := makeBars(waveCloses(300))
	f := Compute(bars, DefaultSettings())

	wantCols := []string{
		"sma_20", "sma_50", "sma_200",
		ColBBUpper, ColBBMiddle, ColBBLower,
		ColATR, ColRSI,
		ColMACDLine, ColMACDSignal, ColMACDHist,
		ColVolatilityRatio,
	}
	for _, name := range wantCols {
		col, err := f.Col(name)
		if err != nil {
			t.Fatalf("Col(%q) returned error: %v", name, err)
		}
		if len(col) != len(bars) {
			t.Fatalf("Col(%q) has %d values, want %d", name, len(col), len(bars))
		}
		for i, v := range col {
			if math.IsNaN(v) {
				t.Fatalf("Col(%q)[%d] is NaN; early-window values must be filled", name, i)
			}
		}
	}
}

func TestFrameMissingColumn(t *testing.T) {
	f := NewFrame(makeBars([]float64{100}))
	_, err := f.Col("nonexistent")
	var missing *MissingColumnError
	if !errors.As(err, &missing) {
		t.Fatalf("Col error = %v, want MissingColumnError", err)
	}
	if missing.Column != "nonexistent" {
		t.Errorf("MissingColumnError.Column = %q, want %q", missing.Column, "nonexistent")
	}
}

func TestRequire(t *testing.T) {
	f := Compute(makeBars(waveCloses(50)), DefaultSettings())
	if err := Require(f, []string{ColRSI, ColATR}); err != nil {
		t.Errorf("Require = %v for present columns, want nil", err)
	}
	if err := Require(f, []string{"bogus"}); err == nil {
		t.Error("Require = nil for absent column, want MissingColumnError")
	}
}

func TestComputeParallelMatchesSequential(t *testing.T) {
	bars := makeBars(waveCloses(900))
	s := DefaultSettings()

	seq := Compute(bars, s)
	par := ComputeParallel(bars, s, 3)

	warmup := s.maxLookback()
	for _, name := range seq.ColNames() {
		want, _ := seq.Col(name)
		got, err := par.Col(name)
		if err != nil {
			t.Fatalf("parallel frame missing column %q", name)
		}
		for i := warmup; i < len(bars); i++ {
			if math.Abs(got[i]-want[i]) > 1e-3 {
				t.Fatalf("column %q diverges at %d: parallel %v vs sequential %v", name, i, got[i], want[i])
			}
		}
	}
}

func TestComputeParallelShortInputFallsBack(t *testing.T) {
	bars := makeBars(waveCloses(100))
	s := DefaultSettings()

	seq := Compute(bars, s)
	par := ComputeParallel(bars, s, 4)

	for _, name := range seq.ColNames() {
		want, _ := seq.Col(name)
		got, _ := par.Col(name)
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("column %q differs at %d on short input: %v vs %v", name, i, got[i], want[i])
			}
		}
	}
}
