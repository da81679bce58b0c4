package indicator

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"

	"gridbot/internal/domain"
)

// Settings holds the windows used by the preprocessor. Zero values are
// filled by Normalize.
type Settings struct {
	SMAWindows []int
	BBWindow   int
	BBStd      float64
	RSIWindow  int
	ATRWindow  int
	MACDFast   int
	MACDSlow   int
	MACDSignal int

	// MinChunkSize is the smallest chunk the parallel path will create. It
	// must comfortably cover the longest rolling window so chunked rolling
	// computations stabilise.
	MinChunkSize int
}

// DefaultSettings returns the conventional indicator windows.
func DefaultSettings() Settings {
	return Settings{
		SMAWindows:   []int{20, 50, 200},
		BBWindow:     20,
		BBStd:        2,
		RSIWindow:    14,
		ATRWindow:    14,
		MACDFast:     12,
		MACDSlow:     26,
		MACDSignal:   9,
		MinChunkSize: 250,
	}
}

// Normalize fills zero-valued fields with defaults.
func (s *Settings) Normalize() {
	def := DefaultSettings()
	if len(s.SMAWindows) == 0 {
		s.SMAWindows = def.SMAWindows
	}
	if s.BBWindow == 0 {
		s.BBWindow = def.BBWindow
	}
	if s.BBStd == 0 {
		s.BBStd = def.BBStd
	}
	if s.RSIWindow == 0 {
		s.RSIWindow = def.RSIWindow
	}
	if s.ATRWindow == 0 {
		s.ATRWindow = def.ATRWindow
	}
	if s.MACDFast == 0 {
		s.MACDFast = def.MACDFast
	}
	if s.MACDSlow == 0 {
		s.MACDSlow = def.MACDSlow
	}
	if s.MACDSignal == 0 {
		s.MACDSignal = def.MACDSignal
	}
	if s.MinChunkSize == 0 {
		s.MinChunkSize = def.MinChunkSize
	}
}

// maxLookback returns the longest rolling window across all configured
// indicators; the parallel path uses it as the chunk overlap.
func (s Settings) maxLookback() int {
	max := s.BBWindow
	for _, w := range append([]int{s.RSIWindow, s.ATRWindow, s.MACDSlow, s.MACDSignal}, s.SMAWindows...) {
		if w > max {
			max = w
		}
	}
	return max
}

// SMAName returns the column name for a simple moving average window.
func SMAName(window int) string {
	return fmt.Sprintf("sma_%d", window)
}

// Column names for the fixed indicator set.
const (
	ColBBUpper         = "bb_upper"
	ColBBMiddle        = "bb_middle"
	ColBBLower         = "bb_lower"
	ColATR             = "atr"
	ColRSI             = "rsi"
	ColMACDLine        = "macd_line"
	ColMACDSignal      = "macd_signal"
	ColMACDHist        = "macd_hist"
	ColVolatilityRatio = "volatility_ratio"
)

// Compute enriches a bar sequence with the full indicator column set in a
// single sequential pass. Early-window values use the best available partial
// statistic rather than NaN, so downstream consumers never see gaps.
func Compute(bars []domain.Bar, s Settings) *Frame {
	s.Normalize()

	f := NewFrame(bars)
	closes := domain.Closes(bars)

	for _, w := range s.SMAWindows {
		f.SetCol(SMAName(w), RollingMean(closes, w))
	}

	middle, upper, lower := BollingerBands(closes, s.BBWindow, s.BBStd)
	f.SetCol(ColBBMiddle, middle)
	f.SetCol(ColBBUpper, upper)
	f.SetCol(ColBBLower, lower)

	atr := ATR(bars, s.ATRWindow)
	f.SetCol(ColATR, atr)

	f.SetCol(ColRSI, RSI(closes, s.RSIWindow))

	line, signal, hist := MACD(closes, s.MACDFast, s.MACDSlow, s.MACDSignal)
	f.SetCol(ColMACDLine, line)
	f.SetCol(ColMACDSignal, signal)
	f.SetCol(ColMACDHist, hist)

	volRatio := make([]float64, len(bars))
	for i := range bars {
		if bars[i].Close != 0 {
			volRatio[i] = atr[i] / bars[i].Close
		}
	}
	f.SetCol(ColVolatilityRatio, volRatio)

	return f
}

// Require verifies that every named column is present in the frame,
// returning the first MissingColumnError encountered.
func Require(f *Frame, columns []string) error {
	for _, c := range columns {
		if !f.HasCol(c) {
			return &MissingColumnError{Column: c}
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Rolling formulas
// ---------------------------------------------------------------------------

// RollingMean computes a simple moving average with an expanding warm-up:
// the first window-1 values average over however many points exist so far.
func RollingMean(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	var sum float64
	for i, v := range values {
		sum += v
		n := i + 1
		if n > window {
			sum -= values[i-window]
			n = window
		}
		out[i] = sum / float64(n)
	}
	return out
}

// RollingStd computes the rolling sample standard deviation with an
// expanding warm-up. Positions with fewer than two points are 0.
func RollingStd(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		lo := i + 1 - window
		if lo < 0 {
			lo = 0
		}
		if i-lo < 1 {
			continue
		}
		sd, err := stats.StandardDeviationSample(values[lo : i+1])
		if err != nil {
			continue
		}
		out[i] = sd
	}
	return out
}

// BollingerBands returns the middle band (rolling mean) and the upper/lower
// bands offset by numStd rolling standard deviations.
func BollingerBands(closes []float64, window int, numStd float64) (middle, upper, lower []float64) {
	middle = RollingMean(closes, window)
	sd := RollingStd(closes, window)
	upper = make([]float64, len(closes))
	lower = make([]float64, len(closes))
	for i := range closes {
		upper[i] = middle[i] + numStd*sd[i]
		lower[i] = middle[i] - numStd*sd[i]
	}
	return middle, upper, lower
}

// ATR computes the average true range with Wilder smoothing. When the
// sequence is shorter than the window, the whole column degrades to zero
// rather than failing the computation.
func ATR(bars []domain.Bar, window int) []float64 {
	out := make([]float64, len(bars))
	if len(bars) < window {
		return out
	}

	var atr float64
	for i, b := range bars {
		tr := b.High - b.Low
		if i > 0 {
			prevClose := bars[i-1].Close
			tr = math.Max(tr, math.Max(math.Abs(b.High-prevClose), math.Abs(b.Low-prevClose)))
		}
		if i == 0 {
			atr = tr
		} else {
			atr = (atr*float64(window-1) + tr) / float64(window)
		}
		out[i] = atr
	}
	return out
}

// RSI computes the relative strength index with Wilder smoothing. The first
// bar, where no delta exists, is filled with the neutral value 50.
func RSI(closes []float64, window int) []float64 {
	out := make([]float64, len(closes))
	if len(closes) == 0 {
		return out
	}
	out[0] = 50

	var avgGain, avgLoss float64
	for i := 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}

		if i == 1 {
			avgGain, avgLoss = gain, loss
		} else {
			avgGain = (avgGain*float64(window-1) + gain) / float64(window)
			avgLoss = (avgLoss*float64(window-1) + loss) / float64(window)
		}

		switch {
		case avgGain == 0 && avgLoss == 0:
			out[i] = 50
		case avgLoss == 0:
			out[i] = 100
		default:
			rs := avgGain / avgLoss
			out[i] = 100 - 100/(1+rs)
		}
	}
	return out
}

// EMA computes an exponential moving average seeded with the first value.
func EMA(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	alpha := 2.0 / (float64(window) + 1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// MACD returns the MACD line (fast EMA − slow EMA), its signal EMA, and the
// histogram (line − signal).
func MACD(closes []float64, fast, slow, signalWindow int) (line, signal, hist []float64) {
	fastEMA := EMA(closes, fast)
	slowEMA := EMA(closes, slow)

	line = make([]float64, len(closes))
	for i := range closes {
		line[i] = fastEMA[i] - slowEMA[i]
	}

	signal = EMA(line, signalWindow)

	hist = make([]float64, len(closes))
	for i := range closes {
		hist[i] = line[i] - signal[i]
	}
	return line, signal, hist
}
