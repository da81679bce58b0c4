// Package domain defines the core market-data and trading types shared by
// every other package: OHLCV bars, trading signals, and order sides.
package domain

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrNoBars reports an empty bar sequence where at least one bar is needed.
var ErrNoBars = errors.New("empty bar sequence")

// Side identifies the direction of an order or grid level.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Action is the per-bar directive produced by a strategy.
type Action int

const (
	ActionHold Action = 0
	ActionBuy  Action = 1
	ActionSell Action = -1
)

// String returns a human-readable action name.
func (a Action) String() string {
	switch a {
	case ActionBuy:
		return "buy"
	case ActionSell:
		return "sell"
	default:
		return "hold"
	}
}

// Bar is a single OHLCV bar. Timestamps within a sequence are expected to be
// strictly increasing and unique; use SortBars and DedupeBars to normalise
// raw input before handing it to the backtester.
type Bar struct {
	Symbol    string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Signal is a trading directive for one bar. Size, StopLoss, and TakeProfit
// are optional; zero means "not set".
type Signal struct {
	Action     Action
	Size       float64
	StopLoss   float64
	TakeProfit float64
}

// SortBars sorts bars in place by ascending timestamp. The sort is stable so
// that DedupeBars keeps the first of two bars sharing a timestamp.
func SortBars(bars []Bar) {
	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Timestamp.Before(bars[j].Timestamp)
	})
}

// DedupeBars returns bars with duplicate timestamps removed, keeping the
// first occurrence. The input must already be sorted by timestamp.
func DedupeBars(bars []Bar) []Bar {
	if len(bars) < 2 {
		return bars
	}
	out := bars[:1]
	for _, b := range bars[1:] {
		if !b.Timestamp.Equal(out[len(out)-1].Timestamp) {
			out = append(out, b)
		}
	}
	return out
}

// ValidateBars checks that the sequence is non-empty and strictly increasing
// in timestamp. It returns a descriptive error naming the first offending
// position, or nil.
func ValidateBars(bars []Bar) error {
	if len(bars) == 0 {
		return ErrNoBars
	}
	for i := 1; i < len(bars); i++ {
		if !bars[i].Timestamp.After(bars[i-1].Timestamp) {
			return fmt.Errorf("bar sequence not strictly increasing at index %d (%s followed by %s)",
				i, bars[i-1].Timestamp.Format(time.RFC3339), bars[i].Timestamp.Format(time.RFC3339))
		}
	}
	return nil
}

// Closes extracts the close column from a bar sequence.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}
