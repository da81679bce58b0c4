// Package indicator enriches bar sequences with derived numeric columns
// (moving averages, Bollinger bands, ATR, RSI, MACD) consumed by the
// strategy layer. Large sequences are processed in overlapping chunks on a
// worker pool; the result is indistinguishable from a sequential pass.
package indicator

import (
	"fmt"
	"sort"

	"gridbot/internal/domain"
)

// MissingColumnError reports a required indicator column absent from a Frame
// after preprocessing. It is a data error: the run must fail, not degrade.
type MissingColumnError struct {
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("missing required indicator column %q", e.Column)
}

// Frame is a bar sequence augmented with named indicator columns. Every
// column has exactly one value per bar.
type Frame struct {
	Bars []domain.Bar

	cols map[string][]float64
}

// NewFrame wraps a bar sequence with an empty column set.
func NewFrame(bars []domain.Bar) *Frame {
	return &Frame{
		Bars: bars,
		cols: make(map[string][]float64),
	}
}

// Len returns the number of bars.
func (f *Frame) Len() int {
	return len(f.Bars)
}

// SetCol attaches a column. The slice length must equal the bar count.
func (f *Frame) SetCol(name string, values []float64) {
	if len(values) != len(f.Bars) {
		panic(fmt.Sprintf("column %q has %d values for %d bars", name, len(values), len(f.Bars)))
	}
	f.cols[name] = values
}

// Col returns the named column, or a MissingColumnError if it is absent.
func (f *Frame) Col(name string) ([]float64, error) {
	v, ok := f.cols[name]
	if !ok {
		return nil, &MissingColumnError{Column: name}
	}
	return v, nil
}

// HasCol reports whether the named column is present.
func (f *Frame) HasCol(name string) bool {
	_, ok := f.cols[name]
	return ok
}

// ColNames returns a sorted list of all column names.
func (f *Frame) ColNames() []string {
	names := make([]string, 0, len(f.cols))
	for name := range f.cols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Row returns a snapshot of every column's value at index i, keyed by column
// name. Used by the per-bar Analyze entry point.
func (f *Frame) Row(i int) map[string]float64 {
	row := make(map[string]float64, len(f.cols))
	for name, vals := range f.cols {
		row[name] = vals[i]
	}
	return row
}
