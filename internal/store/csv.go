package store

import (
	"fmt"
	"os"
	"time"

	"github.com/gocarina/gocsv"

	"gridbot/internal/domain"
)

// csvTime parses the timestamp column, accepting RFC 3339 or a plain date.
type csvTime struct {
	time.Time
}

var csvTimeLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

// UnmarshalCSV implements gocsv field decoding.
func (t *csvTime) UnmarshalCSV(field string) error {
	for _, layout := range csvTimeLayouts {
		if parsed, err := time.Parse(layout, field); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", field)
}

// MarshalCSV implements gocsv field encoding.
func (t csvTime) MarshalCSV() (string, error) {
	return t.Format(time.RFC3339), nil
}

// csvBar is the CSV row layout for bar fixtures and exports.
type csvBar struct {
	Timestamp csvTime `csv:"timestamp"`
	Open      float64 `csv:"open"`
	High      float64 `csv:"high"`
	Low       float64 `csv:"low"`
	Close     float64 `csv:"close"`
	Volume    float64 `csv:"volume"`
}

// ReadCSVBars loads bars for one symbol from a CSV file with columns
// timestamp,open,high,low,close,volume. Rows are sorted and deduplicated
// keep-first before returning.
func ReadCSVBars(path, symbol string) ([]domain.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var rows []csvBar
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	bars := make([]domain.Bar, 0, len(rows))
	for _, r := range rows {
		bars = append(bars, domain.Bar{
			Symbol:    symbol,
			Timestamp: r.Timestamp.Time,
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
		})
	}
	domain.SortBars(bars)
	return domain.DedupeBars(bars), nil
}

// WriteCSVBars writes bars to a CSV file in the same layout ReadCSVBars
// accepts.
func WriteCSVBars(path string, bars []domain.Bar) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	rows := make([]csvBar, 0, len(bars))
	for _, b := range bars {
		rows = append(rows, csvBar{
			Timestamp: csvTime{b.Timestamp},
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}
	if err := gocsv.MarshalFile(&rows, f); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
