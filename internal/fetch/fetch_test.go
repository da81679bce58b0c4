package fetch

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"gridbot/internal/store"
	"gridbot/internal/util"
)

// fakeClient serves canned bars and can fail a number of times before
// succeeding, to exercise the retry path.
type fakeClient struct {
	bars     map[string][]marketdata.Bar
	failures int
	calls    int
}

func (c *fakeClient) GetMultiBars(symbols []string, _ marketdata.GetBarsRequest) (map[string][]marketdata.Bar, error) {
	c.calls++
	if c.failures > 0 {
		c.failures--
		return nil, errors.New("simulated transient error")
	}
	out := make(map[string][]marketdata.Bar)
	for _, sym := range symbols {
		if bars, ok := c.bars[sym]; ok {
			out[sym] = bars
		}
	}
	return out, nil
}

func fakeBars(n int) []marketdata.Bar {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]marketdata.Bar, n)
	for i := range bars {
		c := 100 + float64(i)
		bars[i] = marketdata.Bar{
			Timestamp: base.AddDate(0, 0, i),
			Open:      c, High: c + 1, Low: c - 1, Close: c,
			Volume: 1000,
		}
	}
	return bars
}

func newTestFetcher(client barGetter, s store.BarStore) *Fetcher {
	return &Fetcher{
		client:      client,
		store:       s,
		limiter:     util.NewRateLimiter(60000, rateBurst),
		startDate:   "2024-01-01",
		maxAttempts: 3,
		log:         slog.Default(),
	}
}

func TestFetcherWritesBars(t *testing.T) {
	ctx := context.Background()
	s := store.NewParquetStore(t.TempDir())
	client := &fakeClient{bars: map[string][]marketdata.Bar{
		"AAPL": fakeBars(5),
		"MSFT": fakeBars(3),
	}}

	f := newTestFetcher(client, s)
	if err := f.Run(ctx, []string{"AAPL", "MSFT", "NODATA"}); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	got, err := s.ReadBars(ctx, "AAPL",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ReadBars returned error: %v", err)
	}
	if len(got) != 5 {
		t.Errorf("stored %d AAPL bars, want 5", len(got))
	}

	symbols, err := s.ListSymbols(ctx)
	if err != nil {
		t.Fatalf("ListSymbols returned error: %v", err)
	}
	if len(symbols) != 2 {
		t.Errorf("ListSymbols = %v, want 2 symbols (NODATA skipped)", symbols)
	}
}

func TestFetcherRetriesTransientFailures(t *testing.T) {
	ctx := context.Background()
	s := store.NewParquetStore(t.TempDir())
	client := &fakeClient{
		bars:     map[string][]marketdata.Bar{"AAPL": fakeBars(2)},
		failures: 2,
	}

	f := newTestFetcher(client, s)
	if err := f.Run(ctx, []string{"AAPL"}); err != nil {
		t.Fatalf("Run returned error after retries: %v", err)
	}
	if client.calls != 3 {
		t.Errorf("client called %d times, want 3 (2 failures + 1 success)", client.calls)
	}
}

func TestFetcherExhaustedRetries(t *testing.T) {
	ctx := context.Background()
	s := store.NewParquetStore(t.TempDir())
	client := &fakeClient{failures: 10}

	f := newTestFetcher(client, s)
	if err := f.Run(ctx, []string{"AAPL"}); err == nil {
		t.Fatal("Run succeeded, want error after exhausting retries")
	}
	if client.calls != 3 {
		t.Errorf("client called %d times, want maxAttempts = 3", client.calls)
	}
}

func TestFetcherNoSymbols(t *testing.T) {
	f := newTestFetcher(&fakeClient{}, store.NewParquetStore(t.TempDir()))
	if err := f.Run(context.Background(), nil); err == nil {
		t.Fatal("Run with no symbols succeeded, want error")
	}
}

func TestFetcherBadStartDate(t *testing.T) {
	f := newTestFetcher(&fakeClient{}, store.NewParquetStore(t.TempDir()))
	f.startDate = "not-a-date"
	if err := f.Run(context.Background(), []string{"AAPL"}); err == nil {
		t.Fatal("Run with bad start date succeeded, want error")
	}
}
