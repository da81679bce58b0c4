// Package fetch downloads daily OHLCV bars from the Alpaca market-data API
// and persists them to a BarStore.
package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/cenkalti/backoff/v4"

	"gridbot/internal/config"
	"gridbot/internal/domain"
	"gridbot/internal/store"
	"gridbot/internal/util"
)

// batchSize is the number of symbols requested per API call.
const batchSize = 200

// rateBurst lets a handful of batches start back to back before the
// sustained per-minute limit takes over.
const rateBurst = 5

// barGetter is the slice of the Alpaca client the fetcher needs. The concrete
// *marketdata.Client satisfies it.
type barGetter interface {
	GetMultiBars(symbols []string, req marketdata.GetBarsRequest) (map[string][]marketdata.Bar, error)
}

var _ barGetter = (*marketdata.Client)(nil)

// Fetcher pulls daily bars for a set of symbols and writes them to a store.
type Fetcher struct {
	client      barGetter
	store       store.BarStore
	limiter     *util.RateLimiter
	startDate   string
	maxAttempts int
	log         *slog.Logger
}

// New creates a Fetcher backed by the Alpaca market-data client. Credentials
// and fetch parameters come from the configuration.
func New(cfg *config.Config, s store.BarStore, log *slog.Logger) *Fetcher {
	opts := marketdata.ClientOpts{
		APIKey:    cfg.Alpaca.APIKey,
		APISecret: cfg.Alpaca.APISecret,
	}
	if cfg.Alpaca.DataURL != "" {
		opts.BaseURL = cfg.Alpaca.DataURL
	}
	if log == nil {
		log = slog.Default()
	}

	return &Fetcher{
		client:      marketdata.NewClient(opts),
		store:       s,
		limiter:     util.NewRateLimiter(cfg.Fetch.RateLimitPerMin, rateBurst),
		startDate:   cfg.Fetch.StartDate,
		maxAttempts: cfg.Fetch.MaxAttempts,
		log:         log.With("component", "fetch"),
	}
}

// Run fetches daily bars for the given symbols from the configured start date
// through yesterday and writes them to the store. Symbols with no data are
// reported but do not fail the run.
func (f *Fetcher) Run(ctx context.Context, symbols []string) error {
	if len(symbols) == 0 {
		return fmt.Errorf("no symbols to fetch")
	}

	start, err := time.Parse("2006-01-02", f.startDate)
	if err != nil {
		return fmt.Errorf("parsing start date %q: %w", f.startDate, err)
	}
	end := time.Now().UTC().Truncate(24 * time.Hour)

	runStart := time.Now()
	var total, empty int

	for i := 0; i < len(symbols); i += batchSize {
		j := min(i+batchSize, len(symbols))
		batch := symbols[i:j]

		bars, err := f.fetchBatch(ctx, batch, start, end)
		if err != nil {
			return fmt.Errorf("fetching batch %d-%d: %w", i, j, err)
		}

		hit := make(map[string]struct{})
		for _, b := range bars {
			hit[b.Symbol] = struct{}{}
		}
		for _, sym := range batch {
			if _, ok := hit[strings.ToUpper(sym)]; !ok {
				empty++
				f.log.Warn("no bars returned", "symbol", sym)
			}
		}

		if len(bars) > 0 {
			if err := f.store.WriteBars(ctx, bars); err != nil {
				return fmt.Errorf("writing bars: %w", err)
			}
		}
		total += len(bars)

		f.log.Info("batch done",
			"symbols", len(batch),
			"bars", len(bars),
			"elapsed", time.Since(runStart).Round(time.Second),
		)
	}

	f.log.Info("fetch complete", "bars", total, "emptySymbols", empty)
	return nil
}

// fetchBatch fetches daily bars for a batch of symbols, retrying transient
// failures with exponential backoff.
func (f *Fetcher) fetchBatch(ctx context.Context, symbols []string, start, end time.Time) ([]domain.Bar, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var multiBars map[string][]marketdata.Bar
	op := func() error {
		var err error
		multiBars, err = f.client.GetMultiBars(symbols, marketdata.GetBarsRequest{
			TimeFrame: marketdata.OneDay,
			Start:     start,
			End:       end,
		})
		if err != nil {
			f.log.Warn("GetMultiBars failed, retrying", "err", err)
		}
		return err
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(max(f.maxAttempts-1, 0)))
	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		return nil, fmt.Errorf("GetMultiBars: %w", err)
	}

	var bars []domain.Bar
	for symbol, alpacaBars := range multiBars {
		for _, ab := range alpacaBars {
			bars = append(bars, domain.Bar{
				Symbol:    strings.ToUpper(symbol),
				Timestamp: ab.Timestamp,
				Open:      ab.Open,
				High:      ab.High,
				Low:       ab.Low,
				Close:     ab.Close,
				Volume:    float64(ab.Volume),
			})
		}
	}
	domain.SortBars(bars)
	return bars, nil
}
