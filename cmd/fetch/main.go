// Downloads daily bars from the Alpaca market-data API into the Parquet
// store.
//
// Usage:
//
//	go run cmd/fetch/main.go -symbols AAPL,MSFT,SPY
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"gridbot/internal/config"
	"gridbot/internal/fetch"
	"gridbot/internal/store"
	"gridbot/internal/util"
)

func main() {
	symbolsStr := flag.String("symbols", "", "comma-separated symbols to fetch (required)")
	flag.Parse()

	var symbols []string
	for _, s := range strings.Split(*symbolsStr, ",") {
		if s = strings.TrimSpace(s); s != "" {
			symbols = append(symbols, strings.ToUpper(s))
		}
	}
	if len(symbols) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfgPath := "config/gridbot.yaml"
	if p := os.Getenv("GRIDBOT_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg = config.Default()
		} else {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	if cfg.Alpaca.APIKey == "" || cfg.Alpaca.APISecret == "" {
		log.Fatal("missing Alpaca credentials: set APCA_API_KEY_ID and APCA_API_SECRET_KEY")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pstore := store.NewParquetStore(cfg.Storage.DataDir)
	f := fetch.New(cfg, pstore, logger)

	logger.Info("starting fetch", "symbols", len(symbols), "start", cfg.Fetch.StartDate)
	if err := f.Run(ctx, symbols); err != nil {
		log.Fatalf("fetch failed: %v", err)
	}
}
