// cmd/backfill logs into Angel One and stores daily candles for the
// watchlist (or one --token) in SQLite. With --search it only looks up
// instrument tokens.
//
// Usage:
//
//	go run ./cmd/backfill --days=400
//	go run ./cmd/backfill --exchange=NSE --token=2885 --symbol=RELIANCE-EQ
//	go run ./cmd/backfill --search=RELIANCE
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"marketcontext/config"
	"marketcontext/internal/marketdata/historical"
	"marketcontext/internal/model"
	sqlitestore "marketcontext/internal/store/sqlite"
	"marketcontext/pkg/smartconnect"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	days := flag.Int("days", 0, "Calendar days to fetch (0=history_days from params)")
	exchange := flag.String("exchange", "NSE", "Exchange for --token/--search")
	token := flag.String("token", "", "Backfill only this instrument token")
	symbol := flag.String("symbol", "", "Trading symbol for --token")
	search := flag.String("search", "", "Search instruments by name and exit")
	flag.Parse()

	cfg := config.Load()
	if err := cfg.RequireBroker(); err != nil {
		log.Fatalf("[backfill] %v", err)
	}
	params, err := config.LoadParams(cfg.ParamsFile)
	if err != nil {
		log.Fatalf("[backfill] params: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sc, err := historical.Login(ctx, historical.Credentials{
		APIKey:     cfg.AngelAPIKey,
		ClientCode: cfg.AngelClientCode,
		Password:   cfg.AngelPassword,
		TOTPSecret: cfg.AngelTOTPSecret,
	}, smartconnect.Config{})
	if err != nil {
		log.Fatalf("[backfill] login failed: %v", err)
	}
	defer func() {
		logoutCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
		defer c()
		if err := sc.TerminateSession(logoutCtx); err != nil {
			log.Printf("[backfill] logout: %v", err)
		}
	}()

	if *search != "" {
		scrips, err := sc.SearchScrip(ctx, strings.ToUpper(*exchange), *search)
		if err != nil {
			log.Fatalf("[backfill] search: %v", err)
		}
		for _, s := range scrips {
			fmt.Printf("%-6s %-10s %s\n", s.Exchange, s.SymbolToken, s.TradingSymbol)
		}
		return
	}

	watch := params.Instruments()
	if *token != "" {
		watch = []model.Instrument{{Exchange: strings.ToUpper(*exchange), Token: *token, TradingSymbol: *symbol}}
	}
	if len(watch) == 0 {
		log.Fatal("[backfill] empty watchlist: set watchlist in params or pass --token")
	}
	if *days <= 0 {
		*days = params.HistoryDays
	}

	if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
		os.MkdirAll(dir, 0o755)
	}
	w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[backfill] sqlite init failed: %v", err)
	}
	defer w.Close()

	fetcher := historical.NewFetcher(sc)
	now := time.Now()
	from := now.AddDate(0, 0, -*days)

	failed := 0
	for _, inst := range watch {
		if ctx.Err() != nil {
			break
		}
		n, err := backfill(ctx, fetcher, w, inst, from, now)
		if err != nil {
			failed++
			log.Printf("[backfill] %s: %v", inst.Key(), err)
			continue
		}
		log.Printf("[backfill] %s (%s): %d candles", inst.Key(), inst.TradingSymbol, n)
	}
	log.Printf("[backfill] done: %d instruments, %d failed", len(watch), failed)
	if failed > 0 {
		os.Exit(1)
	}
}

func backfill(ctx context.Context, f *historical.Fetcher, w *sqlitestore.Writer, inst model.Instrument, from, to time.Time) (int, error) {
	candles, err := f.FetchDaily(ctx, inst, from, to)
	if err != nil {
		return 0, err
	}
	if _, err := model.NewSeries(inst, candles); err != nil {
		return 0, fmt.Errorf("broker returned bad data: %w", err)
	}
	if err := w.UpsertInstrument(ctx, inst); err != nil {
		return 0, err
	}
	if err := w.UpsertCandles(ctx, inst.Exchange, inst.Token, candles); err != nil {
		return 0, err
	}
	return len(candles), nil
}
