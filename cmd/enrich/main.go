// cmd/enrich computes one EnrichedMarketData snapshot from stored candles
// (or a CSV file) and prints it as JSON.
//
// Usage:
//
//	go run ./cmd/enrich --exchange=NSE --token=2885
//	go run ./cmd/enrich --csv=reliance.csv --symbol=RELIANCE-EQ --levels
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"marketcontext/internal/enrich"
	"marketcontext/internal/marketdata/historical"
	"marketcontext/internal/markethours"
	"marketcontext/internal/model"
	sqlitestore "marketcontext/internal/store/sqlite"
)

func main() {
	log.SetFlags(0)

	dbPath := flag.String("db", "data/candles.db", "Path to SQLite database")
	exchange := flag.String("exchange", "NSE", "Exchange")
	token := flag.String("token", "", "Instrument token")
	csvPath := flag.String("csv", "", "Read candles from this CSV file instead of SQLite")
	symbol := flag.String("symbol", "", "Trading symbol to report (CSV input)")
	days := flag.Int("days", 400, "Calendar days of history to read (0=all)")
	swing := flag.Float64("swing", 0, "Swing reversal threshold as a fraction (0=default 0.03)")
	series := flag.Bool("series", false, "Include full indicator series")
	levelsOnly := flag.Bool("levels", false, "Only compute price levels")
	pretty := flag.Bool("pretty", true, "Indent JSON output")
	flag.Parse()

	ctx := context.Background()
	inst := model.Instrument{Exchange: strings.ToUpper(*exchange), Token: *token, TradingSymbol: *symbol}

	var candles []model.Candle
	if *csvPath != "" {
		f, err := os.Open(*csvPath)
		if err != nil {
			log.Fatalf("[enrich] %v", err)
		}
		candles, err = historical.ReadCSV(f)
		f.Close()
		if err != nil {
			log.Fatalf("[enrich] %s: %v", *csvPath, err)
		}
	} else {
		if *token == "" {
			log.Fatal("[enrich] --token or --csv is required")
		}
		reader, err := sqlitestore.NewReader(*dbPath)
		if err != nil {
			log.Fatalf("[enrich] sqlite open failed: %v", err)
		}
		defer reader.Close()

		if known, err := reader.Instrument(ctx, inst.Exchange, inst.Token); err == nil && known != nil {
			inst = *known
		}
		var from time.Time
		if *days > 0 {
			from = markethours.SessionDate(time.Now()).AddDate(0, 0, -*days)
		}
		candles, err = reader.ReadCandles(ctx, inst.Exchange, inst.Token, from)
		if err != nil {
			log.Fatalf("[enrich] read candles: %v", err)
		}
	}

	s, err := model.NewSeries(inst, candles)
	if err != nil {
		log.Fatalf("[enrich] %v", err)
	}

	opts := enrich.Options{SwingThreshold: *swing, IncludeSeries: *series}
	var out any
	if *levelsOnly {
		out, err = enrich.ComputeLevels(s, opts)
	} else {
		out, err = enrich.Compute(s, opts)
	}
	if err != nil {
		log.Fatalf("[enrich] %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	if *pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(out); err != nil {
		log.Fatalf("[enrich] encode: %v", err)
	}
}
