package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"marketcontext/internal/model"
)

// Params are the tunables read from the YAML params file.
type Params struct {
	// SwingThreshold is the reversal fraction confirming a swing point.
	SwingThreshold float64 `yaml:"swing_threshold"`

	// IncludeSeries attaches full indicator history to served snapshots.
	IncludeSeries bool `yaml:"include_series"`

	// HistoryDays is how many calendar days of candles are fetched and
	// read back per instrument.
	HistoryDays int `yaml:"history_days"`

	Watchlist []WatchItem `yaml:"watchlist"`
}

// WatchItem is one instrument refreshed on schedule.
type WatchItem struct {
	Exchange string `yaml:"exchange"`
	Token    string `yaml:"token"`
	Symbol   string `yaml:"symbol"`
	Name     string `yaml:"name"`
}

// DefaultParams returns the built-in parameters.
func DefaultParams() Params {
	return Params{
		SwingThreshold: 0.03,
		// 252 sessions plus weekends and holidays
		HistoryDays: 400,
	}
}

// LoadParams reads path over DefaultParams, then applies SWING_THRESHOLD,
// INCLUDE_SERIES and HISTORY_DAYS overrides. A missing file is not an error.
func LoadParams(path string) (*Params, error) {
	p := DefaultParams()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read params: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, &p); err != nil {
				return nil, fmt.Errorf("parse params %s: %w", path, err)
			}
		}
	}

	if v := os.Getenv("SWING_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("SWING_THRESHOLD: %w", err)
		}
		p.SwingThreshold = f
	}
	if v := os.Getenv("INCLUDE_SERIES"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("INCLUDE_SERIES: %w", err)
		}
		p.IncludeSeries = b
	}
	if v := os.Getenv("HISTORY_DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("HISTORY_DAYS: %w", err)
		}
		p.HistoryDays = n
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks ranges and watchlist consistency.
func (p *Params) Validate() error {
	if p.SwingThreshold <= 0 || p.SwingThreshold >= 1 {
		return fmt.Errorf("swing_threshold must be in (0, 1), got %v", p.SwingThreshold)
	}
	if p.HistoryDays < 1 {
		return fmt.Errorf("history_days must be positive, got %d", p.HistoryDays)
	}
	seen := make(map[string]bool, len(p.Watchlist))
	for i, w := range p.Watchlist {
		if w.Exchange == "" || w.Token == "" {
			return fmt.Errorf("watchlist[%d]: exchange and token are required", i)
		}
		key := strings.ToUpper(w.Exchange) + ":" + w.Token
		if seen[key] {
			return fmt.Errorf("watchlist[%d]: duplicate instrument %s", i, key)
		}
		seen[key] = true
	}
	return nil
}

// Instruments converts the watchlist to model instruments.
func (p *Params) Instruments() []model.Instrument {
	out := make([]model.Instrument, len(p.Watchlist))
	for i, w := range p.Watchlist {
		out[i] = model.Instrument{
			Token:         w.Token,
			Exchange:      strings.ToUpper(w.Exchange),
			TradingSymbol: w.Symbol,
			Name:          w.Name,
		}
	}
	return out
}

func sorted(s []string) []string {
	sort.Strings(s)
	return s
}
