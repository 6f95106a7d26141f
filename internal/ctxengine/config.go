package ctxengine

import (
	"marketcontext/config"
	"marketcontext/internal/enrich"
	"marketcontext/internal/model"
)

// Config is the service's view of env config plus params.
type Config struct {
	HTTPAddr       string
	RefreshCron    string
	RefreshWorkers int

	// HistoryDays of calendar history are read per computation and
	// fetched on a cold refresh.
	HistoryDays int

	Options   enrich.Options
	Watchlist []model.Instrument
}

// NewConfig merges env configuration and the params file.
func NewConfig(cfg *config.Config, p *config.Params) Config {
	workers := cfg.RefreshWorkers
	if workers <= 0 {
		workers = 1
	}
	return Config{
		HTTPAddr:       cfg.HTTPAddr,
		RefreshCron:    cfg.RefreshCron,
		RefreshWorkers: workers,
		HistoryDays:    p.HistoryDays,
		Options: enrich.Options{
			SwingThreshold: p.SwingThreshold,
			IncludeSeries:  p.IncludeSeries,
		},
		Watchlist: p.Instruments(),
	}
}
