// Package ctxengine is the market context service: it keeps daily candles
// for a watchlist current, computes EnrichedMarketData on demand or on
// schedule, and fans snapshots out to SQLite, Redis and WebSocket clients.
package ctxengine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"marketcontext/internal/enrich"
	"marketcontext/internal/gateway"
	"marketcontext/internal/logger"
	"marketcontext/internal/markethours"
	"marketcontext/internal/metrics"
	"marketcontext/internal/model"
	"marketcontext/internal/notification"
)

// CandleStore is the write side of candle storage.
type CandleStore interface {
	model.CandleWriter
	LastCandleTime(ctx context.Context, exchange, token string) (time.Time, bool, error)
}

// Deps are the collaborators a Service runs against. Candles, Store and
// Snapshots are required; the rest may be nil.
type Deps struct {
	Candles   model.CandleReader
	Store     CandleStore
	Snapshots model.SnapshotWriter

	Cache     model.SnapshotReader    // served for cached=true
	Publisher model.SnapshotPublisher // Redis cache + pub/sub
	Fetcher   model.CandleFetcher     // nil disables broker refresh
	Notifier  notification.Notifier
	Metrics   *metrics.Metrics
	Health    *metrics.HealthStatus
	Hub       *gateway.Hub
}

// Service computes and distributes market context snapshots.
type Service struct {
	cfg Config
	Deps

	now     func() time.Time
	closers []func() error
}

// New validates deps and returns a Service.
func New(cfg Config, deps Deps) (*Service, error) {
	if deps.Candles == nil || deps.Store == nil || deps.Snapshots == nil {
		return nil, errors.New("ctxengine: candle reader, candle store and snapshot writer are required")
	}
	if err := cfg.Options.Validate(); err != nil {
		return nil, err
	}
	if deps.Notifier == nil {
		deps.Notifier = notification.NewLogNotifier()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewMetrics(nil)
	}
	if deps.Health == nil {
		deps.Health = metrics.NewHealthStatus()
	}
	deps.Health.SetWatchlist(len(cfg.Watchlist))
	if cfg.HistoryDays <= 0 {
		cfg.HistoryDays = 400
	}
	if cfg.RefreshWorkers <= 0 {
		cfg.RefreshWorkers = 1
	}
	return &Service{cfg: cfg, Deps: deps, now: time.Now}, nil
}

// Snapshot loads the candles for exchange:token, computes the snapshot and
// fans it out. Storage and publish failures are logged, not returned.
func (svc *Service) Snapshot(ctx context.Context, exchange, token string, opts enrich.Options) (*model.EnrichedMarketData, error) {
	series, err := svc.loadSeries(ctx, exchange, token)
	if err != nil {
		svc.Metrics.ObserveSnapshot(nil, err, 0)
		svc.alertMalformed(ctx, exchange, token, err)
		return nil, err
	}

	start := time.Now()
	snap, err := enrich.Compute(series, opts)
	svc.Metrics.ObserveSnapshot(snap, err, time.Since(start))
	if err != nil {
		return nil, err
	}

	slog.DebugContext(ctx, "snapshot computed", append(logger.LogWithTrace(ctx),
		slog.String("key", snap.Key()),
		slog.Int("candles", snap.Candles),
		slog.Int("undefined", len(snap.Undefined)))...)

	svc.distribute(ctx, snap)
	return snap, nil
}

// Levels answers the price-levels-only query.
func (svc *Service) Levels(ctx context.Context, exchange, token string, opts enrich.Options) (*enrich.LevelsReport, error) {
	series, err := svc.loadSeries(ctx, exchange, token)
	if err != nil {
		svc.alertMalformed(ctx, exchange, token, err)
		return nil, err
	}
	return enrich.ComputeLevels(series, opts)
}

// Cached returns the last published snapshot, falling back to the most
// recent stored one. nil, nil when neither exists.
func (svc *Service) Cached(ctx context.Context, exchange, token string) (*model.EnrichedMarketData, error) {
	if svc.Cache != nil {
		snap, err := svc.Cache.LatestSnapshot(ctx, exchange, token)
		if err != nil {
			log.Printf("[ctxengine] cache read %s:%s: %v", exchange, token, err)
		} else if snap != nil {
			return snap, nil
		}
	}
	for _, src := range []any{svc.Snapshots, svc.Candles} {
		if r, ok := src.(model.SnapshotReader); ok {
			return r.LatestSnapshot(ctx, exchange, token)
		}
	}
	return nil, nil
}

// loadSeries reads HistoryDays of candles and attaches instrument identity.
func (svc *Service) loadSeries(ctx context.Context, exchange, token string) (*model.Series, error) {
	inst, err := svc.Candles.Instrument(ctx, exchange, token)
	if err != nil {
		return nil, fmt.Errorf("instrument %s:%s: %w", exchange, token, err)
	}
	if inst == nil {
		inst = &model.Instrument{Exchange: exchange, Token: token}
	}

	from := markethours.SessionDate(svc.now()).AddDate(0, 0, -svc.cfg.HistoryDays)
	candles, err := svc.Candles.ReadCandles(ctx, exchange, token, from)
	if err != nil {
		return nil, fmt.Errorf("read candles %s:%s: %w", exchange, token, err)
	}
	return model.NewSeries(*inst, candles)
}

// distribute persists snap and pushes it to the cache, pub/sub and live clients.
func (svc *Service) distribute(ctx context.Context, snap *model.EnrichedMarketData) {
	stored := *snap
	stored.Series = nil

	if err := svc.Snapshots.SaveSnapshot(ctx, &stored); err != nil {
		slog.WarnContext(ctx, "snapshot save failed", append(logger.LogWithTrace(ctx),
			slog.String("key", snap.Key()), slog.Any("error", err))...)
	}
	if svc.Publisher != nil {
		if err := svc.Publisher.PublishSnapshot(ctx, &stored); err != nil {
			slog.WarnContext(ctx, "snapshot publish failed", append(logger.LogWithTrace(ctx),
				slog.String("key", snap.Key()), slog.Any("error", err))...)
		}
	} else if svc.Hub != nil {
		// without Redis the hub is fed directly
		if err := svc.Hub.Publish(&stored); err != nil {
			slog.WarnContext(ctx, "snapshot push failed", append(logger.LogWithTrace(ctx),
				slog.String("key", snap.Key()), slog.Any("error", err))...)
		}
	}
}

func (svc *Service) alertMalformed(ctx context.Context, exchange, token string, err error) {
	var mce *model.MalformedCandleError
	if !errors.As(err, &mce) {
		return
	}
	key := exchange + ":" + token
	alert := notification.Alert{
		Level:   notification.AlertWarning,
		Title:   "Malformed candle data",
		Message: mce.Error(),
		Key:     key,
	}
	if serr := svc.Notifier.Send(ctx, alert); serr != nil {
		log.Printf("[ctxengine] alert %s: %v", key, serr)
	}
}

// AddCloser registers fn to run on shutdown, in reverse order.
func (svc *Service) AddCloser(fn func() error) {
	svc.closers = append(svc.closers, fn)
}

// Run serves HTTP, schedules refreshes and blocks until ctx is cancelled.
func (svc *Service) Run(ctx context.Context) error {
	log.Printf("[ctxengine] starting: watchlist=%d history=%dd swing=%.3f",
		len(svc.cfg.Watchlist), svc.cfg.HistoryDays, svc.cfg.Options.SwingThreshold)

	srv := &http.Server{
		Addr:              svc.cfg.HTTPAddr,
		Handler:           svc.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("[ctxengine] HTTP server on %s (/snapshot, /levels, /refresh, /healthz, /metrics, /ws)", svc.cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sched, err := svc.startScheduler(ctx)
	if err != nil {
		srv.Close()
		return err
	}

	select {
	case <-ctx.Done():
	case err = <-errCh:
		log.Printf("[ctxengine] HTTP server error: %v", err)
	}

	log.Println("[ctxengine] shutting down...")
	<-sched.Stop().Done()

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutCtx)

	for i := len(svc.closers) - 1; i >= 0; i-- {
		if cerr := svc.closers[i](); cerr != nil {
			log.Printf("[ctxengine] close: %v", cerr)
		}
	}
	log.Println("[ctxengine] shutdown complete.")
	return err
}
