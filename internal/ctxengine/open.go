package ctxengine

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"marketcontext/config"
	"marketcontext/internal/gateway"
	"marketcontext/internal/marketdata/historical"
	"marketcontext/internal/metrics"
	"marketcontext/internal/notification"
	redisstore "marketcontext/internal/store/redis"
	sqlitestore "marketcontext/internal/store/sqlite"
	"marketcontext/pkg/smartconnect"
)

// Open connects SQLite, Redis and the broker per cfg and returns a ready
// Service. SQLite is mandatory; without Redis snapshots are only stored
// and pushed to local WebSocket clients; without broker credentials the
// refresh only recomputes from stored candles.
func Open(ctx context.Context, cfg *config.Config, params *config.Params) (*Service, error) {
	prom := metrics.NewMetrics(nil)
	health := metrics.NewHealthStatus()
	hub := gateway.NewHub()
	hub.OnClients = func(n int) { prom.WSClients.Set(float64(n)) }

	deps := Deps{Metrics: prom, Health: health, Hub: hub}
	var closers []func() error

	// ---- SQLite ----
	if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
		os.MkdirAll(dir, 0o755)
	}
	sqlWriter, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		return nil, err
	}
	closers = append(closers, sqlWriter.Close)
	sqlReader, err := sqlitestore.NewReader(cfg.SQLitePath)
	if err != nil {
		sqlWriter.Close()
		return nil, err
	}
	closers = append(closers, sqlReader.Close)
	deps.Candles, deps.Store, deps.Snapshots = sqlReader, sqlWriter, sqlWriter
	health.SetSQLiteOK(true)

	// ---- Redis ----
	redisWriter, err := redisstore.New(redisstore.WriterConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		TTL:      cfg.SnapshotTTL,
	})
	if err != nil {
		log.Printf("[ctxengine] WARNING: redis unavailable: %v (continuing without cache/pub-sub)", err)
	} else {
		closers = append(closers, redisWriter.Close)
		health.SetRedisConnected(true)

		cb := redisstore.NewCircuitBreaker(5, 10*time.Second)
		cb.OnStateChange = func(from, to redisstore.State) {
			prom.RedisCircuitBreakerState.Set(float64(to))
			if to == redisstore.StateOpen {
				prom.RedisCircuitBreakerTrips.Inc()
			}
			log.Printf("[ctxengine] redis circuit %s -> %s", from, to)
		}
		bw := redisstore.NewBufferedWriter(ctx, redisWriter, cb, 0)
		bw.OnBuffer = prom.RedisBufferedWrites.Inc
		deps.Publisher = bw

		redisReader, err := redisstore.NewReader(redisstore.ReaderConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			log.Printf("[ctxengine] WARNING: redis reader: %v", err)
		} else {
			closers = append(closers, redisReader.Close)
			deps.Cache = redisReader

			msgs := make(chan redisstore.Message, 256)
			go func() {
				if err := redisReader.SubscribeSnapshots(ctx, msgs); err != nil {
					log.Printf("[ctxengine] snapshot subscription: %v", err)
				}
			}()
			go hub.Run(ctx, msgs)
		}
	}

	var rdb *goredis.Client
	if redisWriter != nil {
		rdb = redisWriter.Client()
	}
	health.StartLivenessChecker(ctx, rdb, sqlWriter.DB(), 15*time.Second)

	// ---- Alerts ----
	notifiers := notification.Multi{notification.NewLogNotifier()}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	deps.Notifier = notifiers

	// ---- Broker ----
	if err := cfg.RequireBroker(); err != nil {
		log.Printf("[ctxengine] broker refresh disabled: %v", err)
	} else {
		sc, err := historical.Login(ctx, historical.Credentials{
			APIKey:     cfg.AngelAPIKey,
			ClientCode: cfg.AngelClientCode,
			Password:   cfg.AngelPassword,
			TOTPSecret: cfg.AngelTOTPSecret,
		}, smartconnect.Config{})
		if err != nil {
			log.Printf("[ctxengine] WARNING: broker login failed: %v (refresh will recompute only)", err)
		} else {
			closers = append(closers, func() error {
				logoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return sc.TerminateSession(logoutCtx)
			})
			f := historical.NewFetcher(sc)
			f.OnFetch = func(took time.Duration, n int, err error) {
				prom.FetchDur.Observe(took.Seconds())
				prom.CandlesFetched.Add(float64(n))
				if err != nil {
					prom.FetchErrors.Inc()
				}
			}
			deps.Fetcher = f
		}
	}

	svc, err := New(NewConfig(cfg, params), deps)
	if err != nil {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
		return nil, fmt.Errorf("ctxengine: %w", err)
	}
	svc.closers = closers
	return svc, nil
}
