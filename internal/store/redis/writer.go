package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	"marketcontext/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	defaultLatestTTL = 24 * time.Hour

	// About two years of daily snapshots per instrument.
	historyMaxLen = 500
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
	TTL      time.Duration // latest-snapshot expiry; zero means 24h
}

// Writer caches and announces snapshots in Redis.
type Writer struct {
	client *goredis.Client
	ttl    time.Duration
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultLatestTTL
	}
	log.Printf("[redis] connected to %s (snapshot ttl=%s)", cfg.Addr, ttl)
	return &Writer{client: client, ttl: ttl}, nil
}

// PublishSnapshot writes one snapshot in a single pipeline:
// SET latest with TTL, XADD to the history stream, PUBLISH to subscribers.
func (w *Writer) PublishSnapshot(ctx context.Context, snap *model.EnrichedMarketData) error {
	b, err := snap.JSON()
	if err != nil {
		return fmt.Errorf("redis publish snapshot: %w", err)
	}
	data := string(b)

	pipe := w.client.Pipeline()
	pipe.Set(ctx, LatestKey(snap.Exchange, snap.InstrumentToken), data, w.ttl)
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: HistoryKey(snap.Exchange, snap.InstrumentToken),
		MaxLen: historyMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"as_of": snap.AsOf.Time.Format("2006-01-02"),
			"data":  data,
		},
	})
	pipe.Publish(ctx, ChannelKey(snap.Exchange, snap.InstrumentToken), data)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish snapshot %s: %w", snap.Key(), err)
	}
	return nil
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
