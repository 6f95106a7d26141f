package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"marketcontext/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// ReaderConfig configures the Redis reader.
type ReaderConfig struct {
	Addr     string
	Password string
	DB       int
}

// Reader serves cached snapshots and snapshot notifications.
type Reader struct {
	client *goredis.Client
}

// NewReader creates a new Redis Reader and pings the server.
func NewReader(cfg ReaderConfig) (*Reader, error) {
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

	log.Printf("[redis-reader] connected to %s", cfg.Addr)
	return &Reader{client: client}, nil
}

// LatestSnapshot returns the cached snapshot, or nil, nil when absent or expired.
func (r *Reader) LatestSnapshot(ctx context.Context, exchange, token string) (*model.EnrichedMarketData, error) {
	key := LatestKey(exchange, token)
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return decodeSnapshot(data)
}

// History returns up to n past snapshots, newest first.
func (r *Reader) History(ctx context.Context, exchange, token string, n int64) ([]*model.EnrichedMarketData, error) {
	key := HistoryKey(exchange, token)
	msgs, err := r.client.XRevRangeN(ctx, key, "+", "-", n).Result()
	if err != nil {
		return nil, fmt.Errorf("redis xrevrange %s: %w", key, err)
	}

	out := make([]*model.EnrichedMarketData, 0, len(msgs))
	for _, m := range msgs {
		raw, ok := m.Values["data"].(string)
		if !ok {
			continue
		}
		snap, err := decodeSnapshot([]byte(raw))
		if err != nil {
			log.Printf("[redis-reader] skipping %s entry %s: %v", key, m.ID, err)
			continue
		}
		out = append(out, snap)
	}
	return out, nil
}

// SubscribeSnapshots forwards every snapshot announcement on pub:ctx:* to
// out as raw JSON. Slow consumers drop messages. Blocks until ctx is cancelled.
func (r *Reader) SubscribeSnapshots(ctx context.Context, out chan<- Message) error {
	pubsub := r.client.PSubscribe(ctx, SnapshotPattern)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis psubscribe %s: %w", SnapshotPattern, err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			exchange, token, ok := InstrumentFromChannel(msg.Channel)
			if !ok {
				continue
			}
			select {
			case out <- Message{Exchange: exchange, Token: token, Payload: []byte(msg.Payload)}:
			default:
			}
		}
	}
}

// Message is one snapshot announcement.
type Message struct {
	Exchange string
	Token    string
	Payload  []byte
}

// Close closes the Redis client.
func (r *Reader) Close() error {
	return r.client.Close()
}

func decodeSnapshot(data []byte) (*model.EnrichedMarketData, error) {
	var snap model.EnrichedMarketData
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}
