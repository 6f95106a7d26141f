package model

import (
	"context"
	"time"
)

// ── Storage Port Interfaces ──
// These interfaces decouple the service from concrete storage
// implementations (SQLite, Redis).

// CandleReader reads daily candles and instrument metadata.
type CandleReader interface {
	// ReadCandles returns candles for exchange:token with TS >= from,
	// oldest first. A zero from reads everything.
	ReadCandles(ctx context.Context, exchange, token string, from time.Time) ([]Candle, error)

	// Instrument looks up identity fields. Returns nil, nil if unknown.
	Instrument(ctx context.Context, exchange, token string) (*Instrument, error)
}

// CandleWriter upserts daily candles and instruments.
type CandleWriter interface {
	UpsertCandles(ctx context.Context, exchange, token string, candles []Candle) error
	UpsertInstrument(ctx context.Context, inst Instrument) error
}

// SnapshotWriter persists computed snapshots.
type SnapshotWriter interface {
	SaveSnapshot(ctx context.Context, snap *EnrichedMarketData) error
}

// SnapshotReader returns the most recent stored snapshot, or nil, nil.
type SnapshotReader interface {
	LatestSnapshot(ctx context.Context, exchange, token string) (*EnrichedMarketData, error)
}

// SnapshotPublisher fans a fresh snapshot out to subscribers (cache, pub/sub).
type SnapshotPublisher interface {
	PublishSnapshot(ctx context.Context, snap *EnrichedMarketData) error
}

// CandleFetcher pulls daily candles from an upstream broker.
type CandleFetcher interface {
	FetchDaily(ctx context.Context, inst Instrument, from, to time.Time) ([]Candle, error)
}
