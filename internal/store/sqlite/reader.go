package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"marketcontext/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access to candles, instruments and snapshots.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// ReadCandles reads daily candles for exchange:token with ts >= from,
// ordered oldest first.
func (r *Reader) ReadCandles(ctx context.Context, exchange, token string, from time.Time) ([]model.Candle, error) {
	var fromUnix int64
	if !from.IsZero() {
		fromUnix = from.Unix()
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume
		FROM candles_1d
		WHERE exchange = ? AND token = ? AND ts >= ?
		ORDER BY ts ASC
	`, exchange, token, fromUnix)
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles_1d: %w", err)
	}
	defer rows.Close()

	var candles []model.Candle
	for rows.Next() {
		var (
			tsUnix                 int64
			open, high, low, close int64
			c                      model.Candle
		)
		if err := rows.Scan(&tsUnix, &open, &high, &low, &close, &c.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan candles_1d: %w", err)
		}
		c.TS = time.Unix(tsUnix, 0).UTC()
		c.Open = model.FromPaise(open)
		c.High = model.FromPaise(high)
		c.Low = model.FromPaise(low)
		c.Close = model.FromPaise(close)
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// Instrument looks up an instrument. Returns nil, nil if unknown.
func (r *Reader) Instrument(ctx context.Context, exchange, token string) (*model.Instrument, error) {
	inst := model.Instrument{Exchange: exchange, Token: token}
	err := r.db.QueryRowContext(ctx,
		`SELECT trading_symbol, name FROM instruments WHERE exchange = ? AND token = ?`,
		exchange, token,
	).Scan(&inst.TradingSymbol, &inst.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite read instrument: %w", err)
	}
	return &inst, nil
}

// Instruments lists every registered instrument ordered by exchange, token.
func (r *Reader) Instruments(ctx context.Context) ([]model.Instrument, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT token, exchange, trading_symbol, name FROM instruments ORDER BY exchange, token`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query instruments: %w", err)
	}
	defer rows.Close()

	var out []model.Instrument
	for rows.Next() {
		var i model.Instrument
		if err := rows.Scan(&i.Token, &i.Exchange, &i.TradingSymbol, &i.Name); err != nil {
			return nil, fmt.Errorf("sqlite scan instruments: %w", err)
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

// LatestSnapshot loads the most recent stored snapshot for an instrument.
func (r *Reader) LatestSnapshot(ctx context.Context, exchange, token string) (*model.EnrichedMarketData, error) {
	var data string
	err := r.db.QueryRowContext(ctx, `
		SELECT data FROM snapshots
		WHERE exchange = ? AND token = ?
		ORDER BY as_of DESC, id DESC
		LIMIT 1
	`, exchange, token).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // no snapshot
		}
		return nil, fmt.Errorf("sqlite read snapshot: %w", err)
	}

	var snap model.EnrichedMarketData
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
