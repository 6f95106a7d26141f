package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"marketcontext/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// snapshotsKept is how many snapshots are retained per instrument.
const snapshotsKept = 10

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/candles.db"
}

// Writer is the single SQLite writer for candles, instruments and snapshots.
type Writer struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", dsn(cfg.DBPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Writer{db: db}, nil
}

func dsn(path string) string {
	return path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles_1d (
			token      TEXT    NOT NULL,
			exchange   TEXT    NOT NULL,
			ts         INTEGER NOT NULL,
			open       INTEGER NOT NULL,
			high       INTEGER NOT NULL,
			low        INTEGER NOT NULL,
			close      INTEGER NOT NULL,
			volume     INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (exchange, token, ts)
		);

		CREATE TABLE IF NOT EXISTS instruments (
			token          TEXT NOT NULL,
			exchange       TEXT NOT NULL,
			trading_symbol TEXT NOT NULL,
			name           TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (exchange, token)
		);

		CREATE TABLE IF NOT EXISTS snapshots (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			exchange   TEXT    NOT NULL,
			token      TEXT    NOT NULL,
			as_of      INTEGER NOT NULL,
			data       TEXT    NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_snapshots_inst ON snapshots (exchange, token, as_of);
	`)
	return err
}

// UpsertCandles inserts or replaces daily candles in a single transaction.
// Prices are stored as integer paise.
func (w *Writer) UpsertCandles(ctx context.Context, exchange, token string, candles []model.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO candles_1d (token, exchange, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, c := range candles {
		_, err := stmt.ExecContext(ctx, token, exchange, c.TS.Unix(),
			model.ToPaise(c.Open), model.ToPaise(c.High), model.ToPaise(c.Low), model.ToPaise(c.Close), c.Volume)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite upsert candle %s: %w", c.TS.Format("2006-01-02"), err)
		}
	}

	return tx.Commit()
}

// UpsertInstrument records identity fields for an instrument.
func (w *Writer) UpsertInstrument(ctx context.Context, inst model.Instrument) error {
	_, err := w.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO instruments (token, exchange, trading_symbol, name)
		VALUES (?, ?, ?, ?)
	`, inst.Token, inst.Exchange, inst.TradingSymbol, inst.Name)
	if err != nil {
		return fmt.Errorf("sqlite upsert instrument %s: %w", inst.Key(), err)
	}
	return nil
}

// LastCandleTime returns the newest stored candle time for an instrument.
// ok is false if no candles exist.
func (w *Writer) LastCandleTime(ctx context.Context, exchange, token string) (ts time.Time, ok bool, err error) {
	var v sql.NullInt64
	err = w.db.QueryRowContext(ctx,
		`SELECT MAX(ts) FROM candles_1d WHERE exchange = ? AND token = ?`,
		exchange, token,
	).Scan(&v)
	if err != nil || !v.Valid {
		return time.Time{}, false, err
	}
	return time.Unix(v.Int64, 0).UTC(), true, nil
}

// SaveSnapshot stores a computed snapshot and prunes older ones for the
// same instrument.
func (w *Writer) SaveSnapshot(ctx context.Context, snap *model.EnrichedMarketData) error {
	data, err := snap.JSON()
	if err != nil {
		return fmt.Errorf("sqlite insert snapshot: %w", err)
	}
	_, err = w.db.ExecContext(ctx,
		`INSERT INTO snapshots (exchange, token, as_of, data, created_at) VALUES (?, ?, ?, ?, ?)`,
		snap.Exchange, snap.InstrumentToken, snap.AsOf.Time.Unix(), string(data), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("sqlite insert snapshot: %w", err)
	}

	_, err = w.db.ExecContext(ctx, `
		DELETE FROM snapshots
		WHERE exchange = ? AND token = ? AND id NOT IN (
			SELECT id FROM snapshots WHERE exchange = ? AND token = ?
			ORDER BY as_of DESC, id DESC LIMIT ?
		)`,
		snap.Exchange, snap.InstrumentToken, snap.Exchange, snap.InstrumentToken, snapshotsKept)
	if err != nil {
		log.Printf("[sqlite] prune snapshots warning: %v", err)
	}

	return nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
