// Package storage persists the trade event feed and candle history in
// SQLite for audit and backtest replay.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/shopspring/decimal"

	"github.com/Samsonboadi/CryptoPro/internal/domain"
	"github.com/Samsonboadi/CryptoPro/internal/event"
)

// Journal is the append-only SQLite audit log.
type Journal struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewJournal opens (or creates) the journal database with WAL mode enabled.
func NewJournal(path string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=-2000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("set pragma %s: %w", pragma, err)
		}
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS trade_events (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			ts INTEGER NOT NULL,
			instrument TEXT NOT NULL DEFAULT '',
			reason TEXT NOT NULL DEFAULT '',
			payload BLOB
		);`,
		`CREATE TABLE IF NOT EXISTS candles (
			instrument TEXT NOT NULL,
			ts INTEGER NOT NULL,
			open TEXT NOT NULL,
			high TEXT NOT NULL,
			low TEXT NOT NULL,
			close TEXT NOT NULL,
			volume TEXT NOT NULL,
			PRIMARY KEY (instrument, ts)
		);`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}

	return &Journal{db: db, logger: logger}, nil
}

// Record stores one feed event. The event id is the primary key, so the
// at-least-once feed deduplicates here.
func (j *Journal) Record(ctx context.Context, ev event.Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = j.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO trade_events (id, type, ts, instrument, reason, payload) VALUES (?, ?, ?, ?, ?, ?)",
		ev.ID, string(ev.Type), ev.Timestamp.UnixMicro(), ev.Instrument, ev.Reason, payload,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// RecordCandle stores one candle for replay. Duplicate (instrument, ts)
// pairs are ignored; candles are immutable once recorded.
func (j *Journal) RecordCandle(ctx context.Context, c domain.Candle) error {
	_, err := j.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO candles (instrument, ts, open, high, low, close, volume) VALUES (?, ?, ?, ?, ?, ?, ?)",
		c.Instrument, c.Timestamp.Unix(),
		c.Open.String(), c.High.String(), c.Low.String(), c.Close.String(), c.Volume.String(),
	)
	if err != nil {
		return fmt.Errorf("insert candle: %w", err)
	}
	return nil
}

// Run consumes the event feed until the channel closes or ctx ends. Write
// failures are logged, not fatal: the journal must never stall trading.
func (j *Journal) Run(ctx context.Context, events <-chan event.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := j.Record(ctx, ev); err != nil {
				j.logger.Error("JOURNAL_WRITE_FAILED",
					slog.String("event_id", ev.ID),
					slog.Any("err", err))
			}
		}
	}
}

// LoadCandles returns the recorded candles for an instrument in [from, to],
// oldest first.
func (j *Journal) LoadCandles(ctx context.Context, instrument string, from, to time.Time) ([]domain.Candle, error) {
	rows, err := j.db.QueryContext(ctx,
		"SELECT ts, open, high, low, close, volume FROM candles WHERE instrument = ? AND ts BETWEEN ? AND ? ORDER BY ts ASC",
		instrument, from.Unix(), to.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("query candles: %w", err)
	}
	defer rows.Close()

	var out []domain.Candle
	for rows.Next() {
		var (
			ts                        int64
			open, high, low, cls, vol string
		)
		if err := rows.Scan(&ts, &open, &high, &low, &cls, &vol); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		c := domain.Candle{Instrument: instrument, Timestamp: time.Unix(ts, 0).UTC()}
		if c.Open, err = decimal.NewFromString(open); err != nil {
			return nil, fmt.Errorf("bad open %q: %w", open, err)
		}
		if c.High, err = decimal.NewFromString(high); err != nil {
			return nil, fmt.Errorf("bad high %q: %w", high, err)
		}
		if c.Low, err = decimal.NewFromString(low); err != nil {
			return nil, fmt.Errorf("bad low %q: %w", low, err)
		}
		if c.Close, err = decimal.NewFromString(cls); err != nil {
			return nil, fmt.Errorf("bad close %q: %w", cls, err)
		}
		if c.Volume, err = decimal.NewFromString(vol); err != nil {
			return nil, fmt.Errorf("bad volume %q: %w", vol, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CountEvents returns the number of journaled events of a type, or of all
// types when typ is empty.
func (j *Journal) CountEvents(ctx context.Context, typ event.Type) (int, error) {
	var (
		n   int
		err error
	)
	if typ == "" {
		err = j.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM trade_events").Scan(&n)
	} else {
		err = j.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM trade_events WHERE type = ?", string(typ)).Scan(&n)
	}
	return n, err
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}
