// Package indicator maintains rolling per-instrument candle history and
// derived technical indicator values.
//
// Each instrument gets its own fixed-size ring buffer of candles plus a
// fresh set of registered indicator instances. EMA-family indicators update
// incrementally; windowed indicators (SMA, Bollinger) recompute over the
// current window only.
package indicator

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Samsonboadi/CryptoPro/internal/domain"
)

// Indicator is a single streaming indicator bound to one instrument.
type Indicator interface {
	// Name returns the snapshot key prefix (e.g. "rsi_14").
	Name() string

	// Update feeds a new candle and recalculates.
	Update(c domain.Candle)

	// MinCandles returns how many candles are needed before values exist.
	MinCandles() int

	// Ready reports whether enough history has accumulated.
	Ready() bool

	// Values writes the indicator's named outputs into dst.
	// Must not write anything before Ready.
	Values(dst map[string]float64)
}

// Builder constructs a fresh indicator instance for one instrument.
type Builder func() Indicator

// Snapshot is the latest per-instrument indicator view.
type Snapshot struct {
	Instrument string
	Timestamp  time.Time
	Values     map[string]float64
}

// Cache holds rolling windows and indicator state for all instruments.
// Ingest and reads are safe for concurrent use; the market data consumer
// is the only writer in practice.
type Cache struct {
	mu       sync.RWMutex
	lookback int
	builders []Builder
	books    map[string]*book
}

type book struct {
	candles []domain.Candle // ring buffer, fixed allocation
	head    int             // next write position
	count   int
	lastTs  time.Time
	set     []Indicator
}

// NewCache creates a cache with the given lookback window and registered
// indicator builders.
func NewCache(lookback int, builders ...Builder) *Cache {
	if lookback <= 0 {
		panic("indicator: lookback must be positive")
	}
	return &Cache{
		lookback: lookback,
		builders: builders,
		books:    make(map[string]*book),
	}
}

// Ingest appends a candle to the instrument's window, evicting the oldest
// entry once the window is full, and updates every registered indicator.
// Out-of-order candles (timestamp not after the last seen) are dropped:
// reconnection replays must not corrupt indicator state.
func (c *Cache) Ingest(candle domain.Candle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.books[candle.Instrument]
	if !ok {
		b = &book{candles: make([]domain.Candle, c.lookback)}
		for _, build := range c.builders {
			b.set = append(b.set, build())
		}
		c.books[candle.Instrument] = b
	}

	if !b.lastTs.IsZero() && !candle.Timestamp.After(b.lastTs) {
		slog.Debug("STALE_CANDLE_DROPPED",
			slog.String("instrument", candle.Instrument),
			slog.Time("ts", candle.Timestamp),
			slog.Time("last", b.lastTs))
		return
	}
	b.lastTs = candle.Timestamp

	b.candles[b.head] = candle
	b.head = (b.head + 1) % c.lookback
	if b.count < c.lookback {
		b.count++
	}

	for _, ind := range b.set {
		ind.Update(candle)
	}
}

// Snapshot returns the latest indicator values for the instrument. It fails
// with domain.ErrInsufficientData until every registered indicator has the
// history it needs; values are undefined, never zero, before that.
func (c *Cache) Snapshot(instrument string) (Snapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	b, ok := c.books[instrument]
	if !ok {
		return Snapshot{}, fmt.Errorf("%s: %w", instrument, domain.ErrInsufficientData)
	}
	for _, ind := range b.set {
		if !ind.Ready() {
			return Snapshot{}, fmt.Errorf("%s: %s needs %d candles, have %d: %w",
				instrument, ind.Name(), ind.MinCandles(), b.count, domain.ErrInsufficientData)
		}
	}

	snap := Snapshot{
		Instrument: instrument,
		Timestamp:  b.lastTs,
		Values:     make(map[string]float64, 4*len(b.set)),
	}
	for _, ind := range b.set {
		ind.Values(snap.Values)
	}
	return snap, nil
}

// Recent returns up to n most recent candles, oldest first. The slice is a
// copy and safe to retain.
func (c *Cache) Recent(instrument string, n int) []domain.Candle {
	c.mu.RLock()
	defer c.mu.RUnlock()

	b, ok := c.books[instrument]
	if !ok || b.count == 0 {
		return nil
	}
	if n <= 0 || n > b.count {
		n = b.count
	}

	out := make([]domain.Candle, n)
	// head points at the next write slot; head-1 is the newest candle.
	idx := b.head - n
	if idx < 0 {
		idx += c.lookback
	}
	for i := 0; i < n; i++ {
		out[i] = b.candles[(idx+i)%c.lookback]
	}
	return out
}

// Len returns the number of candles currently held for the instrument.
func (c *Cache) Len(instrument string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if b, ok := c.books[instrument]; ok {
		return b.count
	}
	return 0
}
