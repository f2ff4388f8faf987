// Package ledger is the single writer for orders, positions and balances.
// Everything else reads consistent snapshots; fills from the exchange are
// the only thing that mutates money.
package ledger

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Samsonboadi/CryptoPro/internal/domain"
	"github.com/Samsonboadi/CryptoPro/internal/event"
)

// StrategyStats accumulates closed-trade performance per strategy.
type StrategyStats struct {
	StrategyID  string          `json:"strategy_id"`
	Trades      int             `json:"trades"`
	Wins        int             `json:"wins"`
	Losses      int             `json:"losses"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
}

// ClosedTrade is the payload published with a POSITION_CLOSED event.
type ClosedTrade struct {
	Position    domain.Position   `json:"position"`
	ExitPrice   decimal.Decimal   `json:"exit_price"`
	RealizedPnL decimal.Decimal   `json:"realized_pnl"`
	Reason      domain.ExitReason `json:"reason"`
	ClosedAt    time.Time         `json:"closed_at"`
}

// Ledger owns account state. All mutation goes through its mutex; readers
// get defensive copies, never live references.
type Ledger struct {
	mu            sync.Mutex
	balance       decimal.Decimal
	dailyRealized decimal.Decimal
	orders        map[string]*domain.Order
	exits         map[string]domain.RiskDecision
	positions     map[string]*domain.Position
	marks         map[string]decimal.Decimal
	stats         map[string]*StrategyStats
	feed          *event.Feed
	logger        *slog.Logger
}

// New creates a ledger with a starting quote-currency balance. feed may be
// nil when no observers care.
func New(balance decimal.Decimal, feed *event.Feed, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		balance:   balance,
		orders:    make(map[string]*domain.Order),
		exits:     make(map[string]domain.RiskDecision),
		positions: make(map[string]*domain.Position),
		marks:     make(map[string]decimal.Decimal),
		stats:     make(map[string]*StrategyStats),
		feed:      feed,
		logger:    logger,
	}
}

// Submit records a new pending order. The decision carries the exit prices
// attached at entry; they are applied to the position once the order fills.
func (l *Ledger) Submit(order domain.Order, dec domain.RiskDecision) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.orders[order.ID]; ok {
		return fmt.Errorf("order %s already tracked: %w", order.ID, domain.ErrFatalInternal)
	}
	order.Status = domain.OrderPending
	o := order
	l.orders[o.ID] = &o
	// Stop/take-profit ride along on the originating decision; kept until
	// the entry order fills and the position is created.
	l.exits[o.ID] = dec
	return nil
}

// MarkRejected moves an order to REJECTED after the dispatcher gave up.
func (l *Ledger) MarkRejected(orderID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if o, ok := l.orders[orderID]; ok && o.IsOpen() {
		o.Status = domain.OrderRejected
		delete(l.exits, orderID)
	}
}

// OnFill applies one execution report. Replayed fills for an already
// terminal order are a no-op; the exchange stream is at-least-once.
func (l *Ledger) OnFill(f domain.Fill) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	o, ok := l.orders[f.OrderID]
	if !ok {
		return fmt.Errorf("fill for unknown order %s: %w", f.OrderID, domain.ErrFatalInternal)
	}
	if o.Terminal() {
		l.logger.Debug("DUPLICATE_FILL_IGNORED", slog.String("order_id", f.OrderID))
		return nil
	}

	remaining := o.Size.Sub(o.FilledSize)
	if f.Size.GreaterThan(remaining) {
		return fmt.Errorf("overfill on order %s: filled %s of %s remaining: %w",
			o.ID, f.Size, remaining, domain.ErrFatalInternal)
	}

	o.FilledSize = o.FilledSize.Add(f.Size)
	if o.FilledSize.Equal(o.Size) {
		o.Status = domain.OrderFilled
	} else {
		o.Status = domain.OrderPartiallyFilled
	}

	var err error
	if o.Exit == domain.ExitNone {
		err = l.applyEntryFill(o, f)
	} else {
		err = l.applyExitFill(o, f)
	}
	if err != nil {
		return err
	}

	l.logger.Info("FILL_APPLIED",
		slog.String("order_id", o.ID),
		slog.String("instrument", o.Instrument),
		slog.String("price", f.Price.String()),
		slog.String("size", f.Size.String()),
		slog.String("status", string(o.Status)))

	if o.Status == domain.OrderFilled {
		delete(l.exits, o.ID)
		l.publish(event.New(event.OrderFilled, o.Instrument, "", *o))
	}
	return nil
}

func (l *Ledger) applyEntryFill(o *domain.Order, f domain.Fill) error {
	cost := f.Price.Mul(f.Size)
	if cost.GreaterThan(l.balance) {
		return fmt.Errorf("entry fill exceeds balance on %s: %w", o.Instrument, domain.ErrFatalInternal)
	}
	l.balance = l.balance.Sub(cost)

	dec := l.exits[o.ID]
	pos, ok := l.positions[o.Instrument]
	if !ok {
		l.positions[o.Instrument] = &domain.Position{
			Instrument: o.Instrument,
			Side:       o.Side,
			EntryPrice: f.Price,
			Size:       f.Size,
			StopLoss:   dec.StopLoss,
			TakeProfit: dec.TakeProfit,
			OpenedAt:   f.Timestamp,
			StrategyID: o.SignalID,
		}
		return nil
	}

	// Partial fills of the same entry order grow the position at the
	// size-weighted average price.
	total := pos.Size.Add(f.Size)
	pos.EntryPrice = pos.EntryPrice.Mul(pos.Size).Add(f.Price.Mul(f.Size)).Div(total)
	pos.Size = total
	return nil
}

func (l *Ledger) applyExitFill(o *domain.Order, f domain.Fill) error {
	pos, ok := l.positions[o.Instrument]
	if !ok {
		return fmt.Errorf("exit fill without position on %s: %w", o.Instrument, domain.ErrFatalInternal)
	}
	if f.Size.GreaterThan(pos.Size) {
		return fmt.Errorf("exit fill exceeds position on %s: %w", o.Instrument, domain.ErrFatalInternal)
	}

	l.balance = l.balance.Add(f.Price.Mul(f.Size))
	pnl := f.Price.Sub(pos.EntryPrice).Mul(f.Size)
	if pos.Side == domain.SideSell {
		pnl = pnl.Neg()
	}
	l.dailyRealized = l.dailyRealized.Add(pnl)

	pos.Size = pos.Size.Sub(f.Size)
	if pos.Size.IsPositive() {
		return nil
	}

	closed := *pos
	delete(l.positions, o.Instrument)
	l.recordClose(closed.StrategyID, pnl)

	l.logger.Info("POSITION_CLOSED",
		slog.String("instrument", closed.Instrument),
		slog.String("exit_price", f.Price.String()),
		slog.String("pnl", pnl.String()),
		slog.String("reason", string(o.Exit)))

	l.publish(event.New(event.PositionClosed, closed.Instrument, string(o.Exit), ClosedTrade{
		Position:    closed,
		ExitPrice:   f.Price,
		RealizedPnL: pnl,
		Reason:      o.Exit,
		ClosedAt:    f.Timestamp,
	}))
	return nil
}

func (l *Ledger) recordClose(strategyID string, pnl decimal.Decimal) {
	st, ok := l.stats[strategyID]
	if !ok {
		st = &StrategyStats{StrategyID: strategyID}
		l.stats[strategyID] = st
	}
	st.Trades++
	if pnl.IsPositive() {
		st.Wins++
	} else {
		st.Losses++
	}
	st.RealizedPnL = st.RealizedPnL.Add(pnl)
}

// MarkPrice records the latest price for an instrument and refreshes the
// open position's unrealized PnL.
func (l *Ledger) MarkPrice(instrument string, price decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.marks[instrument] = price
	pos, ok := l.positions[instrument]
	if !ok {
		return
	}
	pnl := price.Sub(pos.EntryPrice).Mul(pos.Size)
	if pos.Side == domain.SideSell {
		pnl = pnl.Neg()
	}
	pos.UnrealizedPnL = pnl
}

// Snapshot returns a consistent copy of account state for one risk
// evaluation.
func (l *Ledger) Snapshot() domain.AccountState {
	l.mu.Lock()
	defer l.mu.Unlock()

	acct := domain.AccountState{
		Balance:       l.balance,
		Equity:        l.balance,
		Positions:     make(map[string]domain.Position, len(l.positions)),
		DailyRealized: l.dailyRealized,
	}
	for instrument, pos := range l.positions {
		acct.Positions[instrument] = *pos
		mark, ok := l.marks[instrument]
		if !ok {
			mark = pos.EntryPrice
		}
		acct.Equity = acct.Equity.Add(pos.Size.Mul(mark))
	}
	// Open entry orders are committed exposure: without this, a cycle
	// could approve a second entry for the same instrument before the
	// first fill lands.
	for _, o := range l.orders {
		if !o.IsOpen() || o.Exit != domain.ExitNone {
			continue
		}
		if _, ok := acct.Positions[o.Instrument]; ok {
			continue
		}
		acct.Positions[o.Instrument] = domain.Position{
			Instrument: o.Instrument,
			Side:       o.Side,
			EntryPrice: o.Price,
			Size:       o.Size.Sub(o.FilledSize),
			StrategyID: o.SignalID,
			OpenedAt:   o.CreatedAt,
		}
	}
	return acct
}

// ExitPending reports whether an open exit order exists for the instrument.
// The exit watcher consults this before closing a position, so a fill still
// in flight cannot trigger a duplicate exit order.
func (l *Ledger) ExitPending(instrument string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, o := range l.orders {
		if o.Instrument == instrument && o.IsOpen() && o.Exit != domain.ExitNone {
			return true
		}
	}
	return false
}

// Order returns a copy of the tracked order, if any.
func (l *Ledger) Order(id string) (domain.Order, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.orders[id]
	if !ok {
		return domain.Order{}, false
	}
	return *o, true
}

// Stats returns a copy of per-strategy performance counters.
func (l *Ledger) Stats() map[string]StrategyStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]StrategyStats, len(l.stats))
	for id, st := range l.stats {
		out[id] = *st
	}
	return out
}

// ResetDaily zeroes the daily realized PnL counter at UTC rollover (or by
// operator request after a halt).
func (l *Ledger) ResetDaily() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.Info("DAILY_PNL_RESET", slog.String("was", l.dailyRealized.String()))
	l.dailyRealized = decimal.Zero
}

func (l *Ledger) publish(ev event.Event) {
	if l.feed != nil {
		l.feed.Publish(ev)
	}
}
