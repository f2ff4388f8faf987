package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order or position.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType distinguishes market from limit orders.
type OrderType string

const (
	OrderMarket OrderType = "MARKET"
	OrderLimit  OrderType = "LIMIT"
)

// OrderStatus is the lifecycle state of an order. FILLED, CANCELED and
// REJECTED are terminal.
type OrderStatus string

const (
	OrderPending         OrderStatus = "PENDING"
	OrderPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderFilled          OrderStatus = "FILLED"
	OrderCanceled        OrderStatus = "CANCELED"
	OrderRejected        OrderStatus = "REJECTED"
)

// ExitReason marks an order that closes a position rather than opening one.
type ExitReason string

const (
	ExitNone       ExitReason = ""
	ExitSignal     ExitReason = "signal"
	ExitStopLoss   ExitReason = "stop_loss"
	ExitTakeProfit ExitReason = "take_profit"
)

// Order is one order request as tracked by the ledger. Status is mutated
// only via exchange fill/cancel acknowledgments.
type Order struct {
	ID         string          `json:"id"`
	SignalID   string          `json:"signal_id"` // originating strategy id, or exit rule
	Instrument string          `json:"instrument"`
	Side       Side            `json:"side"`
	Type       OrderType       `json:"order_type"`
	Price      decimal.Decimal `json:"price"`
	Size       decimal.Decimal `json:"size"`
	FilledSize decimal.Decimal `json:"filled_size"`
	Status     OrderStatus     `json:"status"`
	Exit       ExitReason      `json:"exit,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// IsOpen reports whether the order can still receive fills.
func (o *Order) IsOpen() bool {
	return o.Status == OrderPending || o.Status == OrderPartiallyFilled
}

// Terminal reports whether the order reached a terminal state.
func (o *Order) Terminal() bool {
	return o.Status == OrderFilled || o.Status == OrderCanceled || o.Status == OrderRejected
}

// Fill is one execution report from the exchange.
type Fill struct {
	OrderID   string          `json:"order_id"`
	Price     decimal.Decimal `json:"price"`
	Size      decimal.Decimal `json:"size"`
	Timestamp time.Time       `json:"timestamp"`
}

// Position is an open market exposure, tracked until fully closed.
type Position struct {
	Instrument    string          `json:"instrument"`
	Side          Side            `json:"side"`
	EntryPrice    decimal.Decimal `json:"entry_price"`
	Size          decimal.Decimal `json:"size"`
	StopLoss      decimal.Decimal `json:"stop_loss"`
	TakeProfit    decimal.Decimal `json:"take_profit"`
	OpenedAt      time.Time       `json:"opened_at"`
	StrategyID    string          `json:"strategy_id"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
}

// AccountState is a consistent snapshot of account exposure, taken by the
// ledger for one risk evaluation. The ledger is the only writer.
type AccountState struct {
	Balance       decimal.Decimal     `json:"balance"`
	Equity        decimal.Decimal     `json:"equity"`
	Positions     map[string]Position `json:"positions"`
	DailyRealized decimal.Decimal     `json:"daily_realized"`
}

// HasPosition reports whether the instrument already has open exposure.
func (a AccountState) HasPosition(instrument string) bool {
	_, ok := a.Positions[instrument]
	return ok
}
