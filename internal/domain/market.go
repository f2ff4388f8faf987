package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle is one OHLCV bar for an instrument. Immutable once recorded.
type Candle struct {
	Instrument string          `json:"instrument"`
	Timestamp  time.Time       `json:"timestamp"`
	Open       decimal.Decimal `json:"open"`
	High       decimal.Decimal `json:"high"`
	Low        decimal.Decimal `json:"low"`
	Close      decimal.Decimal `json:"close"`
	Volume     decimal.Decimal `json:"volume"`
}

// SignalType is a strategy's directional recommendation.
type SignalType string

const (
	SignalBuy  SignalType = "BUY"
	SignalSell SignalType = "SELL"
	SignalHold SignalType = "HOLD"
)

// Signal is the output of one strategy evaluation for one instrument.
// Read-only once emitted; it is not retained beyond the cycle unless it
// results in an order.
type Signal struct {
	Instrument string     `json:"instrument"`
	Type       SignalType `json:"type"`
	// Confidence is in [0,1]. Signals below the configured minimum are
	// discarded before they reach the risk manager.
	Confidence float64         `json:"confidence"`
	Price      decimal.Decimal `json:"price"`
	Reason     string          `json:"reason"`
	StrategyID string          `json:"strategy_id"`
	Timestamp  time.Time       `json:"timestamp"`
}

// RiskDecision is the outcome of applying position sizing and safety
// limits to a Signal.
type RiskDecision struct {
	Approved   bool            `json:"approved"`
	Exit       bool            `json:"exit"` // closes an existing position instead of opening one
	Size       decimal.Decimal `json:"size"`
	StopLoss   decimal.Decimal `json:"stop_loss"`
	TakeProfit decimal.Decimal `json:"take_profit"`
	VetoReason string          `json:"veto_reason,omitempty"`
}
