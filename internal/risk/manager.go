// Package risk validates and sizes signals against account state and the
// configured limits.
package risk

import (
	"github.com/shopspring/decimal"

	"github.com/Samsonboadi/CryptoPro/internal/domain"
)

// Veto reasons surfaced through the event feed.
const (
	VetoMaxOpenPositions = "max_open_positions"
	VetoPyramiding       = "position_already_open"
	VetoDailyLossBreach  = "daily_loss_breached"
	VetoBelowMinTrade    = "below_min_trade_amount"
	VetoInsufficientFund = "insufficient_balance"
	VetoNoPosition       = "no_position_to_close"
	VetoHold             = "hold_signal"
)

// Limits are the configured risk boundaries. MaxDailyLoss, MinTradeAmount
// and MaxTradeAmount are quote-currency notionals; the percentages are in
// whole percent (2.0 = 2%).
type Limits struct {
	MaxOpenPositions int             `yaml:"max_open_positions"`
	MaxDailyLoss     decimal.Decimal `yaml:"max_daily_loss"`
	RiskPercentage   decimal.Decimal `yaml:"risk_percentage"`
	MinTradeAmount   decimal.Decimal `yaml:"min_trade_amount"`
	MaxTradeAmount   decimal.Decimal `yaml:"max_trade_amount"`
	StopLossPct      decimal.Decimal `yaml:"default_stop_loss"`
	TakeProfitPct    decimal.Decimal `yaml:"default_take_profit"`
}

// DefaultLimits mirrors the shipped configuration defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxOpenPositions: 5,
		MaxDailyLoss:     decimal.NewFromInt(500),
		RiskPercentage:   decimal.NewFromFloat(2.0),
		MinTradeAmount:   decimal.NewFromInt(10),
		MaxTradeAmount:   decimal.NewFromInt(1000),
		StopLossPct:      decimal.NewFromFloat(2.0),
		TakeProfitPct:    decimal.NewFromFloat(5.0),
	}
}

// Manager evaluates signals against account state. It never mutates the
// account - it returns a decision for the orchestrator to act on.
type Manager struct {
	limits Limits
}

// NewManager creates a risk manager with fixed limits.
func NewManager(limits Limits) *Manager {
	return &Manager{limits: limits}
}

// Limits returns the configured limits.
func (m *Manager) Limits() Limits { return m.limits }

var hundred = decimal.NewFromInt(100)

// Evaluate applies the risk checks in strict order; the first failing
// check vetoes. On approval the decision carries the clipped size and the
// stop-loss/take-profit exit prices.
func (m *Manager) Evaluate(sig domain.Signal, acct domain.AccountState) domain.RiskDecision {
	if sig.Type == domain.SignalHold {
		return veto(VetoHold)
	}

	// A SELL against an open position is an exit, not a new exposure: it
	// bypasses the entry checks and closes the full position size.
	if sig.Type == domain.SignalSell {
		pos, ok := acct.Positions[sig.Instrument]
		if !ok {
			return veto(VetoNoPosition)
		}
		return domain.RiskDecision{Approved: true, Exit: true, Size: pos.Size}
	}

	// (a) open-position budget
	if len(acct.Positions) >= m.limits.MaxOpenPositions {
		return veto(VetoMaxOpenPositions)
	}

	// (b) no pyramiding in v1
	if acct.HasPosition(sig.Instrument) {
		return veto(VetoPyramiding)
	}

	// (c) daily loss budget
	if acct.DailyRealized.Neg().GreaterThanOrEqual(m.limits.MaxDailyLoss) {
		return veto(VetoDailyLossBreach)
	}

	// (d) position sizing: risk% x equity / stop distance, then clip the
	// notional to [min_trade_amount, max_trade_amount].
	if !sig.Price.IsPositive() {
		return veto(VetoBelowMinTrade)
	}
	stopDistance := sig.Price.Mul(m.limits.StopLossPct).Div(hundred)
	riskAmount := acct.Equity.Mul(m.limits.RiskPercentage).Div(hundred)
	size := riskAmount.Div(stopDistance)

	notional := size.Mul(sig.Price)
	if notional.GreaterThan(m.limits.MaxTradeAmount) {
		notional = m.limits.MaxTradeAmount
		size = notional.Div(sig.Price)
	}
	if notional.LessThan(m.limits.MinTradeAmount) {
		return veto(VetoBelowMinTrade)
	}
	if notional.GreaterThan(acct.Balance) {
		return veto(VetoInsufficientFund)
	}

	stop, take := ExitPrices(domain.SideBuy, sig.Price, m.limits)
	return domain.RiskDecision{
		Approved:   true,
		Size:       size,
		StopLoss:   stop,
		TakeProfit: take,
	}
}

// ExitPrices derives the stop-loss and take-profit prices for an entry at
// the given price, direction-aware per side.
func ExitPrices(side domain.Side, entry decimal.Decimal, limits Limits) (stop, take decimal.Decimal) {
	sl := entry.Mul(limits.StopLossPct).Div(hundred)
	tp := entry.Mul(limits.TakeProfitPct).Div(hundred)
	if side == domain.SideBuy {
		return entry.Sub(sl), entry.Add(tp)
	}
	return entry.Add(sl), entry.Sub(tp)
}

func veto(reason string) domain.RiskDecision {
	return domain.RiskDecision{Approved: false, VetoReason: reason}
}
