package domain

import "errors"

// Error taxonomy for the decision/execution pipeline.
//
// Strategy-level and risk-level failures never crash the orchestrator loop;
// they degrade to HOLD or a veto for that instrument only. Ledger invariant
// violations are fatal for the whole bot.
var (
	// ErrInsufficientData means an indicator window is not warm yet.
	// Treated as HOLD, not as an error.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrRateLimited and ErrNetwork are transient exchange failures,
	// retried with capped exponential backoff.
	ErrRateLimited = errors.New("exchange rate limited")
	ErrNetwork     = errors.New("exchange network error")

	// ErrRejected is an exchange-reported rejection. Terminal, never retried.
	ErrRejected = errors.New("exchange rejected order")

	// ErrDailyLossBreach forces the orchestrator into HALTED until an
	// operator resets the daily counter.
	ErrDailyLossBreach = errors.New("daily loss limit breached")

	// ErrFatalInternal marks ledger corruption. The bot halts because
	// downstream state can no longer be trusted.
	ErrFatalInternal = errors.New("fatal internal state error")
)

// Transient reports whether an exchange error is worth retrying.
func Transient(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrNetwork)
}
