// Package dispatch owns the order path to the venue: pacing, retries,
// circuit breaking, and protective exits.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/Samsonboadi/CryptoPro/internal/domain"
	"github.com/Samsonboadi/CryptoPro/internal/event"
	"github.com/Samsonboadi/CryptoPro/internal/exchange"
	"github.com/Samsonboadi/CryptoPro/internal/infra"
	"github.com/Samsonboadi/CryptoPro/internal/ledger"
)

// Options tune the submission path.
type Options struct {
	MaxRetries int           // transient retries before giving up
	RetryBase  time.Duration // backoff base between retries
	RetryMax   time.Duration // backoff cap
	SubmitRate rate.Limit    // orders per second to the venue
	Burst      int

	BreakerFailures  int           // consecutive failures before the breaker opens
	BreakerSuccesses int           // half-open probes required to close again
	BreakerCooldown  time.Duration // open time before the first probe
}

// DefaultOptions matches the venue's documented order-rate limits.
func DefaultOptions() Options {
	return Options{
		MaxRetries:       3,
		RetryBase:        time.Second,
		RetryMax:         30 * time.Second,
		SubmitRate:       5,
		Burst:            5,
		BreakerFailures:  5,
		BreakerSuccesses: 2,
		BreakerCooldown:  30 * time.Second,
	}
}

// Dispatcher serializes order flow to the exchange.
type Dispatcher struct {
	client  exchange.Client
	book    *ledger.Ledger
	feed    *event.Feed
	limiter *rate.Limiter
	breaker *infra.CircuitBreaker
	logger  *slog.Logger
	opts    Options
}

// New creates a dispatcher.
func New(client exchange.Client, book *ledger.Ledger, feed *event.Feed, logger *slog.Logger, opts Options) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		client:  client,
		book:    book,
		feed:    feed,
		limiter: rate.NewLimiter(opts.SubmitRate, opts.Burst),
		breaker: infra.NewCircuitBreaker("order-path", opts.BreakerFailures, opts.BreakerSuccesses, opts.BreakerCooldown),
		logger:  logger,
		opts:    opts,
	}
}

// Submit turns an approved decision into a venue order. Transient errors
// are retried with backoff up to the configured budget; terminal errors and
// exhausted retries mark the order rejected and publish ORDER_FAILED.
func (d *Dispatcher) Submit(ctx context.Context, sig domain.Signal, dec domain.RiskDecision) (domain.Order, error) {
	order := domain.Order{
		ID:         uuid.NewString(),
		SignalID:   sig.StrategyID,
		Instrument: sig.Instrument,
		Side:       domain.SideBuy,
		Type:       domain.OrderMarket,
		Price:      sig.Price,
		Size:       dec.Size,
		CreatedAt:  time.Now().UTC(),
	}
	if sig.Type == domain.SignalSell {
		order.Side = domain.SideSell
	}
	if dec.Exit {
		order.Exit = domain.ExitSignal
	}
	return d.place(ctx, order, dec)
}

// SubmitExit closes a position breached by a protective level.
func (d *Dispatcher) SubmitExit(ctx context.Context, pos domain.Position, reason domain.ExitReason, price domain.Candle) (domain.Order, error) {
	side := domain.SideSell
	if pos.Side == domain.SideSell {
		side = domain.SideBuy
	}
	order := domain.Order{
		ID:         uuid.NewString(),
		SignalID:   string(reason),
		Instrument: pos.Instrument,
		Side:       side,
		Type:       domain.OrderMarket,
		Price:      price.Close,
		Size:       pos.Size,
		Exit:       reason,
		CreatedAt:  time.Now().UTC(),
	}
	return d.place(ctx, order, domain.RiskDecision{Approved: true, Exit: true, Size: pos.Size})
}

func (d *Dispatcher) place(ctx context.Context, order domain.Order, dec domain.RiskDecision) (domain.Order, error) {
	if err := d.book.Submit(order, dec); err != nil {
		return order, err
	}
	d.feed.Publish(event.New(event.OrderSubmitted, order.Instrument, "", order))

	req := exchange.OrderRequest{
		OrderID:    order.ID,
		Instrument: order.Instrument,
		Side:       order.Side,
		Type:       order.Type,
		Price:      order.Price,
		Size:       order.Size,
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := d.limiter.Wait(ctx); err != nil {
			return d.fail(order, err)
		}
		if !d.breaker.Allow() {
			return d.fail(order, fmt.Errorf("order path breaker open: %w", domain.ErrNetwork))
		}

		_, err := d.client.SubmitOrder(ctx, req)
		if err == nil {
			d.breaker.RecordSuccess()
			d.logger.Info("ORDER_SUBMITTED",
				slog.String("order_id", order.ID),
				slog.String("instrument", order.Instrument),
				slog.String("side", string(order.Side)),
				slog.String("size", order.Size.String()),
				slog.Int("attempt", attempt))
			return order, nil
		}

		d.breaker.RecordFailure()
		lastErr = err

		if !domain.Transient(err) {
			return d.fail(order, err)
		}
		if attempt >= d.opts.MaxRetries {
			return d.fail(order, fmt.Errorf("retries exhausted: %w", lastErr))
		}

		delay := infra.CalculateBackoffWith(attempt, d.opts.RetryBase, d.opts.RetryMax)
		d.logger.Warn("ORDER_RETRY",
			slog.String("order_id", order.ID),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", delay),
			slog.Any("err", err))

		select {
		case <-ctx.Done():
			return d.fail(order, ctx.Err())
		case <-time.After(delay):
		}
	}
}

func (d *Dispatcher) fail(order domain.Order, err error) (domain.Order, error) {
	d.book.MarkRejected(order.ID)
	d.logger.Error("ORDER_FAILED",
		slog.String("order_id", order.ID),
		slog.String("instrument", order.Instrument),
		slog.Any("err", err))
	d.feed.Publish(event.New(event.OrderFailed, order.Instrument, err.Error(), order))
	return order, err
}

// CheckExit tests the candle against the open position's protective
// levels. Stop-loss wins when both are breached in the same candle.
func CheckExit(pos domain.Position, candle domain.Candle) (domain.ExitReason, bool) {
	if pos.Side == domain.SideBuy {
		if !pos.StopLoss.IsZero() && candle.Low.LessThanOrEqual(pos.StopLoss) {
			return domain.ExitStopLoss, true
		}
		if !pos.TakeProfit.IsZero() && candle.High.GreaterThanOrEqual(pos.TakeProfit) {
			return domain.ExitTakeProfit, true
		}
		return domain.ExitNone, false
	}
	if !pos.StopLoss.IsZero() && candle.High.GreaterThanOrEqual(pos.StopLoss) {
		return domain.ExitStopLoss, true
	}
	if !pos.TakeProfit.IsZero() && candle.Low.LessThanOrEqual(pos.TakeProfit) {
		return domain.ExitTakeProfit, true
	}
	return domain.ExitNone, false
}
