package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/Samsonboadi/CryptoPro/internal/domain"
	"github.com/Samsonboadi/CryptoPro/internal/event"
	"github.com/Samsonboadi/CryptoPro/internal/exchange"
	"github.com/Samsonboadi/CryptoPro/internal/ledger"
)

func testOptions() Options {
	return Options{
		MaxRetries:       3,
		RetryBase:        time.Millisecond,
		RetryMax:         5 * time.Millisecond,
		SubmitRate:       rate.Inf,
		Burst:            1,
		BreakerFailures:  5,
		BreakerSuccesses: 2,
		BreakerCooldown:  time.Hour,
	}
}

func testSignal() domain.Signal {
	return domain.Signal{
		Instrument: "BTCUSD-PERP",
		Type:       domain.SignalBuy,
		Confidence: 0.8,
		Price:      decimal.NewFromInt(100),
		StrategyID: "rsi",
	}
}

func setup(t *testing.T) (*Dispatcher, *exchange.SimClient, *ledger.Ledger, <-chan event.Event) {
	t.Helper()
	sim := exchange.NewSimClient(decimal.NewFromInt(10000), nil)
	sim.MarkPrice("BTCUSD-PERP", decimal.NewFromInt(100))
	feed := event.NewFeed()
	t.Cleanup(feed.Close)
	events, cancel := feed.Subscribe(32)
	t.Cleanup(cancel)
	book := ledger.New(decimal.NewFromInt(10000), feed, nil)
	return New(sim, book, feed, nil, testOptions()), sim, book, events
}

func drainTypes(events <-chan event.Event) []event.Type {
	var types []event.Type
	for {
		select {
		case ev := <-events:
			types = append(types, ev.Type)
		default:
			return types
		}
	}
}

func TestSubmitRetriesTransientThenSucceeds(t *testing.T) {
	d, sim, book, _ := setup(t)
	sim.FailNext(domain.ErrRateLimited, domain.ErrNetwork, domain.ErrRateLimited)

	order, err := d.Submit(context.Background(), testSignal(),
		domain.RiskDecision{Approved: true, Size: decimal.NewFromInt(1)})
	require.NoError(t, err)

	// The sim filled on the fourth attempt; apply the fill.
	fill := <-sim.Fills()
	require.NoError(t, book.OnFill(fill))

	got, ok := book.Order(order.ID)
	require.True(t, ok)
	require.Equal(t, domain.OrderFilled, got.Status)
}

func TestSubmitGivesUpAfterRetryBudget(t *testing.T) {
	d, sim, book, events := setup(t)
	sim.FailNext(domain.ErrNetwork, domain.ErrNetwork, domain.ErrNetwork, domain.ErrNetwork)

	order, err := d.Submit(context.Background(), testSignal(),
		domain.RiskDecision{Approved: true, Size: decimal.NewFromInt(1)})
	require.Error(t, err)
	require.ErrorIs(t, err, domain.ErrNetwork)

	got, _ := book.Order(order.ID)
	require.Equal(t, domain.OrderRejected, got.Status)
	require.Contains(t, drainTypes(events), event.OrderFailed)
}

func TestSubmitTerminalErrorDoesNotRetry(t *testing.T) {
	d, sim, book, events := setup(t)
	sim.FailNext(domain.ErrRejected)

	order, err := d.Submit(context.Background(), testSignal(),
		domain.RiskDecision{Approved: true, Size: decimal.NewFromInt(1)})
	require.ErrorIs(t, err, domain.ErrRejected)

	// The queued failure was consumed exactly once; a second order goes
	// straight through.
	_, err = d.Submit(context.Background(), testSignal(),
		domain.RiskDecision{Approved: true, Size: decimal.NewFromInt(1)})
	require.NoError(t, err)

	got, _ := book.Order(order.ID)
	require.Equal(t, domain.OrderRejected, got.Status)
	require.Contains(t, drainTypes(events), event.OrderFailed)
}

func TestSubmitExitClosesOppositeSide(t *testing.T) {
	d, sim, _, _ := setup(t)

	pos := domain.Position{
		Instrument: "BTCUSD-PERP",
		Side:       domain.SideBuy,
		EntryPrice: decimal.NewFromInt(100),
		Size:       decimal.NewFromInt(1),
	}
	candle := domain.Candle{Instrument: "BTCUSD-PERP", Close: decimal.NewFromInt(97)}

	order, err := d.SubmitExit(context.Background(), pos, domain.ExitStopLoss, candle)
	require.NoError(t, err)
	require.Equal(t, domain.SideSell, order.Side)
	require.Equal(t, domain.ExitStopLoss, order.Exit)

	fill := <-sim.Fills()
	require.Equal(t, order.ID, fill.OrderID)
}

func TestCheckExit(t *testing.T) {
	long := domain.Position{
		Side:       domain.SideBuy,
		StopLoss:   decimal.NewFromInt(98),
		TakeProfit: decimal.NewFromInt(105),
	}

	candle := func(low, high float64) domain.Candle {
		return domain.Candle{
			Low:  decimal.NewFromFloat(low),
			High: decimal.NewFromFloat(high),
		}
	}

	tests := []struct {
		name string
		c    domain.Candle
		want domain.ExitReason
		hit  bool
	}{
		{"inside band", candle(99, 104), domain.ExitNone, false},
		{"stop touched", candle(97.5, 104), domain.ExitStopLoss, true},
		{"take profit touched", candle(99, 106), domain.ExitTakeProfit, true},
		{"both breached stop wins", candle(97, 106), domain.ExitStopLoss, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, hit := CheckExit(long, tt.c)
			if hit != tt.hit || reason != tt.want {
				t.Errorf("CheckExit = (%s, %v), want (%s, %v)", reason, hit, tt.want, tt.hit)
			}
		})
	}
}

func TestCheckExitShortSide(t *testing.T) {
	short := domain.Position{
		Side:       domain.SideSell,
		StopLoss:   decimal.NewFromInt(102),
		TakeProfit: decimal.NewFromInt(95),
	}

	reason, hit := CheckExit(short, domain.Candle{
		Low:  decimal.NewFromInt(101),
		High: decimal.NewFromInt(103),
	})
	if !hit || reason != domain.ExitStopLoss {
		t.Errorf("short stop: got (%s, %v)", reason, hit)
	}

	reason, hit = CheckExit(short, domain.Candle{
		Low:  decimal.NewFromInt(94),
		High: decimal.NewFromInt(101),
	})
	if !hit || reason != domain.ExitTakeProfit {
		t.Errorf("short take profit: got (%s, %v)", reason, hit)
	}
}

func TestOpenBreakerRejectsImmediately(t *testing.T) {
	d, sim, _, _ := setup(t)

	// Five consecutive failures open the breaker (retry budget 3 plus a
	// second attempt's failures).
	sim.FailNext(domain.ErrNetwork, domain.ErrNetwork, domain.ErrNetwork, domain.ErrNetwork, domain.ErrNetwork)

	_, err := d.Submit(context.Background(), testSignal(),
		domain.RiskDecision{Approved: true, Size: decimal.NewFromInt(1)})
	require.Error(t, err)

	// The fifth consecutive failure opens the breaker mid-retry; the next
	// attempt is rejected without reaching the venue.
	_, err = d.Submit(context.Background(), testSignal(),
		domain.RiskDecision{Approved: true, Size: decimal.NewFromInt(1)})
	require.ErrorIs(t, err, domain.ErrNetwork)
	require.ErrorContains(t, err, "breaker open")
}
