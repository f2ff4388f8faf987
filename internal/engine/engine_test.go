package engine

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Samsonboadi/CryptoPro/internal/domain"
	"github.com/Samsonboadi/CryptoPro/internal/event"
	"github.com/Samsonboadi/CryptoPro/internal/exchange"
	"github.com/Samsonboadi/CryptoPro/internal/infra"
)

func engineConfig(pairs ...string) *infra.Config {
	cfg := infra.DefaultConfig()
	cfg.Trading.Pairs = pairs
	cfg.Trading.TradeFrequencySec = 1
	return cfg
}

func setupEngine(t *testing.T, cfg *infra.Config) (*Engine, *exchange.SimClient, <-chan event.Event) {
	t.Helper()
	sim := exchange.NewSimClient(decimal.NewFromFloat(cfg.Trading.InitialBalance), nil)
	feed := event.NewFeed()
	t.Cleanup(feed.Close)
	events, cancel := feed.Subscribe(64)
	t.Cleanup(cancel)

	e := Build(cfg, sim, feed, nil)
	e.state = StateRunning // drive runCycle directly, no loops
	return e, sim, events
}

func mkCandle(instrument string, i int, close float64) domain.Candle {
	c := decimal.NewFromFloat(close)
	return domain.Candle{
		Instrument: instrument,
		Timestamp:  time.Unix(1700000000+int64(i)*60, 0),
		Open:       c,
		High:       c.Add(decimal.NewFromInt(1)),
		Low:        c.Sub(decimal.NewFromInt(1)),
		Close:      c,
		Volume:     decimal.NewFromInt(100),
	}
}

// feedCandle routes a candle the way the market-data consumer would, and
// keeps the sim venue's last price in sync for market-order fills.
func feedCandle(e *Engine, sim *exchange.SimClient, c domain.Candle) {
	sim.MarkPrice(c.Instrument, c.Close)
	e.onCandle(c)
}

// oversoldRecovery yields closes that drive a 14-period RSI to zero and
// then snap it back above 30 on a single candle: a 200 start, fifteen
// declines of 2, then a 20-point jump.
func oversoldRecovery() []float64 {
	closes := []float64{200}
	price := 200.0
	for i := 0; i < 15; i++ {
		price -= 2
		closes = append(closes, price) // down to 170
	}
	closes = append(closes, price+20) // 190
	return closes
}

func drainFills(t *testing.T, e *Engine, sim *exchange.SimClient) {
	t.Helper()
	for {
		select {
		case fill := <-sim.Fills():
			require.NoError(t, e.book.OnFill(fill))
		default:
			return
		}
	}
}

func countEvents(events <-chan event.Event, typ event.Type) int {
	n := 0
	for {
		select {
		case ev := <-events:
			if ev.Type == typ {
				n++
			}
		default:
			return n
		}
	}
}

func collectEvents(events <-chan event.Event) map[event.Type][]event.Event {
	out := make(map[event.Type][]event.Event)
	for {
		select {
		case ev := <-events:
			out[ev.Type] = append(out[ev.Type], ev)
		default:
			return out
		}
	}
}

func TestOversoldRecoveryBuysExactlyOnce(t *testing.T) {
	cfg := engineConfig("BTCUSD-PERP")
	e, sim, events := setupEngine(t, cfg)

	closes := oversoldRecovery()
	for i, cl := range closes {
		feedCandle(e, sim, mkCandle("BTCUSD-PERP", i, cl))
	}

	e.runCycle(context.Background())
	drainFills(t, e, sim)

	require.Equal(t, 1, countEvents(events, event.OrderSubmitted))

	acct := e.book.Snapshot()
	pos, ok := acct.Positions["BTCUSD-PERP"]
	require.True(t, ok, "position should be open after the fill")

	// Sizing would risk 2% of equity against a 2% stop, which is far more
	// than the max trade notional; the size must be clipped to 1000.
	notional := pos.Size.Mul(pos.EntryPrice)
	require.InDelta(t, 1000, notional.InexactFloat64(), 1e-6)

	// Stop and take-profit attach at entry.
	require.InDelta(t, 190*0.98, pos.StopLoss.InexactFloat64(), 1e-6)
	require.InDelta(t, 190*1.05, pos.TakeProfit.InexactFloat64(), 1e-6)

	// RSI settles above the threshold: no second crossing, no second order.
	feedCandle(e, sim, mkCandle("BTCUSD-PERP", len(closes), 189))
	e.runCycle(context.Background())
	drainFills(t, e, sim)

	got := collectEvents(events)
	require.Empty(t, got[event.OrderSubmitted], "crossing must fire only once")
}

func TestSecondInstrumentVetoedAtPositionCap(t *testing.T) {
	cfg := engineConfig("BTCUSD-PERP", "ETHUSD-PERP")
	cfg.Risk.MaxOpenPositions = 1
	e, sim, events := setupEngine(t, cfg)

	closes := oversoldRecovery()
	for i, cl := range closes {
		feedCandle(e, sim, mkCandle("BTCUSD-PERP", i, cl))
		feedCandle(e, sim, mkCandle("ETHUSD-PERP", i, cl))
	}

	e.runCycle(context.Background())
	drainFills(t, e, sim)

	got := collectEvents(events)
	require.Len(t, got[event.OrderSubmitted], 1, "only one entry fits the position budget")
	require.Len(t, got[event.RiskVetoed], 1)
	require.Equal(t, "max_open_positions", got[event.RiskVetoed][0].Reason)
}

func TestDailyLossBreachHaltsUntilReset(t *testing.T) {
	cfg := engineConfig("BTCUSD-PERP")
	cfg.Risk.MaxDailyLoss = decimal.NewFromInt(40)
	e, sim, events := setupEngine(t, cfg)

	closes := oversoldRecovery()
	for i, cl := range closes {
		feedCandle(e, sim, mkCandle("BTCUSD-PERP", i, cl))
	}
	e.runCycle(context.Background())
	drainFills(t, e, sim)
	require.True(t, e.book.Snapshot().HasPosition("BTCUSD-PERP"))

	// Price collapses through the stop; the protective exit realizes a
	// loss beyond the daily budget.
	feedCandle(e, sim, mkCandle("BTCUSD-PERP", len(closes), 180))
	e.runCycle(context.Background())
	drainFills(t, e, sim)

	acct := e.book.Snapshot()
	require.False(t, acct.HasPosition("BTCUSD-PERP"), "stop-loss exit should have closed the position")
	require.True(t, acct.DailyRealized.LessThan(decimal.NewFromInt(-40)))

	// The next cycle sees the breach and halts before evaluating.
	e.runCycle(context.Background())
	require.Equal(t, StateHalted, e.State())
	require.Equal(t, 1, countEvents(events, event.BotHalted))

	// Halted engine rejects cycles outright.
	e.runCycle(context.Background())
	require.Equal(t, StateHalted, e.State())

	e.ResetDailyLoss()
	require.Equal(t, StateRunning, e.State())
	require.True(t, e.book.Snapshot().DailyRealized.IsZero())
}

func TestProtectiveExitSubmittedOnce(t *testing.T) {
	cfg := engineConfig("BTCUSD-PERP")
	e, sim, events := setupEngine(t, cfg)

	closes := oversoldRecovery()
	for i, cl := range closes {
		feedCandle(e, sim, mkCandle("BTCUSD-PERP", i, cl))
	}
	e.runCycle(context.Background())
	drainFills(t, e, sim)
	require.True(t, e.book.Snapshot().HasPosition("BTCUSD-PERP"))
	collectEvents(events) // discard the entry flow

	// Price collapses through the stop, and the exit's fill stays in
	// flight across two sweeps. Only one exit order may go out; a second
	// would double-close the position when both fills land.
	feedCandle(e, sim, mkCandle("BTCUSD-PERP", len(closes), 180))
	e.checkExits(context.Background())
	e.checkExits(context.Background())
	require.Equal(t, 1, countEvents(events, event.OrderSubmitted))

	drainFills(t, e, sim)
	require.False(t, e.book.Snapshot().HasPosition("BTCUSD-PERP"))
	require.Equal(t, StateRunning, e.State(), "a clean single exit must not halt the bot")
}

func TestPausedEngineSkipsCycles(t *testing.T) {
	cfg := engineConfig("BTCUSD-PERP")
	e, sim, events := setupEngine(t, cfg)

	require.NoError(t, e.Pause())
	require.Equal(t, StatePaused, e.State())

	for i, cl := range oversoldRecovery() {
		feedCandle(e, sim, mkCandle("BTCUSD-PERP", i, cl))
	}
	e.runCycle(context.Background())
	require.Zero(t, countEvents(events, event.OrderSubmitted))

	// Indicators stayed warm while paused: resuming trades immediately is
	// not possible here because the crossing already passed, but the cache
	// must be ready.
	require.NoError(t, e.Resume())
	require.Equal(t, StateRunning, e.State())
}

func TestStateTransitions(t *testing.T) {
	cfg := engineConfig("BTCUSD-PERP")
	e, _, _ := setupEngine(t, cfg)
	e.state = StateInitialized

	require.Error(t, e.Pause(), "INITIALIZED cannot pause")
	require.Error(t, e.Resume())

	require.NoError(t, e.transition(StateRunning))
	require.NoError(t, e.Pause())
	require.NoError(t, e.Resume())

	e.halt("test")
	require.Equal(t, StateHalted, e.State())
	require.Error(t, e.Pause(), "HALTED cannot pause")

	e.Stop()
	require.Equal(t, StateStopped, e.State())
	require.Error(t, e.transition(StateRunning), "STOPPED is terminal")
}

func TestStartStopLifecycle(t *testing.T) {
	cfg := engineConfig("BTCUSD-PERP")
	sim := exchange.NewSimClient(decimal.NewFromFloat(cfg.Trading.InitialBalance), nil)
	sim.ScriptCandles(mkCandle("BTCUSD-PERP", 0, 100), mkCandle("BTCUSD-PERP", 1, 101))
	feed := event.NewFeed()
	defer feed.Close()

	e := Build(cfg, sim, feed, nil)

	require.NoError(t, e.Start(context.Background()))
	require.Equal(t, StateRunning, e.State())
	require.Error(t, e.Start(context.Background()), "double start must fail")

	status := e.Status()
	require.Equal(t, StateRunning, status.State)

	e.Stop()
	require.Equal(t, StateStopped, e.State())

	// Stop is idempotent.
	e.Stop()
	require.Equal(t, StateStopped, e.State())
}

func TestStatusReportsAccountState(t *testing.T) {
	cfg := engineConfig("BTCUSD-PERP")
	e, sim, _ := setupEngine(t, cfg)

	for i, cl := range oversoldRecovery() {
		feedCandle(e, sim, mkCandle("BTCUSD-PERP", i, cl))
	}
	e.runCycle(context.Background())
	drainFills(t, e, sim)

	status := e.Status()
	require.Equal(t, StateRunning, status.State)
	require.Equal(t, 1, status.OpenPositions)
	require.True(t, status.Balance.LessThan(decimal.NewFromInt(10000)))
}
