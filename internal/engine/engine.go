// Package engine runs the trading loop: market data in, indicator updates,
// strategy evaluation, risk checks, order dispatch.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/Samsonboadi/CryptoPro/internal/dispatch"
	"github.com/Samsonboadi/CryptoPro/internal/domain"
	"github.com/Samsonboadi/CryptoPro/internal/event"
	"github.com/Samsonboadi/CryptoPro/internal/exchange"
	"github.com/Samsonboadi/CryptoPro/internal/indicator"
	"github.com/Samsonboadi/CryptoPro/internal/infra"
	"github.com/Samsonboadi/CryptoPro/internal/ledger"
	"github.com/Samsonboadi/CryptoPro/internal/risk"
	"github.com/Samsonboadi/CryptoPro/internal/strategy"
)

// State is the engine lifecycle state.
type State string

const (
	StateInitialized State = "INITIALIZED"
	StateRunning     State = "RUNNING"
	StatePaused      State = "PAUSED"
	StateHalted      State = "HALTED"
	StateStopped     State = "STOPPED"
)

// validTransitions maps each state to the states it may move to. STOPPED is
// terminal.
var validTransitions = map[State][]State{
	StateInitialized: {StateRunning, StateStopped},
	StateRunning:     {StatePaused, StateHalted, StateStopped},
	StatePaused:      {StateRunning, StateHalted, StateStopped},
	StateHalted:      {StateRunning, StateStopped},
	StateStopped:     {},
}

// Status is the engine's public health snapshot.
type Status struct {
	State         State           `json:"state"`
	Uptime        time.Duration   `json:"uptime"`
	OpenPositions int             `json:"open_positions"`
	Balance       decimal.Decimal `json:"balance"`
	Equity        decimal.Decimal `json:"equity"`
	DailyPnL      decimal.Decimal `json:"daily_pnl"`
	DroppedEvents uint64          `json:"dropped_events"`
}

// Engine orchestrates one trading session.
type Engine struct {
	cfg        *infra.Config
	cache      *indicator.Cache
	registry   *strategy.Registry
	riskMgr    *risk.Manager
	book       *ledger.Ledger
	dispatcher *dispatch.Dispatcher
	client     exchange.Client
	feed       *event.Feed
	logger     *slog.Logger

	stateMu   sync.Mutex
	state     State
	startedAt time.Time
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	// decisionMu serializes risk evaluation and dispatch: decisions are
	// made against a consistent account snapshot, one at a time.
	decisionMu sync.Mutex

	candleMu   sync.RWMutex
	lastCandle map[string]domain.Candle
	candleSink chan<- domain.Candle
}

// Build wires a full engine from configuration. Indicators are registered
// only for the strategies the config enables, which keeps warm-up time to
// what the active set actually needs.
func Build(cfg *infra.Config, client exchange.Client, feed *event.Feed, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	var builders []indicator.Builder
	registry := strategy.NewRegistry()
	for _, id := range cfg.Strategies.Enabled {
		switch id {
		case "rsi":
			registry.Register(strategy.NewRSIStrategy(cfg.Strategies.RSI))
			builders = append(builders, indicator.NewRSI(cfg.Strategies.RSI.Period))
		case "macd":
			registry.Register(strategy.NewMACDStrategy(cfg.Strategies.MACD))
			builders = append(builders, indicator.NewMACD(
				cfg.Strategies.MACD.Fast, cfg.Strategies.MACD.Slow, cfg.Strategies.MACD.Signal))
		case "sma_cross":
			// Works off raw candles; no cache indicator needed.
			registry.Register(strategy.NewSMACrossStrategy(cfg.Strategies.SMACross))
		}
	}

	book := ledger.New(decimal.NewFromFloat(cfg.Trading.InitialBalance), feed, logger)
	return &Engine{
		cfg:        cfg,
		cache:      indicator.NewCache(cfg.Indicators.Lookback, builders...),
		registry:   registry,
		riskMgr:    risk.NewManager(cfg.Risk),
		book:       book,
		dispatcher: dispatch.New(client, book, feed, logger, dispatch.DefaultOptions()),
		client:     client,
		feed:       feed,
		logger:     logger,
		state:      StateInitialized,
		lastCandle: make(map[string]domain.Candle),
	}
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.state
}

func (e *Engine) transition(to State) error {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.transitionLocked(to)
}

func (e *Engine) transitionLocked(to State) error {
	for _, allowed := range validTransitions[e.state] {
		if allowed == to {
			e.logger.Info("STATE_TRANSITION",
				slog.String("from", string(e.state)),
				slog.String("to", string(to)))
			e.state = to
			return nil
		}
	}
	return fmt.Errorf("invalid transition %s -> %s", e.state, to)
}

// Start moves to RUNNING, opens the market data stream and launches the
// consumer and trading loops.
func (e *Engine) Start(ctx context.Context) error {
	e.stateMu.Lock()
	if err := e.transitionLocked(StateRunning); err != nil {
		e.stateMu.Unlock()
		return err
	}
	ctx, e.cancel = context.WithCancel(ctx)
	e.startedAt = time.Now()
	e.stateMu.Unlock()

	candles, err := e.client.StreamMarketData(ctx, e.cfg.Trading.Pairs)
	if err != nil {
		e.transition(StateStopped)
		return fmt.Errorf("market data stream: %w", err)
	}

	e.wg.Add(3)
	go e.consumeCandles(ctx, candles)
	go e.consumeFills(ctx)
	go e.tradeLoop(ctx)

	e.logger.Info("ENGINE_STARTED",
		slog.Any("pairs", e.cfg.Trading.Pairs),
		slog.Duration("frequency", e.cfg.TradeFrequency()))
	return nil
}

// Pause suspends evaluation; market data keeps flowing so indicators stay
// warm.
func (e *Engine) Pause() error { return e.transition(StatePaused) }

// Resume continues evaluation after a pause.
func (e *Engine) Resume() error {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	if e.state != StatePaused {
		return fmt.Errorf("resume from %s", e.state)
	}
	return e.transitionLocked(StateRunning)
}

// ResetDailyLoss zeroes the daily PnL counter and, when halted on the loss
// limit, returns the engine to RUNNING.
func (e *Engine) ResetDailyLoss() {
	e.book.ResetDaily()
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	if e.state == StateHalted {
		if err := e.transitionLocked(StateRunning); err == nil {
			e.logger.Info("RESUMED_AFTER_RESET")
		}
	}
}

// Stop ends the session. In-flight work drains; the state becomes STOPPED
// and cannot leave it.
func (e *Engine) Stop() {
	e.stateMu.Lock()
	if e.state == StateStopped {
		e.stateMu.Unlock()
		return
	}
	e.transitionLocked(StateStopped)
	cancel := e.cancel
	e.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.wg.Wait()
	e.logger.Info("ENGINE_STOPPED")
}

// Status reports engine health for the operator surface.
func (e *Engine) Status() Status {
	acct := e.book.Snapshot()
	e.stateMu.Lock()
	state := e.state
	started := e.startedAt
	e.stateMu.Unlock()

	var uptime time.Duration
	if !started.IsZero() {
		uptime = time.Since(started)
	}
	open := 0
	for _, pos := range acct.Positions {
		if pos.Size.IsPositive() {
			open++
		}
	}
	return Status{
		State:         state,
		Uptime:        uptime,
		OpenPositions: open,
		Balance:       acct.Balance,
		Equity:        acct.Equity,
		DailyPnL:      acct.DailyRealized,
		DroppedEvents: e.feed.Dropped(),
	}
}

// Stats exposes per-strategy performance counters.
func (e *Engine) Stats() map[string]ledger.StrategyStats { return e.book.Stats() }

// Registry exposes the strategy registry for runtime enable/disable.
func (e *Engine) Registry() *strategy.Registry { return e.registry }

func (e *Engine) consumeCandles(ctx context.Context, candles <-chan domain.Candle) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-candles:
			if !ok {
				return
			}
			e.onCandle(c)
		}
	}
}

// SetCandleSink registers an observer channel for ingested candles (the
// journal records them for replay). Call before Start. Sends never block;
// a full sink loses candles.
func (e *Engine) SetCandleSink(sink chan<- domain.Candle) {
	e.candleSink = sink
}

func (e *Engine) onCandle(c domain.Candle) {
	e.cache.Ingest(c)
	e.book.MarkPrice(c.Instrument, c.Close)
	e.candleMu.Lock()
	e.lastCandle[c.Instrument] = c
	e.candleMu.Unlock()

	if e.candleSink != nil {
		select {
		case e.candleSink <- c:
		default:
		}
	}
}

func (e *Engine) consumeFills(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case fill, ok := <-e.client.Fills():
			if !ok {
				return
			}
			if err := e.book.OnFill(fill); err != nil {
				if errors.Is(err, domain.ErrFatalInternal) {
					e.halt("ledger invariant violated: " + err.Error())
					return
				}
				e.logger.Error("FILL_APPLY_FAILED", slog.Any("err", err))
			}
		}
	}
}

func (e *Engine) tradeLoop(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.TradeFrequency())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.runCycle(ctx)
		}
	}
}

// runCycle is one evaluation pass: protective exits first, then concurrent
// per-instrument strategy evaluation, then serialized risk and dispatch.
func (e *Engine) runCycle(ctx context.Context) {
	if e.State() != StateRunning {
		return
	}

	e.checkExits(ctx)

	if breached, pnl := e.dailyLossBreached(); breached {
		e.haltOnDailyLoss(pnl)
		return
	}

	winners := e.evaluate(ctx)
	for _, sig := range winners {
		if e.State() != StateRunning {
			return
		}
		e.apply(ctx, sig)
	}
}

// checkExits closes positions whose protective levels the latest candle
// breached. Exits run before entries every cycle.
func (e *Engine) checkExits(ctx context.Context) {
	acct := e.book.Snapshot()
	for _, pos := range acct.Positions {
		// An exit already on the wire covers this position; submitting
		// another would double-close it once both fills land.
		if e.book.ExitPending(pos.Instrument) {
			continue
		}
		e.candleMu.RLock()
		candle, ok := e.lastCandle[pos.Instrument]
		e.candleMu.RUnlock()
		if !ok {
			continue
		}
		reason, hit := dispatch.CheckExit(pos, candle)
		if !hit {
			continue
		}
		e.logger.Info("PROTECTIVE_EXIT",
			slog.String("instrument", pos.Instrument),
			slog.String("reason", string(reason)),
			slog.String("close", candle.Close.String()))

		e.decisionMu.Lock()
		_, err := e.dispatcher.SubmitExit(ctx, pos, reason, candle)
		e.decisionMu.Unlock()
		if err != nil {
			e.logger.Error("EXIT_DISPATCH_FAILED",
				slog.String("instrument", pos.Instrument),
				slog.Any("err", err))
		}
	}
}

func (e *Engine) dailyLossBreached() (bool, decimal.Decimal) {
	acct := e.book.Snapshot()
	limit := e.riskMgr.Limits().MaxDailyLoss
	return acct.DailyRealized.Neg().GreaterThanOrEqual(limit), acct.DailyRealized
}

func (e *Engine) haltOnDailyLoss(pnl decimal.Decimal) {
	e.halt(fmt.Sprintf("daily loss limit reached: %s", pnl))
}

func (e *Engine) halt(reason string) {
	e.stateMu.Lock()
	err := e.transitionLocked(StateHalted)
	e.stateMu.Unlock()
	if err != nil {
		return
	}
	e.logger.Error("BOT_HALTED", slog.String("reason", reason))
	e.feed.Publish(event.New(event.BotHalted, "", reason, nil))
}

// evaluate runs every enabled strategy per instrument concurrently and
// returns the per-instrument winning signals that clear the confidence bar.
func (e *Engine) evaluate(ctx context.Context) []domain.Signal {
	var (
		mu      sync.Mutex
		winners []domain.Signal
	)

	g, _ := errgroup.WithContext(ctx)
	for _, instrument := range e.cfg.Trading.Pairs {
		instrument := instrument
		g.Go(func() error {
			sig, ok := e.evaluateInstrument(instrument)
			if !ok {
				return nil
			}
			mu.Lock()
			winners = append(winners, sig)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return winners
}

func (e *Engine) evaluateInstrument(instrument string) (domain.Signal, bool) {
	snap, err := e.cache.Snapshot(instrument)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientData) {
			e.logger.Debug("WARMUP_PENDING", slog.String("instrument", instrument))
		} else {
			e.logger.Warn("SNAPSHOT_FAILED", slog.String("instrument", instrument), slog.Any("err", err))
		}
		return domain.Signal{}, false
	}

	candles := e.cache.Recent(instrument, e.cfg.Indicators.Lookback)
	strategies := e.registry.Enabled()
	signals := make([]domain.Signal, 0, len(strategies))
	for _, s := range strategies {
		signals = append(signals, s.Analyze(snap, candles))
	}

	winner, ok := e.registry.Resolve(signals)
	if !ok {
		return domain.Signal{}, false
	}
	if winner.Confidence < e.cfg.Trading.MinConfidence {
		e.logger.Debug("SIGNAL_BELOW_CONFIDENCE",
			slog.String("instrument", instrument),
			slog.String("strategy", winner.StrategyID),
			slog.Float64("confidence", winner.Confidence))
		return domain.Signal{}, false
	}

	e.logger.Info("SIGNAL_EMITTED",
		slog.String("instrument", instrument),
		slog.String("type", string(winner.Type)),
		slog.String("strategy", winner.StrategyID),
		slog.Float64("confidence", winner.Confidence),
		slog.String("reason", winner.Reason))
	e.feed.Publish(event.New(event.SignalEmitted, instrument, winner.Reason, winner))
	return winner, true
}

// Replay drives the engine synchronously over recorded candles: every
// candle is ingested, followed by one evaluation cycle and the fills it
// produced. Deterministic by construction; the backtester depends on that.
func (e *Engine) Replay(ctx context.Context, candles []domain.Candle) error {
	if err := e.transition(StateRunning); err != nil {
		return err
	}
	marker, _ := e.client.(interface {
		MarkPrice(instrument string, price decimal.Decimal)
	})

	for _, c := range candles {
		if err := ctx.Err(); err != nil {
			return err
		}
		if marker != nil {
			marker.MarkPrice(c.Instrument, c.Close)
		}
		e.onCandle(c)
		e.runCycle(ctx)
		e.applyPendingFills()
		if e.State() != StateRunning {
			break
		}
	}
	return nil
}

func (e *Engine) applyPendingFills() {
	for {
		select {
		case fill, ok := <-e.client.Fills():
			if !ok {
				return
			}
			if err := e.book.OnFill(fill); err != nil {
				e.logger.Error("FILL_APPLY_FAILED", slog.Any("err", err))
			}
		default:
			return
		}
	}
}

// apply takes one winning signal through risk evaluation and dispatch,
// serialized against every other decision.
func (e *Engine) apply(ctx context.Context, sig domain.Signal) {
	e.decisionMu.Lock()
	defer e.decisionMu.Unlock()

	dec := e.riskMgr.Evaluate(sig, e.book.Snapshot())
	if !dec.Approved {
		e.logger.Info("RISK_VETOED",
			slog.String("instrument", sig.Instrument),
			slog.String("strategy", sig.StrategyID),
			slog.String("reason", dec.VetoReason))
		e.feed.Publish(event.New(event.RiskVetoed, sig.Instrument, dec.VetoReason, sig))
		if dec.VetoReason == risk.VetoDailyLossBreach {
			e.haltOnDailyLoss(e.book.Snapshot().DailyRealized)
		}
		return
	}

	if dec.Exit && e.book.ExitPending(sig.Instrument) {
		e.logger.Debug("EXIT_ALREADY_PENDING", slog.String("instrument", sig.Instrument))
		return
	}

	if _, err := e.dispatcher.Submit(ctx, sig, dec); err != nil {
		e.logger.Error("DISPATCH_FAILED",
			slog.String("instrument", sig.Instrument),
			slog.Any("err", err))
	}
}
