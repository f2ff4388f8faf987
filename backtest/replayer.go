// Package backtest replays journaled candles through the live trading
// pipeline against the simulated venue.
package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Samsonboadi/CryptoPro/internal/engine"
	"github.com/Samsonboadi/CryptoPro/internal/event"
	"github.com/Samsonboadi/CryptoPro/internal/exchange"
	"github.com/Samsonboadi/CryptoPro/internal/infra"
	"github.com/Samsonboadi/CryptoPro/internal/ledger"
	"github.com/Samsonboadi/CryptoPro/internal/storage"
)

// Result summarizes one backtest run.
type Result struct {
	Instrument    string                          `json:"instrument"`
	Candles       int                             `json:"candles"`
	FinalState    engine.State                    `json:"final_state"`
	Balance       decimal.Decimal                 `json:"balance"`
	Equity        decimal.Decimal                 `json:"equity"`
	OpenPositions int                             `json:"open_positions"`
	Strategies    map[string]ledger.StrategyStats `json:"strategies"`
}

// Replayer runs recorded history through the same engine the bot trades
// with. Same strategies, same risk checks, same dispatcher - only the
// venue is simulated.
type Replayer struct {
	cfg     *infra.Config
	journal *storage.Journal
	logger  *slog.Logger
}

// NewReplayer creates a replayer over an existing journal.
func NewReplayer(cfg *infra.Config, journal *storage.Journal, logger *slog.Logger) *Replayer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Replayer{cfg: cfg, journal: journal, logger: logger}
}

// Run replays the instrument's candles in [from, to] and returns the
// session summary.
func (r *Replayer) Run(ctx context.Context, instrument string, from, to time.Time) (Result, error) {
	candles, err := r.journal.LoadCandles(ctx, instrument, from, to)
	if err != nil {
		return Result{}, fmt.Errorf("load candles: %w", err)
	}
	if len(candles) == 0 {
		return Result{}, fmt.Errorf("no candles journaled for %s in range", instrument)
	}

	// The replay session is always paper, whatever the config says.
	cfg := *r.cfg
	cfg.Trading.Mode = infra.ModePaper
	cfg.Trading.Pairs = []string{instrument}

	sim := exchange.NewSimClient(decimal.NewFromFloat(cfg.Trading.InitialBalance), r.logger)
	feed := event.NewFeed()
	defer feed.Close()

	e := engine.Build(&cfg, sim, feed, r.logger)
	r.logger.Info("REPLAY_STARTED",
		slog.String("instrument", instrument),
		slog.Int("candles", len(candles)))

	if err := e.Replay(ctx, candles); err != nil {
		return Result{}, fmt.Errorf("replay: %w", err)
	}

	status := e.Status()
	res := Result{
		Instrument:    instrument,
		Candles:       len(candles),
		FinalState:    status.State,
		Balance:       status.Balance,
		Equity:        status.Equity,
		OpenPositions: status.OpenPositions,
		Strategies:    e.Stats(),
	}
	r.logger.Info("REPLAY_FINISHED",
		slog.String("instrument", instrument),
		slog.String("final_state", string(res.FinalState)),
		slog.String("equity", res.Equity.String()))
	return res, nil
}
