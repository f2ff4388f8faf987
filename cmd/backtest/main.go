package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/Samsonboadi/CryptoPro/backtest"
	"github.com/Samsonboadi/CryptoPro/internal/infra"
	"github.com/Samsonboadi/CryptoPro/internal/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	instrument := flag.String("instrument", "", "instrument to replay")
	fromArg := flag.String("from", "", "range start (RFC3339), default: beginning of journal")
	toArg := flag.String("to", "", "range end (RFC3339), default: now")
	flag.Parse()

	cfg, err := infra.LoadConfig(*configPath)
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	if *instrument == "" {
		if len(cfg.Trading.Pairs) == 0 {
			logger.Error("no instrument given and none configured")
			os.Exit(1)
		}
		*instrument = cfg.Trading.Pairs[0]
	}

	from := time.Unix(0, 0)
	if *fromArg != "" {
		if from, err = time.Parse(time.RFC3339, *fromArg); err != nil {
			logger.Error("bad -from", slog.Any("error", err))
			os.Exit(1)
		}
	}
	to := time.Now().UTC()
	if *toArg != "" {
		if to, err = time.Parse(time.RFC3339, *toArg); err != nil {
			logger.Error("bad -to", slog.Any("error", err))
			os.Exit(1)
		}
	}

	journal, err := storage.NewJournal(cfg.Storage.JournalPath, logger)
	if err != nil {
		logger.Error("journal open failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer journal.Close()

	res, err := backtest.NewReplayer(cfg, journal, logger).
		Run(context.Background(), *instrument, from, to)
	if err != nil {
		logger.Error("backtest failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("BACKTEST_RESULT",
		slog.String("instrument", res.Instrument),
		slog.Int("candles", res.Candles),
		slog.String("final_state", string(res.FinalState)),
		slog.String("balance", res.Balance.String()),
		slog.String("equity", res.Equity.String()),
		slog.Int("open_positions", res.OpenPositions))
	for id, st := range res.Strategies {
		logger.Info("STRATEGY_STATS",
			slog.String("strategy", id),
			slog.Int("trades", st.Trades),
			slog.Int("wins", st.Wins),
			slog.Int("losses", st.Losses),
			slog.String("realized_pnl", st.RealizedPnL.String()))
	}
}
