package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Samsonboadi/CryptoPro/internal/domain"
	"github.com/Samsonboadi/CryptoPro/internal/engine"
	"github.com/Samsonboadi/CryptoPro/internal/event"
	"github.com/Samsonboadi/CryptoPro/internal/exchange"
	"github.com/Samsonboadi/CryptoPro/internal/infra"
	"github.com/Samsonboadi/CryptoPro/internal/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := infra.LoadConfig(*configPath)
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	journal, err := storage.NewJournal(cfg.Storage.JournalPath, logger)
	if err != nil {
		logger.Error("journal open failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer journal.Close()

	feed := event.NewFeed()
	defer feed.Close()

	// The journal subscribes like any other consumer; a slow disk never
	// stalls the trading loop.
	journalEvents, cancelJournal := feed.Subscribe(1024)
	defer cancelJournal()
	go journal.Run(ctx, journalEvents)

	client, err := exchange.NewClient(cfg, logger)
	if err != nil {
		logger.Error("exchange client failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer client.Close()

	bot := engine.Build(cfg, client, feed, logger)

	// Candle history feeds the backtester; journaled off the hot path.
	candleSink := make(chan domain.Candle, 1024)
	bot.SetCandleSink(candleSink)
	go func() {
		for c := range candleSink {
			if err := journal.RecordCandle(ctx, c); err != nil {
				logger.Error("CANDLE_JOURNAL_FAILED", slog.Any("error", err))
			}
		}
	}()

	if err := bot.Start(ctx); err != nil {
		logger.Error("engine start failed", slog.Any("error", err))
		os.Exit(1)
	}

	go resetDailyAtMidnight(ctx, bot, logger)
	go reportStatus(ctx, bot, logger)

	logger.Info("BOT_READY",
		slog.String("mode", cfg.Trading.Mode),
		slog.Any("pairs", cfg.Trading.Pairs))

	<-ctx.Done()
	logger.Info("SHUTDOWN_SIGNAL")
	bot.Stop()
}

// resetDailyAtMidnight clears the daily loss counter at every UTC rollover.
func resetDailyAtMidnight(ctx context.Context, bot *engine.Engine, logger *slog.Logger) {
	for {
		now := time.Now().UTC()
		next := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
		select {
		case <-ctx.Done():
			return
		case <-time.After(next.Sub(now)):
			logger.Info("UTC_ROLLOVER")
			bot.ResetDailyLoss()
		}
	}
}

// reportStatus logs a heartbeat once a minute.
func reportStatus(ctx context.Context, bot *engine.Engine, logger *slog.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := bot.Status()
			logger.Info("HEARTBEAT",
				slog.String("state", string(st.State)),
				slog.Duration("uptime", st.Uptime),
				slog.Int("open_positions", st.OpenPositions),
				slog.String("equity", st.Equity.String()),
				slog.String("daily_pnl", st.DailyPnL.String()),
				slog.Uint64("dropped_events", st.DroppedEvents))
		}
	}
}
