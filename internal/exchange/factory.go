package exchange

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/shopspring/decimal"

	"github.com/Samsonboadi/CryptoPro/internal/infra"
)

// NewClient builds the venue client for the configured trading mode.
func NewClient(cfg *infra.Config, logger *slog.Logger) (Client, error) {
	switch cfg.Trading.Mode {
	case infra.ModePaper:
		balance := decimal.NewFromFloat(cfg.Trading.InitialBalance)
		logger.Info("EXECUTION_MODE", slog.String("mode", "paper"), slog.String("balance", balance.String()))
		return NewSimClient(balance, logger), nil

	case infra.ModeLive:
		// Safety latch: live trading needs an explicit second switch.
		if os.Getenv("CRYPTOPRO_CONFIRM_LIVE") != "true" {
			return nil, fmt.Errorf("live trading requires CRYPTOPRO_CONFIRM_LIVE=true")
		}
		logger.Info("EXECUTION_MODE", slog.String("mode", "live"), slog.String("url", cfg.Exchange.WSURL))
		return NewLiveClient(cfg.Exchange.WSURL, cfg.Exchange.APIKey, logger), nil

	default:
		return nil, fmt.Errorf("unknown trading mode: %s", cfg.Trading.Mode)
	}
}
