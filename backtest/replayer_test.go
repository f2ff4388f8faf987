package backtest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Samsonboadi/CryptoPro/internal/domain"
	"github.com/Samsonboadi/CryptoPro/internal/engine"
	"github.com/Samsonboadi/CryptoPro/internal/infra"
	"github.com/Samsonboadi/CryptoPro/internal/storage"
)

func TestReplayOversoldRecovery(t *testing.T) {
	journal, err := storage.NewJournal(filepath.Join(t.TempDir(), "bt.db"), nil)
	require.NoError(t, err)
	defer journal.Close()

	// A decline deep enough to floor the RSI, then a sharp recovery: the
	// replayed engine should enter exactly one long position.
	base := time.Unix(1700000000, 0).UTC()
	price := 200.0
	closes := []float64{price}
	for i := 0; i < 15; i++ {
		price -= 2
		closes = append(closes, price)
	}
	closes = append(closes, price+20)

	ctx := context.Background()
	for i, cl := range closes {
		c := decimal.NewFromFloat(cl)
		require.NoError(t, journal.RecordCandle(ctx, domain.Candle{
			Instrument: "BTCUSD-PERP",
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
			Open:       c,
			High:       c.Add(decimal.NewFromInt(1)),
			Low:        c.Sub(decimal.NewFromInt(1)),
			Close:      c,
			Volume:     decimal.NewFromInt(100),
		}))
	}

	cfg := infra.DefaultConfig()
	res, err := NewReplayer(cfg, journal, nil).Run(ctx, "BTCUSD-PERP", base, base.Add(time.Hour))
	require.NoError(t, err)

	require.Equal(t, len(closes), res.Candles)
	require.Equal(t, engine.StateRunning, res.FinalState)
	require.Equal(t, 1, res.OpenPositions, "the recovery crossing should have opened one position")
	require.True(t, res.Balance.LessThan(decimal.NewFromInt(10000)), "entry cost must be debited")
}

func TestReplayEmptyRangeFails(t *testing.T) {
	journal, err := storage.NewJournal(filepath.Join(t.TempDir(), "bt.db"), nil)
	require.NoError(t, err)
	defer journal.Close()

	_, err = NewReplayer(infra.DefaultConfig(), journal, nil).
		Run(context.Background(), "BTCUSD-PERP", time.Unix(0, 0), time.Unix(1, 0))
	require.Error(t, err)
}
