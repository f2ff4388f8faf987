package exchange

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Samsonboadi/CryptoPro/internal/domain"
)

func simCandle(instrument string, i int, close float64) domain.Candle {
	c := decimal.NewFromFloat(close)
	return domain.Candle{
		Instrument: instrument,
		Timestamp:  time.Unix(1700000000+int64(i)*60, 0),
		Open:       c,
		High:       c,
		Low:        c,
		Close:      c,
		Volume:     decimal.NewFromInt(100),
	}
}

func TestSimStreamFiltersInstruments(t *testing.T) {
	sim := NewSimClient(decimal.NewFromInt(1000), nil)
	sim.ScriptCandles(
		simCandle("BTCUSD-PERP", 0, 100),
		simCandle("ETHUSD-PERP", 0, 10),
		simCandle("BTCUSD-PERP", 1, 101),
	)

	ch, err := sim.StreamMarketData(context.Background(), []string{"BTCUSD-PERP"})
	if err != nil {
		t.Fatal(err)
	}

	var got []domain.Candle
	for c := range ch {
		got = append(got, c)
	}
	if len(got) != 2 {
		t.Fatalf("got %d candles, want 2", len(got))
	}
	for _, c := range got {
		if c.Instrument != "BTCUSD-PERP" {
			t.Errorf("unexpected instrument %s", c.Instrument)
		}
	}
}

func TestSimMarketOrderFillsAtLastPrice(t *testing.T) {
	sim := NewSimClient(decimal.NewFromInt(1000), nil)
	sim.MarkPrice("BTCUSD-PERP", decimal.NewFromInt(100))

	ack, err := sim.SubmitOrder(context.Background(), OrderRequest{
		OrderID:    "o1",
		Instrument: "BTCUSD-PERP",
		Side:       domain.SideBuy,
		Type:       domain.OrderMarket,
		Size:       decimal.NewFromInt(2),
	})
	if err != nil {
		t.Fatal(err)
	}
	if ack.Status != domain.OrderFilled {
		t.Errorf("ack status = %s, want FILLED", ack.Status)
	}

	fill := <-sim.Fills()
	if fill.OrderID != "o1" || !fill.Price.Equal(decimal.NewFromInt(100)) {
		t.Errorf("fill = %+v", fill)
	}

	balance, _ := sim.AccountBalance(context.Background())
	if !balance.Equal(decimal.NewFromInt(800)) {
		t.Errorf("balance = %s, want 800", balance)
	}
}

func TestSimFailNextConsumesQueuedErrors(t *testing.T) {
	sim := NewSimClient(decimal.NewFromInt(1000), nil)
	sim.MarkPrice("BTCUSD-PERP", decimal.NewFromInt(100))
	sim.FailNext(domain.ErrRateLimited, domain.ErrNetwork)

	req := OrderRequest{
		OrderID:    "o1",
		Instrument: "BTCUSD-PERP",
		Side:       domain.SideBuy,
		Type:       domain.OrderMarket,
		Size:       decimal.NewFromInt(1),
	}

	if _, err := sim.SubmitOrder(context.Background(), req); !errors.Is(err, domain.ErrRateLimited) {
		t.Errorf("first err = %v, want ErrRateLimited", err)
	}
	if _, err := sim.SubmitOrder(context.Background(), req); !errors.Is(err, domain.ErrNetwork) {
		t.Errorf("second err = %v, want ErrNetwork", err)
	}
	if _, err := sim.SubmitOrder(context.Background(), req); err != nil {
		t.Errorf("third err = %v, want success", err)
	}
}

func TestSimRejectsOverspend(t *testing.T) {
	sim := NewSimClient(decimal.NewFromInt(50), nil)
	sim.MarkPrice("BTCUSD-PERP", decimal.NewFromInt(100))

	_, err := sim.SubmitOrder(context.Background(), OrderRequest{
		OrderID:    "o1",
		Instrument: "BTCUSD-PERP",
		Side:       domain.SideBuy,
		Type:       domain.OrderMarket,
		Size:       decimal.NewFromInt(1),
	})
	if !errors.Is(err, domain.ErrRejected) {
		t.Errorf("err = %v, want ErrRejected", err)
	}
}
