package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Samsonboadi/CryptoPro/internal/domain"
	"github.com/Samsonboadi/CryptoPro/internal/event"
)

func testJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := NewJournal(filepath.Join(t.TempDir(), "journal.db"), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordDeduplicatesByEventID(t *testing.T) {
	j := testJournal(t)
	ctx := context.Background()

	ev := event.New(event.OrderFilled, "BTCUSD-PERP", "", map[string]string{"order_id": "o1"})
	if err := j.Record(ctx, ev); err != nil {
		t.Fatal(err)
	}
	// At-least-once delivery replays the same event.
	if err := j.Record(ctx, ev); err != nil {
		t.Fatal(err)
	}

	n, err := j.CountEvents(ctx, event.OrderFilled)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1 after duplicate insert", n)
	}
}

func TestRunConsumesFeed(t *testing.T) {
	j := testJournal(t)
	feed := event.NewFeed()
	events, cancel := feed.Subscribe(16)
	defer cancel()

	done := make(chan struct{})
	go func() {
		j.Run(context.Background(), events)
		close(done)
	}()

	feed.Publish(event.New(event.SignalEmitted, "BTCUSD-PERP", "RSI crossed", nil))
	feed.Publish(event.New(event.OrderSubmitted, "BTCUSD-PERP", "", nil))
	feed.Close()
	<-done

	n, err := j.CountEvents(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
}

func TestCandleRoundTrip(t *testing.T) {
	j := testJournal(t)
	ctx := context.Background()

	base := time.Unix(1700000000, 0).UTC()
	for i := 0; i < 3; i++ {
		c := domain.Candle{
			Instrument: "BTCUSD-PERP",
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
			Open:       decimal.NewFromInt(int64(100 + i)),
			High:       decimal.NewFromInt(int64(101 + i)),
			Low:        decimal.NewFromInt(int64(99 + i)),
			Close:      decimal.NewFromFloat(100.5 + float64(i)),
			Volume:     decimal.NewFromInt(1000),
		}
		if err := j.RecordCandle(ctx, c); err != nil {
			t.Fatal(err)
		}
		// Replayed writes are ignored.
		if err := j.RecordCandle(ctx, c); err != nil {
			t.Fatal(err)
		}
	}

	got, err := j.LoadCandles(ctx, "BTCUSD-PERP", base, base.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("loaded %d candles, want 3", len(got))
	}
	if !got[0].Timestamp.Equal(base) || !got[2].Timestamp.After(got[0].Timestamp) {
		t.Error("candles not ordered oldest first")
	}
	if !got[1].Close.Equal(decimal.NewFromFloat(101.5)) {
		t.Errorf("close = %s, want 101.5", got[1].Close)
	}

	// Range filter excludes candles outside the window.
	got, err = j.LoadCandles(ctx, "BTCUSD-PERP", base.Add(time.Minute), base.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("windowed load = %d candles, want 2", len(got))
	}
}
