// Package event is the append-only signal/trade event feed consumed by
// external collaborators (dashboard, notifications, the audit journal).
//
// Delivery is best-effort, at-least-once: a slow subscriber loses events
// rather than blocking the trading loop, and consumers deduplicate by
// event id.
package event

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Type enumerates the feed event kinds.
type Type string

const (
	SignalEmitted  Type = "SIGNAL_EMITTED"
	OrderSubmitted Type = "ORDER_SUBMITTED"
	OrderFilled    Type = "ORDER_FILLED"
	OrderFailed    Type = "ORDER_FAILED"
	PositionClosed Type = "POSITION_CLOSED"
	RiskVetoed     Type = "RISK_VETOED"
	BotHalted      Type = "BOT_HALTED"
)

// Event is one feed entry. Payload carries the domain object that caused
// the event (Signal, Order, Position) and must be JSON-marshalable.
type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	Instrument string    `json:"instrument,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Payload    any       `json:"payload,omitempty"`
}

// New builds a feed event with a fresh id.
func New(typ Type, instrument, reason string, payload any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		Timestamp:  time.Now().UTC(),
		Instrument: instrument,
		Reason:     reason,
		Payload:    payload,
	}
}

// Feed fans events out to subscribers.
type Feed struct {
	mu      sync.RWMutex
	subs    map[int]chan Event
	nextID  int
	closed  bool
	dropped atomic.Uint64
}

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{subs: make(map[int]chan Event)}
}

// Subscribe returns a buffered event channel and a cancel function. The
// channel is closed on cancel or when the feed shuts down.
func (f *Feed) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = ch
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if sub, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber without blocking. Full
// subscriber buffers drop the event; the engine never waits on consumers.
func (f *Feed) Publish(ev Event) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return
	}
	for _, ch := range f.subs {
		select {
		case ch <- ev:
		default:
			f.dropped.Add(1)
			slog.Warn("EVENT_DROPPED_SLOW_SUBSCRIBER",
				slog.String("type", string(ev.Type)),
				slog.String("id", ev.ID))
		}
	}
}

// Dropped returns how many events were lost to slow subscribers.
func (f *Feed) Dropped() uint64 {
	return f.dropped.Load()
}

// Close shuts the feed down and closes all subscriber channels.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for id, ch := range f.subs {
		delete(f.subs, id)
		close(ch)
	}
}
