// Package strategy holds the pluggable trading strategies and the registry
// that selects among them.
package strategy

import (
	"log/slog"
	"sync"

	"github.com/Samsonboadi/CryptoPro/internal/domain"
	"github.com/Samsonboadi/CryptoPro/internal/indicator"
)

// Strategy is the capability every trading strategy implements.
type Strategy interface {
	// ID returns the registry key (e.g. "rsi").
	ID() string

	// Analyze inspects the latest indicator snapshot and recent candles
	// for one instrument and returns a Signal. A HOLD signal means "no
	// action"; strategies never return errors - uncertainty degrades to
	// HOLD.
	Analyze(snap indicator.Snapshot, candles []domain.Candle) domain.Signal
}

// Registry is an ordered set of strategies. Registration order is
// significant: it breaks confidence ties during conflict resolution.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]*entry
}

type entry struct {
	strat   Strategy
	enabled bool
	rank    int
}

// NewRegistry creates an empty strategy registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register adds a strategy, enabled by default. Registering the same id
// twice panics: strategy wiring is a startup-time concern.
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[s.ID()]; ok {
		panic("strategy: duplicate registration: " + s.ID())
	}
	r.entries[s.ID()] = &entry{strat: s, enabled: true, rank: len(r.order)}
	r.order = append(r.order, s.ID())
}

// Enable turns a registered strategy on.
func (r *Registry) Enable(id string) {
	r.setEnabled(id, true)
}

// Disable turns a registered strategy off. It keeps its registration rank.
func (r *Registry) Disable(id string) {
	r.setEnabled(id, false)
}

func (r *Registry) setEnabled(id string, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		slog.Warn("STRATEGY_UNKNOWN", slog.String("id", id))
		return
	}
	e.enabled = enabled
	slog.Info("STRATEGY_TOGGLED", slog.String("id", id), slog.Bool("enabled", enabled))
}

// Enabled returns the enabled strategies in registration order.
func (r *Registry) Enabled() []Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Strategy, 0, len(r.order))
	for _, id := range r.order {
		if e := r.entries[id]; e.enabled {
			out = append(out, e.strat)
		}
	}
	return out
}

// Resolve applies the conflict policy to the signals of one evaluation
// cycle for one instrument: the highest-confidence non-HOLD signal wins;
// ties are broken by earliest registration. Returns false when every
// signal is a HOLD.
func (r *Registry) Resolve(signals []domain.Signal) (domain.Signal, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	best := -1
	for i, sig := range signals {
		if sig.Type == domain.SignalHold {
			continue
		}
		if best < 0 {
			best = i
			continue
		}
		switch {
		case sig.Confidence > signals[best].Confidence:
			best = i
		case sig.Confidence == signals[best].Confidence &&
			r.rank(sig.StrategyID) < r.rank(signals[best].StrategyID):
			best = i
		}
	}
	if best < 0 {
		return domain.Signal{}, false
	}
	return signals[best], true
}

func (r *Registry) rank(id string) int {
	if e, ok := r.entries[id]; ok {
		return e.rank
	}
	return len(r.order)
}
