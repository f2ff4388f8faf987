package strategy

import (
	"fmt"
	"math"
	"sync"

	"github.com/Samsonboadi/CryptoPro/internal/domain"
	"github.com/Samsonboadi/CryptoPro/internal/indicator"
)

// SMACrossConfig holds the moving-average crossover parameters.
type SMACrossConfig struct {
	ShortPeriod int `yaml:"short_period"`
	LongPeriod  int `yaml:"long_period"`
}

// DefaultSMACrossConfig returns a 10/30 crossover.
func DefaultSMACrossConfig() SMACrossConfig {
	return SMACrossConfig{ShortPeriod: 10, LongPeriod: 30}
}

// SMACrossStrategy trades simple moving-average crossovers: buy on a golden
// cross (short SMA rising above long), sell on a dead cross. It is stateful
// per instrument - the previous pair of averages decides whether the current
// pair constitutes a cross.
type SMACrossStrategy struct {
	cfg SMACrossConfig

	mu   sync.Mutex
	prev map[string][2]float64 // instrument -> {short, long} from last cycle
}

// NewSMACrossStrategy creates an SMA crossover strategy.
func NewSMACrossStrategy(cfg SMACrossConfig) *SMACrossStrategy {
	if cfg.ShortPeriod <= 0 || cfg.LongPeriod <= 0 {
		cfg = DefaultSMACrossConfig()
	}
	if cfg.ShortPeriod >= cfg.LongPeriod {
		panic("strategy: SMA cross short period must be less than long period")
	}
	return &SMACrossStrategy{cfg: cfg, prev: make(map[string][2]float64)}
}

func (s *SMACrossStrategy) ID() string { return "sma_cross" }

func (s *SMACrossStrategy) Analyze(snap indicator.Snapshot, candles []domain.Candle) domain.Signal {
	hold := domain.Signal{
		Instrument: snap.Instrument,
		Type:       domain.SignalHold,
		StrategyID: s.ID(),
		Timestamp:  snap.Timestamp,
		Reason:     "no cross",
	}

	if len(candles) < s.cfg.LongPeriod {
		hold.Reason = "insufficient data"
		return hold
	}
	price := candles[len(candles)-1].Close

	short := meanClose(candles[len(candles)-s.cfg.ShortPeriod:])
	long := meanClose(candles[len(candles)-s.cfg.LongPeriod:])

	s.mu.Lock()
	last, seen := s.prev[snap.Instrument]
	s.prev[snap.Instrument] = [2]float64{short, long}
	s.mu.Unlock()
	if !seen {
		return hold
	}
	prevShort, prevLong := last[0], last[1]

	var (
		sigType domain.SignalType
		reason  string
	)
	switch {
	case prevShort <= prevLong && short > long:
		sigType = domain.SignalBuy
		reason = fmt.Sprintf("golden cross: SMA%d above SMA%d", s.cfg.ShortPeriod, s.cfg.LongPeriod)
	case prevShort >= prevLong && short < long:
		sigType = domain.SignalSell
		reason = fmt.Sprintf("dead cross: SMA%d below SMA%d", s.cfg.ShortPeriod, s.cfg.LongPeriod)
	default:
		return hold
	}

	// Wider separation right after the cross means stronger momentum.
	separation := math.Abs(short-long) / math.Max(long, 1e-9)
	confidence := math.Min(1, 0.5+separation*50)

	return domain.Signal{
		Instrument: snap.Instrument,
		Type:       sigType,
		Confidence: confidence,
		Price:      price,
		Reason:     reason,
		StrategyID: s.ID(),
		Timestamp:  snap.Timestamp,
	}
}

func meanClose(candles []domain.Candle) float64 {
	var sum float64
	for _, c := range candles {
		sum += c.Close.InexactFloat64()
	}
	return sum / float64(len(candles))
}
