package indicator

import (
	"fmt"

	"github.com/Samsonboadi/CryptoPro/internal/domain"
)

// SMA is a simple moving average over a fixed window of closes.
// It keeps its own ring buffer with a running sum, so eviction and
// recompute stay O(1) per candle.
type SMA struct {
	period int
	name   string

	window []float64
	head   int
	count  int
	sum    float64
}

// NewSMA returns an SMA indicator builder for the given period.
func NewSMA(period int) Builder {
	if period < 1 {
		panic("indicator: SMA period must be >= 1")
	}
	return func() Indicator {
		return &SMA{
			period: period,
			name:   fmt.Sprintf("sma_%d", period),
			window: make([]float64, period),
		}
	}
}

func (s *SMA) Name() string    { return s.name }
func (s *SMA) MinCandles() int { return s.period }
func (s *SMA) Ready() bool     { return s.count >= s.period }

func (s *SMA) Update(c domain.Candle) {
	close := c.Close.InexactFloat64()
	if s.count == s.period {
		s.sum -= s.window[s.head] // head points at the oldest value when full
	}
	s.window[s.head] = close
	s.sum += close
	s.head = (s.head + 1) % s.period
	if s.count < s.period {
		s.count++
	}
}

func (s *SMA) Values(dst map[string]float64) {
	if !s.Ready() {
		return
	}
	dst[s.name] = s.sum / float64(s.period)
}

// EMA is an exponential moving average. The first value is seeded with the
// SMA of the first period closes, then updated incrementally.
type EMA struct {
	period int
	name   string

	seedSum float64
	count   int
	cur     float64
}

// NewEMA returns an EMA indicator builder for the given period.
func NewEMA(period int) Builder {
	if period < 1 {
		panic("indicator: EMA period must be >= 1")
	}
	return func() Indicator {
		return &EMA{period: period, name: fmt.Sprintf("ema_%d", period)}
	}
}

func (e *EMA) Name() string    { return e.name }
func (e *EMA) MinCandles() int { return e.period }
func (e *EMA) Ready() bool     { return e.count >= e.period }

func (e *EMA) Update(c domain.Candle) {
	e.push(c.Close.InexactFloat64())
}

// push feeds one value; shared with the MACD signal line.
func (e *EMA) push(v float64) {
	e.count++
	switch {
	case e.count < e.period:
		e.seedSum += v
	case e.count == e.period:
		e.cur = (e.seedSum + v) / float64(e.period)
	default:
		alpha := 2.0 / float64(e.period+1)
		e.cur = alpha*v + (1-alpha)*e.cur
	}
}

func (e *EMA) Values(dst map[string]float64) {
	if !e.Ready() {
		return
	}
	dst[e.name] = e.cur
}
