package indicator

import (
	"math"

	"github.com/Samsonboadi/CryptoPro/internal/domain"
)

// Bollinger computes Bollinger Bands: an SMA middle band with upper/lower
// bands a configurable number of standard deviations away. The standard
// deviation is recomputed over the current window on each update.
type Bollinger struct {
	period int
	stdDev float64

	window []float64
	head   int
	count  int
}

// NewBollinger returns a Bollinger Bands builder.
func NewBollinger(period int, stdDev float64) Builder {
	if period < 2 {
		panic("indicator: Bollinger period must be >= 2")
	}
	return func() Indicator {
		return &Bollinger{
			period: period,
			stdDev: stdDev,
			window: make([]float64, period),
		}
	}
}

func (b *Bollinger) Name() string    { return "bollinger" }
func (b *Bollinger) MinCandles() int { return b.period }
func (b *Bollinger) Ready() bool     { return b.count >= b.period }

func (b *Bollinger) Update(c domain.Candle) {
	b.window[b.head] = c.Close.InexactFloat64()
	b.head = (b.head + 1) % b.period
	if b.count < b.period {
		b.count++
	}
}

func (b *Bollinger) Values(dst map[string]float64) {
	if !b.Ready() {
		return
	}

	var sum float64
	for _, v := range b.window {
		sum += v
	}
	mid := sum / float64(b.period)

	var variance float64
	for _, v := range b.window {
		d := v - mid
		variance += d * d
	}
	sd := math.Sqrt(variance / float64(b.period))

	dst["boll_mid"] = mid
	dst["boll_upper"] = mid + b.stdDev*sd
	dst["boll_lower"] = mid - b.stdDev*sd
}
