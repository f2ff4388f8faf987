package indicator

import (
	"fmt"

	"github.com/Samsonboadi/CryptoPro/internal/domain"
)

// RSI computes the Relative Strength Index with Wilder smoothing.
// The first average is a simple mean over the first period deltas; every
// subsequent update blends incrementally, so the hotpath is O(1).
type RSI struct {
	period int
	name   string

	prevClose float64
	seeded    bool
	deltas    int
	gainSum   float64
	lossSum   float64
	avgGain   float64
	avgLoss   float64

	cur   float64
	prev  float64
	ready bool
}

// NewRSI returns an RSI indicator builder for the given period.
func NewRSI(period int) Builder {
	if period < 2 {
		panic("indicator: RSI period must be >= 2")
	}
	return func() Indicator {
		return &RSI{period: period, name: fmt.Sprintf("rsi_%d", period)}
	}
}

func (r *RSI) Name() string    { return r.name }
func (r *RSI) MinCandles() int { return r.period + 1 }
func (r *RSI) Ready() bool     { return r.ready }

func (r *RSI) Update(c domain.Candle) {
	close := c.Close.InexactFloat64()
	if !r.seeded {
		r.prevClose = close
		r.seeded = true
		return
	}

	delta := close - r.prevClose
	r.prevClose = close

	var gain, loss float64
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}

	r.deltas++
	switch {
	case r.deltas < r.period:
		r.gainSum += gain
		r.lossSum += loss
		return
	case r.deltas == r.period:
		r.avgGain = (r.gainSum + gain) / float64(r.period)
		r.avgLoss = (r.lossSum + loss) / float64(r.period)
	default:
		n := float64(r.period)
		r.avgGain = (r.avgGain*(n-1) + gain) / n
		r.avgLoss = (r.avgLoss*(n-1) + loss) / n
	}

	value := 100.0
	if r.avgLoss > 0 {
		rs := r.avgGain / r.avgLoss
		value = 100.0 - 100.0/(1.0+rs)
	}

	if !r.ready {
		// No previous value exists yet; seed it so crossing checks
		// see "no movement" rather than a spurious cross from zero.
		r.prev = value
		r.ready = true
	} else {
		r.prev = r.cur
	}
	r.cur = value
}

func (r *RSI) Values(dst map[string]float64) {
	if !r.ready {
		return
	}
	dst[r.name] = r.cur
	dst[r.name+"_prev"] = r.prev
}
