package indicator

import "github.com/Samsonboadi/CryptoPro/internal/domain"

// MACD computes the Moving Average Convergence Divergence line, its signal
// line and the histogram, all incrementally from two EMAs.
type MACD struct {
	fast   *EMA
	slow   *EMA
	signal *EMA

	cur        float64 // macd line
	prev       float64
	curSignal  float64
	prevSignal float64
	ready      bool
}

// NewMACD returns a MACD builder with the given fast/slow/signal periods.
func NewMACD(fast, slow, signal int) Builder {
	if fast >= slow {
		panic("indicator: MACD fast period must be less than slow period")
	}
	if signal < 1 {
		panic("indicator: MACD signal period must be >= 1")
	}
	return func() Indicator {
		return &MACD{
			fast:   &EMA{period: fast},
			slow:   &EMA{period: slow},
			signal: &EMA{period: signal},
		}
	}
}

func (m *MACD) Name() string { return "macd" }

// MinCandles: the macd line exists once the slow EMA is warm; the signal
// line needs a further signal-period of macd samples.
func (m *MACD) MinCandles() int { return m.slow.period + m.signal.period - 1 }
func (m *MACD) Ready() bool     { return m.ready }

func (m *MACD) Update(c domain.Candle) {
	m.fast.Update(c)
	m.slow.Update(c)
	if !m.slow.Ready() {
		return
	}

	line := m.fast.cur - m.slow.cur
	m.signal.push(line)
	if !m.signal.Ready() {
		return
	}

	if !m.ready {
		m.prev = line
		m.prevSignal = m.signal.cur
		m.ready = true
	} else {
		m.prev = m.cur
		m.prevSignal = m.curSignal
	}
	m.cur = line
	m.curSignal = m.signal.cur
}

func (m *MACD) Values(dst map[string]float64) {
	if !m.ready {
		return
	}
	dst["macd"] = m.cur
	dst["macd_prev"] = m.prev
	dst["macd_signal"] = m.curSignal
	dst["macd_signal_prev"] = m.prevSignal
	dst["macd_hist"] = m.cur - m.curSignal
}
