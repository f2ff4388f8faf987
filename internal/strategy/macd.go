package strategy

import (
	"fmt"
	"math"

	"github.com/Samsonboadi/CryptoPro/internal/domain"
	"github.com/Samsonboadi/CryptoPro/internal/indicator"
)

// MACDConfig holds the MACD crossover strategy parameters.
type MACDConfig struct {
	Fast   int `yaml:"fast"`
	Slow   int `yaml:"slow"`
	Signal int `yaml:"signal"`
}

// DefaultMACDConfig returns the standard 12/26/9 parameterization.
func DefaultMACDConfig() MACDConfig {
	return MACDConfig{Fast: 12, Slow: 26, Signal: 9}
}

// MACDStrategy trades crossings of the MACD line over its signal line:
// buy on a bullish cross, sell on a bearish one. Confidence grows with the
// histogram relative to the signal line magnitude.
type MACDStrategy struct {
	cfg MACDConfig
}

// NewMACDStrategy creates a MACD crossover strategy.
func NewMACDStrategy(cfg MACDConfig) *MACDStrategy {
	if cfg.Slow <= 0 {
		cfg = DefaultMACDConfig()
	}
	return &MACDStrategy{cfg: cfg}
}

func (s *MACDStrategy) ID() string { return "macd" }

func (s *MACDStrategy) Analyze(snap indicator.Snapshot, candles []domain.Candle) domain.Signal {
	hold := domain.Signal{
		Instrument: snap.Instrument,
		Type:       domain.SignalHold,
		StrategyID: s.ID(),
		Timestamp:  snap.Timestamp,
		Reason:     "no crossover",
	}

	line, ok1 := snap.Values["macd"]
	sigLine, ok2 := snap.Values["macd_signal"]
	prevLine, ok3 := snap.Values["macd_prev"]
	prevSig, ok4 := snap.Values["macd_signal_prev"]
	if !ok1 || !ok2 || !ok3 || !ok4 || len(candles) == 0 {
		hold.Reason = "insufficient data"
		return hold
	}
	price := candles[len(candles)-1].Close

	var (
		sigType domain.SignalType
		reason  string
	)
	switch {
	case prevLine <= prevSig && line > sigLine:
		sigType = domain.SignalBuy
		reason = "MACD crossed above signal line"
	case prevLine >= prevSig && line < sigLine:
		sigType = domain.SignalSell
		reason = "MACD crossed below signal line"
	default:
		return hold
	}

	hist := math.Abs(line - sigLine)
	confidence := math.Min(1, 0.5+hist/math.Max(math.Abs(sigLine), 1e-9))

	return domain.Signal{
		Instrument: snap.Instrument,
		Type:       sigType,
		Confidence: confidence,
		Price:      price,
		Reason:     fmt.Sprintf("%s (hist %.4f)", reason, line-sigLine),
		StrategyID: s.ID(),
		Timestamp:  snap.Timestamp,
	}
}
