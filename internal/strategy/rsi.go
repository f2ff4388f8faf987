package strategy

import (
	"fmt"
	"math"

	"github.com/Samsonboadi/CryptoPro/internal/domain"
	"github.com/Samsonboadi/CryptoPro/internal/indicator"
)

// RSIConfig holds the reference RSI strategy parameters.
type RSIConfig struct {
	Period     int     `yaml:"period"`
	Oversold   float64 `yaml:"oversold"`
	Overbought float64 `yaml:"overbought"`
}

// DefaultRSIConfig returns the classic 14/30/70 parameterization.
func DefaultRSIConfig() RSIConfig {
	return RSIConfig{Period: 14, Oversold: 30, Overbought: 70}
}

// RSIStrategy trades RSI threshold crossings.
//
// It signals on the *crossing* of a threshold between consecutive samples,
// not on the level itself - RSI lingering below the oversold line must not
// fire repeatedly. Confidence scales with how far past the threshold the
// previous sample was, with volume and short-trend confirmation bumps.
type RSIStrategy struct {
	cfg RSIConfig
	key string
}

// NewRSIStrategy creates the reference RSI strategy.
func NewRSIStrategy(cfg RSIConfig) *RSIStrategy {
	if cfg.Period <= 0 {
		cfg = DefaultRSIConfig()
	}
	return &RSIStrategy{cfg: cfg, key: fmt.Sprintf("rsi_%d", cfg.Period)}
}

func (s *RSIStrategy) ID() string { return "rsi" }

func (s *RSIStrategy) Analyze(snap indicator.Snapshot, candles []domain.Candle) domain.Signal {
	hold := domain.Signal{
		Instrument: snap.Instrument,
		Type:       domain.SignalHold,
		StrategyID: s.ID(),
		Timestamp:  snap.Timestamp,
		Reason:     "no clear signal",
	}

	cur, okCur := snap.Values[s.key]
	prev, okPrev := snap.Values[s.key+"_prev"]
	if !okCur || !okPrev || len(candles) == 0 {
		hold.Reason = "insufficient data"
		return hold
	}
	price := candles[len(candles)-1].Close

	var (
		sigType    domain.SignalType
		confidence float64
		reason     string
	)

	switch {
	// Buy: RSI crossed from at/below oversold to above it.
	case prev <= s.cfg.Oversold && cur > s.cfg.Oversold:
		sigType = domain.SignalBuy
		confidence = math.Min(1, (s.cfg.Oversold-math.Min(prev, s.cfg.Oversold-10))/20)
		reason = fmt.Sprintf("RSI crossed above oversold level (%.1f)", cur)

	// Sell: RSI crossed from at/above overbought to below it.
	case prev >= s.cfg.Overbought && cur < s.cfg.Overbought:
		sigType = domain.SignalSell
		confidence = math.Min(1, (math.Max(prev, s.cfg.Overbought+10)-s.cfg.Overbought)/20)
		reason = fmt.Sprintf("RSI crossed below overbought level (%.1f)", cur)

	default:
		return hold
	}

	// Volume confirmation: a burst over the previous candle strengthens
	// the crossing.
	if n := len(candles); n >= 2 {
		prevVol := candles[n-2].Volume
		if prevVol.IsPositive() {
			ratio, _ := candles[n-1].Volume.Div(prevVol).Float64()
			if ratio > 1.2 {
				confidence *= 1.1
				reason += " with volume confirmation"
			}
		}
	}

	// Short-trend confirmation: recent momentum in the signal's direction.
	if trend, ok := recentTrend(candles); ok {
		if (sigType == domain.SignalBuy && trend > 0) ||
			(sigType == domain.SignalSell && trend < 0) {
			confidence *= 1.05
		}
	}

	return domain.Signal{
		Instrument: snap.Instrument,
		Type:       sigType,
		Confidence: math.Min(1, confidence),
		Price:      price,
		Reason:     reason,
		StrategyID: s.ID(),
		Timestamp:  snap.Timestamp,
	}
}

// recentTrend compares the mean close of the last 5 candles with the mean
// of the 5 before them.
func recentTrend(candles []domain.Candle) (float64, bool) {
	if len(candles) < 10 {
		return 0, false
	}
	n := len(candles)
	var recent, earlier float64
	for _, c := range candles[n-5:] {
		recent += c.Close.InexactFloat64()
	}
	for _, c := range candles[n-10 : n-5] {
		earlier += c.Close.InexactFloat64()
	}
	return (recent - earlier) / 5, true
}
