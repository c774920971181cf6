package analysis

import (
	"strings"

	"crypto-analyzer/internal/indicator"
)

// Direction thresholds. Strength exactly at either bound is neutral.
const (
	bullishAbove = 60.0
	bearishBelow = 40.0
)

// ScoreTrend folds the signal evaluators into a direction, strength and
// description. The SMA triplet is recomputed from prices with the same
// function Analyze uses, so both copies always agree.
func ScoreTrend(prices []float64, rsi *float64, macd indicator.MACDValues) TrendResult {
	in := signalInputs{
		prices: prices,
		rsi:    rsi,
		macd:   macd,
		sma:    indicator.SMATriplet(prices),
	}

	var bullish float64
	var total int
	phrases := make([]string, 0, len(evaluators))
	for _, eval := range evaluators {
		s, ok := eval(in)
		if !ok {
			continue
		}
		total++
		bullish += s.weight
		if s.phrase != "" {
			phrases = append(phrases, s.phrase)
		}
	}

	strength := 0.0
	if total > 0 {
		strength = bullish / float64(total) * 100
	}

	return TrendResult{
		Direction:   DirectionFor(strength),
		Strength:    indicator.Round2(strength),
		Description: strings.Join(phrases, ". "),
		Signals:     phrases,
	}
}

// DirectionFor classifies a strength score.
func DirectionFor(strength float64) Direction {
	switch {
	case strength > bullishAbove:
		return Bullish
	case strength < bearishBelow:
		return Bearish
	default:
		return Neutral
	}
}
