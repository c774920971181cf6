package analysis

import (
	"math"

	"crypto-analyzer/internal/indicator"
)

// MinDataPoints is the shortest series Analyze accepts.
const MinDataPoints = 14

// Analyze runs RSI, MACD, SMA and trend scoring over prices (oldest first).
//
// A series shorter than MinDataPoints fails with *InsufficientDataError and a
// non-positive or non-finite entry fails with *InvalidPriceError; both checks
// run before any indicator. Individual indicators that cannot be formed are
// nil in the result, not errors. prices is never modified.
func Analyze(prices []float64) (*AnalysisResult, error) {
	if len(prices) < MinDataPoints {
		return nil, &InsufficientDataError{Have: len(prices), Need: MinDataPoints}
	}
	for i, p := range prices {
		if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
			return nil, &InvalidPriceError{Index: i, Value: p}
		}
	}

	rsi := indicator.RSI(prices, indicator.DefaultRSIPeriod)
	macd := indicator.MACD(prices, indicator.DefaultFastPeriod, indicator.DefaultSlowPeriod, indicator.DefaultSignalPeriod)
	sma := indicator.SMATriplet(prices)
	trend := ScoreTrend(prices, rsi, macd)

	return &AnalysisResult{
		RSI:   rsi,
		MACD:  macd,
		SMA:   sma,
		Trend: trend,
	}, nil
}
