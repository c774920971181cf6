// Package analysis turns a price series into a technical-analysis verdict:
// RSI, MACD, the SMA triplet and a composite trend call.
//
// Analyze is the only entry point collaborators need. It keeps no state
// between calls and is safe for concurrent use.
package analysis

import "crypto-analyzer/internal/indicator"

// Direction is the composite trend classification.
type Direction string

const (
	Bullish Direction = "bullish"
	Bearish Direction = "bearish"
	Neutral Direction = "neutral"
)

// TrendResult is the composite directional call.
type TrendResult struct {
	Direction Direction `json:"direction"`
	// Strength is the share of bullish evidence in [0,100], rounded to 2 dp.
	Strength float64 `json:"strength"`
	// Description joins Signals with ". ".
	Description string `json:"description"`
	// Signals holds the emitted phrases in evaluation order.
	Signals []string `json:"-"`
}

// AnalysisResult is the full verdict for one series.
type AnalysisResult struct {
	RSI   *float64             `json:"rsi"`
	MACD  indicator.MACDValues `json:"macd"`
	SMA   indicator.SMAValues  `json:"sma"`
	Trend TrendResult          `json:"trend"`
}
