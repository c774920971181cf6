package indicator

import "fmt"

// Conventional MACD periods.
const (
	DefaultFastPeriod   = 12
	DefaultSlowPeriod   = 26
	DefaultSignalPeriod = 9
)

// MACDValues is the latest MACD line, signal line and histogram.
// The three fields are either all set or all nil.
type MACDValues struct {
	MACDLine   *float64 `json:"macdLine"`
	SignalLine *float64 `json:"signalLine"`
	Histogram  *float64 `json:"histogram"`
}

// Available reports whether the triple was formed.
func (m MACDValues) Available() bool {
	return m.MACDLine != nil && m.SignalLine != nil
}

// MACD computes fast EMA minus slow EMA, a signal EMA of that spread, and
// their difference. The MACD line exists from index slow-1 onward and the
// signal needs another signal-1 values, so a series shorter than
// slow+signal-1 yields an all-nil result.
//
// Periods must be positive with fast < slow; anything else panics.
func MACD(series []float64, fast, slow, signal int) MACDValues {
	if fast <= 0 || slow <= 0 || signal <= 0 || fast >= slow {
		panic(fmt.Sprintf("indicator: invalid MACD periods fast=%d slow=%d signal=%d", fast, slow, signal))
	}

	slowEMA := EMA(series, slow)
	if slowEMA == nil {
		return MACDValues{}
	}
	fastEMA := EMA(series, fast)

	// fastEMA starts slow-fast positions earlier than slowEMA
	offset := slow - fast
	line := make([]float64, len(slowEMA))
	for i, s := range slowEMA {
		line[i] = fastEMA[i+offset] - s
	}

	signalEMA := EMA(line, signal)
	if signalEMA == nil {
		return MACDValues{}
	}

	m := last(line)
	s := last(signalEMA)
	return MACDValues{
		MACDLine:   rounded(m),
		SignalLine: rounded(s),
		Histogram:  rounded(m - s),
	}
}
