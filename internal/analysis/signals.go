package analysis

import (
	"math"

	"crypto-analyzer/internal/indicator"
)

// recentWindow is how many trailing points the price-move signal spans.
const recentWindow = 5

// signalInputs is everything a signal evaluator may read.
type signalInputs struct {
	prices []float64
	rsi    *float64
	macd   indicator.MACDValues
	sma    indicator.SMAValues
}

// signal is one evaluated piece of evidence. An empty phrase contributes
// nothing to the description.
type signal struct {
	weight float64
	phrase string
}

// evaluator returns ok=false when its inputs are unavailable, in which case
// the signal is not counted at all.
type evaluator func(in signalInputs) (s signal, ok bool)

// evaluators run in this order; the description follows it.
var evaluators = []evaluator{
	rsiZone,
	macdCross,
	maAlignment,
	recentMove,
}

func rsiZone(in signalInputs) (signal, bool) {
	if in.rsi == nil {
		return signal{}, false
	}
	rsi := *in.rsi
	switch {
	case rsi > 70:
		return signal{weight: 0, phrase: "Overbought (RSI > 70)"}, true
	case rsi < 30:
		return signal{weight: 1, phrase: "Oversold (RSI < 30)"}, true
	case rsi > 50:
		return signal{weight: 0.5, phrase: "RSI showing upward momentum"}, true
	default:
		// 30 <= RSI <= 50: counted, neutral
		return signal{}, true
	}
}

func macdCross(in signalInputs) (signal, bool) {
	if in.macd.MACDLine == nil || in.macd.SignalLine == nil {
		return signal{}, false
	}
	m, s := *in.macd.MACDLine, *in.macd.SignalLine
	switch {
	case m > s:
		return signal{weight: 1, phrase: "MACD above signal line"}, true
	case m < s:
		return signal{weight: 0, phrase: "MACD below signal line"}, true
	default:
		return signal{}, true
	}
}

func maAlignment(in signalInputs) (signal, bool) {
	if !in.sma.Complete() {
		return signal{}, false
	}
	short, medium, long := *in.sma.Short, *in.sma.Medium, *in.sma.Long
	switch {
	case short > medium && medium > long:
		return signal{weight: 1, phrase: "Bullish MA alignment"}, true
	case short < medium && medium < long:
		return signal{weight: 0, phrase: "Bearish MA alignment"}, true
	default:
		return signal{}, true
	}
}

func recentMove(in signalInputs) (signal, bool) {
	n := len(in.prices)
	if n < recentWindow {
		return signal{}, false
	}
	from, to := in.prices[n-recentWindow], in.prices[n-1]
	change := (to - from) / from * 100

	if change > 0 {
		return signal{weight: 1, phrase: "Price up " + indicator.Fixed2(change) + "% in last 5 days"}, true
	}
	return signal{weight: 0, phrase: "Price down " + indicator.Fixed2(math.Abs(change)) + "% in last 5 days"}, true
}
