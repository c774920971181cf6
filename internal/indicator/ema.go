package indicator

import "fmt"

// Smooth applies exponential smoothing with constant alpha over period p.
//
// The first output is the simple average of series[:p] (SMA seed); every
// following value is x*alpha + prev*(1-alpha). out[0] lines up with
// series[p-1], so the result has len(series)-p+1 entries. Returns nil when
// fewer than p values exist.
//
// p <= 0 is a programming error and panics.
func Smooth(series []float64, p int, alpha float64) []float64 {
	if p <= 0 {
		panic(fmt.Sprintf("indicator: smoothing period must be positive, got %d", p))
	}
	if len(series) < p {
		return nil
	}

	out := make([]float64, 0, len(series)-p+1)
	var sum float64
	for _, v := range series[:p] {
		sum += v
	}
	current := sum / float64(p)
	out = append(out, current)

	for _, v := range series[p:] {
		current = (v * alpha) + (current * (1 - alpha))
		out = append(out, current)
	}
	return out
}

// EMA is the exponential moving average with multiplier 2/(p+1).
func EMA(series []float64, p int) []float64 {
	return Smooth(series, p, 2.0/float64(p+1))
}

// Wilder is Wilder's smoothing (multiplier 1/p), used for RSI gain/loss averages.
func Wilder(series []float64, p int) []float64 {
	return Smooth(series, p, 1.0/float64(p))
}
