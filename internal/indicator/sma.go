package indicator

import "fmt"

// Fixed SMA windows reported by SMATriplet.
const (
	ShortWindow  = 20
	MediumWindow = 50
	LongWindow   = 200
)

// MovingAverage returns the trailing arithmetic mean of window w.
// out[k] is the mean of series[k : k+w], so out[0] lines up with series[w-1]
// and the result has len(series)-w+1 entries. Positions before that are
// unavailable and are not represented. Returns nil when len(series) < w.
//
// w <= 0 is a programming error and panics.
func MovingAverage(series []float64, w int) []float64 {
	if w <= 0 {
		panic(fmt.Sprintf("indicator: moving average window must be positive, got %d", w))
	}
	if len(series) < w {
		return nil
	}

	out := make([]float64, 0, len(series)-w+1)
	var sum float64
	for i, v := range series {
		sum += v
		if i >= w {
			// Drop the value leaving the window
			sum -= series[i-w]
		}
		if i >= w-1 {
			out = append(out, sum/float64(w))
		}
	}
	return out
}

// LastMovingAverage returns the most recent window-w mean, or false when the
// series is shorter than w.
func LastMovingAverage(series []float64, w int) (float64, bool) {
	ma := MovingAverage(series, w)
	if len(ma) == 0 {
		return 0, false
	}
	return last(ma), true
}

// SMAValues is the short/medium/long simple moving average triple.
// Each field is independently nil when the series does not reach its window.
type SMAValues struct {
	Short  *float64 `json:"short"`
	Medium *float64 `json:"medium"`
	Long   *float64 `json:"long"`
}

// SMATriplet computes the 20/50/200 moving averages, rounded to two decimals.
func SMATriplet(series []float64) SMAValues {
	return SMAValues{
		Short:  smaAt(series, ShortWindow),
		Medium: smaAt(series, MediumWindow),
		Long:   smaAt(series, LongWindow),
	}
}

func smaAt(series []float64, w int) *float64 {
	v, ok := LastMovingAverage(series, w)
	if !ok {
		return nil
	}
	return rounded(v)
}

// Complete reports whether all three averages are available.
func (s SMAValues) Complete() bool {
	return s.Short != nil && s.Medium != nil && s.Long != nil
}
