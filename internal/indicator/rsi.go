package indicator

// DefaultRSIPeriod is the conventional RSI lookback.
const DefaultRSIPeriod = 14

// RSI calculates the Relative Strength Index at the most recent step using
// Wilder's smoothing of per-step gains and losses.
//
// It needs period+1 prices (period deltas) and returns nil otherwise. When the
// average loss is zero the RSI is 100. The result is rounded to two decimals.
func RSI(series []float64, period int) *float64 {
	if len(series) < period+1 {
		return nil
	}

	gains := make([]float64, len(series)-1)
	losses := make([]float64, len(series)-1)
	for i := 1; i < len(series); i++ {
		delta := series[i] - series[i-1]
		if delta > 0 {
			gains[i-1] = delta
		} else {
			losses[i-1] = -delta
		}
	}

	avgGain := last(Wilder(gains, period))
	avgLoss := last(Wilder(losses, period))

	if avgLoss == 0 {
		return rounded(100.0)
	}
	rs := avgGain / avgLoss
	return rounded(100.0 - (100.0 / (1.0 + rs)))
}
