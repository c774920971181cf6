package indicator

import (
	"math"
	"testing"

	"github.com/markcheno/go-talib"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

func assertPtr(t *testing.T, label string, got *float64, want float64) {
	t.Helper()
	if got == nil {
		t.Errorf("%s: got nil, want %.2f", label, want)
		return
	}
	assertClose(t, label, *got, want, 0.0001)
}

func ascending(n int, start float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)
	}
	return out
}

// zigzag produces a deterministic series with both gains and losses.
func zigzag(n int) []float64 {
	out := make([]float64, n)
	p := 100.0
	for i := range out {
		switch i % 4 {
		case 0:
			p += 1.5
		case 1:
			p -= 0.75
		case 2:
			p += 0.4
		case 3:
			p -= 1.1
		}
		out[i] = p + float64(i)*0.05
	}
	return out
}

// ────────────────────────────────────────────────────────────
// Moving-average kernel
// ────────────────────────────────────────────────────────────

func TestMovingAverage_Period3(t *testing.T) {
	// (100+102+104)/3 = 102, (102+104+103)/3 = 103, (104+103+105)/3 = 104
	got := MovingAverage([]float64{100, 102, 104, 103, 105}, 3)
	want := []float64{102, 103, 104}
	if len(got) != len(want) {
		t.Fatalf("len: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		assertClose(t, "SMA(3)", got[i], want[i], 0.0001)
	}
}

func TestMovingAverage_ShortSeries(t *testing.T) {
	if got := MovingAverage([]float64{1, 2}, 3); got != nil {
		t.Errorf("expected nil for short series, got %v", got)
	}
	if _, ok := LastMovingAverage([]float64{1, 2}, 3); ok {
		t.Error("expected LastMovingAverage to report unavailable")
	}
}

func TestMovingAverage_ExactWindow(t *testing.T) {
	v, ok := LastMovingAverage([]float64{10, 11, 12, 13, 14}, 5)
	if !ok {
		t.Fatal("expected value at exact window length")
	}
	assertClose(t, "SMA(5)", v, 12.0, 0.0001)
}

func TestMovingAverage_PanicsOnBadWindow(t *testing.T) {
	for _, w := range []int{0, -3} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("window %d: expected panic", w)
				}
			}()
			MovingAverage([]float64{1, 2, 3}, w)
		}()
	}
}

func TestMovingAverage_DoesNotMutateInput(t *testing.T) {
	series := []float64{5, 6, 7, 8}
	MovingAverage(series, 2)
	for i, want := range []float64{5, 6, 7, 8} {
		if series[i] != want {
			t.Fatalf("series[%d] mutated: got %v", i, series[i])
		}
	}
}

func TestMovingAverage_MatchesTalib(t *testing.T) {
	series := zigzag(120)
	for _, w := range []int{5, 20, 50} {
		ours, _ := LastMovingAverage(series, w)
		ref := talib.Sma(series, w)
		assertClose(t, "SMA vs talib", ours, ref[len(ref)-1], 1e-9)
	}
}

// ────────────────────────────────────────────────────────────
// Exponential smoothing kernel
// ────────────────────────────────────────────────────────────

func TestEMA_Period3(t *testing.T) {
	// multiplier = 2/(3+1) = 0.5
	// seed = (100+102+104)/3 = 102
	// 103*0.5 + 102*0.5 = 102.5
	// 105*0.5 + 102.5*0.5 = 103.75
	got := EMA([]float64{100, 102, 104, 103, 105}, 3)
	want := []float64{102, 102.5, 103.75}
	if len(got) != len(want) {
		t.Fatalf("len: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		assertClose(t, "EMA(3)", got[i], want[i], 0.0001)
	}
}

func TestEMA_Period5(t *testing.T) {
	prices := []float64{44, 44.25, 44.50, 43.75, 44.50, 44.25, 44.00}
	mult := 2.0 / 6.0
	seed := (44.0 + 44.25 + 44.50 + 43.75 + 44.50) / 5.0
	e6 := 44.25*mult + seed*(1-mult)
	e7 := 44.00*mult + e6*(1-mult)

	got := EMA(prices, 5)
	if len(got) != 3 {
		t.Fatalf("len: got %d, want 3", len(got))
	}
	assertClose(t, "EMA(5) seed", got[0], seed, 1e-9)
	assertClose(t, "EMA(5) candle 6", got[1], e6, 1e-9)
	assertClose(t, "EMA(5) candle 7", got[2], e7, 1e-9)
}

func TestWilder_Period3(t *testing.T) {
	// seed = 102, then (102*2+103)/3 = 102.3333, (102.3333*2+105)/3 = 103.2222
	got := Wilder([]float64{100, 102, 104, 103, 105}, 3)
	want := []float64{102, 102.3333, 103.2222}
	for i := range want {
		assertClose(t, "Wilder(3)", got[i], want[i], 0.0001)
	}
}

func TestSmooth_ShortSeries(t *testing.T) {
	if got := EMA([]float64{1, 2}, 3); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

func TestSmooth_PanicsOnBadPeriod(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for period 0")
		}
	}()
	Smooth([]float64{1, 2, 3}, 0, 0.5)
}

// ────────────────────────────────────────────────────────────
// RSI
// ────────────────────────────────────────────────────────────

func TestRSI_HandCalculated(t *testing.T) {
	// deltas: +1 -1 +2 -1
	// avgGain: seed (1+0+2)/3 = 1, then (1*2+0)/3 = 2/3
	// avgLoss: seed (0+1+0)/3 = 1/3, then (1/3*2+1)/3 = 5/9
	// RS = 1.2 → RSI = 100 - 100/2.2 = 54.5454...
	got := RSI([]float64{10, 11, 10, 12, 11}, 3)
	assertPtr(t, "RSI(3)", got, 54.55)
}

func TestRSI_WindowBoundary(t *testing.T) {
	if got := RSI(ascending(14, 100), DefaultRSIPeriod); got != nil {
		t.Errorf("14 points: expected nil RSI, got %v", *got)
	}
	if got := RSI(ascending(15, 100), DefaultRSIPeriod); got == nil {
		t.Error("15 points: expected RSI to be available")
	}
}

func TestRSI_AllGains(t *testing.T) {
	assertPtr(t, "RSI ascending", RSI(ascending(20, 100), DefaultRSIPeriod), 100)
}

func TestRSI_FlatSeriesIs100(t *testing.T) {
	flat := make([]float64, 30)
	for i := range flat {
		flat[i] = 42
	}
	assertPtr(t, "RSI flat", RSI(flat, DefaultRSIPeriod), 100)
}

func TestRSI_AllLosses(t *testing.T) {
	desc := make([]float64, 20)
	for i := range desc {
		desc[i] = 200 - float64(i)
	}
	assertPtr(t, "RSI descending", RSI(desc, DefaultRSIPeriod), 0)
}

func TestRSI_MatchesTalib(t *testing.T) {
	series := zigzag(80)
	ours := RSI(series, DefaultRSIPeriod)
	if ours == nil {
		t.Fatal("expected RSI")
	}
	ref := talib.Rsi(series, DefaultRSIPeriod)
	assertClose(t, "RSI vs talib", *ours, ref[len(ref)-1], 0.011)
}

// ────────────────────────────────────────────────────────────
// MACD
// ────────────────────────────────────────────────────────────

func TestMACD_AllOrNothing(t *testing.T) {
	for _, n := range []int{14, 25, 26, 33} {
		m := MACD(ascending(n, 100), DefaultFastPeriod, DefaultSlowPeriod, DefaultSignalPeriod)
		if m.MACDLine != nil || m.SignalLine != nil || m.Histogram != nil {
			t.Errorf("n=%d: expected all-nil MACD, got %+v", n, m)
		}
		if m.Available() {
			t.Errorf("n=%d: Available() should be false", n)
		}
	}

	m := MACD(ascending(34, 100), DefaultFastPeriod, DefaultSlowPeriod, DefaultSignalPeriod)
	if m.MACDLine == nil || m.SignalLine == nil || m.Histogram == nil {
		t.Fatalf("n=34: expected full MACD triple, got %+v", m)
	}
}

func TestMACD_LinearSeries(t *testing.T) {
	// An SMA-seeded EMA of a linear series lags it by slope*(p-1)/2 exactly,
	// so MACD = (26-1)/2 - (12-1)/2 = 7 and the signal of a constant is 7.
	m := MACD(ascending(60, 100), DefaultFastPeriod, DefaultSlowPeriod, DefaultSignalPeriod)
	assertPtr(t, "macdLine", m.MACDLine, 7)
	assertPtr(t, "signalLine", m.SignalLine, 7)
	assertPtr(t, "histogram", m.Histogram, 0)
}

func TestMACD_FlatSeries(t *testing.T) {
	flat := make([]float64, 40)
	for i := range flat {
		flat[i] = 250
	}
	m := MACD(flat, DefaultFastPeriod, DefaultSlowPeriod, DefaultSignalPeriod)
	assertPtr(t, "macdLine", m.MACDLine, 0)
	assertPtr(t, "histogram", m.Histogram, 0)
}

func TestMACD_PanicsOnInvertedPeriods(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic when fast >= slow")
		}
	}()
	MACD(ascending(60, 1), 26, 12, 9)
}

// ────────────────────────────────────────────────────────────
// SMA triplet
// ────────────────────────────────────────────────────────────

func TestSMATriplet_IndependentWindows(t *testing.T) {
	cases := []struct {
		n                   int
		short, medium, long bool
	}{
		{19, false, false, false},
		{20, true, false, false},
		{50, true, true, false},
		{199, true, true, false},
		{200, true, true, true},
	}
	for _, c := range cases {
		s := SMATriplet(ascending(c.n, 1))
		if (s.Short != nil) != c.short || (s.Medium != nil) != c.medium || (s.Long != nil) != c.long {
			t.Errorf("n=%d: got short=%v medium=%v long=%v", c.n, s.Short != nil, s.Medium != nil, s.Long != nil)
		}
		if s.Complete() != (c.short && c.medium && c.long) {
			t.Errorf("n=%d: Complete() mismatch", c.n)
		}
	}
}

func TestSMATriplet_Values(t *testing.T) {
	// 100..119 → mean 109.5
	s := SMATriplet(ascending(20, 100))
	assertPtr(t, "short", s.Short, 109.5)
}

func TestRound2(t *testing.T) {
	cases := map[float64]float64{
		54.545454: 54.55,
		-3.14159:  -3.14,
		100:       100,
		0.004:     0,
		12.345:    12.35, // stored just above the half
		1.005:     1.00,  // stored as 1.00499999...
		2.675:     2.67,
		1.345:     1.34,
		0.285:     0.28,
		0.125:     0.13, // exact half rounds away from zero
		-1.005:    -1.00,
		-0.125:    -0.13,
	}
	for in, want := range cases {
		if got := Round2(in); got != want {
			t.Errorf("Round2(%v): got %v, want %v", in, got, want)
		}
	}
	fixed := map[float64]string{
		1.5:   "1.50",
		1.005: "1.00",
		2.675: "2.67",
		0.285: "0.28",
		0.125: "0.13",
		-2.5:  "-2.50",
	}
	for in, want := range fixed {
		if got := Fixed2(in); got != want {
			t.Errorf("Fixed2(%v): got %q, want %q", in, got, want)
		}
	}
}
