package indicator

import (
	"math"
	"testing"
	"time"

	"tradesrv/internal/model"
)

func barsFromCloses(closes []float64) []model.Bar {
	base := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	bars := make([]model.Bar, len(closes))
	for i, c := range closes {
		bars[i] = model.Bar{
			Symbol: "EURUSD",
			Time:   base.Add(time.Duration(i) * time.Minute),
			Open:   c,
			High:   c + 0.001,
			Low:    c - 0.001,
			Close:  c,
			Volume: 100,
		}
	}
	return bars
}

func TestStochasticWarmupAndRange(t *testing.T) {
	closes := []float64{1.0, 1.1, 1.2, 1.3, 1.4, 1.5, 1.4, 1.3, 1.2, 1.1, 1.0, 1.1, 1.2}
	k, d := Stochastic(barsFromCloses(closes), 5, 3, 3)

	if len(k) != len(closes) || len(d) != len(closes) {
		t.Fatalf("output length mismatch: k=%d d=%d", len(k), len(d))
	}
	// Warmup: raw %K needs 5 bars, smoothed %K needs 2 more, %D 2 more.
	for i := 0; i < 6; i++ {
		if !math.IsNaN(k[i]) {
			t.Errorf("k[%d] = %v, want NaN during warmup", i, k[i])
		}
	}
	for i := 8; i < len(closes); i++ {
		if math.IsNaN(k[i]) || k[i] < 0 || k[i] > 100 {
			t.Errorf("k[%d] = %v, want value in [0,100]", i, k[i])
		}
		if math.IsNaN(d[i]) || d[i] < 0 || d[i] > 100 {
			t.Errorf("d[%d] = %v, want value in [0,100]", i, d[i])
		}
	}
}

func TestStochasticExtremes(t *testing.T) {
	// Monotonic rally: close pins the top of every window, %K near 100.
	up := make([]float64, 20)
	for i := range up {
		up[i] = 1.0 + float64(i)*0.01
	}
	k, _ := Stochastic(barsFromCloses(up), 5, 3, 3)
	if last := k[len(k)-1]; last < 80 {
		t.Errorf("rally %%K = %.1f, want > 80", last)
	}

	down := make([]float64, 20)
	for i := range down {
		down[i] = 2.0 - float64(i)*0.01
	}
	k, _ = Stochastic(barsFromCloses(down), 5, 3, 3)
	if last := k[len(k)-1]; last > 20 {
		t.Errorf("selloff %%K = %.1f, want < 20", last)
	}
}

func TestADXRangeAndTrend(t *testing.T) {
	// Strong one-way trend should push ADX high.
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 1.0 + float64(i)*0.01
	}
	bars := barsFromCloses(closes)
	adx := ADX(bars, 7)

	if len(adx) != len(bars) {
		t.Fatalf("ADX length = %d, want %d", len(adx), len(bars))
	}
	for i := 0; i < 13; i++ {
		if !math.IsNaN(adx[i]) {
			t.Errorf("adx[%d] = %v, want NaN before 2*period", i, adx[i])
		}
	}
	last := adx[len(adx)-1]
	if math.IsNaN(last) || last < 40 || last > 100 {
		t.Errorf("trending ADX = %v, want high value in [40,100]", last)
	}
}

func TestADXShortInput(t *testing.T) {
	adx := ADX(barsFromCloses([]float64{1.0, 1.1}), 7)
	for i, v := range adx {
		if !math.IsNaN(v) {
			t.Errorf("adx[%d] = %v, want NaN for short input", i, v)
		}
	}
}

func TestWMA(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	got := WMA(values, 3)

	if !math.IsNaN(got[0]) || !math.IsNaN(got[1]) {
		t.Error("WMA warmup positions should be NaN")
	}
	// WMA(1,2,3) with weights 1,2,3 = (1+4+9)/6.
	want := 14.0 / 6.0
	if math.Abs(got[2]-want) > 1e-9 {
		t.Errorf("WMA[2] = %v, want %v", got[2], want)
	}
	want = (2 + 2*3 + 3*4) / 6.0
	if math.Abs(got[3]-want) > 1e-9 {
		t.Errorf("WMA[3] = %v, want %v", got[3], want)
	}
}

func TestHullMATracksTrend(t *testing.T) {
	values := make([]float64, 60)
	for i := range values {
		values[i] = 1.0 + float64(i)*0.01
	}
	hma := HullMA(values, 21)
	last := hma[len(hma)-1]
	if math.IsNaN(last) {
		t.Fatal("HMA not warmed up on 60 bars")
	}
	// Hull MA hugs a linear trend closely.
	if math.Abs(last-values[len(values)-1]) > 0.05 {
		t.Errorf("HMA %.4f too far from price %.4f", last, values[len(values)-1])
	}
}

func TestHullFlipsOnlyOnSignChange(t *testing.T) {
	// Rise for 60 bars, fall for 60, rise again: exactly two flips.
	values := make([]float64, 180)
	for i := 0; i < 60; i++ {
		values[i] = 1.0 + float64(i)*0.01
	}
	for i := 60; i < 120; i++ {
		values[i] = values[59] - float64(i-59)*0.01
	}
	for i := 120; i < 180; i++ {
		values[i] = values[119] + float64(i-119)*0.01
	}

	flips := HullFlips(values, 21)
	if len(flips) != 2 {
		t.Fatalf("got %d flips, want 2: %+v", len(flips), flips)
	}
	if flips[0].Up {
		t.Error("first flip should be downward")
	}
	if !flips[1].Up {
		t.Error("second flip should be upward")
	}
	if flips[0].Index < 60 || flips[1].Index < 120 {
		t.Errorf("flip indices %d/%d earlier than the turns", flips[0].Index, flips[1].Index)
	}
}

func TestHullFlipsMonotonic(t *testing.T) {
	values := make([]float64, 100)
	for i := range values {
		values[i] = 1.0 + float64(i)*0.01
	}
	if flips := HullFlips(values, 21); len(flips) != 0 {
		t.Errorf("monotonic series produced %d flips, want 0", len(flips))
	}
}

func TestBollinger(t *testing.T) {
	values := make([]float64, 20)
	for i := range values {
		values[i] = 1.1 // flat series: zero width
	}
	bw, ok := Bollinger(values, 20, 3)
	if !ok {
		t.Fatal("Bollinger not ready with exactly period values")
	}
	if bw.Width != 0 || bw.Middle != 1.1 {
		t.Errorf("flat series: width=%v middle=%v, want 0 and 1.1", bw.Width, bw.Middle)
	}

	if _, ok := Bollinger(values[:19], 20, 3); ok {
		t.Error("Bollinger should not be ready below period")
	}

	// Alternating series: known stddev.
	alt := make([]float64, 20)
	for i := range alt {
		if i%2 == 0 {
			alt[i] = 1.0
		} else {
			alt[i] = 2.0
		}
	}
	bw, _ = Bollinger(alt, 20, 3)
	// mean 1.5, stddev 0.5, width = 2*3*0.5 = 3.
	if math.Abs(bw.Width-3.0) > 1e-9 {
		t.Errorf("width = %v, want 3.0", bw.Width)
	}
}
