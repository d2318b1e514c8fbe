// Package indicator provides stateless technical indicator math over
// fixed-size windows of bars. All functions are pure: they never retain
// state between calls, and they return NaN for positions where the lookback
// window is not yet filled. Callers are responsible for gating on a minimum
// bar count before trusting the values.
package indicator

import (
	"math"

	"tradesrv/internal/model"
)

// Stochastic computes the stochastic oscillator fast line %K (raw %K
// smoothed over kSmooth bars) and slow line %D (SMA of %K over dPeriod)
// for every bar. Values are in [0, 100]; positions before the lookback is
// filled are NaN.
//
// The reference configuration is kPeriod=5, kSmooth=3, dPeriod=3.
func Stochastic(bars []model.Bar, kPeriod, kSmooth, dPeriod int) (k, d []float64) {
	n := len(bars)
	raw := make([]float64, n)
	k = nanSlice(n)
	d = nanSlice(n)

	for i := 0; i < n; i++ {
		if i < kPeriod-1 {
			raw[i] = math.NaN()
			continue
		}
		hh := math.Inf(-1)
		ll := math.Inf(1)
		for j := i - kPeriod + 1; j <= i; j++ {
			if bars[j].High > hh {
				hh = bars[j].High
			}
			if bars[j].Low < ll {
				ll = bars[j].Low
			}
		}
		if hh == ll {
			raw[i] = 50 // flat window — midpoint by convention
			continue
		}
		raw[i] = (bars[i].Close - ll) / (hh - ll) * 100
	}

	smaInto(k, raw, kSmooth)
	smaInto(d, k, dPeriod)
	return k, d
}

// nanSlice returns a slice of n NaNs.
func nanSlice(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}

// smaInto writes the simple moving average of src over period into dst,
// leaving NaN wherever the window contains a NaN.
func smaInto(dst, src []float64, period int) {
	for i := period - 1; i < len(src); i++ {
		sum := 0.0
		ok := true
		for j := i - period + 1; j <= i; j++ {
			if math.IsNaN(src[j]) {
				ok = false
				break
			}
			sum += src[j]
		}
		if ok {
			dst[i] = sum / float64(period)
		}
	}
}
