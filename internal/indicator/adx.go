package indicator

import (
	"math"

	"tradesrv/internal/model"
)

// ADX computes the Average Directional Index using Wilder's smoothing.
// Returns one value per bar in [0, 100]; positions before 2*period bars are
// NaN. The reference configuration uses period 7.
func ADX(bars []model.Bar, period int) []float64 {
	n := len(bars)
	out := nanSlice(n)
	if n < 2 || period < 1 {
		return out
	}

	tr := make([]float64, n)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		h, l, pc := bars[i].High, bars[i].Low, bars[i-1].Close
		tr[i] = math.Max(h-l, math.Max(math.Abs(h-pc), math.Abs(l-pc)))

		up := h - bars[i-1].High
		down := bars[i-1].Low - l
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}

	if n < period+1 {
		return out
	}

	// Wilder seed: plain sums over the first period deltas.
	var sTR, sPlus, sMinus float64
	for i := 1; i <= period; i++ {
		sTR += tr[i]
		sPlus += plusDM[i]
		sMinus += minusDM[i]
	}

	dx := nanSlice(n)
	p := float64(period)
	for i := period; i < n; i++ {
		if i > period {
			sTR = sTR - sTR/p + tr[i]
			sPlus = sPlus - sPlus/p + plusDM[i]
			sMinus = sMinus - sMinus/p + minusDM[i]
		}
		if sTR == 0 {
			continue
		}
		plusDI := sPlus / sTR * 100
		minusDI := sMinus / sTR * 100
		if plusDI+minusDI == 0 {
			continue
		}
		dx[i] = math.Abs(plusDI-minusDI) / (plusDI + minusDI) * 100
	}

	// ADX seed: average of the first period DX values, then Wilder smoothing.
	seedEnd := 2 * period
	if seedEnd > n {
		return out
	}
	var sum float64
	count := 0
	for i := period; i < seedEnd; i++ {
		if !math.IsNaN(dx[i]) {
			sum += dx[i]
			count++
		}
	}
	if count == 0 {
		return out
	}
	adx := sum / float64(count)
	out[seedEnd-1] = adx
	for i := seedEnd; i < n; i++ {
		v := dx[i]
		if math.IsNaN(v) {
			v = 0
		}
		adx = (adx*(p-1) + v) / p
		out[i] = adx
	}
	return out
}
