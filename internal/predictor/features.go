package predictor

import (
	"math"

	"tradesrv/internal/model"
)

// featureWarmup is the number of leading bars consumed by the deepest
// lookback below (rolling window 20).
const featureWarmup = 20

// numFeatures is the length of the vector produced by extractFeatures:
// three horizon returns, five bar-geometry ratios, three lagged returns,
// and mean/std pairs for the 5, 10 and 20 bar windows.
const numFeatures = 17

// extractFeatures builds the feature vector for bars[i]. All features are
// relative quantities so the model transfers across price levels. i must be
// at least featureWarmup.
func extractFeatures(bars []model.Bar, i int) []float64 {
	c := bars[i].Close
	f := make([]float64, 0, numFeatures)

	// Returns over several horizons.
	f = append(f,
		pctChange(bars, i, 1),
		pctChange(bars, i, 5),
		pctChange(bars, i, 10),
	)

	// Bar geometry.
	f = append(f,
		(bars[i].High-bars[i].Low)/c,
		(bars[i].Open-bars[i].Close)/c,
		math.Abs(bars[i].Open-bars[i].Close)/c,
		(bars[i].High-math.Max(bars[i].Open, bars[i].Close))/c,
		(math.Min(bars[i].Open, bars[i].Close)-bars[i].Low)/c,
	)

	// Lagged returns.
	f = append(f,
		pctChange(bars, i-1, 1),
		pctChange(bars, i-2, 1),
		pctChange(bars, i-3, 1),
	)

	// Rolling close statistics, expressed relative to the current close.
	for _, w := range []int{5, 10, 20} {
		mean, std := rollingCloseStats(bars, i, w)
		f = append(f, mean/c-1, std/c)
	}
	return f
}

// pctChange returns the fractional close change from lag bars back to i.
func pctChange(bars []model.Bar, i, lag int) float64 {
	if i-lag < 0 {
		return 0
	}
	prev := bars[i-lag].Close
	if prev == 0 {
		return 0
	}
	return (bars[i].Close - prev) / prev
}

// rollingCloseStats returns the mean and population stddev of the w closes
// ending at index i.
func rollingCloseStats(bars []model.Bar, i, w int) (mean, std float64) {
	if i-w+1 < 0 {
		return bars[i].Close, 0
	}
	sum := 0.0
	for j := i - w + 1; j <= i; j++ {
		sum += bars[j].Close
	}
	mean = sum / float64(w)
	variance := 0.0
	for j := i - w + 1; j <= i; j++ {
		d := bars[j].Close - mean
		variance += d * d
	}
	return mean, math.Sqrt(variance / float64(w))
}
