package indicator

import (
	"math"

	"tradesrv/internal/model"
)

// BollingerWidth holds the latest-bar Bollinger band values.
type BollingerWidth struct {
	Width  float64 `json:"width"`
	Middle float64 `json:"sma"`
	Upper  float64 `json:"upper_band"`
	Lower  float64 `json:"lower_band"`
}

// Bollinger computes the latest-bar Bollinger band width at sigma standard
// deviations over the trailing period. Returns ok=false when fewer than
// period values are available. The reference configuration is period 20,
// sigma 3.
func Bollinger(values []float64, period int, sigma float64) (BollingerWidth, bool) {
	if len(values) < period || period < 2 {
		return BollingerWidth{}, false
	}
	window := values[len(values)-period:]

	sum := 0.0
	for _, v := range window {
		sum += v
	}
	mean := sum / float64(period)

	variance := 0.0
	for _, v := range window {
		d := v - mean
		variance += d * d
	}
	std := math.Sqrt(variance / float64(period))

	upper := mean + sigma*std
	lower := mean - sigma*std
	return BollingerWidth{
		Width:  upper - lower,
		Middle: mean,
		Upper:  upper,
		Lower:  lower,
	}, true
}

// CloseSeries extracts the close prices from a bar window.
func CloseSeries(bars []model.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}
