package indicator

import "math"

// WMA computes the linearly weighted moving average of values over length,
// weighting the most recent value highest. Positions before the window is
// filled are NaN.
func WMA(values []float64, length int) []float64 {
	n := len(values)
	out := nanSlice(n)
	if length < 1 {
		return out
	}
	denom := float64(length*(length+1)) / 2
	for i := length - 1; i < n; i++ {
		sum := 0.0
		ok := true
		for j := 0; j < length; j++ {
			v := values[i-length+1+j]
			if math.IsNaN(v) {
				ok = false
				break
			}
			sum += v * float64(j+1)
		}
		if ok {
			out[i] = sum / denom
		}
	}
	return out
}

// HullMA computes the Hull moving average:
// WMA(2*WMA(n/2) - WMA(n), sqrt(n)). The reference period is 21.
func HullMA(values []float64, period int) []float64 {
	half := WMA(values, period/2)
	full := WMA(values, period)
	raw := make([]float64, len(values))
	for i := range raw {
		raw[i] = 2*half[i] - full[i]
	}
	return WMA(raw, int(math.Sqrt(float64(period))))
}

// Flip marks a bar where the 2-bar HMA trend direction changed sign.
type Flip struct {
	Index int
	Up    bool // true: trend turned upward (BUY side)
	Value float64
}

// HullFlips runs the Hull MA over values and returns a flip exactly on each
// bar where the trend direction (HMA[i-2] vs HMA[i-1]) changes sign. Bars
// where the trend merely holds produce nothing.
func HullFlips(values []float64, period int) []Flip {
	hma := HullMA(values, period)
	var flips []Flip
	prevUp := 0 // 0 = unknown, 1 = up, -1 = down
	for i := 2; i < len(hma); i++ {
		a, b := hma[i-2], hma[i-1]
		if math.IsNaN(a) || math.IsNaN(b) || a == b {
			continue
		}
		cur := -1
		if b > a {
			cur = 1
		}
		if prevUp != 0 && cur != prevUp {
			flips = append(flips, Flip{Index: i, Up: cur == 1, Value: hma[i-1]})
		}
		prevUp = cur
	}
	return flips
}
