package features

import "math"

func meanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean = sum / float64(len(values))

	sumSquares := 0.0
	for _, v := range values {
		diff := v - mean
		sumSquares += diff * diff
	}
	variance := sumSquares / float64(len(values))
	std = math.Sqrt(variance)

	return mean, std
}

// olsFit fits y against its index and returns slope, intercept, and the
// coefficient of determination. Degenerate inputs fit flat with r2 0.
func olsFit(y []float64) (slope, intercept, r2 float64) {
	n := float64(len(y))
	if n < 2 {
		if n == 1 {
			return 0, y[0], 0
		}
		return 0, 0, 0
	}

	var sumX, sumY, sumXY, sumX2 float64
	for i, v := range y {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumX2 += x * x
	}

	denominator := n*sumX2 - sumX*sumX
	if denominator == 0 {
		return 0, sumY / n, 0
	}

	slope = (n*sumXY - sumX*sumY) / denominator
	intercept = (sumY - slope*sumX) / n

	meanY := sumY / n
	var ssTot, ssRes float64
	for i, v := range y {
		fit := intercept + slope*float64(i)
		ssTot += (v - meanY) * (v - meanY)
		ssRes += (v - fit) * (v - fit)
	}
	if ssTot == 0 {
		// A flat series has no variance to explain.
		return slope, intercept, 0
	}

	r2 = 1 - ssRes/ssTot
	return slope, intercept, clamp01(r2)
}

// detrend subtracts the OLS linear fit from the series.
func detrend(y []float64) []float64 {
	slope, intercept, _ := olsFit(y)
	residuals := make([]float64, len(y))
	for i, v := range y {
		residuals[i] = v - (intercept + slope*float64(i))
	}
	return residuals
}

// spectralStrength returns the share of spectral power concentrated in the
// dominant non-zero-frequency bin of the detrended series, bounded to [0,1].
// A single strong periodic component pushes the ratio toward 1.
func spectralStrength(residuals []float64) float64 {
	n := len(residuals)
	if n < 4 {
		return 0
	}

	var dominant, total float64
	for k := 1; k <= n/2; k++ {
		var re, im float64
		angle := -2 * math.Pi * float64(k) / float64(n)
		for t, v := range residuals {
			re += v * math.Cos(angle*float64(t))
			im += v * math.Sin(angle*float64(t))
		}
		power := re*re + im*im
		total += power
		if power > dominant {
			dominant = power
		}
	}

	if total == 0 {
		return 0
	}
	return clamp01(dominant / total)
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// sanitize clamps NaN and infinities to zero so no degenerate arithmetic
// escapes the feature boundary.
func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
