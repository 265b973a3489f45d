package segment

import "math"

// Standardizer scales each feature dimension to zero mean and unit variance
// across the population being segmented.
type Standardizer struct {
	Means []float64
	Stds  []float64
}

// FitStandardizer computes per-dimension moments over the population.
// Zero-variance dimensions divide by 1 so constant features map to 0.
func FitStandardizer(points [][]float64) *Standardizer {
	if len(points) == 0 {
		return &Standardizer{}
	}

	dims := len(points[0])
	means := make([]float64, dims)
	stds := make([]float64, dims)

	for _, p := range points {
		for d := 0; d < dims; d++ {
			means[d] += p[d]
		}
	}
	for d := 0; d < dims; d++ {
		means[d] /= float64(len(points))
	}

	for _, p := range points {
		for d := 0; d < dims; d++ {
			diff := p[d] - means[d]
			stds[d] += diff * diff
		}
	}
	for d := 0; d < dims; d++ {
		stds[d] = math.Sqrt(stds[d] / float64(len(points)))
		if stds[d] == 0 {
			stds[d] = 1
		}
	}

	return &Standardizer{Means: means, Stds: stds}
}

// Transform maps points into standardized space.
func (s *Standardizer) Transform(points [][]float64) [][]float64 {
	out := make([][]float64, len(points))
	for i, p := range points {
		row := make([]float64, len(p))
		for d := range p {
			row[d] = (p[d] - s.Means[d]) / s.Stds[d]
		}
		out[i] = row
	}
	return out
}
