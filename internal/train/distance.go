package train

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Distance measures how far apart two equal-length series are.
type Distance func(a, b []float64) float64

// Euclidean is the L2 distance between series treated as plain vectors.
func Euclidean(a, b []float64) float64 {
	return floats.Distance(a, b, 2)
}

// DTW is the dynamic time warping distance: series are aligned with possible
// phase shift before comparison, so two shapes offset in time still match.
func DTW(a, b []float64) float64 {
	n, m := len(a), len(b)
	if n == 0 || m == 0 {
		return math.Inf(1)
	}

	prev := make([]float64, m+1)
	curr := make([]float64, m+1)
	for j := 1; j <= m; j++ {
		prev[j] = math.Inf(1)
	}

	for i := 1; i <= n; i++ {
		curr[0] = math.Inf(1)
		for j := 1; j <= m; j++ {
			d := a[i-1] - b[j-1]
			curr[j] = d*d + math.Min(prev[j], math.Min(curr[j-1], prev[j-1]))
		}
		prev, curr = curr, prev
	}
	return math.Sqrt(prev[m])
}
