package train

import "math"

// Silhouette computes the mean silhouette coefficient of a labeled partition
// using the supplied distance. Scoring must use the same metric the model was
// trained with, or selection across K becomes incoherent. Returns -1 for a
// degenerate partition with fewer than 2 distinct clusters.
func Silhouette(series [][]float64, labels []int, dist Distance) float64 {
	n := len(series)
	if n < 2 || countClusters(labels) < 2 {
		return -1
	}

	// Pairwise distances once; DTW is too expensive to recompute per term.
	d := make([][]float64, n)
	for i := range d {
		d[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			v := dist(series[i], series[j])
			d[i][j], d[j][i] = v, v
		}
	}

	clusterSize := make(map[int]int)
	for _, l := range labels {
		clusterSize[l]++
	}

	total := 0.0
	for i := 0; i < n; i++ {
		own := labels[i]
		if clusterSize[own] == 1 {
			// Singleton: silhouette defined as 0.
			continue
		}

		sums := make(map[int]float64)
		for j := 0; j < n; j++ {
			if j != i {
				sums[labels[j]] += d[i][j]
			}
		}

		a := sums[own] / float64(clusterSize[own]-1)
		b := math.Inf(1)
		for l, sum := range sums {
			if l == own {
				continue
			}
			if mean := sum / float64(clusterSize[l]); mean < b {
				b = mean
			}
		}

		if max := math.Max(a, b); max > 0 {
			total += (b - a) / max
		}
	}
	return total / float64(n)
}

func countClusters(labels []int) int {
	seen := make(map[int]struct{})
	for _, l := range labels {
		seen[l] = struct{}{}
	}
	return len(seen)
}
