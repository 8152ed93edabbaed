package train

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/seriesclust/trainqueue/pkg/models"
)

const (
	randomSeed    = 42
	maxIterations = 50
	restarts      = 3
)

// Clusterer is a fittable K-means partition of row series. Euclidean and DTW
// variants implement the same capability surface, so nothing downstream
// branches on a metric tag.
type Clusterer interface {
	Fit(series [][]float64, k int) ([]int, error)
	Predict(series [][]float64) []int
	Centroids() [][]float64
	Metric() string
}

// NewClusterer returns a fresh, unfitted Clusterer for the metric.
func NewClusterer(metric string) (Clusterer, error) {
	switch metric {
	case models.MetricEuclidean:
		return &kMeans{metric: metric, dist: Euclidean}, nil
	case models.MetricDTW:
		return &kMeans{metric: metric, dist: DTW}, nil
	default:
		return nil, fmt.Errorf("unsupported metric %q", metric)
	}
}

type kMeans struct {
	metric    string
	dist      Distance
	centroids [][]float64
}

func (km *kMeans) Metric() string { return km.metric }

func (km *kMeans) Centroids() [][]float64 { return km.centroids }

// Fit runs Lloyd iterations from several seeded random initializations and
// keeps the partition with the lowest inertia. The fixed seed makes the
// winning assignment reproducible for identical input.
func (km *kMeans) Fit(series [][]float64, k int) ([]int, error) {
	n := len(series)
	if k < 2 {
		return nil, fmt.Errorf("k must be at least 2, got %d", k)
	}
	if n < k {
		return nil, fmt.Errorf("cannot fit %d clusters to %d series", k, n)
	}

	bestInertia := math.Inf(1)
	var bestCentroids [][]float64
	var bestLabels []int

	for init := 0; init < restarts; init++ {
		rng := rand.New(rand.NewSource(randomSeed + int64(init)))
		centroids := initialCentroids(rng, series, k)
		labels := make([]int, n)

		for iter := 0; iter < maxIterations; iter++ {
			changed := false
			for i, s := range series {
				c := nearest(km.dist, centroids, s)
				if labels[i] != c || iter == 0 {
					labels[i] = c
					changed = true
				}
			}
			km.update(series, labels, centroids, k)
			if !changed {
				break
			}
		}

		inertia := 0.0
		for i, s := range series {
			d := km.dist(centroids[labels[i]], s)
			inertia += d * d
		}
		if inertia < bestInertia {
			bestInertia = inertia
			bestCentroids = centroids
			bestLabels = labels
		}
	}

	km.centroids = bestCentroids
	return bestLabels, nil
}

// Predict assigns each series to its nearest fitted centroid.
func (km *kMeans) Predict(series [][]float64) []int {
	labels := make([]int, len(series))
	for i, s := range series {
		labels[i] = nearest(km.dist, km.centroids, s)
	}
	return labels
}

// update recomputes each centroid as the pointwise barycenter of its members.
// An emptied cluster is reseeded with the series farthest from its centroid.
func (km *kMeans) update(series [][]float64, labels []int, centroids [][]float64, k int) {
	width := len(series[0])
	counts := make([]int, k)
	for c := range centroids {
		centroids[c] = make([]float64, width)
	}
	for i, s := range series {
		c := labels[i]
		counts[c]++
		for j, v := range s {
			centroids[c][j] += v
		}
	}
	for c := 0; c < k; c++ {
		if counts[c] > 0 {
			for j := range centroids[c] {
				centroids[c][j] /= float64(counts[c])
			}
		}
	}
	for c := 0; c < k; c++ {
		if counts[c] == 0 {
			copy(centroids[c], series[farthest(km.dist, series, labels, centroids)])
		}
	}
}

func initialCentroids(rng *rand.Rand, series [][]float64, k int) [][]float64 {
	picks := rng.Perm(len(series))[:k]
	centroids := make([][]float64, k)
	for c, i := range picks {
		centroids[c] = append([]float64(nil), series[i]...)
	}
	return centroids
}

func nearest(dist Distance, centroids [][]float64, s []float64) int {
	best, bestDist := 0, math.Inf(1)
	for c, centroid := range centroids {
		if d := dist(centroid, s); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func farthest(dist Distance, series [][]float64, labels []int, centroids [][]float64) int {
	worst, worstDist := 0, -1.0
	for i, s := range series {
		if d := dist(centroids[labels[i]], s); d > worstDist {
			worst, worstDist = i, d
		}
	}
	return worst
}
