// Package train searches a cluster-count range for the best clustering of a
// cleaned time-series matrix under a caller-chosen distance metric.
package train

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/seriesclust/trainqueue/internal/prepare"
	"github.com/seriesclust/trainqueue/pkg/models"
)

// ErrTrainingFailed means every candidate cluster count failed to fit.
// Terminal for the job.
var ErrTrainingFailed = errors.New("no candidate cluster count could be fitted")

const (
	DefaultKMin = 2
	DefaultKMax = 15
)

// Result is the winning model of a search.
type Result struct {
	Model      Clusterer
	Scaler     string
	K          int
	Silhouette float64
}

// Search scales the matrix rows, fits K-means for every K in [kMin, kMax],
// scores each fit with a metric-consistent silhouette, and returns the K with
// the strictly highest score. Ties keep the lowest K. Individual fit failures
// are logged and skipped; only a full sweep of failures is an error.
func Search(m *prepare.Matrix, metric string, kMin, kMax int, log *slog.Logger) (*Result, error) {
	if kMin < 2 || kMax < kMin {
		return nil, fmt.Errorf("invalid cluster count range [%d, %d]", kMin, kMax)
	}
	if _, err := NewClusterer(metric); err != nil {
		return nil, err
	}

	scaled := RobustScale(m.Values)

	best := &Result{Scaler: ScalerRobust, K: -1, Silhouette: -1}
	fitted := false

	for k := kMin; k <= kMax; k++ {
		model, err := NewClusterer(metric)
		if err != nil {
			return nil, err
		}
		labels, err := model.Fit(scaled, k)
		if err != nil {
			log.Warn("cluster fit failed", "metric", metric, "k", k, "error", err)
			continue
		}
		fitted = true

		// A degenerate fit (fewer than 2 distinct clusters) scores -1 and
		// cannot win over any real partition.
		score := Silhouette(scaled, labels, distanceFor(model))
		log.Info("candidate scored", "metric", metric, "k", k, "silhouette", score)

		if score > best.Silhouette || best.Model == nil {
			best.Model = model
			best.K = k
			best.Silhouette = score
		}
	}

	if !fitted {
		return nil, ErrTrainingFailed
	}
	return best, nil
}

func distanceFor(c Clusterer) Distance {
	if c.Metric() == models.MetricDTW {
		return DTW
	}
	return Euclidean
}
