package train

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// ScalerRobust identifies median/IQR scaling in persisted bundles.
const ScalerRobust = "robust"

// RobustScale scales each series independently to (x - median) / IQR.
// Per-row scaling keeps a metropolis from distorting a small town: magnitudes
// differ by orders of magnitude across entities, and outlier months would
// wreck a mean/stddev scaler. A constant series (IQR zero) is only centered.
func RobustScale(values [][]float64) [][]float64 {
	scaled := make([][]float64, len(values))
	for i, row := range values {
		sorted := append([]float64(nil), row...)
		sort.Float64s(sorted)

		median := stat.Quantile(0.5, stat.LinInterp, sorted, nil)
		q1 := stat.Quantile(0.25, stat.LinInterp, sorted, nil)
		q3 := stat.Quantile(0.75, stat.LinInterp, sorted, nil)

		iqr := q3 - q1
		if iqr == 0 {
			iqr = 1
		}

		out := make([]float64, len(row))
		for j, v := range row {
			out[j] = (v - median) / iqr
		}
		scaled[i] = out
	}
	return scaled
}
