// Package prepare turns a raw long-form extract into a cleaned entity × month
// matrix suitable for clustering, or fails with a precise reason.
package prepare

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/seriesclust/trainqueue/internal/extract"
	"github.com/seriesclust/trainqueue/pkg/models"
)

// ErrInsufficientData means the extract was empty or cleaning left fewer than
// 2 usable entities or time buckets. Terminal for the job.
var ErrInsufficientData = errors.New("insufficient data")

// DefaultZeroThreshold drops only fully-zero series.
const DefaultZeroThreshold = 1.0

// Matrix is a cleaned entity × time-bucket matrix. Buckets are chronological;
// values contain no NaN or Inf.
type Matrix struct {
	Entities []string
	Buckets  []string
	Values   [][]float64
}

// Build pivots rows into a matrix and applies the cleaning pipeline:
// all-NaN columns and rows are dropped, remaining NaN/Inf cells become zero,
// and rows whose zero fraction meets zeroThreshold are removed.
func Build(rows []extract.Row, zeroThreshold float64) (*Matrix, *models.CleaningStats, error) {
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("%w: extract returned no rows", ErrInsufficientData)
	}
	if zeroThreshold <= 0 || zeroThreshold > 1 {
		zeroThreshold = DefaultZeroThreshold
	}

	entities, buckets, values, present := pivot(rows)

	stats := &models.CleaningStats{
		OriginalRows:        len(entities),
		OriginalCols:        len(buckets),
		RemovedEntityLabels: []string{},
	}
	for _, r := range rows {
		if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
			stats.HadInvalidValues = true
			break
		}
	}

	// Drop time buckets that are NaN for every entity.
	keepCols := make([]int, 0, len(buckets))
	for j := range buckets {
		allNaN := true
		for i := range entities {
			if !(present[i][j] && math.IsNaN(values[i][j])) {
				allNaN = false
				break
			}
		}
		if !allNaN {
			keepCols = append(keepCols, j)
		}
	}
	buckets, values, present = selectCols(buckets, values, present, keepCols)

	// Drop entities that are NaN in every remaining bucket.
	keepRows := make([]int, 0, len(entities))
	for i := range entities {
		allNaN := len(buckets) > 0
		for j := range buckets {
			if !(present[i][j] && math.IsNaN(values[i][j])) {
				allNaN = false
				break
			}
		}
		if allNaN {
			stats.RemovedForNaN++
			stats.RemovedEntityLabels = append(stats.RemovedEntityLabels, entities[i])
			continue
		}
		keepRows = append(keepRows, i)
	}
	entities, values = selectRows(entities, values, keepRows)

	if len(entities) == 0 || len(buckets) == 0 {
		return nil, nil, fmt.Errorf("%w: cleaning removed every row or column", ErrInsufficientData)
	}

	// Zero out any surviving NaN/Inf cell.
	for i := range values {
		for j := range values[i] {
			if math.IsNaN(values[i][j]) || math.IsInf(values[i][j], 0) {
				values[i][j] = 0
				stats.HadInvalidValues = true
			}
		}
	}

	// Drop series that are zero in too many buckets.
	keepRows = keepRows[:0]
	for i := range entities {
		zeros := 0
		for j := range values[i] {
			if values[i][j] == 0 {
				zeros++
			}
		}
		if float64(zeros)/float64(len(values[i])) >= zeroThreshold {
			stats.RemovedForZeroThreshold++
			stats.RemovedEntityLabels = append(stats.RemovedEntityLabels, entities[i])
			continue
		}
		keepRows = append(keepRows, i)
	}
	entities, values = selectRows(entities, values, keepRows)

	if len(entities) < 2 || len(buckets) < 2 {
		return nil, nil, fmt.Errorf("%w: %d entities and %d time buckets remain after cleaning (need at least 2 of each)",
			ErrInsufficientData, len(entities), len(buckets))
	}

	return &Matrix{Entities: entities, Buckets: buckets, Values: values}, stats, nil
}

// pivot builds the dense matrix. Absent (entity, bucket) combinations are
// filled with zero; only explicitly reported cells are marked present, so an
// explicit NaN is distinguishable from a gap.
func pivot(rows []extract.Row) ([]string, []string, [][]float64, [][]bool) {
	entitySet := make(map[string]struct{})
	bucketSet := make(map[string]struct{})
	for _, r := range rows {
		entitySet[r.Entity] = struct{}{}
		bucketSet[r.Bucket] = struct{}{}
	}

	entities := make([]string, 0, len(entitySet))
	for e := range entitySet {
		entities = append(entities, e)
	}
	sort.Strings(entities)

	// YYYY-MM sorts lexicographically in chronological order.
	buckets := make([]string, 0, len(bucketSet))
	for b := range bucketSet {
		buckets = append(buckets, b)
	}
	sort.Strings(buckets)

	rowIdx := make(map[string]int, len(entities))
	for i, e := range entities {
		rowIdx[e] = i
	}
	colIdx := make(map[string]int, len(buckets))
	for j, b := range buckets {
		colIdx[b] = j
	}

	values := make([][]float64, len(entities))
	present := make([][]bool, len(entities))
	for i := range values {
		values[i] = make([]float64, len(buckets))
		present[i] = make([]bool, len(buckets))
	}
	for _, r := range rows {
		i, j := rowIdx[r.Entity], colIdx[r.Bucket]
		values[i][j] = r.Value
		present[i][j] = true
	}
	return entities, buckets, values, present
}

func selectCols(buckets []string, values [][]float64, present [][]bool, keep []int) ([]string, [][]float64, [][]bool) {
	if len(keep) == len(buckets) {
		return buckets, values, present
	}
	newBuckets := make([]string, len(keep))
	for n, j := range keep {
		newBuckets[n] = buckets[j]
	}
	for i := range values {
		newVals := make([]float64, len(keep))
		newPres := make([]bool, len(keep))
		for n, j := range keep {
			newVals[n] = values[i][j]
			newPres[n] = present[i][j]
		}
		values[i] = newVals
		present[i] = newPres
	}
	return newBuckets, values, present
}

func selectRows(entities []string, values [][]float64, keep []int) ([]string, [][]float64) {
	if len(keep) == len(entities) {
		return entities, values
	}
	newEntities := make([]string, len(keep))
	newValues := make([][]float64, len(keep))
	for n, i := range keep {
		newEntities[n] = entities[i]
		newValues[n] = values[i]
	}
	return newEntities, newValues
}
