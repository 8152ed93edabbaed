package extract

import (
	"context"

	"github.com/seriesclust/trainqueue/pkg/models"
)

// Static is an in-memory Extractor for tests and local runs.
type Static struct {
	Rows []Row
	Err  error
}

func (s *Static) TimeSeries(_ context.Context, _ models.TrainingParams) ([]Row, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Rows, nil
}
