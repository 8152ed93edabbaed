package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusExpired    = "expired"
)

const (
	MetricEuclidean = "euclidean"
	MetricDTW       = "dtw"
)

// RegionAll disables the region filter in the extract query.
const RegionAll = "all"

// TrainingParams identifies one training request. The tuple is unique in the
// store: submitting the same parameters twice returns the existing request.
type TrainingParams struct {
	Metric     string `json:"metric"`
	StartMonth string `json:"start_month"`
	EndMonth   string `json:"end_month"`
	Region     string `json:"region"`
	Category   string `json:"category"`
}

func (p TrainingParams) Validate() error {
	if p.Metric != MetricEuclidean && p.Metric != MetricDTW {
		return fmt.Errorf("metric must be %q or %q; got %q", MetricEuclidean, MetricDTW, p.Metric)
	}
	if _, err := time.Parse("2006-01", p.StartMonth); err != nil {
		return fmt.Errorf("start_month must be in YYYY-MM format; got %q", p.StartMonth)
	}
	if _, err := time.Parse("2006-01", p.EndMonth); err != nil {
		return fmt.Errorf("end_month must be in YYYY-MM format; got %q", p.EndMonth)
	}
	if p.EndMonth < p.StartMonth {
		return fmt.Errorf("end_month %q precedes start_month %q", p.EndMonth, p.StartMonth)
	}
	if p.Region == "" {
		return fmt.Errorf("region is required (use %q for no filter)", RegionAll)
	}
	if p.Category == "" {
		return fmt.Errorf("category is required")
	}
	return nil
}

// Request is one durable training solicitation. Rows are never deleted;
// terminal failed/expired rows are reactivated in place on re-submission.
type Request struct {
	ID           uuid.UUID      `db:"id"            json:"id"`
	Params       TrainingParams `db:"parameters"    json:"parameters"`
	Status       string         `db:"status"        json:"status"`
	ErrorMessage *string        `db:"error_message" json:"error_message,omitempty"`
	ArtifactName *string        `db:"artifact_name" json:"artifact_name,omitempty"`
	CreatedAt    time.Time      `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"    json:"updated_at"`
}
