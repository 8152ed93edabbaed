// Package extract is the client for the data-pipeline side of the system.
// The worker consumes exactly one contract from it: a long-form time-series
// extract for a request's parameters.
package extract

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/seriesclust/trainqueue/pkg/models"
)

// Row is one long-form observation: an entity, a month bucket (YYYY-MM), and
// a non-negative count. Absent combinations mean zero.
type Row struct {
	Entity string
	Bucket string
	Value  float64
}

// Extractor returns the long-form extract for a request, or an empty slice
// when nothing matches.
type Extractor interface {
	TimeSeries(ctx context.Context, params models.TrainingParams) ([]Row, error)
}

// PostgresExtractor reads occurrences joined with the entity/region lookups.
type PostgresExtractor struct {
	pool *pgxpool.Pool
}

func NewPostgresExtractor(pool *pgxpool.Pool) *PostgresExtractor {
	return &PostgresExtractor{pool: pool}
}

func (e *PostgresExtractor) TimeSeries(ctx context.Context, params models.TrainingParams) ([]Row, error) {
	query := `
		SELECT
			e.name AS entity,
			TO_CHAR(MAKE_DATE(o.year, o.month, 1), 'YYYY-MM') AS bucket,
			SUM(o.quantity)::float8 AS value
		FROM occurrences o
		JOIN entities e ON o.entity_id = e.id
		JOIN regions r ON e.region_id = r.id
		JOIN categories c ON o.category_id = c.id
		WHERE MAKE_DATE(o.year, o.month, 1)
			BETWEEN TO_DATE($1, 'YYYY-MM') AND TO_DATE($2, 'YYYY-MM')
		AND c.name = $3`
	args := []any{params.StartMonth, params.EndMonth, params.Category}

	if params.Region != models.RegionAll {
		query += " AND r.name = $4"
		args = append(args, params.Region)
	}

	query += `
		GROUP BY e.name, bucket
		ORDER BY e.name, bucket`

	rows, err := e.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query time series: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.Entity, &r.Bucket, &r.Value); err != nil {
			return nil, fmt.Errorf("scan time series row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
