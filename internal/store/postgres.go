package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/seriesclust/trainqueue/pkg/models"
)

const requestColumns = "id, parameters, status, error_message, artifact_name, created_at, updated_at"

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) UpsertRequest(ctx context.Context, params models.TrainingParams) (uuid.UUID, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal parameters: %w", err)
	}

	// The RETURNING clause only yields a row when the insert happened or the
	// conditional reactivation fired. An untouched live row falls through to
	// the select below.
	var id uuid.UUID
	err = s.pool.QueryRow(ctx,
		`INSERT INTO solicitations (id, parameters, status, created_at, updated_at)
		 VALUES ($1, $2, $3, NOW(), NOW())
		 ON CONFLICT (parameters) DO UPDATE SET
		   status = $3,
		   error_message = NULL,
		   updated_at = NOW()
		 WHERE solicitations.status IN ($4, $5)
		 RETURNING id`,
		uuid.New(), raw, models.StatusPending, models.StatusFailed, models.StatusExpired,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		err = s.pool.QueryRow(ctx,
			`SELECT id FROM solicitations WHERE parameters = $1`, raw,
		).Scan(&id)
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("upsert request: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetRequest(ctx context.Context, id uuid.UUID) (*models.Request, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM solicitations WHERE id = $1`, id)
	req, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	return req, nil
}

func (s *PostgresStore) GetRequestByParams(ctx context.Context, params models.TrainingParams) (*models.Request, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal parameters: %w", err)
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM solicitations WHERE parameters = $1`, raw)
	req, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get request by params: %w", err)
	}
	return req, nil
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status string) ([]*models.Request, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+requestColumns+` FROM solicitations WHERE status = $1 ORDER BY created_at`, status)
	if err != nil {
		return nil, fmt.Errorf("list by status: %w", err)
	}
	defer rows.Close()

	var reqs []*models.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		reqs = append(reqs, req)
	}
	return reqs, rows.Err()
}

func (s *PostgresStore) ClaimNextPending(ctx context.Context) (*models.Request, error) {
	// Euclidean runs first because it is an order of magnitude cheaper than
	// DTW; within a variant, oldest submission wins.
	row := s.pool.QueryRow(ctx,
		`SELECT `+requestColumns+`
		 FROM solicitations
		 WHERE status = $1
		 ORDER BY (CASE WHEN parameters->>'metric' = $2 THEN 0 ELSE 1 END), created_at
		 LIMIT 1`,
		models.StatusPending, models.MetricEuclidean)
	req, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("claim next pending: %w", err)
	}
	return req, nil
}

func (s *PostgresStore) SetStatus(ctx context.Context, id uuid.UUID, status string, opts ...StatusOption) error {
	params := ApplyStatusOptions(opts...)

	sets := []string{"status = $2", "updated_at = NOW()"}
	args := []any{id, status}
	argIdx := 3

	if params.ErrorMessage != nil {
		sets = append(sets, fmt.Sprintf("error_message = $%d", argIdx))
		args = append(args, *params.ErrorMessage)
		argIdx++
	} else if status == models.StatusPending || status == models.StatusCompleted {
		// Reactivation and success both leave no stale error behind.
		sets = append(sets, "error_message = NULL")
	}
	if params.ArtifactName != nil {
		sets = append(sets, fmt.Sprintf("artifact_name = $%d", argIdx))
		args = append(args, *params.ArtifactName)
		argIdx++
	}

	query := "UPDATE solicitations SET " + strings.Join(sets, ", ") + " WHERE id = $1"
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) StoreArtifactBlob(ctx context.Context, id uuid.UUID, filename string, blob []byte) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE solicitations SET artifact_name = $2, artifact_blob = $3, updated_at = NOW() WHERE id = $1`,
		id, filename, blob)
	if err != nil {
		return fmt.Errorf("store artifact blob: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FetchArtifactBlob(ctx context.Context, id uuid.UUID) ([]byte, error) {
	var blob []byte
	err := s.pool.QueryRow(ctx,
		`SELECT artifact_blob FROM solicitations WHERE id = $1`, id,
	).Scan(&blob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch artifact blob: %w", err)
	}
	if blob == nil {
		return nil, ErrNotFound
	}
	return blob, nil
}

func scanRequest(row pgx.Row) (*models.Request, error) {
	var (
		req models.Request
		raw []byte
	)
	if err := row.Scan(&req.ID, &raw, &req.Status, &req.ErrorMessage,
		&req.ArtifactName, &req.CreatedAt, &req.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &req.Params); err != nil {
		return nil, fmt.Errorf("unmarshal parameters: %w", err)
	}
	return &req, nil
}
