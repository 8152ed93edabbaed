package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/seriesclust/trainqueue/internal/config"
	"github.com/seriesclust/trainqueue/pkg/models"
)

const (
	blobWriteAttempts = 3
	blobWriteBackoff  = 500 * time.Millisecond
)

// dialFunc opens a fresh Store and returns it together with its teardown.
type dialFunc func(ctx context.Context) (Store, func(), error)

// Resilient wraps a Store and keeps it usable across transport failures.
// Before every logical operation the connection is probed and, if dead,
// redialed; callers never see the reconnect. Blob writes additionally retry
// with exponential backoff because they carry the largest payloads.
type Resilient struct {
	mu      sync.Mutex
	dial    dialFunc
	inner   Store
	closeFn func()
	log     *slog.Logger
	backoff time.Duration
}

var _ Store = (*Resilient)(nil)

// NewResilient connects to the database and returns a self-healing Store.
func NewResilient(ctx context.Context, cfg config.DatabaseConfig, log *slog.Logger) (*Resilient, error) {
	return newResilient(ctx, pgxDial(cfg), log)
}

func pgxDial(cfg config.DatabaseConfig) dialFunc {
	return func(ctx context.Context) (Store, func(), error) {
		pool, err := Connect(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return NewPostgresStore(pool), pool.Close, nil
	}
}

func newResilient(ctx context.Context, dial dialFunc, log *slog.Logger) (*Resilient, error) {
	inner, closeFn, err := dial(ctx)
	if err != nil {
		return nil, err
	}
	return &Resilient{
		dial:    dial,
		inner:   inner,
		closeFn: closeFn,
		log:     log,
		backoff: blobWriteBackoff,
	}, nil
}

// Close releases the underlying connection.
func (r *Resilient) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closeFn != nil {
		r.closeFn()
		r.closeFn = nil
		r.inner = nil
	}
}

// ensure probes the connection and redials when the probe fails.
func (r *Resilient) ensure(ctx context.Context) (Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.inner != nil {
		if err := r.inner.Ping(ctx); err == nil {
			return r.inner, nil
		}
		r.log.Warn("database liveness probe failed, reconnecting")
		r.closeFn()
		r.inner, r.closeFn = nil, nil
	}

	inner, closeFn, err := r.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconnect database: %w", err)
	}
	r.inner, r.closeFn = inner, closeFn
	return r.inner, nil
}

func (r *Resilient) Ping(ctx context.Context) error {
	s, err := r.ensure(ctx)
	if err != nil {
		return err
	}
	return s.Ping(ctx)
}

func (r *Resilient) UpsertRequest(ctx context.Context, params models.TrainingParams) (uuid.UUID, error) {
	s, err := r.ensure(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	return s.UpsertRequest(ctx, params)
}

func (r *Resilient) GetRequest(ctx context.Context, id uuid.UUID) (*models.Request, error) {
	s, err := r.ensure(ctx)
	if err != nil {
		return nil, err
	}
	return s.GetRequest(ctx, id)
}

func (r *Resilient) GetRequestByParams(ctx context.Context, params models.TrainingParams) (*models.Request, error) {
	s, err := r.ensure(ctx)
	if err != nil {
		return nil, err
	}
	return s.GetRequestByParams(ctx, params)
}

func (r *Resilient) ListByStatus(ctx context.Context, status string) ([]*models.Request, error) {
	s, err := r.ensure(ctx)
	if err != nil {
		return nil, err
	}
	return s.ListByStatus(ctx, status)
}

func (r *Resilient) ClaimNextPending(ctx context.Context) (*models.Request, error) {
	s, err := r.ensure(ctx)
	if err != nil {
		return nil, err
	}
	return s.ClaimNextPending(ctx)
}

// SetStatus retries the single statement once after re-establishing the
// connection, so a drop mid-write does not strand a row in a stale status.
func (r *Resilient) SetStatus(ctx context.Context, id uuid.UUID, status string, opts ...StatusOption) error {
	s, err := r.ensure(ctx)
	if err != nil {
		return err
	}
	if err := s.SetStatus(ctx, id, status, opts...); err == nil || errors.Is(err, ErrNotFound) {
		return err
	} else {
		r.log.Warn("status update failed, retrying once", "request_id", id, "status", status, "error", err)
	}

	s, err = r.ensure(ctx)
	if err != nil {
		return err
	}
	return s.SetStatus(ctx, id, status, opts...)
}

func (r *Resilient) StoreArtifactBlob(ctx context.Context, id uuid.UUID, filename string, blob []byte) error {
	var lastErr error
	delay := r.backoff
	for attempt := 1; attempt <= blobWriteAttempts; attempt++ {
		s, err := r.ensure(ctx)
		if err != nil {
			lastErr = err
		} else if err := s.StoreArtifactBlob(ctx, id, filename, blob); err == nil || errors.Is(err, ErrNotFound) {
			return err
		} else {
			lastErr = err
		}

		if attempt < blobWriteAttempts {
			r.log.Warn("artifact blob write failed, backing off",
				"request_id", id, "attempt", attempt, "error", lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}
	return fmt.Errorf("store artifact blob after %d attempts: %w", blobWriteAttempts, lastErr)
}

func (r *Resilient) FetchArtifactBlob(ctx context.Context, id uuid.UUID) ([]byte, error) {
	s, err := r.ensure(ctx)
	if err != nil {
		return nil, err
	}
	return s.FetchArtifactBlob(ctx, id)
}
