// Package worker owns the request state machine. It is the only writer of
// status transitions apart from user-initiated reactivation, and it assumes
// at most one worker process: a second concurrent worker can double-claim.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/seriesclust/trainqueue/internal/artifact"
	"github.com/seriesclust/trainqueue/internal/cache"
	"github.com/seriesclust/trainqueue/internal/extract"
	"github.com/seriesclust/trainqueue/internal/prepare"
	"github.com/seriesclust/trainqueue/internal/store"
	"github.com/seriesclust/trainqueue/internal/train"
	"github.com/seriesclust/trainqueue/pkg/models"
)

const statusCacheTTL = 30 * time.Minute

// Config bounds one worker's behavior.
type Config struct {
	PollInterval  time.Duration
	KMin          int
	KMax          int
	ZeroThreshold float64
	MaxArtifacts  int
}

// Worker polls the queue and executes one job at a time. The model search is
// CPU-heavy on its own, so jobs are deliberately sequential.
type Worker struct {
	st        store.Store
	extractor extract.Extractor
	artifacts *artifact.Manager
	cache     cache.Cache
	cfg       Config
	log       *slog.Logger
}

func New(st store.Store, ex extract.Extractor, am *artifact.Manager, ca cache.Cache, cfg Config, log *slog.Logger) *Worker {
	return &Worker{st: st, extractor: ex, artifacts: am, cache: ca, cfg: cfg, log: log}
}

// Run reconciles orphaned states, sweeps old artifacts, and then polls until
// the context is canceled. Nothing that happens inside a job can break the
// loop.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.Reconcile(ctx); err != nil {
		w.log.Error("startup reconciliation failed", "error", err)
	}
	if w.cfg.MaxArtifacts > 0 {
		if err := w.artifacts.Sweep(w.cfg.MaxArtifacts); err != nil {
			w.log.Warn("artifact sweep failed", "error", err)
		}
	}

	w.log.Info("worker polling", "interval", w.cfg.PollInterval)
	for {
		next := w.RunOnce(ctx)
		if next.quit {
			return next.err
		}
		select {
		case <-ctx.Done():
			w.log.Info("worker stopping")
			return nil
		case <-time.After(next.interval):
		}
	}
}

// RunOnce claims and processes at most one request, and reports when the
// loop should wake again.
func (w *Worker) RunOnce(ctx context.Context) Next {
	req, err := w.st.ClaimNextPending(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return Continue(w.cfg.PollInterval)
	}
	if err != nil {
		w.log.Error("claim next pending", "error", err)
		return Continue(w.cfg.PollInterval)
	}

	w.process(ctx, req)
	return Continue(0)
}

// Reconcile corrects states orphaned by a previous crash: processing rows go
// back to pending, and completed rows whose artifact is gone from both
// locations become failed.
func (w *Worker) Reconcile(ctx context.Context) error {
	stuck, err := w.st.ListByStatus(ctx, models.StatusProcessing)
	if err != nil {
		return fmt.Errorf("list processing requests: %w", err)
	}
	for _, req := range stuck {
		w.log.Info("requeueing request interrupted mid-job", "request_id", req.ID)
		if err := w.st.SetStatus(ctx, req.ID, models.StatusPending); err != nil {
			w.log.Error("requeue failed", "request_id", req.ID, "error", err)
		}
	}

	done, err := w.st.ListByStatus(ctx, models.StatusCompleted)
	if err != nil {
		return fmt.Errorf("list completed requests: %w", err)
	}
	for _, req := range done {
		name := artifact.Filename(req.Params)
		if req.ArtifactName != nil && *req.ArtifactName != "" {
			name = *req.ArtifactName
		}
		loc := w.artifacts.Resolve(ctx, name, req.ID)
		if loc.Kind != artifact.LocationMissing {
			continue
		}
		msg := fmt.Sprintf("artifact not found in file store or blob column (expected %s)", name)
		w.log.Warn("completed request has no artifact, marking failed", "request_id", req.ID)
		if err := w.st.SetStatus(ctx, req.ID, models.StatusFailed, store.WithErrorMessage(msg)); err != nil {
			w.log.Error("mark failed", "request_id", req.ID, "error", err)
		}
	}
	return nil
}

// process runs one job end to end. Every stage error is caught here, exactly
// once, and written to the request's error field; a failing status write is
// logged and abandoned so the loop returns to polling regardless.
func (w *Worker) process(ctx context.Context, req *models.Request) {
	log := w.log.With("request_id", req.ID, "metric", req.Params.Metric)
	log.Info("processing request")

	w.setStatus(ctx, req.ID, models.StatusProcessing)

	name, err := w.runJob(ctx, req, log)
	if err != nil {
		log.Error("request failed", "error", err)
		w.setStatus(ctx, req.ID, models.StatusFailed, store.WithErrorMessage(err.Error()))
		return
	}

	w.setStatus(ctx, req.ID, models.StatusCompleted, store.WithArtifactName(name))
	log.Info("request completed", "artifact", name)
}

func (w *Worker) runJob(ctx context.Context, req *models.Request, log *slog.Logger) (string, error) {
	rows, err := w.extractor.TimeSeries(ctx, req.Params)
	if err != nil {
		return "", fmt.Errorf("fetching time series: %w", err)
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("%w: no data found for the requested period, region, and category",
			prepare.ErrInsufficientData)
	}

	matrix, stats, err := prepare.Build(rows, w.cfg.ZeroThreshold)
	if err != nil {
		return "", err
	}
	log.Info("matrix cleaned",
		"entities", len(matrix.Entities),
		"buckets", len(matrix.Buckets),
		"removed", len(stats.RemovedEntityLabels))

	result, err := train.Search(matrix, req.Params.Metric, w.cfg.KMin, w.cfg.KMax, log)
	if err != nil {
		return "", err
	}
	log.Info("model selected", "k", result.K, "silhouette", result.Silhouette)

	bundle := &models.Bundle{
		Model: &models.ClusterModel{
			Metric:    result.Model.Metric(),
			K:         result.K,
			Centroids: result.Model.Centroids(),
		},
		Scaler:        result.Scaler,
		K:             result.K,
		Silhouette:    result.Silhouette,
		Params:        req.Params,
		EntityLabels:  matrix.Entities,
		CleaningStats: stats,
	}

	return w.artifacts.Save(ctx, req.ID, bundle)
}

// setStatus writes a transition and mirrors it into the status cache. The
// store retries transient failures internally; here a final failure is only
// logged, and the next startup reconciliation will repair the row.
func (w *Worker) setStatus(ctx context.Context, id uuid.UUID, status string, opts ...store.StatusOption) {
	if err := w.st.SetStatus(ctx, id, status, opts...); err != nil {
		w.log.Error("status update abandoned", "request_id", id, "status", status, "error", err)
		return
	}
	if w.cache != nil {
		if err := w.cache.SetRequestStatus(ctx, id, status, statusCacheTTL); err != nil {
			w.log.Warn("status cache update failed", "request_id", id, "error", err)
		}
	}
}
