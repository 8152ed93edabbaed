package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/seriesclust/trainqueue/pkg/models"
)

var ErrNotFound = errors.New("resource not found")

// Store is the data access gateway. All request-table and blob operations go
// through here.
type Store interface {
	Ping(ctx context.Context) error

	// UpsertRequest inserts a new pending request, or returns the id of the
	// existing row with identical parameters. A failed or expired row is
	// reactivated (status back to pending, error cleared); rows in any other
	// status are left untouched.
	UpsertRequest(ctx context.Context, params models.TrainingParams) (uuid.UUID, error)

	GetRequest(ctx context.Context, id uuid.UUID) (*models.Request, error)
	GetRequestByParams(ctx context.Context, params models.TrainingParams) (*models.Request, error)
	ListByStatus(ctx context.Context, status string) ([]*models.Request, error)

	// ClaimNextPending returns the oldest pending request, preferring the
	// euclidean metric when both variants are queued. ErrNotFound when the
	// queue is empty.
	ClaimNextPending(ctx context.Context) (*models.Request, error)

	SetStatus(ctx context.Context, id uuid.UUID, status string, opts ...StatusOption) error

	StoreArtifactBlob(ctx context.Context, id uuid.UUID, filename string, blob []byte) error
	FetchArtifactBlob(ctx context.Context, id uuid.UUID) ([]byte, error)
}

// StatusUpdate carries the optional columns of a status transition.
type StatusUpdate struct {
	ErrorMessage *string
	ArtifactName *string
}

type StatusOption func(*StatusUpdate)

func WithErrorMessage(msg string) StatusOption {
	return func(p *StatusUpdate) {
		p.ErrorMessage = &msg
	}
}

func WithArtifactName(name string) StatusOption {
	return func(p *StatusUpdate) {
		p.ArtifactName = &name
	}
}

// ApplyStatusOptions folds options into a StatusUpdate. Store implementations
// outside this package use it to interpret the option list.
func ApplyStatusOptions(opts ...StatusOption) StatusUpdate {
	var u StatusUpdate
	for _, opt := range opts {
		opt(&u)
	}
	return u
}
