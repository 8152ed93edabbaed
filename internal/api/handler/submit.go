package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/seriesclust/trainqueue/internal/api/response"
	"github.com/seriesclust/trainqueue/pkg/models"
)

// RequestStore is the slice of the gateway the handlers depend on.
type RequestStore interface {
	UpsertRequest(ctx context.Context, params models.TrainingParams) (uuid.UUID, error)
	GetRequest(ctx context.Context, id uuid.UUID) (*models.Request, error)
	GetRequestByParams(ctx context.Context, params models.TrainingParams) (*models.Request, error)
}

// NewSubmitHandler returns an http.HandlerFunc for POST /api/v1/models.
// Submission is idempotent: identical parameters return the same request id,
// and a failed or expired request is reactivated instead of duplicated.
func NewSubmitHandler(st RequestStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var params models.TrainingParams
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if err := params.Validate(); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
			return
		}

		id, err := st.UpsertRequest(r.Context(), params)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "STORE_ERROR", "Could not submit request", nil)
			return
		}

		req, err := st.GetRequest(r.Context(), id)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "STORE_ERROR", "Could not read request back", nil)
			return
		}

		response.Accepted(w, req)
	}
}
