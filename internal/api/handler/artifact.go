package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/seriesclust/trainqueue/internal/api/response"
	"github.com/seriesclust/trainqueue/internal/artifact"
	"github.com/seriesclust/trainqueue/internal/store"
)

// ArtifactResolver locates and reads persisted bundles.
type ArtifactResolver interface {
	Resolve(ctx context.Context, name string, id uuid.UUID) artifact.Location
	Open(ctx context.Context, loc artifact.Location) ([]byte, error)
}

// NewArtifactHandler returns an http.HandlerFunc for
// GET /api/v1/models/{requestID}/artifact. The file store is tried first;
// the blob column serves as fallback when the file is gone.
func NewArtifactHandler(st RequestStore, ar ArtifactResolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "requestID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "requestID must be a UUID", nil)
			return
		}

		req, err := st.GetRequest(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "No request with that id", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "STORE_ERROR", "Could not read request", nil)
			return
		}

		name := ""
		if req.ArtifactName != nil {
			name = *req.ArtifactName
		}

		loc := ar.Resolve(r.Context(), name, req.ID)
		if loc.Kind == artifact.LocationMissing {
			response.Error(w, http.StatusNotFound, "ARTIFACT_MISSING",
				"No artifact is available for this request", nil)
			return
		}

		raw, err := ar.Open(r.Context(), loc)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "ARTIFACT_ERROR",
				"Could not read artifact", nil)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if name != "" {
			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		}
		w.Write(raw)
	}
}
