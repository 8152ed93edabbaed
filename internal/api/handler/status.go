package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/seriesclust/trainqueue/internal/api/response"
	"github.com/seriesclust/trainqueue/internal/store"
	"github.com/seriesclust/trainqueue/pkg/models"
)

// NewStatusHandler returns an http.HandlerFunc for GET /api/v1/models/{requestID}.
func NewStatusHandler(st RequestStore) http.HandlerFunc {
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

		response.JSON(w, req)
	}
}

// NewLookupHandler returns an http.HandlerFunc for GET /api/v1/models, which
// looks a request up by its full parameter set in the query string.
func NewLookupHandler(st RequestStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		params := models.TrainingParams{
			Metric:     q.Get("metric"),
			StartMonth: q.Get("start_month"),
			EndMonth:   q.Get("end_month"),
			Region:     q.Get("region"),
			Category:   q.Get("category"),
		}

		if err := params.Validate(); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
			return
		}

		req, err := st.GetRequestByParams(r.Context(), params)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "No request with those parameters", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "STORE_ERROR", "Could not read request", nil)
			return
		}

		response.JSON(w, req)
	}
}
