package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/seriesclust/trainqueue/internal/api/middleware"
	"github.com/seriesclust/trainqueue/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	RateLimit *mw.RateLimit

	HealthHandler   http.HandlerFunc
	SubmitHandler   http.HandlerFunc
	StatusHandler   http.HandlerFunc
	LookupHandler   http.HandlerFunc
	ArtifactHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	r.Group(func(r chi.Router) {
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit.Limit)
		}

		r.Post("/api/v1/models", orNotImplemented(deps.SubmitHandler))
		r.Get("/api/v1/models", orNotImplemented(deps.LookupHandler))
		r.Get("/api/v1/models/{requestID}", orNotImplemented(deps.StatusHandler))
		r.Get("/api/v1/models/{requestID}/artifact", orNotImplemented(deps.ArtifactHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
