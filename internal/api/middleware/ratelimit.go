package middleware

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/seriesclust/trainqueue/internal/api/response"
	"github.com/seriesclust/trainqueue/internal/cache"
)

const defaultRequestsPerMinute = 60

// RateLimit provides sliding-window rate limiting via Redis, keyed by client
// address.
type RateLimit struct {
	cache          cache.Cache
	requestsPerMin int
}

// NewRateLimit creates a new RateLimit middleware.
func NewRateLimit(c cache.Cache, requestsPerMin int) *RateLimit {
	if requestsPerMin <= 0 {
		requestsPerMin = defaultRequestsPerMinute
	}
	return &RateLimit{cache: c, requestsPerMin: requestsPerMin}
}

// Limit applies rate limiting based on the request's remote host.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}

		key := cache.RateLimitKey(host)
		count, err := rl.cache.IncrWithExpiry(r.Context(), key, 60*time.Second)
		if err != nil {
			// Redis being down should not take the API with it.
			next.ServeHTTP(w, r)
			return
		}

		if count > int64(rl.requestsPerMin) {
			w.Header().Set("Retry-After", strconv.Itoa(60))
			response.Error(w, http.StatusTooManyRequests,
				"RATE_LIMITED", "Too many requests", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}
