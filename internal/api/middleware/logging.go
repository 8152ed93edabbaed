package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// responseMeter captures the status code and body size of a response.
type responseMeter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (m *responseMeter) WriteHeader(code int) {
	m.status = code
	m.ResponseWriter.WriteHeader(code)
}

func (m *responseMeter) Write(p []byte) (int, error) {
	n, err := m.ResponseWriter.Write(p)
	m.bytes += n
	return n, err
}

// Logger emits one structured line per request after the handler returns.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m := &responseMeter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(m, r)

		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", m.status,
			"bytes", m.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", r.RemoteAddr,
		)
	})
}
