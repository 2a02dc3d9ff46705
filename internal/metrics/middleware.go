package metrics

import (
	"net/http"
	"strconv"
	"time"
)

// responseWriter is a wrapper for http.ResponseWriter that captures the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code before writing it
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// MetricsMiddleware wraps an HTTP handler with Prometheus metrics
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := GetMetrics()

		m.IncRequestsInFlight()
		defer m.DecRequestsInFlight()

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rw, r)

		m.RecordRequest(r.Method, r.URL.Path, strconv.Itoa(rw.statusCode))
		m.ObserveRequestDuration(r.Method, r.URL.Path, time.Since(start).Seconds())
	})
}
