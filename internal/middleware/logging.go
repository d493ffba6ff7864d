package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/mmynk/splitledger/internal/metrics"
)

// requestInfo is filled in by inner middlewares so the outer logger can
// report who made the request.
type requestInfo struct {
	userID string
}

const requestInfoKey contextKey = "request_info"

// statusRecorder captures the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Logging returns a middleware that logs every request and records its
// outcome in the collector. Server errors log at error level, client
// errors at warn.
func Logging(collector *metrics.Collector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			info := &requestInfo{}

			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestInfoKey, info)))

			elapsed := time.Since(start)
			route := r.URL.Path
			if current := mux.CurrentRoute(r); current != nil {
				if tmpl, err := current.GetPathTemplate(); err == nil {
					route = tmpl
				}
			}
			if collector != nil {
				collector.ObserveRequest(r.Method, route, rec.status, elapsed)
			}

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration_ms", elapsed.Milliseconds(),
				"user_id", info.userID,
			}
			switch {
			case rec.status >= 500:
				slog.Error("HTTP error", attrs...)
			case rec.status >= 400:
				slog.Warn("HTTP error", attrs...)
			default:
				slog.Info("HTTP ok", attrs...)
			}
		})
	}
}
