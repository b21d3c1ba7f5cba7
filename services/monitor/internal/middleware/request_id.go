package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/SaltProphet/SystemZero/pkg/telemetry"
)

// RequestIDHeader carries the correlation id on requests and responses.
const RequestIDHeader = "X-Request-ID"

func validRequestID(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > 128 {
		return false
	}
	for _, r := range s {
		if r > unicode.MaxASCII || !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

// RequestID assigns each request a correlation id, honoring a well-formed
// incoming header, and threads it through the context so every log line for
// the request carries it.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if !validRequestID(id) {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		ctx := telemetry.WithRequestID(r.Context(), id)
		ctx = telemetry.WithRequest(ctx, r.Method, r.URL.Path)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// Observability logs one structured line per request and records request
// count and latency series. Either argument may be nil.
func Observability(log *telemetry.Logger, metrics *telemetry.Collector) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			elapsed := time.Since(start)

			if metrics != nil {
				labels := telemetry.Labels{
					"method": r.Method,
					"path":   r.URL.Path,
					"status": strconv.Itoa(sw.status),
				}
				metrics.IncCounter("http_requests_total", 1, labels)
				metrics.Observe("http_request_duration_ms",
					float64(elapsed.Microseconds())/1000,
					telemetry.Labels{"path": r.URL.Path})
			}
			if log != nil {
				log.Info(r.Context(), "request", map[string]any{
					"status":      sw.status,
					"duration_ms": elapsed.Milliseconds(),
					"bytes":       sw.bytes,
				})
			}
		})
	}
}
