package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// responseRecorder captures the status code and response size for the access
// log. WriteHeader may never be called on success paths, so Write fills in
// the implicit 200.
type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (rr *responseRecorder) WriteHeader(code int) {
	if rr.status == 0 {
		rr.status = code
	}
	rr.ResponseWriter.WriteHeader(code)
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	if rr.status == 0 {
		rr.status = http.StatusOK
	}
	n, err := rr.ResponseWriter.Write(b)
	rr.bytes += n
	return n, err
}

// Logging is a middleware factory that writes one structured access-log line
// per request. Webhook deliveries and analytics reads share this surface, so
// the line carries status and byte count to tell a rejected push from a
// served query.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rr := &responseRecorder{ResponseWriter: w}
			next.ServeHTTP(rr, r)

			if rr.status == 0 {
				rr.status = http.StatusOK
			}
			logger.Info("handled request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rr.status,
				"bytes", rr.bytes,
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_addr", r.RemoteAddr,
			)
		})
	}
}
