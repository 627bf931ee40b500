package httpmw

import (
	"net/http"
	"time"

	"github.com/keithlinneman/strictcsp/internal/log"
)

// accessWriter captures status and bytes for the access log line.
type accessWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *accessWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *accessWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += int64(n)
	return n, err
}

// support Flush if the underlying writer does.
func (w *accessWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// WithLogger stores a request-scoped logger in the context, annotated
// with the request ID if one is present.
func WithLogger(l log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rl := l
			if id := RequestIDFromContext(r.Context()); id != "" {
				rl = l.With("request_id", id)
			}
			next.ServeHTTP(w, r.WithContext(log.WithContext(r.Context(), rl)))
		})
	}
}

// AccessLog emits one line per request. Path and method only, never
// user-controlled header values.
func AccessLog() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			aw := &accessWriter{ResponseWriter: w}
			start := time.Now()
			next.ServeHTTP(aw, r)

			status := aw.status
			if status == 0 {
				status = http.StatusOK
			}
			log.FromContext(r.Context()).Info(r.Context(), "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", aw.bytes,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}
