package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// ResponseRecorder wraps http.ResponseWriter to capture the status code and
// bytes written, for logging and request accounting.
type ResponseRecorder struct {
	http.ResponseWriter
	status  int
	bytes   int64
	written bool
}

// NewResponseRecorder wraps w.
func NewResponseRecorder(w http.ResponseWriter) *ResponseRecorder {
	return &ResponseRecorder{ResponseWriter: w, status: http.StatusOK}
}

// WriteHeader captures the status code before writing it.
func (rw *ResponseRecorder) WriteHeader(code int) {
	if !rw.written {
		rw.status = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

// Write counts body bytes, defaulting the status to 200.
func (rw *ResponseRecorder) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += int64(n)
	return n, err
}

// Flush passes through to the underlying writer so response streaming keeps
// working behind the recorder.
func (rw *ResponseRecorder) Flush() {
	if fl, ok := rw.ResponseWriter.(http.Flusher); ok {
		fl.Flush()
	}
}

// Status returns the captured status code.
func (rw *ResponseRecorder) Status() int { return rw.status }

// BytesWritten returns the number of response body bytes written.
func (rw *ResponseRecorder) BytesWritten() int64 { return rw.bytes }

// Logging logs every request on completion: method, path, host, status,
// latency, and the correlation ID.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := NewResponseRecorder(w)
		next.ServeHTTP(rw, r)

		slog.InfoContext(r.Context(), "request completed",
			"method", r.Method,
			"host", r.Host,
			"path", r.URL.Path,
			"status", rw.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"bytes", rw.BytesWritten(),
			"request_id", GetRequestID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}
