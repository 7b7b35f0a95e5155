package util

import (
	"fmt"
	"net/http"
)

// StatusCapturingResponseWriter records the status code a handler
// writes so middleware can inspect it after the handler returns. The
// status starts at 200, matching net/http's implicit default.
type StatusCapturingResponseWriter struct {
	http.ResponseWriter
	StatusCode    int
	HeaderWritten bool
}

var _ http.Flusher = (*StatusCapturingResponseWriter)(nil)

// NewStatusCapturingResponseWriter wraps w with the status preset to
// 200 OK.
func NewStatusCapturingResponseWriter(w http.ResponseWriter) *StatusCapturingResponseWriter {
	return &StatusCapturingResponseWriter{
		ResponseWriter: w,
		StatusCode:     http.StatusOK,
	}
}

// WriteHeader records and forwards code. Only the first call sticks;
// net/http would warn about a superfluous WriteHeader otherwise.
func (w *StatusCapturingResponseWriter) WriteHeader(code int) {
	if w.HeaderWritten {
		return
	}
	w.StatusCode = code
	w.HeaderWritten = true
	w.ResponseWriter.WriteHeader(code)
}

// Write forwards b. The first Write implies a 200 header downstream,
// so the header is marked written either way.
func (w *StatusCapturingResponseWriter) Write(b []byte) (int, error) {
	w.HeaderWritten = true
	return w.ResponseWriter.Write(b)
}

// Flush forwards to the underlying writer when it supports streaming.
func (w *StatusCapturingResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// ServerError signals that an upstream answered with a 5xx status.
// The circuit breaker counts these as failures even though the
// response was already relayed to the client.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error: status %d", e.StatusCode)
}

// Is matches ErrUpstreamUnavail and any other *ServerError.
func (e *ServerError) Is(target error) bool {
	if target == ErrUpstreamUnavail {
		return true
	}
	_, ok := target.(*ServerError)
	return ok
}

// NewServerError builds a ServerError for the given status code.
func NewServerError(statusCode int) *ServerError {
	return &ServerError{StatusCode: statusCode}
}
