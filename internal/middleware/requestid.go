package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/heymind/reproxy/internal/observability"
)

// RequestIDHeader is the header name for the request ID.
const RequestIDHeader = "X-Request-ID"

// RequestID returns a middleware that assigns each request a unique
// ID. An ID arriving on the request is kept; otherwise a new one is
// generated. The ID is stored in the request context for log
// correlation and echoed on the response.
func RequestID() func(http.Handler) http.Handler {
	return RequestIDWithGenerator(func() string {
		return uuid.New().String()
	})
}

// RequestIDWithGenerator returns a request ID middleware that uses a
// custom ID generator.
func RequestIDWithGenerator(generator func() string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" {
				id = generator()
			}

			r = r.WithContext(observability.ContextWithRequestID(r.Context(), id))
			w.Header().Set(RequestIDHeader, id)

			next.ServeHTTP(w, r)
		})
	}
}
