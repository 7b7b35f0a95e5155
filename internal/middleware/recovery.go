package middleware

import (
	"fmt"
	"io"
	"net/http"
	"runtime/debug"

	"github.com/heymind/reproxy/internal/observability"
)

// recoverPanics wraps next and turns any panic into an empty 500. The
// panic value and stack trace go to the log; out, when non-nil, also
// receives a plain-text copy.
func recoverPanics(next http.Handler, logger observability.Logger, out io.Writer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			stack := debug.Stack()

			logger.Error("panic recovered",
				observability.String("path", r.URL.Path),
				observability.String("method", r.Method),
				observability.Any("error", v),
				observability.String("stack", string(stack)),
			)

			GetMiddlewareMetrics().panicsRecovered.Inc()

			if out != nil {
				_, _ = fmt.Fprintf(out, "panic: %v\n%s\n", v, stack)
			}

			w.WriteHeader(http.StatusInternalServerError)
		}()

		next.ServeHTTP(w, r)
	})
}

// Recovery returns a middleware that converts handler panics into
// empty 500 responses so a single bad request cannot take the listener
// down.
func Recovery(logger observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return recoverPanics(next, logger, nil)
	}
}

// RecoveryWithWriter is Recovery with a plain-text copy of every panic
// written to out, for crash files or test buffers.
func RecoveryWithWriter(logger observability.Logger, out io.Writer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return recoverPanics(next, logger, out)
	}
}
