package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/strata-api/strata/pkg/web/response"
)

// Recovery creates middleware that recovers from handler panics, logs the
// panic with its stack trace, and renders a 500 envelope instead of letting
// the connection die.
func Recovery(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rec),
						zap.String("request_id", GetRequestID(r.Context())),
						zap.String("method", r.Method),
						zap.String("path", r.URL.Path),
						zap.ByteString("stack", debug.Stack()),
					)

					response.RenderErrorWithCode(w, http.StatusInternalServerError,
						errors.New("an unexpected error occurred"), "INTERNAL_SERVER_ERROR")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
