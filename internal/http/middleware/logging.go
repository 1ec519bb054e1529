package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"wafleet/pkg/logger"
)

// NewLoggingMiddleware cria um middleware de logging usando o logger centralizado
func NewLoggingMiddleware(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				duration := time.Since(start)
				status := ww.Status()

				fields := map[string]interface{}{
					"method": r.Method,
					"path":   r.URL.Path,
					"status": status,
					"ms":     duration.Milliseconds(),
				}

				switch {
				case status >= 500:
					log.WithFields(fields).Error().Msg("HTTP error")
				case status >= 400:
					log.WithFields(fields).Warn().Msg("HTTP client error")
				case duration > 3*time.Second:
					log.WithFields(fields).Warn().Msg("Slow request")
				default:
					log.WithFields(fields).Debug().Msg("HTTP")
				}
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
