package http

import (
	"net/http"
	"runtime/debug"

	"github.com/felixge/httpsnoop"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// LoggerMiddleware logs one line per request with status, size and duration.
func LoggerMiddleware(logger *zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			reqLogger := logger.With().Logger()

			defer func() {
				if rec := recover(); rec != nil {
					reqLogger.Error().
						Str("type", "error").
						Timestamp().
						Interface("recover_info", rec).
						Bytes("debug_stack", debug.Stack()).
						Str("request_id", middleware.GetReqID(r.Context())).
						Msg("Unhandled panic recovered by middleware")
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
			}()

			m := httpsnoop.CaptureMetrics(next, w, r)

			event := reqLogger.Debug()
			if m.Code >= http.StatusInternalServerError {
				event = reqLogger.Warn()
			}
			event.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote", getClientIP(r)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Int("status", m.Code).
				Int64("bytes", m.Written).
				Dur("duration", m.Duration).
				Msg("request")
		}
		return http.HandlerFunc(fn)
	}
}
