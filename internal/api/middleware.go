// SPDX-License-Identifier: MIT
package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/pagevault/pagevault/internal/log"
)

// requestLogger tags every request with an ID and logs its outcome.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := log.ContextWithRequestID(r.Context(), requestID)
		logger := log.WithComponentFromContext(ctx, "api")

		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r.WithContext(ctx))

		logger.Info().
			Str(log.FieldEvent, "http.request").
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int(log.FieldStatus, ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("request handled")
	})
}

// authMiddleware enforces the API token on mutating routes. With no token
// configured access is denied outright.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := log.WithComponentFromContext(r.Context(), "auth")

		if s.opts.APIToken == "" {
			logger.Error().Str(log.FieldEvent, "auth.fail_closed").Msg("PV_API_TOKEN not set, denying mutating request")
			respondError(w, http.StatusUnauthorized, "unauthorized", "API token not configured")
			return
		}

		token := bearerToken(r)
		if token == "" {
			logger.Warn().Str(log.FieldEvent, "auth.missing_header").Msg("authorization header missing")
			respondError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.opts.APIToken)) != 1 {
			logger.Warn().Str(log.FieldEvent, "auth.invalid_token").Msg("invalid api token")
			respondError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return h[len(prefix):]
	}
	return ""
}
