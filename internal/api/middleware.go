package api

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

// CorrelationIDMiddleware adds a correlation ID to the request context
// and response headers. Grounded on the teacher's
// server.CorrelationIDMiddleware, unchanged.
func CorrelationIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.Header.Get("X-Correlation-ID")
		if correlationID == "" {
			correlationID = uuid.New().String()
		}
		w.Header().Set("X-Correlation-ID", correlationID)

		log := hlog.FromRequest(r)
		log.UpdateContext(func(c zerolog.Context) zerolog.Context {
			return c.Str("correlation_id", correlationID)
		})

		next.ServeHTTP(w, r)
	})
}

// JWTAuthMiddleware guards the mutation endpoints (manual compaction,
// model hot-swap) with an HMAC-signed bearer token, the real binding
// for the golang-jwt/jwt/v4 dependency the teacher's go.mod carried
// but never exercised. When secret is empty, authentication is
// disabled and every request is allowed through (matching the
// teacher's TokenAuthMiddleware "no token configured" escape hatch).
func JWTAuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				next.ServeHTTP(w, r)
				return
			}

			logger := hlog.FromRequest(r)

			authHeader := r.Header.Get("Authorization")
			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == "" || tokenString == authHeader {
				logger.Warn().Msg("missing bearer token for protected endpoint")
				http.Error(w, "Unauthorized: bearer token required", http.StatusUnauthorized)
				return
			}

			token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				logger.Warn().Err(err).Msg("invalid bearer token for protected endpoint")
				http.Error(w, "Unauthorized: invalid token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
