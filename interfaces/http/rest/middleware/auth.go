package middleware

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/channl/dynamodb-relay-graph-sub000/pkg/auth"
	"github.com/channl/dynamodb-relay-graph-sub000/pkg/common"
	apperrors "github.com/channl/dynamodb-relay-graph-sub000/pkg/errors"
)

// Authenticate creates an authentication middleware that accepts HS256 bearer
// tokens. The token subject and roles are added to the request context.
func Authenticate(validator *auth.JWTValidator, errs *apperrors.ErrorHandler, logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				errs.Handle(w, r, apperrors.NewUnauthorizedError("Missing authentication token").WithCode(apperrors.CodeMissingToken))
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.Warn("Invalid token",
					zap.Error(err),
					zap.String("ip", getClientIP(r)),
					zap.String("path", r.URL.Path),
				)

				switch {
				case errors.Is(err, auth.ErrExpiredToken):
					errs.Handle(w, r, apperrors.NewUnauthorizedError("Token has expired").WithCode(apperrors.CodeExpiredToken))
				case errors.Is(err, auth.ErrInvalidSignature):
					errs.Handle(w, r, apperrors.NewUnauthorizedError("Invalid token signature").WithCode(apperrors.CodeInvalidToken))
				default:
					errs.Handle(w, r, apperrors.NewUnauthorizedError("Invalid token").WithCode(apperrors.CodeInvalidToken))
				}
				return
			}

			ctx := common.WithSubject(r.Context(), claims.Subject)
			ctx = common.WithRoles(ctx, claims.Roles)

			logger.Debug("Request authenticated",
				zap.String("subject", claims.Subject),
				zap.String("path", r.URL.Path),
				zap.String("method", r.Method),
			)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractToken extracts the JWT token from the Authorization header
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return authHeader
}

// getClientIP extracts the client IP address
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}
