package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/breatheroute/privacydesk/internal/api/models"
	"github.com/breatheroute/privacydesk/internal/auth"
)

type adminIDKey struct{}

// TokenValidator resolves a bearer token to an administrator ID.
type TokenValidator interface {
	ValidateAdminToken(token string) (string, error)
}

// AdminAuth requires a bearer token that carries the privacy admin role.
func AdminAuth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeAuthProblem(w, r, http.StatusUnauthorized, "missing authorization header")
				return
			}

			const bearerPrefix = "Bearer "
			if len(authHeader) < len(bearerPrefix) ||
				!strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
				writeAuthProblem(w, r, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			tokenString := strings.TrimSpace(authHeader[len(bearerPrefix):])
			if tokenString == "" {
				writeAuthProblem(w, r, http.StatusUnauthorized, "missing bearer token")
				return
			}

			adminID, err := validator.ValidateAdminToken(tokenString)
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrInsufficientRole):
					writeAuthProblem(w, r, http.StatusForbidden, "token does not grant privacy admin access")
				case errors.Is(err, auth.ErrAccessTokenExpired):
					writeAuthProblem(w, r, http.StatusUnauthorized, "access token has expired")
				case errors.Is(err, auth.ErrInvalidAccessToken):
					writeAuthProblem(w, r, http.StatusUnauthorized, "invalid access token")
				default:
					writeAuthProblem(w, r, http.StatusUnauthorized, "authentication failed")
				}
				return
			}

			ctx := context.WithValue(r.Context(), adminIDKey{}, adminID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeAuthProblem writes the problem directly; the response package imports
// this one.
func writeAuthProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	traceID := GetRequestID(r.Context())
	var problem *models.Problem
	if status == http.StatusForbidden {
		problem = models.NewForbidden(traceID, detail)
	} else {
		w.Header().Set("WWW-Authenticate", `Bearer realm="privacydesk-admin"`)
		problem = models.NewUnauthorized(traceID, detail)
	}
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// GetAdminID returns the authenticated administrator, or "" outside AdminAuth.
func GetAdminID(ctx context.Context) string {
	if id, ok := ctx.Value(adminIDKey{}).(string); ok {
		return id
	}
	return ""
}
