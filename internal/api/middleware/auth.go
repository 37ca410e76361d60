package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/veloclimat/veloclimat/internal/api/models"
	"github.com/veloclimat/veloclimat/internal/auth"
)

type claimsKey struct{}

// TokenValidator validates operator bearer tokens.
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// RequireScope rejects requests without a valid bearer token granting scope.
func RequireScope(tokens TokenValidator, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const bearerPrefix = "Bearer "
			header := r.Header.Get("Authorization")
			if header == "" {
				writeUnauthorized(w, r, "missing authorization header")
				return
			}
			if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
				writeUnauthorized(w, r, "invalid authorization header format")
				return
			}

			claims, err := tokens.Validate(strings.TrimSpace(header[len(bearerPrefix):]))
			if err != nil {
				if errors.Is(err, auth.ErrTokenExpired) {
					writeUnauthorized(w, r, "token has expired")
				} else {
					writeUnauthorized(w, r, "invalid token")
				}
				return
			}
			if !claims.HasScope(scope) {
				models.NewForbidden(GetRequestID(r.Context()), "token lacks scope "+scope).
					WithInstance(r.URL.Path).
					Write(w)
				return
			}

			tagOperator(r.Context(), claims.Operator)
			ctx := context.WithValue(r.Context(), claimsKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="veloclimat"`)
	models.NewUnauthorized(GetRequestID(r.Context()), detail).
		WithInstance(r.URL.Path).
		Write(w)
}

// GetOperator returns the authenticated operator, empty when the request
// was not authenticated.
func GetOperator(ctx context.Context) string {
	if c, ok := ctx.Value(claimsKey{}).(*auth.Claims); ok {
		return c.Operator
	}
	return ""
}
