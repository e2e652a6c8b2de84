package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/pipelinecrm/crm-auth-service/internal/http/response"
	"github.com/pipelinecrm/crm-auth-service/internal/observability"
	"github.com/pipelinecrm/crm-auth-service/internal/security"
)

type contextKey string

const (
	claimsContextKey contextKey = "claims"
	tokenContextKey  contextKey = "raw_token"
)

// AuthMiddleware authenticates the bearer token with a pure signature and
// expiry check. It never consults the session ledger, so auth keeps working
// when the ledger does not.
func AuthMiddleware(jwtMgr *security.JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := BearerToken(r)
			if raw == "" {
				observability.RecordAccessTokenValidation(r.Context(), "missing")
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token", nil)
				return
			}
			claims, err := jwtMgr.Parse(raw)
			if err != nil {
				observability.RecordAccessTokenValidation(r.Context(), "invalid")
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token", nil)
				return
			}
			observability.RecordAccessTokenValidation(r.Context(), "valid")
			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			ctx = context.WithValue(ctx, tokenContextKey, raw)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func BearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

func ClaimsFromContext(ctx context.Context) (*security.Claims, bool) {
	c, ok := ctx.Value(claimsContextKey).(*security.Claims)
	return c, ok
}

func TokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(tokenContextKey).(string)
	return t
}
