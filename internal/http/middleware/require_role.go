package middleware

import (
	"net/http"

	"github.com/pipelinecrm/crm-auth-service/internal/domain"
	"github.com/pipelinecrm/crm-auth-service/internal/http/response"
)

// RequireRole gates a route group on the role carried in the verified
// claims. With a closed two-role model there is nothing to resolve or
// cache; the token already says everything.
func RequireRole(required domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
				return
			}
			role, err := domain.ParseRole(claims.Role)
			if err != nil || role != required {
				response.Error(w, r, http.StatusForbidden, "FORBIDDEN", "insufficient role",
					map[string]string{"required": string(required)})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
