package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pipelinecrm/crm-auth-service/internal/domain"
)

func performWithRole(t *testing.T, required domain.Role, tokenRole domain.Role, withToken bool) *httptest.ResponseRecorder {
	t.Helper()
	jwtMgr := newJWTManagerForTest(time.Hour)

	chain := AuthMiddleware(jwtMgr)(RequireRole(required)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	req := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
	if withToken {
		token, err := jwtMgr.Sign(&domain.User{ID: 1, Role: tokenRole})
		if err != nil {
			t.Fatalf("sign token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	chain.ServeHTTP(rr, req)
	return rr
}

func TestRequireRoleAdminToken(t *testing.T) {
	rr := performWithRole(t, domain.RoleAdmin, domain.RoleAdmin, true)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for admin, got %d", rr.Code)
	}
}

func TestRequireRoleRejectsNonAdmin(t *testing.T) {
	rr := performWithRole(t, domain.RoleAdmin, domain.RoleUser, true)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"code":"FORBIDDEN"`) {
		t.Fatalf("expected FORBIDDEN envelope, got %s", rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"required":"admin"`) {
		t.Fatalf("expected required role detail, got %s", rr.Body.String())
	}
}

func TestRequireRoleWithoutAuthContextIsUnauthorized(t *testing.T) {
	// RequireRole used without AuthMiddleware in front.
	h := RequireRole(domain.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without auth context, got %d", rr.Code)
	}
}
