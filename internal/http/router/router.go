package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/pipelinecrm/crm-auth-service/internal/domain"
	"github.com/pipelinecrm/crm-auth-service/internal/health"
	"github.com/pipelinecrm/crm-auth-service/internal/http/handler"
	"github.com/pipelinecrm/crm-auth-service/internal/http/middleware"
	"github.com/pipelinecrm/crm-auth-service/internal/http/response"
	"github.com/pipelinecrm/crm-auth-service/internal/security"
)

type Dependencies struct {
	AuthHandler                *handler.AuthHandler
	UserHandler                *handler.UserHandler
	AdminHandler               *handler.AdminHandler
	JWTManager                 *security.JWTManager
	CORSOrigins                []string
	APIRateLimitRPM            int
	AuthRateLimitRPM           int
	PasswordForgotRateLimitRPM int
	GlobalRateLimiter          GlobalRateLimiterFunc
	AuthRateLimiter            AuthRateLimiterFunc
	ForgotRateLimiter          ForgotRateLimiterFunc
	Readiness                  *health.ProbeRunner
	EnableOTelHTTP             bool
}

type GlobalRateLimiterFunc func(http.Handler) http.Handler
type AuthRateLimiterFunc func(http.Handler) http.Handler
type ForgotRateLimiterFunc func(http.Handler) http.Handler

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.StructuredRequestLogger)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(dep.CORSOrigins))
	r.Use(middleware.BodyLimit(1 << 20))
	if dep.GlobalRateLimiter != nil {
		r.Use(dep.GlobalRateLimiter)
	} else {
		r.Use(middleware.NewRateLimiter(dep.APIRateLimitRPM, time.Minute, "global").Middleware())
	}

	authLimiter := dep.AuthRateLimiter
	if authLimiter == nil {
		authLimiter = middleware.NewRateLimiter(dep.AuthRateLimitRPM, time.Minute, "auth").Middleware()
	}
	forgotLimiter := dep.ForgotRateLimiter
	if forgotLimiter == nil {
		forgotLimiter = middleware.NewRateLimiter(dep.PasswordForgotRateLimitRPM, time.Minute, "password_forgot").Middleware()
	}

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.Readiness == nil {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": []any{}})
			return
		}
		ready, results := dep.Readiness.Ready(r.Context())
		if ready {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": results})
			return
		}
		response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", map[string]any{"checks": results})
	})

	requireAuth := middleware.AuthMiddleware(dep.JWTManager)
	requireAdmin := middleware.RequireRole(domain.RoleAdmin)

	r.Route("/api/auth", func(r chi.Router) {
		r.With(authLimiter).Post("/signup", dep.AuthHandler.SignUp)
		r.With(authLimiter).Post("/signin", dep.AuthHandler.SignIn)
		r.With(authLimiter).Post("/verify-email", dep.AuthHandler.VerifyEmail)
		r.With(forgotLimiter).Post("/request-password-reset", dep.AuthHandler.RequestPasswordReset)
		r.With(authLimiter).Post("/reset-password", dep.AuthHandler.ResetPassword)
		r.With(authLimiter).Post("/validate-token", dep.AuthHandler.ValidateToken)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			// logout kept as an alias for clients migrated from the old API.
			r.Post("/signout", dep.AuthHandler.SignOut)
			r.Post("/logout", dep.AuthHandler.SignOut)
			r.With(authLimiter).Post("/change-password", dep.AuthHandler.ChangePassword)
			r.Get("/me", dep.UserHandler.Me)
			r.Get("/profile", dep.UserHandler.Me)
			r.Get("/sessions", dep.UserHandler.Sessions)
			r.With(requireAdmin).Post("/cleanup-sessions", dep.UserHandler.CleanupSessions)
		})
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(requireAuth)
		r.Use(requireAdmin)
		r.Get("/users", dep.AdminHandler.ListUsers)
		r.Post("/create-user", dep.AdminHandler.CreateUser)
		r.Delete("/users/{id}", dep.AdminHandler.DeleteUser)
		r.Put("/users/{id}/role", dep.AdminHandler.UpdateRole)
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
