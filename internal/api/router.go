package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// healthCheckTimeout bounds each component probe in /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.Post("/refresh", s.handleRefresh)
		r.Post("/forgot-password", s.handleForgotPassword)
		r.Post("/reset-password", s.handleResetPassword)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Post("/logout", s.handleLogout)
			r.Patch("/change-password", s.handleChangePassword)
			r.Get("/sessions", s.handleListSessions)
		})
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Route("/users", func(r chi.Router) {
			r.Get("/", s.handleListUsers)
			r.Post("/", s.handleCreateUser)
			r.Get("/me", s.handleMe)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetUser)
				r.Put("/", s.handleUpdateUser)
				r.Patch("/", s.handleUpdateUser)
				r.Delete("/", s.handleDeleteUser)
			})
		})

		r.Route("/organizations", func(r chi.Router) {
			r.Get("/", s.handleListOrganizations)
			r.Post("/", s.handleCreateOrganization)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetOrganization)
				r.Patch("/", s.handleUpdateOrganization)
				r.Delete("/", s.handleDeleteOrganization)
				r.Get("/users-count", s.handleOrganizationUsersCount)
			})
		})

		r.Route("/roles", func(r chi.Router) {
			r.Get("/", s.handleListRoles)
			r.Post("/", s.handleCreateRole)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetRole)
				r.Put("/", s.handleUpdateRole)
				r.Delete("/", s.handleDeleteRole)
			})
		})

		r.Get("/audit-logs", s.handleListAuditLogs)
		r.Get("/metrics", s.handleMetrics)
	})

	return r
}

// handleRoot returns service metadata.
func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message":     "Vyon Authentication Service API",
		"version":     s.version,
		"environment": s.environment,
	})
}

// handleHealth reports database health plus the optional integrations.
// Only a failing database makes the service unhealthy.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	components := map[string]string{}
	status := "healthy"
	code := http.StatusOK

	probe := func(name string, check func(context.Context) error) bool {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := check(ctx); err != nil {
			s.logger.Warn("health check failed", "component", name, "error", err)
			components[name] = "unhealthy"
			return false
		}
		components[name] = "healthy"
		return true
	}

	if s.db != nil && !probe("database", s.db.HealthCheck) {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	if s.mqtt != nil && !probe("mqtt", s.mqtt.HealthCheck) && code == http.StatusOK {
		status = "degraded"
	}
	if s.influx != nil && !probe("influxdb", s.influx.HealthCheck) && code == http.StatusOK {
		status = "degraded"
	}

	writeJSON(w, code, map[string]any{
		"status":     status,
		"version":    s.version,
		"components": components,
	})
}
