package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vyon/auth-service/internal/auth"
)

// handleListRoles returns every role with its advisory permissions.
func (s *Server) handleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := s.service.ListRoles(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if roles == nil {
		roles = []auth.Role{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"roles": roles,
		"count": len(roles),
	})
}

// handleGetRole returns a single role.
func (s *Server) handleGetRole(w http.ResponseWriter, r *http.Request) {
	role, err := s.service.GetRole(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, role)
}

// handleCreateRole creates a custom role.
func (s *Server) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	p := principalFromContext(r.Context())

	var req createRoleRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	role, err := s.service.CreateRole(r.Context(), p, auth.CreateRoleInput{
		Name:        req.Name,
		Description: req.Description,
		Permissions: req.Permissions,
		IsActive:    req.IsActive,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.auditLog(r, "create", "role", role.ID, p.User.ID, map[string]any{"name": role.Name})
	writeJSON(w, http.StatusCreated, role)
}

// handleUpdateRole updates role metadata.
func (s *Server) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p := principalFromContext(r.Context())

	var req updateRoleRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	role, err := s.service.UpdateRole(r.Context(), p, id, auth.UpdateRoleInput{
		Name:        req.Name,
		Description: req.Description,
		Permissions: req.Permissions,
		IsActive:    req.IsActive,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.auditLog(r, "update", "role", id, p.User.ID, nil)
	writeJSON(w, http.StatusOK, role)
}

// handleDeleteRole deletes an unused custom role.
func (s *Server) handleDeleteRole(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p := principalFromContext(r.Context())

	if err := s.service.DeleteRole(r.Context(), p, id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.auditLog(r, "delete", "role", id, p.User.ID, nil)
	writeMessage(w, http.StatusOK, "Role deleted successfully")
}
