package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vyon/auth-service/internal/auth"
)

// handleListUsers returns the users visible to the caller.
//
// Query parameters:
//   - organization_id: system administrators only; others are pinned to their own
//   - skip, limit: paging
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	p := principalFromContext(r.Context())
	q := r.URL.Query()

	users, err := s.service.ListUsers(r.Context(), p, auth.UserFilter{
		OrganizationID: q.Get("organization_id"),
		Skip:           queryInt(q.Get("skip"), 0),
		Limit:          queryInt(q.Get("limit"), 0),
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if users == nil {
		users = []auth.User{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"users": users,
		"count": len(users),
	})
}

// handleCreateUser creates an active account on behalf of an administrator.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	p := principalFromContext(r.Context())

	var req createUserRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	user, err := s.service.CreateUser(r.Context(), p, req.input())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.auditLog(r, "create", "user", user.ID, p.User.ID, map[string]any{
		"role":            user.RoleName,
		"organization_id": user.OrganizationID,
	})

	writeJSON(w, http.StatusCreated, user)
}

// handleMe returns the caller's profile and advisory permissions.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	profile, err := s.service.Me(r.Context(), principalFromContext(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

// handleGetUser returns a single user by ID.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.service.GetUser(r.Context(), principalFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// handleUpdateUser applies a partial update. PUT and PATCH share it.
func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p := principalFromContext(r.Context())

	var req updateUserRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	user, err := s.service.UpdateUser(r.Context(), p, id, req.input())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	details := map[string]any{}
	if req.RoleID != nil {
		details["role"] = user.RoleName
	}
	if req.IsActive != nil {
		details["is_active"] = user.IsActive
	}
	if req.OrganizationID != nil {
		details["organization_id"] = user.OrganizationID
	}
	s.auditLog(r, "update", "user", id, p.User.ID, details)

	writeJSON(w, http.StatusOK, user)
}

// handleDeleteUser removes a user account and, by cascade, its sessions.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p := principalFromContext(r.Context())

	if err := s.service.DeleteUser(r.Context(), p, id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.auditLog(r, "delete", "user", id, p.User.ID, nil)
	writeMessage(w, http.StatusOK, "User deleted successfully")
}
