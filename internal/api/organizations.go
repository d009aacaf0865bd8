package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vyon/auth-service/internal/auth"
)

// handleCreateOrganization onboards a tenant and its school administrator.
func (s *Server) handleCreateOrganization(w http.ResponseWriter, r *http.Request) {
	p := principalFromContext(r.Context())

	var req createOrganizationRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	org, err := s.service.CreateOrganization(r.Context(), p, req.organization())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.auditLog(r, "create", "organization", org.ID, p.User.ID, map[string]any{
		"code": org.Code,
	})

	writeJSON(w, http.StatusCreated, org)
}

// handleListOrganizations returns the organizations visible to the caller.
//
// Query parameters:
//   - is_active: true or false
//   - skip, limit: paging
func (s *Server) handleListOrganizations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := auth.OrganizationFilter{
		Skip:  queryInt(q.Get("skip"), 0),
		Limit: queryInt(q.Get("limit"), 0),
	}
	if v := q.Get("is_active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			writeBadRequest(w, "is_active must be true or false")
			return
		}
		filter.IsActive = &active
	}

	orgs, err := s.service.ListOrganizations(r.Context(), principalFromContext(r.Context()), filter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if orgs == nil {
		orgs = []auth.Organization{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"organizations": orgs,
		"count":         len(orgs),
	})
}

// handleGetOrganization returns a single organization.
func (s *Server) handleGetOrganization(w http.ResponseWriter, r *http.Request) {
	org, err := s.service.GetOrganization(r.Context(), principalFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, org)
}

// handleUpdateOrganization applies a partial update.
func (s *Server) handleUpdateOrganization(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p := principalFromContext(r.Context())

	var req updateOrganizationRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	org, err := s.service.UpdateOrganization(r.Context(), p, id, req.input())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.auditLog(r, "update", "organization", id, p.User.ID, nil)
	writeJSON(w, http.StatusOK, org)
}

// handleDeleteOrganization soft-deletes an organization.
func (s *Server) handleDeleteOrganization(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p := principalFromContext(r.Context())

	if err := s.service.DeleteOrganization(r.Context(), p, id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.auditLog(r, "delete", "organization", id, p.User.ID, nil)
	w.WriteHeader(http.StatusNoContent)
}

// handleOrganizationUsersCount returns how many users belong to an organization.
func (s *Server) handleOrganizationUsersCount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	count, err := s.service.CountOrganizationUsers(r.Context(), principalFromContext(r.Context()), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"organization_id": id,
		"users_count":     count,
	})
}
