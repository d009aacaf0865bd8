package api

import (
	"errors"
	"net/http"

	"github.com/vyon/auth-service/internal/auth"
)

// registeredUser is the public view of a freshly registered account.
type registeredUser struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	FullName string `json:"full_name,omitempty"`
	IsActive bool   `json:"is_active"`
}

// handleRegister creates a pending account. No tokens are issued until an
// administrator activates it.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	user, err := s.service.Register(r.Context(), auth.RegisterInput{
		Email:          req.Email,
		Username:       req.Username,
		Password:       req.Password,
		FullName:       req.FullName,
		RoleID:         req.RoleID,
		OrganizationID: req.OrganizationID,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.auditLog(r, "register", "user", user.ID, user.ID, map[string]any{
		"role":            user.RoleName,
		"organization_id": user.OrganizationID,
	})

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": auth.MsgRegistrationPending,
		"user": registeredUser{
			ID:       user.ID,
			Email:    user.Email,
			Username: user.Username,
			FullName: user.FullName,
			IsActive: user.IsActive,
		},
	})
}

// handleLogin exchanges email and password for a token pair.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	pair, err := s.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.auditLog(r, "login_failed", "session", "", "", map[string]any{
			"reason": errorCode(err),
		})
		s.writeServiceError(w, r, err)
		return
	}

	s.auditLog(r, "login", "session", "", "", nil)
	writeJSON(w, http.StatusOK, pair)
}

// handleRefresh rotates a refresh token into a new pair.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	pair, err := s.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

// handleLogout revokes the session behind the presented access token.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	p := principalFromContext(r.Context())

	if err := s.service.Logout(r.Context(), p.Claims.ID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.auditLog(r, "logout", "session", p.Session.ID, p.User.ID, nil)
	writeMessage(w, http.StatusOK, auth.MsgLoggedOut)
}

// handleChangePassword replaces the caller's password and signs out every
// session, including the current one.
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	p := principalFromContext(r.Context())

	var req changePasswordRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := s.service.ChangePassword(r.Context(), p.User.ID, req.OldPassword, req.NewPassword); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.auditLog(r, "change_password", "user", p.User.ID, p.User.ID, nil)
	writeMessage(w, http.StatusOK, auth.MsgPasswordChanged)
}

// handleForgotPassword always acknowledges with the same message, whether
// or not the email is registered.
func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	ack, err := s.service.RequestPasswordReset(r.Context(), req.Email)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ack)
}

// handleResetPassword redeems a reset token.
func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := s.service.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.auditLog(r, "reset_password", "user", "", "", nil)
	writeMessage(w, http.StatusOK, auth.MsgPasswordReset)
}

// handleListSessions returns the caller's live sessions.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	p := principalFromContext(r.Context())

	sessions, err := s.service.ListSessions(r.Context(), p.User.ID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []auth.Session{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions":   sessions,
		"count":      len(sessions),
		"current_id": p.Session.ID,
	})
}

// errorCode returns the stable code of an auth error, or "internal".
func errorCode(err error) string {
	var authErr *auth.Error
	if errors.As(err, &authErr) {
		return authErr.Code
	}
	return "internal"
}
