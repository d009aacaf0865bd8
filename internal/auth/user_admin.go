package auth

import (
	"context"
	"strings"
)

// CreateUserInput is an administrator's direct user creation request.
type CreateUserInput struct {
	Email          string
	Username       string
	Password       string
	FullName       string
	RoleID         string
	OrganizationID string
	IsActive       *bool // defaults to true
}

// UpdateUserInput is a partial user update. Nil fields are left unchanged.
type UpdateUserInput struct {
	Email          *string
	Username       *string
	FullName       *string
	RoleID         *string
	OrganizationID *string
	IsActive       *bool
	IsVerified     *bool
}

// Profile is the caller's own user record with their role's advisory
// permission map.
type Profile struct {
	*User
	Permissions Permissions `json:"permissions"`
}

// ListUsers returns users visible to actor. A school administrator only
// ever sees their own organization, whatever filter they pass.
func (s *Service) ListUsers(ctx context.Context, actor *Principal, filter UserFilter) ([]User, error) {
	switch actor.Role() {
	case RoleSystemAdmin:
	case RoleSchoolAdmin:
		filter.OrganizationID = actor.User.OrganizationID
	default:
		return nil, ErrForbidden
	}
	return s.store.Read().Users.List(ctx, filter)
}

// CreateUser creates an account on behalf of an administrator. School
// administrators create users in their own organization only, and nobody
// may create a user above their own tier.
func (s *Service) CreateUser(ctx context.Context, actor *Principal, in CreateUserInput) (*User, error) {
	if err := actor.RequireSchoolAdminOrAbove(); err != nil {
		return nil, err
	}

	orgID := in.OrganizationID
	if actor.Role() != RoleSystemAdmin {
		if orgID == "" {
			orgID = actor.User.OrganizationID
		} else if orgID != actor.User.OrganizationID {
			return nil, ErrForbidden
		}
	}

	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	user := &User{
		Email:          normalizeEmail(in.Email),
		Username:       strings.TrimSpace(in.Username),
		FullName:       strings.TrimSpace(in.FullName),
		PasswordHash:   hash,
		RoleID:         in.RoleID,
		OrganizationID: orgID,
		IsActive:       in.IsActive == nil || *in.IsActive,
	}

	err = s.store.InTx(ctx, func(r Repos) error {
		role, err := resolveRole(ctx, r, user.RoleID)
		if err != nil {
			return err
		}
		if TierOf(role.Name) > actor.Tier() {
			return ErrForbidden
		}
		user.RoleID = role.ID
		return createUser(ctx, r, user)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user created", "user_id", user.ID, "role", user.RoleName, "by", actor.User.ID)
	return user, nil
}

// GetUser returns a user the actor may see: themselves, or anyone they
// administer.
func (s *Service) GetUser(ctx context.Context, actor *Principal, id string) (*User, error) {
	user, err := s.store.Read().Users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := actor.RequireSelfOrOrgAdmin(user); err != nil {
		return nil, err
	}
	return user, nil
}

// Me returns the caller's profile.
func (s *Service) Me(ctx context.Context, actor *Principal) (*Profile, error) {
	role, err := s.store.Read().Roles.GetByID(ctx, actor.User.RoleID)
	if err != nil {
		return nil, err
	}
	return &Profile{User: actor.User, Permissions: role.Permissions}, nil
}

// UpdateUser applies a partial update under the directory policy.
func (s *Service) UpdateUser(ctx context.Context, actor *Principal, id string, in UpdateUserInput) (*User, error) {
	var target *User
	var activated bool

	err := s.store.InTx(ctx, func(r Repos) error {
		var err error
		target, err = r.Users.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := actor.RequireSelfOrOrgAdmin(target); err != nil {
			return err
		}

		admin := IsAtLeast(actor.Role(), TierSchoolAdmin)
		self := actor.User.ID == target.ID
		privileged := in.RoleID != nil || in.OrganizationID != nil || in.IsActive != nil || in.IsVerified != nil
		if privileged && !admin {
			return ErrForbidden
		}

		wasActive := target.IsActive

		if in.Email != nil {
			email := normalizeEmail(*in.Email)
			if email != target.Email {
				taken, err := r.Users.EmailTaken(ctx, email, target.ID)
				if err != nil {
					return err
				}
				if taken {
					return ErrDuplicateEmail
				}
				target.Email = email
			}
		}
		if in.Username != nil {
			username := strings.TrimSpace(*in.Username)
			if username != target.Username {
				taken, err := r.Users.UsernameTaken(ctx, username, target.ID)
				if err != nil {
					return err
				}
				if taken {
					return ErrDuplicateUsername
				}
				target.Username = username
			}
		}
		if in.FullName != nil {
			target.FullName = strings.TrimSpace(*in.FullName)
		}

		scopeChanged := false
		if in.OrganizationID != nil && *in.OrganizationID != target.OrganizationID {
			if actor.Role() != RoleSystemAdmin {
				return ErrForbidden
			}
			target.OrganizationID = *in.OrganizationID
			scopeChanged = true
		}
		if in.RoleID != nil && *in.RoleID != target.RoleID {
			if self {
				return ErrSelfModification
			}
			if *in.RoleID == "" {
				return ErrInvalidRole
			}
			role, err := resolveRole(ctx, r, *in.RoleID)
			if err != nil {
				return err
			}
			if TierOf(role.Name) > actor.Tier() {
				return ErrForbidden
			}
			target.RoleID = role.ID
			target.RoleName = role.Name
			scopeChanged = true
		}
		if scopeChanged {
			if err := checkOrganization(ctx, r, target.RoleName, target.OrganizationID); err != nil {
				return err
			}
		}

		if in.IsActive != nil {
			if self && !*in.IsActive {
				return ErrSelfModification
			}
			target.IsActive = *in.IsActive
		}
		if in.IsVerified != nil {
			target.IsVerified = *in.IsVerified
		}

		activated = !wasActive && target.IsActive
		return r.Users.Update(ctx, target)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user updated", "user_id", target.ID, "by", actor.User.ID)
	if activated {
		s.record("account_activation", OutcomeSuccess)
		s.notify(ctx, Notification{Kind: NotifyAccountActivated, To: target.Email, Name: target.FullName})
	}
	return target, nil
}

// DeleteUser removes a user and, by cascade, their sessions.
func (s *Service) DeleteUser(ctx context.Context, actor *Principal, id string) error {
	if err := actor.RequireSchoolAdminOrAbove(); err != nil {
		return err
	}
	if actor.User.ID == id {
		return ErrSelfModification
	}

	err := s.store.InTx(ctx, func(r Repos) error {
		target, err := r.Users.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if actor.Role() != RoleSystemAdmin {
			if target.OrganizationID == "" || target.OrganizationID != actor.User.OrganizationID {
				return ErrForbidden
			}
		}
		return r.Users.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	s.logger.Info("user deleted", "user_id", id, "by", actor.User.ID)
	return nil
}
