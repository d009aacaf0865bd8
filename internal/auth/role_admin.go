package auth

import (
	"context"
	"strings"
)

// CreateRoleInput describes a custom role.
type CreateRoleInput struct {
	Name        string
	Description string
	Permissions Permissions
	IsActive    *bool // defaults to true
}

// UpdateRoleInput is a partial role update. Nil fields are left unchanged.
type UpdateRoleInput struct {
	Name        *string
	Description *string
	Permissions Permissions
	IsActive    *bool
}

// ListRoles returns every role.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.store.Read().Roles.List(ctx)
}

// GetRole returns one role.
func (s *Service) GetRole(ctx context.Context, id string) (*Role, error) {
	return s.store.Read().Roles.GetByID(ctx, id)
}

// CreateRole adds a custom role.
func (s *Service) CreateRole(ctx context.Context, actor *Principal, in CreateRoleInput) (*Role, error) {
	if err := actor.RequireSystemAdmin(); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, ValidationError("Role name is required")
	}

	role := &Role{
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Permissions: in.Permissions.Clone(),
		IsActive:    in.IsActive == nil || *in.IsActive,
	}

	err := s.store.InTx(ctx, func(r Repos) error {
		return r.Roles.Create(ctx, role)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("role created", "role_id", role.ID, "name", role.Name, "by", actor.User.ID)
	return role, nil
}

// UpdateRole edits a role. Built-in roles keep their names.
func (s *Service) UpdateRole(ctx context.Context, actor *Principal, id string, in UpdateRoleInput) (*Role, error) {
	if err := actor.RequireSystemAdmin(); err != nil {
		return nil, err
	}

	var role *Role
	err := s.store.InTx(ctx, func(r Repos) error {
		var err error
		role, err = r.Roles.GetByID(ctx, id)
		if err != nil {
			return err
		}

		if in.Name != nil {
			name := strings.TrimSpace(*in.Name)
			if name == "" {
				return ValidationError("Role name is required")
			}
			if name != role.Name && IsCanonicalRole(role.Name) {
				return ErrCanonicalRole
			}
			role.Name = name
		}
		if in.Description != nil {
			role.Description = strings.TrimSpace(*in.Description)
		}
		if in.Permissions != nil {
			role.Permissions = in.Permissions.Clone()
		}
		if in.IsActive != nil {
			role.IsActive = *in.IsActive
		}

		return r.Roles.Update(ctx, role)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("role updated", "role_id", id, "by", actor.User.ID)
	return role, nil
}

// DeleteRole removes a custom role that no user references.
func (s *Service) DeleteRole(ctx context.Context, actor *Principal, id string) error {
	if err := actor.RequireSystemAdmin(); err != nil {
		return err
	}

	err := s.store.InTx(ctx, func(r Repos) error {
		role, err := r.Roles.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if IsCanonicalRole(role.Name) {
			return ErrCanonicalRole
		}

		n, err := r.Users.CountByRole(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrRoleInUse
		}
		return r.Roles.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	s.logger.Info("role deleted", "role_id", id, "by", actor.User.ID)
	return nil
}
