package auth

import (
	"context"
	"errors"
	"strings"
)

// UpdateOrganizationInput is a partial organization update. Nil fields
// are left unchanged.
type UpdateOrganizationInput struct {
	Name       *string
	Code       *string
	Address    *string
	City       *string
	State      *string
	Country    *string
	PostalCode *string
	Phone      *string
	Email      *string
	Website    *string
	IsActive   *bool
}

// CreateOrganization onboards a tenant and its school administrator.
//
// The administrator account is created after the organization commits. If
// it cannot be created the organization is kept and a warning is logged.
func (s *Service) CreateOrganization(ctx context.Context, actor *Principal, org *Organization) (*Organization, error) {
	if err := actor.RequireSystemAdmin(); err != nil {
		return nil, err
	}

	org.Name = strings.TrimSpace(org.Name)
	org.Code = strings.TrimSpace(org.Code)
	org.Email = normalizeEmail(org.Email)
	org.IsActive = true

	err := s.store.InTx(ctx, func(r Repos) error {
		return r.Organizations.Create(ctx, org)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("organization created", "organization_id", org.ID, "code", org.Code, "by", actor.User.ID)

	admin, password, err := s.createOrganizationAdmin(ctx, org)
	if err != nil {
		s.logger.Warn("organization admin not created", "organization_id", org.ID, "error", err)
		return org, nil
	}

	s.notify(ctx, Notification{
		Kind: NotifyOrganizationWelcome,
		To:   org.Email,
		Name: org.Name,
		Data: map[string]string{
			"organization_code":  org.Code,
			"admin_username":     admin.Username,
			"temporary_password": password,
		},
	})
	return org, nil
}

func (s *Service) createOrganizationAdmin(ctx context.Context, org *Organization) (*User, string, error) {
	password, err := generatePassword()
	if err != nil {
		return nil, "", err
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, "", err
	}

	admin := &User{
		Email:          org.Email,
		Username:       "admin." + strings.ToLower(org.Code),
		FullName:       org.Name + " Administrator",
		PasswordHash:   hash,
		OrganizationID: org.ID,
		IsActive:       true,
	}

	err = s.store.InTx(ctx, func(r Repos) error {
		role, err := r.Roles.GetByName(ctx, RoleSchoolAdmin)
		if err != nil {
			return err
		}
		admin.RoleID = role.ID
		return createUser(ctx, r, admin)
	})
	if err != nil {
		return nil, "", err
	}

	s.logger.Info("organization admin created", "organization_id", org.ID, "user_id", admin.ID)
	return admin, password, nil
}

// ListOrganizations returns every organization to a system administrator
// and the caller's own organization to everyone else.
func (s *Service) ListOrganizations(ctx context.Context, actor *Principal, filter OrganizationFilter) ([]Organization, error) {
	repos := s.store.Read()
	if actor.Role() == RoleSystemAdmin {
		return repos.Organizations.List(ctx, filter)
	}

	if actor.User.OrganizationID == "" {
		return []Organization{}, nil
	}
	org, err := repos.Organizations.GetByID(ctx, actor.User.OrganizationID)
	if errors.Is(err, ErrOrganizationNotFound) {
		return []Organization{}, nil
	}
	if err != nil {
		return nil, err
	}
	return []Organization{*org}, nil
}

// GetOrganization returns an organization the actor belongs to.
func (s *Service) GetOrganization(ctx context.Context, actor *Principal, id string) (*Organization, error) {
	if err := actor.RequireOrganizationAccess(id); err != nil {
		return nil, err
	}
	return s.store.Read().Organizations.GetByID(ctx, id)
}

// UpdateOrganization applies a partial update. Only a system administrator
// may change is_active.
func (s *Service) UpdateOrganization(ctx context.Context, actor *Principal, id string, in UpdateOrganizationInput) (*Organization, error) {
	if err := actor.RequireSchoolAdminOrAbove(); err != nil {
		return nil, err
	}
	if err := actor.RequireOrganizationAccess(id); err != nil {
		return nil, err
	}
	if in.IsActive != nil && actor.Role() != RoleSystemAdmin {
		return nil, ErrForbidden
	}

	var org *Organization
	err := s.store.InTx(ctx, func(r Repos) error {
		var err error
		org, err = r.Organizations.GetByID(ctx, id)
		if err != nil {
			return err
		}

		setTrimmed(&org.Name, in.Name)
		setTrimmed(&org.Code, in.Code)
		setTrimmed(&org.Address, in.Address)
		setTrimmed(&org.City, in.City)
		setTrimmed(&org.State, in.State)
		setTrimmed(&org.Country, in.Country)
		setTrimmed(&org.PostalCode, in.PostalCode)
		setTrimmed(&org.Phone, in.Phone)
		setTrimmed(&org.Website, in.Website)
		if in.Email != nil {
			org.Email = normalizeEmail(*in.Email)
		}
		if in.IsActive != nil {
			org.IsActive = *in.IsActive
		}

		return r.Organizations.Update(ctx, org)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("organization updated", "organization_id", id, "by", actor.User.ID)
	return org, nil
}

// DeleteOrganization soft-deletes an organization.
func (s *Service) DeleteOrganization(ctx context.Context, actor *Principal, id string) error {
	if err := actor.RequireSystemAdmin(); err != nil {
		return err
	}

	err := s.store.InTx(ctx, func(r Repos) error {
		return r.Organizations.Deactivate(ctx, id)
	})
	if err != nil {
		return err
	}

	s.logger.Info("organization deactivated", "organization_id", id, "by", actor.User.ID)
	return nil
}

// CountOrganizationUsers returns the number of users in an organization.
func (s *Service) CountOrganizationUsers(ctx context.Context, actor *Principal, id string) (int, error) {
	if err := actor.RequireOrganizationAccess(id); err != nil {
		return 0, err
	}

	repos := s.store.Read()
	if _, err := repos.Organizations.GetByID(ctx, id); err != nil {
		return 0, err
	}
	return repos.Users.CountByOrganization(ctx, id)
}

func setTrimmed(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}
