package api

import (
	"errors"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/vyon/auth-service/internal/auth"
)

// Field length bounds for request bodies.
const (
	maxEmailLength    = 254
	maxPasswordLength = 128
	maxNameLength     = 200
	maxFieldLength    = 255
)

// organizationCodePattern keeps codes usable inside generated usernames.
var organizationCodePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{2,32}$`)

var errInvalidUsername = errors.New("must be 3-64 characters: letters, digits, dots, hyphens or underscores")

// usernameRule validates a string or *string username.
var usernameRule = validation.By(func(value any) error {
	v, isNil := validation.Indirect(value)
	if isNil || validation.IsEmpty(v) {
		return nil
	}
	if s, ok := v.(string); !ok || !auth.IsValidUsername(s) {
		return errInvalidUsername
	}
	return nil
})

var passwordRules = []validation.Rule{
	validation.Required,
	validation.Length(auth.MinPasswordLength, maxPasswordLength),
}

// ─── Auth ──────────────────────────────────────────────────────────

type registerRequest struct {
	Email          string `json:"email"`
	Username       string `json:"username"`
	Password       string `json:"password"`
	FullName       string `json:"full_name"`
	RoleID         string `json:"role_id"`
	OrganizationID string `json:"organization_id"`
}

func (r registerRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, maxEmailLength), is.Email),
		validation.Field(&r.Username, validation.Required, usernameRule),
		validation.Field(&r.Password, passwordRules...),
		validation.Field(&r.FullName, validation.Length(0, maxNameLength)),
	)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r loginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, maxEmailLength)),
		validation.Field(&r.Password, validation.Required, validation.Length(1, maxPasswordLength)),
	)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (r refreshRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RefreshToken, validation.Required),
	)
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (r changePasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.OldPassword, validation.Required, validation.Length(1, maxPasswordLength)),
		validation.Field(&r.NewPassword, passwordRules...),
	)
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

func (r forgotPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, maxEmailLength), is.Email),
	)
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (r resetPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.NewPassword, passwordRules...),
	)
}

// ─── Users ─────────────────────────────────────────────────────────

type createUserRequest struct {
	Email          string `json:"email"`
	Username       string `json:"username"`
	Password       string `json:"password"`
	FullName       string `json:"full_name"`
	RoleID         string `json:"role_id"`
	OrganizationID string `json:"organization_id"`
	IsActive       *bool  `json:"is_active"`
}

func (r createUserRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, maxEmailLength), is.Email),
		validation.Field(&r.Username, validation.Required, usernameRule),
		validation.Field(&r.Password, passwordRules...),
		validation.Field(&r.FullName, validation.Length(0, maxNameLength)),
		validation.Field(&r.RoleID, validation.Required),
	)
}

func (r createUserRequest) input() auth.CreateUserInput {
	return auth.CreateUserInput{
		Email:          r.Email,
		Username:       r.Username,
		Password:       r.Password,
		FullName:       r.FullName,
		RoleID:         r.RoleID,
		OrganizationID: r.OrganizationID,
		IsActive:       r.IsActive,
	}
}

type updateUserRequest struct {
	Email          *string `json:"email"`
	Username       *string `json:"username"`
	FullName       *string `json:"full_name"`
	RoleID         *string `json:"role_id"`
	OrganizationID *string `json:"organization_id"`
	IsActive       *bool   `json:"is_active"`
	IsVerified     *bool   `json:"is_verified"`
}

func (r updateUserRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.NilOrNotEmpty, validation.Length(3, maxEmailLength), is.Email),
		validation.Field(&r.Username, validation.NilOrNotEmpty, usernameRule),
		validation.Field(&r.FullName, validation.Length(0, maxNameLength)),
		validation.Field(&r.RoleID, validation.NilOrNotEmpty),
	)
}

func (r updateUserRequest) input() auth.UpdateUserInput {
	return auth.UpdateUserInput{
		Email:          r.Email,
		Username:       r.Username,
		FullName:       r.FullName,
		RoleID:         r.RoleID,
		OrganizationID: r.OrganizationID,
		IsActive:       r.IsActive,
		IsVerified:     r.IsVerified,
	}
}

// ─── Organizations ─────────────────────────────────────────────────

type createOrganizationRequest struct {
	Name       string `json:"name"`
	Code       string `json:"code"`
	Address    string `json:"address"`
	City       string `json:"city"`
	State      string `json:"state"`
	Country    string `json:"country"`
	PostalCode string `json:"postal_code"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
	Website    string `json:"website"`
}

func (r createOrganizationRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, maxNameLength)),
		validation.Field(&r.Code, validation.Required, validation.Match(organizationCodePattern)),
		validation.Field(&r.Email, validation.Required, validation.Length(3, maxEmailLength), is.Email),
		validation.Field(&r.Website, validation.Length(0, maxFieldLength), is.URL),
		validation.Field(&r.Address, validation.Length(0, maxFieldLength)),
		validation.Field(&r.City, validation.Length(0, maxNameLength)),
		validation.Field(&r.State, validation.Length(0, maxNameLength)),
		validation.Field(&r.Country, validation.Length(0, maxNameLength)),
		validation.Field(&r.PostalCode, validation.Length(0, 20)),
		validation.Field(&r.Phone, validation.Length(0, 32)),
	)
}

func (r createOrganizationRequest) organization() *auth.Organization {
	return &auth.Organization{
		Name:       r.Name,
		Code:       r.Code,
		Address:    r.Address,
		City:       r.City,
		State:      r.State,
		Country:    r.Country,
		PostalCode: r.PostalCode,
		Phone:      r.Phone,
		Email:      r.Email,
		Website:    r.Website,
	}
}

type updateOrganizationRequest struct {
	Name       *string `json:"name"`
	Code       *string `json:"code"`
	Address    *string `json:"address"`
	City       *string `json:"city"`
	State      *string `json:"state"`
	Country    *string `json:"country"`
	PostalCode *string `json:"postal_code"`
	Phone      *string `json:"phone"`
	Email      *string `json:"email"`
	Website    *string `json:"website"`
	IsActive   *bool   `json:"is_active"`
}

func (r updateOrganizationRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.NilOrNotEmpty, validation.Length(1, maxNameLength)),
		validation.Field(&r.Code, validation.NilOrNotEmpty, validation.Match(organizationCodePattern)),
		validation.Field(&r.Email, validation.NilOrNotEmpty, validation.Length(3, maxEmailLength), is.Email),
		validation.Field(&r.Website, validation.Length(0, maxFieldLength), is.URL),
	)
}

func (r updateOrganizationRequest) input() auth.UpdateOrganizationInput {
	return auth.UpdateOrganizationInput{
		Name:       r.Name,
		Code:       r.Code,
		Address:    r.Address,
		City:       r.City,
		State:      r.State,
		Country:    r.Country,
		PostalCode: r.PostalCode,
		Phone:      r.Phone,
		Email:      r.Email,
		Website:    r.Website,
		IsActive:   r.IsActive,
	}
}

// ─── Roles ─────────────────────────────────────────────────────────

type createRoleRequest struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Permissions auth.Permissions `json:"permissions"`
	IsActive    *bool            `json:"is_active"`
}

func (r createRoleRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 64)),
		validation.Field(&r.Description, validation.Length(0, maxFieldLength)),
	)
}

type updateRoleRequest struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Permissions auth.Permissions `json:"permissions"`
	IsActive    *bool            `json:"is_active"`
}

func (r updateRoleRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.NilOrNotEmpty, validation.Length(1, 64)),
		validation.Field(&r.Description, validation.Length(0, maxFieldLength)),
	)
}
