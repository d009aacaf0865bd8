package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const organizationColumns = `id, name, code, address, city, state, country, postal_code,
	phone, email, website, is_active, created_at, updated_at FROM organizations`

// defaultCountry applies when an organization is created without one.
const defaultCountry = "India"

// OrganizationFilter narrows an organization listing.
type OrganizationFilter struct {
	IsActive *bool
	Skip     int
	Limit    int
}

// OrganizationRepository persists tenants.
type OrganizationRepository struct {
	db dbtx
}

// Create inserts an organization. The ID is generated if empty.
func (r *OrganizationRepository) Create(ctx context.Context, org *Organization) error {
	if org.ID == "" {
		org.ID = "org-" + uuid.NewString()
	}
	if org.Country == "" {
		org.Country = defaultCountry
	}

	now := formatTime(time.Now())
	org.CreatedAt = parseTime(now)
	org.UpdatedAt = org.CreatedAt

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO organizations (id, name, code, address, city, state, country, postal_code,
		                            phone, email, website, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		org.ID, org.Name, org.Code, nullString(org.Address), nullString(org.City),
		nullString(org.State), org.Country, nullString(org.PostalCode),
		nullString(org.Phone), org.Email, nullString(org.Website),
		boolToInt(org.IsActive), now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateOrganizationCode.withCause(err)
		}
		return fmt.Errorf("creating organization: %w", err)
	}
	return nil
}

// GetByID retrieves an organization by ID.
func (r *OrganizationRepository) GetByID(ctx context.Context, id string) (*Organization, error) {
	return scanOrganizationFrom(r.db.QueryRowContext(ctx, "SELECT "+organizationColumns+" WHERE id = ?", id))
}

// GetByCode retrieves an organization by its unique code.
func (r *OrganizationRepository) GetByCode(ctx context.Context, code string) (*Organization, error) {
	return scanOrganizationFrom(r.db.QueryRowContext(ctx, "SELECT "+organizationColumns+" WHERE code = ?", code))
}

// List returns organizations ordered by name.
func (r *OrganizationRepository) List(ctx context.Context, filter OrganizationFilter) ([]Organization, error) {
	skip, limit := clampPage(filter.Skip, filter.Limit)

	query := "SELECT " + organizationColumns
	var args []any
	if filter.IsActive != nil {
		query += " WHERE is_active = ?"
		args = append(args, boolToInt(*filter.IsActive))
	}
	query += " ORDER BY name ASC, id ASC LIMIT ? OFFSET ?"
	args = append(args, limit, skip)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing organizations: %w", err)
	}
	defer rows.Close()

	orgs := []Organization{}
	for rows.Next() {
		org, err := scanOrganizationFrom(rows)
		if err != nil {
			return nil, err
		}
		orgs = append(orgs, *org)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating organizations: %w", err)
	}
	return orgs, nil
}

// Update writes every mutable organization field.
func (r *OrganizationRepository) Update(ctx context.Context, org *Organization) error {
	now := formatTime(time.Now())
	org.UpdatedAt = parseTime(now)

	result, err := r.db.ExecContext(ctx,
		`UPDATE organizations SET name = ?, code = ?, address = ?, city = ?, state = ?, country = ?,
		                          postal_code = ?, phone = ?, email = ?, website = ?, is_active = ?,
		                          updated_at = ?
		 WHERE id = ?`,
		org.Name, org.Code, nullString(org.Address), nullString(org.City), nullString(org.State),
		org.Country, nullString(org.PostalCode), nullString(org.Phone), org.Email,
		nullString(org.Website), boolToInt(org.IsActive), now, org.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateOrganizationCode.withCause(err)
		}
		return fmt.Errorf("updating organization: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrOrganizationNotFound
	}
	return nil
}

// Deactivate soft-deletes an organization. The row and its users remain.
func (r *OrganizationRepository) Deactivate(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE organizations SET is_active = 0, updated_at = ? WHERE id = ?`,
		formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("deactivating organization: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrOrganizationNotFound
	}
	return nil
}

func scanOrganizationFrom(s scanner) (*Organization, error) {
	var org Organization
	var address, city, state, postal, phone, website sql.NullString
	var isActive int
	var createdAt, updatedAt string

	err := s.Scan(&org.ID, &org.Name, &org.Code, &address, &city, &state, &org.Country,
		&postal, &phone, &org.Email, &website, &isActive, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("scanning organization: %w", err)
	}

	org.Address = address.String
	org.City = city.String
	org.State = state.String
	org.PostalCode = postal.String
	org.Phone = phone.String
	org.Website = website.String
	org.IsActive = isActive != 0
	org.CreatedAt = parseTime(createdAt)
	org.UpdatedAt = parseTime(updatedAt)

	return &org, nil
}
