package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// userColumns is the select list shared by every user query; the role
// name comes from the joined roles row.
const userColumns = `u.id, u.email, u.username, u.password_hash, u.full_name,
	u.is_active, u.is_verified, u.role_id, r.name, u.organization_id,
	u.last_login_at, u.created_at, u.updated_at
	FROM users u JOIN roles r ON r.id = u.role_id`

// UserFilter narrows a user listing.
type UserFilter struct {
	OrganizationID string
	Skip           int
	Limit          int
}

// Listing bounds shared by the directory repositories.
const (
	defaultListLimit = 100
	maxListLimit     = 500
)

func clampPage(skip, limit int) (int, int) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return skip, limit
}

// UserRepository persists users.
type UserRepository struct {
	db dbtx
}

// Create inserts a new user. The ID is generated if empty. A lost
// uniqueness race surfaces as ErrConflict.
func (r *UserRepository) Create(ctx context.Context, user *User) error {
	if user.ID == "" {
		user.ID = "usr-" + uuid.NewString()
	}

	now := formatTime(time.Now())
	user.CreatedAt = parseTime(now)
	user.UpdatedAt = user.CreatedAt

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, username, password_hash, full_name, is_active, is_verified,
		                    role_id, organization_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.Username, user.PasswordHash, nullString(user.FullName),
		boolToInt(user.IsActive), boolToInt(user.IsVerified),
		user.RoleID, nullString(user.OrganizationID), now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict.withCause(err)
		}
		return fmt.Errorf("creating user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*User, error) {
	return r.getUser(ctx, "SELECT "+userColumns+" WHERE u.id = ?", id)
}

// GetByEmail retrieves a user by email, ignoring case.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.getUser(ctx, "SELECT "+userColumns+" WHERE u.email = ?", strings.TrimSpace(email))
}

// GetByUsername retrieves a user by username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*User, error) {
	return r.getUser(ctx, "SELECT "+userColumns+" WHERE u.username = ?", username)
}

// EmailTaken reports whether another user (not excludeID) holds email.
func (r *UserRepository) EmailTaken(ctx context.Context, email, excludeID string) (bool, error) {
	return r.exists(ctx, "SELECT COUNT(*) FROM users WHERE email = ? AND id != ?", email, excludeID)
}

// UsernameTaken reports whether another user (not excludeID) holds username.
func (r *UserRepository) UsernameTaken(ctx context.Context, username, excludeID string) (bool, error) {
	return r.exists(ctx, "SELECT COUNT(*) FROM users WHERE username = ? AND id != ?", username, excludeID)
}

// List returns users ordered by creation date.
func (r *UserRepository) List(ctx context.Context, filter UserFilter) ([]User, error) {
	skip, limit := clampPage(filter.Skip, filter.Limit)

	query := "SELECT " + userColumns
	var args []any
	if filter.OrganizationID != "" {
		query += " WHERE u.organization_id = ?"
		args = append(args, filter.OrganizationID)
	}
	query += " ORDER BY u.created_at ASC, u.id ASC LIMIT ? OFFSET ?"
	args = append(args, limit, skip)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanUserFrom(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}
	return users, nil
}

// Update writes a user's mutable profile, role, organization and flags.
func (r *UserRepository) Update(ctx context.Context, user *User) error {
	now := formatTime(time.Now())
	user.UpdatedAt = parseTime(now)

	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET email = ?, username = ?, full_name = ?, is_active = ?, is_verified = ?,
		                  role_id = ?, organization_id = ?, updated_at = ?
		 WHERE id = ?`,
		user.Email, user.Username, nullString(user.FullName),
		boolToInt(user.IsActive), boolToInt(user.IsVerified),
		user.RoleID, nullString(user.OrganizationID), now, user.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict.withCause(err)
		}
		return fmt.Errorf("updating user: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdatePassword replaces a user's password digest.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		passwordHash, formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

// TouchLogin records a successful login.
func (r *UserRepository) TouchLogin(ctx context.Context, id string, at time.Time) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_login_at = ? WHERE id = ?`, formatTime(at), id,
	); err != nil {
		return fmt.Errorf("recording login: %w", err)
	}
	return nil
}

// Delete removes a user. Their sessions cascade.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Count returns the total number of users.
func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return count, nil
}

// CountByOrganization returns the number of users in an organization.
func (r *UserRepository) CountByOrganization(ctx context.Context, orgID string) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM users WHERE organization_id = ?", orgID,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting organization users: %w", err)
	}
	return count, nil
}

// CountByRole returns the number of users holding a role.
func (r *UserRepository) CountByRole(ctx context.Context, roleID string) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM users WHERE role_id = ?", roleID,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting role users: %w", err)
	}
	return count, nil
}

func (r *UserRepository) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("checking user uniqueness: %w", err)
	}
	return count > 0, nil
}

func (r *UserRepository) getUser(ctx context.Context, query string, args ...any) (*User, error) {
	return scanUserFrom(r.db.QueryRowContext(ctx, query, args...))
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanUserFrom(s scanner) (*User, error) {
	var u User
	var fullName, orgID, lastLogin sql.NullString
	var isActive, isVerified int
	var createdAt, updatedAt string

	err := s.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &fullName,
		&isActive, &isVerified, &u.RoleID, &u.RoleName, &orgID,
		&lastLogin, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}

	u.FullName = fullName.String
	u.OrganizationID = orgID.String
	u.IsActive = isActive != 0
	u.IsVerified = isVerified != 0
	u.LastLoginAt = parseNullTime(lastLogin)
	u.CreatedAt = parseTime(createdAt)
	u.UpdatedAt = parseTime(updatedAt)

	return &u, nil
}
