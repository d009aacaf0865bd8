package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const roleColumns = `id, name, description, permissions, is_active, created_at, updated_at FROM roles`

// RoleRepository persists roles and their advisory permission maps.
type RoleRepository struct {
	db dbtx
}

// Create inserts a role. The ID is generated if empty.
func (r *RoleRepository) Create(ctx context.Context, role *Role) error {
	if role.ID == "" {
		role.ID = "rol-" + uuid.NewString()
	}
	if role.Permissions == nil {
		role.Permissions = Permissions{}
	}

	perms, err := json.Marshal(role.Permissions)
	if err != nil {
		return fmt.Errorf("encoding permissions: %w", err)
	}

	now := formatTime(time.Now())
	role.CreatedAt = parseTime(now)
	role.UpdatedAt = role.CreatedAt

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO roles (id, name, description, permissions, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		role.ID, role.Name, nullString(role.Description), string(perms),
		boolToInt(role.IsActive), now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateRoleName.withCause(err)
		}
		return fmt.Errorf("creating role: %w", err)
	}
	return nil
}

// GetByID retrieves a role by ID.
func (r *RoleRepository) GetByID(ctx context.Context, id string) (*Role, error) {
	return scanRoleFrom(r.db.QueryRowContext(ctx, "SELECT "+roleColumns+" WHERE id = ?", id))
}

// GetByName retrieves a role by its unique name.
func (r *RoleRepository) GetByName(ctx context.Context, name string) (*Role, error) {
	return scanRoleFrom(r.db.QueryRowContext(ctx, "SELECT "+roleColumns+" WHERE name = ?", name))
}

// List returns all roles ordered by name.
func (r *RoleRepository) List(ctx context.Context) ([]Role, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+roleColumns+" ORDER BY name ASC")
	if err != nil {
		return nil, fmt.Errorf("listing roles: %w", err)
	}
	defer rows.Close()

	roles := []Role{}
	for rows.Next() {
		role, err := scanRoleFrom(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, *role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating roles: %w", err)
	}
	return roles, nil
}

// Update writes a role's name, description, permissions and active flag.
func (r *RoleRepository) Update(ctx context.Context, role *Role) error {
	perms, err := json.Marshal(role.Permissions)
	if err != nil {
		return fmt.Errorf("encoding permissions: %w", err)
	}

	now := formatTime(time.Now())
	role.UpdatedAt = parseTime(now)

	result, err := r.db.ExecContext(ctx,
		`UPDATE roles SET name = ?, description = ?, permissions = ?, is_active = ?, updated_at = ?
		 WHERE id = ?`,
		role.Name, nullString(role.Description), string(perms), boolToInt(role.IsActive), now, role.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateRoleName.withCause(err)
		}
		return fmt.Errorf("updating role: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrRoleNotFound
	}
	return nil
}

// Delete removes a role. A role still referenced by users is refused by
// the foreign key and reported as ErrRoleInUse.
func (r *RoleRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM roles WHERE id = ?", id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrRoleInUse.withCause(err)
		}
		return fmt.Errorf("deleting role: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrRoleNotFound
	}
	return nil
}

func scanRoleFrom(s scanner) (*Role, error) {
	var role Role
	var description sql.NullString
	var perms string
	var isActive int
	var createdAt, updatedAt string

	err := s.Scan(&role.ID, &role.Name, &description, &perms, &isActive, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("scanning role: %w", err)
	}

	role.Permissions = Permissions{}
	if err := json.Unmarshal([]byte(perms), &role.Permissions); err != nil {
		return nil, fmt.Errorf("decoding permissions for role %s: %w", role.ID, err)
	}
	role.Description = description.String
	role.IsActive = isActive != 0
	role.CreatedAt = parseTime(createdAt)
	role.UpdatedAt = parseTime(updatedAt)

	return &role, nil
}
