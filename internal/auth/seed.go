package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
)

// seedPasswordBytes is the number of random bytes in a generated password.
const seedPasswordBytes = 16

// BootstrapAdmin describes the system administrator created on first boot.
type BootstrapAdmin struct {
	Email    string
	Username string
	Password string // generated when empty
}

// SeedRoles creates each canonical role that does not exist yet, with its
// default permission map. Existing roles are left untouched.
func SeedRoles(ctx context.Context, store *Store, logger *slog.Logger) (int, error) {
	created := 0
	err := store.InTx(ctx, func(r Repos) error {
		for _, def := range canonicalRoles {
			_, err := r.Roles.GetByName(ctx, def.Name)
			if err == nil {
				continue
			}
			if !errors.Is(err, ErrRoleNotFound) {
				return err
			}

			role := &Role{
				Name:        def.Name,
				Description: def.Description,
				Permissions: DefaultPermissions(def.Name),
				IsActive:    true,
			}
			if err := r.Roles.Create(ctx, role); err != nil {
				return fmt.Errorf("seeding role %s: %w", def.Name, err)
			}
			created++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if created > 0 {
		logger.Info("default roles seeded", "created", created)
	}
	return created, nil
}

// SeedSystemAdmin creates the bootstrap system administrator if no user
// holds its email. A generated password is logged once and returned; it
// must be changed immediately.
func SeedSystemAdmin(ctx context.Context, store *Store, hasher *Hasher, admin BootstrapAdmin, logger *slog.Logger) (string, error) {
	email := normalizeEmail(admin.Email)

	_, err := store.Read().Users.GetByEmail(ctx, email)
	if err == nil {
		logger.Info("system admin exists, skipping seed")
		return "", nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return "", fmt.Errorf("checking system admin: %w", err)
	}

	password := admin.Password
	generated := password == ""
	if generated {
		if password, err = generatePassword(); err != nil {
			return "", err
		}
	}

	hash, err := hasher.Hash(password)
	if err != nil {
		return "", fmt.Errorf("hashing seed password: %w", err)
	}

	user := &User{
		Email:        email,
		Username:     admin.Username,
		FullName:     "System Administrator",
		PasswordHash: hash,
		IsActive:     true,
		IsVerified:   true,
	}

	err = store.InTx(ctx, func(r Repos) error {
		role, err := r.Roles.GetByName(ctx, RoleSystemAdmin)
		if err != nil {
			return err
		}
		user.RoleID = role.ID
		user.RoleName = role.Name
		return r.Users.Create(ctx, user)
	})
	if err != nil {
		return "", fmt.Errorf("creating system admin: %w", err)
	}

	if !generated {
		logger.Info("system admin created", "email", email, "username", user.Username)
		return "", nil
	}

	logger.Warn("system admin created",
		"email", email,
		"username", user.Username,
		"password", password,
		"action_required", "change this password immediately",
	)
	return password, nil
}

func generatePassword() (string, error) {
	b := make([]byte, seedPasswordBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating password: %w", err)
	}
	return hex.EncodeToString(b), nil
}
