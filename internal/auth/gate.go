package auth

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	User    *User
	Claims  *Claims
	Session *Session
}

// Gate resolves bearer credentials into a Principal and answers
// authorization questions about it.
type Gate struct {
	store *Store
	codec *TokenCodec
	now   func() time.Time
}

// NewGate returns a Gate reading sessions and users from store.
func NewGate(store *Store, codec *TokenCodec) *Gate {
	return &Gate{store: store, codec: codec, now: time.Now}
}

// Authenticate validates an Authorization header value.
//
// The token must be a signed, unexpired access token whose session is
// neither revoked nor past its access expiry, and whose subject is an
// active user.
func (g *Gate) Authenticate(ctx context.Context, header string) (*Principal, error) {
	token, ok := bearerToken(header)
	if !ok {
		return nil, ErrUnauthenticated
	}

	claims, err := g.codec.Verify(token)
	if err != nil {
		return nil, ErrUnauthenticated.withCause(err)
	}
	if claims.Type != TokenAccess {
		return nil, ErrUnauthenticated
	}

	// Session and user are read in one transaction so a concurrent
	// revoke-and-deactivate is seen whole or not at all.
	var (
		session *Session
		user    *User
	)
	err = g.store.InTx(ctx, func(r Repos) error {
		found, err := r.Sessions.FindByAccessJTI(ctx, claims.ID)
		if errors.Is(err, ErrSessionNotFound) {
			return ErrSessionExpiredOrRevoked
		}
		if err != nil {
			return err
		}
		if found.IsRevoked {
			return ErrSessionExpiredOrRevoked
		}
		if !found.ExpiresAt.After(g.now()) {
			return ErrTokenExpired
		}

		owner, err := r.Users.GetByID(ctx, claims.Subject)
		if errors.Is(err, ErrUserNotFound) {
			return ErrUnauthenticated
		}
		if err != nil {
			return err
		}
		if !owner.IsActive {
			return ErrAccountInactive
		}
		session, user = found, owner
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Principal{User: user, Claims: claims, Session: session}, nil
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Role returns the caller's role name.
func (p *Principal) Role() string { return p.User.RoleName }

// Tier returns the caller's role tier.
func (p *Principal) Tier() Tier { return TierOf(p.User.RoleName) }

// RequireRole allows the caller when their role is one of names.
func (p *Principal) RequireRole(names ...string) error {
	if slices.Contains(names, p.User.RoleName) {
		return nil
	}
	return ErrForbidden
}

// RequireSystemAdmin allows system administrators only.
func (p *Principal) RequireSystemAdmin() error {
	return p.RequireRole(RoleSystemAdmin)
}

// RequireSchoolAdminOrAbove allows school and system administrators.
func (p *Principal) RequireSchoolAdminOrAbove() error {
	if IsAtLeast(p.User.RoleName, TierSchoolAdmin) {
		return nil
	}
	return ErrForbidden
}

// RequireOrganizationAccess allows system administrators and members of orgID.
func (p *Principal) RequireOrganizationAccess(orgID string) error {
	if p.User.RoleName == RoleSystemAdmin {
		return nil
	}
	if orgID != "" && p.User.OrganizationID == orgID {
		return nil
	}
	return ErrForbidden
}

// RequireSelfOrOrgAdmin allows the target user themselves, system
// administrators, and school administrators of the target's organization.
func (p *Principal) RequireSelfOrOrgAdmin(target *User) error {
	switch {
	case p.User.ID == target.ID:
		return nil
	case p.User.RoleName == RoleSystemAdmin:
		return nil
	case p.User.RoleName == RoleSchoolAdmin && target.OrganizationID != "" &&
		target.OrganizationID == p.User.OrganizationID:
		return nil
	}
	return ErrForbidden
}
