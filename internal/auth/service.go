package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"
)

// MinPasswordLength is the shortest password accepted for new credentials.
const MinPasswordLength = 8

// BackgroundNotifyTimeout bounds a notification dispatched off the request path.
const BackgroundNotifyTimeout = 10 * time.Second

// Acknowledgement messages returned to clients.
const (
	MsgRegistrationPending = "Registration successful! Your account is pending approval by an administrator."
	MsgLoggedOut           = "Logged out successfully"
	MsgPasswordChanged     = "Password changed successfully. Please login again."
	MsgResetRequested      = "If this email is registered, a password reset link has been sent."
	MsgPasswordReset       = "Password has been reset successfully. Please login with your new password."
)

// Auth event outcomes reported to the EventRecorder.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeDenied  = "denied"
	OutcomeSkipped = "skipped"
)

// NotificationKind names an outbound message template.
type NotificationKind string

// Notification kinds.
const (
	NotifyPasswordReset       NotificationKind = "password_reset"
	NotifyAccountActivated    NotificationKind = "account_activated"
	NotifyOrganizationWelcome NotificationKind = "organization_welcome"
)

// Notification is a fire-and-forget message for an external mail gateway.
type Notification struct {
	Kind NotificationKind  `json:"kind"`
	To   string            `json:"to"`
	Name string            `json:"name,omitempty"`
	Data map[string]string `json:"data,omitempty"`
}

// Notifier delivers notifications and reports whether delivery was accepted.
type Notifier interface {
	Notify(ctx context.Context, n Notification) bool
}

// EventRecorder receives one point per auth event for telemetry.
type EventRecorder interface {
	RecordAuthEvent(event, outcome string)
}

// ServiceConfig is the orchestrator's immutable configuration.
type ServiceConfig struct {
	// PasswordResetURL is the frontend page that accepts ?token=.
	PasswordResetURL string

	// ExposeResetToken returns the raw reset token to the caller.
	// Development only.
	ExposeResetToken bool
}

// ServiceDeps holds the collaborators of a Service.
type ServiceDeps struct {
	Store    *Store
	Codec    *TokenCodec
	Hasher   *Hasher
	Config   ServiceConfig
	Notifier Notifier      // optional
	Events   EventRecorder // optional
	Logger   *slog.Logger  // optional
}

// Service implements the account workflows: registration, login, token
// refresh, logout, password change and password reset, plus directory
// administration. Each mutating call commits in one transaction.
type Service struct {
	store    *Store
	codec    *TokenCodec
	hasher   *Hasher
	cfg      ServiceConfig
	notifier Notifier
	events   EventRecorder
	logger   *slog.Logger

	// background tracks notifications still in flight.
	background sync.WaitGroup

	// dummyDigest is verified when a login email is unknown so both
	// failure paths cost one hash.
	dummyDigest string
}

// NewService validates deps and returns a Service.
func NewService(deps ServiceDeps) (*Service, error) {
	if deps.Store == nil || deps.Codec == nil || deps.Hasher == nil {
		return nil, errors.New("store, codec and hasher are required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	dummy, err := deps.Hasher.Hash("vyon-timing-equaliser")
	if err != nil {
		return nil, fmt.Errorf("preparing dummy digest: %w", err)
	}

	return &Service{
		store:       deps.Store,
		codec:       deps.Codec,
		hasher:      deps.Hasher,
		cfg:         deps.Config,
		notifier:    deps.Notifier,
		events:      deps.Events,
		logger:      logger,
		dummyDigest: dummy,
	}, nil
}

// RegisterInput is a self-service registration request.
type RegisterInput struct {
	Email          string
	Username       string
	Password       string
	FullName       string
	RoleID         string // defaults to the student role
	OrganizationID string
}

// Register creates an inactive account awaiting administrator approval.
// No tokens are issued.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	user := &User{
		Email:          normalizeEmail(in.Email),
		Username:       strings.TrimSpace(in.Username),
		FullName:       strings.TrimSpace(in.FullName),
		RoleID:         in.RoleID,
		OrganizationID: in.OrganizationID,
		IsActive:       false,
	}

	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}
	user.PasswordHash = hash

	err = s.store.InTx(ctx, func(r Repos) error {
		return createUser(ctx, r, user)
	})
	if err != nil {
		s.record("register", OutcomeFailure)
		return nil, err
	}

	s.record("register", OutcomeSuccess)
	s.logger.Info("user registered", "user_id", user.ID, "role", user.RoleName, "organization_id", user.OrganizationID)
	return user, nil
}

// createUser checks uniqueness, role and organization rules, then inserts.
// user.RoleID may be empty (student) and is resolved in place.
func createUser(ctx context.Context, r Repos, user *User) error {
	if taken, err := r.Users.EmailTaken(ctx, user.Email, ""); err != nil {
		return err
	} else if taken {
		return ErrDuplicateEmail
	}
	if taken, err := r.Users.UsernameTaken(ctx, user.Username, ""); err != nil {
		return err
	} else if taken {
		return ErrDuplicateUsername
	}

	role, err := resolveRole(ctx, r, user.RoleID)
	if err != nil {
		return err
	}
	user.RoleID = role.ID
	user.RoleName = role.Name

	if err := checkOrganization(ctx, r, role.Name, user.OrganizationID); err != nil {
		return err
	}

	return r.Users.Create(ctx, user)
}

// resolveRole loads an active role by ID, defaulting to student.
func resolveRole(ctx context.Context, r Repos, roleID string) (*Role, error) {
	var role *Role
	var err error
	if roleID == "" {
		role, err = r.Roles.GetByName(ctx, RoleStudent)
	} else {
		role, err = r.Roles.GetByID(ctx, roleID)
	}
	if errors.Is(err, ErrRoleNotFound) {
		return nil, ErrInvalidRole
	}
	if err != nil {
		return nil, err
	}
	if !role.IsActive {
		return nil, ErrInvalidRole
	}
	return role, nil
}

// checkOrganization enforces that non-top-tier users belong to an active
// organization.
func checkOrganization(ctx context.Context, r Repos, roleName, orgID string) error {
	if orgID == "" {
		if IsTopTier(roleName) {
			return nil
		}
		return ErrOrganizationRequired
	}

	org, err := r.Organizations.GetByID(ctx, orgID)
	if errors.Is(err, ErrOrganizationNotFound) {
		return ErrInvalidOrganization
	}
	if err != nil {
		return err
	}
	if !org.IsActive {
		return ErrInvalidOrganization
	}
	return nil
}

// Login verifies credentials and opens a new session.
//
// Unknown email and wrong password return the same ErrInvalidCredentials.
// ErrAccountInactive is returned only after the password verified.
func (s *Service) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	email = normalizeEmail(email)

	var user *User
	err := s.store.InTx(ctx, func(r Repos) error {
		u, err := r.Users.GetByEmail(ctx, email)
		if errors.Is(err, ErrUserNotFound) {
			return nil
		}
		user = u
		return err
	})
	if err != nil {
		return nil, err
	}

	if user == nil {
		s.hasher.Verify(password, s.dummyDigest)
		s.record("login", OutcomeFailure)
		return nil, ErrInvalidCredentials
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		s.record("login", OutcomeFailure)
		s.logger.Info("login failed", "user_id", user.ID)
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		s.record("login", OutcomeDenied)
		return nil, ErrAccountInactive
	}

	var rehash string
	if s.hasher.NeedsRehash(user.PasswordHash) {
		if rehash, err = s.hasher.Hash(password); err != nil {
			return nil, fmt.Errorf("rehashing password: %w", err)
		}
	}

	id := identityOf(user)
	refresh, err := s.codec.Issue(id, TokenRefresh, s.codec.RefreshTTL())
	if err != nil {
		return nil, err
	}
	access, err := s.codec.Issue(id, TokenAccess, s.codec.AccessTTL())
	if err != nil {
		return nil, err
	}
	if access.ExpiresAt.After(refresh.ExpiresAt) {
		access, err = s.codec.IssueWith(id, TokenAccess, access.JTI, refresh.ExpiresAt)
		if err != nil {
			return nil, err
		}
	}

	var session *Session
	err = s.store.InTx(ctx, func(r Repos) error {
		var err error
		session, err = r.Sessions.Open(ctx, user.ID, access.JTI, refresh.JTI, access.ExpiresAt, refresh.ExpiresAt)
		if err != nil {
			return err
		}
		if rehash != "" {
			if err := r.Users.UpdatePassword(ctx, user.ID, rehash); err != nil {
				return err
			}
		}
		return r.Users.TouchLogin(ctx, user.ID, time.Now())
	})
	if err != nil {
		return nil, err
	}

	if rehash != "" {
		s.logger.Info("password digest upgraded", "user_id", user.ID)
	}
	s.record("login", OutcomeSuccess)
	s.logger.Info("session opened", "user_id", user.ID, "session_id", session.ID)

	return &TokenPair{AccessToken: access.Token, RefreshToken: refresh.Token, TokenType: tokenTypeBearer}, nil
}

// Refresh exchanges a refresh token for a new access/refresh pair on the
// same session. The new refresh token keeps the old one's expiry, and the
// old refresh token stops working.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.codec.Verify(refreshToken)
	if err != nil || claims.Type != TokenRefresh {
		s.record("refresh", OutcomeFailure)
		return nil, ErrInvalidToken
	}

	accessJTI, err := NewJTI()
	if err != nil {
		return nil, err
	}
	refreshJTI, err := NewJTI()
	if err != nil {
		return nil, err
	}

	refreshExp := claims.ExpiresAt.Time
	accessExp := time.Now().Add(s.codec.AccessTTL())
	if accessExp.After(refreshExp) {
		accessExp = refreshExp
	}

	var pair *TokenPair
	var sessionID string
	err = s.store.InTx(ctx, func(r Repos) error {
		session, err := r.Sessions.Rotate(ctx, claims.Subject, claims.ID, accessJTI, refreshJTI, accessExp)
		if err != nil {
			return err
		}
		sessionID = session.ID

		user, err := r.Users.GetByID(ctx, claims.Subject)
		if errors.Is(err, ErrUserNotFound) {
			return ErrUserInactiveOrMissing
		}
		if err != nil {
			return err
		}
		if !user.IsActive {
			return ErrUserInactiveOrMissing
		}

		id := identityOf(user)
		access, err := s.codec.IssueWith(id, TokenAccess, accessJTI, accessExp)
		if err != nil {
			return err
		}
		refresh, err := s.codec.IssueWith(id, TokenRefresh, refreshJTI, refreshExp)
		if err != nil {
			return err
		}
		pair = &TokenPair{AccessToken: access.Token, RefreshToken: refresh.Token, TokenType: tokenTypeBearer}
		return nil
	})
	if err != nil {
		s.record("refresh", OutcomeFailure)
		if errors.Is(err, ErrSessionNotFound) {
			s.logger.Warn("refresh token replayed or session revoked", "user_id", claims.Subject)
		}
		return nil, err
	}

	s.record("refresh", OutcomeSuccess)
	s.logger.Info("session rotated", "user_id", claims.Subject, "session_id", sessionID)
	return pair, nil
}

// Logout revokes the session holding accessJTI. It succeeds even when no
// such session exists.
func (s *Service) Logout(ctx context.Context, accessJTI string) error {
	var revoked bool
	err := s.store.InTx(ctx, func(r Repos) error {
		var err error
		revoked, err = r.Sessions.RevokeByAccessJTI(ctx, accessJTI)
		return err
	})
	if err != nil {
		return err
	}

	s.record("logout", OutcomeSuccess)
	if revoked {
		s.logger.Info("session revoked", "reason", "logout")
	}
	return nil
}

// ChangePassword replaces the user's password after checking the old one
// and revokes every session the user holds.
func (s *Service) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	var user *User
	err := s.store.InTx(ctx, func(r Repos) error {
		var err error
		user, err = r.Users.GetByID(ctx, userID)
		return err
	})
	if err != nil {
		return err
	}

	if !s.hasher.Verify(oldPassword, user.PasswordHash) {
		s.record("password_change", OutcomeFailure)
		return ErrIncorrectPassword
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	var revoked int64
	err = s.store.InTx(ctx, func(r Repos) error {
		if err := r.Users.UpdatePassword(ctx, userID, hash); err != nil {
			return err
		}
		var err error
		revoked, err = r.Sessions.RevokeAllForUser(ctx, userID)
		return err
	})
	if err != nil {
		return err
	}

	s.record("password_change", OutcomeSuccess)
	s.logger.Info("sessions revoked", "user_id", userID, "count", revoked, "reason", "password_change")
	return nil
}

// ResetAck is the response to a password reset request. Token is set only
// when the service runs with ExposeResetToken.
type ResetAck struct {
	Message string `json:"message"`
	Token   string `json:"reset_token,omitempty"`
}

// RequestPasswordReset sends a reset link when email belongs to an active
// account. The acknowledgement is identical either way.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (*ResetAck, error) {
	ack := &ResetAck{Message: MsgResetRequested}
	email = normalizeEmail(email)

	var user *User
	err := s.store.InTx(ctx, func(r Repos) error {
		u, err := r.Users.GetByEmail(ctx, email)
		if errors.Is(err, ErrUserNotFound) {
			return nil
		}
		user = u
		return err
	})
	if err != nil {
		return nil, err
	}

	if user == nil || !user.IsActive {
		s.record("password_reset_request", OutcomeSkipped)
		return ack, nil
	}

	issued, err := s.codec.Issue(Identity{Subject: user.Email, Email: user.Email}, TokenPasswordReset, ResetTokenTTL)
	if err != nil {
		return nil, err
	}

	link, err := resetLink(s.cfg.PasswordResetURL, issued.Token)
	if err != nil {
		return nil, err
	}

	// Response time must not depend on whether the email exists.
	userID := user.ID
	s.notifyInBackground(ctx, Notification{
		Kind: NotifyPasswordReset,
		To:   user.Email,
		Name: user.FullName,
		Data: map[string]string{"reset_url": link},
	}, func(delivered bool) {
		if !delivered {
			s.logger.Warn("password reset notification not delivered", "user_id", userID)
		}
	})

	if s.cfg.ExposeResetToken {
		ack.Token = issued.Token
	}

	s.record("password_reset_request", OutcomeSuccess)
	return ack, nil
}

// ResetPassword sets a new password from a reset token. Each token works
// once. Every session of the user is revoked.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	claims, err := s.codec.Verify(token)
	if err != nil || claims.Type != TokenPasswordReset {
		s.record("password_reset", OutcomeFailure)
		return ErrInvalidOrExpiredResetToken
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	email := claims.Email
	if email == "" {
		email = claims.Subject
	}

	var userID string
	var revoked int64
	err = s.store.InTx(ctx, func(r Repos) error {
		user, err := r.Users.GetByEmail(ctx, email)
		if err != nil {
			return err
		}
		if !user.IsActive {
			return ErrAccountInactive
		}
		userID = user.ID

		if err := r.Resets.Redeem(ctx, claims.ID, user.ID, claims.ExpiresAt.Time); err != nil {
			return err
		}
		if err := r.Users.UpdatePassword(ctx, user.ID, hash); err != nil {
			return err
		}
		revoked, err = r.Sessions.RevokeAllForUser(ctx, user.ID)
		return err
	})
	if err != nil {
		s.record("password_reset", OutcomeFailure)
		return err
	}

	s.record("password_reset", OutcomeSuccess)
	s.logger.Info("sessions revoked", "user_id", userID, "count", revoked, "reason", "password_reset")
	return nil
}

// ListSessions returns the user's live sessions.
func (s *Service) ListSessions(ctx context.Context, userID string) ([]Session, error) {
	var sessions []Session
	err := s.store.InTx(ctx, func(r Repos) error {
		var err error
		sessions, err = r.Sessions.ListLiveByUser(ctx, userID, time.Now())
		return err
	})
	return sessions, err
}

// CountLiveSessions returns the number of live sessions across all users.
func (s *Service) CountLiveSessions(ctx context.Context) (int, error) {
	return s.store.Read().Sessions.CountLive(ctx, time.Now())
}

// PurgeExpired deletes sessions past their refresh window and reset
// redemptions past their token expiry.
func (s *Service) PurgeExpired(ctx context.Context) (sessions, redemptions int64, err error) {
	now := time.Now()
	err = s.store.InTx(ctx, func(r Repos) error {
		var err error
		if sessions, err = r.Sessions.DeleteExpired(ctx, now); err != nil {
			return err
		}
		redemptions, err = r.Resets.DeleteExpired(ctx, now)
		return err
	})
	if err != nil {
		return 0, 0, err
	}
	return sessions, redemptions, nil
}

func (s *Service) record(event, outcome string) {
	if s.events != nil {
		s.events.RecordAuthEvent(event, outcome)
	}
}

func (s *Service) notify(ctx context.Context, n Notification) bool {
	if s.notifier == nil {
		return false
	}
	return s.notifier.Notify(ctx, n)
}

// notifyInBackground delivers n on its own goroutine with a context that
// outlives the request but not BackgroundNotifyTimeout.
func (s *Service) notifyInBackground(ctx context.Context, n Notification, done func(delivered bool)) {
	if s.notifier == nil {
		done(false)
		return
	}
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), BackgroundNotifyTimeout)
		defer cancel()
		done(s.notifier.Notify(sendCtx, n))
	}()
}

// Wait blocks until background notifications have finished.
func (s *Service) Wait() {
	s.background.Wait()
}

func identityOf(u *User) Identity {
	return Identity{Subject: u.ID, Email: u.Email, Role: u.RoleName}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return ValidationError(fmt.Sprintf("Password must be at least %d characters", MinPasswordLength))
	}
	return nil
}

// resetLink appends token to the configured reset page URL.
func resetLink(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parsing password reset url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
