package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func bearer(token string) string { return "Bearer " + token }

func TestNewService_RequiresCollaborators(t *testing.T) {
	_, err := NewService(ServiceDeps{})
	assert.Error(t, err)
}

func TestRegister_CreatesPendingAccount(t *testing.T) {
	svc, store := testService(t)
	org := seedTestOrganization(t, store, "REG")
	student := mustRole(t, store, RoleStudent)

	user, err := svc.Register(t.Context(), RegisterInput{
		Email:          "  Kid@School.Example ",
		Username:       "kid01",
		Password:       testPassword,
		FullName:       "Kid One",
		RoleID:         student.ID,
		OrganizationID: org.ID,
	})
	require.NoError(t, err)
	assert.False(t, user.IsActive)
	assert.Equal(t, "kid@school.example", user.Email)
	assert.Equal(t, RoleStudent, user.RoleName)

	_, err = svc.Login(t.Context(), "kid@school.example", testPassword)
	assert.ErrorIs(t, err, ErrAccountInactive)
}

func TestRegister_DefaultsToStudent(t *testing.T) {
	svc, store := testService(t)
	org := seedTestOrganization(t, store, "DEF")

	user, err := svc.Register(t.Context(), RegisterInput{
		Email: "new@school.example", Username: "newbie", Password: testPassword, OrganizationID: org.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, RoleStudent, user.RoleName)
}

func TestRegister_Rejections(t *testing.T) {
	svc, store := testService(t)
	org := seedTestOrganization(t, store, "REJ")
	closed := seedTestOrganization(t, store, "CLOSED")
	require.NoError(t, store.InTx(t.Context(), func(r Repos) error {
		return r.Organizations.Deactivate(t.Context(), closed.ID)
	}))
	existing := seedTestUser(t, store, "taken", RoleTeacher, org.ID)
	teacher := mustRole(t, store, RoleTeacher)
	admin := mustRole(t, store, RoleSystemAdmin)

	base := RegisterInput{
		Email: "fresh@school.example", Username: "fresh", Password: testPassword,
		RoleID: teacher.ID, OrganizationID: org.ID,
	}

	tests := []struct {
		name   string
		mutate func(*RegisterInput)
		want   error
	}{
		{"duplicate email", func(in *RegisterInput) { in.Email = strings.ToUpper(existing.Email) }, ErrDuplicateEmail},
		{"duplicate username", func(in *RegisterInput) { in.Username = existing.Username }, ErrDuplicateUsername},
		{"organization required", func(in *RegisterInput) { in.OrganizationID = "" }, ErrOrganizationRequired},
		{"unknown organization", func(in *RegisterInput) { in.OrganizationID = "org-missing" }, ErrInvalidOrganization},
		{"inactive organization", func(in *RegisterInput) { in.OrganizationID = closed.ID }, ErrInvalidOrganization},
		{"unknown role", func(in *RegisterInput) { in.RoleID = "rol-missing" }, ErrInvalidRole},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base
			tt.mutate(&in)
			_, err := svc.Register(t.Context(), in)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("short password", func(t *testing.T) {
		in := base
		in.Password = "short"
		_, err := svc.Register(t.Context(), in)
		assert.Equal(t, KindValidation, KindOf(err))
	})

	t.Run("top tier needs no organization", func(t *testing.T) {
		in := base
		in.RoleID = admin.ID
		in.OrganizationID = ""
		user, err := svc.Register(t.Context(), in)
		require.NoError(t, err)
		assert.False(t, user.IsActive)
	})
}

func TestLogin_IssuesBearerPairAndOpensSession(t *testing.T) {
	events := &fakeEvents{}
	svc, store := testService(t, func(d *ServiceDeps) { d.Events = events })
	admin := seedTestUser(t, store, "admin", RoleSystemAdmin, "")

	pair, err := svc.Login(t.Context(), admin.Email, testPassword)
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, "bearer", pair.TokenType)

	principal, err := NewGate(store, svc.codec).Authenticate(t.Context(), bearer(pair.AccessToken))
	require.NoError(t, err)
	assert.Equal(t, admin.ID, principal.User.ID)

	profile, err := svc.Me(t.Context(), principal)
	require.NoError(t, err)
	assert.Equal(t, admin.Email, profile.Email)
	assert.True(t, profile.Permissions.Allows("organizations", ActionDelete))

	stored, err := store.Read().Users.GetByID(t.Context(), admin.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastLoginAt)

	assert.Contains(t, events.events, recordedEvent{"login", OutcomeSuccess})
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	svc, store := testService(t)
	user := seedTestUser(t, store, "root", RoleSystemAdmin, "")

	_, wrongPassword := svc.Login(t.Context(), user.Email, "not-the-password")
	_, unknownEmail := svc.Login(t.Context(), "nobody@example.com", testPassword)

	require.ErrorIs(t, wrongPassword, ErrInvalidCredentials)
	require.ErrorIs(t, unknownEmail, ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
}

func TestLogin_InactiveRevealedOnlyWithCorrectPassword(t *testing.T) {
	svc, store := testService(t)
	org := seedTestOrganization(t, store, "INA")
	user := seedTestUser(t, store, "sleeper", RoleTeacher, org.ID)
	setActive(t, store, user, false)

	_, err := svc.Login(t.Context(), user.Email, "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(t.Context(), user.Email, testPassword)
	assert.ErrorIs(t, err, ErrAccountInactive)
	assert.Equal(t, KindForbidden, KindOf(err))
}

func TestLogin_UpgradesLegacyDigest(t *testing.T) {
	svc, store := testService(t)
	user := seedTestUser(t, store, "legacy", RoleSystemAdmin, "")

	legacy, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, store.InTx(t.Context(), func(r Repos) error {
		return r.Users.UpdatePassword(t.Context(), user.ID, string(legacy))
	}))

	_, err = svc.Login(t.Context(), user.Email, testPassword)
	require.NoError(t, err)

	stored, err := store.Read().Users.GetByID(t.Context(), user.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored.PasswordHash, "$argon2id$"), "digest not upgraded: %s", stored.PasswordHash)
	assert.True(t, testHasher.Verify(testPassword, stored.PasswordHash))
}

func TestRefresh_RotatesPairOnSameSession(t *testing.T) {
	svc, store := testService(t)
	gate := NewGate(store, svc.codec)
	user := seedTestUser(t, store, "root", RoleSystemAdmin, "")

	first, err := svc.Login(t.Context(), user.Email, testPassword)
	require.NoError(t, err)
	before, err := gate.Authenticate(t.Context(), bearer(first.AccessToken))
	require.NoError(t, err)

	second, err := svc.Refresh(t.Context(), first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.AccessToken, second.AccessToken)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	after, err := gate.Authenticate(t.Context(), bearer(second.AccessToken))
	require.NoError(t, err)
	assert.Equal(t, before.Session.ID, after.Session.ID)

	_, err = gate.Authenticate(t.Context(), bearer(first.AccessToken))
	assert.ErrorIs(t, err, ErrSessionExpiredOrRevoked)

	// Replaying the consumed refresh token fails; the new one still works.
	_, err = svc.Refresh(t.Context(), first.RefreshToken)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = svc.Refresh(t.Context(), second.RefreshToken)
	assert.NoError(t, err)
}

func TestRefresh_KeepsOriginalRefreshExpiry(t *testing.T) {
	svc, store := testService(t)
	user := seedTestUser(t, store, "root", RoleSystemAdmin, "")

	first, err := svc.Login(t.Context(), user.Email, testPassword)
	require.NoError(t, err)
	second, err := svc.Refresh(t.Context(), first.RefreshToken)
	require.NoError(t, err)

	oldClaims, err := svc.codec.Verify(first.RefreshToken)
	require.NoError(t, err)
	newClaims, err := svc.codec.Verify(second.RefreshToken)
	require.NoError(t, err)

	assert.True(t, oldClaims.ExpiresAt.Equal(newClaims.ExpiresAt.Time))
	assert.Equal(t, TokenRefresh, newClaims.Type)
}

func TestRefresh_Rejections(t *testing.T) {
	svc, store := testService(t)
	org := seedTestOrganization(t, store, "RFR")
	user := seedTestUser(t, store, "teacher", RoleTeacher, org.ID)

	pair, err := svc.Login(t.Context(), user.Email, testPassword)
	require.NoError(t, err)

	_, err = svc.Refresh(t.Context(), pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken, "access token must not refresh")

	_, err = svc.Refresh(t.Context(), "garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)

	setActive(t, store, user, false)
	_, err = svc.Refresh(t.Context(), pair.RefreshToken)
	assert.ErrorIs(t, err, ErrUserInactiveOrMissing)
}

func TestLogout_RevokesAndIsIdempotent(t *testing.T) {
	svc, store := testService(t)
	gate := NewGate(store, svc.codec)
	user := seedTestUser(t, store, "root", RoleSystemAdmin, "")

	pair, err := svc.Login(t.Context(), user.Email, testPassword)
	require.NoError(t, err)
	principal, err := gate.Authenticate(t.Context(), bearer(pair.AccessToken))
	require.NoError(t, err)

	require.NoError(t, svc.Logout(t.Context(), principal.Claims.ID))
	require.NoError(t, svc.Logout(t.Context(), principal.Claims.ID))

	_, err = gate.Authenticate(t.Context(), bearer(pair.AccessToken))
	assert.ErrorIs(t, err, ErrSessionExpiredOrRevoked)

	_, err = svc.Refresh(t.Context(), pair.RefreshToken)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestChangePassword_RevokesEverySession(t *testing.T) {
	svc, store := testService(t)
	gate := NewGate(store, svc.codec)
	user := seedTestUser(t, store, "root", RoleSystemAdmin, "")

	laptop, err := svc.Login(t.Context(), user.Email, testPassword)
	require.NoError(t, err)
	phone, err := svc.Login(t.Context(), user.Email, testPassword)
	require.NoError(t, err)

	err = svc.ChangePassword(t.Context(), user.ID, "wrong-old-password", "brand-new-password")
	require.ErrorIs(t, err, ErrIncorrectPassword)

	require.NoError(t, svc.ChangePassword(t.Context(), user.ID, testPassword, "brand-new-password"))

	for _, pair := range []*TokenPair{laptop, phone} {
		_, err := gate.Authenticate(t.Context(), bearer(pair.AccessToken))
		assert.ErrorIs(t, err, ErrSessionExpiredOrRevoked)
	}

	_, err = svc.Login(t.Context(), user.Email, testPassword)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(t.Context(), user.Email, "brand-new-password")
	assert.NoError(t, err)
}

func TestRequestPasswordReset_SameAckForUnknownEmail(t *testing.T) {
	notifier := &fakeNotifier{}
	svc, _ := testService(t, func(d *ServiceDeps) { d.Notifier = notifier })

	ack, err := svc.RequestPasswordReset(t.Context(), "nobody@example.com")
	require.NoError(t, err)
	assert.Equal(t, MsgResetRequested, ack.Message)
	assert.Empty(t, ack.Token)
	assert.Empty(t, notifier.sent)
}

func TestRequestPasswordReset_SendsLink(t *testing.T) {
	notifier := &fakeNotifier{}
	svc, store := testService(t, func(d *ServiceDeps) { d.Notifier = notifier })
	user := seedTestUser(t, store, "root", RoleSystemAdmin, "")

	ack, err := svc.RequestPasswordReset(t.Context(), user.Email)
	require.NoError(t, err)
	assert.Equal(t, MsgResetRequested, ack.Message)
	assert.Empty(t, ack.Token, "token must not be exposed by default")

	svc.Wait()
	require.Len(t, notifier.sent, 1)
	sent := notifier.sent[0]
	assert.Equal(t, NotifyPasswordReset, sent.Kind)
	assert.Equal(t, user.Email, sent.To)
	assert.True(t, strings.HasPrefix(sent.Data["reset_url"], "http://localhost:3000/reset-password?token="))
}

func TestRequestPasswordReset_DoesNotWaitForDelivery(t *testing.T) {
	notifier := newHeldNotifier()
	svc, store := testService(t, func(d *ServiceDeps) { d.Notifier = notifier })
	user := seedTestUser(t, store, "root", RoleSystemAdmin, "")

	ctx, cancel := context.WithCancel(t.Context())
	returned := make(chan error, 1)
	go func() {
		_, err := svc.RequestPasswordReset(ctx, user.Email)
		returned <- err
	}()

	select {
	case err := <-returned:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		close(notifier.release)
		t.Fatal("RequestPasswordReset blocked on notification delivery")
	}

	// The request is over; delivery keeps a live, bounded context.
	cancel()
	sendCtx := <-notifier.received
	assert.NoError(t, sendCtx.Err())
	deadline, ok := sendCtx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(BackgroundNotifyTimeout), deadline, BackgroundNotifyTimeout)

	close(notifier.release)
	svc.Wait()
}

func TestRequestPasswordReset_SkipsInactiveUser(t *testing.T) {
	notifier := &fakeNotifier{}
	svc, store := testService(t, func(d *ServiceDeps) { d.Notifier = notifier })
	org := seedTestOrganization(t, store, "SKP")
	user := seedTestUser(t, store, "sleeper", RoleTeacher, org.ID)
	setActive(t, store, user, false)

	ack, err := svc.RequestPasswordReset(t.Context(), user.Email)
	require.NoError(t, err)
	assert.Equal(t, MsgResetRequested, ack.Message)
	assert.Empty(t, notifier.sent)
}

func TestResetPassword_SingleUseAndRevokes(t *testing.T) {
	svc, store := testService(t, func(d *ServiceDeps) { d.Config.ExposeResetToken = true })
	gate := NewGate(store, svc.codec)
	user := seedTestUser(t, store, "root", RoleSystemAdmin, "")

	pair, err := svc.Login(t.Context(), user.Email, testPassword)
	require.NoError(t, err)

	ack, err := svc.RequestPasswordReset(t.Context(), user.Email)
	require.NoError(t, err)
	require.NotEmpty(t, ack.Token)

	require.NoError(t, svc.ResetPassword(t.Context(), ack.Token, "reset-password-1"))

	_, err = gate.Authenticate(t.Context(), bearer(pair.AccessToken))
	assert.ErrorIs(t, err, ErrSessionExpiredOrRevoked)

	err = svc.ResetPassword(t.Context(), ack.Token, "reset-password-2")
	assert.ErrorIs(t, err, ErrInvalidOrExpiredResetToken)

	_, err = svc.Login(t.Context(), user.Email, "reset-password-1")
	assert.NoError(t, err)
}

func TestResetPassword_Rejections(t *testing.T) {
	svc, store := testService(t)
	user := seedTestUser(t, store, "root", RoleSystemAdmin, "")

	pair, err := svc.Login(t.Context(), user.Email, testPassword)
	require.NoError(t, err)

	err = svc.ResetPassword(t.Context(), pair.AccessToken, "whatever-password")
	assert.ErrorIs(t, err, ErrInvalidOrExpiredResetToken)

	err = svc.ResetPassword(t.Context(), "not-a-token", "whatever-password")
	assert.ErrorIs(t, err, ErrInvalidOrExpiredResetToken)

	orphan, err := svc.codec.Issue(Identity{Subject: "ghost@example.com", Email: "ghost@example.com"}, TokenPasswordReset, ResetTokenTTL)
	require.NoError(t, err)
	err = svc.ResetPassword(t.Context(), orphan.Token, "whatever-password")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestPurgeExpired(t *testing.T) {
	svc, store := testService(t)
	user := seedTestUser(t, store, "root", RoleSystemAdmin, "")
	now := time.Now()

	require.NoError(t, store.InTx(t.Context(), func(r Repos) error {
		if _, err := r.Sessions.Open(t.Context(), user.ID, "a1", "r1", now.Add(-2*time.Hour), now.Add(-time.Hour)); err != nil {
			return err
		}
		return r.Resets.Redeem(t.Context(), "old-reset", user.ID, now.Add(-time.Minute))
	}))
	openSession(t, store, user.ID, now.Add(time.Hour))

	sessions, redemptions, err := svc.PurgeExpired(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(1), sessions)
	assert.Equal(t, int64(1), redemptions)

	live, err := svc.CountLiveSessions(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, live)
}

func TestResetLink(t *testing.T) {
	link, err := resetLink("https://app.example/reset?lang=en", "abc.def")
	require.NoError(t, err)
	assert.Equal(t, "https://app.example/reset?lang=en&token=abc.def", link)
}
