package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyon/auth-service/internal/audit"
	"github.com/vyon/auth-service/internal/auth"
	"github.com/vyon/auth-service/internal/infrastructure/config"
	"github.com/vyon/auth-service/internal/infrastructure/database"
	"github.com/vyon/auth-service/internal/infrastructure/logging"
	"github.com/vyon/auth-service/migrations"
)

const (
	adminEmail    = "admin@vyon.com"
	adminPassword = "admin-password-123"
	userPassword  = "correct-horse-battery"
)

// recordingNotifier captures notifications.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []auth.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, msg auth.Notification) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return true
}

func (n *recordingNotifier) kinds() []auth.NotificationKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	kinds := make([]auth.NotificationKind, 0, len(n.sent))
	for _, msg := range n.sent {
		kinds = append(kinds, msg.Kind)
	}
	return kinds
}

type testEnv struct {
	srv      *Server
	svc      *auth.Service
	handler  http.Handler
	notifier *recordingNotifier
}

// newTestEnv wires the full stack over a migrated temp-file database with
// the canonical roles and the bootstrap administrator seeded.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.Open(t.Context(), database.Config{
		Path:        filepath.Join(t.TempDir(), "api.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(t.Context(), migrations.FS))

	log := logging.Discard()
	store := auth.NewStore(db)
	hasher := auth.NewHasherWithParams(1, 1024, 1)

	_, err = auth.SeedRoles(t.Context(), store, log.Logger)
	require.NoError(t, err)
	_, err = auth.SeedSystemAdmin(t.Context(), store, hasher, auth.BootstrapAdmin{
		Email:    adminEmail,
		Username: "admin",
		Password: adminPassword,
	}, log.Logger)
	require.NoError(t, err)

	codec, err := auth.NewTokenCodec(auth.TokenConfig{
		Secret:     "api-test-secret-key-at-least-32-chars",
		Algorithm:  "HS256",
		AccessTTL:  30 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
	})
	require.NoError(t, err)

	notifier := &recordingNotifier{}
	svc, err := auth.NewService(auth.ServiceDeps{
		Store:  store,
		Codec:  codec,
		Hasher: hasher,
		Config: auth.ServiceConfig{
			PasswordResetURL: "http://localhost:3000/reset-password",
			ExposeResetToken: true,
		},
		Notifier: notifier,
		Logger:   log.Logger,
	})
	require.NoError(t, err)
	t.Cleanup(svc.Wait)

	srv, err := New(Deps{
		Config:      config.APIConfig{CORS: config.CORSConfig{AllowedOrigins: []string{"https://app.vyon.com"}}},
		Environment: config.EnvDevelopment,
		Logger:      log,
		Service:     svc,
		Gate:        auth.NewGate(store, codec),
		AuditRepo:   audit.NewSQLiteRepository(db),
		DB:          db,
		Version:     "test",
	})
	require.NoError(t, err)

	srv.startBackground(context.Background())
	t.Cleanup(func() { srv.Close() })

	return &testEnv{srv: srv, svc: svc, handler: srv.buildRouter(), notifier: notifier}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}

func (e *testEnv) login(t *testing.T, email, password string) auth.TokenPair {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": email, "password": password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[auth.TokenPair](t, rec)
}

func (e *testEnv) roleID(t *testing.T, token, name string) string {
	t.Helper()

	rec := e.do(t, http.MethodGet, "/roles", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	for _, role := range decode[struct{ Roles []auth.Role }](t, rec).Roles {
		if role.Name == name {
			return role.ID
		}
	}
	t.Fatalf("role %s not found", name)
	return ""
}

func (e *testEnv) createOrganization(t *testing.T, token, code string) auth.Organization {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/organizations", token, map[string]string{
		"name":  "School " + code,
		"code":  code,
		"email": "office@" + code + ".example.com",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[auth.Organization](t, rec)
}

func (e *testEnv) createUser(t *testing.T, token, username, roleID, orgID string) auth.User {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/users", token, map[string]string{
		"email":           username + "@example.com",
		"username":        username,
		"password":        userPassword,
		"full_name":       username,
		"role_id":         roleID,
		"organization_id": orgID,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[auth.User](t, rec)
}

// directory is two organizations populated through the API.
type directory struct {
	admin        auth.TokenPair
	orgA, orgB   auth.Organization
	schoolAdminA auth.User
	studentA     auth.User
	studentB     auth.User
}

func newDirectory(t *testing.T, e *testEnv) directory {
	t.Helper()

	d := directory{admin: e.login(t, adminEmail, adminPassword)}
	token := d.admin.AccessToken

	d.orgA = e.createOrganization(t, token, "scha")
	d.orgB = e.createOrganization(t, token, "schb")

	schoolAdmin := e.roleID(t, token, auth.RoleSchoolAdmin)
	student := e.roleID(t, token, auth.RoleStudent)

	d.schoolAdminA = e.createUser(t, token, "principal.a", schoolAdmin, d.orgA.ID)
	d.studentA = e.createUser(t, token, "student.a", student, d.orgA.ID)
	d.studentB = e.createUser(t, token, "student.b", student, d.orgB.ID)
	return d
}

// =============================================================================
// Login and Session Tests
// =============================================================================

func TestLogin_AdminThenMe(t *testing.T) {
	e := newTestEnv(t)

	pair := e.login(t, adminEmail, adminPassword)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, "bearer", pair.TokenType)

	rec := e.do(t, http.MethodGet, "/users/me", pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	me := decode[map[string]any](t, rec)
	assert.Equal(t, adminEmail, me["email"])
	assert.Equal(t, auth.RoleSystemAdmin, me["role"])
	assert.NotEmpty(t, me["permissions"])
	assert.NotContains(t, rec.Body.String(), "password_hash")
}

func TestLogin_FailuresIndistinguishable(t *testing.T) {
	e := newTestEnv(t)

	wrongPassword := e.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": adminEmail, "password": "not-the-password"})
	unknownEmail := e.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "nobody@vyon.com", "password": "not-the-password"})

	assert.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
	assert.Equal(t, http.StatusUnauthorized, unknownEmail.Code)
	assert.JSONEq(t, wrongPassword.Body.String(), unknownEmail.Body.String())
	assert.Equal(t, "Bearer", wrongPassword.Header().Get("WWW-Authenticate"))
}

func TestRefresh_SecondUseRejected(t *testing.T) {
	e := newTestEnv(t)
	pair := e.login(t, adminEmail, adminPassword)

	first := e.do(t, http.MethodPost, "/auth/refresh", "", map[string]string{"refresh_token": pair.RefreshToken})
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	rotated := decode[auth.TokenPair](t, first)
	assert.NotEqual(t, pair.AccessToken, rotated.AccessToken)

	second := e.do(t, http.MethodPost, "/auth/refresh", "", map[string]string{"refresh_token": pair.RefreshToken})
	require.Equal(t, http.StatusUnauthorized, second.Code)
	assert.Equal(t, "session_not_found", decode[Error](t, second).Code)

	// The rotated access token works; the original is dead.
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/users/me", rotated.AccessToken, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodGet, "/users/me", pair.AccessToken, nil).Code)
}

func TestRefresh_AccessTokenRejected(t *testing.T) {
	e := newTestEnv(t)
	pair := e.login(t, adminEmail, adminPassword)

	rec := e.do(t, http.MethodPost, "/auth/refresh", "", map[string]string{"refresh_token": pair.AccessToken})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_token", decode[Error](t, rec).Code)
}

func TestLogout_RevokesToken(t *testing.T) {
	e := newTestEnv(t)
	pair := e.login(t, adminEmail, adminPassword)

	rec := e.do(t, http.MethodPost, "/auth/logout", pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, auth.MsgLoggedOut, decode[map[string]string](t, rec)["message"])

	rec = e.do(t, http.MethodGet, "/users/me", pair.AccessToken, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "session_revoked", decode[Error](t, rec).Code)
}

func TestListSessions(t *testing.T) {
	e := newTestEnv(t)
	e.login(t, adminEmail, adminPassword)
	pair := e.login(t, adminEmail, adminPassword)

	rec := e.do(t, http.MethodGet, "/auth/sessions", pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[struct {
		Sessions  []auth.Session `json:"sessions"`
		Count     int            `json:"count"`
		CurrentID string         `json:"current_id"`
	}](t, rec)
	assert.Equal(t, 2, body.Count)
	assert.NotEmpty(t, body.CurrentID)
	assert.NotContains(t, rec.Body.String(), "jti")
}

func TestProtectedRoute_MissingBearer(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/users/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthenticated", decode[Error](t, rec).Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))

	rec = e.do(t, http.MethodGet, "/users/me", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// =============================================================================
// Registration and Password Tests
// =============================================================================

func TestRegister(t *testing.T) {
	e := newTestEnv(t)
	d := newDirectory(t, e)

	rec := e.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"email":    "new.student@example.com",
		"username": "new.student",
		"password": userPassword,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "organization_required", decode[Error](t, rec).Code)

	rec = e.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"email":           "new.student@example.com",
		"username":        "new.student",
		"password":        userPassword,
		"full_name":       "New Student",
		"organization_id": d.orgA.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decode[struct {
		Message string         `json:"message"`
		User    registeredUser `json:"user"`
	}](t, rec)
	assert.Equal(t, auth.MsgRegistrationPending, body.Message)
	assert.False(t, body.User.IsActive)

	// Pending accounts are told they are inactive only after a correct password.
	rec = e.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "new.student@example.com", "password": userPassword})
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "account_inactive", decode[Error](t, rec).Code)

	rec = e.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"email":           "new.student@example.com",
		"username":        "another",
		"password":        userPassword,
		"organization_id": d.orgA.ID,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "duplicate_email", decode[Error](t, rec).Code)
}

func TestRegister_ValidationDetails(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"email":    "not-an-email",
		"username": "x",
		"password": "short",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decode[Error](t, rec)
	assert.Equal(t, ErrCodeValidation, body.Code)
	assert.Contains(t, body.Details, "email")
	assert.Contains(t, body.Details, "username")
	assert.Contains(t, body.Details, "password")
}

func TestMalformedBody(t *testing.T) {
	e := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ErrCodeBadRequest, decode[Error](t, rec).Code)
}

func TestChangePassword_RevokesSessions(t *testing.T) {
	e := newTestEnv(t)
	d := newDirectory(t, e)
	pair := e.login(t, d.studentA.Email, userPassword)

	rec := e.do(t, http.MethodPatch, "/auth/change-password", pair.AccessToken, map[string]string{
		"old_password": "wrong-password",
		"new_password": "a-brand-new-password",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "incorrect_password", decode[Error](t, rec).Code)

	rec = e.do(t, http.MethodPatch, "/auth/change-password", pair.AccessToken, map[string]string{
		"old_password": userPassword,
		"new_password": "a-brand-new-password",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodGet, "/users/me", pair.AccessToken, nil).Code)
	e.login(t, d.studentA.Email, "a-brand-new-password")
}

func TestPasswordReset_SingleUse(t *testing.T) {
	e := newTestEnv(t)
	d := newDirectory(t, e)
	before := e.login(t, d.studentA.Email, userPassword)

	rec := e.do(t, http.MethodPost, "/auth/forgot-password", "", map[string]string{"email": d.studentA.Email})
	require.Equal(t, http.StatusOK, rec.Code)
	ack := decode[auth.ResetAck](t, rec)
	require.NotEmpty(t, ack.Token)
	e.svc.Wait()
	assert.Contains(t, e.notifier.kinds(), auth.NotifyPasswordReset)

	unknown := e.do(t, http.MethodPost, "/auth/forgot-password", "", map[string]string{"email": "ghost@example.com"})
	require.Equal(t, http.StatusOK, unknown.Code)
	assert.Equal(t, ack.Message, decode[auth.ResetAck](t, unknown).Message)

	reset := map[string]string{"token": ack.Token, "new_password": "reset-password-456"}
	rec = e.do(t, http.MethodPost, "/auth/reset-password", "", reset)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.do(t, http.MethodPost, "/auth/reset-password", "", reset)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_reset_token", decode[Error](t, rec).Code)

	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodGet, "/users/me", before.AccessToken, nil).Code)
	e.login(t, d.studentA.Email, "reset-password-456")
}

// =============================================================================
// Directory Policy Tests
// =============================================================================

func TestSchoolAdmin_CrossOrganizationForbidden(t *testing.T) {
	e := newTestEnv(t)
	d := newDirectory(t, e)
	principal := e.login(t, d.schoolAdminA.Email, userPassword)

	rec := e.do(t, http.MethodGet, "/users/"+d.studentB.ID, principal.AccessToken, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", decode[Error](t, rec).Code)

	rec = e.do(t, http.MethodGet, "/users/"+d.studentA.ID, principal.AccessToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Listing is pinned to the caller's organization whatever the filter says.
	rec = e.do(t, http.MethodGet, "/users?organization_id="+d.orgB.ID, principal.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	for _, u := range decode[struct{ Users []auth.User }](t, rec).Users {
		assert.Equal(t, d.orgA.ID, u.OrganizationID)
	}
}

func TestDeactivatedUser_ForbiddenNotUnauthorized(t *testing.T) {
	e := newTestEnv(t)
	d := newDirectory(t, e)
	student := e.login(t, d.studentA.Email, userPassword)

	rec := e.do(t, http.MethodPatch, "/users/"+d.studentA.ID, d.admin.AccessToken, map[string]any{"is_active": false})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.do(t, http.MethodGet, "/users/me", student.AccessToken, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "account_inactive", decode[Error](t, rec).Code)

	rec = e.do(t, http.MethodPut, "/users/"+d.studentA.ID, d.admin.AccessToken, map[string]any{"is_active": true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, e.notifier.kinds(), auth.NotifyAccountActivated)
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/users/me", student.AccessToken, nil).Code)
}

func TestUpdateUser_SelfRoleChangeForbidden(t *testing.T) {
	e := newTestEnv(t)
	d := newDirectory(t, e)
	principal := e.login(t, d.schoolAdminA.Email, userPassword)
	teacher := e.roleID(t, d.admin.AccessToken, auth.RoleTeacher)

	rec := e.do(t, http.MethodPatch, "/users/"+d.schoolAdminA.ID, principal.AccessToken, map[string]any{"role_id": teacher})
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "self_modification", decode[Error](t, rec).Code)
}

func TestDeleteUser(t *testing.T) {
	e := newTestEnv(t)
	d := newDirectory(t, e)
	principal := e.login(t, d.schoolAdminA.Email, userPassword)

	assert.Equal(t, http.StatusForbidden, e.do(t, http.MethodDelete, "/users/"+d.studentB.ID, principal.AccessToken, nil).Code)
	assert.Equal(t, http.StatusForbidden, e.do(t, http.MethodDelete, "/users/"+d.schoolAdminA.ID, principal.AccessToken, nil).Code)

	rec := e.do(t, http.MethodDelete, "/users/"+d.studentA.ID, principal.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/users/"+d.studentA.ID, d.admin.AccessToken, nil).Code)
}

func TestOrganizations(t *testing.T) {
	e := newTestEnv(t)
	d := newDirectory(t, e)
	principal := e.login(t, d.schoolAdminA.Email, userPassword)

	assert.Contains(t, e.notifier.kinds(), auth.NotifyOrganizationWelcome)

	// The onboarding administrator exists under the organization email.
	rec := e.do(t, http.MethodGet, "/users?organization_id="+d.orgA.ID, d.admin.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var usernames []string
	for _, u := range decode[struct{ Users []auth.User }](t, rec).Users {
		usernames = append(usernames, u.Username)
	}
	assert.Contains(t, usernames, "admin.scha")

	rec = e.do(t, http.MethodGet, "/organizations", principal.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	visible := decode[struct{ Organizations []auth.Organization }](t, rec).Organizations
	require.Len(t, visible, 1)
	assert.Equal(t, d.orgA.ID, visible[0].ID)

	assert.Equal(t, http.StatusForbidden, e.do(t, http.MethodGet, "/organizations/"+d.orgB.ID, principal.AccessToken, nil).Code)
	assert.Equal(t, http.StatusForbidden, e.do(t, http.MethodPost, "/organizations", principal.AccessToken, map[string]string{
		"name": "Rogue", "code": "rogue", "email": "rogue@example.com",
	}).Code)

	rec = e.do(t, http.MethodGet, "/organizations/"+d.orgA.ID+"/users-count", principal.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 3, decode[map[string]any](t, rec)["users_count"])

	rec = e.do(t, http.MethodPatch, "/organizations/"+d.orgA.ID, principal.AccessToken, map[string]any{"city": "Pune"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Pune", decode[auth.Organization](t, rec).City)

	rec = e.do(t, http.MethodDelete, "/organizations/"+d.orgB.ID, d.admin.AccessToken, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = e.do(t, http.MethodGet, "/organizations?is_active=false", d.admin.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	inactive := decode[struct{ Organizations []auth.Organization }](t, rec).Organizations
	require.Len(t, inactive, 1)
	assert.Equal(t, d.orgB.ID, inactive[0].ID)

	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/organizations?is_active=maybe", d.admin.AccessToken, nil).Code)
}

func TestRoles(t *testing.T) {
	e := newTestEnv(t)
	d := newDirectory(t, e)
	student := e.login(t, d.studentA.Email, userPassword)

	rec := e.do(t, http.MethodGet, "/roles", student.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[struct{ Roles []auth.Role }](t, rec).Roles, 5)

	assert.Equal(t, http.StatusForbidden, e.do(t, http.MethodPost, "/roles", student.AccessToken, map[string]string{"name": "librarian"}).Code)

	rec = e.do(t, http.MethodPost, "/roles", d.admin.AccessToken, map[string]any{
		"name":        "librarian",
		"permissions": map[string][]string{"books": {"read", "update"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	librarian := decode[auth.Role](t, rec)

	rec = e.do(t, http.MethodPut, "/roles/"+librarian.ID, d.admin.AccessToken, map[string]string{"description": "Runs the library"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Runs the library", decode[auth.Role](t, rec).Description)

	schoolAdmin := e.roleID(t, d.admin.AccessToken, auth.RoleSchoolAdmin)
	rec = e.do(t, http.MethodDelete, "/roles/"+schoolAdmin, d.admin.AccessToken, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "canonical_role", decode[Error](t, rec).Code)

	assert.Equal(t, http.StatusOK, e.do(t, http.MethodDelete, "/roles/"+librarian.ID, d.admin.AccessToken, nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/roles/"+librarian.ID, d.admin.AccessToken, nil).Code)
}

// =============================================================================
// Operational Endpoint Tests
// =============================================================================

func TestAuditLogs(t *testing.T) {
	e := newTestEnv(t)
	d := newDirectory(t, e)
	student := e.login(t, d.studentA.Email, userPassword)

	assert.Equal(t, http.StatusForbidden, e.do(t, http.MethodGet, "/audit-logs", student.AccessToken, nil).Code)

	require.Eventually(t, func() bool {
		rec := e.do(t, http.MethodGet, "/audit-logs?entity_type=organization&action=create", d.admin.AccessToken, nil)
		var result audit.ListResult
		if rec.Code != http.StatusOK || json.Unmarshal(rec.Body.Bytes(), &result) != nil {
			return false
		}
		return result.Total == 2
	}, 5*time.Second, 20*time.Millisecond)

	rec := e.do(t, http.MethodGet, "/audit-logs?since=yesterday", d.admin.AccessToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetrics(t *testing.T) {
	e := newTestEnv(t)
	d := newDirectory(t, e)
	student := e.login(t, d.studentA.Email, userPassword)

	assert.Equal(t, http.StatusForbidden, e.do(t, http.MethodGet, "/metrics", student.AccessToken, nil).Code)

	rec := e.do(t, http.MethodGet, "/metrics", d.admin.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	metrics := decode[SystemMetrics](t, rec)
	assert.Equal(t, "test", metrics.Version)
	assert.GreaterOrEqual(t, metrics.Sessions.Live, 2)
	assert.False(t, metrics.MQTT.Enabled)
	assert.False(t, metrics.InfluxDB.Connected)
}

func TestHealthAndRoot(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[map[string]any](t, rec)
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, map[string]any{"database": "healthy"}, health["components"])

	rec = e.do(t, http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test", decode[map[string]any](t, rec)["version"])

	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/nope", "", nil).Code)
}

func TestCORSPreflight(t *testing.T) {
	e := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/auth/login", nil)
	req.Header.Set("Origin", "https://app.vyon.com")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.vyon.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/auth/login", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestIDPropagated(t *testing.T) {
	e := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))

	rec = e.do(t, http.MethodGet, "/health", "", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestStatusForKind(t *testing.T) {
	tests := map[auth.Kind]int{
		auth.KindValidation:      http.StatusBadRequest,
		auth.KindUnauthenticated: http.StatusUnauthorized,
		auth.KindForbidden:       http.StatusForbidden,
		auth.KindNotFound:        http.StatusNotFound,
		auth.KindConflict:        http.StatusConflict,
		auth.KindInternal:        http.StatusInternalServerError,
	}
	for kind, want := range tests {
		assert.Equal(t, want, statusForKind(kind), kind.String())
	}
}
