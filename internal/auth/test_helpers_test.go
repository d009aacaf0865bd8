package auth

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/vyon/auth-service/internal/infrastructure/database"
	"github.com/vyon/auth-service/internal/infrastructure/logging"
	"github.com/vyon/auth-service/migrations"
)

const testPassword = "correct-horse-battery"

// testStore opens a migrated database in a temp dir with the canonical
// roles seeded.
func testStore(t *testing.T) *Store {
	t.Helper()

	db, err := database.Open(t.Context(), database.Config{
		Path:        filepath.Join(t.TempDir(), "auth.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(t.Context(), migrations.FS); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}

	store := NewStore(db)
	if _, err := SeedRoles(t.Context(), store, logging.Discard().Logger); err != nil {
		t.Fatalf("seeding roles: %v", err)
	}
	return store
}

// testService builds a Service over a fresh store.
func testService(t *testing.T, opts ...func(*ServiceDeps)) (*Service, *Store) {
	t.Helper()

	store := testStore(t)
	deps := ServiceDeps{
		Store:  store,
		Codec:  testCodec(t),
		Hasher: testHasher,
		Config: ServiceConfig{PasswordResetURL: "http://localhost:3000/reset-password"},
		Logger: logging.Discard().Logger,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	svc, err := NewService(deps)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	t.Cleanup(svc.Wait)
	return svc, store
}

func mustRole(t *testing.T, store *Store, name string) *Role {
	t.Helper()

	role, err := store.Read().Roles.GetByName(t.Context(), name)
	if err != nil {
		t.Fatalf("loading role %s: %v", name, err)
	}
	return role
}

func seedTestOrganization(t *testing.T, store *Store, code string) *Organization {
	t.Helper()

	org := &Organization{
		Name:     "School " + code,
		Code:     code,
		Email:    "office@" + code + ".example",
		IsActive: true,
	}
	err := store.InTx(t.Context(), func(r Repos) error {
		return r.Organizations.Create(t.Context(), org)
	})
	if err != nil {
		t.Fatalf("creating organization %s: %v", code, err)
	}
	return org
}

// seedTestUser inserts an active user with testPassword.
func seedTestUser(t *testing.T, store *Store, username, roleName, orgID string) *User {
	t.Helper()

	hash, err := testHasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}

	role := mustRole(t, store, roleName)
	user := &User{
		Email:          username + "@example.com",
		Username:       username,
		FullName:       username,
		PasswordHash:   hash,
		RoleID:         role.ID,
		RoleName:       role.Name,
		OrganizationID: orgID,
		IsActive:       true,
	}
	err = store.InTx(t.Context(), func(r Repos) error {
		return r.Users.Create(t.Context(), user)
	})
	if err != nil {
		t.Fatalf("creating test user %s: %v", username, err)
	}
	return user
}

// principalFor builds a Principal without going through the gate.
func principalFor(user *User) *Principal {
	return &Principal{User: user}
}

func setActive(t *testing.T, store *Store, user *User, active bool) {
	t.Helper()

	user.IsActive = active
	err := store.InTx(t.Context(), func(r Repos) error {
		return r.Users.Update(t.Context(), user)
	})
	if err != nil {
		t.Fatalf("updating user: %v", err)
	}
}

// openSession inserts a session for user with the given access expiry.
func openSession(t *testing.T, store *Store, userID string, accessExp time.Time) *Session {
	t.Helper()

	access, _ := NewJTI()  //nolint:errcheck // crypto/rand
	refresh, _ := NewJTI() //nolint:errcheck // crypto/rand

	var session *Session
	err := store.InTx(t.Context(), func(r Repos) error {
		var err error
		session, err = r.Sessions.Open(t.Context(), userID, access, refresh, accessExp, accessExp.Add(24*time.Hour))
		return err
	})
	if err != nil {
		t.Fatalf("opening session: %v", err)
	}
	return session
}

type recordedEvent struct{ event, outcome string }

// fakeEvents collects auth events.
type fakeEvents struct{ events []recordedEvent }

func (f *fakeEvents) RecordAuthEvent(event, outcome string) {
	f.events = append(f.events, recordedEvent{event, outcome})
}

// fakeNotifier collects notifications.
type fakeNotifier struct {
	mu     sync.Mutex
	sent   []Notification
	reject bool
}

func (f *fakeNotifier) Notify(_ context.Context, n Notification) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
	return !f.reject
}

// heldNotifier blocks each delivery until release is closed.
type heldNotifier struct {
	release  chan struct{}
	received chan context.Context
}

func newHeldNotifier() *heldNotifier {
	return &heldNotifier{release: make(chan struct{}), received: make(chan context.Context, 1)}
}

func (h *heldNotifier) Notify(ctx context.Context, _ Notification) bool {
	h.received <- ctx
	<-h.release
	return ctx.Err() == nil
}
