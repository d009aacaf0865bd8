package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// Resilience tests exercise failure paths under concurrency and
// cancellation. They share the TestResilience_ prefix for filtering:
//
//	go test -run TestResilience -race ./internal/auth/...

// TestResilience_ConcurrentRefresh_OneWinner presents the same refresh
// token from many goroutines. Exactly one rotation may succeed; the rest
// must see ErrSessionNotFound.
func TestResilience_ConcurrentRefresh_OneWinner(t *testing.T) {
	svc, store := testService(t)
	seedTestUser(t, store, "root", RoleSystemAdmin, "")

	pair, err := svc.Login(t.Context(), "root@example.com", testPassword)
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	const attempts = 8
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Refresh(context.Background(), pair.RefreshToken)
			results <- err
		}()
	}

	wg.Wait()
	close(results)

	var successes int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrSessionNotFound):
		default:
			t.Errorf("unexpected refresh error: %v", err)
		}
	}
	if successes != 1 {
		t.Errorf("successful rotations = %d, want exactly 1", successes)
	}
}

// TestResilience_ConcurrentLogins_IndependentSessions opens sessions in
// parallel for one user; each must get its own row.
func TestResilience_ConcurrentLogins_IndependentSessions(t *testing.T) {
	svc, store := testService(t)
	user := seedTestUser(t, store, "root", RoleSystemAdmin, "")

	const logins = 5
	var wg sync.WaitGroup
	errs := make(chan error, logins)

	for range logins {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Login(context.Background(), user.Email, testPassword)
			errs <- err
		}()
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent Login() error = %v", err)
		}
	}

	sessions, err := svc.ListSessions(t.Context(), user.ID)
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(sessions) != logins {
		t.Errorf("ListSessions() = %d sessions, want %d", len(sessions), logins)
	}
}

// TestResilience_ContextCancellation_StoreOps checks that store
// operations return errors on a cancelled context instead of panicking.
func TestResilience_ContextCancellation_StoreOps(t *testing.T) {
	store := testStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.Read().Users.List(ctx, UserFilter{}); err == nil {
		t.Error("List with cancelled context should return error")
	}
	if _, err := store.Read().Users.Count(ctx); err == nil {
		t.Error("Count with cancelled context should return error")
	}
	if _, err := store.Read().Sessions.CountLive(ctx, time.Now()); err == nil {
		t.Error("CountLive with cancelled context should return error")
	}
	if err := store.InTx(ctx, func(Repos) error { return nil }); err == nil {
		t.Error("InTx with cancelled context should return error")
	}
}
