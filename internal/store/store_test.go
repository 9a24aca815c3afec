package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/parishdesk/authgate/internal/api"
)

// fakeFetcher simula el backend para validar/refrescar snapshots.
type fakeFetcher struct {
	me    *api.Me
	err   error
	calls int
}

func (f *fakeFetcher) GetCurrentUser(ctx context.Context, token string) (*api.Me, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.me, nil
}

func testUser() api.User {
	return api.User{ID: "u1", Email: "a@x.com", Name: "Ana", IsOnboarded: true}
}

func TestStore_SetGetClear(t *testing.T) {
	st := New(NewMemory(), &fakeFetcher{})
	ctx := context.Background()

	if got := st.Get(); got != nil {
		t.Fatalf("expected empty store, got %+v", got)
	}

	if err := st.Set(ctx, "t1", testUser(), "c1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	sess := st.Get()
	if sess == nil {
		t.Fatal("expected session after Set")
	}
	if sess.AccessToken != "t1" || sess.User.ID != "u1" || sess.TenantID != "c1" {
		t.Fatalf("unexpected session: %+v", sess)
	}

	// Get devuelve una copia: mutarla no afecta el store
	sess.AccessToken = "mutated"
	if st.Get().AccessToken != "t1" {
		t.Fatal("Get must return a copy")
	}

	if err := st.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if st.Get() != nil {
		t.Fatal("expected empty store after Clear")
	}
}

func TestStore_SetAtomicity(t *testing.T) {
	st := New(NewMemory(), &fakeFetcher{})
	ctx := context.Background()

	// token sin user: rechazado
	if err := st.Set(ctx, "t1", api.User{}, ""); err == nil {
		t.Fatal("expected error setting session without user")
	}
	// user sin token: rechazado
	if err := st.Set(ctx, "", testUser(), ""); err == nil {
		t.Fatal("expected error setting session without token")
	}
	if st.Get() != nil {
		t.Fatal("failed Set must not leave partial state")
	}
}

func TestStore_Subscribe(t *testing.T) {
	st := New(NewMemory(), &fakeFetcher{})
	ctx := context.Background()

	var events []*Session
	cancel := st.Subscribe(func(s *Session) { events = append(events, s) })

	if err := st.Set(ctx, "t1", testUser(), "c1"); err != nil {
		t.Fatal(err)
	}
	if err := st.Clear(ctx); err != nil {
		t.Fatal(err)
	}

	if len(events) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(events))
	}
	if events[0] == nil || events[0].AccessToken != "t1" {
		t.Fatalf("first notification should carry the session, got %+v", events[0])
	}
	if events[1] != nil {
		t.Fatalf("Clear notification should be nil, got %+v", events[1])
	}

	cancel()
	if err := st.Set(ctx, "t2", testUser(), "c1"); err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatal("cancelled subscriber must not receive notifications")
	}
}

// Scenario D: token expirado en refresh → store vacío, sin error.
func TestStore_RefreshUnauthorizedClears(t *testing.T) {
	fetcher := &fakeFetcher{err: api.ErrUnauthorized}
	st := New(NewMemory(), fetcher)
	ctx := context.Background()

	if err := st.Set(ctx, "stale", testUser(), "c1"); err != nil {
		t.Fatal(err)
	}

	if err := st.Refresh(ctx); err != nil {
		t.Fatalf("Unauthorized refresh must not surface an error, got %v", err)
	}
	if st.Get() != nil {
		t.Fatal("expected cleared store after Unauthorized refresh")
	}
}

func TestStore_RefreshTransientKeepsSession(t *testing.T) {
	fetcher := &fakeFetcher{err: api.ErrServiceUnavailable}
	st := New(NewMemory(), fetcher)
	ctx := context.Background()

	if err := st.Set(ctx, "t1", testUser(), "c1"); err != nil {
		t.Fatal(err)
	}

	if err := st.Refresh(ctx); err == nil {
		t.Fatal("expected transient error to propagate")
	}
	if st.Get() == nil {
		t.Fatal("transient refresh failure must not clear the session")
	}
}

func TestStore_RefreshUpdatesSnapshotKeepsToken(t *testing.T) {
	updated := testUser()
	updated.Name = "Ana María"
	fetcher := &fakeFetcher{me: &api.Me{User: updated, ChurchID: "c2"}}
	st := New(NewMemory(), fetcher)
	ctx := context.Background()

	if err := st.Set(ctx, "t1", testUser(), "c1"); err != nil {
		t.Fatal(err)
	}
	if err := st.Refresh(ctx); err != nil {
		t.Fatal(err)
	}

	sess := st.Get()
	if sess.AccessToken != "t1" {
		t.Fatalf("refresh must preserve the token, got %q", sess.AccessToken)
	}
	if sess.User.Name != "Ana María" || sess.TenantID != "c2" {
		t.Fatalf("refresh must replace snapshot and tenant, got %+v", sess)
	}
}

func TestFileBackend_PersistsAcrossInstances(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "authgate-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)
	path := filepath.Join(tmpDir, "session.json")

	fetcher := &fakeFetcher{me: &api.Me{User: testUser(), ChurchID: "c1"}}
	ctx := context.Background()

	st := New(NewFile(path), fetcher)
	if err := st.Set(ctx, "t1", testUser(), "c1"); err != nil {
		t.Fatal(err)
	}

	// nueva instancia sobre el mismo archivo: simula reinicio del proceso
	st2 := New(NewFile(path), fetcher)
	if err := st2.Load(ctx); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	sess := st2.Get()
	if sess == nil || sess.AccessToken != "t1" {
		t.Fatalf("expected persisted session after reload, got %+v", sess)
	}
	if fetcher.calls == 0 {
		t.Fatal("Load must validate the persisted session against the backend")
	}
}

func TestStore_LoadRejectsExpiredPersistedState(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "authgate-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)
	path := filepath.Join(tmpDir, "session.json")

	ctx := context.Background()
	okFetcher := &fakeFetcher{me: &api.Me{User: testUser(), ChurchID: "c1"}}
	st := New(NewFile(path), okFetcher)
	if err := st.Set(ctx, "expired", testUser(), "c1"); err != nil {
		t.Fatal(err)
	}

	// al recargar, el backend dice Unauthorized: estado viejo jamás se
	// presenta como autenticado
	st2 := New(NewFile(path), &fakeFetcher{err: api.ErrUnauthorized})
	if err := st2.Load(ctx); err != nil {
		t.Fatalf("Load with expired token must not error, got %v", err)
	}
	if st2.Get() != nil {
		t.Fatal("expected empty store after failed startup validation")
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("definitive Unauthorized should remove the persisted file")
	}
}

func TestStore_LoadDiscardsCorruptState(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "authgate-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)
	path := filepath.Join(tmpDir, "session.json")

	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}

	st := New(NewFile(path), &fakeFetcher{})
	if err := st.Load(context.Background()); err != nil {
		t.Fatalf("Load with corrupt state must not error, got %v", err)
	}
	if st.Get() != nil {
		t.Fatal("expected empty store after corrupt state")
	}
}
