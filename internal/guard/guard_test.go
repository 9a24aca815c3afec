package guard

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/parishdesk/authgate/internal/api"
	"github.com/parishdesk/authgate/internal/handshake"
	"github.com/parishdesk/authgate/internal/store"
)

func onboardedSession() *store.Session {
	return &store.Session{
		AccessToken: "t1",
		User:        api.User{ID: "u1", IsOnboarded: true},
		TenantID:    "c1",
	}
}

func TestEvaluate(t *testing.T) {
	notOnboarded := &store.Session{
		AccessToken: "t1",
		User:        api.User{ID: "u1", IsOnboarded: false},
	}

	cases := []struct {
		name string
		sess *store.Session
		hs   handshake.State
		want Decision
	}{
		// mientras el handshake resuelve, jamás "deslogueado": ni flash de
		// login ni contenido protegido
		{"provider loading", nil, handshake.StateProviderLoading, DecisionLoading},
		{"needs sync", nil, handshake.StateNeedsSync, DecisionLoading},
		{"syncing", nil, handshake.StateSyncing, DecisionLoading},
		{"claim pending", nil, handshake.StateClaimPending, DecisionLoading},

		{"idle without session", nil, handshake.StateIdle, DecisionRedirectLogin},
		{"sync failed without session", nil, handshake.StateSyncFailed, DecisionRedirectLogin},

		{"synced onboarded", onboardedSession(), handshake.StateSynced, DecisionAllow},
		// sesión sin onboarding: siempre hacia onboarding, nunca vistas
		// tenant-scoped
		{"synced not onboarded", notOnboarded, handshake.StateSynced, DecisionRedirectOnboarding},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Evaluate(tc.sess, tc.hs); got != tc.want {
				t.Fatalf("Evaluate(%v, %s) = %s, want %s", tc.sess != nil, tc.hs, got, tc.want)
			}
		})
	}
}

// fuentes fijas para el middleware
type fixedSessions struct{ sess *store.Session }

func (f fixedSessions) Get() *store.Session { return f.sess }

type fixedState struct{ st handshake.State }

func (f fixedState) State() handshake.State { return f.st }

func TestProtect(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("secret"))
	})

	run := func(sess *store.Session, hs handshake.State) *httptest.ResponseRecorder {
		h := Protect(fixedSessions{sess}, fixedState{hs}, Routes{})(next)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
		return rec
	}

	t.Run("allow", func(t *testing.T) {
		rec := run(onboardedSession(), handshake.StateSynced)
		if rec.Code != http.StatusOK || rec.Body.String() != "secret" {
			t.Fatalf("expected protected content, got %d %q", rec.Code, rec.Body.String())
		}
	})

	t.Run("loading never leaks content", func(t *testing.T) {
		rec := run(nil, handshake.StateSyncing)
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503 while syncing, got %d", rec.Code)
		}
		if rec.Body.String() == "secret" {
			t.Fatal("protected content leaked before the check resolved")
		}
	})

	t.Run("redirect to login", func(t *testing.T) {
		rec := run(nil, handshake.StateIdle)
		if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/login" {
			t.Fatalf("expected 302 /login, got %d %q", rec.Code, rec.Header().Get("Location"))
		}
	})

	t.Run("redirect to onboarding", func(t *testing.T) {
		sess := onboardedSession()
		sess.User.IsOnboarded = false
		rec := run(sess, handshake.StateSynced)
		if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/onboarding" {
			t.Fatalf("expected 302 /onboarding, got %d %q", rec.Code, rec.Header().Get("Location"))
		}
	})
}
