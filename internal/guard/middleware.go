package guard

import (
	"net/http"

	"github.com/parishdesk/authgate/internal/handshake"
	"github.com/parishdesk/authgate/internal/observability/logger"
	"github.com/parishdesk/authgate/internal/store"
)

// SessionSource expone la sesión actual. Lo implementa *store.Store.
type SessionSource interface {
	Get() *store.Session
}

// StateSource expone el estado del handshake. Lo implementa
// *handshake.Coordinator.
type StateSource interface {
	State() handshake.State
}

// Routes con destino de los redirects del guard.
type Routes struct {
	Login      string
	Onboarding string
}

// Protect gatea rutas protegidas según Evaluate.
//
//	Allow              → next
//	Loading            → 503 + Retry-After (el cliente reintenta; nunca se
//	                     responde contenido protegido ni redirect a login
//	                     mientras el handshake resuelve)
//	RedirectLogin      → 302 a routes.Login
//	RedirectOnboarding → 302 a routes.Onboarding
func Protect(sessions SessionSource, states StateSource, routes Routes) func(http.Handler) http.Handler {
	if routes.Login == "" {
		routes.Login = "/login"
	}
	if routes.Onboarding == "" {
		routes.Onboarding = "/onboarding"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := Evaluate(sessions.Get(), states.State())

			logger.From(r.Context()).Debug("guard decision",
				logger.Component("guard"),
				logger.Path(r.URL.Path),
				logger.Any("decision", d.String()),
			)

			switch d {
			case DecisionAllow:
				next.ServeHTTP(w, r)
			case DecisionLoading:
				w.Header().Set("Retry-After", "1")
				http.Error(w, "authenticating", http.StatusServiceUnavailable)
			case DecisionRedirectOnboarding:
				http.Redirect(w, r, routes.Onboarding, http.StatusFound)
			default:
				http.Redirect(w, r, routes.Login, http.StatusFound)
			}
		})
	}
}
