// Package guard decide si una región protegida puede renderizarse.
//
// Regla central: los estados de handshake en curso se tratan como "cargando",
// nunca como "deslogueado". Contenido protegido jamás se muestra antes de que
// el chequeo resuelva, y tampoco se redirige a login mientras el sync no
// terminó.
package guard

import (
	"github.com/parishdesk/authgate/internal/handshake"
	"github.com/parishdesk/authgate/internal/store"
)

// Decision es el veredicto del guard.
type Decision int

const (
	// DecisionAllow: hay sesión y el handshake está resuelto.
	DecisionAllow Decision = iota
	// DecisionLoading: el handshake sigue resolviendo; mostrar placeholder.
	DecisionLoading
	// DecisionRedirectLogin: definitivamente no autenticado.
	DecisionRedirectLogin
	// DecisionRedirectOnboarding: sesión sin onboarding completo; nunca se
	// permiten vistas tenant-scoped en este estado.
	DecisionRedirectOnboarding
)

func (d Decision) String() string {
	switch d {
	case DecisionAllow:
		return "allow"
	case DecisionLoading:
		return "loading"
	case DecisionRedirectLogin:
		return "redirect-login"
	case DecisionRedirectOnboarding:
		return "redirect-onboarding"
	default:
		return "unknown"
	}
}

// Evaluate decide qué hacer con una región protegida dado el estado actual.
func Evaluate(sess *store.Session, hs handshake.State) Decision {
	if hs.Loading() {
		return DecisionLoading
	}
	if sess == nil {
		return DecisionRedirectLogin
	}
	if !sess.User.IsOnboarded {
		return DecisionRedirectOnboarding
	}
	return DecisionAllow
}
