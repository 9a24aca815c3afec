// Package idp abstrae el identity provider OAuth/OIDC (social login) en tres
// señales y dos acciones.
//
// Contrato: mientras State.Loading es true, Authenticated y Claims no son
// significativos y no deben consultarse. LoginWithRedirect es un punto de
// suspensión completo: el flujo navega fuera de la app y vuelve por el
// callback; el estado en memoria no sobrevive ese viaje y se reconstruye a
// partir del callback.
package idp

import "context"

// Claims son las aserciones de identidad que devolvió el provider.
type Claims struct {
	Subject string
	Email   string
	Name    string
	Picture string
}

// State es el snapshot observable del provider.
type State struct {
	Loading       bool
	Authenticated bool
	Claims        *Claims
}

// LoginOptions configura el leg de redirect.
type LoginOptions struct {
	// Prompt fuerza un modo de UI del provider ("login", "select_account").
	Prompt string

	// OpenURL abre la URL de autorización (browser). Si es nil, el
	// implementador decide (típicamente imprimirla).
	OpenURL func(url string) error
}

// LogoutOptions configura el logout del provider.
type LogoutOptions struct {
	// ReturnTo es la URL a la que el provider redirige tras cerrar sesión.
	ReturnTo string
}

// Provider es el adaptador del identity provider.
type Provider interface {
	// Snapshot devuelve el estado actual. Barato, sin side effects.
	Snapshot() State

	// LoginWithRedirect ejecuta el flujo de autorización completo y deja el
	// provider autenticado (o devuelve error). Bloquea hasta que el usuario
	// completa el flujo o ctx expira.
	LoginWithRedirect(ctx context.Context, opts LoginOptions) error

	// Logout termina la sesión del provider. Idempotente.
	Logout(ctx context.Context, opts LogoutOptions) error
}
