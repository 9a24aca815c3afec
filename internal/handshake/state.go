package handshake

// State es el estado del coordinator. El handshake es una máquina de estados
// explícita: nada de booleans anidados que dejen ventanas de UI incorrecta.
type State int

const (
	// StateIdle: sin sesión y sin provider autenticado. UI pública.
	StateIdle State = iota
	// StateProviderLoading: el provider todavía no terminó de cargar;
	// Authenticated/Claims no son significativos aún.
	StateProviderLoading
	// StateNeedsSync: provider autenticado pero sin sesión first-party.
	StateNeedsSync
	// StateSyncing: social-login en vuelo. Exactamente uno por attempt.
	StateSyncing
	// StateClaimPending: el backend encontró un perfil sin reclamar y espera
	// la decisión del usuario.
	StateClaimPending
	// StateSynced: sesión first-party establecida.
	StateSynced
	// StateSyncFailed: el sync falló (red/5xx). Sin retry automático; el
	// usuario debe reintentar el login explícitamente.
	StateSyncFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateProviderLoading:
		return "PROVIDER_LOADING"
	case StateNeedsSync:
		return "NEEDS_SYNC"
	case StateSyncing:
		return "SYNCING"
	case StateClaimPending:
		return "CLAIM_PENDING"
	case StateSynced:
		return "SYNCED"
	case StateSyncFailed:
		return "SYNC_FAILED"
	default:
		return "UNKNOWN"
	}
}

// Loading indica si el guard debe tratar este estado como "todavía
// resolviendo" en vez de "deslogueado". Evita el flash de redirect a login
// mientras el sync no terminó.
func (s State) Loading() bool {
	switch s {
	case StateProviderLoading, StateNeedsSync, StateSyncing, StateClaimPending:
		return true
	}
	return false
}
