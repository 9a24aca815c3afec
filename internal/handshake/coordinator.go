// Package handshake implementa la reconciliación entre el identity provider
// y la sesión first-party: observa ambos estados y ejecuta el intercambio
// una sola vez, incluyendo la rama de "claim profile".
package handshake

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/parishdesk/authgate/internal/api"
	"github.com/parishdesk/authgate/internal/idp"
	"github.com/parishdesk/authgate/internal/metrics"
	"github.com/parishdesk/authgate/internal/observability/logger"
	"github.com/parishdesk/authgate/internal/store"
)

// Errores del coordinator.
var (
	// ErrNoPendingClaim: Resolve sin claim pendiente.
	ErrNoPendingClaim = fmt.Errorf("no pending claim")
	// ErrClaimExpired: el claim pendiente expiró del lado del cliente antes
	// de que el usuario decidiera. Se reinicia desde el login del provider.
	ErrClaimExpired = fmt.Errorf("claim offer expired")
)

const pendingClaimKey = "pending-claim"

// PendingClaim es el puente transitorio entre un social login y un conflicto
// de identidad sin resolver. Nunca coexiste con una sesión completa.
type PendingClaim struct {
	TempToken string
	Person    api.Person
	AttemptID string
}

// SessionAPI es lo que el coordinator necesita del backend de sesiones.
// Lo implementa *api.Client.
type SessionAPI interface {
	Login(ctx context.Context, email, password string) (*api.SessionResult, error)
	Register(ctx context.Context, email, password string) (*api.SessionResult, error)
	SocialLogin(ctx context.Context, claims api.IdentityClaims) (*api.SocialResult, error)
	ClaimProfile(ctx context.Context, tempToken string, decision api.ClaimDecision) (*api.SessionResult, error)
}

// Coordinator es la máquina de estados del handshake.
//
// Garantías:
//   - A lo sumo un socialLogin/claimProfile en vuelo por intento. Re-renders
//     concurrentes se unen al vuelo existente (singleflight por subject).
//   - Un logout durante un sync invalida el resultado: la respuesta tardía
//     se descarta en vez de aplicarse (chequeo de generación antes de
//     escribir al store).
type Coordinator struct {
	api      SessionAPI
	store    *store.Store
	provider idp.Provider

	// claims pendientes con TTL: el backend expira el temp token por su
	// cuenta; este TTL evita ofrecer un claim ya muerto.
	pending *gocache.Cache

	sf singleflight.Group

	mu         sync.Mutex
	state      State
	generation uint64
	failedSub  string // subject cuyo último sync falló; no se reintenta solo
	lastErr    error
}

// Config del coordinator.
type Config struct {
	// ClaimTTL es la vida del pending claim en el cliente. Default 10m.
	ClaimTTL time.Duration
}

// New crea un Coordinator. El estado inicial es IDLE; Evaluate lo mueve.
func New(apiClient SessionAPI, st *store.Store, provider idp.Provider, cfg Config) *Coordinator {
	ttl := cfg.ClaimTTL
	if ttl == 0 {
		ttl = 10 * time.Minute
	}
	return &Coordinator{
		api:      apiClient,
		store:    st,
		provider: provider,
		pending:  gocache.New(ttl, time.Minute),
		state:    StateIdle,
	}
}

// State devuelve el estado actual.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError devuelve el error del último sync fallido, si lo hay.
func (c *Coordinator) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Claim devuelve el pending claim actual, o nil.
func (c *Coordinator) Claim() *PendingClaim {
	if v, ok := c.pending.Get(pendingClaimKey); ok {
		pc := v.(PendingClaim)
		return &pc
	}
	return nil
}

// Evaluate recomputa el estado a partir del snapshot del provider y el
// contenido del store, y ejecuta el sync si corresponde. Es re-entrante:
// llamadas concurrentes no disparan un segundo socialLogin mientras hay uno
// en vuelo. Bloquea mientras el sync está en curso.
func (c *Coordinator) Evaluate(ctx context.Context) State {
	snap := c.provider.Snapshot()

	if snap.Loading {
		return c.setState(ctx, StateProviderLoading)
	}

	// Sesión ya establecida (reload con sesión persistida válida, o login
	// por credenciales): no hace falta llamar al backend.
	if c.store.Get() != nil {
		return c.setState(ctx, StateSynced)
	}

	if !snap.Authenticated || snap.Claims == nil {
		return c.setState(ctx, StateIdle)
	}

	if c.Claim() != nil {
		return c.setState(ctx, StateClaimPending)
	}

	subject := snap.Claims.Subject
	c.mu.Lock()
	failed := c.failedSub == subject
	c.mu.Unlock()
	if failed {
		// Sin retry automático: un social login que el backend rechaza en
		// loop es peor que pedirle al usuario que reintente.
		return c.setState(ctx, StateIdle)
	}

	c.setState(ctx, StateNeedsSync)
	return c.sync(ctx, *snap.Claims)
}

// sync ejecuta el social login exactamente una vez por subject en vuelo.
func (c *Coordinator) sync(ctx context.Context, claims idp.Claims) State {
	type syncOutcome struct {
		state State
	}

	out, _, _ := c.sf.Do(claims.Subject, func() (any, error) {
		attemptID := uuid.NewString()
		log := logger.From(ctx).With(
			logger.Layer("coordinator"),
			logger.Op("sync"),
			logger.AttemptID(attemptID),
			logger.Subject(claims.Subject),
		)

		c.mu.Lock()
		gen := c.generation
		c.mu.Unlock()
		c.setState(ctx, StateSyncing)

		start := time.Now()
		res, err := c.api.SocialLogin(ctx, api.IdentityClaims{
			Email:   claims.Email,
			Name:    claims.Name,
			Picture: claims.Picture,
		})
		metrics.SyncLatency.Observe(float64(time.Since(start).Milliseconds()))

		// Un logout mientras el sync estaba en vuelo invalida el intento:
		// aplicar una respuesta tardía dejaría una sesión que el usuario ya
		// cerró.
		c.mu.Lock()
		stale := gen != c.generation
		c.mu.Unlock()
		if stale {
			log.Info("discarding stale sync result after logout")
			return syncOutcome{state: StateIdle}, nil
		}

		if err != nil {
			metrics.SyncFailures.Inc()
			log.Warn("social login sync failed", logger.Err(err))
			c.mu.Lock()
			c.failedSub = claims.Subject
			c.lastErr = err
			c.mu.Unlock()
			return syncOutcome{state: c.setState(ctx, StateSyncFailed)}, nil
		}

		if res.Claim != nil {
			c.pending.SetDefault(pendingClaimKey, PendingClaim{
				TempToken: res.Claim.TempToken,
				Person:    res.Claim.Person,
				AttemptID: attemptID,
			})
			log.Info("claim offer received", logger.PersonID(res.Claim.Person.ID))
			return syncOutcome{state: c.setState(ctx, StateClaimPending)}, nil
		}

		if err := c.store.Set(ctx, res.Session.AccessToken, res.Session.User, res.Session.ChurchID); err != nil {
			metrics.SyncFailures.Inc()
			log.Error("could not persist synced session", logger.Err(err))
			c.mu.Lock()
			c.failedSub = claims.Subject
			c.lastErr = err
			c.mu.Unlock()
			return syncOutcome{state: c.setState(ctx, StateSyncFailed)}, nil
		}

		log.Info("handshake synced", logger.UserID(res.Session.User.ID))
		return syncOutcome{state: c.setState(ctx, StateSynced)}, nil
	})

	return out.(syncOutcome).state
}

// Resolve responde el claim pendiente. Llama a claim-profile con el temp
// token (nunca con el token de sesión) y consume el pending claim en ambas
// ramas, incluso si la llamada falla.
func (c *Coordinator) Resolve(ctx context.Context, decision api.ClaimDecision) error {
	pc := c.Claim()
	if pc == nil {
		if c.State() == StateClaimPending {
			// El TTL del cliente venció antes de que el usuario decidiera.
			metrics.ClaimOutcomes.WithLabelValues("expired").Inc()
			c.setState(ctx, StateIdle)
			return ErrClaimExpired
		}
		return ErrNoPendingClaim
	}

	log := logger.From(ctx).With(
		logger.Layer("coordinator"),
		logger.Op("Resolve"),
		logger.AttemptID(pc.AttemptID),
	)

	res, err, _ := c.sf.Do("claim:"+pc.TempToken, func() (any, error) {
		return c.api.ClaimProfile(ctx, pc.TempToken, decision)
	})

	// Consumido pase lo que pase: un claim no se reintenta con el mismo
	// temp token.
	c.pending.Delete(pendingClaimKey)

	if err != nil {
		switch {
		case errors.Is(err, api.ErrConflictExpired):
			metrics.ClaimOutcomes.WithLabelValues("expired").Inc()
			log.Info("claim temp token expired")
		default:
			metrics.ClaimOutcomes.WithLabelValues("failed").Inc()
			log.Warn("claim resolution failed", logger.Err(err))
		}
		c.setState(ctx, StateIdle)
		return err
	}

	sess := res.(*api.SessionResult)
	if err := c.store.Set(ctx, sess.AccessToken, sess.User, sess.ChurchID); err != nil {
		metrics.ClaimOutcomes.WithLabelValues("failed").Inc()
		c.setState(ctx, StateIdle)
		return err
	}

	if decision.Claim {
		metrics.ClaimOutcomes.WithLabelValues("claimed").Inc()
	} else {
		metrics.ClaimOutcomes.WithLabelValues("created").Inc()
	}
	log.Info("claim resolved", logger.UserID(sess.User.ID))
	c.setState(ctx, StateSynced)
	return nil
}

// Login es el camino legacy por credenciales: IDLE → SYNCED directo.
func (c *Coordinator) Login(ctx context.Context, email, password string) error {
	res, err := c.api.Login(ctx, email, password)
	if err != nil {
		return err
	}
	if err := c.store.Set(ctx, res.AccessToken, res.User, res.ChurchID); err != nil {
		return err
	}
	c.setState(ctx, StateSynced)
	return nil
}

// Register crea una cuenta por credenciales y establece la sesión.
func (c *Coordinator) Register(ctx context.Context, email, password string) error {
	res, err := c.api.Register(ctx, email, password)
	if err != nil {
		return err
	}
	if err := c.store.Set(ctx, res.AccessToken, res.User, res.ChurchID); err != nil {
		return err
	}
	c.setState(ctx, StateSynced)
	return nil
}

// Logout limpia la sesión Y cierra la sesión del provider. Ninguno de los
// dos efectos alcanza solo. También invalida cualquier sync en vuelo.
func (c *Coordinator) Logout(ctx context.Context) error {
	c.mu.Lock()
	c.generation++
	c.failedSub = ""
	c.lastErr = nil
	c.mu.Unlock()
	c.pending.Delete(pendingClaimKey)

	storeErr := c.store.Clear(ctx)
	provErr := c.provider.Logout(ctx, idp.LogoutOptions{})

	c.setState(ctx, StateIdle)

	if storeErr != nil {
		return storeErr
	}
	return provErr
}

func (c *Coordinator) setState(ctx context.Context, next State) State {
	c.mu.Lock()
	prev := c.state
	c.state = next
	c.mu.Unlock()

	if prev != next {
		metrics.HandshakeTransitions.WithLabelValues(prev.String(), next.String()).Inc()
		logger.From(ctx).Debug("handshake transition",
			logger.Component("handshake"),
			logger.Any("from", prev.String()),
			logger.State(next.String()),
		)
	}
	return next
}
