// Package tenant implementa el cambio de tenant (iglesia): crear o ubicar el
// tenant, pedir un token scoped y reemplazar la sesión de forma atómica.
package tenant

import (
	"context"
	"fmt"

	"github.com/parishdesk/authgate/internal/api"
	"github.com/parishdesk/authgate/internal/observability/logger"
	"github.com/parishdesk/authgate/internal/store"
)

// ErrNoSession: no hay sesión activa desde la cual operar.
var ErrNoSession = fmt.Errorf("no active session")

// PartialSwitchError es la inconsistencia nombrada "tenant creado pero no
// activado". NO se reintenta sola: repetir createTenant duplicaría el tenant.
// El usuario debe resolverla explícitamente (p. ej. reintentar solo el
// switch al tenant ya creado).
type PartialSwitchError struct {
	TenantID string
	Err      error
}

func (e *PartialSwitchError) Error() string {
	return fmt.Sprintf("tenant %s created but could not be activated: %v", e.TenantID, e.Err)
}

func (e *PartialSwitchError) Unwrap() error { return e.Err }

// API es lo que el flow necesita del backend. Lo implementa *api.Client.
type API interface {
	CreateTenant(ctx context.Context, token string, payload api.CreateTenantPayload) (*api.Tenant, error)
	SwitchTenant(ctx context.Context, token, tenantID string) (*api.SessionResult, error)
}

// Flow ejecuta operaciones de tenant contra el backend y el store.
type Flow struct {
	api   API
	store *store.Store
}

// NewFlow crea un Flow.
func NewFlow(apiClient API, st *store.Store) *Flow {
	return &Flow{api: apiClient, store: st}
}

// CreateAndSwitch crea un tenant nuevo y ata la sesión a él:
// createTenant → switchTenant → store.Set, todo o nada desde el punto de
// vista del llamador. Si el switch o la persistencia fallan después de crear
// el tenant, devuelve *PartialSwitchError.
func (f *Flow) CreateAndSwitch(ctx context.Context, payload api.CreateTenantPayload) (*store.Session, error) {
	cur := f.store.Get()
	if cur == nil {
		return nil, ErrNoSession
	}

	log := logger.From(ctx).With(
		logger.Layer("flow"),
		logger.Component("tenant"),
		logger.Op("CreateAndSwitch"),
	)

	created, err := f.api.CreateTenant(ctx, cur.AccessToken, payload)
	if err != nil {
		return nil, fmt.Errorf("create tenant: %w", err)
	}
	log = log.With(logger.TenantID(created.ID))
	log.Info("tenant created")

	sess, err := f.switchTo(ctx, cur.AccessToken, created.ID)
	if err != nil {
		log.Warn("tenant created but activation failed", logger.Err(err))
		return nil, &PartialSwitchError{TenantID: created.ID, Err: err}
	}

	log.Info("tenant activated", logger.UserID(sess.User.ID))
	return sess, nil
}

// Switch ata la sesión a un tenant existente.
func (f *Flow) Switch(ctx context.Context, tenantID string) (*store.Session, error) {
	cur := f.store.Get()
	if cur == nil {
		return nil, ErrNoSession
	}
	return f.switchTo(ctx, cur.AccessToken, tenantID)
}

func (f *Flow) switchTo(ctx context.Context, token, tenantID string) (*store.Session, error) {
	res, err := f.api.SwitchTenant(ctx, token, tenantID)
	if err != nil {
		return nil, fmt.Errorf("switch tenant: %w", err)
	}

	churchID := res.ChurchID
	if churchID == "" {
		churchID = tenantID
	}
	if err := f.store.Set(ctx, res.AccessToken, res.User, churchID); err != nil {
		return nil, fmt.Errorf("persist switched session: %w", err)
	}
	return f.store.Get(), nil
}
