package tenant

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/parishdesk/authgate/internal/api"
	"github.com/parishdesk/authgate/internal/store"
)

type fakeAPI struct {
	createCalls int
	switchCalls int

	createErr error
	switchErr error
}

func (f *fakeAPI) CreateTenant(ctx context.Context, token string, payload api.CreateTenantPayload) (*api.Tenant, error) {
	f.createCalls++
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &api.Tenant{ID: "c2", Name: payload.Name}, nil
}

func (f *fakeAPI) SwitchTenant(ctx context.Context, token, tenantID string) (*api.SessionResult, error) {
	f.switchCalls++
	if f.switchErr != nil {
		return nil, f.switchErr
	}
	return &api.SessionResult{
		AccessToken: "t2",
		User:        api.User{ID: "u1", IsOnboarded: true},
		ChurchID:    tenantID,
	}, nil
}

func seedSession(t *testing.T, st *store.Store) {
	t.Helper()
	err := st.Set(context.Background(), "t1", api.User{ID: "u1", IsOnboarded: true}, "c1")
	require.NoError(t, err)
}

func TestCreateAndSwitch(t *testing.T) {
	f := &fakeAPI{}
	st := store.New(store.NewMemory(), nil)
	seedSession(t, st)

	flow := NewFlow(f, st)
	sess, err := flow.CreateAndSwitch(context.Background(), api.CreateTenantPayload{Name: "Gracia"})
	require.NoError(t, err)

	require.Equal(t, 1, f.createCalls)
	require.Equal(t, 1, f.switchCalls)

	// la sesión quedó atada al tenant nuevo, reemplazada entera
	require.Equal(t, "t2", sess.AccessToken)
	require.Equal(t, "c2", sess.TenantID)
	require.Equal(t, "c2", st.Get().TenantID)
}

func TestCreateAndSwitch_NoSession(t *testing.T) {
	flow := NewFlow(&fakeAPI{}, store.New(store.NewMemory(), nil))
	_, err := flow.CreateAndSwitch(context.Background(), api.CreateTenantPayload{Name: "Gracia"})
	require.ErrorIs(t, err, ErrNoSession)
}

func TestCreateAndSwitch_CreateFails(t *testing.T) {
	f := &fakeAPI{createErr: api.ErrServiceUnavailable}
	st := store.New(store.NewMemory(), nil)
	seedSession(t, st)

	flow := NewFlow(f, st)
	_, err := flow.CreateAndSwitch(context.Background(), api.CreateTenantPayload{Name: "Gracia"})
	require.ErrorIs(t, err, api.ErrServiceUnavailable)

	// nada cambió: ni switch ni sesión
	require.Equal(t, 0, f.switchCalls)
	require.Equal(t, "c1", st.Get().TenantID)
}

// Fallo parcial: tenant creado pero no activado. Error nombrado, sin retry
// automático de createTenant (lo duplicaría).
func TestCreateAndSwitch_PartialFailure(t *testing.T) {
	f := &fakeAPI{switchErr: api.ErrServiceUnavailable}
	st := store.New(store.NewMemory(), nil)
	seedSession(t, st)

	flow := NewFlow(f, st)
	_, err := flow.CreateAndSwitch(context.Background(), api.CreateTenantPayload{Name: "Gracia"})

	var partial *PartialSwitchError
	require.True(t, errors.As(err, &partial), "expected PartialSwitchError, got %v", err)
	require.Equal(t, "c2", partial.TenantID)
	require.ErrorIs(t, err, api.ErrServiceUnavailable)

	require.Equal(t, 1, f.createCalls, "createTenant must not be retried")
	// la sesión vieja sigue intacta
	require.Equal(t, "t1", st.Get().AccessToken)
	require.Equal(t, "c1", st.Get().TenantID)
}

func TestSwitch_Existing(t *testing.T) {
	f := &fakeAPI{}
	st := store.New(store.NewMemory(), nil)
	seedSession(t, st)

	flow := NewFlow(f, st)
	sess, err := flow.Switch(context.Background(), "c9")
	require.NoError(t, err)
	require.Equal(t, "c9", sess.TenantID)
	require.Equal(t, 0, f.createCalls)
}
