// Package store es el dueño único de la Session persistida.
//
// Todos los demás componentes leen la sesión a través de Get/Subscribe y
// nunca la mutan directamente. Los únicos escritores son el handshake
// coordinator, login/logout explícitos y Refresh. No hay mutex de
// disciplina entre componentes: la convención es "un solo módulo dueño";
// el mutex interno solo protege contra lectores concurrentes.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/parishdesk/authgate/internal/api"
	"github.com/parishdesk/authgate/internal/observability/logger"
)

// Session es la identidad autenticada del cliente.
// Invariante: AccessToken y User se setean juntos o ninguno.
type Session struct {
	AccessToken string   `json:"accessToken"`
	User        api.User `json:"user"`
	TenantID    string   `json:"churchId,omitempty"`
}

// UserFetcher es lo que el store necesita del backend para validar y
// refrescar snapshots. Lo implementa *api.Client.
type UserFetcher interface {
	GetCurrentUser(ctx context.Context, token string) (*api.Me, error)
}

// Store es el holder autoritativo de la Session.
type Store struct {
	backend Backend
	fetcher UserFetcher

	mu      sync.RWMutex
	cur     *Session
	subs    map[int]func(*Session)
	nextSub int
}

// New crea un Store sobre el backend dado.
func New(backend Backend, fetcher UserFetcher) *Store {
	return &Store{
		backend: backend,
		fetcher: fetcher,
		subs:    make(map[int]func(*Session)),
	}
}

// Get devuelve una copia de la sesión actual, o nil si no hay.
func (s *Store) Get() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cur == nil {
		return nil
	}
	cp := *s.cur
	return &cp
}

// Set persiste token+user+tenant como una unidad y notifica.
// Nunca hay estado intermedio visible: si la escritura al backend falla,
// la sesión en memoria no cambia.
func (s *Store) Set(ctx context.Context, token string, user api.User, tenantID string) error {
	if token == "" {
		return fmt.Errorf("store: refusing to set session without token")
	}
	if user.ID == "" {
		return fmt.Errorf("store: refusing to set session without user")
	}

	sess := &Session{AccessToken: token, User: user, TenantID: tenantID}
	b, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("store: encode session: %w", err)
	}
	if err := s.backend.Write(ctx, b); err != nil {
		return fmt.Errorf("store: persist session: %w", err)
	}

	s.mu.Lock()
	s.cur = sess
	s.mu.Unlock()
	s.notify()

	logger.From(ctx).Debug("session set",
		logger.Component("store"), logger.UserID(user.ID), logger.TenantID(tenantID))
	return nil
}

// Clear elimina la sesión persistida y en memoria, y notifica.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.backend.Delete(ctx); err != nil {
		return fmt.Errorf("store: clear session: %w", err)
	}
	s.mu.Lock()
	s.cur = nil
	s.mu.Unlock()
	s.notify()

	logger.From(ctx).Debug("session cleared", logger.Component("store"))
	return nil
}

// Refresh re-pide el snapshot del usuario con el token actual.
// Token inválido/expirado se comporta como Clear y NO devuelve error: es el
// steady-state esperado de expiración, no un fallo. Errores transitorios se
// devuelven sin mutar nada.
func (s *Store) Refresh(ctx context.Context) error {
	cur := s.Get()
	if cur == nil {
		return nil
	}

	me, err := s.fetcher.GetCurrentUser(ctx, cur.AccessToken)
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			return s.Clear(ctx)
		}
		return err
	}

	tenantID := cur.TenantID
	if me.ChurchID != "" {
		tenantID = me.ChurchID
	}
	return s.Set(ctx, cur.AccessToken, me.User, tenantID)
}

// Load recarga el estado persistido al arrancar y lo valida contra el
// backend antes de confiar en él. Estado local viejo jamás se presenta como
// autenticado sin verificación.
//
// Cualquier fallo de validación deja el store vacío; el caso Unauthorized
// además borra lo persistido (es definitivo). Un error transitorio deja el
// archivo para el próximo arranque pero el proceso actual arranca como
// "nunca logueado".
func (s *Store) Load(ctx context.Context) error {
	log := logger.From(ctx).With(logger.Component("store"), logger.Op("Load"))

	b, err := s.backend.Read(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return fmt.Errorf("store: read persisted session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(b, &sess); err != nil || sess.AccessToken == "" || sess.User.ID == "" {
		// Estado corrupto o parcial: descartarlo.
		log.Warn("discarding corrupt persisted session")
		return s.Clear(ctx)
	}

	me, err := s.fetcher.GetCurrentUser(ctx, sess.AccessToken)
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			log.Debug("persisted session expired")
			return s.Clear(ctx)
		}
		log.Warn("could not validate persisted session", logger.Err(err))
		return nil
	}

	tenantID := sess.TenantID
	if me.ChurchID != "" {
		tenantID = me.ChurchID
	}
	return s.Set(ctx, sess.AccessToken, me.User, tenantID)
}

// Subscribe registra un callback que se invoca en cada Set/Clear con la
// sesión nueva (nil en Clear). Devuelve una función para cancelar.
func (s *Store) Subscribe(fn func(*Session)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) notify() {
	s.mu.RLock()
	cur := s.cur
	fns := make([]func(*Session), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	var cp *Session
	if cur != nil {
		c := *cur
		cp = &c
	}
	for _, fn := range fns {
		fn(cp)
	}
}
