// Package api es el cliente tipado del backend de sesiones.
// Es puro request/response: no retiene estado propio. El token bearer se pasa
// explícito en cada llamada que lo requiere; claim-profile viaja con el temp
// token, nunca con el token de la sesión actual.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/parishdesk/authgate/internal/metrics"
	"github.com/parishdesk/authgate/internal/observability/logger"
)

// Errores del cliente. Los llamadores hacen match con errors.Is.
var (
	// ErrInvalidCredentials: login/register rechazado por el backend (4xx).
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	// ErrEmailExists: register con un email ya registrado.
	ErrEmailExists = fmt.Errorf("email already registered")
	// ErrUnauthorized: token inválido o expirado. Señal definitiva de
	// "no autenticado", no un fallo transitorio.
	ErrUnauthorized = fmt.Errorf("unauthorized")
	// ErrConflictExpired: el temp token del claim ya no es válido.
	ErrConflictExpired = fmt.Errorf("claim conflict expired")
	// ErrServiceUnavailable: error de red o 5xx. Transitorio.
	ErrServiceUnavailable = fmt.Errorf("auth service unavailable")
)

// Client habla con el backend de sesiones vía REST.
type Client struct {
	baseURL string
	http    *http.Client
}

// New crea un cliente apuntando a baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Login autentica con email/password y devuelve una sesión completa.
func (c *Client) Login(ctx context.Context, email, password string) (*SessionResult, error) {
	var out SessionResult
	status, err := c.do(ctx, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	}, &out)
	if err != nil {
		return nil, err
	}
	if status/100 == 4 {
		return nil, ErrInvalidCredentials
	}
	if status/100 != 2 {
		return nil, fmt.Errorf("%w: login status %d", ErrServiceUnavailable, status)
	}
	return &out, nil
}

// Register crea una cuenta nueva con email/password.
func (c *Client) Register(ctx context.Context, email, password string) (*SessionResult, error) {
	var out SessionResult
	status, err := c.do(ctx, http.MethodPost, "/auth/register", "", map[string]string{
		"email":    email,
		"password": password,
	}, &out)
	if err != nil {
		return nil, err
	}
	switch {
	case status == http.StatusConflict:
		return nil, ErrEmailExists
	case status/100 == 4:
		return nil, ErrInvalidCredentials
	case status/100 != 2:
		return nil, fmt.Errorf("%w: register status %d", ErrServiceUnavailable, status)
	}
	return &out, nil
}

// socialLoginResponse es la respuesta cruda de /auth/social-login: o una
// sesión completa o una oferta de claim con accessToken temporal.
type socialLoginResponse struct {
	AccessToken  string `json:"accessToken"`
	User         *User  `json:"user"`
	ChurchID     string `json:"churchId"`
	ClaimProfile *struct {
		Found  bool   `json:"found"`
		Person Person `json:"person"`
	} `json:"claimProfile"`
}

// SocialLogin intercambia los claims del identity provider por una sesión
// first-party, o por una oferta de claim si el backend encontró un perfil
// existente sin reclamar.
func (c *Client) SocialLogin(ctx context.Context, claims IdentityClaims) (*SocialResult, error) {
	var raw socialLoginResponse
	status, err := c.do(ctx, http.MethodPost, "/auth/social-login", "", claims, &raw)
	if err != nil {
		return nil, err
	}
	if status/100 != 2 {
		return nil, fmt.Errorf("%w: social-login status %d", ErrServiceUnavailable, status)
	}

	if raw.ClaimProfile != nil && raw.ClaimProfile.Found {
		// El accessToken de esta rama es el temp token del claim.
		return &SocialResult{Claim: &ClaimOffer{
			TempToken: raw.AccessToken,
			Person:    raw.ClaimProfile.Person,
		}}, nil
	}
	if raw.User == nil {
		return nil, fmt.Errorf("%w: social-login returned neither session nor claim", ErrServiceUnavailable)
	}
	return &SocialResult{Session: &SessionResult{
		AccessToken: raw.AccessToken,
		User:        *raw.User,
		ChurchID:    raw.ChurchID,
	}}, nil
}

// ClaimProfile resuelve una oferta de claim. Viaja SIEMPRE con tempToken,
// nunca con el token de la sesión actual: son contextos de seguridad
// distintos.
func (c *Client) ClaimProfile(ctx context.Context, tempToken string, decision ClaimDecision) (*SessionResult, error) {
	body := map[string]any{}
	if decision.Claim {
		body["personId"] = decision.PersonID
	} else {
		body["createNew"] = true
	}

	var out SessionResult
	status, err := c.do(ctx, http.MethodPost, "/auth/claim-profile", tempToken, body, &out)
	if err != nil {
		return nil, err
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusConflict || status == http.StatusGone:
		return nil, ErrConflictExpired
	case status/100 != 2:
		return nil, fmt.Errorf("%w: claim-profile status %d", ErrServiceUnavailable, status)
	}
	return &out, nil
}

// meResponse: /auth/me devuelve el snapshot plano del usuario más churchId.
type meResponse struct {
	User
	ChurchID string `json:"churchId"`
}

// GetCurrentUser valida token contra el backend y devuelve el snapshot.
// Un 401 es definitivo: el llamador debe tratarlo como "no autenticado".
func (c *Client) GetCurrentUser(ctx context.Context, token string) (*Me, error) {
	var raw meResponse
	status, err := c.do(ctx, http.MethodGet, "/auth/me", token, nil, &raw)
	if err != nil {
		return nil, err
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return nil, ErrUnauthorized
	case status/100 != 2:
		return nil, fmt.Errorf("%w: me status %d", ErrServiceUnavailable, status)
	}
	return &Me{User: raw.User, ChurchID: raw.ChurchID}, nil
}

// CreateTenant crea una iglesia/organización nueva.
func (c *Client) CreateTenant(ctx context.Context, token string, payload CreateTenantPayload) (*Tenant, error) {
	var out Tenant
	status, err := c.do(ctx, http.MethodPost, "/churches", token, payload, &out)
	if err != nil {
		return nil, err
	}
	switch {
	case status == http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case status/100 != 2:
		return nil, fmt.Errorf("%w: create church status %d", ErrServiceUnavailable, status)
	}
	return &out, nil
}

// SwitchTenant pide un token nuevo scoped al tenant dado.
func (c *Client) SwitchTenant(ctx context.Context, token, tenantID string) (*SessionResult, error) {
	var out SessionResult
	path := "/auth/switch-church/" + url.PathEscape(tenantID)
	status, err := c.do(ctx, http.MethodPost, path, token, nil, &out)
	if err != nil {
		return nil, err
	}
	switch {
	case status == http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case status/100 != 2:
		return nil, fmt.Errorf("%w: switch church status %d", ErrServiceUnavailable, status)
	}
	return &out, nil
}

// do ejecuta un request JSON. Errores de transporte se mapean a
// ErrServiceUnavailable; el status se devuelve para que cada operación
// aplique su propio mapping.
func (c *Client) do(ctx context.Context, method, path, token string, body, out any) (int, error) {
	log := logger.From(ctx).With(logger.Layer("client"), logger.Path(path))

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("api: encode %s: %w", path, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("api: build %s: %w", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.APIErrors.WithLabelValues("network").Inc()
		log.Debug("request failed", logger.Err(err))
		return 0, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode/100 == 5:
		metrics.APIErrors.WithLabelValues("server").Inc()
		return resp.StatusCode, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		metrics.APIErrors.WithLabelValues("unauthorized").Inc()
	case resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusGone:
		metrics.APIErrors.WithLabelValues("conflict").Inc()
	case resp.StatusCode/100 == 4:
		metrics.APIErrors.WithLabelValues("rejected").Inc()
	}
	if out != nil && resp.StatusCode/100 == 2 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("%w: decode %s: %v", ErrServiceUnavailable, path, err)
		}
	}

	log.Debug("request done", logger.Status(resp.StatusCode))
	return resp.StatusCode, nil
}
