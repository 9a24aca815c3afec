package idp

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	gocache "github.com/patrickmn/go-cache"

	"github.com/parishdesk/authgate/internal/observability/logger"
)

const (
	discoveryCacheKey = "discovery"
	jwksCacheKey      = "jwks"
	discoveryTTL      = 24 * time.Hour
	jwksTTL           = 1 * time.Hour
)

type discoveryDoc struct {
	Issuer         string `json:"issuer"`
	AuthEndpoint   string `json:"authorization_endpoint"`
	TokenEndpoint  string `json:"token_endpoint"`
	JWKSURI        string `json:"jwks_uri"`
	EndSessionURI  string `json:"end_session_endpoint"`
	RevocationURI  string `json:"revocation_endpoint"`
	UserinfoURI    string `json:"userinfo_endpoint"`
}

type jwk struct {
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	N   string `json:"n"` // base64url
	E   string `json:"e"` // base64url
}

type jwks struct {
	Keys []jwk `json:"keys"`
}

// OIDCConfig configura el provider OIDC.
type OIDCConfig struct {
	// Domain del provider, ej "parishdesk.us.auth0.com".
	Domain       string
	ClientID     string
	RedirectURL  string
	Scopes       []string
	CallbackAddr string
}

// OIDC implementa Provider contra un identity provider OIDC estándar
// (authorization code + PKCE, cliente público sin secret).
type OIDC struct {
	cfg  OIDCConfig
	http *http.Client

	// discovery y JWKS cacheados con TTL
	docs *gocache.Cache

	mu sync.RWMutex
	st State
}

// NewOIDC crea el adaptador. El estado inicial es Loading hasta Start().
func NewOIDC(cfg OIDCConfig) *OIDC {
	return &OIDC{
		cfg:  cfg,
		http: &http.Client{Timeout: 10 * time.Second},
		docs: gocache.New(discoveryTTL, 10*time.Minute),
		st:   State{Loading: true},
	}
}

// Start completa la fase de carga. Un proceso nuevo no tiene sesión de
// provider previa, así que arranca no-autenticado.
func (p *OIDC) Start(ctx context.Context) {
	p.mu.Lock()
	p.st = State{Loading: false, Authenticated: false}
	p.mu.Unlock()
}

// Snapshot devuelve el estado actual.
func (p *OIDC) Snapshot() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	st := p.st
	if st.Claims != nil {
		c := *st.Claims
		st.Claims = &c
	}
	return st
}

// LoginWithRedirect corre el authorization code flow completo:
// authorize URL (PKCE + state + nonce) → callback local → code exchange →
// verificación del id_token contra el JWKS del provider.
func (p *OIDC) LoginWithRedirect(ctx context.Context, opts LoginOptions) error {
	log := logger.From(ctx).With(logger.Component("idp"), logger.Op("LoginWithRedirect"))

	disc, err := p.discovery(ctx)
	if err != nil {
		return fmt.Errorf("idp: discovery: %w", err)
	}

	verifier, challenge, err := newPKCE()
	if err != nil {
		return fmt.Errorf("idp: pkce: %w", err)
	}
	state := randomToken()
	nonce := randomToken()

	authURL, err := p.authURL(disc, state, nonce, challenge, opts.Prompt)
	if err != nil {
		return err
	}

	cb, err := listenCallback(p.cfg.CallbackAddr, state)
	if err != nil {
		return fmt.Errorf("idp: callback server: %w", err)
	}
	defer cb.Close()

	if opts.OpenURL != nil {
		if err := opts.OpenURL(authURL); err != nil {
			return fmt.Errorf("idp: open auth url: %w", err)
		}
	} else {
		fmt.Println("Open this URL in your browser to sign in:")
		fmt.Println("  " + authURL)
	}

	code, err := cb.Wait(ctx)
	if err != nil {
		return err
	}

	tok, err := p.exchangeCode(ctx, disc, code, verifier)
	if err != nil {
		return fmt.Errorf("idp: code exchange: %w", err)
	}

	claims, err := p.verifyIDToken(ctx, disc, tok.IDToken, nonce)
	if err != nil {
		return fmt.Errorf("idp: id_token: %w", err)
	}

	p.mu.Lock()
	p.st = State{Loading: false, Authenticated: true, Claims: claims}
	p.mu.Unlock()

	log.Info("provider authenticated", logger.Subject(claims.Subject))
	return nil
}

// Logout limpia el estado local y cierra la sesión del provider
// (best-effort: el endpoint de end-session puede no existir).
func (p *OIDC) Logout(ctx context.Context, opts LogoutOptions) error {
	p.mu.Lock()
	p.st = State{Loading: false, Authenticated: false}
	p.mu.Unlock()

	disc, err := p.discovery(ctx)
	if err != nil || disc.EndSessionURI == "" {
		return nil
	}
	u, err := url.Parse(disc.EndSessionURI)
	if err != nil {
		return nil
	}
	q := u.Query()
	q.Set("client_id", p.cfg.ClientID)
	if opts.ReturnTo != "" {
		q.Set("post_logout_redirect_uri", opts.ReturnTo)
	}
	u.RawQuery = q.Encode()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	resp, err := p.http.Do(req)
	if err == nil {
		resp.Body.Close()
	}
	return nil
}

func (p *OIDC) issuerBase() string {
	d := strings.TrimRight(p.cfg.Domain, "/")
	if !strings.HasPrefix(d, "http") {
		d = "https://" + d
	}
	return d
}

func (p *OIDC) discovery(ctx context.Context) (*discoveryDoc, error) {
	if v, ok := p.docs.Get(discoveryCacheKey); ok {
		return v.(*discoveryDoc), nil
	}

	wellKnown := p.issuerBase() + "/.well-known/openid-configuration"
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, wellKnown, nil)
	resp, err := p.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("discovery http %d", resp.StatusCode)
	}
	var dd discoveryDoc
	if err := json.NewDecoder(resp.Body).Decode(&dd); err != nil {
		return nil, err
	}
	p.docs.Set(discoveryCacheKey, &dd, discoveryTTL)
	return &dd, nil
}

func (p *OIDC) getJWKS(ctx context.Context, uri string) (*jwks, error) {
	if v, ok := p.docs.Get(jwksCacheKey); ok {
		return v.(*jwks), nil
	}

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	resp, err := p.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("jwks http %d", resp.StatusCode)
	}
	var jj jwks
	if err := json.NewDecoder(resp.Body).Decode(&jj); err != nil {
		return nil, err
	}
	p.docs.Set(jwksCacheKey, &jj, jwksTTL)
	return &jj, nil
}

func (p *OIDC) rsaKeyForKid(ctx context.Context, uri, kid string) (*rsa.PublicKey, error) {
	keys, err := p.getJWKS(ctx, uri)
	if err != nil {
		return nil, err
	}
	for _, k := range keys.Keys {
		if k.Kid == kid && strings.EqualFold(k.Kty, "RSA") {
			nb, err := base64.RawURLEncoding.DecodeString(k.N)
			if err != nil {
				return nil, err
			}
			eb, err := base64.RawURLEncoding.DecodeString(k.E)
			if err != nil {
				return nil, err
			}
			n := new(big.Int).SetBytes(nb)
			e := 65537
			if len(eb) > 0 {
				e = 0
				for _, b := range eb {
					e = (e << 8) | int(b)
				}
			}
			return &rsa.PublicKey{N: n, E: e}, nil
		}
	}
	return nil, errors.New("kid not found")
}

func (p *OIDC) authURL(disc *discoveryDoc, state, nonce, challenge, prompt string) (string, error) {
	u, err := url.Parse(disc.AuthEndpoint)
	if err != nil {
		return "", fmt.Errorf("idp: bad auth endpoint: %w", err)
	}
	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", p.cfg.ClientID)
	q.Set("redirect_uri", p.cfg.RedirectURL)
	q.Set("scope", strings.Join(p.cfg.Scopes, " "))
	q.Set("state", state)
	q.Set("nonce", nonce)
	q.Set("code_challenge", challenge)
	q.Set("code_challenge_method", "S256")
	if prompt != "" {
		q.Set("prompt", prompt)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	IDToken     string `json:"id_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (p *OIDC) exchangeCode(ctx context.Context, disc *discoveryDoc, code, verifier string) (*tokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", p.cfg.ClientID)
	form.Set("redirect_uri", p.cfg.RedirectURL)
	form.Set("code_verifier", verifier)

	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, disc.TokenEndpoint, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := p.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		var b struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&b)
		return nil, fmt.Errorf("token http %d: %s %s", resp.StatusCode, b.Error, b.ErrorDescription)
	}
	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, err
	}
	if tr.IDToken == "" {
		return nil, errors.New("no id_token in response")
	}
	return &tr, nil
}

// verifyIDToken valida firma, iss, aud, nonce y exp. Devuelve claims.
func (p *OIDC) verifyIDToken(ctx context.Context, disc *discoveryDoc, idToken, expectedNonce string) (*Claims, error) {
	parts := strings.Split(idToken, ".")
	if len(parts) != 3 {
		return nil, errors.New("bad jwt format")
	}
	hb, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, err
	}
	var header struct {
		Alg string `json:"alg"`
		Kid string `json:"kid"`
	}
	if err := json.Unmarshal(hb, &header); err != nil {
		return nil, err
	}
	if header.Alg != "RS256" {
		return nil, fmt.Errorf("unexpected alg: %s", header.Alg)
	}

	key, err := p.rsaKeyForKid(ctx, disc.JWKSURI, header.Kid)
	if err != nil {
		return nil, err
	}
	tok, err := jwtv5.Parse(idToken,
		func(t *jwtv5.Token) (any, error) { return key, nil },
		jwtv5.WithValidMethods([]string{"RS256"}),
		jwtv5.WithExpirationRequired(),
	)
	if err != nil || !tok.Valid {
		return nil, errors.New("invalid id_token")
	}
	claims, ok := tok.Claims.(jwtv5.MapClaims)
	if !ok {
		return nil, errors.New("claims type")
	}

	if iss, _ := claims["iss"].(string); strings.TrimRight(iss, "/") != strings.TrimRight(disc.Issuer, "/") {
		return nil, fmt.Errorf("bad iss: %s", iss)
	}
	audOK := false
	switch a := claims["aud"].(type) {
	case string:
		audOK = a == p.cfg.ClientID
	case []any:
		for _, v := range a {
			if s, _ := v.(string); s == p.cfg.ClientID {
				audOK = true
				break
			}
		}
	}
	if !audOK {
		return nil, errors.New("bad aud")
	}
	if expectedNonce != "" {
		if got, _ := claims["nonce"].(string); got != expectedNonce {
			return nil, errors.New("bad nonce")
		}
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, errors.New("missing sub")
	}
	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)
	picture, _ := claims["picture"].(string)
	return &Claims{Subject: sub, Email: email, Name: name, Picture: picture}, nil
}

func newPKCE() (verifier, challenge string, err error) {
	b := make([]byte, 32)
	if _, err = rand.Read(b); err != nil {
		return "", "", err
	}
	verifier = base64.RawURLEncoding.EncodeToString(b)
	sum := sha256.Sum256([]byte(verifier))
	challenge = base64.RawURLEncoding.EncodeToString(sum[:])
	return verifier, challenge, nil
}

func randomToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
