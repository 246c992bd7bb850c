// Package oidcprovider is the OpenID Connect identity provider client used
// for Azure AD sign-in. It keeps one account and its tokens in memory.
package oidcprovider

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	gwerrors "github.com/jrsteele09/constructos-gateway/internal/errors"
	"github.com/jrsteele09/constructos-gateway/token"
	"golang.org/x/oauth2"
)

// DevicePrompt shows the user where to enter a device code.
type DevicePrompt func(resp *oauth2.DeviceAuthResponse)

type Settings struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

type Provider struct {
	mu          sync.Mutex
	oauth       *oauth2.Config
	verifier    *oidc.IDTokenVerifier
	httpClient  *http.Client
	prompt      DevicePrompt
	account     *token.Account
	cached      *oauth2.Token
	interacting bool
}

var _ token.Provider = (*Provider)(nil)

type Option func(*Provider)

// WithDevicePrompt enables the device authorization grant as the
// interactive step.
func WithDevicePrompt(prompt DevicePrompt) Option {
	return func(p *Provider) {
		p.prompt = prompt
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = client
	}
}

// Disabled returns a provider for deployments without an identity provider.
func Disabled() *Provider {
	return &Provider{}
}

// New discovers the issuer and returns a configured provider.
func New(ctx context.Context, s Settings, opts ...Option) (*Provider, error) {
	p := &Provider{}
	for _, opt := range opts {
		opt(p)
	}

	provider, err := oidc.NewProvider(p.clientContext(ctx), s.Issuer)
	if err != nil {
		return nil, fmt.Errorf("[oidcprovider New] failed to create OIDC provider: %w", err)
	}

	scopes := s.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email", oidc.ScopeOfflineAccess}
	}

	p.oauth = &oauth2.Config{
		ClientID:     s.ClientID,
		ClientSecret: s.ClientSecret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  s.RedirectURL,
		Scopes:       scopes,
	}
	p.verifier = provider.Verifier(&oidc.Config{ClientID: s.ClientID})
	return p, nil
}

// Fork returns a provider sharing p's client configuration with no
// signed-in account. Each gateway session signs in on its own fork.
func (p *Provider) Fork() *Provider {
	return &Provider{
		oauth:      p.oauth,
		verifier:   p.verifier,
		httpClient: p.httpClient,
		prompt:     p.prompt,
	}
}

func (p *Provider) Configured() bool {
	return p.oauth != nil
}

func (p *Provider) Account() (token.Account, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.account == nil {
		return token.Account{}, false
	}
	return *p.account, true
}

func (p *Provider) InteractionInProgress() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interacting
}

// AcquireTokenSilent returns the cached access token, refreshing it when expired.
func (p *Provider) AcquireTokenSilent(ctx context.Context, account token.Account) (string, error) {
	if !p.Configured() {
		return "", gwerrors.ErrNotConfigured
	}

	p.mu.Lock()
	current, cached := p.account, p.cached
	p.mu.Unlock()

	if current == nil || cached == nil || current.HomeAccountID != account.HomeAccountID {
		return "", gwerrors.ErrNoAccount
	}
	if cached.Valid() {
		return cached.AccessToken, nil
	}
	if cached.RefreshToken == "" {
		return "", gwerrors.ErrNoRefreshToken
	}

	refreshed, err := p.oauth.TokenSource(p.clientContext(ctx), cached).Token()
	if err != nil {
		return "", fmt.Errorf("[oidcprovider AcquireTokenSilent] refresh: %w", err)
	}
	if _, err := p.adopt(ctx, refreshed, ""); err != nil {
		return "", err
	}
	return refreshed.AccessToken, nil
}

// AcquireTokenInteractive runs the device authorization grant. Without a
// device prompt there is no way to reach the user and it fails with
// ErrInteractionRequired.
func (p *Provider) AcquireTokenInteractive(ctx context.Context) (string, error) {
	if !p.Configured() {
		return "", gwerrors.ErrNotConfigured
	}
	if p.prompt == nil {
		return "", gwerrors.ErrInteractionRequired
	}

	p.setInteracting(true)
	defer p.setInteracting(false)

	ctx = p.clientContext(ctx)
	resp, err := p.oauth.DeviceAuth(ctx)
	if err != nil {
		return "", fmt.Errorf("[oidcprovider AcquireTokenInteractive] device authorization: %w", err)
	}
	p.prompt(resp)

	tok, err := p.oauth.DeviceAccessToken(ctx, resp)
	if err != nil {
		return "", fmt.Errorf("[oidcprovider AcquireTokenInteractive] device token: %w", err)
	}
	if _, err := p.adopt(ctx, tok, ""); err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// AuthCodeURL starts the browser redirect flow with PKCE and a nonce.
func (p *Provider) AuthCodeURL(state, verifier, nonce string) string {
	return p.oauth.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier), oidc.Nonce(nonce))
}

// CompleteAuthCode exchanges an authorization code and signs the account in.
func (p *Provider) CompleteAuthCode(ctx context.Context, code, verifier, nonce string) (token.Account, error) {
	if !p.Configured() {
		return token.Account{}, gwerrors.ErrNotConfigured
	}
	tok, err := p.oauth.Exchange(p.clientContext(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return token.Account{}, fmt.Errorf("[oidcprovider CompleteAuthCode] token exchange failed: %w", err)
	}
	return p.adopt(ctx, tok, nonce)
}

// SetToken signs in with an already obtained token.
func (p *Provider) SetToken(ctx context.Context, tok *oauth2.Token) (token.Account, error) {
	return p.adopt(ctx, tok, "")
}

func (p *Provider) Logout(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.account = nil
	p.cached = nil
	return nil
}

func (p *Provider) adopt(ctx context.Context, tok *oauth2.Token, nonce string) (token.Account, error) {
	account, err := p.accountFromToken(ctx, tok, nonce)
	if err != nil {
		return token.Account{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if account.HomeAccountID == "" && p.account != nil {
		account = *p.account
	}
	p.account = &account
	p.cached = tok
	return account, nil
}

type accountClaims struct {
	Subject           string   `json:"sub"`
	ObjectID          string   `json:"oid"`
	TenantID          string   `json:"tid"`
	PreferredUsername string   `json:"preferred_username"`
	Email             string   `json:"email"`
	Name              string   `json:"name"`
	Nonce             string   `json:"nonce"`
	Roles             []string `json:"roles"`
}

func (c accountClaims) account() token.Account {
	id := c.ObjectID
	if id == "" {
		id = c.Subject
	}
	if id != "" && c.TenantID != "" {
		id = id + "." + c.TenantID
	}
	username := c.PreferredUsername
	if username == "" {
		username = c.Email
	}
	return token.Account{
		HomeAccountID: id,
		TenantID:      c.TenantID,
		Username:      username,
		Name:          c.Name,
		Roles:         c.Roles,
	}
}

func (p *Provider) accountFromToken(ctx context.Context, tok *oauth2.Token, nonce string) (token.Account, error) {
	if rawIDToken, ok := tok.Extra("id_token").(string); ok && rawIDToken != "" {
		idToken, err := p.verifier.Verify(p.clientContext(ctx), rawIDToken)
		if err != nil {
			return token.Account{}, fmt.Errorf("[oidcprovider] ID token verification failed: %w", err)
		}
		var claims accountClaims
		if err := idToken.Claims(&claims); err != nil {
			return token.Account{}, fmt.Errorf("[oidcprovider] failed to extract claims: %w", err)
		}
		if nonce != "" && claims.Nonce != nonce {
			return token.Account{}, gwerrors.ErrInvalidNonce
		}
		return claims.account(), nil
	}
	// A sign-in that carried a nonce must prove it with a verified ID token.
	// Refresh and device grants adopt the access token's claims.
	if nonce != "" {
		return token.Account{}, fmt.Errorf("[oidcprovider] %w", gwerrors.ErrNoIDToken)
	}
	return peekAccessToken(tok.AccessToken), nil
}

// peekAccessToken reads account claims from a JWT access token without
// verifying it. The backend verifies every bearer token it receives.
func peekAccessToken(raw string) token.Account {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return token.Account{}
	}
	str := func(key string) string {
		s, _ := claims[key].(string)
		return s
	}
	return accountClaims{
		Subject:           str("sub"),
		ObjectID:          str("oid"),
		TenantID:          str("tid"),
		PreferredUsername: str("preferred_username"),
		Email:             str("email"),
		Name:              str("name"),
		Roles:             stringClaims(claims["roles"]),
	}.account()
}

func (p *Provider) setInteracting(v bool) {
	p.mu.Lock()
	p.interacting = v
	p.mu.Unlock()
}

func (p *Provider) clientContext(ctx context.Context) context.Context {
	if p.httpClient == nil {
		return ctx
	}
	return oidc.ClientContext(ctx, p.httpClient)
}

// stringClaims reads a claim that may be a single string or a list.
// Non-string list entries are dropped.
func stringClaims(v any) []string {
	switch c := v.(type) {
	case string:
		return []string{c}
	case []any:
		out := make([]string, 0, len(c))
		for _, e := range c {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
