package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Scopes requested from the identity platform.
const (
	// ApplicationScope is used with client credentials; permissions come from the app registration.
	ApplicationScope = "https://graph.microsoft.com/.default"
	// DelegatedMailSend lets the signed-in mailbox send mail.
	DelegatedMailSend = "https://graph.microsoft.com/Mail.Send"
	// OfflineAccess yields a refresh token for later runs.
	OfflineAccess = "offline_access"
)

// TokenSource supplies bearer tokens to the mail transport.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	// Invalidate drops the current token; the next Token call re-acquires it.
	Invalidate()
}

// Config configures a Provider.
type Config struct {
	AuthorityHost string
	TenantID      string
	ClientID      string
	ClientSecret  string
	// CachePath persists delegated tokens; empty disables persistence.
	CachePath string
	// Prompt shows the device code sign-in instructions.
	Prompt func(verificationURI, userCode string)
	// HTTPClient overrides the client used for token requests.
	HTTPClient *http.Client
}

// Provider implements TokenSource for both grants.
type Provider struct {
	cfg Config

	mu           sync.Mutex
	token        *oauth2.Token
	forceRefresh bool
}

// NewProvider returns a provider for cfg.
func NewProvider(cfg Config) *Provider {
	cfg.AuthorityHost = strings.TrimRight(cfg.AuthorityHost, "/")
	return &Provider{cfg: cfg}
}

// Mode returns "client_credentials" or "device_code".
func (p *Provider) Mode() string {
	if p.confidential() {
		return "client_credentials"
	}
	return "device_code"
}

func (p *Provider) confidential() bool {
	return strings.TrimSpace(p.cfg.ClientSecret) != ""
}

func (p *Provider) endpoint() oauth2.Endpoint {
	base := p.cfg.AuthorityHost + "/" + p.cfg.TenantID + "/oauth2/v2.0"
	return oauth2.Endpoint{
		AuthURL:       base + "/authorize",
		TokenURL:      base + "/token",
		DeviceAuthURL: base + "/devicecode",
		AuthStyle:     oauth2.AuthStyleInParams,
	}
}

func (p *Provider) cacheKey() string {
	return p.cfg.TenantID + "/" + p.cfg.ClientID
}

// Token returns a valid access token, acquiring one when needed.
func (p *Provider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != nil && p.token.Valid() {
		return p.token.AccessToken, nil
	}
	if p.cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.cfg.HTTPClient)
	}

	var (
		tok *oauth2.Token
		err error
	)
	if p.confidential() {
		tok, err = p.clientCredentials(ctx)
	} else {
		tok, err = p.delegated(ctx)
	}
	if err != nil {
		return "", err
	}
	if tok.AccessToken == "" {
		return "", errors.New("token response has no access_token")
	}
	p.token = tok
	p.forceRefresh = false
	return tok.AccessToken, nil
}

// Invalidate drops the current token.
func (p *Provider) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = nil
	p.forceRefresh = true
}

func (p *Provider) clientCredentials(ctx context.Context) (*oauth2.Token, error) {
	if p.cfg.TenantID == "" || p.cfg.ClientID == "" {
		return nil, errors.New("tenant id and client id are required")
	}
	cc := &clientcredentials.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: strings.TrimSpace(p.cfg.ClientSecret),
		TokenURL:     p.endpoint().TokenURL,
		Scopes:       []string{ApplicationScope},
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	tok, err := cc.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("client credentials token failed (check CLIENT_SECRET, CLIENT_ID and that the app has the Mail.Send application permission with admin consent): %w", err)
	}
	return tok, nil
}

func (p *Provider) delegated(ctx context.Context) (*oauth2.Token, error) {
	if p.cfg.TenantID == "" || p.cfg.ClientID == "" {
		return nil, errors.New("tenant id and client id are required")
	}
	oc := &oauth2.Config{
		ClientID: p.cfg.ClientID,
		Endpoint: p.endpoint(),
		Scopes:   []string{DelegatedMailSend, OfflineAccess},
	}

	if tok, ok := p.fromCache(ctx, oc); ok {
		return tok, nil
	}

	da, err := oc.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("device authorization failed (check that public client flows are enabled for the app): %w", err)
	}
	if p.cfg.Prompt != nil {
		uri := da.VerificationURIComplete
		if uri == "" {
			uri = da.VerificationURI
		}
		p.cfg.Prompt(uri, da.UserCode)
	}
	tok, err := oc.DeviceAccessToken(ctx, da)
	if err != nil {
		return nil, fmt.Errorf("device code token failed: %w", err)
	}
	if err := p.save(tok); err != nil {
		return nil, err
	}
	return tok, nil
}

// fromCache returns the cached delegated token, refreshing it through the
// oauth2 token source when it expired or was invalidated.
func (p *Provider) fromCache(ctx context.Context, oc *oauth2.Config) (*oauth2.Token, bool) {
	if p.cfg.CachePath == "" {
		return nil, false
	}
	cache, err := LoadTokenCache(p.cfg.CachePath)
	if err != nil {
		return nil, false
	}
	stored, ok := cache.Tokens[p.cacheKey()]
	if !ok {
		return nil, false
	}
	cached := stored.oauth2()
	if p.forceRefresh {
		if cached.RefreshToken == "" {
			return nil, false
		}
		cached.Expiry = time.Now().Add(-time.Minute)
	}
	if !cached.Valid() && cached.RefreshToken == "" {
		return nil, false
	}

	tok, err := oc.TokenSource(ctx, cached).Token()
	if err != nil {
		return nil, false
	}
	if tok.AccessToken != stored.AccessToken {
		if err := p.save(tok); err != nil {
			return nil, false
		}
	}
	return tok, true
}

func (p *Provider) save(tok *oauth2.Token) error {
	if p.cfg.CachePath == "" {
		return nil
	}
	cache, err := LoadTokenCache(p.cfg.CachePath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load token cache: %w", err)
		}
		cache = &TokenCache{Tokens: map[string]StoredToken{}}
	}
	stored := storedFrom(tok)
	if stored.RefreshToken == "" {
		// Refresh responses may omit the refresh token; keep the previous one.
		stored.RefreshToken = cache.Tokens[p.cacheKey()].RefreshToken
	}
	cache.Tokens[p.cacheKey()] = stored
	if err := SaveTokenCache(p.cfg.CachePath, cache); err != nil {
		return fmt.Errorf("save token cache: %w", err)
	}
	return nil
}
