package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vetpath/vetpath-client/internal/core/domain"
	"github.com/vetpath/vetpath-client/internal/infrastructure/resilience"
)

// Provider is an OIDC-shaped identity client. The rest of the system treats
// it as opaque: only call success/failure and the token's embedded expiry
// are consumed. Tokens live in memory for the life of the client, the Go
// analog of a browser SDK's token cache.
type Provider struct {
	baseURL    string
	clientID   string
	httpClient *http.Client
	exec       *resilience.Executor

	mu           sync.Mutex
	accessToken  string
	refreshToken string
}

func New(baseURL, clientID string, exec *resilience.Executor) *Provider {
	return &Provider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		clientID:   clientID,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		exec:       exec,
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (p *Provider) SignIn(ctx context.Context, creds domain.Credentials) (domain.Token, error) {
	form := url.Values{
		"grant_type": {"password"},
		"client_id":  {p.clientID},
		"username":   {creds.Username},
		"password":   {creds.Password},
	}
	resp, err := p.postForm(ctx, "/oauth/token", form, "sign in")
	if err != nil {
		return domain.Token{}, err
	}

	token, err := parseToken(resp.AccessToken)
	if err != nil {
		return domain.Token{}, fmt.Errorf("sign in: %w", err)
	}

	p.mu.Lock()
	p.accessToken = resp.AccessToken
	p.refreshToken = resp.RefreshToken
	p.mu.Unlock()

	return token, nil
}

// CurrentSession returns the cached token with its embedded expiry. It does
// not judge expiry itself; the token's exp claim is the caller's ground
// truth.
func (p *Provider) CurrentSession(_ context.Context) (domain.Token, error) {
	p.mu.Lock()
	raw := p.accessToken
	p.mu.Unlock()

	if raw == "" {
		return domain.Token{}, domain.ErrNoSession
	}
	token, err := parseToken(raw)
	if err != nil {
		return domain.Token{}, fmt.Errorf("current session: %w", err)
	}
	return token, nil
}

// Refresh mints a new access token. Transient provider failures are retried
// through the executor before the failure is surfaced.
func (p *Provider) Refresh(ctx context.Context) (domain.Token, error) {
	p.mu.Lock()
	refresh := p.refreshToken
	p.mu.Unlock()

	if refresh == "" {
		return domain.Token{}, domain.ErrNoSession
	}

	var resp tokenResponse
	err := p.exec.Execute(ctx, "refresh session", func(callCtx context.Context) error {
		form := url.Values{
			"grant_type":    {"refresh_token"},
			"client_id":     {p.clientID},
			"refresh_token": {refresh},
		}
		got, callErr := p.postForm(callCtx, "/oauth/token", form, "refresh session")
		if callErr != nil {
			return callErr
		}
		resp = got
		return nil
	}, classifyIdentityError)
	if err != nil {
		return domain.Token{}, err
	}

	token, err := parseToken(resp.AccessToken)
	if err != nil {
		return domain.Token{}, fmt.Errorf("refresh session: %w", err)
	}

	p.mu.Lock()
	p.accessToken = resp.AccessToken
	if resp.RefreshToken != "" {
		p.refreshToken = resp.RefreshToken
	}
	p.mu.Unlock()

	return token, nil
}

// SignOut revokes the session remotely but always drops the local tokens,
// whatever the remote outcome.
func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	refresh := p.refreshToken
	p.accessToken = ""
	p.refreshToken = ""
	p.mu.Unlock()

	if refresh == "" {
		return nil
	}
	form := url.Values{
		"client_id": {p.clientID},
		"token":     {refresh},
	}
	if _, err := p.postForm(ctx, "/oauth/revoke", form, "sign out"); err != nil {
		return err
	}
	return nil
}

func (p *Provider) FetchAttributes(ctx context.Context, token domain.Token) (domain.Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/userinfo", nil)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("create userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.Raw)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("userinfo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return domain.Identity{}, fmt.Errorf("userinfo status: %s", resp.Status)
	}

	var claims map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return domain.Identity{}, fmt.Errorf("decode userinfo: %w", err)
	}

	identity := domain.Identity{
		Subject: stringClaim(claims, "sub"),
		Email:   stringClaim(claims, "email"),
		Name:    stringClaim(claims, "name"),
		Claims:  map[string]string{},
	}
	if identity.Subject == "" {
		identity.Subject = token.Subject
	}
	for key, value := range claims {
		if s, ok := value.(string); ok {
			identity.Claims[key] = s
		}
	}
	return identity, nil
}

// BearerToken supplies the backend credential.
func (p *Provider) BearerToken(_ context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.accessToken == "" {
		return "", domain.ErrNoSession
	}
	return p.accessToken, nil
}

func (p *Provider) postForm(ctx context.Context, path string, form url.Values, operation string) (tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return tokenResponse{}, fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return tokenResponse{}, fmt.Errorf("identity %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return tokenResponse{}, &identityStatusError{
			operation:  operation,
			statusCode: resp.StatusCode,
			status:     resp.Status,
			body:       strings.TrimSpace(string(body)),
		}
	}

	var parsed tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return tokenResponse{}, fmt.Errorf("decode %s response: %w", operation, err)
	}
	return parsed, nil
}

// parseToken reads the expiry and subject out of the JWT without verifying
// the signature. Verification is the backend's job; the client only needs
// the exp claim as its expiry ground truth.
func parseToken(raw string) (domain.Token, error) {
	if raw == "" {
		return domain.Token{}, fmt.Errorf("empty access token")
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return domain.Token{}, fmt.Errorf("parse access token: %w", err)
	}

	token := domain.Token{Raw: raw}
	if sub, err := parsed.Claims.GetSubject(); err == nil {
		token.Subject = sub
	}
	if exp, err := parsed.Claims.GetExpirationTime(); err == nil && exp != nil {
		token.ExpiresAt = exp.Time
	}
	return token, nil
}

func stringClaim(claims map[string]any, key string) string {
	if value, ok := claims[key].(string); ok {
		return value
	}
	return ""
}
