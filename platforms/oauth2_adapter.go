package platforms

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// OAuth2Adapter implements Adapter for any provider speaking standard
// OAuth2. Provider-specific constructors in providers.go fix the endpoint,
// behavior class, and revoke/validate URLs.
type OAuth2Adapter struct {
	name        string
	behavior    RefreshBehavior
	config      *oauth2.Config
	revokeURL   string
	validateURL string
	httpClient  *http.Client
}

type OAuth2AdapterOption func(*OAuth2Adapter)

// WithHTTPClient overrides the HTTP client used for revoke/validate calls
// (primarily for testing).
func WithHTTPClient(client *http.Client) OAuth2AdapterOption {
	return func(a *OAuth2Adapter) {
		a.httpClient = client
	}
}

func NewOAuth2Adapter(name string, behavior RefreshBehavior, config *oauth2.Config, revokeURL, validateURL string, options ...OAuth2AdapterOption) *OAuth2Adapter {
	a := &OAuth2Adapter{
		name:        name,
		behavior:    behavior,
		config:      config,
		revokeURL:   revokeURL,
		validateURL: validateURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range options {
		opt(a)
	}
	return a
}

func (a *OAuth2Adapter) Name() string              { return a.name }
func (a *OAuth2Adapter) Behavior() RefreshBehavior { return a.behavior }

// AuthCodeURL builds the provider's consent URL for the connect flow.
func (a *OAuth2Adapter) AuthCodeURL(state string) string {
	return a.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

func (a *OAuth2Adapter) ExchangeCode(ctx context.Context, code string) (*TokenSet, error) {
	ctx = a.clientContext(ctx)
	tok, err := a.config.Exchange(ctx, code)
	if err != nil {
		return nil, errors.Wrapf(err, "[%s.ExchangeCode] exchange", a.name)
	}
	return a.normalize(tok), nil
}

func (a *OAuth2Adapter) RefreshToken(ctx context.Context, secret string) (*TokenSet, error) {
	if a.behavior == NonExpiring {
		return nil, errors.Wrapf(ErrProviderRefreshFailed, "[%s.RefreshToken] provider does not refresh", a.name)
	}
	ctx = a.clientContext(ctx)
	tok, err := a.config.TokenSource(ctx, &oauth2.Token{RefreshToken: secret}).Token()
	if err != nil {
		return nil, errors.Wrapf(ErrProviderRefreshFailed, "[%s.RefreshToken] %v", a.name, err)
	}
	return a.normalize(tok), nil
}

// Revoke is best-effort: an error here must never fail the caller's primary
// operation.
func (a *OAuth2Adapter) Revoke(ctx context.Context, secret string) error {
	if a.revokeURL == "" {
		return nil
	}

	form := url.Values{"token": {secret}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Wrapf(err, "[%s.Revoke] request", a.name)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(a.config.ClientID, a.config.ClientSecret)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "[%s.Revoke] do", a.name)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return errors.Errorf("[%s.Revoke] upstream returned %d", a.name, resp.StatusCode)
	}
	return nil
}

func (a *OAuth2Adapter) Validate(ctx context.Context, secret string) (bool, error) {
	if a.validateURL == "" {
		return false, errors.Errorf("[%s.Validate] no validation endpoint configured", a.name)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.validateURL, nil)
	if err != nil {
		return false, errors.Wrapf(err, "[%s.Validate] request", a.name)
	}
	req.Header.Set("Authorization", "Bearer "+secret)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return false, errors.Wrapf(err, "[%s.Validate] do", a.name)
	}
	defer resp.Body.Close()

	return resp.StatusCode < 300, nil
}

// normalize maps x/oauth2's token shape to the uniform TokenSet. No refresh
// token in the response stays empty here; what that means is decided by the
// adapter's declared behavior, not guessed per response.
func (a *OAuth2Adapter) normalize(tok *oauth2.Token) *TokenSet {
	ts := &TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	if !tok.Expiry.IsZero() {
		ts.ExpiresIn = int64(time.Until(tok.Expiry).Seconds())
	}
	return ts
}

// clientContext pins the oauth2 transport to the adapter's HTTP client so
// wire calls inherit its timeout in addition to the caller's context.
func (a *OAuth2Adapter) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
}
