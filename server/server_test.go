package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/postloop/postloop/auth"
	"github.com/postloop/postloop/credentials"
	credentialfakes "github.com/postloop/postloop/credentials/repofakes"
	"github.com/postloop/postloop/internal/config"
	"github.com/postloop/postloop/platforms"
	"github.com/postloop/postloop/refresh"
	"github.com/postloop/postloop/secrets"
	sessionfakes "github.com/postloop/postloop/sessions/repofakes"
	"github.com/postloop/postloop/server"
	"github.com/postloop/postloop/tenants"
	tenantfakes "github.com/postloop/postloop/tenants/repofakes"
	"github.com/postloop/postloop/token"
	userfakes "github.com/postloop/postloop/users/repofakes"
)

const (
	testDomain = "postloop.test"
	testHost   = "acme." + testDomain
)

type noopStore struct{}

func (noopStore) EnsureNamespace(context.Context, string) error { return nil }

type stubAdapter struct {
	name     string
	behavior platforms.RefreshBehavior
	exchange *platforms.TokenSet
	refresh  *platforms.TokenSet
	valid    bool
	revoked  int
}

func (a *stubAdapter) Name() string                        { return a.name }
func (a *stubAdapter) Behavior() platforms.RefreshBehavior { return a.behavior }

func (a *stubAdapter) ExchangeCode(context.Context, string) (*platforms.TokenSet, error) {
	return a.exchange, nil
}

func (a *stubAdapter) RefreshToken(context.Context, string) (*platforms.TokenSet, error) {
	if a.refresh == nil {
		return nil, platforms.ErrProviderRefreshFailed
	}
	return a.refresh, nil
}

func (a *stubAdapter) Revoke(context.Context, string) error {
	a.revoked++
	return nil
}

func (a *stubAdapter) Validate(context.Context, string) (bool, error) { return a.valid, nil }

type fixture struct {
	server  *server.Server
	twitter *stubAdapter
}

func setupServer(t *testing.T) *fixture {
	t.Helper()

	issuer, err := token.NewIssuer("postloop.test", "access-secret", "refresh-secret")
	require.NoError(t, err)

	tenantRepo := tenantfakes.NewFakeTenantRepo()
	authService, err := auth.NewService(auth.Repos{
		Users:    userfakes.NewFakeUserRepo(),
		Sessions: sessionfakes.NewFakeSessionRepo(),
		Tenants:  tenantRepo,
	}, noopStore{}, issuer)
	require.NoError(t, err)

	cipher, err := secrets.NewCipher("server-test-operator-secret", "test")
	require.NoError(t, err)
	vault, err := credentials.NewVault(credentialfakes.NewFakeCredentialRepo(), cipher)
	require.NoError(t, err)

	orchestrator, err := refresh.NewOrchestrator(vault)
	require.NoError(t, err)

	resolver, err := tenants.NewResolver(issuer, tenantRepo, testDomain)
	require.NoError(t, err)

	twitter := &stubAdapter{
		name:     platforms.ProviderTwitter,
		behavior: platforms.RotatingRefresh,
		exchange: &platforms.TokenSet{AccessToken: "tw-access", RefreshToken: "tw-refresh", ExpiresIn: 7200},
		refresh:  &platforms.TokenSet{AccessToken: "tw-access-2", RefreshToken: "tw-refresh-2", ExpiresIn: 7200},
		valid:    true,
	}

	cfg := &config.Config{}
	cfg.App.Env = "test"
	cfg.App.Domain = testDomain

	srv, err := server.New(cfg, authService, vault, orchestrator, resolver,
		map[string]platforms.Adapter{platforms.ProviderTwitter: twitter})
	require.NoError(t, err)

	return &fixture{server: srv, twitter: twitter}
}

func (f *fixture) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	r := httptest.NewRequest(method, "http://"+testHost+path, &buf)
	r.Host = testHost
	if bearer != "" {
		r.Header.Set("Authorization", "Bearer "+bearer)
	}

	w := httptest.NewRecorder()
	f.server.ServeHTTP(w, r)
	return w
}

type tokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func (f *fixture) register(t *testing.T) tokenPair {
	t.Helper()
	w := f.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email":          "a@x.com",
		"password":       "Sup3rSecret",
		"workspace_name": "Acme",
		"subdomain":      "acme",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Tokens tokenPair `json:"tokens"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Tokens
}

func TestHealthz(t *testing.T) {
	f := setupServer(t)
	w := f.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRegisterAndLogin(t *testing.T) {
	f := setupServer(t)
	f.register(t)

	w := f.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    "a@x.com",
		"password": "Sup3rSecret",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var pair tokenPair
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pair))
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
}

func TestLoginWrongPassword(t *testing.T) {
	f := setupServer(t)
	f.register(t)

	w := f.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    "a@x.com",
		"password": "WrongPass1",
	})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Contains(t, w.Body.String(), "invalid_credentials")
}

func TestLoginUnknownSubdomain(t *testing.T) {
	f := setupServer(t)

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(map[string]string{
		"email": "a@x.com", "password": "Sup3rSecret",
	}))
	r := httptest.NewRequest(http.MethodPost, "http://nowhere."+testDomain+"/api/v1/auth/login", &buf)
	r.Host = "nowhere." + testDomain
	w := httptest.NewRecorder()
	f.server.ServeHTTP(w, r)

	require.Equal(t, http.StatusForbidden, w.Code)
	require.Contains(t, w.Body.String(), "tenant_required")
}

func TestRefreshRotationIsSingleUse(t *testing.T) {
	f := setupServer(t)
	pair := f.register(t)

	w := f.do(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{
		"refresh_token": pair.RefreshToken,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Replay of the consumed token fails exactly like a forged one.
	w = f.do(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{
		"refresh_token": pair.RefreshToken,
	})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Contains(t, w.Body.String(), "invalid_token")
}

func TestLogoutIsIdempotent(t *testing.T) {
	f := setupServer(t)
	pair := f.register(t)

	for range 2 {
		w := f.do(t, http.MethodPost, "/api/v1/auth/logout", "", map[string]string{
			"refresh_token": pair.RefreshToken,
		})
		require.Equal(t, http.StatusNoContent, w.Code)
	}
}

func TestSessionsRequiresBearer(t *testing.T) {
	f := setupServer(t)
	f.register(t)

	w := f.do(t, http.MethodGet, "/api/v1/auth/sessions", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/auth/sessions", "not-a-token", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Contains(t, w.Body.String(), "invalid_token")
}

func TestSessionsList(t *testing.T) {
	f := setupServer(t)
	pair := f.register(t)

	w := f.do(t, http.MethodGet, "/api/v1/auth/sessions", pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Sessions []json.RawMessage `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Sessions, 1)
}

func TestResetPasswordRevokesSessions(t *testing.T) {
	f := setupServer(t)
	pair := f.register(t)

	w := f.do(t, http.MethodPost, "/api/v1/auth/password", pair.AccessToken, map[string]string{
		"new_password": "NewSecret42",
	})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = f.do(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{
		"refresh_token": pair.RefreshToken,
	})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestResetPasswordRejectsWeak(t *testing.T) {
	f := setupServer(t)
	pair := f.register(t)

	w := f.do(t, http.MethodPost, "/api/v1/auth/password", pair.AccessToken, map[string]string{
		"new_password": "weak",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "weak_password")
}

func connectAccount(t *testing.T, f *fixture, accessToken string) string {
	t.Helper()
	w := f.do(t, http.MethodPost, "/api/v1/accounts/connect/twitter", accessToken, map[string]string{
		"code":        "auth-code",
		"external_id": "12345",
		"username":    "acmesocial",
		"label":       "Main account",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var credential struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &credential))
	require.NotEmpty(t, credential.ID)
	return credential.ID
}

func TestConnectAndListAccounts(t *testing.T) {
	f := setupServer(t)
	pair := f.register(t)
	connectAccount(t, f, pair.AccessToken)

	w := f.do(t, http.MethodGet, "/api/v1/accounts", pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Accounts []struct {
			Provider      string `json:"provider"`
			Username      string `json:"username"`
			AccessSecret  string `json:"access_secret,omitempty"`
			RefreshSecret string `json:"refresh_secret,omitempty"`
		} `json:"accounts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Accounts, 1)
	require.Equal(t, "twitter", resp.Accounts[0].Provider)
	require.Equal(t, "acmesocial", resp.Accounts[0].Username)
	require.Empty(t, resp.Accounts[0].AccessSecret)
	require.Empty(t, resp.Accounts[0].RefreshSecret)
}

func TestConnectUnknownProvider(t *testing.T) {
	f := setupServer(t)
	pair := f.register(t)

	w := f.do(t, http.MethodPost, "/api/v1/accounts/connect/myspace", pair.AccessToken, map[string]string{
		"code": "auth-code", "external_id": "1",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "unknown_provider")
}

func TestRelabelAccount(t *testing.T) {
	f := setupServer(t)
	pair := f.register(t)
	id := connectAccount(t, f, pair.AccessToken)

	w := f.do(t, http.MethodPatch, fmt.Sprintf("/api/v1/accounts/%s/label", id), pair.AccessToken,
		map[string]string{"label": "Renamed"})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
}

func TestRefreshAccount(t *testing.T) {
	f := setupServer(t)
	pair := f.register(t)
	id := connectAccount(t, f, pair.AccessToken)

	w := f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/accounts/%s/refresh", id), pair.AccessToken, nil)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
}

func TestRefreshAccountProviderFailure(t *testing.T) {
	f := setupServer(t)
	pair := f.register(t)
	id := connectAccount(t, f, pair.AccessToken)
	f.twitter.refresh = nil

	w := f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/accounts/%s/refresh", id), pair.AccessToken, nil)
	require.Equal(t, http.StatusBadGateway, w.Code)
	require.Contains(t, w.Body.String(), "provider_refresh_failed")
}

func TestAccountHealth(t *testing.T) {
	f := setupServer(t)
	pair := f.register(t)
	id := connectAccount(t, f, pair.AccessToken)

	w := f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/accounts/%s/health", id), pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Contains(t, w.Body.String(), `"healthy":true`)
}

func TestDisconnectAccount(t *testing.T) {
	f := setupServer(t)
	pair := f.register(t)
	id := connectAccount(t, f, pair.AccessToken)

	w := f.do(t, http.MethodDelete, "/api/v1/accounts/"+id, pair.AccessToken, nil)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	require.Equal(t, 1, f.twitter.revoked)

	w = f.do(t, http.MethodGet, "/api/v1/accounts", pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Accounts []json.RawMessage `json:"accounts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Empty(t, resp.Accounts)
}

func TestAccountNotFound(t *testing.T) {
	f := setupServer(t)
	pair := f.register(t)

	w := f.do(t, http.MethodDelete, "/api/v1/accounts/no-such-id", pair.AccessToken, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}
