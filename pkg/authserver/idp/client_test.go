// SPDX-FileCopyrightText: Copyright 2026 mcpgate authors
// SPDX-License-Identifier: Apache-2.0

package idp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/oauth2-proxy/mockoidc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockIDP(t *testing.T) *mockoidc.MockOIDC {
	t.Helper()
	m, err := mockoidc.Run()
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Shutdown() })
	return m
}

func mockConfig(m *mockoidc.MockOIDC) Config {
	return Config{
		Name:         "mock",
		Issuer:       m.Issuer(),
		ClientID:     m.ClientID,
		ClientSecret: m.ClientSecret,
		Scopes:       []string{"openid", "email", "profile"},
		RedirectURI:  "http://localhost:9999/oauth/mock/callback",
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	valid := Config{
		Issuer:       "https://idp.example",
		ClientID:     "id",
		ClientSecret: "secret",
		RedirectURI:  "https://server.example/cb",
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no issuer or endpoints", func(c *Config) { c.Issuer = "" }},
		{"no client ID", func(c *Config) { c.ClientID = "" }},
		{"no client secret", func(c *Config) { c.ClientSecret = "" }},
		{"no redirect URI", func(c *Config) { c.RedirectURI = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid
			tt.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestAuthorizationURL(t *testing.T) {
	t.Parallel()
	m := newMockIDP(t)

	cfg := mockConfig(m)
	cfg.ExtraAuthParams = map[string]string{"prompt": "consent"}
	c, err := NewClient(cfg)
	require.NoError(t, err)

	raw, err := c.AuthorizationURL(context.Background(), "corr-state-1")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw, m.AuthorizationEndpoint()))

	q := u.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, m.ClientID, q.Get("client_id"))
	assert.Equal(t, "corr-state-1", q.Get("state"))
	assert.Equal(t, cfg.RedirectURI, q.Get("redirect_uri"))
	assert.Equal(t, "openid email profile", q.Get("scope"))
	assert.Equal(t, "consent", q.Get("prompt"))
}

func TestAuthorizationURLRequiresState(t *testing.T) {
	t.Parallel()
	m := newMockIDP(t)

	c, err := NewClient(mockConfig(m))
	require.NoError(t, err)

	_, err = c.AuthorizationURL(context.Background(), "")
	require.Error(t, err)
}

func TestFullUpstreamRoundTrip(t *testing.T) {
	t.Parallel()
	m := newMockIDP(t)

	m.QueueUser(&mockoidc.MockUser{
		Subject: "user-42",
		Email:   "user42@example.com",
	})

	cfg := mockConfig(m)
	c, err := NewClient(cfg)
	require.NoError(t, err)
	ctx := context.Background()

	authURL, err := c.AuthorizationURL(ctx, "corr-1")
	require.NoError(t, err)

	// Drive the browser leg: the mock IDP redirects straight back with a code.
	hc := &http.Client{
		CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	resp, err := hc.Get(authURL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	code := loc.Query().Get("code")
	require.NotEmpty(t, code)
	assert.Equal(t, "corr-1", loc.Query().Get("state"))

	tokens, err := c.ExchangeCode(ctx, code)
	require.NoError(t, err)
	require.NotEmpty(t, tokens.AccessToken)

	info, err := c.UserInfo(ctx, tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-42", info.Subject)
	assert.Equal(t, "user42@example.com", info.Email)
}

func TestExchangeCodeRequiresCode(t *testing.T) {
	t.Parallel()
	m := newMockIDP(t)

	c, err := NewClient(mockConfig(m))
	require.NoError(t, err)

	_, err = c.ExchangeCode(context.Background(), "")
	require.Error(t, err)
}

func TestDiscoveryFallsBackToConfiguredEndpoints(t *testing.T) {
	t.Parallel()

	// An issuer that refuses discovery.
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(broken.Close)

	cfg := Config{
		Name:         "fallback",
		Issuer:       broken.URL,
		ClientID:     "id",
		ClientSecret: "secret",
		RedirectURI:  "https://server.example/cb",
		Endpoints: &Endpoints{
			AuthorizationEndpoint: "https://fallback.example/authorize",
			TokenEndpoint:         "https://fallback.example/token",
		},
	}
	c, err := NewClient(cfg)
	require.NoError(t, err)

	raw, err := c.AuthorizationURL(context.Background(), "st")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw, "https://fallback.example/authorize"))
}

func TestDiscoveryFailureWithoutFallback(t *testing.T) {
	t.Parallel()

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(broken.Close)

	c, err := NewClient(Config{
		Name:         "broken",
		Issuer:       broken.URL,
		ClientID:     "id",
		ClientSecret: "secret",
		RedirectURI:  "https://server.example/cb",
	})
	require.NoError(t, err)

	_, err = c.AuthorizationURL(context.Background(), "st")
	require.Error(t, err)
}

func TestUserInfoFromClaims(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		claims map[string]any
		want   UserInfo
	}{
		{
			name: "oidc userinfo shape",
			claims: map[string]any{
				"sub":   "sub-1",
				"email": "a@example.com",
				"name":  "Ada",
			},
			want: UserInfo{Subject: "sub-1", Email: "a@example.com", Name: "Ada"},
		},
		{
			name: "microsoft graph shape",
			claims: map[string]any{
				"id":                "graph-1",
				"userPrincipalName": "b@example.com",
				"displayName":       "Bea",
			},
			want: UserInfo{Subject: "graph-1", Email: "b@example.com", Name: "Bea"},
		},
		{
			name: "graph mail preferred over principal name",
			claims: map[string]any{
				"id":                "graph-2",
				"mail":              "mail@example.com",
				"userPrincipalName": "upn@example.com",
			},
			want: UserInfo{Subject: "graph-2", Email: "mail@example.com"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := userInfoFromClaims(tt.claims)
			assert.Equal(t, tt.want.Subject, got.Subject)
			assert.Equal(t, tt.want.Email, got.Email)
			assert.Equal(t, tt.want.Name, got.Name)
		})
	}
}

func TestGoogleConfig(t *testing.T) {
	t.Parallel()

	cfg := GoogleConfig("gid", "gsecret", "https://server.example/oauth/google/callback")
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "https://accounts.google.com", cfg.Issuer)
	assert.Contains(t, cfg.Scopes, "openid")
	assert.Equal(t, "offline", cfg.ExtraAuthParams["access_type"])
	assert.Equal(t, "consent", cfg.ExtraAuthParams["prompt"])
	require.NotNil(t, cfg.Endpoints, "google keeps fallback endpoints for failed discovery")
}

func TestAzureConfig(t *testing.T) {
	t.Parallel()

	cfg := AzureConfig("aid", "asecret", "", "https://server.example/oauth/azure/callback")
	require.NoError(t, cfg.Validate())
	require.NotNil(t, cfg.Endpoints)
	assert.Contains(t, cfg.Endpoints.AuthorizationEndpoint, "/common/")
	assert.Equal(t, "https://graph.microsoft.com/v1.0/me", cfg.Endpoints.UserInfoEndpoint)
	assert.Contains(t, cfg.Scopes, "User.Read")
	assert.Contains(t, cfg.Scopes, "offline_access")
	assert.Equal(t, "query", cfg.ExtraAuthParams["response_mode"])

	tenant := AzureConfig("aid", "asecret", "my-tenant", "https://server.example/cb")
	assert.Contains(t, tenant.Endpoints.TokenEndpoint, "/my-tenant/")
}
