// SPDX-FileCopyrightText: Copyright 2026 mcpgate authors
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpgate/mcpgate/pkg/authserver/crypto"
	"github.com/mcpgate/mcpgate/pkg/authserver/provider"
)

func testServerConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Enabled:         true,
		Provider:        provider.TypeCustom,
		IssuerURL:       "http://localhost:8080",
		Address:         ":0",
		StorageDir:      t.TempDir(),
		ValidScopes:     []string{"read", "write", "payment", "account"},
		DefaultScopes:   []string{"read"},
		AccessTokenTTL:  3600 * time.Second,
		RefreshTokenTTL: 86400 * time.Second,
		AuthCodeTTL:     600 * time.Second,
	}
}

func newTestServer(t *testing.T, cfg Config) (*Server, *httptest.Server, *http.Client) {
	t.Helper()

	srv, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	hc := &http.Client{
		CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return srv, ts, hc
}

type registeredClient struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	IssuedAt     int64  `json:"client_id_issued_at"`
	Scope        string `json:"scope"`
}

func registerClient(t *testing.T, ts *httptest.Server, body string) registeredClient {
	t.Helper()

	resp, err := http.Post(ts.URL+"/register", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var reg registeredClient
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reg))
	require.NotEmpty(t, reg.ClientID)
	return reg
}

// authorizeToCode walks a registered public client through authorize and
// consent approval, returning the authorization code.
func authorizeToCode(t *testing.T, ts *httptest.Server, hc *http.Client, clientID, verifier, state string) string {
	t.Helper()

	authURL := ts.URL + "/authorize?" + url.Values{
		"response_type":         {"code"},
		"client_id":             {clientID},
		"redirect_uri":          {"https://app.example/cb"},
		"scope":                 {"read"},
		"state":                 {state},
		"code_challenge":        {crypto.ComputePKCEChallenge(verifier)},
		"code_challenge_method": {"S256"},
	}.Encode()

	resp, err := hc.Get(authURL)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	consentLoc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	requestID := consentLoc.Query().Get("request_id")
	require.NotEmpty(t, requestID)

	// Render the consent page.
	page, err := hc.Get(ts.URL + "/oauth/authorize/page?request_id=" + requestID)
	require.NoError(t, err)
	pageBody, _ := io.ReadAll(page.Body)
	page.Body.Close()
	require.Equal(t, http.StatusOK, page.StatusCode)
	assert.Contains(t, string(pageBody), "Approve")

	// Approve.
	approve, err := hc.PostForm(ts.URL+"/oauth/authorize/approve", url.Values{
		"request_id": {requestID},
		"approved":   {"true"},
	})
	require.NoError(t, err)
	approve.Body.Close()
	require.Equal(t, http.StatusFound, approve.StatusCode)

	cb, err := url.Parse(approve.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, state, cb.Query().Get("state"))
	code := cb.Query().Get("code")
	require.NotEmpty(t, code)
	return code
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
	Error        string `json:"error"`
}

func postToken(t *testing.T, ts *httptest.Server, form url.Values) (int, tokenResponse) {
	t.Helper()

	resp, err := http.PostForm(ts.URL+"/token", form)
	require.NoError(t, err)
	defer resp.Body.Close()

	var tr tokenResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tr))
	return resp.StatusCode, tr
}

func TestMetadataDocument(t *testing.T) {
	t.Parallel()
	_, ts, _ := newTestServer(t, testServerConfig(t))

	resp, err := http.Get(ts.URL + "/.well-known/oauth-authorization-server")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var meta map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&meta))

	assert.Equal(t, "http://localhost:8080", meta["issuer"])
	assert.Equal(t, "http://localhost:8080/authorize", meta["authorization_endpoint"])
	assert.Equal(t, "http://localhost:8080/token", meta["token_endpoint"])
	assert.Equal(t, "http://localhost:8080/register", meta["registration_endpoint"])
	assert.Equal(t, "http://localhost:8080/revoke", meta["revocation_endpoint"])
	assert.Equal(t, []any{"code"}, meta["response_types_supported"])
	assert.Equal(t, []any{"authorization_code", "refresh_token"}, meta["grant_types_supported"])
	assert.Equal(t, []any{"S256"}, meta["code_challenge_methods_supported"])
	assert.ElementsMatch(t,
		[]any{"client_secret_basic", "client_secret_post", "none"},
		meta["token_endpoint_auth_methods_supported"])
	assert.Equal(t, []any{"read", "write", "payment", "account"}, meta["scopes_supported"])
}

func TestDynamicRegistration(t *testing.T) {
	t.Parallel()
	_, ts, _ := newTestServer(t, testServerConfig(t))

	t.Run("public client", func(t *testing.T) {
		reg := registerClient(t, ts,
			`{"redirect_uris":["https://app.example/cb"],"client_name":"Test App","token_endpoint_auth_method":"none"}`)
		assert.Empty(t, reg.ClientSecret)
		assert.NotZero(t, reg.IssuedAt)
	})

	t.Run("confidential client gets a secret once", func(t *testing.T) {
		reg := registerClient(t, ts, `{"redirect_uris":["https://app.example/cb"]}`)
		assert.NotEmpty(t, reg.ClientSecret)
	})

	t.Run("missing redirect URIs", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/register", "application/json", strings.NewReader(`{}`))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("relative redirect URI", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/register", "application/json",
			strings.NewReader(`{"redirect_uris":["/relative"]}`))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestAuthorizationCodeFlow(t *testing.T) {
	t.Parallel()
	_, ts, hc := newTestServer(t, testServerConfig(t))

	reg := registerClient(t, ts,
		`{"redirect_uris":["https://app.example/cb"],"token_endpoint_auth_method":"none"}`)

	code := authorizeToCode(t, ts, hc, reg.ClientID, "abc123", "st1")

	status, tr := postToken(t, ts, url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"code_verifier": {"abc123"},
		"redirect_uri":  {"https://app.example/cb"},
		"client_id":     {reg.ClientID},
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Bearer", tr.TokenType)
	assert.Equal(t, int64(3600), tr.ExpiresIn)
	assert.Equal(t, "read", tr.Scope)
	assert.NotEmpty(t, tr.AccessToken)
	assert.NotEmpty(t, tr.RefreshToken)
}

func TestTokenPKCEMismatch(t *testing.T) {
	t.Parallel()
	_, ts, hc := newTestServer(t, testServerConfig(t))

	reg := registerClient(t, ts,
		`{"redirect_uris":["https://app.example/cb"],"token_endpoint_auth_method":"none"}`)
	code := authorizeToCode(t, ts, hc, reg.ClientID, "abc123", "st3")

	status, tr := postToken(t, ts, url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"code_verifier": {"wrong"},
		"redirect_uri":  {"https://app.example/cb"},
		"client_id":     {reg.ClientID},
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_grant", tr.Error)

	// The code was invalidated by the failed exchange.
	status, tr = postToken(t, ts, url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"code_verifier": {"abc123"},
		"redirect_uri":  {"https://app.example/cb"},
		"client_id":     {reg.ClientID},
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_grant", tr.Error)
}

func TestRefreshRotationOverHTTP(t *testing.T) {
	t.Parallel()
	_, ts, hc := newTestServer(t, testServerConfig(t))

	reg := registerClient(t, ts,
		`{"redirect_uris":["https://app.example/cb"],"token_endpoint_auth_method":"none"}`)
	code := authorizeToCode(t, ts, hc, reg.ClientID, "abc123", "st2")

	status, first := postToken(t, ts, url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"code_verifier": {"abc123"},
		"redirect_uri":  {"https://app.example/cb"},
		"client_id":     {reg.ClientID},
	})
	require.Equal(t, http.StatusOK, status)

	status, second := postToken(t, ts, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {first.RefreshToken},
		"client_id":     {reg.ClientID},
	})
	require.Equal(t, http.StatusOK, status)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.Equal(t, "read", second.Scope)

	status, replay := postToken(t, ts, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {first.RefreshToken},
		"client_id":     {reg.ClientID},
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_grant", replay.Error)
}

func TestConfidentialClientAuthentication(t *testing.T) {
	t.Parallel()
	_, ts, hc := newTestServer(t, testServerConfig(t))

	reg := registerClient(t, ts, `{"redirect_uris":["https://app.example/cb"]}`)
	require.NotEmpty(t, reg.ClientSecret)
	code := authorizeToCode(t, ts, hc, reg.ClientID, "abc123", "st-basic")

	t.Run("basic auth succeeds", func(t *testing.T) {
		form := url.Values{
			"grant_type":    {"authorization_code"},
			"code":          {code},
			"code_verifier": {"abc123"},
			"redirect_uri":  {"https://app.example/cb"},
		}
		req, err := http.NewRequest(http.MethodPost, ts.URL+"/token", strings.NewReader(form.Encode()))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.SetBasicAuth(reg.ClientID, reg.ClientSecret)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	})

	t.Run("wrong secret rejected", func(t *testing.T) {
		status, tr := postToken(t, ts, url.Values{
			"grant_type":    {"refresh_token"},
			"refresh_token": {"whatever"},
			"client_id":     {reg.ClientID},
			"client_secret": {"wrong"},
		})
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "invalid_client", tr.Error)
	})
}

func TestUnsupportedGrantType(t *testing.T) {
	t.Parallel()
	_, ts, _ := newTestServer(t, testServerConfig(t))

	reg := registerClient(t, ts,
		`{"redirect_uris":["https://app.example/cb"],"token_endpoint_auth_method":"none"}`)

	status, tr := postToken(t, ts, url.Values{
		"grant_type": {"client_credentials"},
		"client_id":  {reg.ClientID},
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "unauthorized_client", tr.Error)
}

func TestAuthorizeValidation(t *testing.T) {
	t.Parallel()
	_, ts, hc := newTestServer(t, testServerConfig(t))

	reg := registerClient(t, ts,
		`{"redirect_uris":["https://app.example/cb"],"token_endpoint_auth_method":"none"}`)

	base := url.Values{
		"response_type":         {"code"},
		"client_id":             {reg.ClientID},
		"redirect_uri":          {"https://app.example/cb"},
		"state":                 {"st"},
		"code_challenge":        {crypto.ComputePKCEChallenge("v")},
		"code_challenge_method": {"S256"},
	}

	get := func(t *testing.T, mutate func(url.Values)) *http.Response {
		t.Helper()
		form := url.Values{}
		for k, v := range base {
			form[k] = v
		}
		mutate(form)
		resp, err := hc.Get(ts.URL + "/authorize?" + form.Encode())
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	t.Run("unknown client renders HTML", func(t *testing.T) {
		resp := get(t, func(f url.Values) { f.Set("client_id", "ghost") })
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	})

	t.Run("unregistered redirect URI renders HTML", func(t *testing.T) {
		resp := get(t, func(f url.Values) { f.Set("redirect_uri", "https://evil.example/cb") })
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	})

	t.Run("missing state reported by redirect", func(t *testing.T) {
		resp := get(t, func(f url.Values) { f.Del("state") })
		require.Equal(t, http.StatusFound, resp.StatusCode)
		loc, err := url.Parse(resp.Header.Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "invalid_request", loc.Query().Get("error"))
	})

	t.Run("bad response type reported by redirect", func(t *testing.T) {
		resp := get(t, func(f url.Values) { f.Set("response_type", "token") })
		require.Equal(t, http.StatusFound, resp.StatusCode)
		loc, err := url.Parse(resp.Header.Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "invalid_request", loc.Query().Get("error"))
		assert.Equal(t, "st", loc.Query().Get("state"))
	})

	t.Run("plain challenge rejected for public client", func(t *testing.T) {
		resp := get(t, func(f url.Values) {
			f.Set("code_challenge", "verbatim")
			f.Set("code_challenge_method", "plain")
		})
		require.Equal(t, http.StatusFound, resp.StatusCode)
		loc, err := url.Parse(resp.Header.Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "invalid_request", loc.Query().Get("error"))
	})

	t.Run("unknown scope reported by redirect", func(t *testing.T) {
		resp := get(t, func(f url.Values) { f.Set("scope", "read admin") })
		require.Equal(t, http.StatusFound, resp.StatusCode)
		loc, err := url.Parse(resp.Header.Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "invalid_scope", loc.Query().Get("error"))
		assert.Equal(t, "st", loc.Query().Get("state"))
	})
}

func TestConsentDenyOverHTTP(t *testing.T) {
	t.Parallel()
	_, ts, hc := newTestServer(t, testServerConfig(t))

	reg := registerClient(t, ts,
		`{"redirect_uris":["https://app.example/cb"],"token_endpoint_auth_method":"none"}`)

	authURL := ts.URL + "/authorize?" + url.Values{
		"response_type":         {"code"},
		"client_id":             {reg.ClientID},
		"redirect_uri":          {"https://app.example/cb"},
		"state":                 {"st-deny"},
		"code_challenge":        {crypto.ComputePKCEChallenge("v")},
		"code_challenge_method": {"S256"},
	}.Encode()
	resp, err := hc.Get(authURL)
	require.NoError(t, err)
	resp.Body.Close()
	loc, _ := url.Parse(resp.Header.Get("Location"))
	requestID := loc.Query().Get("request_id")

	deny, err := hc.PostForm(ts.URL+"/oauth/authorize/approve", url.Values{
		"request_id": {requestID},
		"approved":   {"false"},
	})
	require.NoError(t, err)
	deny.Body.Close()
	require.Equal(t, http.StatusFound, deny.StatusCode)

	cb, err := url.Parse(deny.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "access_denied", cb.Query().Get("error"))
	assert.Equal(t, "User denied authorization", cb.Query().Get("error_description"))
	assert.Equal(t, "st-deny", cb.Query().Get("state"))
}

func TestRevokeAlwaysReturns200(t *testing.T) {
	t.Parallel()
	_, ts, hc := newTestServer(t, testServerConfig(t))

	reg := registerClient(t, ts,
		`{"redirect_uris":["https://app.example/cb"],"token_endpoint_auth_method":"none"}`)
	code := authorizeToCode(t, ts, hc, reg.ClientID, "abc123", "st-rv")

	_, tr := postToken(t, ts, url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"code_verifier": {"abc123"},
		"redirect_uri":  {"https://app.example/cb"},
		"client_id":     {reg.ClientID},
	})

	for _, token := range []string{tr.AccessToken, "completely-unknown"} {
		resp, err := http.PostForm(ts.URL+"/revoke", url.Values{
			"token":     {token},
			"client_id": {reg.ClientID},
		})
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}

	// The revoked access token no longer passes the middleware.
	status, _ := postToken(t, ts, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {tr.RefreshToken},
		"client_id":     {reg.ClientID},
	})
	assert.Equal(t, http.StatusOK, status, "revoking an access token leaves the refresh token alone")
}

func TestBearerMiddleware(t *testing.T) {
	t.Parallel()
	srv, ts, hc := newTestServer(t, testServerConfig(t))

	reg := registerClient(t, ts,
		`{"redirect_uris":["https://app.example/cb"],"token_endpoint_auth_method":"none"}`)
	code := authorizeToCode(t, ts, hc, reg.ClientID, "abc123", "st-mw")

	_, tr := postToken(t, ts, url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"code_verifier": {"abc123"},
		"redirect_uri":  {"https://app.example/cb"},
		"client_id":     {reg.ClientID},
	})
	require.NotEmpty(t, tr.AccessToken)

	var captured Identity
	protected := srv.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))
	pts := httptest.NewServer(protected)
	t.Cleanup(pts.Close)

	t.Run("valid token", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, pts.URL, nil)
		req.Header.Set("Authorization", "Bearer "+tr.AccessToken)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Equal(t, reg.ClientID, captured.ClientID)
		assert.True(t, captured.HasScope("read"))
		assert.False(t, captured.HasScope("write"))
	})

	t.Run("missing token", func(t *testing.T) {
		resp, err := http.Get(pts.URL)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, `Bearer error="invalid_token"`, resp.Header.Get("WWW-Authenticate"))
	})

	t.Run("garbage token", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, pts.URL, nil)
		req.Header.Set("Authorization", "Bearer garbage")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, `Bearer error="invalid_token"`, resp.Header.Get("WWW-Authenticate"))
	})
}

func TestRestartDurability(t *testing.T) {
	t.Parallel()
	cfg := testServerConfig(t)

	srv1, err := New(cfg)
	require.NoError(t, err)
	ts1 := httptest.NewServer(srv1.Handler())
	hc := &http.Client{
		CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	reg := registerClient(t, ts1,
		`{"redirect_uris":["https://app.example/cb"],"token_endpoint_auth_method":"none"}`)
	code := authorizeToCode(t, ts1, hc, reg.ClientID, "abc123", "st-restart")
	_, tr := postToken(t, ts1, url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"code_verifier": {"abc123"},
		"redirect_uri":  {"https://app.example/cb"},
		"client_id":     {reg.ClientID},
	})
	require.NotEmpty(t, tr.RefreshToken)

	ts1.Close()
	require.NoError(t, srv1.Close())

	// A new process over the same storage directory.
	srv2, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv2.Close() })
	ts2 := httptest.NewServer(srv2.Handler())
	t.Cleanup(ts2.Close)

	status, refreshed := postToken(t, ts2, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {tr.RefreshToken},
		"client_id":     {reg.ClientID},
	})
	require.Equal(t, http.StatusOK, status, "the refresh token survives a restart")
	require.NotEmpty(t, refreshed.RefreshToken)

	status, replay := postToken(t, ts2, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {tr.RefreshToken},
		"client_id":     {reg.ClientID},
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_grant", replay.Error)
}

func TestFederatedCallbackWithoutPending(t *testing.T) {
	t.Parallel()
	cfg := testServerConfig(t)
	cfg.Provider = provider.TypeGoogle
	cfg.ClientID = "google-app-id"
	cfg.ClientSecret = "google-app-secret"

	srv, ts, hc := newTestServer(t, cfg)
	require.Equal(t, provider.TypeGoogle, srv.Provider().Info().Type)

	resp, err := hc.Get(ts.URL + "/oauth/google/callback?code=foo&state=unknown")
	require.NoError(t, err)
	defer resp.Body.Close()

	// No pending record means no safe redirect URI, so the error renders as
	// HTML and no code is issued.
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "invalid_request")
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()
	_, ts, _ := newTestServer(t, testServerConfig(t))

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health struct {
		Status   string `json:"status"`
		Provider struct {
			Type string `json:"type"`
			Name string `json:"name"`
		} `json:"provider"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "custom", health.Provider.Type)
	assert.Equal(t, "Custom OAuth (In-Memory)", health.Provider.Name)
}
