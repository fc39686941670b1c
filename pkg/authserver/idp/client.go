// SPDX-FileCopyrightText: Copyright 2026 mcpgate authors
// SPDX-License-Identifier: Apache-2.0

package idp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// maxResponseSize caps IDP response bodies to prevent unbounded reads.
const maxResponseSize = 1024 * 1024 // 1MB

// requestTimeout bounds every outbound call to the IDP.
const requestTimeout = 10 * time.Second

// Client talks to one upstream Identity Provider. It is stateless apart from
// the cached discovery result and safe for concurrent use.
type Client struct {
	config Config
	http   HTTPClient
	logger *slog.Logger

	mu        sync.Mutex
	endpoints *Endpoints
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc HTTPClient) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates an upstream IDP client. Discovery is deferred to the
// first use so construction never blocks on the network.
func NewClient(config Config, opts ...ClientOption) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid upstream config: %w", err)
	}

	c := &Client{
		config: config,
		http: &http.Client{
			Timeout: requestTimeout,
		},
		logger: slog.Default(),
	}
	// Without an issuer there is nothing to discover; the configured
	// endpoints are authoritative. With an issuer, configured endpoints are
	// only the fallback for a failed discovery.
	if config.Issuer == "" {
		c.endpoints = config.Endpoints
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Name returns the configured provider label.
func (c *Client) Name() string {
	return c.config.Name
}

// AuthorizationURL builds the URL the user is redirected to for upstream
// authentication. The state parameter is our correlation token.
func (c *Client) AuthorizationURL(ctx context.Context, state string) (string, error) {
	if state == "" {
		return "", errors.New("state parameter is required")
	}

	endpoints, err := c.discoverEndpoints(ctx)
	if err != nil {
		return "", err
	}

	scopes := c.config.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "profile", "email"}
	}

	params := url.Values{
		"response_type": {"code"},
		"client_id":     {c.config.ClientID},
		"redirect_uri":  {c.config.RedirectURI},
		"scope":         {strings.Join(scopes, " ")},
		"state":         {state},
	}
	for key, value := range c.config.ExtraAuthParams {
		params.Set(key, value)
	}

	return endpoints.AuthorizationEndpoint + "?" + params.Encode(), nil
}

// ExchangeCode exchanges the upstream authorization code for tokens.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*Tokens, error) {
	if code == "" {
		return nil, errors.New("authorization code is required")
	}

	endpoints, err := c.discoverEndpoints(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {c.config.RedirectURI},
		"client_id":     {c.config.ClientID},
		"client_secret": {c.config.ClientSecret},
	}

	return c.tokenRequest(ctx, endpoints.TokenEndpoint, params)
}

// UserInfo fetches the authenticated user's profile from the upstream IDP.
func (c *Client) UserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	if accessToken == "" {
		return nil, errors.New("access token is required")
	}

	endpoints, err := c.discoverEndpoints(ctx)
	if err != nil {
		return nil, err
	}
	if endpoints.UserInfoEndpoint == "" {
		return nil, errors.New("userinfo endpoint not available")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoints.UserInfoEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("userinfo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.logger.Debug("userinfo request failed",
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(body)))
		return nil, fmt.Errorf("userinfo request failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read userinfo response: %w", err)
	}

	var claims map[string]any
	if err := json.Unmarshal(body, &claims); err != nil {
		return nil, fmt.Errorf("failed to parse userinfo response: %w", err)
	}

	return userInfoFromClaims(claims), nil
}

// userInfoFromClaims normalizes the standard OIDC userinfo claims and the
// Microsoft Graph /me shape into a single UserInfo.
func userInfoFromClaims(claims map[string]any) *UserInfo {
	info := &UserInfo{Claims: claims}

	str := func(keys ...string) string {
		for _, key := range keys {
			if v, ok := claims[key].(string); ok && v != "" {
				return v
			}
		}
		return ""
	}

	info.Subject = str("sub", "id")
	info.Email = str("email", "mail", "userPrincipalName")
	info.Name = str("name", "displayName")
	return info
}

// tokenRequest posts a form to the token endpoint and parses the response.
func (c *Client) tokenRequest(ctx context.Context, endpoint string, params url.Values) (*Tokens, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Debug("token request failed",
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(body)))
		return nil, fmt.Errorf("token request failed with status %d", resp.StatusCode)
	}

	var payload struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		IDToken      string `json:"id_token"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	if payload.AccessToken == "" {
		return nil, errors.New("token response missing access_token")
	}

	tokens := &Tokens{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		IDToken:      payload.IDToken,
	}
	if payload.ExpiresIn > 0 {
		tokens.ExpiresAt = time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	}
	return tokens, nil
}

// discoverEndpoints returns the upstream endpoints, fetching the OIDC
// discovery document on first use. When discovery fails and fallback
// endpoints were configured, the fallback is used and cached.
func (c *Client) discoverEndpoints(ctx context.Context) (*Endpoints, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.endpoints != nil {
		return c.endpoints, nil
	}

	endpoints, err := c.fetchDiscovery(ctx)
	if err != nil {
		if c.config.Endpoints != nil {
			c.logger.Warn("OIDC discovery failed, using configured endpoints",
				slog.String("provider", c.config.Name),
				slog.String("error", err.Error()))
			c.endpoints = c.config.Endpoints
			return c.endpoints, nil
		}
		return nil, fmt.Errorf("failed to discover OIDC endpoints: %w", err)
	}

	c.endpoints = endpoints
	return c.endpoints, nil
}

func (c *Client) fetchDiscovery(ctx context.Context) (*Endpoints, error) {
	discoveryURL, err := buildDiscoveryURL(c.config.Issuer)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("discovering OIDC endpoints", slog.String("url", discoveryURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, discoveryURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create discovery request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("discovery request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discovery request failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read discovery response: %w", err)
	}

	var endpoints Endpoints
	if err := json.Unmarshal(body, &endpoints); err != nil {
		return nil, fmt.Errorf("failed to parse discovery document: %w", err)
	}
	if endpoints.AuthorizationEndpoint == "" || endpoints.TokenEndpoint == "" {
		return nil, errors.New("discovery document missing required endpoints")
	}
	return &endpoints, nil
}

// buildDiscoveryURL constructs {issuer}/.well-known/openid-configuration.
func buildDiscoveryURL(issuer string) (string, error) {
	u, err := url.Parse(issuer)
	if err != nil {
		return "", fmt.Errorf("invalid issuer URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("issuer URL must be absolute: %s", issuer)
	}
	return strings.TrimSuffix(issuer, "/") + "/.well-known/openid-configuration", nil
}
