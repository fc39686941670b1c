// SPDX-FileCopyrightText: Copyright 2026 mcpgate authors
// SPDX-License-Identifier: Apache-2.0

// Package authserver implements the OAuth 2.1 authorization server core of an
// MCP service: dynamic client registration, the authorization code flow with
// PKCE, token issuance with refresh rotation, revocation and the bearer
// middleware that protects tool calls.
package authserver

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mcpgate/mcpgate/pkg/authserver/provider"
)

// Configuration defaults matching the documented environment contract.
const (
	DefaultAccessTokenTTL  = 3600 * time.Second
	DefaultRefreshTokenTTL = 86400 * time.Second
	DefaultAuthCodeTTL     = 600 * time.Second

	defaultAddress    = ":8080"
	defaultStorageDir = "./oauth-store"
)

// Config is the validated authorization server configuration, assembled from
// the OAUTH_* environment keys.
type Config struct {
	// Enabled is the master switch. When false the server refuses to start.
	Enabled bool

	// Provider selects the variant: custom, google or azure.
	Provider string

	// IssuerURL is the absolute base URL used in the metadata document and in
	// every endpoint URL handed to clients.
	IssuerURL string

	// Address is the listen address of the HTTP server.
	Address string

	// StorageDir is where clients.json and refresh_tokens.json live.
	StorageDir string

	// ValidScopes is the full set of grantable scopes.
	ValidScopes []string

	// DefaultScopes is granted when a request names no scopes. Must be a
	// subset of ValidScopes.
	DefaultScopes []string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	AuthCodeTTL     time.Duration

	// ClientID and ClientSecret are the upstream application credentials for
	// federated providers.
	ClientID     string
	ClientSecret string

	// TenantID selects the Azure tenant (common, organizations, consumers or
	// a tenant ID). Azure only.
	TenantID string
}

// LoadConfig reads the OAUTH_* environment keys into a Config. Values are not
// validated here; call Validate before use.
func LoadConfig() Config {
	v := viper.New()
	v.SetEnvPrefix("oauth")
	v.AutomaticEnv()

	v.SetDefault("enabled", true)
	v.SetDefault("provider", provider.TypeCustom)
	v.SetDefault("issuer_url", "http://localhost:8080")
	v.SetDefault("address", defaultAddress)
	v.SetDefault("storage_dir", defaultStorageDir)
	v.SetDefault("valid_scopes", "read,write,payment,account")
	v.SetDefault("default_scopes", "read")
	v.SetDefault("access_token_ttl", int(DefaultAccessTokenTTL.Seconds()))
	v.SetDefault("refresh_token_ttl", int(DefaultRefreshTokenTTL.Seconds()))
	v.SetDefault("auth_code_ttl", int(DefaultAuthCodeTTL.Seconds()))

	return Config{
		Enabled:         v.GetBool("enabled"),
		Provider:        v.GetString("provider"),
		IssuerURL:       strings.TrimSuffix(v.GetString("issuer_url"), "/"),
		Address:         v.GetString("address"),
		StorageDir:      v.GetString("storage_dir"),
		ValidScopes:     splitScopes(v.GetString("valid_scopes")),
		DefaultScopes:   splitScopes(v.GetString("default_scopes")),
		AccessTokenTTL:  time.Duration(v.GetInt("access_token_ttl")) * time.Second,
		RefreshTokenTTL: time.Duration(v.GetInt("refresh_token_ttl")) * time.Second,
		AuthCodeTTL:     time.Duration(v.GetInt("auth_code_ttl")) * time.Second,
		ClientID:        v.GetString("client_id"),
		ClientSecret:    v.GetString("client_secret"),
		TenantID:        v.GetString("tenant_id"),
	}
}

// Validate checks the configuration for startup. The issuer must be an
// absolute http(s) URL; non-HTTPS issuers are only accepted for loopback
// hosts. Federated providers require upstream credentials.
func (c *Config) Validate() error {
	if !c.Enabled {
		return fmt.Errorf("authorization server is disabled (OAUTH_ENABLED=false)")
	}

	u, err := url.Parse(c.IssuerURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("issuer URL must be absolute: %q", c.IssuerURL)
	}
	if u.Scheme != "https" && !isLoopback(u.Hostname()) {
		return fmt.Errorf("issuer URL must use HTTPS outside of loopback: %q", c.IssuerURL)
	}

	switch c.Provider {
	case provider.TypeCustom:
	case provider.TypeGoogle, provider.TypeAzure:
		if c.ClientID == "" || c.ClientSecret == "" {
			return fmt.Errorf("provider %s requires OAUTH_CLIENT_ID and OAUTH_CLIENT_SECRET", c.Provider)
		}
	default:
		return fmt.Errorf("unknown provider type %q", c.Provider)
	}

	if len(c.ValidScopes) == 0 {
		return fmt.Errorf("at least one valid scope is required")
	}
	for _, scope := range c.DefaultScopes {
		if !slices.Contains(c.ValidScopes, scope) {
			return fmt.Errorf("default scope %q is not in the valid scope set", scope)
		}
	}

	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 || c.AuthCodeTTL <= 0 {
		return fmt.Errorf("token TTLs must be positive")
	}

	if c.StorageDir == "" {
		return fmt.Errorf("storage directory is required")
	}

	return nil
}

// ProviderConfig projects the provider-relevant slice of the configuration.
func (c *Config) ProviderConfig() provider.Config {
	return provider.Config{
		IssuerURL:       c.IssuerURL,
		ValidScopes:     slices.Clone(c.ValidScopes),
		DefaultScopes:   slices.Clone(c.DefaultScopes),
		AccessTokenTTL:  c.AccessTokenTTL,
		RefreshTokenTTL: c.RefreshTokenTTL,
		AuthCodeTTL:     c.AuthCodeTTL,
	}
}

func splitScopes(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func isLoopback(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
