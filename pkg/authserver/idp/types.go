// SPDX-FileCopyrightText: Copyright 2026 mcpgate authors
// SPDX-License-Identifier: Apache-2.0

// Package idp implements the upstream Identity Provider client used by the
// federated providers: OIDC discovery, authorization URL construction, code
// exchange and userinfo retrieval.
package idp

import (
	"fmt"
	"net/http"
	"time"
)

// Config describes an upstream Identity Provider.
type Config struct {
	// Name labels the provider in logs ("google", "azure", ...).
	Name string

	// Issuer is the IDP base URL used for OIDC discovery. Optional when
	// Endpoints is pre-populated.
	Issuer string

	// Endpoints are used directly when set, and serve as the fallback when
	// discovery fails.
	Endpoints *Endpoints

	// ClientID and ClientSecret are our credentials at the upstream IDP.
	ClientID     string
	ClientSecret string

	// Scopes requested from the upstream IDP.
	Scopes []string

	// RedirectURI is our callback endpoint the IDP redirects to.
	RedirectURI string

	// ExtraAuthParams are appended verbatim to the authorization URL
	// (e.g. access_type=offline, prompt=consent).
	ExtraAuthParams map[string]string
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Issuer == "" && c.Endpoints == nil {
		return fmt.Errorf("either issuer or endpoints is required")
	}
	if c.ClientID == "" {
		return fmt.Errorf("client ID is required")
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("client secret is required")
	}
	if c.RedirectURI == "" {
		return fmt.Errorf("redirect URI is required")
	}
	return nil
}

// Endpoints holds the upstream endpoints, discovered or configured.
type Endpoints struct {
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserInfoEndpoint      string `json:"userinfo_endpoint,omitempty"`
}

// Tokens are the credentials obtained from the upstream IDP.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
	ExpiresAt    time.Time
}

// IsExpired reports whether the upstream access token has expired.
func (t *Tokens) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// UserInfo is the user profile fetched from the upstream IDP. Claim names
// vary between providers (OIDC userinfo vs Microsoft Graph /me); extraction
// normalizes both shapes.
type UserInfo struct {
	Subject string
	Email   string
	Name    string

	// Claims holds the raw response for callers that need more.
	Claims map[string]any
}

// HTTPClient is the subset of http.Client the idp client needs; it allows
// tests to substitute transports.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}
