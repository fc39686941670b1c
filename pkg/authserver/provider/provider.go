// SPDX-FileCopyrightText: Copyright 2026 mcpgate authors
// SPDX-License-Identifier: Apache-2.0

// Package provider implements the authorization provider abstraction: a
// single contract with a custom (local consent) variant and federated Google
// and Azure variants that interpose an upstream IDP before local consent.
package provider

import (
	"context"
	"time"

	"github.com/mcpgate/mcpgate/pkg/authserver/storage"
)

// Provider types selectable through configuration.
const (
	TypeCustom = "custom"
	TypeGoogle = "google"
	TypeAzure  = "azure"
)

// Info describes a provider for metadata and logs.
type Info struct {
	// Type is one of TypeCustom, TypeGoogle, TypeAzure.
	Type string `json:"type"`

	// DisplayName is the human-readable provider name.
	DisplayName string `json:"name"`

	// External reports whether an upstream IDP is interposed.
	External bool `json:"external"`
}

// Config carries the provider-independent policy: issuer, scope sets and
// token lifetimes.
type Config struct {
	// IssuerURL is this server's absolute base URL.
	IssuerURL string

	// ValidScopes is the full set of grantable scopes.
	ValidScopes []string

	// DefaultScopes is granted when a request names no scopes.
	DefaultScopes []string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	AuthCodeTTL     time.Duration
}

// AuthorizationRequest is a validated request from the authorize endpoint.
// The HTTP layer has already confirmed the client, redirect URI, response
// type and PKCE parameters.
type AuthorizationRequest struct {
	Client              storage.Client
	RedirectURI         string
	Scopes              []string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// ExchangeRequest redeems an authorization code for tokens.
type ExchangeRequest struct {
	Client      storage.Client
	Code        string
	Verifier    string
	RedirectURI string
}

// RefreshRequest rotates a refresh token.
type RefreshRequest struct {
	Client       storage.Client
	RefreshToken string

	// Scopes narrows the grant; empty inherits the original scopes.
	Scopes []string
}

// TokenResponse is the JSON body of a successful token request.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// CallbackRequest carries the query parameters of an upstream IDP callback.
type CallbackRequest struct {
	Code             string
	State            string
	ErrorCode        string
	ErrorDescription string
}

// Provider is the contract every authorization provider variant satisfies.
// All variants share the credential store; they differ in how an
// authorization begins (local consent page vs upstream IDP round trip).
type Provider interface {
	// Info describes the provider for metadata and logs.
	Info() Info

	// StartAuthorization begins an authorization flow and returns the URL to
	// redirect the user to: the local consent page for the custom variant,
	// the upstream IDP for federated variants.
	StartAuthorization(ctx context.Context, req *AuthorizationRequest) (string, error)

	// PendingRequest returns the pending authorization for consent rendering
	// without consuming it.
	PendingRequest(ctx context.Context, requestID string) (storage.PendingAuthorization, error)

	// CompleteAuthorization consumes the pending authorization after the user
	// decided on the consent page. It returns the redirect back to the MCP
	// client: with a fresh authorization code on approval, with
	// error=access_denied on denial.
	CompleteAuthorization(ctx context.Context, requestID string, approved bool) (string, error)

	// ExchangeCode redeems a one-time authorization code, enforcing PKCE and
	// the redirect URI binding, and mints an access and a refresh token.
	ExchangeCode(ctx context.Context, req *ExchangeRequest) (*TokenResponse, error)

	// Refresh rotates a refresh token: the old token is atomically replaced
	// by a new pair with fresh expiries.
	Refresh(ctx context.Context, req *RefreshRequest) (*TokenResponse, error)

	// Introspect resolves a bearer token for the middleware.
	Introspect(ctx context.Context, token string) (storage.AccessToken, error)

	// Revoke invalidates an access or refresh token, best effort.
	Revoke(ctx context.Context, token string) error
}

// Federated is implemented by providers that interpose an upstream IDP.
type Federated interface {
	Provider

	// CallbackPath is the local route the upstream IDP redirects to.
	CallbackPath() string

	// HandleCallback correlates the IDP callback with the pending
	// authorization, exchanges the upstream code, captures the user identity
	// and returns the redirect to the local consent page. IDP failures are
	// translated to an error redirect to the MCP client when its redirect URI
	// is known.
	HandleCallback(ctx context.Context, cb *CallbackRequest) (string, error)
}
