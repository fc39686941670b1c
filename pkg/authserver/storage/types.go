// SPDX-FileCopyrightText: Copyright 2026 mcpgate authors
// SPDX-License-Identifier: Apache-2.0

// Package storage provides the credential store for the OAuth authorization
// server: durable client registrations and refresh tokens backed by JSON
// files on disk, plus in-memory maps for authorization codes, access tokens
// and pending federated authorizations.
package storage

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// DefaultPendingAuthorizationTTL is how long a pending authorization request
// may wait for the upstream IDP callback or local consent before it expires.
const DefaultPendingAuthorizationTTL = 10 * time.Minute

// Sentinel errors returned by store lookups. ErrExpired wraps ErrNotFound so
// callers that only care about "is this credential usable" can match both
// with a single errors.Is check.
var (
	ErrNotFound     = errors.New("record not found")
	ErrExpired      = fmt.Errorf("%w: record expired", ErrNotFound)
	ErrClientExists = errors.New("client already registered")
	ErrCodeReplayed = errors.New("authorization code already redeemed")
)

// Client is a dynamically registered OAuth client. Clients are immutable
// after registration and persisted to clients.json.
//
// ClientSecretHash is omitted from the serialized form when the client has no
// secret; it must never be written as null (downstream validators reject a
// null hash field).
type Client struct {
	ClientID                string   `json:"client_id"`
	ClientSecretHash        string   `json:"client_secret_hash,omitempty"`
	RedirectURIs            []string `json:"redirect_uris"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	Scope                   string   `json:"scope"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
	ClientName              string   `json:"client_name,omitempty"`
	IssuedAt                int64    `json:"issued_at"`
}

// IsPublic reports whether the client authenticates with PKCE only.
func (c *Client) IsPublic() bool {
	return c.TokenEndpointAuthMethod == "none" || c.ClientSecretHash == ""
}

// AllowsRedirectURI reports whether uri byte-for-byte matches one of the
// registered redirect URIs.
func (c *Client) AllowsRedirectURI(uri string) bool {
	return slices.Contains(c.RedirectURIs, uri)
}

// AllowsGrantType reports whether the client registered the given grant type.
func (c *Client) AllowsGrantType(grantType string) bool {
	return slices.Contains(c.GrantTypes, grantType)
}

func (c *Client) clone() Client {
	out := *c
	out.RedirectURIs = slices.Clone(c.RedirectURIs)
	out.GrantTypes = slices.Clone(c.GrantTypes)
	out.ResponseTypes = slices.Clone(c.ResponseTypes)
	return out
}

// Identity carries the user claims captured from an upstream IDP during a
// federated authorization. It is attached to authorization codes and access
// tokens for observability and is never exposed to tool clients.
type Identity struct {
	Subject string `json:"subject,omitempty"`
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
}

// AuthorizationCode is a one-time credential issued after consent and
// exchanged for tokens at the token endpoint. In-memory only.
type AuthorizationCode struct {
	Code                string
	ClientID            string
	RedirectURI         string
	Scopes              []string
	CodeChallenge       string
	CodeChallengeMethod string
	ExpiresAt           time.Time
	Identity            *Identity
}

// IsExpired reports whether the code is past its expiry.
func (c *AuthorizationCode) IsExpired() bool {
	return time.Now().After(c.ExpiresAt)
}

func (c *AuthorizationCode) clone() AuthorizationCode {
	out := *c
	out.Scopes = slices.Clone(c.Scopes)
	if c.Identity != nil {
		id := *c.Identity
		out.Identity = &id
	}
	return out
}

// AccessToken is a short-lived bearer credential presented with tool calls.
// In-memory only; access tokens do not survive a restart.
type AccessToken struct {
	Token     string
	ClientID  string
	Scopes    []string
	ExpiresAt time.Time
	Identity  *Identity
}

// IsExpired reports whether the token is past its expiry.
func (t *AccessToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

func (t *AccessToken) clone() AccessToken {
	out := *t
	out.Scopes = slices.Clone(t.Scopes)
	if t.Identity != nil {
		id := *t.Identity
		out.Identity = &id
	}
	return out
}

// RefreshToken is a long-lived rotating credential, persisted to
// refresh_tokens.json. ExpiresAt is epoch seconds UTC to match the on-disk
// contract.
type RefreshToken struct {
	Token     string   `json:"token"`
	ClientID  string   `json:"client_id"`
	Scopes    []string `json:"scopes"`
	ExpiresAt int64    `json:"expires_at"`
}

// IsExpired reports whether the token is past its expiry.
func (t *RefreshToken) IsExpired() bool {
	return time.Now().Unix() >= t.ExpiresAt
}

func (t *RefreshToken) clone() RefreshToken {
	out := *t
	out.Scopes = slices.Clone(t.Scopes)
	return out
}

// PendingAuthorization correlates an in-flight authorization with either the
// upstream IDP round trip (keyed by the state we hand the IDP) or the local
// consent page (keyed by the consent request token). In-memory only.
type PendingAuthorization struct {
	// ClientID is the OAuth client that initiated the authorization.
	ClientID string

	// RedirectURI is the client's validated redirect URI.
	RedirectURI string

	// State is the client's original state parameter, returned verbatim.
	State string

	// CodeChallenge and CodeChallengeMethod hold the client's PKCE material,
	// enforced later at the token endpoint.
	CodeChallenge       string
	CodeChallengeMethod string

	// Scopes are the validated scopes the client asked for.
	Scopes []string

	// Identity is set once the upstream IDP has authenticated the user
	// (federated providers only).
	Identity *Identity

	// CreatedAt is when the authorization flow began.
	CreatedAt time.Time

	// ExpiresAt is when this record stops being honored.
	ExpiresAt time.Time
}

// IsExpired reports whether the pending authorization is past its expiry.
func (p *PendingAuthorization) IsExpired() bool {
	return time.Now().After(p.ExpiresAt)
}

func (p *PendingAuthorization) clone() PendingAuthorization {
	out := *p
	out.Scopes = slices.Clone(p.Scopes)
	if p.Identity != nil {
		id := *p.Identity
		out.Identity = &id
	}
	return out
}

// Stats reports record counts, used by the health endpoint and logs.
type Stats struct {
	Clients               int `json:"clients"`
	PendingAuthorizations int `json:"pending_authorizations"`
	AuthorizationCodes    int `json:"authorization_codes"`
	AccessTokens          int `json:"access_tokens"`
	RefreshTokens         int `json:"refresh_tokens"`
}
