// SPDX-FileCopyrightText: Copyright 2026 mcpgate authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/mcpgate/mcpgate/pkg/authserver/crypto"
	"github.com/mcpgate/mcpgate/pkg/authserver/storage"
)

// core holds the logic shared by all provider variants: scope policy, code
// and token minting, exchange, refresh, introspection and revocation.
// Variants embed it and add their own StartAuthorization and callback
// plumbing.
type core struct {
	store  *storage.Store
	cfg    Config
	logger *slog.Logger
}

func newCore(cfg Config, store *storage.Store, logger *slog.Logger) core {
	if logger == nil {
		logger = slog.Default()
	}
	return core{store: store, cfg: cfg, logger: logger}
}

// newPending builds a pending authorization from a validated request.
func (*core) newPending(req *AuthorizationRequest) storage.PendingAuthorization {
	now := time.Now()
	return storage.PendingAuthorization{
		ClientID:            req.Client.ClientID,
		RedirectURI:         req.RedirectURI,
		State:               req.State,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		Scopes:              slices.Clone(req.Scopes),
		CreatedAt:           now,
		ExpiresAt:           now.Add(storage.DefaultPendingAuthorizationTTL),
	}
}

// PendingRequest returns the pending authorization for consent rendering.
func (c *core) PendingRequest(_ context.Context, requestID string) (storage.PendingAuthorization, error) {
	pending, err := c.store.GetPending(requestID)
	if err != nil {
		return storage.PendingAuthorization{}, NewError(CodeInvalidRequest,
			"authorization request not found or expired")
	}
	return pending, nil
}

// CompleteAuthorization consumes the pending authorization after consent and
// redirects back to the MCP client: with a one-time code on approval, with
// access_denied on denial.
func (c *core) CompleteAuthorization(_ context.Context, requestID string, approved bool) (string, error) {
	pending, err := c.store.TakePending(requestID)
	if err != nil {
		return "", NewError(CodeInvalidRequest, "authorization request not found or expired")
	}

	if !approved {
		c.logger.Info("authorization denied by user",
			slog.String("client_id", pending.ClientID))
		return buildRedirect(pending.RedirectURI, map[string]string{
			"error":             CodeAccessDenied,
			"error_description": "User denied authorization",
			"state":             pending.State,
		})
	}

	code, err := crypto.NewToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate authorization code: %w", err)
	}

	c.store.AddCode(storage.AuthorizationCode{
		Code:                code,
		ClientID:            pending.ClientID,
		RedirectURI:         pending.RedirectURI,
		Scopes:              pending.Scopes,
		CodeChallenge:       pending.CodeChallenge,
		CodeChallengeMethod: pending.CodeChallengeMethod,
		ExpiresAt:           time.Now().Add(c.cfg.AuthCodeTTL),
		Identity:            pending.Identity,
	})

	c.logger.Info("authorization approved",
		slog.String("client_id", pending.ClientID),
		slog.String("scopes", strings.Join(pending.Scopes, " ")))

	return buildRedirect(pending.RedirectURI, map[string]string{
		"code":  code,
		"state": pending.State,
	})
}

// ExchangeCode redeems an authorization code. Every credential failure maps
// to invalid_grant; a replayed code additionally invalidates the tokens its
// first redemption produced.
func (c *core) ExchangeCode(_ context.Context, req *ExchangeRequest) (*TokenResponse, error) {
	code, err := c.store.ConsumeCode(req.Code)
	if err != nil {
		return nil, NewError(CodeInvalidGrant, "authorization code is invalid or expired")
	}

	if code.ClientID != req.Client.ClientID {
		return nil, NewError(CodeInvalidGrant, "authorization code was issued to a different client")
	}
	if code.RedirectURI != req.RedirectURI {
		return nil, NewError(CodeInvalidGrant, "redirect_uri does not match the authorization request")
	}
	if err := crypto.VerifyPKCE(
		code.CodeChallengeMethod, code.CodeChallenge, req.Verifier, !req.Client.IsPublic(),
	); err != nil {
		return nil, NewError(CodeInvalidGrant, "PKCE verification failed")
	}

	resp, access, refresh, err := c.issueTokens(req.Client.ClientID, code.Scopes, code.Identity)
	if err != nil {
		return nil, err
	}
	c.store.MarkCodeUsed(code, access, refresh)

	c.logger.Info("exchanged authorization code for tokens",
		slog.String("client_id", req.Client.ClientID))
	return resp, nil
}

// Refresh rotates a refresh token. Requested scopes are validated against
// the configured valid set; an unknown scope yields invalid_scope. Known
// scopes outside the original grant are dropped by intersection, and the
// response carries the intersection.
func (c *core) Refresh(_ context.Context, req *RefreshRequest) (*TokenResponse, error) {
	old, err := c.store.GetRefreshToken(req.RefreshToken)
	if err != nil {
		return nil, NewError(CodeInvalidGrant, "refresh token is invalid or expired")
	}
	if old.ClientID != req.Client.ClientID {
		return nil, NewError(CodeInvalidGrant, "refresh token was issued to a different client")
	}

	granted := old.Scopes
	if len(req.Scopes) > 0 {
		for _, scope := range req.Scopes {
			if !slices.Contains(c.cfg.ValidScopes, scope) {
				return nil, NewError(CodeInvalidScope, fmt.Sprintf("scope %q is not recognized", scope))
			}
		}
		granted = intersect(req.Scopes, old.Scopes)
		if len(granted) == 0 {
			return nil, NewError(CodeInvalidScope, "requested scopes exceed the original grant")
		}
	}

	accessToken, err := c.mintToken()
	if err != nil {
		return nil, err
	}
	refreshToken, err := c.mintToken()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	next := storage.RefreshToken{
		Token:     refreshToken,
		ClientID:  req.Client.ClientID,
		Scopes:    granted,
		ExpiresAt: now.Add(c.cfg.RefreshTokenTTL).Unix(),
	}

	// The rotation is the commit point: exactly one of any number of
	// concurrent refreshes with the same token passes this check.
	if _, err := c.store.RotateRefreshToken(req.RefreshToken, next); err != nil {
		return nil, NewError(CodeInvalidGrant, "refresh token is invalid or expired")
	}

	c.store.AddAccessToken(storage.AccessToken{
		Token:     accessToken,
		ClientID:  req.Client.ClientID,
		Scopes:    granted,
		ExpiresAt: now.Add(c.cfg.AccessTokenTTL),
	})

	c.logger.Info("rotated refresh token",
		slog.String("client_id", req.Client.ClientID))

	return &TokenResponse{
		AccessToken:  accessToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(c.cfg.AccessTokenTTL.Seconds()),
		RefreshToken: refreshToken,
		Scope:        strings.Join(granted, " "),
	}, nil
}

// Introspect resolves a bearer token for the middleware.
func (c *core) Introspect(_ context.Context, token string) (storage.AccessToken, error) {
	rec, err := c.store.LoadAccessToken(token)
	if err != nil {
		return storage.AccessToken{}, err
	}
	return rec, nil
}

// Revoke invalidates a token. Unknown tokens are ignored per RFC 7009.
func (c *core) Revoke(_ context.Context, token string) error {
	c.store.Revoke(token)
	return nil
}

// issueTokens mints an access and a refresh token bound to the client and
// scopes, stores both, and returns the wire response along with the raw
// token strings.
func (c *core) issueTokens(
	clientID string, scopes []string, identity *storage.Identity,
) (*TokenResponse, string, string, error) {
	accessToken, err := c.mintToken()
	if err != nil {
		return nil, "", "", err
	}
	refreshToken, err := c.mintToken()
	if err != nil {
		return nil, "", "", err
	}

	now := time.Now()
	c.store.AddAccessToken(storage.AccessToken{
		Token:     accessToken,
		ClientID:  clientID,
		Scopes:    scopes,
		ExpiresAt: now.Add(c.cfg.AccessTokenTTL),
		Identity:  identity,
	})
	c.store.AddRefreshToken(storage.RefreshToken{
		Token:     refreshToken,
		ClientID:  clientID,
		Scopes:    scopes,
		ExpiresAt: now.Add(c.cfg.RefreshTokenTTL).Unix(),
	})

	return &TokenResponse{
		AccessToken:  accessToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(c.cfg.AccessTokenTTL.Seconds()),
		RefreshToken: refreshToken,
		Scope:        strings.Join(scopes, " "),
	}, accessToken, refreshToken, nil
}

// mintToken draws a fresh token, retrying once on the (negligible) chance of
// a collision with a live token.
func (c *core) mintToken() (string, error) {
	for range 2 {
		token, err := crypto.NewToken()
		if err != nil {
			return "", fmt.Errorf("failed to generate token: %w", err)
		}
		if !c.store.HasToken(token) {
			return token, nil
		}
	}
	return "", errors.New("token collision persisted after retry")
}

// intersect returns the members of a that are also in b, preserving a's
// order.
func intersect(a, b []string) []string {
	var out []string
	for _, s := range a {
		if slices.Contains(b, s) {
			out = append(out, s)
		}
	}
	return out
}

// buildRedirect appends params to the redirect URI, preserving any query it
// already carries. Empty values are skipped except state, which is always
// returned verbatim when present.
func buildRedirect(redirectURI string, params map[string]string) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", fmt.Errorf("invalid redirect URI: %w", err)
	}
	q := u.Query()
	for key, value := range params {
		if value == "" && key != "state" {
			continue
		}
		q.Set(key, value)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
