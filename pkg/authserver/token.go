// SPDX-FileCopyrightText: Copyright 2026 mcpgate authors
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"net/http"
	"strings"

	"github.com/mcpgate/mcpgate/pkg/authserver/crypto"
	"github.com/mcpgate/mcpgate/pkg/authserver/provider"
	"github.com/mcpgate/mcpgate/pkg/authserver/storage"
)

// handleToken implements the token endpoint for the authorization_code and
// refresh_token grants.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, provider.NewError(provider.CodeInvalidRequest, "malformed form body"))
		return
	}

	client, err := s.authenticateClient(r)
	if err != nil {
		oauthErr := provider.AsError(err)
		if oauthErr.Code == provider.CodeInvalidClient {
			w.Header().Set("WWW-Authenticate", `Basic realm="token"`)
		}
		writeOAuthError(w, oauthErr)
		return
	}

	grantType := r.PostFormValue("grant_type")
	if !client.AllowsGrantType(grantType) {
		writeOAuthError(w, provider.NewError(provider.CodeUnauthorizedClient,
			"client is not authorized for grant type "+grantType))
		return
	}

	var resp *provider.TokenResponse
	switch grantType {
	case "authorization_code":
		resp, err = s.provider.ExchangeCode(r.Context(), &provider.ExchangeRequest{
			Client:      client,
			Code:        r.PostFormValue("code"),
			Verifier:    r.PostFormValue("code_verifier"),
			RedirectURI: r.PostFormValue("redirect_uri"),
		})
	case "refresh_token":
		resp, err = s.provider.Refresh(r.Context(), &provider.RefreshRequest{
			Client:       client,
			RefreshToken: r.PostFormValue("refresh_token"),
			Scopes:       strings.Fields(r.PostFormValue("scope")),
		})
	default:
		err = provider.NewError(provider.CodeUnsupportedGrantType,
			"grant_type must be authorization_code or refresh_token")
	}
	if err != nil {
		writeOAuthError(w, err)
		return
	}

	// Token responses must never be cached (RFC 6749 Section 5.1).
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	writeJSON(w, http.StatusOK, resp)
}

// handleRevoke implements RFC 7009 revocation. The endpoint always returns
// 200, revealing nothing about whether the token existed.
func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, provider.NewError(provider.CodeInvalidRequest, "malformed form body"))
		return
	}

	token := r.PostFormValue("token")
	if token != "" {
		if _, err := s.authenticateClient(r); err == nil {
			_ = s.provider.Revoke(r.Context(), token)
		}
	}

	w.WriteHeader(http.StatusOK)
}

// authenticateClient resolves and authenticates the calling client from HTTP
// Basic credentials or from client_id/client_secret in the body. Public
// clients present only their client_id; their proof is the PKCE verifier.
func (s *Server) authenticateClient(r *http.Request) (storage.Client, error) {
	clientID, clientSecret, viaBasic := r.BasicAuth()
	if !viaBasic {
		clientID = r.PostFormValue("client_id")
		clientSecret = r.PostFormValue("client_secret")
	}

	if clientID == "" {
		return storage.Client{}, provider.NewError(provider.CodeInvalidClient, "client authentication required")
	}

	client, err := s.store.GetClient(clientID)
	if err != nil {
		return storage.Client{}, provider.NewError(provider.CodeInvalidClient, "unknown client")
	}

	if client.IsPublic() {
		return client, nil
	}

	if clientSecret == "" {
		return storage.Client{}, provider.NewError(provider.CodeInvalidClient, "client secret required")
	}
	if !crypto.VerifyClientSecret(client.ClientSecretHash, clientSecret) {
		s.logger.Warn("client authentication failed", "client_id", clientID)
		return storage.Client{}, provider.NewError(provider.CodeInvalidClient, "invalid client credentials")
	}

	return client, nil
}
