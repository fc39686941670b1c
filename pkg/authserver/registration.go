// SPDX-FileCopyrightText: Copyright 2026 mcpgate authors
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mcpgate/mcpgate/pkg/authserver/crypto"
	"github.com/mcpgate/mcpgate/pkg/authserver/provider"
	"github.com/mcpgate/mcpgate/pkg/authserver/storage"
)

// Registration limits.
const (
	maxRegistrationBody = 64 * 1024
	maxRedirectURIs     = 10
	maxClientNameLength = 256
)

// registrationRequest is the RFC 7591 dynamic registration request body.
type registrationRequest struct {
	RedirectURIs            []string `json:"redirect_uris"`
	ClientName              string   `json:"client_name"`
	Scope                   string   `json:"scope"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
}

// registrationResponse is the RFC 7591 registration response. ClientSecret is
// returned exactly once; only its hash is stored.
type registrationResponse struct {
	ClientID                string   `json:"client_id"`
	ClientSecret            string   `json:"client_secret,omitempty"`
	ClientIDIssuedAt        int64    `json:"client_id_issued_at"`
	ClientSecretExpiresAt   int64    `json:"client_secret_expires_at"`
	RedirectURIs            []string `json:"redirect_uris"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	Scope                   string   `json:"scope"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
	ClientName              string   `json:"client_name,omitempty"`
}

var supportedAuthMethods = []string{"client_secret_basic", "client_secret_post", "none"}

// handleRegister implements dynamic client registration. The endpoint is
// public; anyone may register a client.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRegistrationBody))
	if err != nil {
		writeOAuthError(w, provider.NewError(provider.CodeInvalidRequest, "failed to read request body"))
		return
	}

	var req registrationRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeOAuthError(w, provider.NewError(provider.CodeInvalidRequest, "malformed JSON body"))
		return
	}

	if err := validateRegistration(&req); err != nil {
		writeOAuthError(w, err)
		return
	}

	if len(req.GrantTypes) == 0 {
		req.GrantTypes = []string{"authorization_code", "refresh_token"}
	}
	if len(req.ResponseTypes) == 0 {
		req.ResponseTypes = []string{"code"}
	}
	if req.TokenEndpointAuthMethod == "" {
		req.TokenEndpointAuthMethod = "client_secret_basic"
	}
	if req.Scope == "" {
		req.Scope = strings.Join(s.cfg.ValidScopes, " ")
	}

	client := storage.Client{
		ClientID:                uuid.NewString(),
		RedirectURIs:            req.RedirectURIs,
		GrantTypes:              req.GrantTypes,
		ResponseTypes:           req.ResponseTypes,
		Scope:                   req.Scope,
		TokenEndpointAuthMethod: req.TokenEndpointAuthMethod,
		ClientName:              req.ClientName,
		IssuedAt:                time.Now().Unix(),
	}

	var secret string
	if req.TokenEndpointAuthMethod != "none" {
		secret, err = crypto.NewClientSecret()
		if err != nil {
			writeOAuthError(w, err)
			return
		}
		hash, err := crypto.HashClientSecret(secret)
		if err != nil {
			writeOAuthError(w, err)
			return
		}
		client.ClientSecretHash = hash
	}

	if err := s.store.RegisterClient(client); err != nil {
		writeOAuthError(w, err)
		return
	}

	s.logger.Info("registered client",
		"client_id", client.ClientID,
		"client_name", client.ClientName,
		"public", client.IsPublic())

	writeJSON(w, http.StatusCreated, registrationResponse{
		ClientID:                client.ClientID,
		ClientSecret:            secret,
		ClientIDIssuedAt:        client.IssuedAt,
		ClientSecretExpiresAt:   0,
		RedirectURIs:            client.RedirectURIs,
		GrantTypes:              client.GrantTypes,
		ResponseTypes:           client.ResponseTypes,
		Scope:                   client.Scope,
		TokenEndpointAuthMethod: client.TokenEndpointAuthMethod,
		ClientName:              client.ClientName,
	})
}

func validateRegistration(req *registrationRequest) error {
	if len(req.RedirectURIs) == 0 {
		return provider.NewError(provider.CodeInvalidRequest, "redirect_uris is required")
	}
	if len(req.RedirectURIs) > maxRedirectURIs {
		return provider.NewError(provider.CodeInvalidRequest, "too many redirect URIs")
	}
	for _, raw := range req.RedirectURIs {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return provider.NewError(provider.CodeInvalidRequest, "redirect URIs must be absolute URLs")
		}
	}
	if len(req.ClientName) > maxClientNameLength {
		return provider.NewError(provider.CodeInvalidRequest, "client_name is too long")
	}
	if req.TokenEndpointAuthMethod != "" {
		supported := false
		for _, m := range supportedAuthMethods {
			if req.TokenEndpointAuthMethod == m {
				supported = true
				break
			}
		}
		if !supported {
			return provider.NewError(provider.CodeInvalidRequest, "unsupported token_endpoint_auth_method")
		}
	}
	for _, gt := range req.GrantTypes {
		if gt != "authorization_code" && gt != "refresh_token" {
			return provider.NewError(provider.CodeInvalidRequest, "unsupported grant type "+gt)
		}
	}
	for _, rt := range req.ResponseTypes {
		if rt != "code" {
			return provider.NewError(provider.CodeInvalidRequest, "unsupported response type "+rt)
		}
	}
	return nil
}
