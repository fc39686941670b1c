// SPDX-FileCopyrightText: Copyright 2026 mcpgate authors
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"net/http"

	"github.com/mcpgate/mcpgate/pkg/authserver/provider"
	"github.com/mcpgate/mcpgate/pkg/authserver/storage"
)

// serverMetadata is the RFC 8414 authorization server metadata document.
type serverMetadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	RegistrationEndpoint              string   `json:"registration_endpoint"`
	RevocationEndpoint                string   `json:"revocation_endpoint"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	ScopesSupported                   []string `json:"scopes_supported"`
}

// handleMetadata serves /.well-known/oauth-authorization-server.
func (s *Server) handleMetadata(w http.ResponseWriter, _ *http.Request) {
	issuer := s.cfg.IssuerURL
	writeJSON(w, http.StatusOK, serverMetadata{
		Issuer:                            issuer,
		AuthorizationEndpoint:             issuer + "/authorize",
		TokenEndpoint:                     issuer + "/token",
		RegistrationEndpoint:              issuer + "/register",
		RevocationEndpoint:                issuer + "/revoke",
		ResponseTypesSupported:            []string{"code"},
		GrantTypesSupported:               []string{"authorization_code", "refresh_token"},
		CodeChallengeMethodsSupported:     []string{"S256"},
		TokenEndpointAuthMethodsSupported: []string{"client_secret_basic", "client_secret_post", "none"},
		ScopesSupported:                   s.cfg.ValidScopes,
	})
}

// healthResponse is the body of the health endpoint.
type healthResponse struct {
	Status   string        `json:"status"`
	Provider provider.Info `json:"provider"`
	Stats    storage.Stats `json:"stats"`
}

// handleHealth reports service status, the active provider and store counts.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:   "ok",
		Provider: s.provider.Info(),
		Stats:    s.store.Stats(),
	})
}
