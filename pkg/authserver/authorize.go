// SPDX-FileCopyrightText: Copyright 2026 mcpgate authors
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"net/http"
	"slices"
	"strings"

	"github.com/mcpgate/mcpgate/pkg/authserver/crypto"
	"github.com/mcpgate/mcpgate/pkg/authserver/provider"
)

// handleAuthorize validates an authorization request and hands it to the
// provider, which responds with a redirect to either the local consent page
// or the upstream IDP.
//
// Error reporting is two-phase: until the client and its redirect URI are
// validated there is no safe place to send the user, so errors render as
// HTML. After that point errors are delivered by redirect, state attached.
func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeHTMLError(w, provider.NewError(provider.CodeInvalidRequest, "malformed request"))
		return
	}
	// r.Form merges query and body, so GET and form POST behave identically.
	form := r.Form

	clientID := form.Get("client_id")
	if clientID == "" {
		writeHTMLError(w, provider.NewError(provider.CodeInvalidRequest, "client_id is required"))
		return
	}
	client, err := s.store.GetClient(clientID)
	if err != nil {
		writeHTMLError(w, provider.NewError(provider.CodeInvalidRequest, "unknown client"))
		return
	}

	redirectURI := form.Get("redirect_uri")
	if redirectURI == "" {
		writeHTMLError(w, provider.NewError(provider.CodeInvalidRequest, "redirect_uri is required"))
		return
	}
	if !client.AllowsRedirectURI(redirectURI) {
		writeHTMLError(w, provider.NewError(provider.CodeInvalidRequest, "redirect_uri is not registered for this client"))
		return
	}

	// The redirect URI is now trusted; remaining errors go back to the client.
	state := form.Get("state")

	if form.Get("response_type") != "code" {
		redirectError(w, r, redirectURI, state,
			provider.NewError(provider.CodeInvalidRequest, "response_type must be code"))
		return
	}
	if state == "" {
		redirectError(w, r, redirectURI, state,
			provider.NewError(provider.CodeInvalidRequest, "state is required"))
		return
	}

	challenge := form.Get("code_challenge")
	method := form.Get("code_challenge_method")
	if challenge == "" {
		redirectError(w, r, redirectURI, state,
			provider.NewError(provider.CodeInvalidRequest, "code_challenge is required"))
		return
	}
	switch method {
	case crypto.PKCEMethodS256:
	case crypto.PKCEMethodPlain:
		if client.IsPublic() {
			redirectError(w, r, redirectURI, state,
				provider.NewError(provider.CodeInvalidRequest, "plain code_challenge_method requires a confidential client"))
			return
		}
	default:
		redirectError(w, r, redirectURI, state,
			provider.NewError(provider.CodeInvalidRequest, "code_challenge_method must be S256"))
		return
	}

	scopes, scopeErr := s.resolveScopes(form.Get("scope"))
	if scopeErr != nil {
		redirectError(w, r, redirectURI, state, scopeErr)
		return
	}

	location, err := s.provider.StartAuthorization(r.Context(), &provider.AuthorizationRequest{
		Client:              client,
		RedirectURI:         redirectURI,
		Scopes:              scopes,
		State:               state,
		CodeChallenge:       challenge,
		CodeChallengeMethod: method,
	})
	if err != nil {
		s.logger.Error("failed to start authorization",
			"client_id", clientID,
			"error", err)
		redirectError(w, r, redirectURI, state, err)
		return
	}

	http.Redirect(w, r, location, http.StatusFound)
}

// resolveScopes applies the authorization scope policy: an empty request gets
// the default scopes, an unknown scope is rejected.
func (s *Server) resolveScopes(raw string) ([]string, error) {
	if raw == "" {
		return slices.Clone(s.cfg.DefaultScopes), nil
	}
	scopes := strings.Fields(raw)
	for _, scope := range scopes {
		if !slices.Contains(s.cfg.ValidScopes, scope) {
			return nil, provider.NewError(provider.CodeInvalidScope, "scope "+scope+" is not supported")
		}
	}
	return scopes, nil
}

// handleCallback receives the upstream IDP redirect for federated providers.
// An unknown correlation state leaves no safe redirect URI, so that case
// renders an HTML error and no code is issued.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	fed, ok := s.provider.(provider.Federated)
	if !ok {
		writeHTMLError(w, provider.NewError(provider.CodeInvalidRequest, "provider does not use an upstream IDP"))
		return
	}

	q := r.URL.Query()
	location, err := fed.HandleCallback(r.Context(), &provider.CallbackRequest{
		Code:             q.Get("code"),
		State:            q.Get("state"),
		ErrorCode:        q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	})
	if err != nil {
		writeHTMLError(w, err)
		return
	}

	http.Redirect(w, r, location, http.StatusFound)
}
