// SPDX-FileCopyrightText: Copyright 2026 mcpgate authors
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/mcpgate/mcpgate/pkg/authserver/provider"
)

//go:embed templates/consent.html
var templateFS embed.FS

var consentPage = template.Must(template.ParseFS(templateFS, "templates/consent.html"))

// scopeDescriptions maps scope names to the human description shown on the
// consent page. Unknown scopes fall back to the scope name itself.
var scopeDescriptions = map[string]string{
	"read":    "Read your data and resources",
	"write":   "Create and modify your data",
	"payment": "Initiate payments on your behalf",
	"account": "View your account details",
}

type consentScope struct {
	Name        string
	Description string
}

type consentPageData struct {
	ClientName    string
	UserName      string
	UserEmail     string
	Scopes        []consentScope
	RequestID     string
	ApproveAction string
	ProviderName  string
}

// handleAuthorizePage renders the consent page for the custom provider.
func (s *Server) handleAuthorizePage(w http.ResponseWriter, r *http.Request) {
	s.renderConsent(w, r, "/oauth/authorize/approve")
}

// handleConsentPage renders the consent page after federated identity
// capture. The pending authorization now carries the authenticated user.
func (s *Server) handleConsentPage(w http.ResponseWriter, r *http.Request) {
	s.renderConsent(w, r, "/oauth/consent/approve")
}

func (s *Server) renderConsent(w http.ResponseWriter, r *http.Request, approveAction string) {
	requestID := r.URL.Query().Get("request_id")
	if requestID == "" {
		writeHTMLError(w, provider.NewError(provider.CodeInvalidRequest, "request_id is required"))
		return
	}

	pending, err := s.provider.PendingRequest(r.Context(), requestID)
	if err != nil {
		writeHTMLError(w, err)
		return
	}

	data := consentPageData{
		ClientName:    s.clientDisplayName(pending.ClientID),
		Scopes:        describeScopes(pending.Scopes),
		RequestID:     requestID,
		ApproveAction: approveAction,
		ProviderName:  s.provider.Info().DisplayName,
	}
	if pending.Identity != nil {
		data.UserName = pending.Identity.Name
		data.UserEmail = pending.Identity.Email
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := consentPage.Execute(w, data); err != nil {
		s.logger.Error("failed to render consent page", "error", err)
	}
}

// handleAuthorizeApprove finishes consent for the custom provider.
func (s *Server) handleAuthorizeApprove(w http.ResponseWriter, r *http.Request) {
	s.completeConsent(w, r)
}

// handleConsentApprove finishes consent after federated identity capture.
func (s *Server) handleConsentApprove(w http.ResponseWriter, r *http.Request) {
	s.completeConsent(w, r)
}

func (s *Server) completeConsent(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeHTMLError(w, provider.NewError(provider.CodeInvalidRequest, "malformed form body"))
		return
	}

	requestID := r.PostFormValue("request_id")
	if requestID == "" {
		writeHTMLError(w, provider.NewError(provider.CodeInvalidRequest, "request_id is required"))
		return
	}
	approved := r.PostFormValue("approved") == "true"

	location, err := s.provider.CompleteAuthorization(r.Context(), requestID, approved)
	if err != nil {
		writeHTMLError(w, err)
		return
	}
	http.Redirect(w, r, location, http.StatusFound)
}

func (s *Server) clientDisplayName(clientID string) string {
	client, err := s.store.GetClient(clientID)
	if err != nil || client.ClientName == "" {
		return clientID
	}
	return client.ClientName
}

func describeScopes(scopes []string) []consentScope {
	out := make([]consentScope, 0, len(scopes))
	for _, scope := range scopes {
		desc, ok := scopeDescriptions[scope]
		if !ok {
			desc = scope
		}
		out = append(out, consentScope{Name: scope, Description: desc})
	}
	return out
}
