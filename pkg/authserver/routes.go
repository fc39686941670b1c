// SPDX-FileCopyrightText: Copyright 2026 mcpgate authors
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mcpgate/mcpgate/pkg/authserver/provider"
)

// Handler builds the HTTP surface of the authorization server.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/.well-known/oauth-authorization-server", s.handleMetadata)
	r.Get("/health", s.handleHealth)

	r.Post("/register", s.handleRegister)

	// The route table names GET, but form-posting clients exist, so the same
	// handler accepts both verbs.
	r.Get("/authorize", s.handleAuthorize)
	r.Post("/authorize", s.handleAuthorize)

	r.Get("/oauth/authorize/page", s.handleAuthorizePage)
	r.Post("/oauth/authorize/approve", s.handleAuthorizeApprove)
	r.Get("/oauth/consent/page", s.handleConsentPage)
	r.Post("/oauth/consent/approve", s.handleConsentApprove)

	if fed, ok := s.provider.(provider.Federated); ok {
		r.Get(fed.CallbackPath(), s.handleCallback)
	}

	r.Post("/token", s.handleToken)
	r.Post("/revoke", s.handleRevoke)

	return r
}

// requestLogger logs each request with its duration and status.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
