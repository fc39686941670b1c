// SPDX-FileCopyrightText: Copyright 2026 mcpgate authors
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"context"
	"net/http"
	"strings"
)

// Identity is the authenticated principal attached to the request context by
// the bearer middleware. Subject, Email and Name are only set when the token
// was issued through a federated flow.
type Identity struct {
	ClientID string
	Scopes   []string
	Subject  string
	Email    string
	Name     string
}

type contextKey string

const identityKey contextKey = "mcpgate.identity"

// IdentityFromContext returns the identity attached by RequireAuth.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// HasScope reports whether the identity was granted the given scope.
func (i *Identity) HasScope(scope string) bool {
	for _, s := range i.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// RequireAuth validates the bearer token on each request and attaches the
// resolved identity to the context. Failures return 401 with the
// WWW-Authenticate challenge required by RFC 6750.
func (s *Server) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			unauthorized(w)
			return
		}

		rec, err := s.provider.Introspect(r.Context(), token)
		if err != nil {
			unauthorized(w)
			return
		}

		id := Identity{
			ClientID: rec.ClientID,
			Scopes:   rec.Scopes,
		}
		if rec.Identity != nil {
			id.Subject = rec.Identity.Subject
			id.Email = rec.Identity.Email
			id.Name = rec.Identity.Name
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, id)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return header[len(prefix):], true
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	w.WriteHeader(http.StatusUnauthorized)
}
