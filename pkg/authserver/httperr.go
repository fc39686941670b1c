// SPDX-FileCopyrightText: Copyright 2026 mcpgate authors
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/mcpgate/mcpgate/pkg/authserver/provider"
)

// errorStatus maps an OAuth error code to its HTTP status.
func errorStatus(code string) int {
	switch code {
	case provider.CodeInvalidClient:
		return http.StatusUnauthorized
	case provider.CodeServerError:
		return http.StatusInternalServerError
	case provider.CodeTemporarilyUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

// writeJSON writes v as a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Debug("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeOAuthError writes an OAuth error as JSON, the shape token endpoint
// clients expect.
func writeOAuthError(w http.ResponseWriter, err error) {
	oauthErr := provider.AsError(err)
	writeJSON(w, errorStatus(oauthErr.Code), oauthErr)
}

var errorPage = template.Must(template.New("error").Parse(`<!DOCTYPE html>
<html>
<head><title>Authorization Error</title></head>
<body>
<h1>Authorization Error</h1>
<p><strong>{{.Code}}</strong></p>
{{if .Description}}<p>{{.Description}}</p>{{end}}
</body>
</html>
`))

// writeHTMLError renders an OAuth error as a plain HTML page. Used when no
// safe redirect URI is known, so the error cannot be delivered to the client
// programmatically.
func writeHTMLError(w http.ResponseWriter, err error) {
	oauthErr := provider.AsError(err)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(errorStatus(oauthErr.Code))
	if tmplErr := errorPage.Execute(w, oauthErr); tmplErr != nil {
		slog.Default().Debug("failed to render error page", slog.String("error", tmplErr.Error()))
	}
}

// redirectError delivers an OAuth error to the client via its validated
// redirect URI, always carrying state back unchanged.
func redirectError(w http.ResponseWriter, r *http.Request, redirectURI, state string, err error) {
	oauthErr := provider.AsError(err)
	location, buildErr := buildErrorRedirect(redirectURI, state, oauthErr)
	if buildErr != nil {
		writeHTMLError(w, oauthErr)
		return
	}
	http.Redirect(w, r, location, http.StatusFound)
}

// buildErrorRedirect appends the error parameters to the redirect URI,
// preserving any query it already carries.
func buildErrorRedirect(redirectURI, state string, oauthErr *provider.Error) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("error", oauthErr.Code)
	if oauthErr.Description != "" {
		q.Set("error_description", oauthErr.Description)
	}
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
