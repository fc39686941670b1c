// SPDX-FileCopyrightText: Copyright 2026 mcpgate authors
// SPDX-License-Identifier: Apache-2.0

package idp

// Google OIDC endpoints, used as the fallback when discovery is unreachable.
const (
	googleIssuer           = "https://accounts.google.com"
	googleAuthEndpoint     = "https://accounts.google.com/o/oauth2/v2/auth"
	googleTokenEndpoint    = "https://oauth2.googleapis.com/token"
	googleUserInfoEndpoint = "https://www.googleapis.com/oauth2/v3/userinfo"
)

// GoogleConfig builds the upstream configuration for Google. Discovery runs
// against the Google issuer on first use; the well-known endpoints act as the
// fallback. access_type=offline and prompt=consent match Google's
// requirements for receiving a refresh token.
func GoogleConfig(clientID, clientSecret, redirectURI string) Config {
	return Config{
		Name:         "google",
		Issuer:       googleIssuer,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURI:  redirectURI,
		Scopes:       []string{"openid", "email", "profile"},
		Endpoints: &Endpoints{
			AuthorizationEndpoint: googleAuthEndpoint,
			TokenEndpoint:         googleTokenEndpoint,
			UserInfoEndpoint:      googleUserInfoEndpoint,
		},
		ExtraAuthParams: map[string]string{
			"access_type": "offline",
			"prompt":      "consent",
		},
	}
}
