// SPDX-FileCopyrightText: Copyright 2026 mcpgate authors
// SPDX-License-Identifier: Apache-2.0

package idp

import "fmt"

// graphMeEndpoint is the Microsoft Graph endpoint used as userinfo.
const graphMeEndpoint = "https://graph.microsoft.com/v1.0/me"

// AzureConfig builds the upstream configuration for the Microsoft identity
// platform. The tenant segment selects who may sign in: "common",
// "organizations", "consumers", or a specific tenant ID. Endpoints are fixed
// by the tenant, so no discovery round trip is needed.
func AzureConfig(clientID, clientSecret, tenantID, redirectURI string) Config {
	if tenantID == "" {
		tenantID = "common"
	}
	authority := fmt.Sprintf("https://login.microsoftonline.com/%s", tenantID)

	return Config{
		Name:         "azure",
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURI:  redirectURI,
		Scopes:       []string{"openid", "profile", "email", "offline_access", "User.Read"},
		Endpoints: &Endpoints{
			AuthorizationEndpoint: authority + "/oauth2/v2.0/authorize",
			TokenEndpoint:         authority + "/oauth2/v2.0/token",
			UserInfoEndpoint:      graphMeEndpoint,
		},
		ExtraAuthParams: map[string]string{
			"response_mode": "query",
			"prompt":        "consent",
		},
	}
}
