// SPDX-FileCopyrightText: Copyright 2026 mcpgate authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"fmt"
	"log/slog"

	"github.com/mcpgate/mcpgate/pkg/authserver/storage"
)

// Credentials carries the upstream IDP application credentials used by
// federated providers. TenantID is only meaningful for Azure.
type Credentials struct {
	ClientID     string
	ClientSecret string
	TenantID     string
}

// New creates the provider selected by providerType. Federated variants
// require upstream application credentials; a misconfigured or unknown type
// is a startup failure.
func New(
	providerType string, cfg Config, store *storage.Store, creds Credentials, logger *slog.Logger,
) (Provider, error) {
	switch providerType {
	case TypeCustom, "":
		return NewCustom(cfg, store, logger), nil
	case TypeGoogle:
		if creds.ClientID == "" || creds.ClientSecret == "" {
			return nil, fmt.Errorf("google provider requires a client ID and secret")
		}
		return NewGoogle(cfg, store, creds.ClientID, creds.ClientSecret, logger)
	case TypeAzure:
		if creds.ClientID == "" || creds.ClientSecret == "" {
			return nil, fmt.Errorf("azure provider requires a client ID and secret")
		}
		return NewAzure(cfg, store, creds.ClientID, creds.ClientSecret, creds.TenantID, logger)
	default:
		return nil, fmt.Errorf("unknown provider type %q", providerType)
	}
}
