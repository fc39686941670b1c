// SPDX-FileCopyrightText: Copyright 2026 mcpgate authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mcpgate/mcpgate/pkg/authserver/crypto"
	"github.com/mcpgate/mcpgate/pkg/authserver/storage"
)

// customProvider authenticates users with the built-in consent page and no
// upstream IDP. Authorization starts and finishes locally.
type customProvider struct {
	core
}

var _ Provider = (*customProvider)(nil)

// NewCustom creates the local-consent provider.
func NewCustom(cfg Config, store *storage.Store, logger *slog.Logger) Provider {
	return &customProvider{core: newCore(cfg, store, logger)}
}

func (*customProvider) Info() Info {
	return Info{
		Type:        TypeCustom,
		DisplayName: "Custom OAuth (In-Memory)",
		External:    false,
	}
}

// StartAuthorization stores the pending authorization and sends the user
// straight to the local consent page.
func (p *customProvider) StartAuthorization(_ context.Context, req *AuthorizationRequest) (string, error) {
	requestID, err := crypto.NewToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate request ID: %w", err)
	}

	p.store.PutPending(requestID, p.newPending(req))

	p.logger.Debug("started local authorization",
		slog.String("client_id", req.Client.ClientID))

	return fmt.Sprintf("%s/oauth/authorize/page?request_id=%s", p.cfg.IssuerURL, requestID), nil
}
