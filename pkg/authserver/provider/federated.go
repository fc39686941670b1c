// SPDX-FileCopyrightText: Copyright 2026 mcpgate authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mcpgate/mcpgate/pkg/authserver/crypto"
	"github.com/mcpgate/mcpgate/pkg/authserver/idp"
	"github.com/mcpgate/mcpgate/pkg/authserver/storage"
)

// federatedProvider interposes an upstream IDP before the local consent
// page. The flow has two legs: the user is first sent to the IDP, then the
// callback captures the authenticated identity and resumes locally.
type federatedProvider struct {
	core

	info     Info
	upstream *idp.Client
	callback string
}

var _ Federated = (*federatedProvider)(nil)

// NewGoogle creates the Google-federated provider.
func NewGoogle(
	cfg Config, store *storage.Store, clientID, clientSecret string, logger *slog.Logger,
) (Federated, error) {
	return newFederated(cfg, store, logger,
		Info{Type: TypeGoogle, DisplayName: "Google OAuth", External: true},
		idp.GoogleConfig(clientID, clientSecret, cfg.IssuerURL+"/oauth/google/callback"),
		"/oauth/google/callback")
}

// NewAzure creates the Azure-federated provider.
func NewAzure(
	cfg Config, store *storage.Store, clientID, clientSecret, tenantID string, logger *slog.Logger,
) (Federated, error) {
	return newFederated(cfg, store, logger,
		Info{Type: TypeAzure, DisplayName: "Azure Entra ID", External: true},
		idp.AzureConfig(clientID, clientSecret, tenantID, cfg.IssuerURL+"/oauth/azure/callback"),
		"/oauth/azure/callback")
}

func newFederated(
	cfg Config, store *storage.Store, logger *slog.Logger,
	info Info, upstreamCfg idp.Config, callbackPath string,
) (Federated, error) {
	opts := []idp.ClientOption{}
	if logger != nil {
		opts = append(opts, idp.WithLogger(logger))
	}
	upstream, err := idp.NewClient(upstreamCfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s IDP client: %w", info.Type, err)
	}

	return &federatedProvider{
		core:     newCore(cfg, store, logger),
		info:     info,
		upstream: upstream,
		callback: callbackPath,
	}, nil
}

func (p *federatedProvider) Info() Info {
	return p.info
}

func (p *federatedProvider) CallbackPath() string {
	return p.callback
}

// StartAuthorization stores the pending authorization keyed by a fresh
// correlation state and redirects the user to the upstream IDP. The client's
// original state travels inside the pending record, never upstream.
func (p *federatedProvider) StartAuthorization(ctx context.Context, req *AuthorizationRequest) (string, error) {
	correlation, err := crypto.NewToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate correlation state: %w", err)
	}

	authURL, err := p.upstream.AuthorizationURL(ctx, correlation)
	if err != nil {
		return "", fmt.Errorf("failed to build upstream authorization URL: %w", err)
	}

	p.store.PutPending(correlation, p.newPending(req))

	p.logger.Debug("started federated authorization",
		slog.String("provider", p.info.Type),
		slog.String("client_id", req.Client.ClientID))

	return authURL, nil
}

// HandleCallback consumes the pending authorization for the callback state,
// completes the upstream leg and resumes at the local consent page. Upstream
// failures redirect back to the MCP client; an unknown state leaves no safe
// redirect URI, so the error surfaces to the HTTP layer as-is.
func (p *federatedProvider) HandleCallback(ctx context.Context, cb *CallbackRequest) (string, error) {
	pending, err := p.store.TakePending(cb.State)
	if err != nil {
		return "", NewError(CodeInvalidRequest, "unknown or expired authorization state")
	}

	if cb.ErrorCode != "" {
		p.logger.Info("upstream IDP returned an error",
			slog.String("provider", p.info.Type),
			slog.String("error", cb.ErrorCode))
		desc := cb.ErrorDescription
		if desc == "" {
			desc = "upstream authentication failed"
		}
		return buildRedirect(pending.RedirectURI, map[string]string{
			"error":             CodeAccessDenied,
			"error_description": desc,
			"state":             pending.State,
		})
	}

	identity, err := p.authenticate(ctx, cb.Code)
	if err != nil {
		p.logger.Error("upstream authentication failed",
			slog.String("provider", p.info.Type),
			slog.String("error", err.Error()))
		return buildRedirect(pending.RedirectURI, map[string]string{
			"error":             CodeServerError,
			"error_description": "upstream authentication failed",
			"state":             pending.State,
		})
	}

	// Re-key the pending authorization for the consent leg with a fresh
	// token and a fresh TTL, now carrying the authenticated identity.
	requestID, err := crypto.NewToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate request ID: %w", err)
	}
	pending.Identity = identity
	pending.ExpiresAt = time.Now().Add(storage.DefaultPendingAuthorizationTTL)
	p.store.PutPending(requestID, pending)

	p.logger.Info("federated authentication succeeded",
		slog.String("provider", p.info.Type),
		slog.String("subject", identity.Subject))

	return fmt.Sprintf("%s/oauth/consent/page?request_id=%s", p.cfg.IssuerURL, requestID), nil
}

// authenticate exchanges the upstream code and resolves the user identity.
func (p *federatedProvider) authenticate(ctx context.Context, code string) (*storage.Identity, error) {
	tokens, err := p.upstream.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("upstream code exchange failed: %w", err)
	}

	info, err := p.upstream.UserInfo(ctx, tokens.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("upstream userinfo failed: %w", err)
	}
	if info.Subject == "" {
		return nil, fmt.Errorf("upstream userinfo has no subject")
	}

	return &storage.Identity{
		Subject: info.Subject,
		Email:   info.Email,
		Name:    info.Name,
	}, nil
}
