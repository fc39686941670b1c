// SPDX-FileCopyrightText: Copyright 2026 mcpgate authors
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mcpgate/mcpgate/pkg/authserver/provider"
	"github.com/mcpgate/mcpgate/pkg/authserver/storage"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Server wires the credential store, the provider and the HTTP surface
// together and owns their lifecycle.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	store    *storage.Store
	provider provider.Provider
	http     *http.Server
}

// ServerOption configures a Server.
type ServerOption func(*serverOptions)

type serverOptions struct {
	logger    *slog.Logger
	storeOpts []storage.Option
}

// WithLogger sets the logger used by the server and every component it owns.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(o *serverOptions) {
		o.logger = logger
	}
}

// WithStoreOptions passes extra options to the credential store.
func WithStoreOptions(opts ...storage.Option) ServerOption {
	return func(o *serverOptions) {
		o.storeOpts = append(o.storeOpts, opts...)
	}
}

// New validates the configuration, opens the credential store and builds the
// configured provider. The caller owns the returned server and must call
// Close (or let Run do it) to release the store.
func New(cfg Config, opts ...ServerOption) (*Server, error) {
	options := &serverOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}
	logger := options.logger

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	storeOpts := append([]storage.Option{storage.WithLogger(logger)}, options.storeOpts...)
	store, err := storage.NewStore(cfg.StorageDir, storeOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}

	prov, err := provider.New(cfg.Provider, cfg.ProviderConfig(), store, provider.Credentials{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TenantID:     cfg.TenantID,
	}, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to build provider: %w", err)
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		provider: prov,
	}
	s.http = &http.Server{
		Addr:              cfg.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	logger.Info("authorization server configured",
		slog.String("provider", prov.Info().DisplayName),
		slog.String("issuer", cfg.IssuerURL),
		slog.String("address", cfg.Address),
	)

	return s, nil
}

// Provider returns the active provider, for embedding the bearer middleware
// into a larger service.
func (s *Server) Provider() provider.Provider {
	return s.provider
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully and
// flushes the store.
func (s *Server) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		s.logger.Info("authorization server listening", slog.String("address", s.cfg.Address))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown failed: %w", err)
		}
		return nil
	})

	err := group.Wait()
	if closeErr := s.Close(); closeErr != nil {
		return errors.Join(err, closeErr)
	}
	return err
}

// Close flushes and releases the credential store.
func (s *Server) Close() error {
	return s.store.Close()
}
