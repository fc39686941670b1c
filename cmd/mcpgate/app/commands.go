// SPDX-FileCopyrightText: Copyright 2026 mcpgate authors
// SPDX-License-Identifier: Apache-2.0

// Package app provides the CLI commands for the mcpgate authorization server.
package app

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mcpgate/mcpgate/pkg/authserver"
	"github.com/mcpgate/mcpgate/pkg/logger"
)

// NewRootCmd creates the root command for mcpgate.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mcpgate",
		Short: "OAuth 2.1 authorization server for MCP services",
		Long: `mcpgate is the OAuth 2.1 authorization server core of an MCP service:
dynamic client registration, the authorization code flow with PKCE,
token issuance with refresh rotation, and optional federation to
Google or Azure identity providers.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			logger.Initialize()
		},
	}

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("failed to bind debug flag: %v", err)
	}

	rootCmd.AddCommand(newServeCmd())
	return rootCmd
}

func newServeCmd() *cobra.Command {
	var (
		address    string
		storageDir string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the authorization server",
		Long: `Start the authorization server. Configuration is read from OAUTH_*
environment variables; flags override the listen address and storage
directory.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := authserver.LoadConfig()
			if address != "" {
				cfg.Address = address
			}
			if storageDir != "" {
				cfg.StorageDir = storageDir
			}

			srv, err := authserver.New(cfg, authserver.WithLogger(logger.Get()))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "Listen address (overrides OAUTH_ADDRESS)")
	cmd.Flags().StringVar(&storageDir, "storage-dir", "", "Credential store directory (overrides OAUTH_STORAGE_DIR)")

	return cmd
}
