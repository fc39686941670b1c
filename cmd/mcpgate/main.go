// SPDX-FileCopyrightText: Copyright 2026 mcpgate authors
// SPDX-License-Identifier: Apache-2.0

// Package main is the entrypoint for the mcpgate authorization server.
package main

import (
	"os"

	"github.com/mcpgate/mcpgate/cmd/mcpgate/app"
	"github.com/mcpgate/mcpgate/pkg/logger"
)

func main() {
	if err := app.NewRootCmd().Execute(); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}
