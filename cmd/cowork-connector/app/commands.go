// SPDX-FileCopyrightText: Copyright 2026 Cowork Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app provides the entry point for the cowork-connector CLI.
package app

import (
	"github.com/spf13/cobra"

	"github.com/coworkhq/cowork-connector/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:               "cowork-connector",
	DisableAutoGenTag: true,
	Short:             "cowork-connector exposes Cowork conversations to MCP clients",
	Long: `cowork-connector is an authenticating gateway between MCP (Model Context
Protocol) clients and the Cowork conversation API.

It runs its own OAuth 2.1 authorization server (PKCE, resource indicators,
discovery metadata) in front of an upstream identity provider, gates every
MCP call on a verified bearer token and an email-domain allow-list, and
dispatches conversation tools to the Cowork API.`,
	Run: func(cmd *cobra.Command, _ []string) {
		// If no subcommand is provided, print help
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
}

// NewRootCmd creates a new root command for the cowork-connector CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")

	rootCmd.AddCommand(newServeCommand())

	return rootCmd
}
