// SPDX-FileCopyrightText: Copyright 2026 Cowork Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/coworkhq/cowork-connector/pkg/auth"
	"github.com/coworkhq/cowork-connector/pkg/authserver"
	"github.com/coworkhq/cowork-connector/pkg/authserver/idp"
	"github.com/coworkhq/cowork-connector/pkg/config"
	"github.com/coworkhq/cowork-connector/pkg/cowork"
	"github.com/coworkhq/cowork-connector/pkg/logger"
	"github.com/coworkhq/cowork-connector/pkg/mcpserver"
	"github.com/coworkhq/cowork-connector/pkg/secrets"
	"github.com/coworkhq/cowork-connector/pkg/server"
)

var (
	serveHost       string
	servePort       int
	serveConfigFile string
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway HTTP server",
		Long: `Run the gateway HTTP server: OAuth authorization endpoints, discovery
metadata, and the token-gated MCP endpoint.

Configuration comes from an optional config file and COWORK_-prefixed
environment variables. Secret values are resolved by name at startup, from
the secrets directory if configured and the COWORK_SECRET_ environment
otherwise.`,
		RunE: serveCmdFunc,
	}

	cmd.Flags().StringVar(&serveHost, "host", "", "Host to listen on (overrides config)")
	cmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config)")
	cmd.Flags().StringVar(&serveConfigFile, "config", "", "Path to a config file")

	return cmd
}

func serveCmdFunc(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(serveConfigFile)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("host") {
		cfg.Host = serveHost
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = servePort
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	resolved, err := config.ResolveSecrets(ctx, secrets.NewDefault(cfg.SecretsDir))
	if err != nil {
		// The caller never sees this; config problems are an operator concern.
		logger.Errorf("secret resolution failed: %v", err)
		return fmt.Errorf("secret resolution failed")
	}

	upstream, err := idp.New(&idp.Config{
		ClientID:     cfg.IDP.ClientID,
		ClientSecret: resolved.IDPClient,
		RedirectURI:  cfg.IDP.RedirectURI,
		AuthURL:      cfg.IDP.AuthURL,
		TokenURL:     cfg.IDP.TokenURL,
		UserInfoURL:  cfg.IDP.UserInfoURL,
		Scopes:       cfg.IDP.Scopes,
	})
	if err != nil {
		return fmt.Errorf("failed to configure identity provider: %w", err)
	}

	authSrv := authserver.New(authserver.Config{
		ConnectorClientID:     cfg.ConnectorClientID,
		ConnectorClientSecret: resolved.ConnectorClient,
		SigningSecret:         resolved.Signing,
		AllowedDomains:        cfg.AllowedDomains,
	}, upstream)

	gate := auth.NewGate(resolved.Signing, cfg.AllowedDomains)

	api := cowork.New(cfg.CoworkAPIURL, resolved.APIToken)
	mcpHandler := mcpserver.New(api).Handler(auth.ResourcePath)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	return server.Serve(ctx, addr, server.Router(authSrv, gate, mcpHandler))
}
