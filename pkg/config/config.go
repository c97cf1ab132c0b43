// SPDX-FileCopyrightText: Copyright 2026 Cowork Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config loads the gateway configuration from defaults, an optional
// config file, and COWORK_-prefixed environment variables, in that order of
// precedence (lowest to highest).
//
// Secret-valued settings never appear here. The configuration carries the
// names of secrets; the actual values are resolved through pkg/secrets at
// startup.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Names of the secrets the gateway resolves at startup.
const (
	// SecretSigning signs authorization codes and access tokens.
	SecretSigning = "cowork-signing-secret"

	// SecretConnectorClient authenticates the registered OAuth client.
	SecretConnectorClient = "cowork-connector-client-secret"

	// SecretIDPClient authenticates us to the upstream identity provider.
	SecretIDPClient = "cowork-idp-client-secret"

	// SecretAPIToken is the service credential for the conversation API.
	SecretAPIToken = "cowork-api-token"
)

// IDPConfig points at the upstream identity provider. Defaults are
// Google's endpoints; only the client ID is deployment-specific.
type IDPConfig struct {
	ClientID    string   `mapstructure:"client_id"`
	RedirectURI string   `mapstructure:"redirect_uri"`
	AuthURL     string   `mapstructure:"auth_url"`
	TokenURL    string   `mapstructure:"token_url"`
	UserInfoURL string   `mapstructure:"userinfo_url"`
	Scopes      []string `mapstructure:"scopes"`
}

// Config is the full gateway configuration.
type Config struct {
	// Host and Port are the listen address of the HTTP server.
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	// AllowedDomains is the email-domain allow-list. Empty means nobody
	// gets in, which is why Validate rejects it.
	AllowedDomains []string `mapstructure:"allowed_domains"`

	// ConnectorClientID is the client_id of the one registered OAuth client.
	ConnectorClientID string `mapstructure:"connector_client_id"`

	// SecretsDir is an optional directory of mounted secret files, tried
	// before the environment.
	SecretsDir string `mapstructure:"secrets_dir"`

	// CoworkAPIURL is the base URL of the conversation API.
	CoworkAPIURL string `mapstructure:"cowork_api_url"`

	IDP IDPConfig `mapstructure:"idp"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8080)
	v.SetDefault("connector_client_id", "cowork-connector")
	v.SetDefault("cowork_api_url", "https://api.cowork.dev")
	v.SetDefault("idp.auth_url", "https://accounts.google.com/o/oauth2/v2/auth")
	v.SetDefault("idp.token_url", "https://oauth2.googleapis.com/token")
	v.SetDefault("idp.userinfo_url", "https://openidconnect.googleapis.com/v1/userinfo")
	v.SetDefault("idp.scopes", []string{"openid", "email"})
}

// Load reads the configuration. configFile may be empty; when set, the file
// must exist and parse. Environment variables use the COWORK_ prefix with
// dots and dashes mapped to underscores, e.g. COWORK_IDP_CLIENT_ID.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("COWORK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	// AutomaticEnv alone does not surface env-only keys through Unmarshal,
	// so read the known keys explicitly.
	cfg := &Config{
		Host:              v.GetString("host"),
		Port:              v.GetInt("port"),
		AllowedDomains:    splitList(v.GetString("allowed_domains")),
		ConnectorClientID: v.GetString("connector_client_id"),
		SecretsDir:        v.GetString("secrets_dir"),
		CoworkAPIURL:      v.GetString("cowork_api_url"),
		IDP: IDPConfig{
			ClientID:    v.GetString("idp.client_id"),
			RedirectURI: v.GetString("idp.redirect_uri"),
			AuthURL:     v.GetString("idp.auth_url"),
			TokenURL:    v.GetString("idp.token_url"),
			UserInfoURL: v.GetString("idp.userinfo_url"),
			Scopes:      v.GetStringSlice("idp.scopes"),
		},
	}
	return cfg, nil
}

// splitList parses a comma-separated value, trimming whitespace around
// entries and dropping empty ones.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Validate checks the settings a running gateway cannot do without.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if len(c.AllowedDomains) == 0 {
		return fmt.Errorf("allowed_domains must not be empty")
	}
	if c.ConnectorClientID == "" {
		return fmt.Errorf("connector_client_id is required")
	}
	if c.IDP.ClientID == "" {
		return fmt.Errorf("idp.client_id is required")
	}
	if c.IDP.RedirectURI == "" {
		return fmt.Errorf("idp.redirect_uri is required")
	}
	return nil
}
