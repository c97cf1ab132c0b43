// SPDX-FileCopyrightText: Copyright 2026 Cowork Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package idp handles communication with the upstream identity provider.
//
// The gateway delegates the actual user authentication to an external
// provider (Google by default): it redirects the user there, exchanges the
// returned code for tokens, and asks the userinfo endpoint for a verified
// email. That email is the only thing the rest of the system consumes.
package idp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
)

// maxResponseSize bounds userinfo responses to prevent DoS.
const maxResponseSize = 1 << 20 // 1MB

// Google endpoint defaults, used when the config leaves endpoints empty.
const (
	GoogleAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	GoogleTokenURL    = "https://oauth2.googleapis.com/token"
	GoogleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
)

// Config contains configuration for the upstream identity provider.
type Config struct {
	// ClientID is the OAuth client ID registered with the provider.
	ClientID string

	// ClientSecret is the matching client secret.
	ClientSecret string

	// RedirectURI is our /callback URL, registered with the provider.
	RedirectURI string

	// AuthURL, TokenURL, and UserInfoURL identify the provider's endpoints.
	// Empty values default to Google.
	AuthURL     string
	TokenURL    string
	UserInfoURL string

	// Scopes to request. Defaults to "openid email".
	Scopes []string
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("idp client ID is required")
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("idp client secret is required")
	}
	if c.RedirectURI == "" {
		return fmt.Errorf("idp redirect URI is required")
	}
	return nil
}

// Provider is the boundary the authorization server talks to.
type Provider interface {
	// AuthorizationURL builds the provider redirect URL carrying our opaque
	// state blob as the provider's own state parameter.
	AuthorizationURL(state string) string

	// Identity exchanges the provider's code and returns the verified email.
	Identity(ctx context.Context, code string) (string, error)
}

// OAuth2Provider implements Provider against any OAuth2 provider exposing
// a userinfo endpoint with an email claim.
type OAuth2Provider struct {
	oauth       oauth2.Config
	userInfoURL string
	client      *http.Client
	logger      *slog.Logger
}

// Option configures an OAuth2Provider.
type Option func(*OAuth2Provider)

// WithHTTPClient sets a custom HTTP client. Intended for tests.
func WithHTTPClient(client *http.Client) Option {
	return func(p *OAuth2Provider) {
		p.client = client
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *OAuth2Provider) {
		p.logger = logger
	}
}

// New creates an OAuth2Provider from config, applying Google defaults for
// any endpoint left empty.
func New(config *Config, opts ...Option) (*OAuth2Provider, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid idp config: %w", err)
	}

	authURL := config.AuthURL
	if authURL == "" {
		authURL = GoogleAuthURL
	}
	tokenURL := config.TokenURL
	if tokenURL == "" {
		tokenURL = GoogleTokenURL
	}
	userInfoURL := config.UserInfoURL
	if userInfoURL == "" {
		userInfoURL = GoogleUserInfoURL
	}
	scopes := config.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "email"}
	}

	p := &OAuth2Provider{
		oauth: oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURI,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  authURL,
				TokenURL: tokenURL,
			},
		},
		userInfoURL: userInfoURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// AuthorizationURL implements Provider.
func (p *OAuth2Provider) AuthorizationURL(state string) string {
	return p.oauth.AuthCodeURL(state)
}

// Identity implements Provider: code for tokens, tokens for userinfo,
// userinfo for a verified email.
func (p *OAuth2Provider) Identity(ctx context.Context, code string) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)

	tok, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("upstream code exchange failed: %w", err)
	}

	email, err := p.fetchEmail(ctx, tok.AccessToken)
	if err != nil {
		return "", err
	}

	p.logger.Debug("upstream identity established", "email_domain", emailDomain(email))
	return email, nil
}

func (p *OAuth2Provider) fetchEmail(ctx context.Context, accessToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("userinfo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("userinfo endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("failed to read userinfo response: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("userinfo response is not valid JSON")
	}

	email := gjson.GetBytes(body, "email").String()
	if email == "" {
		return "", fmt.Errorf("userinfo response missing email claim")
	}
	if verified := gjson.GetBytes(body, "email_verified"); verified.Exists() && !verified.Bool() {
		return "", fmt.Errorf("upstream email is not verified")
	}
	return email, nil
}

func emailDomain(email string) string {
	for i := len(email) - 1; i >= 0; i-- {
		if email[i] == '@' {
			return email[i+1:]
		}
	}
	return ""
}
