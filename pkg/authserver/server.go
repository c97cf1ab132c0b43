// SPDX-FileCopyrightText: Copyright 2026 Cowork Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package authserver implements the OAuth 2.1 authorization-server surface
// of the gateway: discovery metadata, the authorization endpoint, the
// upstream-IdP callback, and the token-exchange endpoint.
//
// The server is stateless. Authorization codes are signed self-contained
// envelopes, the cross-IdP state is an opaque blob carried by the client,
// and access tokens are signed claim sets. Nothing is stored between
// requests; rotating the signing secret is the only revocation mechanism.
package authserver

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/coworkhq/cowork-connector/pkg/auth"
	"github.com/coworkhq/cowork-connector/pkg/auth/authcode"
	"github.com/coworkhq/cowork-connector/pkg/auth/token"
	"github.com/coworkhq/cowork-connector/pkg/authserver/idp"
)

// Config contains the authorization server's own settings. The upstream
// IdP has its own config in the idp package.
type Config struct {
	// ConnectorClientID identifies the one registered client.
	ConnectorClientID string

	// ConnectorClientSecret authenticates that client at the token and
	// legacy sign-in endpoints.
	ConnectorClientSecret string

	// SigningSecret signs authorization codes and both access-token
	// variants.
	SigningSecret []byte

	// AllowedDomains is the email-domain allow-list, enforced at callback
	// time in addition to the request gate.
	AllowedDomains []string
}

// Server holds the handlers for the authorization endpoints.
type Server struct {
	config   Config
	upstream idp.Provider
	codes    *authcode.Issuer
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// New creates a Server. upstream handles the actual user authentication.
func New(config Config, upstream idp.Provider, opts ...Option) *Server {
	s := &Server{
		config:   config,
		upstream: upstream,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.codes = authcode.NewIssuer(config.SigningSecret,
		authcode.WithClock(func() time.Time { return s.now() }))
	return s
}

// Routes registers the authorization-server endpoints on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/.well-known/oauth-protected-resource", s.ProtectedResourceHandler)
	mux.HandleFunc("/.well-known/oauth-authorization-server", s.AuthorizationServerHandler)
	mux.HandleFunc("GET /authorize", s.AuthorizeHandler)
	mux.HandleFunc("GET /callback", s.CallbackHandler)
	mux.HandleFunc("POST /token", s.TokenHandler)
	mux.HandleFunc("POST /signin/token", s.SignInHandler)
}

// clientSecretMatches compares a presented client secret in constant time.
func (s *Server) clientSecretMatches(presented string) bool {
	return subtle.ConstantTimeCompare(
		[]byte(presented), []byte(s.config.ConnectorClientSecret)) == 1
}

// oauthTokens returns an access-token issuer bound to the request's origin,
// which is the iss claim of every token this deployment mints.
func (s *Server) oauthTokens(r *http.Request) *token.OAuthIssuer {
	return token.NewOAuthIssuer(s.config.SigningSecret, auth.RequestOrigin(r),
		token.WithOAuthClock(s.now))
}
