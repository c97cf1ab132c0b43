// SPDX-FileCopyrightText: Copyright 2026 Cowork Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"net/http"

	"github.com/coworkhq/cowork-connector/pkg/auth"
	"github.com/coworkhq/cowork-connector/pkg/auth/token"
)

// SignInHandler mints a legacy access token directly: no PKCE, no
// authorization-code indirection, no audience binding. It exists for
// deployments that predate the OAuth flow and is guarded by the connector
// client secret. The domain allow-list still applies.
func (s *Server) SignInHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, ErrorInvalidRequest,
			"Malformed form body")
		return
	}
	form := r.PostForm

	if form.Get("client_id") != s.config.ConnectorClientID || !s.clientSecretMatches(form.Get("client_secret")) {
		writeOAuthError(w, http.StatusUnauthorized, ErrorInvalidClient,
			"Client authentication failed")
		return
	}

	email := form.Get("email")
	if email == "" {
		writeOAuthError(w, http.StatusBadRequest, ErrorInvalidRequest,
			"email is required")
		return
	}

	domain := auth.EmailDomain(email)
	if !auth.DomainAllowed(domain, s.config.AllowedDomains) {
		s.logger.Warn("Access denied for email domain", "domain", domain)
		writeOAuthError(w, http.StatusForbidden, "access_denied",
			"Email domain is not allowed: "+domain)
		return
	}

	legacy := token.NewLegacyIssuer(s.config.SigningSecret,
		token.WithLegacyClock(s.now))
	accessToken, err := legacy.Generate(email)
	if err != nil {
		s.logger.Error("failed to sign legacy token", "error", err)
		writeOAuthError(w, http.StatusInternalServerError, ErrorServerError,
			"Failed to issue access token")
		return
	}

	s.logger.Info("legacy token issued", "identity", email)
	writeTokenResponse(w, accessToken)
}
