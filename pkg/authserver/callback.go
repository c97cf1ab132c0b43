// SPDX-FileCopyrightText: Copyright 2026 Cowork Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"net/http"
	"net/url"

	"github.com/coworkhq/cowork-connector/pkg/auth"
)

// CallbackHandler receives the redirect back from the upstream identity
// provider. It decodes the state blob, exchanges the provider's code for a
// verified email, enforces the domain allow-list, mints our own
// authorization code, and sends the user back to the client's redirect_uri
// with that code and the client's original state.
//
// The allow-list runs here as well as at the request gate so a denied user
// never receives a code at all.
func (s *Server) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	code := q.Get("code")
	if code == "" {
		// The provider reports user-facing failures (denied consent etc.)
		// with error parameters instead of a code.
		writeOAuthError(w, http.StatusBadRequest, ErrorInvalidRequest,
			"Missing authorization code from identity provider")
		return
	}

	blob, err := decodeState(q.Get("state"))
	if err != nil {
		s.logger.Warn("callback with undecodable state", "error", err)
		writeOAuthError(w, http.StatusBadRequest, ErrorInvalidRequest,
			"Invalid state parameter")
		return
	}

	identity, err := s.upstream.Identity(r.Context(), code)
	if err != nil {
		s.logger.Error("upstream identity exchange failed", "error", err)
		writeOAuthError(w, http.StatusInternalServerError, ErrorServerError,
			"Failed to verify identity with the identity provider")
		return
	}

	domain := auth.EmailDomain(identity)
	if !auth.DomainAllowed(domain, s.config.AllowedDomains) {
		s.logger.Warn("Access denied for email domain", "domain", domain)
		writeOAuthError(w, http.StatusForbidden, "access_denied",
			"Email domain is not allowed: "+domain)
		return
	}

	authCode, err := s.codes.Generate(identity, blob.CodeChallenge, blob.Resource)
	if err != nil {
		s.logger.Error("failed to mint authorization code", "error", err)
		writeOAuthError(w, http.StatusInternalServerError, ErrorServerError,
			"Failed to issue authorization code")
		return
	}

	redirect, err := url.Parse(blob.RedirectURI)
	if err != nil {
		writeOAuthError(w, http.StatusBadRequest, ErrorInvalidRequest,
			"Invalid redirect URI")
		return
	}
	params := redirect.Query()
	params.Set("code", authCode)
	params.Set("state", blob.State)
	redirect.RawQuery = params.Encode()

	s.logger.Info("authorization code issued", "identity", identity)
	http.Redirect(w, r, redirect.String(), http.StatusFound)
}
