// SPDX-FileCopyrightText: Copyright 2026 Cowork Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coworkhq/cowork-connector/pkg/auth/pkce"
	"github.com/coworkhq/cowork-connector/pkg/auth/token"
	"github.com/coworkhq/cowork-connector/pkg/envelope"
)

// TokenResponse is the success body of the token endpoint.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// TokenHandler exchanges an authorization code for an access token.
//
// Error taxonomy: malformed requests are invalid_request; bad client
// credentials are invalid_client; a bad or expired code and PKCE failures
// are invalid_grant; a resource that differs from the one bound at
// authorize time is invalid_target (RFC 8707).
func (s *Server) TokenHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, ErrorInvalidRequest,
			"Malformed form body")
		return
	}
	form := r.PostForm

	if form.Get("grant_type") != "authorization_code" {
		writeOAuthError(w, http.StatusBadRequest, ErrorUnsupportedGrantType,
			"Only grant_type=authorization_code is supported")
		return
	}

	code := form.Get("code")
	clientID := form.Get("client_id")
	redirectURI := form.Get("redirect_uri")
	if code == "" || clientID == "" || redirectURI == "" {
		writeOAuthError(w, http.StatusBadRequest, ErrorInvalidRequest,
			"code, client_id, and redirect_uri are required")
		return
	}

	codeVerifier := form.Get("code_verifier")
	if codeVerifier == "" {
		writeOAuthError(w, http.StatusBadRequest, ErrorInvalidRequest,
			"code_verifier is required")
		return
	}

	resource := form.Get("resource")
	if resource == "" {
		writeOAuthError(w, http.StatusBadRequest, ErrorInvalidRequest,
			"resource parameter is required")
		return
	}

	if clientID != s.config.ConnectorClientID || !s.clientSecretMatches(form.Get("client_secret")) {
		writeOAuthError(w, http.StatusUnauthorized, ErrorInvalidClient,
			"Client authentication failed")
		return
	}

	payload, err := s.codes.Verify(code)
	if err != nil {
		if errors.Is(err, envelope.ErrExpired) {
			writeOAuthError(w, http.StatusBadRequest, ErrorInvalidGrant,
				"Authorization code has expired")
			return
		}
		writeOAuthError(w, http.StatusBadRequest, ErrorInvalidGrant,
			"Invalid authorization code")
		return
	}

	if !pkce.Verify(codeVerifier, payload.CodeChallenge) {
		writeOAuthError(w, http.StatusBadRequest, ErrorInvalidGrant,
			"PKCE verification failed")
		return
	}

	if resource != payload.Resource {
		writeOAuthError(w, http.StatusBadRequest, ErrorInvalidTarget,
			"resource does not match the authorization request")
		return
	}

	accessToken, err := s.oauthTokens(r).Generate(payload.Identity, payload.Resource)
	if err != nil {
		s.logger.Error("failed to sign access token", "error", err)
		writeOAuthError(w, http.StatusInternalServerError, ErrorServerError,
			"Failed to issue access token")
		return
	}

	s.logger.Info("access token issued", "identity", payload.Identity, "resource", payload.Resource)
	writeTokenResponse(w, accessToken)
}

func writeTokenResponse(w http.ResponseWriter, accessToken string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(TokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(token.TTL.Seconds()),
	})
}
