// SPDX-FileCopyrightText: Copyright 2026 Cowork Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"net/http"

	"github.com/coworkhq/cowork-connector/pkg/auth/pkce"
)

// AuthorizeHandler validates an inbound authorization request and redirects
// the user to the upstream identity provider.
//
// Validation order: client identity first, then required OAuth parameters,
// then PKCE, then the resource indicator. PKCE with S256 and an explicit
// resource are mandatory, not optional.
func (s *Server) AuthorizeHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if q.Get("client_id") != s.config.ConnectorClientID {
		writeOAuthError(w, http.StatusBadRequest, ErrorUnauthorizedClient,
			"Unknown client_id")
		return
	}

	redirectURI := q.Get("redirect_uri")
	state := q.Get("state")
	if redirectURI == "" || state == "" || q.Get("response_type") != "code" {
		writeOAuthError(w, http.StatusBadRequest, ErrorInvalidRequest,
			"redirect_uri, state, and response_type=code are required")
		return
	}

	codeChallenge := q.Get("code_challenge")
	if codeChallenge == "" || q.Get("code_challenge_method") != pkce.MethodS256 {
		writeOAuthError(w, http.StatusBadRequest, ErrorInvalidRequest,
			"PKCE with code_challenge_method=S256 is required")
		return
	}

	resource := q.Get("resource")
	if resource == "" {
		writeOAuthError(w, http.StatusBadRequest, ErrorInvalidRequest,
			"resource parameter is required")
		return
	}

	blob, err := encodeState(stateBlob{
		RedirectURI:   redirectURI,
		State:         state,
		CodeChallenge: codeChallenge,
		Resource:      resource,
	})
	if err != nil {
		s.logger.Error("failed to encode state blob", "error", err)
		writeOAuthError(w, http.StatusInternalServerError, ErrorServerError,
			"Failed to initiate authorization")
		return
	}

	http.Redirect(w, r, s.upstream.AuthorizationURL(blob), http.StatusFound)
}
