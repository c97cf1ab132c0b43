// SPDX-FileCopyrightText: Copyright 2026 Cowork Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"encoding/json"
	"net/http"
)

// OAuth 2.1 error codes used by the authorization and token endpoints.
const (
	ErrorInvalidRequest       = "invalid_request"
	ErrorUnauthorizedClient   = "unauthorized_client"
	ErrorInvalidClient        = "invalid_client"
	ErrorInvalidGrant         = "invalid_grant"
	ErrorInvalidTarget        = "invalid_target"
	ErrorUnsupportedGrantType = "unsupported_grant_type"
	ErrorServerError          = "server_error"
)

// writeOAuthError writes the standard {error, error_description} JSON body.
// Descriptions are safe for disclosure; causes with server detail stay in
// the logs.
func writeOAuthError(w http.ResponseWriter, status int, code, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             code,
		"error_description": description,
	})
}
