// SPDX-FileCopyrightText: Copyright 2026 Cowork Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"encoding/json"
	"net/http"

	"github.com/coworkhq/cowork-connector/pkg/auth"
)

// ProtectedResourceMetadata is the RFC 9728 protected-resource document.
type ProtectedResourceMetadata struct {
	Resource             string   `json:"resource"`
	AuthorizationServers []string `json:"authorization_servers"`
}

// AuthorizationServerMetadata is the RFC 8414 authorization-server document.
type AuthorizationServerMetadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
	ResourceParameterSupported        bool     `json:"resource_parameter_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	ScopesSupported                   []string `json:"scopes_supported"`
}

// ProtectedResourceHandler serves /.well-known/oauth-protected-resource.
// Discovery endpoints are unauthenticated by definition and CORS-open so
// browser-based MCP clients can read them.
func (s *Server) ProtectedResourceHandler(w http.ResponseWriter, r *http.Request) {
	origin := auth.RequestOrigin(r)
	writeDiscovery(w, r, ProtectedResourceMetadata{
		Resource:             origin + auth.ResourcePath,
		AuthorizationServers: []string{origin},
	})
}

// AuthorizationServerHandler serves /.well-known/oauth-authorization-server.
func (s *Server) AuthorizationServerHandler(w http.ResponseWriter, r *http.Request) {
	origin := auth.RequestOrigin(r)
	writeDiscovery(w, r, AuthorizationServerMetadata{
		Issuer:                            origin,
		AuthorizationEndpoint:             origin + "/authorize",
		TokenEndpoint:                     origin + "/token",
		GrantTypesSupported:               []string{"authorization_code"},
		ResponseTypesSupported:            []string{"code"},
		CodeChallengeMethodsSupported:     []string{"S256"},
		ResourceParameterSupported:        true,
		TokenEndpointAuthMethodsSupported: []string{"client_secret_post"},
		ScopesSupported:                   []string{},
	})
}

func writeDiscovery(w http.ResponseWriter, r *http.Request, doc any) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "mcp-protocol-version, Content-Type, Authorization")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(doc)
}
