// SPDX-FileCopyrightText: Copyright 2026 Cowork Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coworkhq/cowork-connector/pkg/auth/token"
)

// ResourcePath is the fixed path of the protected MCP resource. The
// expected token audience is the request origin plus this path.
const ResourcePath = "/mcp"

// WellKnownProtectedResourcePath is where clients find the protected
// resource metadata (RFC 9728). The 401 hint points here.
const WellKnownProtectedResourcePath = "/.well-known/oauth-protected-resource"

// Gate is the per-request accept/reject decision for protected calls.
//
// Verification order is fixed: the OAuth (audience-bound) verifier runs
// first, the legacy verifier second. Newer tokens therefore take precedence
// and an OAuth-shaped token can never be accepted under legacy rules.
type Gate struct {
	oauth          *token.OAuthIssuer
	legacy         *token.LegacyIssuer
	allowedDomains []string
	logger         *slog.Logger
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithLogger sets a custom logger for the gate.
func WithLogger(logger *slog.Logger) GateOption {
	return func(g *Gate) {
		g.logger = logger
	}
}

// NewGate creates a Gate verifying with the shared signing secret and
// enforcing the given email-domain allow-list.
func NewGate(secret []byte, allowedDomains []string, opts ...GateOption) *Gate {
	g := &Gate{
		oauth:          token.NewOAuthIssuer(secret, ""),
		legacy:         token.NewLegacyIssuer(secret),
		allowedDomains: allowedDomains,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Middleware wraps next so it only runs for authenticated, allow-listed
// callers. On success the established Credential is placed in the request
// context for downstream logging.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || tokenString == "" {
			g.unauthorized(w, r, "Authentication required")
			return
		}

		cred, err := g.verify(r, tokenString)
		if err != nil {
			g.unauthorized(w, r, "Invalid or expired token")
			return
		}

		domain := EmailDomain(cred.Identity)
		if !DomainAllowed(domain, g.allowedDomains) {
			g.logger.Warn("Access denied for email domain", "domain", domain)
			writeJSONError(w, http.StatusForbidden, "forbidden",
				fmt.Sprintf("Access denied for email domain: %s. Allowed domains: %s",
					domain, strings.Join(g.allowedDomains, ", ")))
			return
		}

		g.logger.Info("Authenticated user", "identity", cred.Identity, "variant", string(cred.Variant))
		next.ServeHTTP(w, r.WithContext(WithCredential(r.Context(), cred)))
	})
}

// verify attempts OAuth-token verification first, then the legacy fallback.
// The raw token never reaches a log line.
func (g *Gate) verify(r *http.Request, tokenString string) (*Credential, error) {
	expectedAudience := RequestOrigin(r) + ResourcePath

	if identity, err := g.oauth.Verify(tokenString, expectedAudience); err == nil {
		return &Credential{Identity: identity, Variant: VariantOAuth}, nil
	}

	identity, err := g.legacy.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	return &Credential{Identity: identity, Variant: VariantLegacy}, nil
}

// DomainAllowed reports whether domain exactly matches an allow-list entry.
// Comparison is case-sensitive; an empty domain never matches.
func DomainAllowed(domain string, allowedDomains []string) bool {
	if domain == "" {
		return false
	}
	for _, allowed := range allowedDomains {
		if domain == allowed {
			return true
		}
	}
	return false
}

func (g *Gate) unauthorized(w http.ResponseWriter, r *http.Request, message string) {
	metadataURL := RequestOrigin(r) + WellKnownProtectedResourcePath
	w.Header().Set("WWW-Authenticate",
		fmt.Sprintf(`Bearer resource_metadata=%q`, metadataURL))
	writeJSONError(w, http.StatusUnauthorized, "unauthorized", message)
}

// EmailDomain returns the part after the last '@', or "" when there is none.
func EmailDomain(identity string) string {
	idx := strings.LastIndexByte(identity, '@')
	if idx < 0 || idx == len(identity)-1 {
		return ""
	}
	return identity[idx+1:]
}

// RequestOrigin reconstructs the external origin of a request. A proxied
// cloud function sees plain HTTP, so X-Forwarded-Proto wins over the TLS
// state of the local connection.
func RequestOrigin(r *http.Request) string {
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		if r.TLS != nil {
			scheme = "https"
		} else {
			scheme = "http"
		}
	}
	return scheme + "://" + r.Host
}

func writeJSONError(w http.ResponseWriter, status int, errCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   errCode,
		"message": message,
	})
}
