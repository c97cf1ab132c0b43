// SPDX-FileCopyrightText: Copyright 2026 Cowork Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package pkce implements RFC 7636 Proof Key for Code Exchange.
// Only the S256 challenge method is supported, as required by OAuth 2.1.
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// MethodS256 is the only code challenge method this server accepts.
const MethodS256 = "S256"

// RFC 7636 §4.1: a code verifier is 43-128 characters of
// [A-Za-z0-9-._~]. Base64url output satisfies the alphabet.
const (
	minVerifierLength = 43
	maxVerifierLength = 128
)

// Verify reports whether codeVerifier is the preimage of codeChallenge
// under the S256 transformation. Pure function, no state.
func Verify(codeVerifier, codeChallenge string) bool {
	if len(codeVerifier) < minVerifierLength || len(codeVerifier) > maxVerifierLength {
		return false
	}

	expected := Challenge(codeVerifier)

	// Constant-time comparison to prevent timing attacks.
	return subtle.ConstantTimeCompare([]byte(expected), []byte(codeChallenge)) == 1
}

// Challenge computes the S256 code challenge for a verifier.
func Challenge(codeVerifier string) string {
	hash := sha256.Sum256([]byte(codeVerifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// GenerateVerifier creates a cryptographically random code verifier.
// 32 random bytes encode to 43 base64url characters, the RFC minimum.
func GenerateVerifier() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate code verifier: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
