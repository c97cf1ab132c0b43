// SPDX-FileCopyrightText: Copyright 2026 Cowork Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package token issues and verifies the two access-token variants accepted
// by the gateway.
//
// The OAuth variant is an HS256 JWT with sub/aud/iss/iat/exp claims, bound
// to the exact resource URI it was requested for. The legacy variant is a
// signed envelope of identity plus expiry, with no audience binding; it is
// minted by the simplified sign-in flow and kept for older deployments.
//
// Both variants share the process-wide signing secret. Rotating that secret
// is the only revocation mechanism: every outstanding credential of both
// kinds becomes invalid at once.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/coworkhq/cowork-connector/pkg/envelope"
)

// TTL is the validity window for access tokens of both variants.
const TTL = 365 * 24 * time.Hour

// Common errors.
var (
	// ErrInvalidToken covers signature, parse, and claim-shape failures.
	ErrInvalidToken = errors.New("invalid access token")

	// ErrInvalidAudience indicates a valid signature but an audience claim
	// that does not match the resource the request arrived at.
	ErrInvalidAudience = errors.New("invalid token audience")

	// ErrExpired indicates the token aged out.
	ErrExpired = errors.New("access token expired")
)

// OAuthIssuer mints and verifies audience-bound JWT access tokens.
type OAuthIssuer struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// OAuthOption configures an OAuthIssuer.
type OAuthOption func(*OAuthIssuer)

// WithOAuthClock overrides the time source. Intended for tests.
func WithOAuthClock(now func() time.Time) OAuthOption {
	return func(i *OAuthIssuer) {
		i.now = now
	}
}

// NewOAuthIssuer creates an issuer for JWT access tokens. issuerOrigin is
// this authorization server's origin and becomes the iss claim.
func NewOAuthIssuer(secret []byte, issuerOrigin string, opts ...OAuthOption) *OAuthIssuer {
	i := &OAuthIssuer{
		secret: secret,
		issuer: issuerOrigin,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Generate mints a bearer token for identity, valid only for resource.
func (i *OAuthIssuer) Generate(identity, resource string) (string, error) {
	now := i.now()
	claims := jwt.MapClaims{
		"sub": identity,
		"aud": resource,
		"iss": i.issuer,
		"iat": now.Unix(),
		"exp": now.Add(TTL).Unix(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, audience, and expiry, and returns the subject
// identity. expectedAudience must be the exact resource URI computed from
// the inbound request; any other audience is rejected even when the
// signature is valid.
func (i *OAuthIssuer) Verify(tokenString, expectedAudience string) (string, error) {
	parsed, err := jwt.Parse(
		tokenString,
		func(t *jwt.Token) (any, error) {
			return i.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(expectedAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return "", ErrExpired
		case errors.Is(err, jwt.ErrTokenInvalidAudience):
			return "", ErrInvalidAudience
		default:
			return "", ErrInvalidToken
		}
	}

	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", ErrInvalidToken
	}
	return sub, nil
}

// LegacyPayload is the content of a legacy access token.
type LegacyPayload struct {
	Identity  string `json:"identity"`
	ExpiresAt int64  `json:"expiresAt"`
}

// LegacyIssuer mints and verifies legacy identity+expiry tokens.
type LegacyIssuer struct {
	codec *envelope.Codec
	now   func() time.Time
}

// LegacyOption configures a LegacyIssuer.
type LegacyOption func(*LegacyIssuer)

// WithLegacyClock overrides the time source. Intended for tests.
func WithLegacyClock(now func() time.Time) LegacyOption {
	return func(i *LegacyIssuer) {
		i.now = now
	}
}

// NewLegacyIssuer creates an issuer for legacy access tokens.
func NewLegacyIssuer(secret []byte, opts ...LegacyOption) *LegacyIssuer {
	i := &LegacyIssuer{now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	i.codec = envelope.New(secret, envelope.WithClock(func() time.Time { return i.now() }))
	return i
}

// Generate mints a legacy bearer token for identity. No audience binding.
func (i *LegacyIssuer) Generate(identity string) (string, error) {
	tok, err := i.codec.Encode(LegacyPayload{
		Identity:  identity,
		ExpiresAt: i.now().Add(TTL).Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate legacy token: %w", err)
	}
	return tok, nil
}

// Verify checks signature and expiry and returns the identity.
func (i *LegacyIssuer) Verify(tokenString string) (string, error) {
	var p LegacyPayload
	if err := i.codec.Decode(tokenString, &p); err != nil {
		if errors.Is(err, envelope.ErrExpired) {
			return "", ErrExpired
		}
		return "", ErrInvalidToken
	}
	if p.Identity == "" {
		return "", ErrInvalidToken
	}
	return p.Identity, nil
}
