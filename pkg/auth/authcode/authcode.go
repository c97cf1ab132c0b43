// SPDX-FileCopyrightText: Copyright 2026 Cowork Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package authcode issues and verifies short-lived authorization codes.
//
// A code is a signed envelope carrying the authenticated identity, the PKCE
// challenge it is bound to, and the resource the eventual access token will
// be scoped to. The server keeps no side table: the code is self-contained
// and replay resistance comes from the 10-minute TTL. The nonce only makes
// codes minted in the same instant distinct and unpredictable; it is not
// tracked for single-use enforcement.
package authcode

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/coworkhq/cowork-connector/pkg/envelope"
)

// TTL is the validity window for authorization codes.
const TTL = 10 * time.Minute

// Payload is the content of an authorization code.
type Payload struct {
	Identity      string `json:"identity"`
	ExpiresAt     int64  `json:"expiresAt"`
	Nonce         string `json:"nonce"`
	CodeChallenge string `json:"codeChallenge"`
	Resource      string `json:"resource"`
}

// Issuer mints and verifies authorization codes with a shared secret.
type Issuer struct {
	codec *envelope.Codec
	now   func() time.Time
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		i.now = now
	}
}

// NewIssuer creates an Issuer signing with the given secret.
func NewIssuer(secret []byte, opts ...Option) *Issuer {
	i := &Issuer{now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	i.codec = envelope.New(secret, envelope.WithClock(func() time.Time { return i.now() }))
	return i
}

// Generate mints a code binding identity to the PKCE challenge and resource.
func (i *Issuer) Generate(identity, codeChallenge, resource string) (string, error) {
	code, err := i.codec.Encode(Payload{
		Identity:      identity,
		ExpiresAt:     i.now().Add(TTL).Unix(),
		Nonce:         uuid.NewString(),
		CodeChallenge: codeChallenge,
		Resource:      resource,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate authorization code: %w", err)
	}
	return code, nil
}

// Verify checks the code's signature and expiry and returns its payload.
// The caller is responsible for the PKCE and resource comparisons; those
// require request parameters this package never sees.
func (i *Issuer) Verify(code string) (*Payload, error) {
	var p Payload
	if err := i.codec.Decode(code, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
