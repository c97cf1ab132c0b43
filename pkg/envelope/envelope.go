// SPDX-FileCopyrightText: Copyright 2026 Cowork Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package envelope implements a tamper-evident, URL-transportable encoding
// for small JSON payloads. A token is
//
//	base64url(json(payload)) + "." + base64url(HMAC-SHA256(json(payload), secret))
//
// Decoding fails closed: a missing separator, malformed base64, unparseable
// JSON, or a signature mismatch are all reported as ErrInvalidSignature so
// that callers cannot distinguish a forged token from a corrupted one.
package envelope

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Common errors returned by Decode.
var (
	// ErrInvalidSignature covers every parse or verification failure that is
	// not an expiry: tampered signature, truncated token, malformed payload.
	ErrInvalidSignature = errors.New("invalid envelope signature")

	// ErrExpired indicates the payload carried an expiresAt in the past.
	// The signature was valid; the credential has simply aged out.
	ErrExpired = errors.New("envelope expired")
)

// expiresAtField is the optional payload field checked during Decode.
// Values are Unix seconds.
const expiresAtField = "expiresAt"

// Codec encodes and decodes signed envelopes with a fixed secret.
type Codec struct {
	secret []byte
	now    func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithClock overrides the time source used for expiry checks.
// Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

// New creates a Codec signing with the given secret.
func New(secret []byte, opts ...Option) *Codec {
	c := &Codec{
		secret: secret,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Encode serializes payload to JSON and returns the signed token.
func (c *Codec) Encode(payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal envelope payload: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(data) +
		"." +
		base64.RawURLEncoding.EncodeToString(c.sign(data)), nil
}

// Decode verifies the token's signature and expiry, then unmarshals the
// payload into v. It has no side effects and never panics on bad input.
func (c *Codec) Decode(token string, v any) error {
	payloadPart, sigPart, ok := strings.Cut(token, ".")
	if !ok || strings.Contains(sigPart, ".") {
		return ErrInvalidSignature
	}

	// Strict decoding rejects non-canonical trailing bits, so two distinct
	// encoded strings can never alias to the same signature bytes.
	payload, err := base64.RawURLEncoding.Strict().DecodeString(payloadPart)
	if err != nil {
		return ErrInvalidSignature
	}
	sig, err := base64.RawURLEncoding.Strict().DecodeString(sigPart)
	if err != nil {
		return ErrInvalidSignature
	}

	// Constant-time compare so signature verification leaks no timing signal.
	if subtle.ConstantTimeCompare(c.sign(payload), sig) != 1 {
		return ErrInvalidSignature
	}

	if !gjson.ValidBytes(payload) {
		return ErrInvalidSignature
	}
	if exp := gjson.GetBytes(payload, expiresAtField); exp.Exists() {
		if !c.now().Before(time.Unix(exp.Int(), 0)) {
			return ErrExpired
		}
	}

	if err := json.Unmarshal(payload, v); err != nil {
		return ErrInvalidSignature
	}
	return nil
}

func (c *Codec) sign(data []byte) []byte {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(data)
	return mac.Sum(nil)
}
