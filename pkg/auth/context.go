// SPDX-FileCopyrightText: Copyright 2026 Cowork Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package auth implements the per-request gate deciding whether an inbound
// call carries a valid bearer credential and an allow-listed identity.
package auth

import (
	"context"
)

// Variant tags which token format established the caller's identity.
type Variant string

// Token variants accepted by the gate.
const (
	VariantOAuth  Variant = "oauth"
	VariantLegacy Variant = "legacy"
)

// Credential is the outcome of successful verification: the established
// identity plus the variant that produced it. There is deliberately no
// richer claim set; the gateway only ever needs the email identity.
type Credential struct {
	// Identity is the verified email address of the caller.
	Identity string

	// Variant records which verification path accepted the token.
	Variant Variant
}

// CredentialContextKey is the key used to store the Credential in the
// request context. An empty struct type prevents collisions with other
// packages' context keys.
type CredentialContextKey struct{}

// WithCredential stores a Credential in the context.
func WithCredential(ctx context.Context, cred *Credential) context.Context {
	if cred == nil {
		return ctx
	}
	return context.WithValue(ctx, CredentialContextKey{}, cred)
}

// CredentialFromContext retrieves the Credential placed by the gate.
// Returns the credential and true if present, nil and false otherwise.
func CredentialFromContext(ctx context.Context) (*Credential, bool) {
	cred, ok := ctx.Value(CredentialContextKey{}).(*Credential)
	return cred, ok
}
