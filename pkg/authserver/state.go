// SPDX-FileCopyrightText: Copyright 2026 Cowork Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// stateBlob carries the client's authorization-request parameters through
// the round trip to the upstream identity provider, as the provider's own
// state parameter.
//
// It is deliberately unsigned: every field is re-validated downstream (the
// PKCE challenge at token exchange, the resource by exact comparison, the
// identity by the domain allow-list), so tampering with the blob gains an
// attacker nothing.
type stateBlob struct {
	RedirectURI   string `json:"redirectUri"`
	State         string `json:"state"`
	CodeChallenge string `json:"codeChallenge"`
	Resource      string `json:"resource"`
}

func encodeState(blob stateBlob) (string, error) {
	data, err := json.Marshal(blob)
	if err != nil {
		return "", fmt.Errorf("failed to marshal state blob: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

func decodeState(encoded string) (*stateBlob, error) {
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("state parameter is not valid base64url: %w", err)
	}
	var blob stateBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		return nil, fmt.Errorf("state parameter is not a valid blob: %w", err)
	}
	if blob.RedirectURI == "" {
		return nil, fmt.Errorf("state blob missing redirect URI")
	}
	return &blob, nil
}
