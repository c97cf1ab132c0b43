// SPDX-FileCopyrightText: Copyright 2026 Cowork Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/coworkhq/cowork-connector/pkg/secrets"
)

// Secrets holds the resolved secret values. It is built once at startup
// and treated as read-only afterwards.
type Secrets struct {
	Signing         []byte
	ConnectorClient string
	IDPClient       string
	APIToken        string
}

// ResolveSecrets fetches all named secrets through provider. Fetches run
// concurrently; the first failure cancels the rest and is returned with
// the secret's name attached.
func ResolveSecrets(ctx context.Context, provider secrets.Provider) (*Secrets, error) {
	var signing, connector, idpClient, apiToken string

	fetch := func(name string, dst *string) func() error {
		return func() error {
			value, err := provider.GetSecret(ctx, name)
			if err != nil {
				return fmt.Errorf("failed to resolve secret %s: %w", name, err)
			}
			*dst = value
			return nil
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(fetch(SecretSigning, &signing))
	g.Go(fetch(SecretConnectorClient, &connector))
	g.Go(fetch(SecretIDPClient, &idpClient))
	g.Go(fetch(SecretAPIToken, &apiToken))
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Secrets{
		Signing:         []byte(signing),
		ConnectorClient: connector,
		IDPClient:       idpClient,
		APIToken:        apiToken,
	}, nil
}
