// SPDX-FileCopyrightText: Copyright 2026 Cowork Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package secrets resolves named configuration secrets.
//
// The gateway never talks to a managed secret store directly; it only sees
// the Provider contract. Deployments compose a primary backend (a mounted
// secret volume in the managed case) with an environment-variable fallback,
// and wrap the chain in a read-mostly cache: secret values are idempotent,
// so two cold invocations racing to fetch-and-cache the same name is
// harmless.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/coworkhq/cowork-connector/pkg/logger"
)

// ErrSecretNotFound indicates the provider has no value for the name.
var ErrSecretNotFound = errors.New("secret not found")

// EnvVarPrefix is prepended to upper-cased secret names when reading from
// the environment, e.g. "cowork-signing-secret" -> COWORK_SECRET_COWORK_SIGNING_SECRET.
const EnvVarPrefix = "COWORK_SECRET_"

// Provider describes a type which can resolve secrets by name.
type Provider interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// IsNotFoundError reports whether err indicates a missing secret.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrSecretNotFound)
}

// EnvironmentProvider reads secrets from environment variables. Names are
// upper-cased with '-' replaced by '_' and prefixed with EnvVarPrefix.
type EnvironmentProvider struct {
	prefix string
}

// NewEnvironmentProvider creates a provider backed by process environment.
func NewEnvironmentProvider() *EnvironmentProvider {
	return &EnvironmentProvider{prefix: EnvVarPrefix}
}

// GetSecret implements Provider.
func (p *EnvironmentProvider) GetSecret(_ context.Context, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("secret name cannot be empty")
	}
	key := p.prefix + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
	}
	return value, nil
}

// FileProvider reads secrets from files in a directory, one file per secret
// name. This is the shape a managed secret store presents when mounted into
// a serverless runtime.
type FileProvider struct {
	dir string
}

// NewFileProvider creates a provider reading from dir.
func NewFileProvider(dir string) *FileProvider {
	return &FileProvider{dir: dir}
}

// GetSecret implements Provider. Values are trimmed of trailing whitespace,
// matching how secret volumes materialize values with trailing newlines.
func (p *FileProvider) GetSecret(_ context.Context, name string) (string, error) {
	if name == "" || name != filepath.Base(name) {
		return "", fmt.Errorf("invalid secret name: %q", name)
	}
	data, err := os.ReadFile(filepath.Join(p.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
		}
		return "", fmt.Errorf("failed to read secret %s: %w", name, err)
	}
	value := strings.TrimRight(string(data), "\r\n")
	if value == "" {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
	}
	return value, nil
}

// FallbackProvider wraps a primary provider with environment fallback.
type FallbackProvider struct {
	primary Provider
	env     Provider
}

// NewFallbackProvider creates a provider that consults primary first and
// the environment second.
func NewFallbackProvider(primary Provider) *FallbackProvider {
	return &FallbackProvider{
		primary: primary,
		env:     NewEnvironmentProvider(),
	}
}

// GetSecret implements Provider. Only not-found errors fall through to the
// environment; a failing primary store is surfaced as-is so transient store
// outages are not silently masked by stale environment values.
func (f *FallbackProvider) GetSecret(ctx context.Context, name string) (string, error) {
	value, err := f.primary.GetSecret(ctx, name)
	if err == nil {
		return value, nil
	}
	if !IsNotFoundError(err) {
		return "", err
	}

	value, envErr := f.env.GetSecret(ctx, name)
	if envErr == nil {
		logger.Debugf("secret %q resolved from environment fallback", name)
		return value, nil
	}
	return "", err
}

// CachedProvider memoizes successful lookups by name. Failures are not
// cached; a request that hit a transient store error retries on the next
// invocation.
type CachedProvider struct {
	inner Provider

	mu    sync.RWMutex
	cache map[string]string
}

// NewCachedProvider wraps inner with a process-lifetime cache.
func NewCachedProvider(inner Provider) *CachedProvider {
	return &CachedProvider{
		inner: inner,
		cache: make(map[string]string),
	}
}

// GetSecret implements Provider.
func (c *CachedProvider) GetSecret(ctx context.Context, name string) (string, error) {
	c.mu.RLock()
	value, ok := c.cache[name]
	c.mu.RUnlock()
	if ok {
		return value, nil
	}

	value, err := c.inner.GetSecret(ctx, name)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.cache[name] = value
	c.mu.Unlock()
	return value, nil
}

// NewDefault composes the standard chain: optional file-backed primary,
// environment fallback, read-mostly cache. secretsDir may be empty, in
// which case only the environment is consulted.
func NewDefault(secretsDir string) Provider {
	var chain Provider
	if secretsDir != "" {
		chain = NewFallbackProvider(NewFileProvider(secretsDir))
	} else {
		chain = NewEnvironmentProvider()
	}
	return NewCachedProvider(chain)
}
