// SPDX-FileCopyrightText: Copyright 2026 Cowork Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package server assembles the gateway's HTTP surface: the OAuth
// authorization endpoints and discovery documents (unauthenticated), the
// MCP endpoint behind the request gate, and a health check.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/coworkhq/cowork-connector/pkg/auth"
	"github.com/coworkhq/cowork-connector/pkg/authserver"
	"github.com/coworkhq/cowork-connector/pkg/logger"
)

const (
	middlewareTimeout = 60 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Router builds the gateway router.
//
// The discovery and authorization endpoints are deliberately outside the
// gate: a client arrives at them precisely because it has no token yet.
// Only the MCP endpoint is protected.
func Router(authSrv *authserver.Server, gate *auth.Gate, mcpHandler http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Timeout(middlewareTimeout),
	)

	// Discovery handlers answer OPTIONS preflights themselves, so they are
	// registered for all methods.
	r.HandleFunc("/.well-known/oauth-protected-resource", authSrv.ProtectedResourceHandler)
	r.HandleFunc("/.well-known/oauth-authorization-server", authSrv.AuthorizationServerHandler)

	r.Get("/authorize", authSrv.AuthorizeHandler)
	r.Get("/callback", authSrv.CallbackHandler)
	r.Post("/token", authSrv.TokenHandler)
	r.Post("/signin/token", authSrv.SignInHandler)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.With(gate.Middleware).Handle(auth.ResourcePath, mcpHandler)

	return r
}

// Serve runs the HTTP server on address until ctx is cancelled, then shuts
// down gracefully. The caller sets up signal handling.
func Serve(ctx context.Context, address string, handler http.Handler) error {
	srv := &http.Server{
		BaseContext:       func(net.Listener) context.Context { return ctx },
		Addr:              address,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("starting gateway server on %s", address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server stopped with error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	logger.Info("gateway server stopped")
	return nil
}
