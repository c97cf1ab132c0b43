// SPDX-FileCopyrightText: Copyright 2026 Cowork Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coworkhq/cowork-connector/pkg/auth"
	"github.com/coworkhq/cowork-connector/pkg/auth/pkce"
	"github.com/coworkhq/cowork-connector/pkg/auth/token"
	"github.com/coworkhq/cowork-connector/pkg/authserver"
)

var signingSecret = []byte("gateway-e2e-secret")

var gatewayConfig = authserver.Config{
	ConnectorClientID:     "cowork-connector",
	ConnectorClientSecret: "connector-secret",
	SigningSecret:         signingSecret,
	AllowedDomains:        []string{"sentry.io", "getsentry.com"},
}

// fakeIDP authenticates everyone as a fixed identity.
type fakeIDP struct {
	identity  string
	lastState string
}

func (f *fakeIDP) AuthorizationURL(state string) string {
	f.lastState = state
	return "https://idp.example/auth?state=" + url.QueryEscape(state)
}

func (f *fakeIDP) Identity(context.Context, string) (string, error) {
	return f.identity, nil
}

// recordingDownstream captures the gate-verified identity of each call.
type recordingDownstream struct {
	identities []string
}

func (d *recordingDownstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cred, ok := auth.CredentialFromContext(r.Context())
	if !ok {
		http.Error(w, "no credential", http.StatusInternalServerError)
		return
	}
	d.identities = append(d.identities, cred.Identity)
	w.WriteHeader(http.StatusOK)
}

type gateway struct {
	srv        *httptest.Server
	idp        *fakeIDP
	downstream *recordingDownstream
}

func newGateway(t *testing.T) *gateway {
	t.Helper()
	idp := &fakeIDP{identity: "alice@sentry.io"}
	downstream := &recordingDownstream{}
	router := Router(
		authserver.New(gatewayConfig, idp),
		auth.NewGate(signingSecret, gatewayConfig.AllowedDomains),
		downstream,
	)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &gateway{srv: srv, idp: idp, downstream: downstream}
}

func (g *gateway) client() *http.Client {
	c := g.srv.Client()
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return c
}

// obtainToken drives the full authorization-code flow and returns the
// access token. exchangeResource lets a test vary the token-exchange
// resource independently of the authorize-time one.
func (g *gateway) obtainToken(t *testing.T, exchangeResource string) (*http.Response, string) {
	t.Helper()
	origin := g.srv.URL
	resource := origin + auth.ResourcePath

	verifier, err := pkce.GenerateVerifier()
	require.NoError(t, err)

	authorize := origin + "/authorize?" + url.Values{
		"client_id":             {"cowork-connector"},
		"redirect_uri":          {"https://client.example/cb"},
		"response_type":         {"code"},
		"state":                 {"client-state"},
		"code_challenge":        {pkce.Challenge(verifier)},
		"code_challenge_method": {"S256"},
		"resource":              {resource},
	}.Encode()

	resp, err := g.client().Get(authorize)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	// The upstream IdP would now authenticate the user and redirect back.
	resp, err = g.client().Get(origin + "/callback?code=upstream-code&state=" + url.QueryEscape(g.idp.lastState))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	redirect, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "client.example", redirect.Host)
	require.Equal(t, "client-state", redirect.Query().Get("state"))
	code := redirect.Query().Get("code")
	require.NotEmpty(t, code)

	if exchangeResource == "" {
		exchangeResource = resource
	}
	resp, err = g.client().PostForm(origin+"/token", url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"code_verifier": {verifier},
		"client_id":     {"cowork-connector"},
		"client_secret": {"connector-secret"},
		"redirect_uri":  {"https://client.example/cb"},
		"resource":      {exchangeResource},
	})
	require.NoError(t, err)

	if resp.StatusCode != http.StatusOK {
		return resp, ""
	}
	defer resp.Body.Close()
	var tr authserver.TokenResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tr))
	require.NotEmpty(t, tr.AccessToken)
	return resp, tr.AccessToken
}

func (g *gateway) callMCP(t *testing.T, authorization string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, g.srv.URL+auth.ResourcePath, strings.NewReader("{}"))
	require.NoError(t, err)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	resp, err := g.client().Do(req)
	require.NoError(t, err)
	return resp
}

func TestFullAuthorizationFlow(t *testing.T) {
	t.Parallel()

	g := newGateway(t)

	resp, accessToken := g.obtainToken(t, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = g.callMCP(t, "Bearer "+accessToken)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"alice@sentry.io"}, g.downstream.identities)
}

func TestTokenExchangeResourceMismatch(t *testing.T) {
	t.Parallel()

	g := newGateway(t)

	resp, _ := g.obtainToken(t, "https://other.example/mcp")
	defer resp.Body.Close()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, authserver.ErrorInvalidTarget, body["error"])
	assert.Empty(t, g.downstream.identities)
}

func TestMCPWithoutToken(t *testing.T) {
	t.Parallel()

	g := newGateway(t)

	resp := g.callMCP(t, "")
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	wwwAuth := resp.Header.Get("WWW-Authenticate")
	assert.Contains(t, wwwAuth, "resource_metadata=")
	assert.Contains(t, wwwAuth, "/.well-known/oauth-protected-resource")
}

func TestMCPWithExpiredLegacyToken(t *testing.T) {
	t.Parallel()

	g := newGateway(t)

	past := time.Now().Add(-2 * token.TTL)
	issuer := token.NewLegacyIssuer(signingSecret,
		token.WithLegacyClock(func() time.Time { return past }))
	expired, err := issuer.Generate("alice@sentry.io")
	require.NoError(t, err)

	resp := g.callMCP(t, "Bearer "+expired)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, g.downstream.identities)
}

func TestMCPTokenBoundToOtherHost(t *testing.T) {
	t.Parallel()

	g := newGateway(t)

	// Valid signature, wrong audience: minted for another deployment.
	other, err := token.NewOAuthIssuer(signingSecret, "https://other.example").
		Generate("alice@sentry.io", "https://other.example/mcp")
	require.NoError(t, err)

	resp := g.callMCP(t, "Bearer "+other)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	g := newGateway(t)

	resp, err := g.srv.Client().Get(g.srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestServeShutsDownOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, "127.0.0.1:0", http.NewServeMux())
	}()

	// Give the listener a moment to come up, then cancel.
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
