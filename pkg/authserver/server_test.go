// SPDX-FileCopyrightText: Copyright 2026 Cowork Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coworkhq/cowork-connector/pkg/auth/authcode"
	"github.com/coworkhq/cowork-connector/pkg/auth/pkce"
	"github.com/coworkhq/cowork-connector/pkg/auth/token"
)

var testConfig = Config{
	ConnectorClientID:     "cowork-connector",
	ConnectorClientSecret: "connector-secret",
	SigningSecret:         []byte("authserver-test-secret"),
	AllowedDomains:        []string{"sentry.io", "getsentry.com"},
}

// fakeIDP stands in for the upstream identity provider.
type fakeIDP struct {
	identity  string
	err       error
	lastState string
}

func (f *fakeIDP) AuthorizationURL(state string) string {
	f.lastState = state
	return "https://idp.example/auth?state=" + url.QueryEscape(state)
}

func (f *fakeIDP) Identity(_ context.Context, code string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if code != "upstream-code" {
		return "", assert.AnError
	}
	return f.identity, nil
}

func newTestServer(idp *fakeIDP, opts ...Option) *httptest.Server {
	s := New(testConfig, idp, opts...)
	mux := http.NewServeMux()
	s.Routes(mux)
	return httptest.NewServer(mux)
}

func oauthErrorBody(t *testing.T, resp *http.Response) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

// noRedirectClient returns redirects to the caller instead of following them.
func noRedirectClient(srv *httptest.Server) *http.Client {
	c := srv.Client()
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return c
}

func authorizeURL(base string, override func(url.Values)) string {
	q := url.Values{
		"client_id":             {"cowork-connector"},
		"redirect_uri":          {"https://client.example/cb"},
		"response_type":         {"code"},
		"state":                 {"client-state"},
		"code_challenge":        {"E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"},
		"code_challenge_method": {"S256"},
		"resource":              {"https://host.example/mcp"},
	}
	if override != nil {
		override(q)
	}
	return base + "/authorize?" + q.Encode()
}

func TestDiscoveryDocuments(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&fakeIDP{})
	defer srv.Close()
	origin := srv.URL

	resp, err := srv.Client().Get(origin + "/.well-known/oauth-protected-resource")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	var prm ProtectedResourceMetadata
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&prm))
	assert.Equal(t, origin+"/mcp", prm.Resource)
	assert.Equal(t, []string{origin}, prm.AuthorizationServers)

	resp, err = srv.Client().Get(origin + "/.well-known/oauth-authorization-server")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var asm AuthorizationServerMetadata
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&asm))
	assert.Equal(t, origin, asm.Issuer)
	assert.Equal(t, origin+"/authorize", asm.AuthorizationEndpoint)
	assert.Equal(t, origin+"/token", asm.TokenEndpoint)
	assert.Equal(t, []string{"authorization_code"}, asm.GrantTypesSupported)
	assert.Equal(t, []string{"code"}, asm.ResponseTypesSupported)
	assert.Equal(t, []string{"S256"}, asm.CodeChallengeMethodsSupported)
	assert.True(t, asm.ResourceParameterSupported)
	assert.NotNil(t, asm.ScopesSupported)
	assert.Empty(t, asm.ScopesSupported)
}

func TestAuthorizeRedirectsToIDP(t *testing.T) {
	t.Parallel()

	idp := &fakeIDP{}
	srv := newTestServer(idp)
	defer srv.Close()

	resp, err := noRedirectClient(srv).Get(authorizeURL(srv.URL, nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusFound, resp.StatusCode)
	location := resp.Header.Get("Location")
	assert.True(t, strings.HasPrefix(location, "https://idp.example/auth?"), location)

	// The state blob must round-trip back to the original parameters.
	blob, err := decodeState(idp.lastState)
	require.NoError(t, err)
	assert.Equal(t, "https://client.example/cb", blob.RedirectURI)
	assert.Equal(t, "client-state", blob.State)
	assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", blob.CodeChallenge)
	assert.Equal(t, "https://host.example/mcp", blob.Resource)
}

func TestAuthorizeValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		override  func(url.Values)
		wantError string
	}{
		{
			name:      "unknown client",
			override:  func(q url.Values) { q.Set("client_id", "other") },
			wantError: ErrorUnauthorizedClient,
		},
		{
			name:      "missing redirect_uri",
			override:  func(q url.Values) { q.Del("redirect_uri") },
			wantError: ErrorInvalidRequest,
		},
		{
			name:      "missing state",
			override:  func(q url.Values) { q.Del("state") },
			wantError: ErrorInvalidRequest,
		},
		{
			name:      "wrong response_type",
			override:  func(q url.Values) { q.Set("response_type", "token") },
			wantError: ErrorInvalidRequest,
		},
		{
			name:      "missing code_challenge",
			override:  func(q url.Values) { q.Del("code_challenge") },
			wantError: ErrorInvalidRequest,
		},
		{
			name:      "plain challenge method",
			override:  func(q url.Values) { q.Set("code_challenge_method", "plain") },
			wantError: ErrorInvalidRequest,
		},
		{
			name:      "missing resource",
			override:  func(q url.Values) { q.Del("resource") },
			wantError: ErrorInvalidRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := newTestServer(&fakeIDP{})
			defer srv.Close()

			resp, err := noRedirectClient(srv).Get(authorizeURL(srv.URL, tt.override))
			require.NoError(t, err)
			defer resp.Body.Close()

			status := http.StatusBadRequest
			assert.Equal(t, status, resp.StatusCode)
			assert.Equal(t, tt.wantError, oauthErrorBody(t, resp)["error"])
		})
	}
}

func callbackURL(base string, blob stateBlob) string {
	encoded, _ := encodeState(blob)
	return base + "/callback?code=upstream-code&state=" + url.QueryEscape(encoded)
}

func defaultBlob() stateBlob {
	return stateBlob{
		RedirectURI:   "https://client.example/cb",
		State:         "client-state",
		CodeChallenge: "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
		Resource:      "https://host.example/mcp",
	}
}

func TestCallbackIssuesCode(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&fakeIDP{identity: "alice@sentry.io"})
	defer srv.Close()

	resp, err := noRedirectClient(srv).Get(callbackURL(srv.URL, defaultBlob()))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusFound, resp.StatusCode)
	redirect, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "client.example", redirect.Host)
	assert.Equal(t, "client-state", redirect.Query().Get("state"))

	// The code must verify against the same signing secret and carry the
	// identity, challenge, and resource from the flow.
	issuer := authcode.NewIssuer(testConfig.SigningSecret)
	payload, err := issuer.Verify(redirect.Query().Get("code"))
	require.NoError(t, err)
	assert.Equal(t, "alice@sentry.io", payload.Identity)
	assert.Equal(t, defaultBlob().CodeChallenge, payload.CodeChallenge)
	assert.Equal(t, defaultBlob().Resource, payload.Resource)
}

func TestCallbackDeniesDisallowedDomain(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&fakeIDP{identity: "user@gmail.com"})
	defer srv.Close()

	resp, err := noRedirectClient(srv).Get(callbackURL(srv.URL, defaultBlob()))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	body := oauthErrorBody(t, resp)
	assert.Equal(t, "access_denied", body["error"])
	assert.Contains(t, body["error_description"], "gmail.com")
}

func TestCallbackBadState(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&fakeIDP{identity: "alice@sentry.io"})
	defer srv.Close()

	resp, err := noRedirectClient(srv).Get(srv.URL + "/callback?code=upstream-code&state=%21%21%21")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCallbackUpstreamFailure(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&fakeIDP{err: assert.AnError})
	defer srv.Close()

	resp, err := noRedirectClient(srv).Get(callbackURL(srv.URL, defaultBlob()))
	require.NoError(t, err)
	defer resp.Body.Close()

	// Generic message only; the cause stays in server logs.
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	body := oauthErrorBody(t, resp)
	assert.Equal(t, ErrorServerError, body["error"])
	assert.NotContains(t, body["error_description"], assert.AnError.Error())
}

// tokenForm builds a valid token-exchange form for the given code/verifier.
func tokenForm(code, verifier, resource string) url.Values {
	return url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"code_verifier": {verifier},
		"client_id":     {"cowork-connector"},
		"client_secret": {"connector-secret"},
		"redirect_uri":  {"https://client.example/cb"},
		"resource":      {resource},
	}
}

func mintCode(t *testing.T, verifier, resource string) string {
	t.Helper()
	issuer := authcode.NewIssuer(testConfig.SigningSecret)
	code, err := issuer.Generate("alice@sentry.io", pkce.Challenge(verifier), resource)
	require.NoError(t, err)
	return code
}

func TestTokenExchangeHappyPath(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&fakeIDP{})
	defer srv.Close()

	verifier, err := pkce.GenerateVerifier()
	require.NoError(t, err)
	resource := "https://host.example/mcp"
	code := mintCode(t, verifier, resource)

	resp, err := srv.Client().PostForm(srv.URL+"/token", tokenForm(code, verifier, resource))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var tr TokenResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tr))
	assert.Equal(t, "Bearer", tr.TokenType)
	assert.EqualValues(t, int64(token.TTL.Seconds()), tr.ExpiresIn)

	// The minted token is audience-bound to the resource from the code.
	identity, err := token.NewOAuthIssuer(testConfig.SigningSecret, "").Verify(tr.AccessToken, resource)
	require.NoError(t, err)
	assert.Equal(t, "alice@sentry.io", identity)
}

func TestTokenExchangeValidation(t *testing.T) {
	t.Parallel()

	verifier, err := pkce.GenerateVerifier()
	require.NoError(t, err)
	otherVerifier, err := pkce.GenerateVerifier()
	require.NoError(t, err)
	resource := "https://host.example/mcp"

	tests := []struct {
		name       string
		form       func(t *testing.T) url.Values
		wantStatus int
		wantError  string
	}{
		{
			name: "wrong grant type",
			form: func(t *testing.T) url.Values {
				f := tokenForm(mintCode(t, verifier, resource), verifier, resource)
				f.Set("grant_type", "client_credentials")
				return f
			},
			wantStatus: http.StatusBadRequest,
			wantError:  ErrorUnsupportedGrantType,
		},
		{
			name: "missing code_verifier",
			form: func(t *testing.T) url.Values {
				f := tokenForm(mintCode(t, verifier, resource), verifier, resource)
				f.Del("code_verifier")
				return f
			},
			wantStatus: http.StatusBadRequest,
			wantError:  ErrorInvalidRequest,
		},
		{
			name: "missing resource",
			form: func(t *testing.T) url.Values {
				f := tokenForm(mintCode(t, verifier, resource), verifier, resource)
				f.Del("resource")
				return f
			},
			wantStatus: http.StatusBadRequest,
			wantError:  ErrorInvalidRequest,
		},
		{
			name: "wrong client secret",
			form: func(t *testing.T) url.Values {
				f := tokenForm(mintCode(t, verifier, resource), verifier, resource)
				f.Set("client_secret", "wrong")
				return f
			},
			wantStatus: http.StatusUnauthorized,
			wantError:  ErrorInvalidClient,
		},
		{
			name: "garbage code",
			form: func(*testing.T) url.Values {
				return tokenForm("garbage", verifier, resource)
			},
			wantStatus: http.StatusBadRequest,
			wantError:  ErrorInvalidGrant,
		},
		{
			name: "pkce mismatch",
			form: func(t *testing.T) url.Values {
				return tokenForm(mintCode(t, verifier, resource), otherVerifier, resource)
			},
			wantStatus: http.StatusBadRequest,
			wantError:  ErrorInvalidGrant,
		},
		{
			name: "resource mismatch",
			form: func(t *testing.T) url.Values {
				return tokenForm(mintCode(t, verifier, resource), verifier, "https://other.example/mcp")
			},
			wantStatus: http.StatusBadRequest,
			wantError:  ErrorInvalidTarget,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := newTestServer(&fakeIDP{})
			defer srv.Close()

			resp, err := srv.Client().PostForm(srv.URL+"/token", tt.form(t))
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantError, oauthErrorBody(t, resp)["error"])
		})
	}
}

func TestTokenExchangeExpiredCode(t *testing.T) {
	t.Parallel()

	verifier, err := pkce.GenerateVerifier()
	require.NoError(t, err)
	resource := "https://host.example/mcp"

	past := time.Now().Add(-authcode.TTL - time.Minute)
	issuer := authcode.NewIssuer(testConfig.SigningSecret,
		authcode.WithClock(func() time.Time { return past }))
	code, err := issuer.Generate("alice@sentry.io", pkce.Challenge(verifier), resource)
	require.NoError(t, err)

	srv := newTestServer(&fakeIDP{})
	defer srv.Close()

	resp, err := srv.Client().PostForm(srv.URL+"/token", tokenForm(code, verifier, resource))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := oauthErrorBody(t, resp)
	assert.Equal(t, ErrorInvalidGrant, body["error"])
	assert.Contains(t, body["error_description"], "expired")
}

func TestSignInIssuesLegacyToken(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&fakeIDP{})
	defer srv.Close()

	form := url.Values{
		"client_id":     {"cowork-connector"},
		"client_secret": {"connector-secret"},
		"email":         {"bob@getsentry.com"},
	}
	resp, err := srv.Client().PostForm(srv.URL+"/signin/token", form)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var tr TokenResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tr))

	identity, err := token.NewLegacyIssuer(testConfig.SigningSecret).Verify(tr.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "bob@getsentry.com", identity)
}

func TestSignInRejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		form       url.Values
		wantStatus int
	}{
		{
			name: "bad client secret",
			form: url.Values{
				"client_id":     {"cowork-connector"},
				"client_secret": {"wrong"},
				"email":         {"bob@getsentry.com"},
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "disallowed domain",
			form: url.Values{
				"client_id":     {"cowork-connector"},
				"client_secret": {"connector-secret"},
				"email":         {"user@gmail.com"},
			},
			wantStatus: http.StatusForbidden,
		},
		{
			name: "missing email",
			form: url.Values{
				"client_id":     {"cowork-connector"},
				"client_secret": {"connector-secret"},
			},
			wantStatus: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := newTestServer(&fakeIDP{})
			defer srv.Close()

			resp, err := srv.Client().PostForm(srv.URL+"/signin/token", tt.form)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}
