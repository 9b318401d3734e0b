// Copyright (c) Openident.
// Licensed under the MIT license.

package public

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/openident/authentication-library-for-go/apps/internal/mock"
)

const (
	testClientID    = "client-id"
	testAuthority   = "https://issuer.example.com/contoso"
	testRedirectURI = "http://localhost:8080/callback"
)

var jsonHeader = http.Header{"Content-Type": []string{"application/json; charset=utf-8"}}

func TestNewValidatesAuthority(t *testing.T) {
	tests := []struct {
		desc      string
		authority string
		err       bool
	}{
		{desc: "https authority", authority: testAuthority},
		{desc: "http is rejected", authority: "http://issuer.example.com/contoso", err: true},
		{desc: "empty is rejected", authority: "", err: true},
	}

	for _, test := range tests {
		_, err := New(testClientID, WithAuthority(test.authority), WithHTTPClient(mock.NewClient()))
		if test.err && err == nil {
			t.Errorf("TestNewValidatesAuthority(%s): got err == nil, want err != nil", test.desc)
		}
		if !test.err && err != nil {
			t.Errorf("TestNewValidatesAuthority(%s): got err == %v, want err == nil", test.desc, err)
		}
	}
}

func TestAuthorizationCodeFlow(t *testing.T) {
	httpClient := mock.NewClient()
	client, err := New(testClientID,
		WithAuthority(testAuthority),
		WithRedirectURI(testRedirectURI),
		WithHTTPClient(httpClient),
	)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	// Building the URL triggers endpoint discovery.
	httpClient.AppendResponse(
		mock.WithBody(mock.GetOpenIDConfigurationBody(testAuthority)),
		mock.WithHTTPHeader(jsonHeader),
	)
	authURL, err := client.CreateAuthCodeURL(ctx, []string{"s1", "s2"}, WithAppState("app-state"))
	if err != nil {
		t.Fatalf("TestAuthorizationCodeFlow: CreateAuthCodeURL: %v", err)
	}

	u, err := url.Parse(authURL)
	if err != nil {
		t.Fatal(err)
	}
	state := u.Query().Get("state")
	nonce := u.Query().Get("nonce")
	if state == "" || nonce == "" {
		t.Fatalf("TestAuthorizationCodeFlow: missing state or nonce in %q", authURL)
	}

	// The user agent comes back with a fragment carrying the code.
	redirect := testRedirectURI + "#code=the-code&state=" + url.QueryEscape(state)
	code, err := client.ParseAuthorizationResponse(redirect)
	if err != nil {
		t.Fatalf("TestAuthorizationCodeFlow: ParseAuthorizationResponse: %v", err)
	}
	if code.AppState() != "app-state" {
		t.Errorf("TestAuthorizationCodeFlow: app state: got %q, want app-state", code.AppState())
	}

	// Exchange the code. The ID token must echo the request's nonce.
	idToken := mock.GetIDToken("https://issuer.example.com/contoso", "sub", "oid-value", "user@contoso.com", nonce)
	clientInfo := mock.GetClientInfo("uid", "utid")
	var tokenForm url.Values
	httpClient.AppendResponse(
		mock.WithBody(mock.GetTokenResponseBody("access-token", idToken, "refresh-token", clientInfo, "s1 s2", 3600)),
		mock.WithHTTPHeader(jsonHeader),
		mock.WithCallback(func(r *http.Request) {
			b, _ := io.ReadAll(r.Body)
			tokenForm, _ = url.ParseQuery(string(b))
		}),
	)

	result, err := client.AcquireTokenByAuthCode(ctx, code)
	if err != nil {
		t.Fatalf("TestAuthorizationCodeFlow: AcquireTokenByAuthCode: %v", err)
	}

	if result.AccessToken != "access-token" {
		t.Errorf("TestAuthorizationCodeFlow: access token: got %q", result.AccessToken)
	}
	if result.Account.PreferredUsername != "user@contoso.com" {
		t.Errorf("TestAuthorizationCodeFlow: username: got %q", result.Account.PreferredUsername)
	}
	if tokenForm.Get("grant_type") != "authorization_code" {
		t.Errorf("TestAuthorizationCodeFlow: grant_type: got %q", tokenForm.Get("grant_type"))
	}
	if tokenForm.Get("code_verifier") == "" {
		t.Error("TestAuthorizationCodeFlow: exchange did not carry a PKCE verifier")
	}

	// The identity is now the current account and silent calls work from cache.
	account := client.CurrentAccount(ctx)
	if account.HomeAccountID != "uid.utid" {
		t.Errorf("TestAuthorizationCodeFlow: home account id: got %q", account.HomeAccountID)
	}

	silent, err := client.AcquireTokenSilent(ctx, []string{"s1"}, WithSilentAccount(account))
	if err != nil {
		t.Fatalf("TestAuthorizationCodeFlow: AcquireTokenSilent: %v", err)
	}
	if silent.AccessToken != "access-token" {
		t.Errorf("TestAuthorizationCodeFlow: silent access token: got %q", silent.AccessToken)
	}

	// Sign out wipes the identity.
	if err := client.SignOut(ctx, account); err != nil {
		t.Fatalf("TestAuthorizationCodeFlow: SignOut: %v", err)
	}
	if got := client.Accounts(ctx); len(got) != 0 {
		t.Errorf("TestAuthorizationCodeFlow: accounts remain after sign out: %v", got)
	}
}

func TestAcquireTokenByAuthCodeServerError(t *testing.T) {
	httpClient := mock.NewClient()
	client, err := New(testClientID,
		WithAuthority(testAuthority),
		WithRedirectURI(testRedirectURI),
		WithHTTPClient(httpClient),
	)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	httpClient.AppendResponse(
		mock.WithBody(mock.GetOpenIDConfigurationBody(testAuthority)),
		mock.WithHTTPHeader(jsonHeader),
	)
	authURL, err := client.CreateAuthCodeURL(ctx, []string{"s1"})
	if err != nil {
		t.Fatal(err)
	}
	u, _ := url.Parse(authURL)
	state := u.Query().Get("state")

	httpClient.AppendResponse(
		mock.WithBody(mock.GetTokenErrorBody("invalid_grant", "the code expired")),
		mock.WithHTTPHeader(jsonHeader),
		mock.WithHTTPStatusCode(http.StatusBadRequest),
	)

	_, err = client.AcquireTokenByAuthCode(ctx, CodeResponse{Code: "bad-code", State: state})
	if err == nil {
		t.Fatal("TestAcquireTokenByAuthCodeServerError: got err == nil, want err != nil")
	}
	if !strings.Contains(err.Error(), "invalid_grant") {
		t.Errorf("TestAcquireTokenByAuthCodeServerError: error does not name the server code: %v", err)
	}
}

func TestParseAuthorizationResponseDenied(t *testing.T) {
	client, err := New(testClientID,
		WithAuthority(testAuthority),
		WithHTTPClient(mock.NewClient()),
	)
	if err != nil {
		t.Fatal(err)
	}

	_, err = client.ParseAuthorizationResponse(testRedirectURI + "#error=access_denied&error_description=user+cancelled")
	if err == nil {
		t.Fatal("TestParseAuthorizationResponseDenied: got err == nil, want err != nil")
	}
}
