// Copyright (c) Openident.
// Licensed under the MIT license.

package accesstokens

import (
	"encoding/base64"
	"testing"

	oerrors "github.com/openident/authentication-library-for-go/apps/errors"
	"github.com/openident/authentication-library-for-go/apps/internal/oauth/ops/authority"
	"github.com/openident/authentication-library-for-go/apps/internal/scopes"
	"github.com/kylelemons/godebug/pretty"
)

func tokenTestAuthParams(scopeList ...string) authority.AuthParams {
	info := authority.Info{
		Host:                  "issuer.example.com",
		CanonicalAuthorityURI: "https://issuer.example.com/contoso/",
		Tenant:                "contoso",
	}
	params := authority.NewAuthParams("client-id", info)
	params.Scopes = scopes.New(scopeList...)
	return params
}

func rawIDTokenWithClaims(claims string) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(claims))
	return header + "." + payload + ".signature"
}

func TestNewIDToken(t *testing.T) {
	raw := rawIDTokenWithClaims(`{
		"sub": "sub-value",
		"oid": "oid-value",
		"preferred_username": "user@contoso.com",
		"nonce": "nonce-value",
		"tid": "contoso"
	}`)

	got, err := NewIDToken(raw)
	if err != nil {
		t.Fatalf("TestNewIDToken: got err == %v, want err == nil", err)
	}
	if got.Subject != "sub-value" {
		t.Errorf("TestNewIDToken: subject: got %q, want %q", got.Subject, "sub-value")
	}
	if got.Oid != "oid-value" {
		t.Errorf("TestNewIDToken: oid: got %q, want %q", got.Oid, "oid-value")
	}
	if got.PreferredUsername != "user@contoso.com" {
		t.Errorf("TestNewIDToken: preferred_username: got %q", got.PreferredUsername)
	}
	if got.Nonce != "nonce-value" {
		t.Errorf("TestNewIDToken: nonce: got %q", got.Nonce)
	}
	if got.RawToken != raw {
		t.Errorf("TestNewIDToken: raw token was not preserved")
	}
}

func TestNewIDTokenErrors(t *testing.T) {
	tests := []struct {
		desc string
		raw  string
	}{
		{desc: "empty", raw: ""},
		{desc: "not a jwt", raw: "garbage"},
		{desc: "bad payload", raw: "a.!!!.c"},
	}
	for _, test := range tests {
		if _, err := NewIDToken(test.raw); err == nil {
			t.Errorf("TestNewIDTokenErrors(%s): got err == nil, want err != nil", test.desc)
		}
	}
}

func TestIDTokenLocalAccountID(t *testing.T) {
	withOid, err := NewIDToken(rawIDTokenWithClaims(`{"sub": "sub-value", "oid": "oid-value"}`))
	if err != nil {
		t.Fatal(err)
	}
	if got := withOid.LocalAccountID(); got != "oid-value" {
		t.Errorf("TestIDTokenLocalAccountID: got %q, want oid-value", got)
	}

	withoutOid, err := NewIDToken(rawIDTokenWithClaims(`{"sub": "sub-value"}`))
	if err != nil {
		t.Fatal(err)
	}
	if got := withoutOid.LocalAccountID(); got != "sub-value" {
		t.Errorf("TestIDTokenLocalAccountID: got %q, want sub-value", got)
	}
}

func TestIDTokenClaimsMap(t *testing.T) {
	idt, err := NewIDToken(rawIDTokenWithClaims(`{"sub": "s", "custom_claim": "custom"}`))
	if err != nil {
		t.Fatal(err)
	}
	claims, err := idt.ClaimsMap()
	if err != nil {
		t.Fatal(err)
	}
	if claims["custom_claim"] != "custom" {
		t.Errorf("TestIDTokenClaimsMap: unmodeled claim missing: %v", claims)
	}
}

func TestNewTokenResponse(t *testing.T) {
	clientInfo := base64.RawURLEncoding.EncodeToString([]byte(`{"uid": "uid", "utid": "utid"}`))

	tests := []struct {
		desc         string
		payload      TokenResponseJSONPayload
		requested    []string
		wantGranted  string
		wantDeclined []string
		err          bool
		serverErr    bool
	}{
		{
			desc: "success with explicit scope",
			payload: TokenResponseJSONPayload{
				AccessToken: "at",
				TokenType:   "Bearer",
				ExpiresIn:   3600,
				Scope:       "s1 s2",
				ClientInfo:  clientInfo,
			},
			requested:   []string{"s1", "s2"},
			wantGranted: "s1 s2",
		},
		{
			desc: "empty scope grants requested in full",
			payload: TokenResponseJSONPayload{
				AccessToken: "at",
				ExpiresIn:   3600,
			},
			requested:   []string{"s1", "s2"},
			wantGranted: "s1 s2",
		},
		{
			desc: "declined scopes detected",
			payload: TokenResponseJSONPayload{
				AccessToken: "at",
				ExpiresIn:   3600,
				Scope:       "s1",
			},
			requested:    []string{"s1", "s2"},
			wantGranted:  "s1",
			wantDeclined: []string{"s2"},
		},
		{
			desc: "server error short-circuits",
			payload: TokenResponseJSONPayload{
				OAuthResponseBase: authority.OAuthResponseBase{
					Error:            "invalid_grant",
					ErrorDescription: "the code expired",
				},
			},
			err:       true,
			serverErr: true,
		},
		{
			desc:    "missing access token",
			payload: TokenResponseJSONPayload{ExpiresIn: 3600},
			err:     true,
		},
		{
			desc: "corrupt client info",
			payload: TokenResponseJSONPayload{
				AccessToken: "at",
				ExpiresIn:   3600,
				ClientInfo:  "!!!not-base64!!!",
			},
			err: true,
		},
	}

	for _, test := range tests {
		got, err := NewTokenResponse(tokenTestAuthParams(test.requested...), test.payload)
		if test.err {
			if err == nil {
				t.Errorf("TestNewTokenResponse(%s): got err == nil, want err != nil", test.desc)
				continue
			}
			if test.serverErr {
				var serverErr oerrors.ServerError
				if !oerrors.As(err, &serverErr) {
					t.Errorf("TestNewTokenResponse(%s): got %T, want ServerError", test.desc, err)
					continue
				}
				if serverErr.Code != "invalid_grant" {
					t.Errorf("TestNewTokenResponse(%s): server error code: got %q", test.desc, serverErr.Code)
				}
			}
			continue
		}
		if err != nil {
			t.Errorf("TestNewTokenResponse(%s): got err == %v, want err == nil", test.desc, err)
			continue
		}

		if got.GrantedScopes.String() != test.wantGranted {
			t.Errorf("TestNewTokenResponse(%s): granted: got %q, want %q", test.desc, got.GrantedScopes.String(), test.wantGranted)
		}
		if diff := pretty.Compare(test.wantDeclined, got.DeclinedScopes); len(test.wantDeclined) > 0 && diff != "" {
			t.Errorf("TestNewTokenResponse(%s): declined -want/+got:\n%s", test.desc, diff)
		}
		if got.ExpiresOn.IsZero() {
			t.Errorf("TestNewTokenResponse(%s): expiry was not made absolute", test.desc)
		}
	}
}

func TestNewTokenResponseHomeAccountID(t *testing.T) {
	clientInfo := base64.RawURLEncoding.EncodeToString([]byte(`{"uid": "uid", "utid": "utid"}`))
	payload := TokenResponseJSONPayload{
		AccessToken: "at",
		ExpiresIn:   3600,
		ClientInfo:  clientInfo,
	}
	got, err := NewTokenResponse(tokenTestAuthParams("s1"), payload)
	if err != nil {
		t.Fatal(err)
	}
	if got.HomeAccountID() != "uid.utid" {
		t.Errorf("TestNewTokenResponseHomeAccountID: got %q, want uid.utid", got.HomeAccountID())
	}
}

func TestRefreshTokenKeyAndZero(t *testing.T) {
	rt := NewRefreshToken("hid", "env", "cid", "secret")
	want := "hid-env-RefreshToken-cid"
	if rt.Key() != want {
		t.Errorf("TestRefreshTokenKeyAndZero: key: got %q, want %q", rt.Key(), want)
	}
	if rt.IsZero() {
		t.Error("TestRefreshTokenKeyAndZero: populated token reported zero")
	}
	if !(RefreshToken{}).IsZero() {
		t.Error("TestRefreshTokenKeyAndZero: zero token not reported zero")
	}
}
