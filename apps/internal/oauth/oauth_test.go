// Copyright (c) Openident.
// Licensed under the MIT license.

package oauth

import (
	"context"
	"errors"
	"testing"

	"github.com/openident/authentication-library-for-go/apps/internal/oauth/ops/accesstokens"
	"github.com/openident/authentication-library-for-go/apps/internal/oauth/ops/authority"
)

var testEndpoints = authority.NewEndpoints(
	"https://issuer.example.com/contoso/oauth2/authorize",
	"https://issuer.example.com/contoso/oauth2/token",
	"https://issuer.example.com/contoso/oauth2/logout",
	"https://issuer.example.com/contoso",
	"issuer.example.com",
)

type fakeResolver struct {
	err   bool
	calls int
}

func (f *fakeResolver) ResolveEndpoints(ctx context.Context, authorityInfo authority.Info) (authority.Endpoints, error) {
	f.calls++
	if f.err {
		return authority.Endpoints{}, errors.New("error")
	}
	return testEndpoints, nil
}

type fakeAccessTokens struct {
	err bool

	gotRefreshToken string
}

func (f *fakeAccessTokens) FromAuthCode(ctx context.Context, req accesstokens.AuthCodeRequest) (accesstokens.TokenResponse, error) {
	if f.err {
		return accesstokens.TokenResponse{}, errors.New("error")
	}
	return accesstokens.TokenResponse{AccessToken: "at"}, nil
}

func (f *fakeAccessTokens) FromRefreshToken(ctx context.Context, authParams authority.AuthParams, refreshToken string) (accesstokens.TokenResponse, error) {
	f.gotRefreshToken = refreshToken
	if f.err {
		return accesstokens.TokenResponse{}, errors.New("error")
	}
	return accesstokens.TokenResponse{AccessToken: "at"}, nil
}

func testInfo() authority.Info {
	return authority.Info{
		Host:                  "issuer.example.com",
		CanonicalAuthorityURI: "https://issuer.example.com/contoso/",
		Tenant:                "contoso",
	}
}

func TestAuthCode(t *testing.T) {
	tests := []struct {
		desc     string
		resolver *fakeResolver
		at       *fakeAccessTokens
		err      bool
	}{
		{desc: "resolution failure", resolver: &fakeResolver{err: true}, at: &fakeAccessTokens{}, err: true},
		{desc: "exchange failure", resolver: &fakeResolver{}, at: &fakeAccessTokens{err: true}, err: true},
		{desc: "success", resolver: &fakeResolver{}, at: &fakeAccessTokens{}},
	}

	for _, test := range tests {
		client := &Client{resolver: test.resolver, accessTokens: test.at}
		req := accesstokens.AuthCodeRequest{
			AuthParams: authority.NewAuthParams("client-id", testInfo()),
			Code:       "code",
		}
		_, err := client.AuthCode(context.Background(), req)
		if test.err && err == nil {
			t.Errorf("TestAuthCode(%s): got err == nil, want err != nil", test.desc)
		}
		if !test.err && err != nil {
			t.Errorf("TestAuthCode(%s): got err == %v, want err == nil", test.desc, err)
		}
	}
}

func TestAuthCodeSkipsResolutionWhenEndpointsSet(t *testing.T) {
	resolver := &fakeResolver{}
	client := &Client{resolver: resolver, accessTokens: &fakeAccessTokens{}}

	params := authority.NewAuthParams("client-id", testInfo())
	params.Endpoints = testEndpoints
	_, err := client.AuthCode(context.Background(), accesstokens.AuthCodeRequest{AuthParams: params, Code: "code"})
	if err != nil {
		t.Fatal(err)
	}
	if resolver.calls != 0 {
		t.Errorf("TestAuthCodeSkipsResolutionWhenEndpointsSet: resolver called %d times, want 0", resolver.calls)
	}
}

func TestRefresh(t *testing.T) {
	at := &fakeAccessTokens{}
	client := &Client{resolver: &fakeResolver{}, accessTokens: at}

	rt := accesstokens.NewRefreshToken("hid", "env", "client-id", "the-secret")
	_, err := client.Refresh(context.Background(), authority.NewAuthParams("client-id", testInfo()), rt)
	if err != nil {
		t.Fatal(err)
	}
	if at.gotRefreshToken != "the-secret" {
		t.Errorf("TestRefresh: refresh token: got %q, want the-secret", at.gotRefreshToken)
	}
}
