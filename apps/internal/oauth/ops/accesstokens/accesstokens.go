// Copyright (c) Openident.
// Licensed under the MIT license.

/*
Package accesstokens exposes a REST client for exchanging authorization codes
and refresh tokens for access tokens at an authority's token endpoint.

These calls are of type "application/x-www-form-urlencoded". This means we use
url.Values to represent arguments and then encode them into the POST body
message. We receive JSON in return for the requests.
*/
package accesstokens

import (
	"context"
	"fmt"
	"net/url"

	"github.com/openident/authentication-library-for-go/apps/errors"
	"github.com/openident/authentication-library-for-go/apps/internal/oauth/ops/authority"
)

const (
	grantType     = "grant_type"
	clientID      = "client_id"
	clientInfo    = "client_info"
	clientInfoVal = "1"
)

// Grant type values for the token endpoint.
const (
	grantAuthCode     = "authorization_code"
	grantRefreshToken = "refresh_token"
)

type urlFormCaller interface {
	URLFormCall(ctx context.Context, endpoint string, qv url.Values, resp interface{}) error
}

// AuthCodeRequest stores the values required to request a token from the
// authority using an authorization code.
type AuthCodeRequest struct {
	AuthParams   authority.AuthParams
	Code         string
	CodeVerifier string
}

// NewCodeVerifierRequest returns a request carrying the code and the PKCE
// verifier that must accompany it.
func NewCodeVerifierRequest(params authority.AuthParams, code, codeVerifier string) (AuthCodeRequest, error) {
	if code == "" {
		return AuthCodeRequest{}, errors.ErrTokenRequestCannotBeMade
	}
	return AuthCodeRequest{
		AuthParams:   params,
		Code:         code,
		CodeVerifier: codeVerifier,
	}, nil
}

// Client represents the REST calls to get tokens from the token endpoint.
type Client struct {
	// Comm provides the HTTP transport client.
	Comm urlFormCaller
}

// FromAuthCode uses an authorization code to retrieve an access token.
func (c Client) FromAuthCode(ctx context.Context, req AuthCodeRequest) (TokenResponse, error) {
	if req.Code == "" {
		return TokenResponse{}, errors.ErrTokenRequestCannotBeMade
	}

	qv := url.Values{}
	qv.Set(grantType, grantAuthCode)
	qv.Set("code", req.Code)
	qv.Set("code_verifier", req.CodeVerifier)
	qv.Set("redirect_uri", req.AuthParams.RedirectURI)
	qv.Set(clientID, req.AuthParams.ClientID)
	qv.Set(clientInfo, clientInfoVal)
	addScopeQueryParam(qv, req.AuthParams)

	return c.doTokenResp(ctx, req.AuthParams, qv)
}

// FromRefreshToken uses a refresh token to get a new access token. There is
// no PKCE verifier on this path.
func (c Client) FromRefreshToken(ctx context.Context, authParams authority.AuthParams, refreshToken string) (TokenResponse, error) {
	if refreshToken == "" {
		return TokenResponse{}, fmt.Errorf("bug: FromRefreshToken() called with an empty refresh token")
	}

	qv := url.Values{}
	qv.Set(grantType, grantRefreshToken)
	qv.Set("refresh_token", refreshToken)
	qv.Set(clientID, authParams.ClientID)
	qv.Set(clientInfo, clientInfoVal)
	addScopeQueryParam(qv, authParams)

	return c.doTokenResp(ctx, authParams, qv)
}

func (c Client) doTokenResp(ctx context.Context, authParams authority.AuthParams, qv url.Values) (TokenResponse, error) {
	resp := TokenResponseJSONPayload{}
	err := c.Comm.URLFormCall(ctx, authParams.Endpoints.TokenEndpoint, qv, &resp)
	if err != nil {
		return TokenResponse{}, err
	}
	return NewTokenResponse(authParams, resp)
}

// openid required to get an id token
// offline_access required to get a refresh token
// profile required to get the client_info field back
var defaultScopes = []string{"openid", "offline_access", "profile"}

func addScopeQueryParam(queryParams url.Values, authParams authority.AuthParams) {
	s := authParams.Scopes.Clone()
	s.Append(defaultScopes...)
	queryParams.Set("scope", s.String())
}
