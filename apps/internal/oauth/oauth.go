// Copyright (c) Openident.
// Licensed under the MIT license.

// Package oauth orchestrates token acquisition: it resolves authority
// endpoints (cached per authority) and drives the token-endpoint exchanges
// for the authorization-code and refresh-token grants.
package oauth

import (
	"context"
	"fmt"

	"github.com/openident/authentication-library-for-go/apps/internal/oauth/ops"
	"github.com/openident/authentication-library-for-go/apps/internal/oauth/ops/accesstokens"
	"github.com/openident/authentication-library-for-go/apps/internal/oauth/ops/authority"
)

type resolveEndpointer interface {
	ResolveEndpoints(ctx context.Context, authorityInfo authority.Info) (authority.Endpoints, error)
}

type accessTokens interface {
	FromAuthCode(ctx context.Context, req accesstokens.AuthCodeRequest) (accesstokens.TokenResponse, error)
	FromRefreshToken(ctx context.Context, authParams authority.AuthParams, refreshToken string) (accesstokens.TokenResponse, error)
}

// Client provides tokens for various types of token requests.
type Client struct {
	resolver     resolveEndpointer
	accessTokens accessTokens
}

// New is the constructor for Client. httpClient is usually
// shared.DefaultClient.
func New(httpClient ops.HTTPClient) *Client {
	r := ops.New(httpClient)
	return &Client{
		resolver:     newAuthorityEndpoint(r),
		accessTokens: r.AccessTokens(),
	}
}

// ResolveEndpoints gets the authorization and token endpoints and creates an
// Endpoints instance.
func (t *Client) ResolveEndpoints(ctx context.Context, authorityInfo authority.Info) (authority.Endpoints, error) {
	return t.resolver.ResolveEndpoints(ctx, authorityInfo)
}

// AuthCode returns a token based on an authorization code.
func (t *Client) AuthCode(ctx context.Context, req accesstokens.AuthCodeRequest) (accesstokens.TokenResponse, error) {
	if err := t.resolveEndpoint(ctx, &req.AuthParams); err != nil {
		return accesstokens.TokenResponse{}, err
	}

	tResp, err := t.accessTokens.FromAuthCode(ctx, req)
	if err != nil {
		return accesstokens.TokenResponse{}, fmt.Errorf("could not retrieve token from auth code: %w", err)
	}
	return tResp, nil
}

// Refresh acquires a token based on a refresh token. It is also the fallback
// used when a cached access token cannot satisfy a silent request.
func (t *Client) Refresh(ctx context.Context, authParams authority.AuthParams, refreshToken accesstokens.RefreshToken) (accesstokens.TokenResponse, error) {
	if err := t.resolveEndpoint(ctx, &authParams); err != nil {
		return accesstokens.TokenResponse{}, err
	}

	return t.accessTokens.FromRefreshToken(ctx, authParams, refreshToken.Secret)
}

// resolveEndpoint fills in authParams.Endpoints, reusing cached discovery
// results when possible.
func (t *Client) resolveEndpoint(ctx context.Context, authParams *authority.AuthParams) error {
	if !authParams.Endpoints.IsZero() {
		return nil
	}
	endpoints, err := t.resolver.ResolveEndpoints(ctx, authParams.AuthorityInfo)
	if err != nil {
		return err
	}
	authParams.Endpoints = endpoints
	return nil
}
