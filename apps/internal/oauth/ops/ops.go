// Copyright (c) Openident.
// Licensed under the MIT license.

/*
Package ops provides REST clients for the endpoints this library talks to:
the authority's OpenID configuration endpoint and its token endpoint. Both
share one comm.Client for HTTP plumbing.
*/
package ops

import (
	"github.com/openident/authentication-library-for-go/apps/internal/oauth/ops/accesstokens"
	"github.com/openident/authentication-library-for-go/apps/internal/oauth/ops/authority"
	"github.com/openident/authentication-library-for-go/apps/internal/oauth/ops/internal/comm"
)

// HTTPClient represents an HTTP client.
// It's usually an *http.Client from the standard library.
type HTTPClient = comm.HTTPClient

// REST provides REST clients for the backend endpoints.
type REST struct {
	client *comm.Client
}

// New is the constructor for REST.
func New(httpClient HTTPClient) *REST {
	return &REST{client: comm.New(httpClient)}
}

// AccessTokens returns a client that can be used to get various access tokens.
func (r *REST) AccessTokens() accesstokens.Client {
	return accesstokens.Client{Comm: r.client}
}

// Authority returns a client that can be used to query the authority's
// metadata endpoints.
func (r *REST) Authority() authority.Client {
	return authority.Client{Comm: r.client}
}
