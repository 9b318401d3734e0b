// Copyright (c) Openident.
// Licensed under the MIT license.

// Package authority models the identity platform's issuer: its canonical URI,
// the endpoints discovered from its OpenID configuration document, and the
// parameters that accompany every authorization request against it.
package authority

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/openident/authentication-library-for-go/apps/internal/scopes"
	"github.com/google/uuid"
)

type jsonCaller interface {
	JSONCall(ctx context.Context, endpoint string, headers http.Header, qv url.Values, body, resp interface{}) error
}

// OAuthResponseBase holds the error fields every endpoint can return. A
// non-empty Error means the request failed server-side.
type OAuthResponseBase struct {
	Error            string `json:"error"`
	SubError         string `json:"suberror"`
	ErrorDescription string `json:"error_description"`
	ErrorCodes       []int  `json:"error_codes"`
	CorrelationID    string `json:"correlation_id"`
	Claims           string `json:"claims"`
}

// TenantDiscoveryResponse is the endpoint set from the OpenID configuration
// document.
type TenantDiscoveryResponse struct {
	OAuthResponseBase

	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	EndSessionEndpoint    string `json:"end_session_endpoint"`
	Issuer                string `json:"issuer"`

	AdditionalFields map[string]interface{} `json:"-"`
}

// Validate validates that the response had the correct values required.
func (r *TenantDiscoveryResponse) Validate() error {
	switch "" {
	case r.AuthorizationEndpoint:
		return errors.New("TenantDiscoveryResponse: authorize endpoint was not found in the openid configuration")
	case r.TokenEndpoint:
		return errors.New("TenantDiscoveryResponse: token endpoint was not found in the openid configuration")
	case r.Issuer:
		return errors.New("TenantDiscoveryResponse: issuer was not found in the openid configuration")
	}
	// end_session_endpoint is optional in the document, computing a logout
	// redirect without it is best-effort.
	return nil
}

//go:generate stringer -type=AuthorizationType

// AuthorizationType represents the type of token flow.
type AuthorizationType int

// These are all the types of token flows.
const (
	AuthorizationTypeUnknown AuthorizationType = iota
	AuthorizationTypeAuthCode
	AuthorizationTypeInteractive
	AuthorizationTypeRefreshTokenExchange
)

// AuthParams represents the parameters used for authorization for token
// acquisition. It is always passed by value: callers mutate their own copy,
// never shared state.
type AuthParams struct {
	AuthorityInfo     Info
	CorrelationID     string
	Endpoints         Endpoints
	ClientID          string
	RedirectURI       string
	HomeAccountID     string
	LoginHint         string
	Scopes            scopes.Set
	AuthorizationType AuthorizationType
}

// NewAuthParams creates an authorization parameters object.
func NewAuthParams(clientID string, authorityInfo Info) AuthParams {
	return AuthParams{
		ClientID:      clientID,
		AuthorityInfo: authorityInfo,
		CorrelationID: uuid.New().String(),
	}
}

// Info consists of information about the authority.
type Info struct {
	Host                  string
	CanonicalAuthorityURI string
	Tenant                string
}

func getFirstPathSegment(u *url.URL) (string, error) {
	pathParts := strings.Split(u.EscapedPath(), "/")
	if len(pathParts) >= 2 && pathParts[1] != "" {
		return pathParts[1], nil
	}
	return "", errors.New("authority does not have two segments")
}

// NewInfoFromAuthorityURI creates an Info instance from the authority URL
// provided. The URI must be https and carry the tenant (or "common") as its
// first path segment.
func NewInfoFromAuthorityURI(authorityURI string) (Info, error) {
	canonical := strings.ToLower(strings.TrimSpace(authorityURI))
	u, err := url.Parse(canonical)
	if err != nil {
		return Info{}, fmt.Errorf("couldn't parse authority url: %w", err)
	}
	if u.Scheme != "https" {
		return Info{}, fmt.Errorf("authority(%s) did not start with https://", canonical)
	}
	tenant, err := getFirstPathSegment(u)
	if err != nil {
		return Info{}, err
	}
	return Info{
		Host:                  u.Hostname(),
		CanonicalAuthorityURI: fmt.Sprintf("https://%v/%v/", u.Hostname(), tenant),
		Tenant:                tenant,
	}, nil
}

// OpenIDConfigurationEndpoint returns the well-known location of the
// authority's OpenID configuration document.
func (i Info) OpenIDConfigurationEndpoint() string {
	return i.CanonicalAuthorityURI + ".well-known/openid-configuration"
}

// Endpoints consists of the endpoints from the tenant discovery response.
type Endpoints struct {
	AuthorizationEndpoint string
	TokenEndpoint         string
	EndSessionEndpoint    string
	Issuer                string
	authorityHost         string
}

// NewEndpoints creates an Endpoints object.
func NewEndpoints(authorizationEndpoint, tokenEndpoint, endSessionEndpoint, issuer, authorityHost string) Endpoints {
	return Endpoints{authorizationEndpoint, tokenEndpoint, endSessionEndpoint, issuer, authorityHost}
}

// IsZero reports whether the endpoints have not been resolved yet.
func (e Endpoints) IsZero() bool {
	return e.TokenEndpoint == ""
}

// Client represents the REST calls to authority backends.
type Client struct {
	// Comm provides the HTTP transport client.
	Comm jsonCaller // *comm.Client
}

// GetTenantDiscoveryResponse fetches the OpenID configuration document from
// its well-known endpoint.
func (c Client) GetTenantDiscoveryResponse(ctx context.Context, openIDConfigurationEndpoint string) (TenantDiscoveryResponse, error) {
	resp := TenantDiscoveryResponse{}
	err := c.Comm.JSONCall(
		ctx,
		openIDConfigurationEndpoint,
		http.Header{},
		nil,
		nil,
		&resp,
	)
	return resp, err
}
