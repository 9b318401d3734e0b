// Copyright (c) Openident.
// Licensed under the MIT license.

package oauth

import (
	"context"
	"sync"

	"github.com/openident/authentication-library-for-go/apps/errors"
	"github.com/openident/authentication-library-for-go/apps/internal/oauth/ops"
	"github.com/openident/authentication-library-for-go/apps/internal/oauth/ops/authority"
)

// authorityEndpoint retrieves endpoints from an authority for auth and token
// acquisition. Resolved endpoints are cached per canonical authority URI, so
// discovery runs at most once per authority per process.
type authorityEndpoint struct {
	rest *ops.REST

	mu    sync.Mutex
	cache map[string]authority.Endpoints
}

// newAuthorityEndpoint is the constructor for authorityEndpoint.
func newAuthorityEndpoint(rest *ops.REST) *authorityEndpoint {
	return &authorityEndpoint{rest: rest, cache: map[string]authority.Endpoints{}}
}

// ResolveEndpoints gets the authorization and token endpoints and creates an
// Endpoints instance. Discovery failures surface as errors.DiscoveryError.
func (m *authorityEndpoint) ResolveEndpoints(ctx context.Context, authorityInfo authority.Info) (authority.Endpoints, error) {
	if endpoints, found := m.cachedEndpoints(authorityInfo); found {
		return endpoints, nil
	}

	resp, err := m.rest.Authority().GetTenantDiscoveryResponse(ctx, authorityInfo.OpenIDConfigurationEndpoint())
	if err != nil {
		return authority.Endpoints{}, errors.DiscoveryError{Authority: authorityInfo.CanonicalAuthorityURI, Err: err}
	}
	if err := resp.Validate(); err != nil {
		return authority.Endpoints{}, errors.DiscoveryError{Authority: authorityInfo.CanonicalAuthorityURI, Err: err}
	}

	endpoints := authority.NewEndpoints(
		resp.AuthorizationEndpoint,
		resp.TokenEndpoint,
		resp.EndSessionEndpoint,
		resp.Issuer,
		authorityInfo.Host,
	)

	m.addCachedEndpoints(authorityInfo, endpoints)
	return endpoints, nil
}

// cachedEndpoints returns the cached endpoints if they exist. If not, we
// return false.
func (m *authorityEndpoint) cachedEndpoints(authorityInfo authority.Info) (authority.Endpoints, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	endpoints, ok := m.cache[authorityInfo.CanonicalAuthorityURI]
	return endpoints, ok
}

func (m *authorityEndpoint) addCachedEndpoints(authorityInfo authority.Info, endpoints authority.Endpoints) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[authorityInfo.CanonicalAuthorityURI] = endpoints
}
