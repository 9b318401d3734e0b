// Copyright (c) Openident.
// Licensed under the MIT license.

package oauth

import (
	"context"
	"net/http"
	"testing"

	"github.com/openident/authentication-library-for-go/apps/errors"
	"github.com/openident/authentication-library-for-go/apps/internal/mock"
	"github.com/openident/authentication-library-for-go/apps/internal/oauth/ops"
)

func TestResolveEndpoints(t *testing.T) {
	httpClient := mock.NewClient()
	httpClient.AppendResponse(
		mock.WithBody(mock.GetOpenIDConfigurationBody("https://issuer.example.com/contoso")),
		mock.WithHTTPHeader(http.Header{"Content-Type": []string{"application/json"}}),
	)
	resolver := newAuthorityEndpoint(ops.New(httpClient))

	endpoints, err := resolver.ResolveEndpoints(context.Background(), testInfo())
	if err != nil {
		t.Fatalf("TestResolveEndpoints: got err == %v, want err == nil", err)
	}
	if endpoints.TokenEndpoint != "https://issuer.example.com/contoso/oauth2/token" {
		t.Errorf("TestResolveEndpoints: token endpoint: got %q", endpoints.TokenEndpoint)
	}
	if endpoints.AuthorizationEndpoint != "https://issuer.example.com/contoso/oauth2/authorize" {
		t.Errorf("TestResolveEndpoints: authorization endpoint: got %q", endpoints.AuthorizationEndpoint)
	}

	// The second resolution must come from the cache; the mock has no more
	// responses and would panic on another call.
	again, err := resolver.ResolveEndpoints(context.Background(), testInfo())
	if err != nil {
		t.Fatalf("TestResolveEndpoints(cached): got err == %v, want err == nil", err)
	}
	if again != endpoints {
		t.Error("TestResolveEndpoints(cached): cached endpoints differ from the originals")
	}
}

func TestResolveEndpointsIncompleteDocument(t *testing.T) {
	httpClient := mock.NewClient()
	httpClient.AppendResponse(
		mock.WithBody([]byte(`{"issuer": "https://issuer.example.com/contoso"}`)),
		mock.WithHTTPHeader(http.Header{"Content-Type": []string{"application/json"}}),
	)
	resolver := newAuthorityEndpoint(ops.New(httpClient))

	_, err := resolver.ResolveEndpoints(context.Background(), testInfo())
	if err == nil {
		t.Fatal("TestResolveEndpointsIncompleteDocument: got err == nil, want err != nil")
	}
	var discoveryErr errors.DiscoveryError
	if !errors.As(err, &discoveryErr) {
		t.Fatalf("TestResolveEndpointsIncompleteDocument: got %T, want DiscoveryError", err)
	}
	if discoveryErr.Authority != "https://issuer.example.com/contoso/" {
		t.Errorf("TestResolveEndpointsIncompleteDocument: authority: got %q", discoveryErr.Authority)
	}
}
