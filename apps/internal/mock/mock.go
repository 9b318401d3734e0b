// Copyright (c) Openident.
// Licensed under the MIT license.

package mock

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

type response struct {
	body     []byte
	callback func(*http.Request)
	code     int
	headers  http.Header
}

type responseOption interface {
	apply(*response)
}

type respOpt func(*response)

func (fn respOpt) apply(r *response) {
	fn(r)
}

// WithBody sets the HTTP response's body to the specified value.
func WithBody(b []byte) responseOption {
	return respOpt(func(r *response) {
		r.body = b
	})
}

// WithCallback sets a callback to invoke before returning the response.
func WithCallback(callback func(*http.Request)) responseOption {
	return respOpt(func(r *response) {
		r.callback = callback
	})
}

// WithHTTPHeader sets the HTTP headers of the response to the specified value.
func WithHTTPHeader(header http.Header) responseOption {
	return respOpt(func(r *response) {
		r.headers = header
	})
}

// WithHTTPStatusCode sets the HTTP statusCode of response to the specified value.
func WithHTTPStatusCode(statusCode int) responseOption {
	return respOpt(func(r *response) {
		r.code = statusCode
	})
}

// Client is a mock HTTP client that returns a sequence of responses. Use AppendResponse to specify the sequence.
type Client struct {
	mu   *sync.Mutex
	resp []response
}

func NewClient() *Client {
	return &Client{mu: &sync.Mutex{}}
}

func (c *Client) AppendResponse(opts ...responseOption) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := response{code: http.StatusOK, headers: http.Header{}}
	for _, o := range opts {
		o.apply(&r)
	}
	c.resp = append(c.resp, r)
}

func (c *Client) Do(req *http.Request) (*http.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.resp) == 0 {
		panic(fmt.Sprintf(`no response for "%s"`, req.URL.String()))
	}
	resp := c.resp[0]
	c.resp = c.resp[1:]
	if resp.callback != nil {
		resp.callback(req)
	}
	res := http.Response{Header: resp.headers, StatusCode: resp.code}
	res.Body = io.NopCloser(bytes.NewReader(resp.body))
	return &res, nil
}

// CloseIdleConnections implements the comm.HTTPClient interface
func (*Client) CloseIdleConnections() {}

// GetTokenResponseBody builds a token endpoint success body. Optional fields
// are included only when non-empty.
func GetTokenResponseBody(accessToken, idToken, refreshToken, clientInfo, scope string, expiresIn int) []byte {
	body := fmt.Sprintf(
		`{"access_token": "%s","expires_in": %d,"token_type": "Bearer"`,
		accessToken, expiresIn,
	)
	if scope != "" {
		body += fmt.Sprintf(`, "scope": "%s"`, scope)
	}
	if clientInfo != "" {
		body += fmt.Sprintf(`, "client_info": "%s"`, clientInfo)
	}
	if idToken != "" {
		body += fmt.Sprintf(`, "id_token": "%s"`, idToken)
	}
	if refreshToken != "" {
		body += fmt.Sprintf(`, "refresh_token": "%s"`, refreshToken)
	}
	body += "}"
	return []byte(body)
}

// GetTokenErrorBody builds a token endpoint error body as served with a 400.
func GetTokenErrorBody(code, description string) []byte {
	return []byte(fmt.Sprintf(`{"error": "%s","error_description": "%s"}`, code, description))
}

// GetIDToken builds an unsigned ID token whose payload carries the given
// claims. The signature segment is a placeholder; claims are read without
// verification.
func GetIDToken(issuer, subject, oid, username, nonce string) string {
	now := time.Now().Unix()
	payload := []byte(fmt.Sprintf(
		`{"iss": "%s","sub": "%s","oid": "%s","preferred_username": "%s","nonce": "%s","exp": %d,"iat": %d}`,
		issuer, subject, oid, username, nonce, now+3600, now,
	))
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	return fmt.Sprintf("%s.%s.signature", header, base64.RawURLEncoding.EncodeToString(payload))
}

// GetClientInfo builds the base64 client_info blob for a home account.
func GetClientInfo(uid, utid string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(fmt.Sprintf(`{"uid": "%s","utid": "%s"}`, uid, utid)))
}

// GetOpenIDConfigurationBody builds a well-known discovery document for the
// given authority.
func GetOpenIDConfigurationBody(authorityURI string) []byte {
	a := authorityURI
	if a[len(a)-1] == '/' {
		a = a[:len(a)-1]
	}
	content := fmt.Sprintf(`{
		"issuer": "%[1]s",
		"authorization_endpoint": "%[1]s/oauth2/authorize",
		"token_endpoint": "%[1]s/oauth2/token",
		"end_session_endpoint": "%[1]s/oauth2/logout",
		"jwks_uri": "%[1]s/discovery/keys",
		"response_modes_supported": ["query", "fragment", "form_post"],
		"response_types_supported": ["code"],
		"subject_types_supported": ["pairwise"],
		"id_token_signing_alg_values_supported": ["RS256"],
		"scopes_supported": ["openid", "profile", "email", "offline_access"]
	}`, a)
	return []byte(content)
}
