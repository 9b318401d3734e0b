// Copyright (c) Openident.
// Licensed under the MIT license.

// Package comm provides helpers for communicating with HTTP backends. It owns
// the request/response round trip: encoding queries and form bodies, setting
// shared headers, and decoding JSON responses. Transport failures and non-2xx
// statuses surface as errors.CallErr so callers can inspect the exchange.
package comm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime"
	"strings"

	"github.com/openident/authentication-library-for-go/apps/errors"
	"github.com/google/uuid"
)

// HTTPClient represents an HTTP client.
// It's usually an *http.Client from the standard library.
type HTTPClient interface {
	// Do sends an HTTP request and returns an HTTP response.
	Do(req *http.Request) (*http.Response, error)

	// CloseIdleConnections closes any idle connections in a "keep-alive" state.
	CloseIdleConnections()
}

// Client provides JSON and URL-form calls to a backend.
type Client struct {
	// HTTPClient is the HTTP client to use for all calls.
	HTTPClient HTTPClient
}

// New returns a Client backed by the given HTTP client.
func New(httpClient HTTPClient) *Client {
	if httpClient == nil {
		panic("comm.New(): httpClient cannot be nil")
	}
	return &Client{HTTPClient: httpClient}
}

// JSONCall makes an HTTP call and unmarshals the JSON response into resp.
// If body is non-nil it is marshaled as JSON and the call is a POST,
// otherwise a GET. headers and qv may be nil.
func (c *Client) JSONCall(ctx context.Context, endpoint string, headers http.Header, qv url.Values, body, resp interface{}) error {
	if qv == nil {
		qv = url.Values{}
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("could not parse endpoint(%s): %w", endpoint, err)
	}
	u.RawQuery = qv.Encode()

	addStdHeaders(headers)

	req := &http.Request{Method: http.MethodGet, URL: u, Header: headers}

	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("bug: conn.JSONCall(): could not marshal the body object: %w", err)
		}
		req.Method = http.MethodPost
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
		req.Body = io.NopCloser(bytes.NewBuffer(data))
		req.ContentLength = int64(len(data))
	}

	data, err := c.do(ctx, req)
	if err != nil {
		return err
	}

	if resp != nil {
		if err := json.Unmarshal(data, resp); err != nil {
			return fmt.Errorf("json decode error: %w\nraw message was: %s", err, string(data))
		}
	}
	return nil
}

// URLFormCall makes an HTTP POST with an "application/x-www-form-urlencoded"
// body built from qv and unmarshals the JSON response into resp.
func (c *Client) URLFormCall(ctx context.Context, endpoint string, qv url.Values, resp interface{}) error {
	if len(qv) == 0 {
		return fmt.Errorf("URLFormCall() requires qv to have non-zero length")
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("could not parse endpoint(%s): %w", endpoint, err)
	}

	headers := http.Header{}
	addStdHeaders(headers)
	headers.Set("Content-Type", "application/x-www-form-urlencoded; charset=utf-8")

	enc := qv.Encode()
	req := &http.Request{
		Method:        http.MethodPost,
		URL:           u,
		Header:        headers,
		ContentLength: int64(len(enc)),
		Body:          io.NopCloser(strings.NewReader(enc)),
		GetBody: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(enc)), nil
		},
	}

	data, err := c.do(ctx, req)
	if err != nil {
		return err
	}

	if resp != nil {
		if err := json.Unmarshal(data, resp); err != nil {
			return fmt.Errorf("json decode error: %w\nraw message was: %s", err, string(data))
		}
	}
	return nil
}

// do makes the HTTP call to the server and returns the contents of the body.
func (c *Client) do(ctx context.Context, req *http.Request) ([]byte, error) {
	req = req.WithContext(ctx)

	reply, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, errors.CallErr{Req: req, Err: fmt.Errorf("server response error:\n %w", err)}
	}
	defer reply.Body.Close()

	data, err := io.ReadAll(reply.Body)
	if err != nil {
		return nil, errors.CallErr{Req: req, Resp: reply, Err: fmt.Errorf("could not read the body of an HTTP Response: %w", err)}
	}
	reply.Body = io.NopCloser(bytes.NewBuffer(data))

	// NOTE: the token endpoint returns errors with a 400 status and an
	// error body. We don't fail on status here; response handlers detect
	// the error field and raise a typed ServerError with the details.
	if reply.StatusCode < 200 || reply.StatusCode > 299 {
		if !hasJSONBody(reply) {
			return nil, errors.CallErr{
				Req:  req,
				Resp: reply,
				Err:  fmt.Errorf("http call(%s)(%s) error: reply status code was %d", req.URL.String(), req.Method, reply.StatusCode),
			}
		}
	}
	return data, nil
}

func hasJSONBody(resp *http.Response) bool {
	return strings.Contains(resp.Header.Get("Content-Type"), "application/json")
}

// addStdHeaders adds the standard headers we use on all calls.
func addStdHeaders(headers http.Header) http.Header {
	// This is a combination of the application os and the runtime.
	headers.Set("x-client-os", runtime.GOOS)
	headers.Set("x-client-sku", "openident.go")
	if headers.Get("client-request-id") == "" {
		headers.Set("client-request-id", uuid.New().String())
	}
	headers.Set("return-client-request-id", "false")
	return headers
}
