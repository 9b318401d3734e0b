// Package errors defines the error taxonomy surfaced by the authentication
// library. Callers can classify failures with errors.Is/errors.As: sentinel
// values cover cache-resolution outcomes (no token, ambiguous match, login
// required) and structured types carry details for configuration, validation,
// discovery and server failures. CallErr wraps HTTP round-trip failures and
// retains the request/response pair for verbose diagnostics.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/kylelemons/godebug/pretty"
)

var prettyConf = &pretty.Config{IncludeUnexported: false, SkipZeroFields: true, TrackCycles: true}

type verboser interface {
	Verbose() string
}

// Verbose prints the most verbose error that the error message has.
func Verbose(err error) string {
	if v, ok := err.(verboser); ok {
		return v.Verbose()
	}
	return err.Error()
}

// New is equivalent to errors.New().
func New(text string) error {
	return errors.New(text)
}

// Is is equivalent to errors.Is().
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is equivalent to errors.As().
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Sentinel errors for cache-resolution outcomes. These are returned by silent
// token acquisition and are normal control-flow signals for the caller, not
// bugs.
var (
	// ErrNoTokensFound is returned when no cached credential satisfies the
	// requested scopes for the given client, authority and account.
	ErrNoTokensFound = errors.New("no matching tokens found in the cache")

	// ErrMultipleMatchingTokens is returned when more than one cached
	// credential matches a lookup. The cache treats this as corruption and
	// fails closed rather than picking one.
	ErrMultipleMatchingTokens = errors.New("multiple matching tokens found in the cache")

	// ErrUserLoginRequired is returned when an identity-scope request has no
	// account to resolve against. The caller must run an interactive flow.
	ErrUserLoginRequired = errors.New("user login is required, no account was provided or cached")

	// ErrTokenRequestCannotBeMade is returned when an exchange is attempted
	// without an authorization code.
	ErrTokenRequestCannotBeMade = errors.New("token request cannot be made without an authorization code")

	// ErrRequestStateNotFound is returned when the state echoed back with an
	// authorization code does not resolve to a stored request.
	ErrRequestStateNotFound = errors.New("no request state matching the returned state value")
)

// ConfigError indicates the client is missing required configuration, such as
// a redirect URI. It is detected before any network call is attempted.
type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return "configuration error: " + e.Message
}

// ValidationError indicates a caller-supplied parameter failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// DiscoveryError indicates the authority's metadata could not be resolved.
type DiscoveryError struct {
	Authority string
	Err       error
}

func (e DiscoveryError) Error() string {
	return fmt.Sprintf("endpoint discovery failed for authority %q: %v", e.Authority, e.Err)
}

func (e DiscoveryError) Unwrap() error {
	return e.Err
}

// ServerError is returned when the token endpoint answers with an error body.
// Code and Description are the server's values, verbatim.
type ServerError struct {
	Code          string
	SubError      string
	Description   string
	CorrelationID string
}

func (e ServerError) Error() string {
	if e.Description == "" {
		return "server error: " + e.Code
	}
	return fmt.Sprintf("server error %s: %s", e.Code, e.Description)
}

// CacheError indicates the credential cache or temporary request state could
// not be read or decoded.
type CacheError struct {
	Op  string
	Err error
}

func (e CacheError) Error() string {
	return fmt.Sprintf("cache error during %s: %v", e.Op, e.Err)
}

func (e CacheError) Unwrap() error {
	return e.Err
}

// CallErr represents an HTTP call error. Has a Verbose() method that allows getting the
// http.Request and Response objects. Implements error.
type CallErr struct {
	Req  *http.Request
	Resp *http.Response
	Err  error
}

// Error implements error.Error().
func (e CallErr) Error() string {
	return e.Err.Error()
}

func (e CallErr) Unwrap() error {
	return e.Err
}

// Verbose prints a verbose error message with the request or response.
func (e CallErr) Verbose() string {
	return fmt.Sprintf("%s:\n\tRequest:\n%s\n\tResponse:\n%s", e.Err, prettyConf.Sprint(e.Req), prettyConf.Sprint(e.Resp))
}
