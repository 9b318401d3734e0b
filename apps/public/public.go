/*
Package public provides a client for authentication of "public" applications. A "public"
application is defined as an app that runs on client devices (android, ios, windows, linux, ...).
These devices are "untrusted" and access resources via web APIs that must authenticate.
*/
package public

/*
Design note:

public.Client uses base.Client as an embedded type. base.Client statically assigns its
attributes during creation. As it doesn't have any mutable pointers in it, anything borrowed
from it, such as Client.AuthParams, is a copy that is free to be manipulated here.
*/

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/openident/authentication-library-for-go/apps/cache"
	"github.com/openident/authentication-library-for-go/apps/internal/base"
	"github.com/openident/authentication-library-for-go/apps/internal/oauth"
	"github.com/openident/authentication-library-for-go/apps/internal/oauth/ops"
	"github.com/openident/authentication-library-for-go/apps/internal/shared"
)

// AuthenticationResult contains the results of one token acquisition operation.
type AuthenticationResult = base.AuthResult

// Account holds the identity of an authenticated user as derived from the
// cached ID token and client info.
type Account = shared.Account

// CodeResponse is the parsed authorization redirect carrying the code and
// echoed state.
type CodeResponse = base.CodeResponse

// Options configures the Client's behavior.
type Options struct {
	// Accessor controls cache persistence. By default there is no cache persistence.
	// This can be set with the WithCache() option.
	Accessor cache.ExportReplace

	// Authority is the URL of the token issuer, e.g. https://issuer.example.com/tenant.
	// Its OIDC discovery document must be served at the well-known endpoint underneath it.
	Authority string

	// RedirectURI is where the authorization response is sent. Required before an
	// authorization URL can be built.
	RedirectURI string

	// RenewalOffset is the buffer before expiry at which cached access tokens stop
	// being served silently. Zero means the default of five minutes.
	RenewalOffset time.Duration

	// HTTPClient sets the transport for making HTTP requests.
	HTTPClient ops.HTTPClient

	// Logger, when set, receives structured debug records. Logging is off by default.
	Logger *slog.Logger
}

func (p *Options) validate() error {
	u, err := url.Parse(p.Authority)
	if err != nil {
		return fmt.Errorf("the Authority option cannot be URL parsed: %w", err)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("the Authority(%s) did not start with https://", u.String())
	}
	return nil
}

// Option is an optional argument to the New constructor.
type Option func(o *Options)

// WithAuthority sets the token issuer. This must be a valid https url.
func WithAuthority(authority string) Option {
	return func(o *Options) {
		o.Authority = authority
	}
}

// WithCache allows you to set some type of cache for storing authentication tokens.
func WithCache(accessor cache.ExportReplace) Option {
	return func(o *Options) {
		o.Accessor = accessor
	}
}

// WithRedirectURI sets the redirect URI the authorization response is sent to.
func WithRedirectURI(redirectURI string) Option {
	return func(o *Options) {
		o.RedirectURI = redirectURI
	}
}

// WithRenewalOffset adjusts how long before expiry a cached access token is
// treated as stale.
func WithRenewalOffset(d time.Duration) Option {
	return func(o *Options) {
		o.RenewalOffset = d
	}
}

// WithHTTPClient allows for a custom HTTP client to be set.
func WithHTTPClient(httpClient ops.HTTPClient) Option {
	return func(o *Options) {
		o.HTTPClient = httpClient
	}
}

// WithLogger sets a structured logger for the client.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// Client is a representation of an authentication client for public
// applications as defined in the package doc.
type Client struct {
	base.Client
}

// New is the constructor for Client. clientID is the application's registered
// identifier at the authority.
func New(clientID string, options ...Option) (Client, error) {
	opts := Options{
		HTTPClient: http.DefaultClient,
	}
	for _, o := range options {
		o(&opts)
	}
	if err := opts.validate(); err != nil {
		return Client{}, err
	}

	baseOpts := []base.Option{
		base.WithCacheAccessor(opts.Accessor),
		base.WithRedirectURI(opts.RedirectURI),
		base.WithRenewalOffset(opts.RenewalOffset),
		base.WithLogger(opts.Logger),
	}
	b, err := base.New(clientID, opts.Authority, oauth.New(opts.HTTPClient), baseOpts...)
	if err != nil {
		return Client{}, err
	}
	return Client{b}, nil
}

// CreateAuthCodeURLOptions are all the optional settings to a CreateAuthCodeURL() call.
type CreateAuthCodeURLOptions struct {
	appState           string
	prompt             string
	loginHint          string
	account            Account
	loginRequest       bool
	extraConsentScopes []string
	correlationID      string
	extraQueryParams   map[string]string
}

// CreateAuthCodeURLOption changes options inside CreateAuthCodeURLOptions used in .CreateAuthCodeURL().
type CreateAuthCodeURLOption func(a *CreateAuthCodeURLOptions)

// WithAppState embeds opaque application state into the state parameter. It is
// echoed back on the redirect and available via CodeResponse.AppState().
func WithAppState(appState string) CreateAuthCodeURLOption {
	return func(a *CreateAuthCodeURLOptions) {
		a.appState = appState
	}
}

// WithPrompt controls the interactive experience. Recognized values are
// login, none, consent, select_account and create.
func WithPrompt(prompt string) CreateAuthCodeURLOption {
	return func(a *CreateAuthCodeURLOptions) {
		a.prompt = prompt
	}
}

// WithLoginHint pre-fills the username field at the authority.
func WithLoginHint(hint string) CreateAuthCodeURLOption {
	return func(a *CreateAuthCodeURLOptions) {
		a.loginHint = hint
	}
}

// WithAccount supplies a known account, whose username becomes the login hint.
func WithAccount(account Account) CreateAuthCodeURLOption {
	return func(a *CreateAuthCodeURLOptions) {
		a.account = account
	}
}

// WithLoginRequest marks the request as an identity request: the client ID is
// implicitly included in the requested scopes and extraConsentScopes widen
// the consent screen without being required on the returned token.
func WithLoginRequest(extraConsentScopes ...string) CreateAuthCodeURLOption {
	return func(a *CreateAuthCodeURLOptions) {
		a.loginRequest = true
		a.extraConsentScopes = extraConsentScopes
	}
}

// WithCorrelationID sets the correlation ID threaded through the request.
func WithCorrelationID(id string) CreateAuthCodeURLOption {
	return func(a *CreateAuthCodeURLOptions) {
		a.correlationID = id
	}
}

// WithExtraQueryParameters appends additional query parameters to the
// authorization request. Protocol-reserved keys are never overridden.
func WithExtraQueryParameters(params map[string]string) CreateAuthCodeURLOption {
	return func(a *CreateAuthCodeURLOptions) {
		a.extraQueryParams = params
	}
}

// CreateAuthCodeURL creates a URL used to acquire an authorization code. The
// request's PKCE verifier, state and nonce are held in memory until the code
// returned by the authority is redeemed with AcquireTokenByAuthCode.
func (pca Client) CreateAuthCodeURL(ctx context.Context, scopes []string, options ...CreateAuthCodeURLOption) (string, error) {
	opts := CreateAuthCodeURLOptions{}
	for _, o := range options {
		o(&opts)
	}
	return pca.Client.AuthCodeURL(ctx, base.AuthCodeURLParameters{
		Scopes:               scopes,
		LoginRequest:         opts.loginRequest,
		ExtraConsentScopes:   opts.extraConsentScopes,
		AppState:             opts.appState,
		Prompt:               opts.prompt,
		LoginHint:            opts.loginHint,
		Account:              opts.account,
		CorrelationID:        opts.correlationID,
		ExtraQueryParameters: opts.extraQueryParams,
	})
}

// ParseAuthorizationResponse parses the redirect URL (or its bare fragment or
// query string) the authority sent the user agent back with. A server error
// embedded in the redirect is returned as an error.
func (pca Client) ParseAuthorizationResponse(redirect string) (CodeResponse, error) {
	return base.ParseAuthorizationResponse(redirect)
}

// AcquireTokenByAuthCode is a request to acquire a security token from the
// authority, using an authorization code. The echoed state selects the
// pending request whose PKCE verifier is sent with the exchange; each pending
// request can be redeemed at most once.
func (pca Client) AcquireTokenByAuthCode(ctx context.Context, code CodeResponse) (AuthenticationResult, error) {
	return pca.Client.AcquireTokenByAuthCode(ctx, code)
}

// AcquireTokenSilentOptions are all the optional settings to an AcquireTokenSilent() call.
// These are set by using various AcquireTokenSilentOption functions.
type AcquireTokenSilentOptions struct {
	account      Account
	loginRequest bool
	forceRefresh bool
}

// AcquireTokenSilentOption changes options inside AcquireTokenSilentOptions used in .AcquireTokenSilent().
type AcquireTokenSilentOption func(a *AcquireTokenSilentOptions)

// WithSilentAccount uses the passed account during an AcquireTokenSilent() call.
func WithSilentAccount(account Account) AcquireTokenSilentOption {
	return func(a *AcquireTokenSilentOptions) {
		a.account = account
	}
}

// WithSilentLoginRequest treats the silent call as an identity request, which
// fails with a login-required error when no account is available.
func WithSilentLoginRequest() AcquireTokenSilentOption {
	return func(a *AcquireTokenSilentOptions) {
		a.loginRequest = true
	}
}

// WithForceRefresh skips the cached access token and goes straight to the
// refresh exchange.
func WithForceRefresh() AcquireTokenSilentOption {
	return func(a *AcquireTokenSilentOptions) {
		a.forceRefresh = true
	}
}

// AcquireTokenSilent acquires a token from either the cache or using a refresh token.
func (pca Client) AcquireTokenSilent(ctx context.Context, scopes []string, options ...AcquireTokenSilentOption) (AuthenticationResult, error) {
	opts := AcquireTokenSilentOptions{}
	for _, o := range options {
		o(&opts)
	}
	return pca.Client.AcquireTokenSilent(ctx, base.AcquireTokenSilentParameters{
		Scopes:       scopes,
		Account:      opts.account,
		LoginRequest: opts.loginRequest,
		ForceRefresh: opts.forceRefresh,
	})
}

// Accounts gets all the accounts in the token cache.
// If there are no accounts in the cache the returned slice is empty.
func (pca Client) Accounts(ctx context.Context) []Account {
	return pca.Client.Accounts(ctx)
}

// CurrentAccount returns the signed-in account when exactly one account is
// cached, and the zero Account otherwise. Use Accounts to disambiguate when
// several users are cached.
func (pca Client) CurrentAccount(ctx context.Context) Account {
	return pca.Client.CurrentAccount(ctx)
}

// SignOut removes the account's tokens from the cache and drops any pending
// authorization requests.
func (pca Client) SignOut(ctx context.Context, account Account) error {
	return pca.Client.SignOut(ctx, account)
}

// SignOutAll removes every account and credential from the cache.
func (pca Client) SignOutAll(ctx context.Context) error {
	return pca.Client.SignOutAll(ctx)
}

// EndSessionURL returns the authority's logout URL, optionally with a
// post-logout redirect. Empty when the authority does not advertise one.
func (pca Client) EndSessionURL(ctx context.Context, postLogoutRedirectURI string) (string, error) {
	return pca.Client.EndSessionURL(ctx, postLogoutRedirectURI)
}
