// Package base contains a "Base" client that is used by the external
// public.Client. Base holds the attributes and shared calls for building
// authorization requests, exchanging codes and refresh tokens, and resolving
// silent requests against the credential cache.
package base

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/openident/authentication-library-for-go/apps/cache"
	"github.com/openident/authentication-library-for-go/apps/errors"
	"github.com/openident/authentication-library-for-go/apps/internal/base/internal/storage"
	"github.com/openident/authentication-library-for-go/apps/internal/oauth/ops/accesstokens"
	"github.com/openident/authentication-library-for-go/apps/internal/oauth/ops/authority"
	"github.com/openident/authentication-library-for-go/apps/internal/pkce"
	"github.com/openident/authentication-library-for-go/apps/internal/scopes"
	"github.com/openident/authentication-library-for-go/apps/internal/shared"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultRenewalOffset is the buffer before expiry at which a cached
	// access token stops being served and a refresh is performed instead.
	DefaultRenewalOffset = 5 * time.Minute

	// stateDelimiter separates the anti-forgery token from caller-supplied
	// application state inside the state parameter.
	stateDelimiter = "|"
)

// validPrompts is the enumerated set of recognized prompt values.
var validPrompts = map[string]bool{
	"login":          true,
	"none":           true,
	"consent":        true,
	"select_account": true,
	"create":         true,
}

// manager provides an internal cache. It is defined to allow faking the cache
// in tests. In all production use it is a *storage.Manager.
type manager interface {
	Read(authParams authority.AuthParams, account shared.Account) (storage.TokenResponse, error)
	Write(authParams authority.AuthParams, tokenResponse accesstokens.TokenResponse) (shared.Account, error)
	AllAccounts() []shared.Account
	Account(homeAccountID string) shared.Account
	RemoveAccount(account shared.Account, clientID string)
	Clear()
	WriteRequestState(rs storage.RequestState) error
	TakeRequestState(state string) (storage.RequestState, error)
	ClearRequestState(state string)
	ClearAllRequestStates()
}

// tokenClient is the token-acquisition surface of oauth.Client. Defined to
// allow faking the network in tests.
type tokenClient interface {
	ResolveEndpoints(ctx context.Context, authorityInfo authority.Info) (authority.Endpoints, error)
	AuthCode(ctx context.Context, req accesstokens.AuthCodeRequest) (accesstokens.TokenResponse, error)
	Refresh(ctx context.Context, authParams authority.AuthParams, refreshToken accesstokens.RefreshToken) (accesstokens.TokenResponse, error)
}

type noopCacheAccessor struct{}

func (n noopCacheAccessor) Replace(ctx context.Context, cache cache.Unmarshaler, hints cache.ReplaceHints) error {
	return nil
}
func (n noopCacheAccessor) Export(ctx context.Context, cache cache.Marshaler, hints cache.ExportHints) error {
	return nil
}

// AuthCodeURLParameters contains the parameters used to build an
// authorization URL.
type AuthCodeURLParameters struct {
	// Scopes the application is requesting access to.
	Scopes []string
	// LoginRequest marks an identity request: the client id is implicitly
	// added to the scopes and ExtraConsentScopes may widen consent.
	LoginRequest bool
	// ExtraConsentScopes are additional scopes the user is asked to consent
	// to up front. Only honored on login requests.
	ExtraConsentScopes []string
	// AppState is opaque caller state embedded into the state parameter and
	// surfaced again on the response.
	AppState string
	// Prompt controls the interactive experience. Must be one of login, none,
	// consent, select_account or create when set.
	Prompt string
	// LoginHint pre-fills the username field. An Account takes precedence.
	LoginHint string
	// Account, when known, supplies the login hint.
	Account shared.Account
	// Authority overrides the client's default authority for this request.
	Authority string
	// CorrelationID correlates this request across calls. Generated fresh
	// when empty.
	CorrelationID string
	// ExtraQueryParameters are appended to the request. Protocol-reserved
	// keys are never overridden by them.
	ExtraQueryParameters map[string]string
}

// CodeResponse is the parsed redirect carrying the authorization code back to
// the application.
type CodeResponse struct {
	Code  string
	State string
}

// AppState returns the caller-supplied application state embedded in the
// state parameter, if any.
func (c CodeResponse) AppState() string {
	if i := strings.Index(c.State, stateDelimiter); i >= 0 {
		return c.State[i+1:]
	}
	return ""
}

// AcquireTokenSilentParameters contains the parameters to acquire a token
// silently (from cache, falling back to a refresh exchange).
type AcquireTokenSilentParameters struct {
	Scopes       []string
	Account      shared.Account
	LoginRequest bool
	ForceRefresh bool
	Authority    string
}

// AuthResult contains the results of one token acquisition operation.
type AuthResult struct {
	Account        shared.Account
	IDToken        accesstokens.IDToken
	IDTokenClaims  map[string]interface{}
	AccessToken    string
	RefreshToken   string
	TokenType      string
	ExpiresOn      time.Time
	GrantedScopes  []string
	DeclinedScopes []string
	CorrelationID  string
}

// NewAuthResult creates an AuthResult from a token response.
func NewAuthResult(tokenResponse accesstokens.TokenResponse, account shared.Account) (AuthResult, error) {
	if len(tokenResponse.DeclinedScopes) > 0 {
		return AuthResult{}, fmt.Errorf("token response failed because declined scopes are present: %s", strings.Join(tokenResponse.DeclinedScopes, ","))
	}
	claims, _ := tokenResponse.IDToken.ClaimsMap()
	return AuthResult{
		Account:       account,
		IDToken:       tokenResponse.IDToken,
		IDTokenClaims: claims,
		AccessToken:   tokenResponse.AccessToken,
		RefreshToken:  tokenResponse.RefreshToken,
		TokenType:     tokenResponse.TokenType,
		ExpiresOn:     tokenResponse.ExpiresOn,
		GrantedScopes: tokenResponse.GrantedScopes.Slice(),
	}, nil
}

// AuthResultFromStorage creates an AuthResult from a cache token response
// (which is generated from the cache).
func AuthResultFromStorage(storageTokenResponse storage.TokenResponse) (AuthResult, error) {
	if err := storageTokenResponse.AccessToken.Validate(); err != nil {
		return AuthResult{}, errors.CacheError{Op: "read access token", Err: err}
	}

	account := storageTokenResponse.Account
	accessToken := storageTokenResponse.AccessToken.Secret
	grantedScopes := scopes.FromString(storageTokenResponse.AccessToken.Scopes).Slice()

	// The ID token is populated only when present in the cache.
	var idToken accesstokens.IDToken
	var claims map[string]interface{}
	if !storageTokenResponse.IDToken.IsZero() {
		var err error
		idToken, err = accesstokens.NewIDToken(storageTokenResponse.IDToken.Secret)
		if err != nil {
			return AuthResult{}, errors.CacheError{Op: "decode cached id token", Err: err}
		}
		claims, _ = idToken.ClaimsMap()
	}
	return AuthResult{
		Account:       account,
		IDToken:       idToken,
		IDTokenClaims: claims,
		AccessToken:   accessToken,
		TokenType:     storageTokenResponse.AccessToken.TokenType,
		ExpiresOn:     storageTokenResponse.AccessToken.ExpiresOn.T,
		GrantedScopes: grantedScopes,
	}, nil
}

// Client is a base client that provides access to common methods and
// primitives that can be used by multiple clients.
type Client struct {
	Token      tokenClient
	AuthParams authority.AuthParams // Note: this is copied, not mutated, per call.

	manager       manager // *storage.Manager or a fake in tests
	cacheAccessor cache.ExportReplace
	redirectURI   string
	renewalOffset time.Duration
	log           *slog.Logger

	refreshGroup *singleflight.Group
}

// Option is an optional argument to the New constructor.
type Option func(c *Client)

// WithCacheAccessor allows you to set some type of cache for storing
// authentication tokens.
func WithCacheAccessor(ca cache.ExportReplace) Option {
	return func(c *Client) {
		if ca != nil {
			c.cacheAccessor = ca
		}
	}
}

// WithRedirectURI sets the redirect URI the authorization response is sent
// to. Building an authorization URL without one configured is a
// configuration error.
func WithRedirectURI(redirectURI string) Option {
	return func(c *Client) {
		c.redirectURI = redirectURI
	}
}

// WithRenewalOffset overrides the default buffer before expiry at which
// cached tokens are refreshed instead of served.
func WithRenewalOffset(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.renewalOffset = d
		}
	}
}

// WithLogger sets a structured logger. Logging is off by default.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// New is the constructor for Base.
func New(clientID string, authorityURI string, token tokenClient, options ...Option) (Client, error) {
	authInfo, err := authority.NewInfoFromAuthorityURI(authorityURI)
	if err != nil {
		return Client{}, err
	}
	authParams := authority.NewAuthParams(clientID, authInfo)
	client := Client{
		Token:         token,
		AuthParams:    authParams,
		cacheAccessor: noopCacheAccessor{},
		manager:       storage.New(),
		renewalOffset: DefaultRenewalOffset,
		log:           slog.New(slog.NewTextHandler(io.Discard, nil)),
		refreshGroup:  &singleflight.Group{},
	}
	for _, o := range options {
		o(&client)
	}
	return client, nil
}

// AuthCodeURL creates a URL used to acquire an authorization code. The PKCE
// verifier and the rest of the request's context are stored as temporary
// request state keyed by the returned state parameter, to be consumed exactly
// once when the code is exchanged.
func (b Client) AuthCodeURL(ctx context.Context, params AuthCodeURLParameters) (string, error) {
	if b.redirectURI == "" {
		return "", errors.ConfigError{Message: "no redirect URI is configured, use WithRedirectURI()"}
	}
	if params.Prompt != "" && !validPrompts[params.Prompt] {
		return "", errors.ValidationError{Field: "prompt", Message: fmt.Sprintf("%q is not a recognized prompt value", params.Prompt)}
	}

	authParams := b.AuthParams // copy
	if params.Authority != "" {
		info, err := authority.NewInfoFromAuthorityURI(params.Authority)
		if err != nil {
			return "", errors.ValidationError{Field: "authority", Message: err.Error()}
		}
		authParams.AuthorityInfo = info
	}

	endpoints, err := b.Token.ResolveEndpoints(ctx, authParams.AuthorityInfo)
	if err != nil {
		return "", err
	}

	var set scopes.Set
	if params.LoginRequest {
		set = scopes.NewLoginSet(authParams.ClientID, params.Scopes...)
		set.Append(params.ExtraConsentScopes...)
	} else {
		set = scopes.New(params.Scopes...)
	}

	correlationID := params.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}

	codes, err := pkce.New()
	if err != nil {
		return "", err
	}

	state := uuid.New().String()
	if params.AppState != "" {
		state += stateDelimiter + params.AppState
	}
	nonce := uuid.New().String()

	loginHint := params.LoginHint
	if !params.Account.IsZero() {
		loginHint = params.Account.PreferredUsername
	}

	v := url.Values{}
	v.Set("client_id", authParams.ClientID)
	v.Set("scope", set.String())
	v.Set("redirect_uri", b.redirectURI)
	v.Set("response_type", "code")
	v.Set("response_mode", "fragment")
	v.Set("code_challenge", codes.Challenge)
	v.Set("code_challenge_method", pkce.MethodS256)
	v.Set("state", state)
	v.Set("nonce", nonce)
	v.Set("client-request-id", correlationID)
	if params.Prompt != "" {
		v.Set("prompt", params.Prompt)
	}
	if loginHint != "" {
		v.Set("login_hint", loginHint)
	}
	for key, value := range params.ExtraQueryParameters {
		// Reserved protocol keys always win over extras.
		if v.Get(key) == "" {
			v.Set(key, value)
		}
	}

	rs := storage.RequestState{
		State:         state,
		AppState:      params.AppState,
		CodeVerifier:  codes.Verifier,
		Nonce:         nonce,
		CorrelationID: correlationID,
		AuthorityURI:  authParams.AuthorityInfo.CanonicalAuthorityURI,
		Scopes:        set.String(),
		RedirectURI:   b.redirectURI,
		CreatedAt:     time.Now(),
	}
	if err := b.manager.WriteRequestState(rs); err != nil {
		return "", err
	}

	baseURL, err := url.Parse(endpoints.AuthorizationEndpoint)
	if err != nil {
		return "", err
	}
	baseURL.RawQuery = v.Encode()

	b.log.DebugContext(ctx, "built authorization URL",
		slog.String("authority", authParams.AuthorityInfo.CanonicalAuthorityURI),
		slog.String("correlation_id", correlationID))
	return baseURL.String(), nil
}

// ParseAuthorizationResponse parses the redirect that carries the
// authorization code back to the application. It accepts a full redirect URL
// or a bare fragment/query string. A server-reported error in the redirect
// surfaces as errors.ServerError.
func ParseAuthorizationResponse(redirect string) (CodeResponse, error) {
	raw := redirect
	if i := strings.Index(raw, "#"); i >= 0 {
		raw = raw[i+1:]
	} else if i := strings.Index(raw, "?"); i >= 0 {
		raw = raw[i+1:]
	}

	vals, err := url.ParseQuery(raw)
	if err != nil {
		return CodeResponse{}, errors.ValidationError{Field: "authorization response", Message: err.Error()}
	}

	if e := vals.Get("error"); e != "" {
		return CodeResponse{}, errors.ServerError{Code: e, Description: vals.Get("error_description")}
	}

	cr := CodeResponse{Code: vals.Get("code"), State: vals.Get("state")}
	switch "" {
	case cr.Code:
		return CodeResponse{}, errors.ValidationError{Field: "authorization response", Message: "no authorization code in the response"}
	case cr.State:
		return CodeResponse{}, errors.ValidationError{Field: "authorization response", Message: "no state in the response"}
	}
	return cr, nil
}

// AcquireTokenByAuthCode exchanges an authorization code for tokens. The
// request context stored when the authorization URL was built is retrieved by
// the echoed state value and consumed. On any failure the temporary request
// state for this attempt is cleared before the error is returned.
func (b Client) AcquireTokenByAuthCode(ctx context.Context, codeResponse CodeResponse) (AuthResult, error) {
	if codeResponse.Code == "" {
		return AuthResult{}, errors.ErrTokenRequestCannotBeMade
	}

	rs, err := b.manager.TakeRequestState(codeResponse.State)
	if err != nil {
		return AuthResult{}, errors.CacheError{Op: "read request state", Err: err}
	}
	// From here on the state entry is consumed; make the cleanup
	// unconditional so no partial state survives a failed exchange.
	defer b.manager.ClearRequestState(codeResponse.State)

	info, err := authority.NewInfoFromAuthorityURI(rs.AuthorityURI)
	if err != nil {
		return AuthResult{}, errors.CacheError{Op: "decode request state", Err: err}
	}

	authParams := b.AuthParams // copy
	authParams.AuthorityInfo = info
	authParams.Scopes = scopes.FromString(rs.Scopes)
	authParams.RedirectURI = rs.RedirectURI
	authParams.CorrelationID = rs.CorrelationID
	authParams.AuthorizationType = authority.AuthorizationTypeAuthCode

	req, err := accesstokens.NewCodeVerifierRequest(authParams, codeResponse.Code, rs.CodeVerifier)
	if err != nil {
		return AuthResult{}, err
	}

	token, err := b.Token.AuthCode(ctx, req)
	if err != nil {
		return AuthResult{}, err
	}

	// The nonce in the ID token must round-trip from the authorization
	// request, otherwise the response was not minted for this request.
	if !token.IDToken.IsZero() && rs.Nonce != "" && token.IDToken.Nonce != rs.Nonce {
		return AuthResult{}, errors.ValidationError{Field: "id token nonce", Message: "nonce in the ID token does not match the authorization request"}
	}

	result, err := b.AuthResultFromToken(ctx, authParams, token)
	if err != nil {
		return AuthResult{}, err
	}
	result.CorrelationID = rs.CorrelationID
	return result, nil
}

// AcquireTokenSilent resolves a token request against the cache, falling back
// to a refresh-token exchange when the cache cannot satisfy it. Concurrent
// calls for the same composite key share a single refresh.
func (b Client) AcquireTokenSilent(ctx context.Context, silent AcquireTokenSilentParameters) (AuthResult, error) {
	res, err := b.acquireTokenSilent(ctx, silent)
	if err != nil {
		// Unconditional, idempotent cleanup: no partial state survives a
		// failed acquisition.
		b.manager.ClearAllRequestStates()
	}
	return res, err
}

func (b Client) acquireTokenSilent(ctx context.Context, silent AcquireTokenSilentParameters) (AuthResult, error) {
	authParams := b.AuthParams // copy
	if silent.Authority != "" {
		info, err := authority.NewInfoFromAuthorityURI(silent.Authority)
		if err != nil {
			return AuthResult{}, errors.ValidationError{Field: "authority", Message: err.Error()}
		}
		authParams.AuthorityInfo = info
	}

	if silent.LoginRequest {
		authParams.Scopes = scopes.NewLoginSet(authParams.ClientID, silent.Scopes...)
	} else {
		authParams.Scopes = scopes.New(silent.Scopes...)
	}
	authParams.AuthorizationType = authority.AuthorizationTypeRefreshTokenExchange

	account := silent.Account
	if account.IsZero() {
		account = b.CurrentAccount(ctx)
	}
	if silent.LoginRequest && account.IsZero() {
		return AuthResult{}, errors.ErrUserLoginRequired
	}
	authParams.HomeAccountID = account.HomeAccountID

	if s, ok := b.manager.(cache.Serializer); ok {
		if err := b.cacheAccessor.Replace(ctx, s, cache.ReplaceHints{PartitionKey: account.Key()}); err != nil {
			return AuthResult{}, errors.CacheError{Op: "replace cache", Err: err}
		}
	}

	storageTokenResponse, err := b.manager.Read(authParams, account)
	if err != nil {
		return AuthResult{}, err
	}

	if !silent.ForceRefresh && storageTokenResponse.AccessToken.FreshEnough(b.renewalOffset) {
		if result, err := AuthResultFromStorage(storageTokenResponse); err == nil {
			b.log.DebugContext(ctx, "silent request served from cache",
				slog.String("home_account_id", authParams.HomeAccountID))
			return result, nil
		}
	}

	if storageTokenResponse.RefreshToken.IsZero() {
		return AuthResult{}, errors.New("no refresh token found")
	}

	// Single-flight per composite key: overlapping silent calls do not issue
	// duplicate refreshes.
	key := strings.Join([]string{
		authParams.ClientID,
		authParams.AuthorityInfo.CanonicalAuthorityURI,
		authParams.HomeAccountID,
		authParams.Scopes.String(),
	}, shared.CacheKeySeparator)

	v, err, _ := b.refreshGroup.Do(key, func() (interface{}, error) {
		token, err := b.Token.Refresh(ctx, authParams, storageTokenResponse.RefreshToken)
		if err != nil {
			return AuthResult{}, err
		}
		return b.AuthResultFromToken(ctx, authParams, token)
	})
	if err != nil {
		return AuthResult{}, err
	}
	b.log.DebugContext(ctx, "silent request refreshed token",
		slog.String("home_account_id", authParams.HomeAccountID))
	return v.(AuthResult), nil
}

// AuthResultFromToken validates nothing further; it writes the token response
// into the credential cache and returns the normalized result carrying the
// account the tokens were stored with.
func (b Client) AuthResultFromToken(ctx context.Context, authParams authority.AuthParams, token accesstokens.TokenResponse) (AuthResult, error) {
	s, isSerializer := b.manager.(cache.Serializer)
	if isSerializer {
		if err := b.cacheAccessor.Replace(ctx, s, cache.ReplaceHints{PartitionKey: token.HomeAccountID()}); err != nil {
			return AuthResult{}, errors.CacheError{Op: "replace cache", Err: err}
		}
	}

	account, err := b.manager.Write(authParams, token)
	if err != nil {
		return AuthResult{}, err
	}

	if isSerializer {
		if err := b.cacheAccessor.Export(ctx, s, cache.ExportHints{PartitionKey: account.Key()}); err != nil {
			return AuthResult{}, errors.CacheError{Op: "export cache", Err: err}
		}
	}
	return NewAuthResult(token, account)
}

// CurrentAccount returns the signed-in account derived from the cached ID
// token and client info, or the zero value when no account is cached. Not
// being signed in is a normal outcome, not an error.
func (b Client) CurrentAccount(ctx context.Context) shared.Account {
	if s, ok := b.manager.(cache.Serializer); ok {
		if err := b.cacheAccessor.Replace(ctx, s, cache.ReplaceHints{}); err != nil {
			return shared.Account{}
		}
	}
	accounts := b.manager.AllAccounts()
	if len(accounts) != 1 {
		// Zero accounts means not signed in; several means the caller must
		// disambiguate explicitly via Accounts().
		return shared.Account{}
	}
	return accounts[0]
}

// Accounts returns every account in the cache.
func (b Client) Accounts(ctx context.Context) []shared.Account {
	if s, ok := b.manager.(cache.Serializer); ok {
		if err := b.cacheAccessor.Replace(ctx, s, cache.ReplaceHints{}); err != nil {
			return nil
		}
	}
	return b.manager.AllAccounts()
}

// SignOut removes all cached credentials for the account and drops any
// pending request state.
func (b Client) SignOut(ctx context.Context, account shared.Account) error {
	s, isSerializer := b.manager.(cache.Serializer)
	if isSerializer {
		if err := b.cacheAccessor.Replace(ctx, s, cache.ReplaceHints{PartitionKey: account.Key()}); err != nil {
			return errors.CacheError{Op: "replace cache", Err: err}
		}
	}

	b.manager.RemoveAccount(account, b.AuthParams.ClientID)
	b.manager.ClearAllRequestStates()

	if isSerializer {
		if err := b.cacheAccessor.Export(ctx, s, cache.ExportHints{PartitionKey: account.Key()}); err != nil {
			return errors.CacheError{Op: "export cache", Err: err}
		}
	}
	return nil
}

// SignOutAll clears the entire cache.
func (b Client) SignOutAll(ctx context.Context) error {
	s, isSerializer := b.manager.(cache.Serializer)
	if isSerializer {
		if err := b.cacheAccessor.Replace(ctx, s, cache.ReplaceHints{}); err != nil {
			return errors.CacheError{Op: "replace cache", Err: err}
		}
	}
	b.manager.Clear()
	if isSerializer {
		if err := b.cacheAccessor.Export(ctx, s, cache.ExportHints{}); err != nil {
			return errors.CacheError{Op: "export cache", Err: err}
		}
	}
	return nil
}

// EndSessionURL computes the logout redirect for the configured authority.
// Best effort: an authority without an end_session_endpoint yields an empty
// string, not an error.
func (b Client) EndSessionURL(ctx context.Context, postLogoutRedirectURI string) (string, error) {
	endpoints, err := b.Token.ResolveEndpoints(ctx, b.AuthParams.AuthorityInfo)
	if err != nil {
		return "", err
	}
	if endpoints.EndSessionEndpoint == "" {
		return "", nil
	}
	if postLogoutRedirectURI == "" {
		return endpoints.EndSessionEndpoint, nil
	}
	u, err := url.Parse(endpoints.EndSessionEndpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("post_logout_redirect_uri", postLogoutRedirectURI)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
