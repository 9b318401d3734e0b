package accesstokens

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openident/authentication-library-for-go/apps/internal/oauth/ops/authority"
	"github.com/openident/authentication-library-for-go/apps/internal/scopes"
	"github.com/openident/authentication-library-for-go/apps/internal/shared"
	oerrors "github.com/openident/authentication-library-for-go/apps/errors"
	"github.com/golang-jwt/jwt/v5"
)

// TokenResponseJSONPayload is the raw JSON body returned by the token
// endpoint.
type TokenResponseJSONPayload struct {
	authority.OAuthResponseBase

	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExtExpiresIn int64  `json:"ext_expires_in"`
	Scope        string `json:"scope"`
	IDToken      string `json:"id_token"`
	ClientInfo   string `json:"client_info"`

	AdditionalFields map[string]interface{} `json:"-"`
}

// ClientInfo is the decoded client_info blob, used to create a home account
// ID for an account.
type ClientInfo struct {
	UID  string `json:"uid"`
	UTID string `json:"utid"`
}

// HomeAccountID combines subject and tenant into the stable identifier used
// to key cached credentials per signed-in identity.
func (c ClientInfo) HomeAccountID() string {
	if c.UID == "" || c.UTID == "" {
		return ""
	}
	return fmt.Sprintf("%s.%s", c.UID, c.UTID)
}

// IDToken consists of the claims used to identify a user. The token is
// decoded, not validated: it arrived over the TLS channel to the token
// endpoint, which is the trust boundary for this client.
type IDToken struct {
	jwt.RegisteredClaims

	PreferredUsername string `json:"preferred_username,omitempty"`
	GivenName         string `json:"given_name,omitempty"`
	FamilyName        string `json:"family_name,omitempty"`
	Name              string `json:"name,omitempty"`
	Oid               string `json:"oid,omitempty"`
	TenantID          string `json:"tid,omitempty"`
	UPN               string `json:"upn,omitempty"`
	Email             string `json:"email,omitempty"`
	AlternativeID     string `json:"alternative_id,omitempty"`
	Nonce             string `json:"nonce,omitempty"`

	RawToken string `json:"-"`
}

// NewIDToken decodes an ID token's claims from its JWT form.
func NewIDToken(raw string) (IDToken, error) {
	if raw == "" {
		return IDToken{}, errors.New("id token returned from server is empty")
	}
	idToken := IDToken{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, &idToken); err != nil {
		return IDToken{}, fmt.Errorf("id token returned from server is invalid: %w", err)
	}
	idToken.RawToken = raw
	return idToken, nil
}

// IsZero indicates if the IDToken is the zero value.
func (i IDToken) IsZero() bool {
	return i.RawToken == ""
}

// LocalAccountID extracts an account's local account ID from an ID token.
func (i IDToken) LocalAccountID() string {
	if i.Oid != "" {
		return i.Oid
	}
	return i.Subject
}

// ClaimsMap returns every claim in the token as a generic map, including ones
// the IDToken struct does not model.
func (i IDToken) ClaimsMap() (map[string]interface{}, error) {
	if i.RawToken == "" {
		return nil, nil
	}
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(i.RawToken, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// TokenResponse is the normalized result of a token-endpoint exchange.
// ExpiresOn is always an absolute timestamp computed from expires_in plus the
// time the response was received.
type TokenResponse struct {
	authority.OAuthResponseBase

	AccessToken    string
	RefreshToken   string
	IDToken        IDToken
	TokenType      string
	GrantedScopes  scopes.Set
	DeclinedScopes []string
	ExpiresOn      time.Time
	ExtExpiresOn   time.Time
	RawClientInfo  string
	ClientInfo     ClientInfo

	AdditionalFields map[string]interface{}
}

// HasAccessToken checks if the TokenResponse has an access token.
func (tr TokenResponse) HasAccessToken() bool {
	return len(tr.AccessToken) > 0
}

// HasRefreshToken checks if the TokenResponse has a refresh token.
func (tr TokenResponse) HasRefreshToken() bool {
	return len(tr.RefreshToken) > 0
}

// HomeAccountID creates the home account ID for an account from the
// client_info parameter. Empty when the server sent no client_info.
func (tr TokenResponse) HomeAccountID() string {
	return tr.ClientInfo.HomeAccountID()
}

// NewTokenResponse validates the raw payload from the token endpoint and
// normalizes it. A server error body short-circuits before anything can be
// cached.
func NewTokenResponse(authParams authority.AuthParams, payload TokenResponseJSONPayload) (TokenResponse, error) {
	if payload.Error != "" {
		return TokenResponse{}, oerrors.ServerError{
			Code:          payload.Error,
			SubError:      payload.SubError,
			Description:   payload.ErrorDescription,
			CorrelationID: payload.CorrelationID,
		}
	}

	if payload.AccessToken == "" {
		// Access token is required in a token response.
		return TokenResponse{}, errors.New("response is missing access_token")
	}

	rawClientInfo := payload.ClientInfo
	clientInfo := ClientInfo{}
	// Client info may be empty in some flows.
	if len(rawClientInfo) > 0 {
		decoded, err := decodeBase64Blob(rawClientInfo)
		if err != nil {
			return TokenResponse{}, fmt.Errorf("could not decode client_info: %w", err)
		}
		if err := json.Unmarshal(decoded, &clientInfo); err != nil {
			return TokenResponse{}, fmt.Errorf("could not unmarshal client_info: %w", err)
		}
	}

	now := time.Now()
	expiresOn := now.Add(time.Second * time.Duration(payload.ExpiresIn))
	extExpiresOn := now.Add(time.Second * time.Duration(payload.ExtExpiresIn))

	var (
		granted  scopes.Set
		declined []string
	)
	if len(payload.Scope) == 0 {
		// Per RFC 6749 section 3.3, an empty scope in the response means the
		// request's scopes were granted in full.
		granted = authParams.Scopes
	} else {
		granted = scopes.FromString(payload.Scope)
		declined = findDeclinedScopes(authParams.Scopes, granted)
	}

	// ID tokens aren't always returned, which is not a reportable error
	// condition. So we ignore it.
	idToken, _ := NewIDToken(payload.IDToken)

	return TokenResponse{
		OAuthResponseBase: payload.OAuthResponseBase,
		AccessToken:       payload.AccessToken,
		RefreshToken:      payload.RefreshToken,
		IDToken:           idToken,
		TokenType:         payload.TokenType,
		GrantedScopes:     granted,
		DeclinedScopes:    declined,
		ExpiresOn:         expiresOn,
		ExtExpiresOn:      extExpiresOn,
		RawClientInfo:     rawClientInfo,
		ClientInfo:        clientInfo,
	}, nil
}

func findDeclinedScopes(requested, granted scopes.Set) []string {
	declined := []string{}
	for _, r := range requested.Slice() {
		if !granted.Has(r) {
			declined = append(declined, r)
		}
	}
	return declined
}

// decodeBase64Blob decodes a base64 value that may arrive url- or
// std-encoded, padded or not.
func decodeBase64Blob(data string) ([]byte, error) {
	if i := len(data) % 4; i != 0 {
		data += strings.Repeat("=", 4-i)
	}
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return b, nil
	}
	return base64.StdEncoding.DecodeString(data)
}

// RefreshToken is the JSON representation of a cached refresh token.
type RefreshToken struct {
	HomeAccountID  string `json:"home_account_id,omitempty"`
	Environment    string `json:"environment,omitempty"`
	CredentialType string `json:"credential_type,omitempty"`
	ClientID       string `json:"client_id,omitempty"`
	Secret         string `json:"secret,omitempty"`
	Realm          string `json:"realm,omitempty"`
	Target         string `json:"target,omitempty"`

	AdditionalFields map[string]interface{} `json:"-"`
}

// NewRefreshToken is the constructor for RefreshToken.
func NewRefreshToken(homeID, env, clientID, refreshToken string) RefreshToken {
	return RefreshToken{
		HomeAccountID:  homeID,
		Environment:    env,
		CredentialType: "RefreshToken",
		ClientID:       clientID,
		Secret:         refreshToken,
	}
}

// Key outputs the key that can be used to uniquely look up this entry in a map.
func (rt RefreshToken) Key() string {
	return strings.Join(
		[]string{rt.HomeAccountID, rt.Environment, rt.CredentialType, rt.ClientID},
		shared.CacheKeySeparator,
	)
}

// IsZero reports whether the refresh token is the zero value.
func (rt RefreshToken) IsZero() bool {
	return rt.Secret == "" && rt.HomeAccountID == "" && rt.ClientID == ""
}

// GetSecret returns the refresh token secret.
func (rt RefreshToken) GetSecret() string {
	return rt.Secret
}
