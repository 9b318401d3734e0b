// Copyright (c) Openident.
// Licensed under the MIT license.

package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"

	internalTime "github.com/openident/authentication-library-for-go/apps/internal/json/types/time"
	"github.com/openident/authentication-library-for-go/apps/internal/oauth/ops/accesstokens"
	"github.com/openident/authentication-library-for-go/apps/internal/shared"
)

// Contract is the JSON structure that is written to any storage medium when
// serializing the internal cache. Its layout is a compatibility surface with
// external cache accessors and must not change shape casually.
type Contract struct {
	AccessTokens  map[string]AccessToken               `json:"AccessToken"`
	RefreshTokens map[string]accesstokens.RefreshToken `json:"RefreshToken"`
	IDTokens      map[string]IDToken                   `json:"IdToken"`
	Accounts      map[string]shared.Account            `json:"Account"`
	AppMetaData   map[string]AppMetaData               `json:"AppMetadata"`
}

// NewContract is the constructor for Contract.
func NewContract() *Contract {
	return &Contract{
		AccessTokens:  map[string]AccessToken{},
		RefreshTokens: map[string]accesstokens.RefreshToken{},
		IDTokens:      map[string]IDToken{},
		Accounts:      map[string]shared.Account{},
		AppMetaData:   map[string]AppMetaData{},
	}
}

// AccessToken is the JSON representation of a cached access token.
type AccessToken struct {
	HomeAccountID  string            `json:"home_account_id,omitempty"`
	Environment    string            `json:"environment,omitempty"`
	Realm          string            `json:"realm,omitempty"`
	CredentialType string            `json:"credential_type,omitempty"`
	ClientID       string            `json:"client_id,omitempty"`
	Secret         string            `json:"secret,omitempty"`
	Scopes         string            `json:"target,omitempty"`
	TokenType      string            `json:"token_type,omitempty"`
	ExpiresOn      internalTime.Unix `json:"expires_on,omitempty"`
	ExtendedExpiresOn internalTime.Unix `json:"extended_expires_on,omitempty"`
	CachedAt       internalTime.Unix `json:"cached_at,omitempty"`
}

// NewAccessToken is the constructor for AccessToken.
func NewAccessToken(homeID, env, realm, clientID string, cachedAt, expiresOn, extendedExpiresOn time.Time, scopes, tokenType, token string) AccessToken {
	return AccessToken{
		HomeAccountID:     homeID,
		Environment:       env,
		Realm:             realm,
		CredentialType:    "AccessToken",
		ClientID:          clientID,
		Secret:            token,
		Scopes:            scopes,
		TokenType:         tokenType,
		CachedAt:          internalTime.Unix{T: cachedAt.UTC()},
		ExpiresOn:         internalTime.Unix{T: expiresOn.UTC()},
		ExtendedExpiresOn: internalTime.Unix{T: extendedExpiresOn.UTC()},
	}
}

// Key outputs the key that can be used to uniquely look up this entry in a map.
func (a AccessToken) Key() string {
	return strings.Join(
		[]string{a.HomeAccountID, a.Environment, a.CredentialType, a.ClientID, a.Realm, a.Scopes},
		shared.CacheKeySeparator,
	)
}

// IsZero reports whether the access token is the zero value.
func (a AccessToken) IsZero() bool {
	return a.Secret == "" && a.HomeAccountID == "" && a.ClientID == ""
}

// Validate checks the entry is usable at all: a token cached in the future or
// without a cache timestamp indicates a corrupt entry. Freshness against the
// renewal offset is a separate policy decision, see FreshEnough.
func (a AccessToken) Validate() error {
	if a.CachedAt.T.After(time.Now()) {
		return errors.New("access token isn't valid, it was cached at a future time")
	}
	if a.CachedAt.T.IsZero() {
		return errors.New("access token does not have CachedAt set")
	}
	return nil
}

// FreshEnough reports whether the token's expiry exceeds now plus the renewal
// offset, i.e. it can be returned without a refresh round-trip.
func (a AccessToken) FreshEnough(renewalOffset time.Duration) bool {
	return a.ExpiresOn.T.After(time.Now().Add(renewalOffset))
}

// IDToken is the JSON representation of a cached ID token.
type IDToken struct {
	HomeAccountID  string `json:"home_account_id,omitempty"`
	Environment    string `json:"environment,omitempty"`
	Realm          string `json:"realm,omitempty"`
	CredentialType string `json:"credential_type,omitempty"`
	ClientID       string `json:"client_id,omitempty"`
	Secret         string `json:"secret,omitempty"`
}

// NewIDToken is the constructor for IDToken.
func NewIDToken(homeID, env, realm, clientID, idToken string) IDToken {
	return IDToken{
		HomeAccountID:  homeID,
		Environment:    env,
		Realm:          realm,
		CredentialType: "IDToken",
		ClientID:       clientID,
		Secret:         idToken,
	}
}

// IsZero determines if IDToken is the zero value.
func (id IDToken) IsZero() bool {
	return id.Secret == "" && id.HomeAccountID == "" && id.ClientID == ""
}

// Key outputs the key that can be used to uniquely look up this entry in a map.
func (id IDToken) Key() string {
	return strings.Join(
		[]string{id.HomeAccountID, id.Environment, id.CredentialType, id.ClientID, id.Realm},
		shared.CacheKeySeparator,
	)
}

// AppMetaData is the JSON representation of application metadata for encoding
// to storage.
type AppMetaData struct {
	ClientID    string `json:"client_id,omitempty"`
	Environment string `json:"environment,omitempty"`
}

// NewAppMetaData is the constructor for AppMetaData.
func NewAppMetaData(clientID, environment string) AppMetaData {
	return AppMetaData{ClientID: clientID, Environment: environment}
}

// Key outputs the key that can be used to uniquely look up this entry in a map.
func (a AppMetaData) Key() string {
	return strings.Join(
		[]string{"AppMetaData", a.Environment, a.ClientID},
		shared.CacheKeySeparator,
	)
}

// RequestState is the short-lived record written when an authorization URL is
// built and consumed exactly once when the matching code comes back. It never
// leaves process memory: the PKCE verifier inside must not reach external
// storage.
type RequestState struct {
	State         string
	AppState      string
	CodeVerifier  string
	Nonce         string
	CorrelationID string
	AuthorityURI  string
	Scopes        string
	RedirectURI   string
	CreatedAt     time.Time
}

// Validate reports whether the request state carries everything a token
// exchange needs.
func (r RequestState) Validate() error {
	switch "" {
	case r.State:
		return fmt.Errorf("request state is missing the state value")
	case r.CodeVerifier:
		return fmt.Errorf("request state is missing the PKCE verifier")
	case r.AuthorityURI:
		return fmt.Errorf("request state is missing the authority")
	}
	return nil
}
