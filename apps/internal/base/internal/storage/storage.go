// Copyright (c) Openident.
// Licensed under the MIT license.

// Package storage holds all cached token information for the library. This
// storage can be augmented with external accessors to provide persistence. In
// that case, reads and writes in upper packages call Marshal() to take the
// entire in-memory representation and write it to storage, and Unmarshal() to
// replace the in-memory cache with what was persisted.
//
// Lookups key on the composite {client id, authority, home account id} plus a
// scope-subset test. A lookup that matches more than one entry is treated as
// cache corruption and fails closed.
package storage

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/openident/authentication-library-for-go/apps/errors"
	"github.com/openident/authentication-library-for-go/apps/internal/oauth/ops/accesstokens"
	"github.com/openident/authentication-library-for-go/apps/internal/oauth/ops/authority"
	"github.com/openident/authentication-library-for-go/apps/internal/scopes"
	"github.com/openident/authentication-library-for-go/apps/internal/shared"
)

// TokenResponse mimics a token response that was pulled from the cache.
type TokenResponse struct {
	RefreshToken accesstokens.RefreshToken
	IDToken      IDToken
	AccessToken  AccessToken
	Account      shared.Account
}

// Manager is an in-memory cache of access tokens, accounts and metadata. It
// also holds the short-lived request state written between building an
// authorization URL and exchanging the resulting code. Request state is
// deliberately not part of the serialized contract.
type Manager struct {
	contract   *Contract
	contractMu sync.RWMutex

	requestMu     sync.Mutex
	requestStates map[string]RequestState
}

// New is the constructor for Manager.
func New() *Manager {
	return &Manager{
		contract:      NewContract(),
		requestStates: map[string]RequestState{},
	}
}

// Read reads the cached credentials matching authParams from the cache. Zero
// scope-superset matches yield errors.ErrNoTokensFound; more than one yields
// errors.ErrMultipleMatchingTokens.
func (m *Manager) Read(authParams authority.AuthParams, account shared.Account) (TokenResponse, error) {
	homeAccountID := authParams.HomeAccountID
	if homeAccountID == "" {
		homeAccountID = account.HomeAccountID
	}
	realm := authParams.AuthorityInfo.Tenant
	clientID := authParams.ClientID
	env := authParams.AuthorityInfo.Host

	accessToken, err := m.readAccessToken(homeAccountID, env, realm, clientID, authParams.Scopes)
	if err != nil {
		return TokenResponse{}, err
	}

	idToken, _ := m.readIDToken(homeAccountID, env, realm, clientID)
	refreshToken, _ := m.readRefreshToken(homeAccountID, env, clientID)

	if account.IsZero() {
		account, _ = m.readAccount(homeAccountID, env, realm)
	}

	return TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		IDToken:      idToken,
		Account:      account,
	}, nil
}

// Write writes a token response to the cache and returns the account
// information the token is stored with.
func (m *Manager) Write(authParams authority.AuthParams, tokenResponse accesstokens.TokenResponse) (shared.Account, error) {
	homeAccountID := tokenResponse.HomeAccountID()
	if homeAccountID == "" {
		// No client_info in the response; fall back to the ID token subject
		// so the entry is still keyed per identity.
		homeAccountID = tokenResponse.IDToken.LocalAccountID()
	}
	environment := authParams.AuthorityInfo.Host
	realm := authParams.AuthorityInfo.Tenant
	clientID := authParams.ClientID
	target := tokenResponse.GrantedScopes.String()
	cachedAt := time.Now()

	var account shared.Account

	if tokenResponse.HasRefreshToken() {
		refreshToken := accesstokens.NewRefreshToken(homeAccountID, environment, clientID, tokenResponse.RefreshToken)
		if err := m.writeRefreshToken(refreshToken); err != nil {
			return account, err
		}
	}

	if tokenResponse.HasAccessToken() {
		accessToken := NewAccessToken(
			homeAccountID,
			environment,
			realm,
			clientID,
			cachedAt,
			tokenResponse.ExpiresOn,
			tokenResponse.ExtExpiresOn,
			target,
			tokenResponse.TokenType,
			tokenResponse.AccessToken,
		)
		if err := accessToken.Validate(); err == nil {
			if err := m.writeAccessToken(accessToken); err != nil {
				return account, err
			}
		}
	}

	idTokenJwt := tokenResponse.IDToken
	if !idTokenJwt.IsZero() {
		idToken := NewIDToken(homeAccountID, environment, realm, clientID, idTokenJwt.RawToken)
		if err := m.writeIDToken(idToken); err != nil {
			return shared.Account{}, err
		}

		account = shared.NewAccount(
			homeAccountID,
			environment,
			realm,
			idTokenJwt.LocalAccountID(),
			authorityTypeOIDC,
			idTokenJwt.PreferredUsername,
		)
		account.RawClientInfo = tokenResponse.RawClientInfo
		if err := m.writeAccount(account); err != nil {
			return shared.Account{}, err
		}
	}

	if err := m.writeAppMetaData(NewAppMetaData(clientID, environment)); err != nil {
		return shared.Account{}, err
	}
	return account, nil
}

const authorityTypeOIDC = "OIDC"

func (m *Manager) readAccessToken(homeID, env, realm, clientID string, requested scopes.Set) (AccessToken, error) {
	m.contractMu.RLock()
	defer m.contractMu.RUnlock()

	var matches []AccessToken
	for _, at := range m.contract.AccessTokens {
		if at.HomeAccountID == homeID && at.Realm == realm && at.ClientID == clientID && at.Environment == env {
			if scopes.FromString(at.Scopes).Contains(requested) {
				matches = append(matches, at)
			}
		}
	}

	switch len(matches) {
	case 0:
		return AccessToken{}, errors.ErrNoTokensFound
	case 1:
		return matches[0], nil
	}
	// More than one match is an invariant violation; it is never silently
	// disambiguated.
	return AccessToken{}, errors.ErrMultipleMatchingTokens
}

func (m *Manager) writeAccessToken(accessToken AccessToken) error {
	m.contractMu.Lock()
	defer m.contractMu.Unlock()
	m.contract.AccessTokens[accessToken.Key()] = accessToken
	return nil
}

func (m *Manager) readRefreshToken(homeID, env, clientID string) (accesstokens.RefreshToken, error) {
	m.contractMu.RLock()
	defer m.contractMu.RUnlock()
	for _, rt := range m.contract.RefreshTokens {
		if rt.HomeAccountID == homeID && rt.Environment == env && rt.ClientID == clientID {
			return rt, nil
		}
	}
	return accesstokens.RefreshToken{}, errors.ErrNoTokensFound
}

func (m *Manager) writeRefreshToken(refreshToken accesstokens.RefreshToken) error {
	m.contractMu.Lock()
	defer m.contractMu.Unlock()
	m.contract.RefreshTokens[refreshToken.Key()] = refreshToken
	return nil
}

func (m *Manager) readIDToken(homeID, env, realm, clientID string) (IDToken, error) {
	m.contractMu.RLock()
	defer m.contractMu.RUnlock()
	for _, idt := range m.contract.IDTokens {
		if idt.HomeAccountID == homeID && idt.Realm == realm && idt.ClientID == clientID && idt.Environment == env {
			return idt, nil
		}
	}
	return IDToken{}, errors.ErrNoTokensFound
}

func (m *Manager) writeIDToken(idToken IDToken) error {
	m.contractMu.Lock()
	defer m.contractMu.Unlock()
	m.contract.IDTokens[idToken.Key()] = idToken
	return nil
}

// AllAccounts returns all accounts in the cache.
func (m *Manager) AllAccounts() []shared.Account {
	m.contractMu.RLock()
	defer m.contractMu.RUnlock()

	var accounts []shared.Account
	for _, v := range m.contract.Accounts {
		accounts = append(accounts, v)
	}
	return accounts
}

// Account returns the account with the given home account ID, or the zero
// value if it is not cached.
func (m *Manager) Account(homeAccountID string) shared.Account {
	m.contractMu.RLock()
	defer m.contractMu.RUnlock()

	for _, v := range m.contract.Accounts {
		if v.HomeAccountID == homeAccountID {
			return v
		}
	}
	return shared.Account{}
}

func (m *Manager) readAccount(homeAccountID, env, realm string) (shared.Account, error) {
	m.contractMu.RLock()
	defer m.contractMu.RUnlock()

	for _, acc := range m.contract.Accounts {
		if acc.HomeAccountID == homeAccountID && acc.Environment == env && acc.Realm == realm {
			return acc, nil
		}
	}
	return shared.Account{}, errors.New("account not found")
}

func (m *Manager) writeAccount(account shared.Account) error {
	m.contractMu.Lock()
	defer m.contractMu.Unlock()
	m.contract.Accounts[account.Key()] = account
	return nil
}

func (m *Manager) writeAppMetaData(appMetaData AppMetaData) error {
	m.contractMu.Lock()
	defer m.contractMu.Unlock()
	m.contract.AppMetaData[appMetaData.Key()] = appMetaData
	return nil
}

// RemoveAccount removes all cached credentials (access, refresh and ID
// tokens) and the account record for the given account and client. Used by
// sign-out.
func (m *Manager) RemoveAccount(account shared.Account, clientID string) {
	m.removeRefreshTokens(account.HomeAccountID, account.Environment, clientID)
	m.removeAccessTokens(account.HomeAccountID, account.Environment)
	m.removeIDTokens(account.HomeAccountID, account.Environment)
	m.removeAccounts(account.HomeAccountID, account.Environment)
}

func (m *Manager) removeRefreshTokens(homeID, env, clientID string) {
	m.contractMu.Lock()
	defer m.contractMu.Unlock()
	for key, rt := range m.contract.RefreshTokens {
		if rt.HomeAccountID == homeID && rt.Environment == env && rt.ClientID == clientID {
			delete(m.contract.RefreshTokens, key)
		}
	}
}

func (m *Manager) removeAccessTokens(homeID, env string) {
	m.contractMu.Lock()
	defer m.contractMu.Unlock()
	for key, at := range m.contract.AccessTokens {
		if at.HomeAccountID == homeID && at.Environment == env {
			delete(m.contract.AccessTokens, key)
		}
	}
}

func (m *Manager) removeIDTokens(homeID, env string) {
	m.contractMu.Lock()
	defer m.contractMu.Unlock()
	for key, idt := range m.contract.IDTokens {
		if idt.HomeAccountID == homeID && idt.Environment == env {
			delete(m.contract.IDTokens, key)
		}
	}
}

func (m *Manager) removeAccounts(homeID, env string) {
	m.contractMu.Lock()
	defer m.contractMu.Unlock()
	for key, acc := range m.contract.Accounts {
		if acc.HomeAccountID == homeID && acc.Environment == env {
			delete(m.contract.Accounts, key)
		}
	}
}

// Clear removes every entry from the cache, including pending request state.
func (m *Manager) Clear() {
	m.contractMu.Lock()
	m.contract = NewContract()
	m.contractMu.Unlock()

	m.requestMu.Lock()
	m.requestStates = map[string]RequestState{}
	m.requestMu.Unlock()
}

// WriteRequestState stores the temporary request state for a pending
// authorization request, keyed by its state value.
func (m *Manager) WriteRequestState(rs RequestState) error {
	if err := rs.Validate(); err != nil {
		return errors.CacheError{Op: "write request state", Err: err}
	}
	m.requestMu.Lock()
	defer m.requestMu.Unlock()
	m.requestStates[rs.State] = rs
	return nil
}

// TakeRequestState retrieves and removes the request state for the given
// state value. Consumption is strictly once: a second call for the same state
// fails, which is what defeats replay.
func (m *Manager) TakeRequestState(state string) (RequestState, error) {
	m.requestMu.Lock()
	defer m.requestMu.Unlock()
	rs, ok := m.requestStates[state]
	if !ok {
		return RequestState{}, errors.ErrRequestStateNotFound
	}
	delete(m.requestStates, state)
	return rs, nil
}

// ClearRequestState drops the request state for the given state value. It is
// idempotent: clearing state that is already gone is a no-op.
func (m *Manager) ClearRequestState(state string) {
	m.requestMu.Lock()
	defer m.requestMu.Unlock()
	delete(m.requestStates, state)
}

// ClearAllRequestStates drops every pending request state. Called on failed
// acquisitions so partial state never survives an error. Idempotent.
func (m *Manager) ClearAllRequestStates() {
	m.requestMu.Lock()
	defer m.requestMu.Unlock()
	m.requestStates = map[string]RequestState{}
}

// update updates the internal cache object. This is for use in tests, other
// uses are not supported.
func (m *Manager) update(cache *Contract) {
	m.contractMu.Lock()
	defer m.contractMu.Unlock()
	m.contract = cache
}

// Marshal implements cache.Marshaler.
func (m *Manager) Marshal() ([]byte, error) {
	m.contractMu.RLock()
	defer m.contractMu.RUnlock()
	return json.Marshal(m.contract)
}

// Unmarshal implements cache.Unmarshaler.
func (m *Manager) Unmarshal(b []byte) error {
	m.contractMu.Lock()
	defer m.contractMu.Unlock()

	contract := NewContract()
	if err := json.Unmarshal(b, contract); err != nil {
		return err
	}
	// Guard against a contract serialized with null maps.
	if contract.AccessTokens == nil {
		contract.AccessTokens = map[string]AccessToken{}
	}
	if contract.RefreshTokens == nil {
		contract.RefreshTokens = map[string]accesstokens.RefreshToken{}
	}
	if contract.IDTokens == nil {
		contract.IDTokens = map[string]IDToken{}
	}
	if contract.Accounts == nil {
		contract.Accounts = map[string]shared.Account{}
	}
	if contract.AppMetaData == nil {
		contract.AppMetaData = map[string]AppMetaData{}
	}
	m.contract = contract
	return nil
}
