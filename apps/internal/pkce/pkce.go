// Copyright (c) Openident.
// Licensed under the MIT license.

// Package pkce generates Proof Key for Code Exchange verifier/challenge pairs
// (RFC 7636) for the authorization code flow. Only the S256 challenge method
// is supported; the plain method offers no protection against code
// interception.
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// MethodS256 is the code_challenge_method sent with every authorization
// request.
const MethodS256 = "S256"

// Codes holds a PKCE verifier and its derived challenge. The verifier must be
// kept private until the token exchange; the challenge travels with the
// authorization request.
type Codes struct {
	Verifier  string
	Challenge string
}

// New generates a fresh verifier/challenge pair. The verifier is 96 random
// bytes base64url-encoded (128 characters, the RFC maximum).
func New() (Codes, error) {
	b := make([]byte, 96)
	if _, err := rand.Read(b); err != nil {
		return Codes{}, fmt.Errorf("unable to generate PKCE verifier: %w", err)
	}
	verifier := base64.RawURLEncoding.EncodeToString(b)
	return Codes{Verifier: verifier, Challenge: Challenge(verifier)}, nil
}

// Challenge derives the S256 code challenge for a verifier.
func Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
