// SPDX-FileCopyrightText: Copyright 2026 mcpgate authors
// SPDX-License-Identifier: Apache-2.0

// Package crypto provides token generation, client secret hashing and PKCE
// verification for the authorization server.
package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// TokenBytes is the entropy of every generated token: 32 bytes (256 bits),
// base64url-encoded without padding.
const TokenBytes = 32

// NewToken draws TokenBytes from the cryptographic RNG and returns the
// base64url encoding without padding. The result is never derivable from
// client-controlled data.
func NewToken() (string, error) {
	buf := make([]byte, TokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// NewClientSecret generates a client secret for confidential clients.
func NewClientSecret() (string, error) {
	return NewToken()
}

// HashClientSecret hashes a client secret for persistence. Only the hash is
// ever written to disk.
func HashClientSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash client secret: %w", err)
	}
	return string(hash), nil
}

// VerifyClientSecret compares a presented secret against a stored hash.
func VerifyClientSecret(hash, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
