// SPDX-FileCopyrightText: Copyright 2026 mcpgate authors
// SPDX-License-Identifier: Apache-2.0

package crypto

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

// PKCE challenge methods per RFC 7636.
const (
	PKCEMethodS256  = "S256"
	PKCEMethodPlain = "plain"
)

// ErrPKCEMismatch is returned when the presented verifier does not match the
// stored challenge.
var ErrPKCEMismatch = errors.New("PKCE verification failed")

// ComputePKCEChallenge computes the S256 code_challenge for a code_verifier:
// BASE64URL(SHA256(verifier)), without padding. Delegates to
// oauth2.S256ChallengeFromVerifier.
func ComputePKCEChallenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}

// VerifyPKCE checks the code_verifier presented at token exchange against the
// challenge stored with the authorization code. The plain method is accepted
// only for confidential clients; public clients must use S256.
func VerifyPKCE(method, challenge, verifier string, confidentialClient bool) error {
	if challenge == "" || verifier == "" {
		return fmt.Errorf("%w: missing challenge or verifier", ErrPKCEMismatch)
	}

	switch method {
	case PKCEMethodS256:
		computed := oauth2.S256ChallengeFromVerifier(verifier)
		if subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) != 1 {
			return ErrPKCEMismatch
		}
		return nil
	case PKCEMethodPlain:
		if !confidentialClient {
			return fmt.Errorf("%w: plain method not allowed for public clients", ErrPKCEMismatch)
		}
		if subtle.ConstantTimeCompare([]byte(verifier), []byte(challenge)) != 1 {
			return ErrPKCEMismatch
		}
		return nil
	default:
		return fmt.Errorf("%w: unsupported challenge method %q", ErrPKCEMismatch, method)
	}
}
