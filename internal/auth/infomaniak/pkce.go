// Package infomaniak provides the OAuth2 authorization code flow with PKCE
// (Proof Key for Code Exchange) for the Infomaniak identity provider. It covers
// PKCE secret generation, authorization URL construction, redirect interpretation
// and the token endpoint operations (issue, refresh, derive and revoke).
package infomaniak

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// verifierByteLength is the amount of entropy behind a code verifier.
// 32 bytes encode to exactly 43 base64url characters, the RFC 7636 minimum.
const verifierByteLength = 32

// GeneratePKCECodes generates a PKCE code verifier and challenge pair
// following RFC 7636. Every call returns an independent pair.
//
// Returns:
//   - *PKCECodes: The verifier, its S256 challenge and the challenge method
//   - error: An error if the system random source is unavailable
func GeneratePKCECodes() (*PKCECodes, error) {
	codeVerifier, err := generateCodeVerifier()
	if err != nil {
		return nil, fmt.Errorf("failed to generate code verifier: %w", err)
	}

	return &PKCECodes{
		CodeVerifier:        codeVerifier,
		CodeChallenge:       DeriveCodeChallenge(codeVerifier),
		CodeChallengeMethod: HashModeShort,
	}, nil
}

// MustGeneratePKCECodes is like GeneratePKCECodes but panics when no randomness
// can be obtained. A missing CSPRNG is an environment failure, not a login failure.
func MustGeneratePKCECodes() *PKCECodes {
	codes, err := GeneratePKCECodes()
	if err != nil {
		panic(err)
	}
	return codes
}

// DeriveCodeChallenge returns the S256 challenge for a code verifier:
// the SHA-256 digest of the verifier bytes, base64url-encoded without padding.
// It is a pure function, so a persisted verifier always yields the same challenge.
func DeriveCodeChallenge(codeVerifier string) string {
	hash := sha256.Sum256([]byte(codeVerifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// generateCodeVerifier creates a cryptographically random string
// of 43 characters using URL-safe base64 encoding
func generateCodeVerifier() (string, error) {
	bytes := make([]byte, verifierByteLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}
