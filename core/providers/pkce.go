package providers

import (
	"crypto/rand"
	"encoding/hex"

	"golang.org/x/oauth2"
)

const stateBytes = 16

// GenerateVerifier returns a PKCE code verifier: 32 random bytes, base64url
// without padding. It panics if the system random source fails.
func GenerateVerifier() string {
	return oauth2.GenerateVerifier()
}

// DeriveChallenge computes the S256 code challenge for a verifier.
func DeriveChallenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}

// GenerateState returns a hex-encoded random nonce for the state parameter.
func GenerateState() (string, error) {
	b := make([]byte, stateBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
