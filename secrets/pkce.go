package secrets

import (
	"crypto/sha256"
	"encoding/base64"
)

// CodeChallengeMethodS256 is the only PKCE challenge method the gateway
// accepts; "plain" is never supported (OAuth 2.1).
const CodeChallengeMethodS256 = "S256"

// PKCEPair is a verifier and its S256 challenge.
type PKCEPair struct {
	Verifier  string
	Challenge string
	Method    string
}

// GeneratePKCEPair returns a fresh verifier (48 random bytes, URL-safe
// encoded, comfortably above the RFC 7636 minimum of 43 characters) and its
// S256 challenge.
func GeneratePKCEPair() (*PKCEPair, error) {
	verifier, err := RandomString(48)
	if err != nil {
		return nil, err
	}
	return &PKCEPair{
		Verifier:  verifier,
		Challenge: S256Challenge(verifier),
		Method:    CodeChallengeMethodS256,
	}, nil
}

// S256Challenge computes the URL-safe-encoded SHA-256 of the ASCII verifier.
func S256Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// VerifyCodeChallenge recomputes the challenge from verifier and compares it
// to the stored challenge in constant time. Any method other than S256
// fails.
func VerifyCodeChallenge(verifier, challenge, method string) bool {
	if method != CodeChallengeMethodS256 {
		return false
	}
	if verifier == "" || challenge == "" {
		return false
	}
	return SecureCompare(S256Challenge(verifier), challenge)
}

// GenerateState returns a high-entropy token for downstream CSRF protection.
func GenerateState() (string, error) {
	return RandomString(32)
}

// GenerateNonce returns a high-entropy token for upstream OIDC replay
// protection.
func GenerateNonce() (string, error) {
	return RandomString(32)
}
