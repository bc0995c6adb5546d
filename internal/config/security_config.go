package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
)

// MinSessionSecretLength is the minimum length of the long-term
// session-encryption secret.
const MinSessionSecretLength = 32

type SecurityConfig interface {
	GetSessionEncryptionSecret() (string, error)
	GetSigningPrivateKeyPEM() string
	GetSigningPublicKeyPEM() string
	IsRegistrationEnabled() bool
	GetRedirectURIAllowPatterns() []string
	MigrateLegacySessionKeys() bool
}

type Security struct{}

var _ SecurityConfig = Security{}

// GetSessionEncryptionSecret returns the long-term secret used to derive the
// session encryption key, enforcing a minimum length.
func (Security) GetSessionEncryptionSecret() (string, error) {
	secret := os.Getenv("SESSION_ENCRYPTION_SECRET")
	if len(secret) < MinSessionSecretLength {
		return "", fmt.Errorf("SESSION_ENCRYPTION_SECRET must be at least %d characters", MinSessionSecretLength)
	}
	return secret, nil
}

// GetSigningPrivateKeyPEM returns the RSA signing key material, accepting a
// direct PEM value, a file path, or a base64-encoded PEM. Empty means
// generate an ephemeral key pair at startup.
func (Security) GetSigningPrivateKeyPEM() string {
	return resolvePEM("JWT_PRIVATE_KEY")
}

func (Security) GetSigningPublicKeyPEM() string {
	return resolvePEM("JWT_PUBLIC_KEY")
}

func (Security) IsRegistrationEnabled() bool {
	return GetEnv("ENABLE_DYNAMIC_REGISTRATION", "true") == "true"
}

// GetRedirectURIAllowPatterns returns the operator glob allow-list for
// client registration. Empty means any valid redirect URI is accepted.
func (Security) GetRedirectURIAllowPatterns() []string {
	raw := GetEnv("REDIRECT_URI_ALLOW_PATTERNS", "")
	if raw == "" {
		return nil
	}
	var patterns []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			patterns = append(patterns, p)
		}
	}
	return patterns
}

// MigrateLegacySessionKeys enables the one-time read-path migration from the
// old single-key session cache scheme.
func (Security) MigrateLegacySessionKeys() bool {
	return GetEnv("SESSION_LEGACY_KEY_MIGRATION", "false") == "true"
}

func resolvePEM(envVar string) string {
	value := os.Getenv(envVar)
	if value == "" {
		if path := os.Getenv(envVar + "_PATH"); path != "" {
			if data, err := os.ReadFile(path); err == nil {
				value = string(data)
			}
		}
	}
	if value == "" {
		return ""
	}
	// Accept base64-wrapped PEM for environments that mangle newlines
	if !strings.Contains(value, "-----BEGIN") {
		if decoded, err := base64.StdEncoding.DecodeString(value); err == nil && strings.Contains(string(decoded), "-----BEGIN") {
			value = string(decoded)
		}
	}
	return strings.ReplaceAll(value, `\n`, "\n")
}
