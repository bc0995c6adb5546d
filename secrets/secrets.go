// Package secrets holds the crypto primitives of the gateway: random token
// generation, token hashing, constant-time comparison, and the key-derived
// symmetric encryption used for session secrets at rest.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

const (
	// gcmNonceSize is the IV length used for AES-GCM.
	gcmNonceSize = 12

	// scryptSalt is a fixed application-specific salt; the encryption key
	// must be stable across restarts for stored sessions to stay readable.
	scryptSalt = "graph-gateway-session-salt"
)

// RandomString returns a URL-safe base64-encoded string built from length
// bytes of randomness.
func RandomString(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashToken returns the hex-encoded SHA-256 hash of value. Opaque codes and
// refresh tokens are stored only under their hash.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// SecureCompare reports whether a and b are equal in constant time.
func SecureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Encryptor performs AES-256-GCM encryption with a key derived once from a
// long-term secret via scrypt.
type Encryptor struct {
	key []byte
}

// NewEncryptor derives the symmetric key from secret.
func NewEncryptor(secret string) (*Encryptor, error) {
	if secret == "" {
		return nil, fmt.Errorf("encryption secret is required")
	}
	key, err := scrypt.Key([]byte(secret), []byte(scryptSalt), 1<<15, 8, 1, 32)
	if err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}
	return &Encryptor{key: key}, nil
}

// Encrypt seals plaintext under a fresh IV and returns the
// "iv:authTag:ciphertext" triplet, hex encoded.
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, gcmNonceSize)
	if err != nil {
		return "", err
	}

	iv := make([]byte, gcmNonceSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("failed to generate IV: %w", err)
	}

	sealed := gcm.Seal(nil, iv, []byte(plaintext), nil)
	tagStart := len(sealed) - gcm.Overhead()
	ciphertext, tag := sealed[:tagStart], sealed[tagStart:]

	return fmt.Sprintf("%s:%s:%s",
		hex.EncodeToString(iv),
		hex.EncodeToString(tag),
		hex.EncodeToString(ciphertext)), nil
}

// Decrypt reverses Encrypt. It fails closed: any malformed triplet or tag
// mismatch yields an error and never partial plaintext.
func (e *Encryptor) Decrypt(encrypted string) (string, error) {
	parts := strings.Split(encrypted, ":")
	if len(parts) != 3 {
		return "", fmt.Errorf("malformed ciphertext")
	}
	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != gcmNonceSize {
		return "", fmt.Errorf("malformed ciphertext IV")
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("malformed ciphertext tag")
	}
	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("malformed ciphertext body")
	}

	block, err := aes.NewCipher(e.key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, gcmNonceSize)
	if err != nil {
		return "", err
	}

	plaintext, err := gcm.Open(nil, iv, append(ciphertext, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("decryption failed: %w", err)
	}
	return string(plaintext), nil
}
