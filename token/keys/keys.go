// Package keys manages the RSA signing key pair behind downstream access
// tokens and its JWKS representation.
package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"math/big"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// KeyPair holds the gateway's RSA signing key and its stable key id.
type KeyPair struct {
	Private *rsa.PrivateKey
	Public  *rsa.PublicKey
	KeyID   string
}

// JWK is the public half of the signing key in JSON Web Key form.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKS is the key set served at the JWKS endpoint.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// Load builds a key pair from PEM-encoded key material. With no material at
// all an ephemeral pair is generated and every restart invalidates
// outstanding access tokens; a public key without its private half is a
// configuration error, not a fallback.
func Load(privatePEM, publicPEM string) (*KeyPair, error) {
	if privatePEM == "" {
		if publicPEM != "" {
			return nil, errors.New("signing public key supplied without a private key")
		}
		log.Warn().Msg("no signing key configured, generating ephemeral RSA key pair; issued tokens will not survive a restart")
		return Generate()
	}

	private, err := parsePrivateKey([]byte(privatePEM))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse signing private key")
	}

	public := &private.PublicKey
	if publicPEM != "" {
		parsed, err := parsePublicKey([]byte(publicPEM))
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse signing public key")
		}
		if parsed.N.Cmp(private.N) != 0 || parsed.E != private.E {
			return nil, errors.New("signing public key does not match private key")
		}
		public = parsed
	}

	return newKeyPair(private, public), nil
}

// Generate creates a fresh 2048-bit RSA key pair.
func Generate() (*KeyPair, error) {
	private, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate RSA key pair")
	}
	return newKeyPair(private, &private.PublicKey), nil
}

func newKeyPair(private *rsa.PrivateKey, public *rsa.PublicKey) *KeyPair {
	return &KeyPair{
		Private: private,
		Public:  public,
		KeyID:   thumbprint(public),
	}
}

// JWKS returns the public key set for the JWKS endpoint.
func (k *KeyPair) JWKS() JWKS {
	return JWKS{Keys: []JWK{{
		Kty: "RSA",
		Use: "sig",
		Alg: "RS256",
		Kid: k.KeyID,
		N:   base64.RawURLEncoding.EncodeToString(k.Public.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(k.Public.E)).Bytes()),
	}}}
}

// thumbprint derives the key id from the RFC 7638 JWK thumbprint of the
// public key, truncated for header compactness. Deterministic across
// restarts for the same key material.
func thumbprint(public *rsa.PublicKey) string {
	canonical, _ := json.Marshal(struct {
		E   string `json:"e"`
		Kty string `json:"kty"`
		N   string `json:"n"`
	}{
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(public.E)).Bytes()),
		Kty: "RSA",
		N:   base64.RawURLEncoding.EncodeToString(public.N.Bytes()),
	})
	sum := sha256.Sum256(canonical)
	return base64.RawURLEncoding.EncodeToString(sum[:])[:16]
}

func parsePrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not RSA")
	}
	return key, nil
}

func parsePublicKey(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not RSA")
	}
	return key, nil
}
