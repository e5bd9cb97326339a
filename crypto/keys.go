// Package crypto wraps ed25519 keys and SHA-256 hashing. Account addresses
// on chain are hex-encoded ed25519 public keys.
package crypto

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// PrivateKey wraps ed25519 private key bytes.
type PrivateKey []byte

// PublicKey wraps ed25519 public key bytes.
type PublicKey []byte

// GenerateKeyPair generates a new ed25519 key pair.
func GenerateKeyPair() (PrivateKey, PublicKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	return PrivateKey(priv), PublicKey(pub), nil
}

// KeyFromSeed derives the private key for a 32-byte seed.
func KeyFromSeed(seed []byte) (PrivateKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return PrivateKey(ed25519.NewKeyFromSeed(seed)), nil
}

// Address returns a 40-char hex address derived from the public key.
// It takes the first 20 bytes of SHA-256(pubkey).
func (pub PublicKey) Address() string {
	h := HashBytes(pub)
	return hex.EncodeToString(h[:20])
}

// Hex returns the full 64-char hex-encoded public key.
func (pub PublicKey) Hex() string {
	return hex.EncodeToString(pub)
}

// Equal reports whether pub and other are the same key.
func (pub PublicKey) Equal(other PublicKey) bool {
	return bytes.Equal(pub, other)
}

// Hex returns the hex-encoded private key.
func (priv PrivateKey) Hex() string {
	return hex.EncodeToString(priv)
}

// Public derives the ed25519 public key from the private key.
func (priv PrivateKey) Public() PublicKey {
	return PublicKey(ed25519.PrivateKey(priv).Public().(ed25519.PublicKey))
}

// PubKeyFromHex decodes a hex-encoded public key.
func PubKeyFromHex(s string) (PublicKey, error) {
	b, err := decodeSized(s, ed25519.PublicKeySize, "pubkey")
	return PublicKey(b), err
}

// PrivKeyFromHex decodes a hex-encoded private key.
func PrivKeyFromHex(s string) (PrivateKey, error) {
	b, err := decodeSized(s, ed25519.PrivateKeySize, "privkey")
	return PrivateKey(b), err
}

func decodeSized(s string, size int, what string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s hex: %w", what, err)
	}
	if len(b) != size {
		return nil, fmt.Errorf("%s must be %d bytes, got %d", what, size, len(b))
	}
	return b, nil
}
