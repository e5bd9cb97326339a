package crypto

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrInvalidSignature is returned when a signature does not verify.
var ErrInvalidSignature = errors.New("signature verification failed")

// Sign signs data with the private key and returns a hex-encoded signature.
func Sign(priv PrivateKey, data []byte) string {
	return hex.EncodeToString(SignRaw(priv, data))
}

// SignRaw signs data and returns the 64-byte signature.
func SignRaw(priv PrivateKey, data []byte) []byte {
	return ed25519.Sign(ed25519.PrivateKey(priv), data)
}

// Verify checks a hex-encoded signature against data using the public key.
func Verify(pub PublicKey, data []byte, sigHex string) error {
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return fmt.Errorf("invalid signature hex: %w", err)
	}
	return VerifyRaw(pub, data, sig)
}

// VerifyRaw checks a raw signature against data using the public key.
func VerifyRaw(pub PublicKey, data, sig []byte) error {
	if len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("pubkey must be %d bytes, got %d", ed25519.PublicKeySize, len(pub))
	}
	if len(sig) != ed25519.SignatureSize || !ed25519.Verify(ed25519.PublicKey(pub), data, sig) {
		return ErrInvalidSignature
	}
	return nil
}
