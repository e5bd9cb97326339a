// Package proof is the trust boundary to the succinct-proof system that gates
// challenge admission. The chain never runs the guest program itself; it
// only checks that a seal attests to a known program (image id) having
// committed a given journal.
//
// The accepted guest reads a 256-bit secret, asserts it matches its
// embedded value, and commits the 32-byte big-endian encoding of that value
// as its journal. Verifiers receive sha256(journal) as the digest.
package proof

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// Digest is a 32-byte hash: an image id or a journal digest.
type Digest [32]byte

// Hex returns the lowercase hex encoding of d.
func (d Digest) Hex() string {
	return hex.EncodeToString(d[:])
}

func (d Digest) String() string { return d.Hex() }

// IsZero reports whether d is all zeros.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// DigestFromHex parses a 64-char hex string, with or without 0x prefix.
func DigestFromHex(s string) (Digest, error) {
	var d Digest
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("invalid digest hex: %w", err)
	}
	if len(b) != len(d) {
		return d, fmt.Errorf("digest must be %d bytes, got %d", len(d), len(b))
	}
	copy(d[:], b)
	return d, nil
}

// DefaultImageID identifies the single accepted guest program.
var DefaultImageID = Digest{
	0x2f, 0x4c, 0x8a, 0x1e, 0x93, 0x07, 0xd5, 0x6b,
	0xc1, 0x58, 0x0e, 0xa4, 0x7d, 0x36, 0xf2, 0x19,
	0x8b, 0x64, 0x0c, 0xe7, 0x52, 0xa9, 0x3f, 0x10,
	0xd8, 0x47, 0xbe, 0x25, 0x96, 0x6a, 0x0f, 0xc3,
}

// ErrInvalidSeal is returned by verifiers when a seal does not attest to the
// given image id and digest.
var ErrInvalidSeal = errors.New("proof: invalid seal")

// Verifier checks a succinct proof against a program identifier and the
// expected journal digest. A nil error means the proof is valid.
type Verifier interface {
	Verify(seal []byte, imageID, journalDigest Digest) error
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(seal []byte, imageID, journalDigest Digest) error

func (f VerifierFunc) Verify(seal []byte, imageID, journalDigest Digest) error {
	return f(seal, imageID, journalDigest)
}

// ParseInput parses a decimal 256-bit secret input.
func ParseInput(s string) (*uint256.Int, error) {
	if s == "" {
		return nil, errors.New("proof: empty input")
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("proof: invalid input %q: %w", s, err)
	}
	return v, nil
}

// EncodeInput returns the journal committed by the guest for input: the
// 32-byte big-endian word.
func EncodeInput(input *uint256.Int) []byte {
	w := input.Bytes32()
	return w[:]
}

// JournalDigest hashes a committed journal.
func JournalDigest(journal []byte) Digest {
	return Digest(sha256.Sum256(journal))
}

// InputDigest is JournalDigest(EncodeInput(input)).
func InputDigest(input *uint256.Int) Digest {
	return JournalDigest(EncodeInput(input))
}
