package crypto

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// Hash returns the SHA-256 hash of data as a lowercase hex string.
func Hash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// HashBytes returns the raw SHA-256 bytes of data.
func HashBytes(data []byte) []byte {
	h := sha256.Sum256(data)
	return h[:]
}

// HashParts hashes a sequence of strings, each prefixed with its length,
// so that no two different sequences share a preimage ("a:b","c" vs
// "a","b:c"). Used for deriving object ids.
func HashParts(parts ...string) string {
	h := sha256.New()
	var n [8]byte
	for _, p := range parts {
		binary.BigEndian.PutUint64(n[:], uint64(len(p)))
		h.Write(n[:])
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}
