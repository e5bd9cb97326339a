// Package wallet provides key management and transaction signing helpers.
package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/pbkdf2"

	"github.com/tolelom/tolchallenge/crypto"
)

const (
	kdfName          = "pbkdf2-sha256"
	defaultKDFRounds = 210_000
)

// ErrWrongPassword is returned by LoadKey when decryption fails.
var ErrWrongPassword = errors.New("wallet: wrong password or corrupted keystore")

// keystoreFile is the on-disk layout. Files written before the KDF fields
// existed decode with zero values and use the defaults.
type keystoreFile struct {
	PubKey     string `json:"pub_key"`
	KDF        string `json:"kdf,omitempty"`
	Rounds     int    `json:"rounds,omitempty"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	CipherText string `json:"cipher_text"`
}

// SaveKey encrypts priv with password and writes it to path. The key is
// sealed with AES-256-GCM under a PBKDF2-SHA256 derived key.
func SaveKey(path, password string, priv crypto.PrivateKey) error {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return err
	}
	gcm, err := newGCM(password, salt, defaultKDFRounds)
	if err != nil {
		return err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return err
	}
	pub := priv.Public().Hex()
	// The public key is bound as associated data so it cannot be swapped.
	cipherText := gcm.Seal(nil, nonce, priv, []byte(pub))

	ks := keystoreFile{
		PubKey:     pub,
		KDF:        kdfName,
		Rounds:     defaultKDFRounds,
		Salt:       hex.EncodeToString(salt),
		Nonce:      hex.EncodeToString(nonce),
		CipherText: hex.EncodeToString(cipherText),
	}
	data, err := json.MarshalIndent(ks, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// LoadKey decrypts the keystore at path using password.
func LoadKey(path, password string) (crypto.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ks keystoreFile
	if err := json.Unmarshal(data, &ks); err != nil {
		return nil, fmt.Errorf("wallet: parse keystore: %w", err)
	}
	if ks.KDF != "" && ks.KDF != kdfName {
		return nil, fmt.Errorf("wallet: unsupported kdf %q", ks.KDF)
	}
	rounds := ks.Rounds
	if rounds == 0 {
		rounds = defaultKDFRounds
	}

	var salt, nonce, cipherText []byte
	for _, f := range []struct {
		dst *[]byte
		src string
	}{{&salt, ks.Salt}, {&nonce, ks.Nonce}, {&cipherText, ks.CipherText}} {
		if *f.dst, err = hex.DecodeString(f.src); err != nil {
			return nil, fmt.Errorf("wallet: decode keystore: %w", err)
		}
	}

	gcm, err := newGCM(password, salt, rounds)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("wallet: nonce length %d", len(nonce))
	}
	privBytes, err := gcm.Open(nil, nonce, cipherText, []byte(ks.PubKey))
	if err != nil {
		return nil, ErrWrongPassword
	}
	priv := crypto.PrivateKey(privBytes)
	if priv.Public().Hex() != ks.PubKey {
		return nil, ErrWrongPassword
	}
	return priv, nil
}

func newGCM(password string, salt []byte, rounds int) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, rounds, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
