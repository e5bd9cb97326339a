package wallet

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeystoreRoundTrip(t *testing.T) {
	w, err := Generate()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "validator.key")

	require.NoError(t, SaveKey(path, "hunter2", w.PrivKey()))
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())

	priv, err := LoadKey(path, "hunter2")
	require.NoError(t, err)
	require.Equal(t, w.PubKey(), priv.Public().Hex())

	_, err = LoadKey(path, "wrong")
	require.ErrorIs(t, err, ErrWrongPassword)
}

func TestKeystoreBindsPublicKey(t *testing.T) {
	w, err := Generate()
	require.NoError(t, err)
	other, err := Generate()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "k.json")
	require.NoError(t, SaveKey(path, "pw", w.PrivKey()))

	var ks keystoreFile
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &ks))
	require.Equal(t, kdfName, ks.KDF)
	require.Equal(t, defaultKDFRounds, ks.Rounds)

	ks.PubKey = other.PubKey()
	data, err = json.Marshal(ks)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0600))
	_, err = LoadKey(path, "pw")
	require.ErrorIs(t, err, ErrWrongPassword)

	ks.KDF = "scrypt"
	data, err = json.Marshal(ks)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0600))
	_, err = LoadKey(path, "pw")
	require.ErrorContains(t, err, "unsupported kdf")
}

func TestWalletTransactionsAreSigned(t *testing.T) {
	w, err := Generate()
	require.NoError(t, err)
	require.Len(t, w.Address(), 40)

	tx, err := w.JoinChallenge("test-chain", "c1", "12345", "0xabcd", 10, 3, 1)
	require.NoError(t, err)
	require.Equal(t, w.PubKey(), tx.From)
	require.Equal(t, uint64(3), tx.Nonce)
	require.NoError(t, tx.Verify())
	require.JSONEq(t, `{"challenge_id":"c1","input":"12345","seal":"0xabcd","value":10}`, string(tx.Payload))
}
