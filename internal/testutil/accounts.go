package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolchallenge/core"
	"github.com/tolelom/tolchallenge/crypto"
)

// Key returns a deterministic key pair derived from label so test failures
// print stable addresses.
func Key(t testing.TB, label string) (crypto.PrivateKey, string) {
	t.Helper()
	priv, err := crypto.KeyFromSeed(crypto.HashBytes([]byte("testutil/" + label)))
	require.NoError(t, err)
	return priv, priv.Public().Hex()
}

// Fund sets the native balance of addr, creating the account if needed.
func Fund(t testing.TB, st core.State, addr string, balance uint64) {
	t.Helper()
	acc, err := st.GetAccount(addr)
	require.NoError(t, err)
	acc.Balance = balance
	require.NoError(t, st.SetAccount(acc))
}

// Balance returns the native balance of addr.
func Balance(t testing.TB, st core.State, addr string) uint64 {
	t.Helper()
	acc, err := st.GetAccount(addr)
	require.NoError(t, err)
	return acc.Balance
}
