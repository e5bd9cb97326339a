package economy_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolchallenge/core"
	"github.com/tolelom/tolchallenge/internal/testutil"
	"github.com/tolelom/tolchallenge/vm"
	"github.com/tolelom/tolchallenge/vm/modules/economy"
	"github.com/tolelom/tolchallenge/wallet"
)

const chainID = "test-chain"

func TestTokenLifecycle(t *testing.T) {
	st := testutil.NewStateDB()
	exec := vm.NewExecutor(st, vm.NewRegistry(economy.Module{}), nil)
	block := &core.Block{Header: core.BlockHeader{Height: 1, Timestamp: 1}}

	issuerPriv, issuer := testutil.Key(t, "issuer")
	issuerW := wallet.New(issuerPriv)
	spenderPriv, spender := testutil.Key(t, "spender")
	spenderW := wallet.New(spenderPriv)
	_, bob := testutil.Key(t, "bob")

	tx, err := issuerW.CreateToken(chainID, "TOL", 1_000, 0, 0)
	require.NoError(t, err)
	require.NoError(t, exec.ExecuteTx(block, tx))
	id := economy.TokenID(tx.ID, "TOL")

	tok, err := st.GetToken(id)
	require.NoError(t, err)
	require.Equal(t, issuer, tok.Issuer)
	require.Equal(t, uint64(1_000), tok.TotalSupply)

	tx, err = issuerW.TransferToken(chainID, id, bob, 100, 1, 0)
	require.NoError(t, err)
	require.NoError(t, exec.ExecuteTx(block, tx))

	tx, err = issuerW.Approve(chainID, id, spender, 50, 2, 0)
	require.NoError(t, err)
	require.NoError(t, exec.ExecuteTx(block, tx))
	allowance, err := st.GetTokenAllowance(id, issuer, spender)
	require.NoError(t, err)
	require.Equal(t, uint64(50), allowance)

	// Spender holds no units of its own.
	tx, err = spenderW.TransferToken(chainID, id, bob, 1, 0, 0)
	require.NoError(t, err)
	require.ErrorIs(t, exec.ExecuteTx(block, tx), economy.ErrInsufficientBalance)

	bal, err := st.GetTokenBalance(id, bob)
	require.NoError(t, err)
	require.Equal(t, uint64(100), bal)
	bal, err = st.GetTokenBalance(id, issuer)
	require.NoError(t, err)
	require.Equal(t, uint64(900), bal)
}

func TestTokenCreateValidation(t *testing.T) {
	st := testutil.NewStateDB()
	exec := vm.NewExecutor(st, vm.NewRegistry(economy.Module{}), nil)
	block := &core.Block{Header: core.BlockHeader{Height: 1}}
	priv, _ := testutil.Key(t, "issuer")
	w := wallet.New(priv)

	tx, err := w.CreateToken(chainID, "", 1, 0, 0)
	require.NoError(t, err)
	require.ErrorContains(t, exec.ExecuteTx(block, tx), "symbol")

	tx, err = w.CreateToken(chainID, "TOL", 0, 0, 0)
	require.NoError(t, err)
	require.ErrorContains(t, exec.ExecuteTx(block, tx), "supply")

	tx, err = w.Approve(chainID, "missing", "x", 1, 0, 0)
	require.NoError(t, err)
	require.ErrorIs(t, exec.ExecuteTx(block, tx), core.ErrNotFound)
}

func TestNativeTransfer(t *testing.T) {
	st := testutil.NewStateDB()
	exec := vm.NewExecutor(st, vm.NewRegistry(economy.Module{}), nil)
	block := &core.Block{Header: core.BlockHeader{Height: 1}}
	priv, alice := testutil.Key(t, "alice")
	testutil.Fund(t, st, alice, 100)
	w := wallet.New(priv)

	tx, err := w.Transfer(chainID, "bob", 30, 0, 2)
	require.NoError(t, err)
	require.NoError(t, exec.ExecuteTx(block, tx))
	require.Equal(t, uint64(68), testutil.Balance(t, st, alice))
	require.Equal(t, uint64(30), testutil.Balance(t, st, "bob"))

	tx, err = w.Transfer(chainID, "bob", 0, 1, 0)
	require.NoError(t, err)
	require.Error(t, exec.ExecuteTx(block, tx))
}
