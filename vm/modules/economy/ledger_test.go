package economy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolchallenge/core"
	"github.com/tolelom/tolchallenge/internal/testutil"
)

func TestTransferNative(t *testing.T) {
	st := testutil.NewStateDB()
	testutil.Fund(t, st, "alice", 100)
	l := NewLedger(st)

	require.NoError(t, l.TransferNative("alice", "bob", 40))
	require.Equal(t, uint64(60), testutil.Balance(t, st, "alice"))
	require.Equal(t, uint64(40), testutil.Balance(t, st, "bob"))

	require.ErrorIs(t, l.TransferNative("alice", "bob", 61), ErrInsufficientBalance)
	require.ErrorIs(t, l.TransferNative("alice", "", 1), ErrEmptyRecipient)
	require.NoError(t, l.TransferNative("nobody", "bob", 0), "zero amounts are no-ops")
	require.NoError(t, l.TransferNative("alice", "alice", 60))
	require.Equal(t, uint64(60), testutil.Balance(t, st, "alice"))

	testutil.Fund(t, st, "whale", math.MaxUint64)
	require.ErrorIs(t, l.TransferNative("alice", "whale", 1), ErrBalanceOverflow)
}

func TestTokenTransferFrom(t *testing.T) {
	st := testutil.NewStateDB()
	require.NoError(t, st.SetToken(&core.Token{ID: "tok", Symbol: "TOK", Issuer: "alice", TotalSupply: 100}))
	l := NewLedger(st)
	require.NoError(t, l.mint("tok", "alice", 100))

	require.ErrorIs(t, l.TokenTransfer("nope", "alice", "bob", 1), ErrUnknownToken)
	require.ErrorIs(t, l.TokenTransferFrom("tok", "alice", "spender", "bob", 10), ErrInsufficientAllowance)

	require.NoError(t, l.Approve("tok", "alice", "spender", 30))
	require.NoError(t, l.TokenTransferFrom("tok", "alice", "spender", "bob", 10))

	left, err := l.TokenAllowance("tok", "alice", "spender")
	require.NoError(t, err)
	require.Equal(t, uint64(20), left)
	bal, err := st.GetTokenBalance("tok", "bob")
	require.NoError(t, err)
	require.Equal(t, uint64(10), bal)

	require.ErrorIs(t, l.TokenTransfer("tok", "bob", "carol", 11), ErrInsufficientBalance)
	require.ErrorIs(t, l.Approve("tok", "alice", "", 1), ErrEmptyRecipient)
}
