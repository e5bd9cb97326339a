package core_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolchallenge/core"
	"github.com/tolelom/tolchallenge/internal/testutil"
)

func TestMempoolAddAndRemove(t *testing.T) {
	mp := core.NewMempool()
	tx := signedTx(t, "alice", 0)

	require.NoError(t, mp.Add(tx))
	require.Equal(t, 1, mp.Size())
	require.ErrorIs(t, mp.Add(tx), core.ErrDuplicateTx)

	got, ok := mp.Get(tx.ID)
	require.True(t, ok)
	require.Same(t, tx, got)

	mp.Remove([]string{tx.ID})
	require.Zero(t, mp.Size())
	require.Empty(t, mp.Pending(10))
}

func TestMempoolRejects(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	mp := core.NewMempool(
		core.WithChainID(chainID),
		core.WithClock(func() time.Time { return now }),
		core.WithCapacity(1),
		core.WithTxTypes([]core.TxType{core.TxTransfer}),
	)
	priv, from := testutil.Key(t, "alice")
	build := func(chain string, typ core.TxType, ts time.Time) *core.Transaction {
		tx, err := core.NewTransaction(chain, typ, from, 0, 0, core.TransferPayload{To: "x", Amount: 1})
		require.NoError(t, err)
		tx.Timestamp = ts.UnixNano()
		tx.Sign(priv)
		return tx
	}

	require.ErrorIs(t, mp.Add(build("other", core.TxTransfer, now)), core.ErrWrongChain)
	require.ErrorIs(t, mp.Add(build(chainID, core.TxChallengeJoin, now)), core.ErrUnknownTxType)
	require.ErrorIs(t, mp.Add(build(chainID, core.TxTransfer, now.Add(-2*time.Hour))), core.ErrTxExpired)
	require.ErrorIs(t, mp.Add(build(chainID, core.TxTransfer, now.Add(10*time.Minute))), core.ErrTxFromFuture)

	bad := build(chainID, core.TxTransfer, now)
	bad.Fee = 7
	require.ErrorIs(t, mp.Add(bad), core.ErrInvalidTxSig)

	require.NoError(t, mp.Add(build(chainID, core.TxTransfer, now)))
	require.ErrorIs(t, mp.Add(build(chainID, core.TxTransfer, now.Add(time.Second))), core.ErrMempoolFull)
}

func TestMempoolPendingOrdersNoncesPerSender(t *testing.T) {
	mp := core.NewMempool()
	a2, a0, b0, a1 := signedTx(t, "a", 2), signedTx(t, "a", 0), signedTx(t, "b", 0), signedTx(t, "a", 1)
	for _, tx := range []*core.Transaction{a2, b0, a0, a1} {
		require.NoError(t, mp.Add(tx))
	}

	ids := func(txs []*core.Transaction) []string {
		out := make([]string, len(txs))
		for i, tx := range txs {
			out[i] = tx.ID
		}
		return out
	}
	require.Equal(t, ids([]*core.Transaction{a0, a1, a2, b0}), ids(mp.Pending(10)))
	require.Equal(t, ids([]*core.Transaction{a0, a1}), ids(mp.Pending(2)))
}
