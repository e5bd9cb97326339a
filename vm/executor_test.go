package vm_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolchallenge/core"
	"github.com/tolelom/tolchallenge/events"
	"github.com/tolelom/tolchallenge/internal/testutil"
	"github.com/tolelom/tolchallenge/vm"
	"github.com/tolelom/tolchallenge/wallet"
)

// vaultModule writes the payload into the provider vault slot, emits, and
// then fails when asked to.
type vaultModule struct{}

func (vaultModule) Register(r *vm.Registry) {
	r.Register(core.TxProviderVaultSet, func(ctx *vm.Context, payload json.RawMessage) error {
		var p core.ProviderVaultPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		if err := ctx.State.SetProviderVault(p.Vault); err != nil {
			return err
		}
		ctx.Emit(events.EventProviderVaultSet, map[string]any{"vault": p.Vault})
		if p.Vault == "fail" {
			return errors.New("handler failed after writing")
		}
		return nil
	})
}

type fixture struct {
	st    core.State
	exec  *vm.Executor
	w     *wallet.Wallet
	seen  []events.Event
	block *core.Block
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{st: testutil.NewStateDB()}
	priv, addr := testutil.Key(t, "sender")
	f.w = wallet.New(priv)
	testutil.Fund(t, f.st, addr, 100)

	emitter := events.NewEmitter()
	emitter.SubscribeAll(func(ev events.Event) { f.seen = append(f.seen, ev) })
	f.exec = vm.NewExecutor(f.st, vm.NewRegistry(vaultModule{}), emitter)
	f.block = &core.Block{Header: core.BlockHeader{Height: 7, Timestamp: 1}}
	return f
}

func (f *fixture) vaultTx(t *testing.T, vault string, nonce, fee uint64) *core.Transaction {
	t.Helper()
	tx, err := f.w.SetProviderVault("test-chain", vault, nonce, fee)
	require.NoError(t, err)
	return tx
}

func TestExecuteTxChargesFeeAndEmits(t *testing.T) {
	f := newFixture(t)
	tx := f.vaultTx(t, "vault", 0, 5)
	require.NoError(t, f.exec.ExecuteTx(f.block, tx))

	acc, err := f.st.GetAccount(f.w.PubKey())
	require.NoError(t, err)
	require.Equal(t, uint64(95), acc.Balance)
	require.Equal(t, uint64(1), acc.Nonce)

	require.Len(t, f.seen, 2)
	require.Equal(t, events.EventProviderVaultSet, f.seen[0].Type)
	require.Equal(t, tx.ID, f.seen[0].TxID)
	require.Equal(t, int64(7), f.seen[0].BlockHeight)
	require.Equal(t, events.EventTxExecuted, f.seen[1].Type)
}

func TestExecuteTxRevertsEverythingOnFailure(t *testing.T) {
	f := newFixture(t)
	root := f.st.ComputeRoot()

	require.Error(t, f.exec.ExecuteTx(f.block, f.vaultTx(t, "fail", 0, 5)))
	require.Equal(t, root, f.st.ComputeRoot())
	require.Empty(t, f.seen, "events of a failed transaction are dropped")

	vault, err := f.st.GetProviderVault()
	require.NoError(t, err)
	require.Empty(t, vault)
}

func TestExecuteTxPreconditions(t *testing.T) {
	f := newFixture(t)

	require.ErrorContains(t, f.exec.ExecuteTx(f.block, f.vaultTx(t, "v", 3, 0)), "invalid nonce")
	require.ErrorContains(t, f.exec.ExecuteTx(f.block, f.vaultTx(t, "v", 0, 101)), "insufficient balance")

	tampered := f.vaultTx(t, "v", 0, 0)
	tampered.Fee = 1
	require.ErrorContains(t, f.exec.ExecuteTx(f.block, tampered), "signature")

	unknown, err := f.w.Transfer("test-chain", "x", 1, 0, 0)
	require.NoError(t, err)
	require.ErrorContains(t, f.exec.ExecuteTx(f.block, unknown), "no handler")

	// Replaying an executed transaction fails on the nonce.
	tx := f.vaultTx(t, "v", 0, 0)
	require.NoError(t, f.exec.ExecuteTx(f.block, tx))
	require.ErrorContains(t, f.exec.ExecuteTx(f.block, tx), "invalid nonce")
}

func TestExecuteBlockStopsAtFirstFailure(t *testing.T) {
	f := newFixture(t)
	block := &core.Block{
		Header:       f.block.Header,
		Transactions: []*core.Transaction{f.vaultTx(t, "a", 0, 0), f.vaultTx(t, "fail", 1, 0)},
	}
	require.Error(t, f.exec.ExecuteBlock(block))
	vault, err := f.st.GetProviderVault()
	require.NoError(t, err)
	require.Equal(t, "a", vault)
}

func TestRegistry(t *testing.T) {
	r := vm.NewRegistry(vaultModule{})
	require.Equal(t, []core.TxType{core.TxProviderVaultSet}, r.Types())
	require.Panics(t, func() { vaultModule{}.Register(r) })
}
