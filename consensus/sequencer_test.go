package consensus_test

import (
	"encoding/hex"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolchallenge/access"
	"github.com/tolelom/tolchallenge/config"
	"github.com/tolelom/tolchallenge/consensus"
	"github.com/tolelom/tolchallenge/core"
	"github.com/tolelom/tolchallenge/crypto"
	"github.com/tolelom/tolchallenge/events"
	"github.com/tolelom/tolchallenge/indexer"
	"github.com/tolelom/tolchallenge/internal/testutil"
	"github.com/tolelom/tolchallenge/proof"
	"github.com/tolelom/tolchallenge/vm"
	"github.com/tolelom/tolchallenge/vm/modules/challenge"
	"github.com/tolelom/tolchallenge/vm/modules/economy"
	"github.com/tolelom/tolchallenge/wallet"
)

type node struct {
	cfg     *config.Config
	st      core.State
	bc      *core.Blockchain
	mempool *core.Mempool
	seq     *consensus.Sequencer
	idx     *indexer.Indexer
	prover  *proof.Prover
	chainID string
}

func newNode(t *testing.T, alloc map[string]uint64) *node {
	t.Helper()
	proposerPriv, _ := testutil.Key(t, "proposer")
	cfg := config.DefaultConfig()
	cfg.Genesis.Alloc = alloc
	cfg.Genesis.ProviderVault = "provider-vault"

	st := testutil.NewStateDB()
	gate := access.NewGate(cfg.Genesis.AdminTransferDelay())
	genesis, err := config.CreateGenesisBlock(cfg, st, gate, proposerPriv)
	require.NoError(t, err)
	bc := core.NewBlockchain(testutil.NewMemBlockStore())
	require.NoError(t, bc.AddBlock(genesis))

	proverPriv, _ := testutil.Key(t, "prover")
	prover := proof.NewProver(proverPriv, proof.DefaultImageID, uint256.NewInt(12345))
	oracle, err := proof.NewAttestationVerifier(prover.PublicKey())
	require.NoError(t, err)

	engine := challenge.New(challenge.Config{}, oracle, gate)
	registry := vm.NewRegistry(economy.Module{}, gate, engine)
	emitter := events.NewEmitter()
	idx := indexer.New(testutil.NewMemDB(), emitter, nil)
	mempool := core.NewMempool(core.WithChainID(cfg.Genesis.ChainID), core.WithTxTypes(registry.Types()))
	exec := vm.NewExecutor(st, registry, emitter)
	seq := consensus.New(cfg, bc, st, mempool, exec, emitter, proposerPriv, nil)

	return &node{
		cfg: cfg, st: st, bc: bc, mempool: mempool, seq: seq, idx: idx,
		prover: prover, chainID: cfg.Genesis.ChainID,
	}
}

// submit returns a sink for a wallet builder's (tx, err) result.
func (n *node) submit(t *testing.T) func(*core.Transaction, error) {
	return func(tx *core.Transaction, err error) {
		t.Helper()
		require.NoError(t, err)
		require.NoError(t, n.mempool.Add(tx))
	}
}

func (n *node) seal(t *testing.T, secret uint64) string {
	t.Helper()
	seal, _, err := n.prover.Prove(uint256.NewInt(secret))
	require.NoError(t, err)
	return hex.EncodeToString(seal)
}

func TestChallengeRoundThroughBlocks(t *testing.T) {
	adminPriv, _ := testutil.Key(t, "proposer")
	p1Priv, p1 := testutil.Key(t, "p1")
	p2Priv, p2 := testutil.Key(t, "p2")
	medPriv, med := testutil.Key(t, "mediator")
	n := newNode(t, map[string]uint64{p1: 100, p2: 100})
	admin, w1, w2, mediator := wallet.New(adminPriv), wallet.New(p1Priv), wallet.New(p2Priv), wallet.New(medPriv)

	// Block 1: create.
	n.submit(t)(admin.CreateChallenge(n.chainID, core.ChallengeCreatePayload{
		Mediator:       med,
		EntryAmount:    10,
		Limit:          2,
		IsNative:       true,
		ProviderAmount: 1,
		MediatorAmount: 1,
		CorrelationID:  "match-1",
	}, 0, 0))
	b1, err := n.seq.ProduceBlock()
	require.NoError(t, err)
	require.Len(t, b1.Transactions, 1)
	id, err := n.idx.GetChallengeByCorrelation("match-1")
	require.NoError(t, err)
	require.Equal(t, challenge.DeriveID(challenge.ModuleAccount, 0), id)

	// Block 2: p2's first attempt carries p1's seal for the wrong input
	// and is dropped; its retry with the same nonce is included.
	seal := n.seal(t, 12345)
	n.submit(t)(w1.JoinChallenge(n.chainID, id, "12345", seal, 10, 0, 0))
	n.submit(t)(w2.JoinChallenge(n.chainID, id, "54321", seal, 10, 0, 0))
	n.submit(t)(w2.JoinChallenge(n.chainID, id, "12345", "0x"+seal, 10, 0, 0))
	b2, err := n.seq.ProduceBlock()
	require.NoError(t, err)
	require.Len(t, b2.Transactions, 2)
	require.Zero(t, n.mempool.Size(), "dropped transactions leave the pool")
	require.Equal(t, uint64(20), testutil.Balance(t, n.st, challenge.ModuleAccount))

	// Block 3: lock, then resolve with 16 to p1 and 2+2 in fees.
	n.submit(t)(admin.LockChallenge(n.chainID, id, 1, 0))
	n.submit(t)(mediator.ResolveChallenge(n.chainID, id, "mediator-vault", []core.Payout{{To: p1, Amount: 16}}, 0, 0))
	b3, err := n.seq.ProduceBlock()
	require.NoError(t, err)
	require.Len(t, b3.Transactions, 2)
	require.Equal(t, int64(3), n.bc.Height())

	c, err := n.st.GetChallenge(id)
	require.NoError(t, err)
	require.Equal(t, core.ChallengeResolved, c.State)
	for addr, want := range map[string]uint64{
		p1:                      106,
		p2:                      90,
		"provider-vault":        2,
		"mediator-vault":        2,
		challenge.ModuleAccount: 0,
	} {
		require.Equal(t, want, testutil.Balance(t, n.st, addr), addr)
	}

	ids, err := n.idx.GetChallengesByPlayer(p2)
	require.NoError(t, err)
	require.Equal(t, []string{id}, ids)
	require.Equal(t, b3.Header.StateRoot, n.st.ComputeRoot())
}

func TestProduceEmptyBlocks(t *testing.T) {
	n := newNode(t, nil)
	genesis := n.bc.Tip()

	b, err := n.seq.ProduceBlock()
	require.NoError(t, err)
	require.Equal(t, int64(1), b.Header.Height)
	require.Equal(t, genesis.Hash, b.Header.PrevHash)
	require.Equal(t, n.chainID, b.Header.ChainID)
	require.Empty(t, b.Transactions)
	require.Equal(t, genesis.Header.StateRoot, b.Header.StateRoot)
}

func TestProposerRotation(t *testing.T) {
	n := newNode(t, nil)
	require.True(t, n.seq.IsProposer())

	_, local := testutil.Key(t, "proposer")
	_, other := testutil.Key(t, "other")
	// Next height is 1: index 1 proposes.
	n.cfg.Validators = []string{local, other}
	require.False(t, n.seq.IsProposer())
	_, err := n.seq.ProduceBlock()
	require.Error(t, err)

	n.cfg.Validators = []string{other, local}
	require.True(t, n.seq.IsProposer())
}

func TestProduceBlockNeedsGenesis(t *testing.T) {
	priv, err := crypto.KeyFromSeed(crypto.HashBytes([]byte("solo")))
	require.NoError(t, err)
	st := testutil.NewStateDB()
	seq := consensus.New(config.DefaultConfig(), core.NewBlockchain(testutil.NewMemBlockStore()), st,
		core.NewMempool(), vm.NewExecutor(st, vm.NewRegistry(), nil), nil, priv, nil)
	_, err = seq.ProduceBlock()
	require.ErrorContains(t, err, "genesis")
}
