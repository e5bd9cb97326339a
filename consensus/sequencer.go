// Package consensus produces blocks. Validators propose in round-robin
// order by height; with no validator set the local key proposes every
// block. Each block is signed by its proposer.
package consensus

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tolelom/tolchallenge/config"
	"github.com/tolelom/tolchallenge/core"
	"github.com/tolelom/tolchallenge/crypto"
	"github.com/tolelom/tolchallenge/events"
	"github.com/tolelom/tolchallenge/vm"
)

var (
	chainHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chain_height",
		Help: "Height of the latest committed block.",
	})
	mempoolSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mempool_size",
		Help: "Pending transactions after the latest block.",
	})
	txsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sequencer_transactions_total",
		Help: "Transactions taken from the mempool by outcome (included, dropped).",
	}, []string{"outcome"})
)

// Sequencer produces blocks from the mempool.
type Sequencer struct {
	mu      sync.Mutex // one block at a time
	cfg     *config.Config
	bc      *core.Blockchain
	state   core.State
	mempool *core.Mempool
	exec    *vm.Executor
	emitter *events.Emitter
	privKey crypto.PrivateKey
	pubKey  crypto.PublicKey
	log     *slog.Logger
}

// New creates a Sequencer for the local validator identified by privKey.
func New(
	cfg *config.Config,
	bc *core.Blockchain,
	state core.State,
	mempool *core.Mempool,
	exec *vm.Executor,
	emitter *events.Emitter,
	privKey crypto.PrivateKey,
	logger *slog.Logger,
) *Sequencer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sequencer{
		cfg:     cfg,
		bc:      bc,
		state:   state,
		mempool: mempool,
		exec:    exec,
		emitter: emitter,
		privKey: privKey,
		pubKey:  privKey.Public(),
		log:     logger.With("component", "sequencer"),
	}
}

// IsProposer reports whether this node should propose the next block. With
// no validators configured the local key proposes every block.
func (s *Sequencer) IsProposer() bool {
	if len(s.cfg.Validators) == 0 {
		return true
	}
	nextHeight := s.bc.Height() + 1
	idx := int(nextHeight) % len(s.cfg.Validators)
	return s.cfg.Validators[idx] == s.pubKey.Hex()
}

// ProduceBlock executes pending transactions, signs a block holding the ones
// that succeeded and commits it. Failing transactions are dropped from the
// mempool and leave no trace in state.
func (s *Sequencer) ProduceBlock() (*core.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.IsProposer() {
		return nil, errors.New("not the proposer for this round")
	}

	limit := s.cfg.MaxBlockTxs
	if limit <= 0 {
		limit = 500
	}
	pending := s.mempool.Pending(limit)

	tip := s.bc.Tip()
	if tip == nil {
		return nil, errors.New("chain has no genesis block")
	}

	snap, err := s.state.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	block := core.NewBlock(s.cfg.Genesis.ChainID, tip.Header.Height+1, tip.Hash, s.pubKey.Hex(), nil)
	included := make([]*core.Transaction, 0, len(pending))
	done := make([]string, 0, len(pending))
	for _, tx := range pending {
		done = append(done, tx.ID)
		if err := s.exec.ExecuteTx(block, tx); err != nil {
			txsProcessed.WithLabelValues("dropped").Inc()
			s.log.Info("transaction dropped", "tx", tx.ID, "type", tx.Type, "from", tx.From, "err", err)
			continue
		}
		txsProcessed.WithLabelValues("included").Inc()
		included = append(included, tx)
	}
	block.SetTransactions(included)

	// Compute root from the write buffer BEFORE flushing so that if AddBlock
	// fails the state has not yet been persisted and the node stays consistent.
	block.Header.StateRoot = s.state.ComputeRoot()
	block.Sign(s.privKey)

	if err := s.bc.AddBlock(block); err != nil {
		if revertErr := s.state.RevertToSnapshot(snap); revertErr != nil {
			return nil, fmt.Errorf("add block: %w (revert: %v)", err, revertErr)
		}
		return nil, fmt.Errorf("add block: %w", err)
	}

	// Flush state only after the block is safely stored.
	if err := s.state.Commit(); err != nil {
		s.log.Error("block stored but state commit failed", "height", block.Header.Height, "err", err)
		os.Exit(1)
	}

	// Emit after Sign() so block.Hash is set correctly.
	if s.emitter != nil {
		s.emitter.Emit(events.Event{
			Type:        events.EventBlockCommit,
			BlockHeight: block.Header.Height,
			Data:        map[string]any{"hash": block.Hash, "txs": len(block.Transactions)},
		})
	}

	s.mempool.Remove(done)
	chainHeight.Set(float64(block.Header.Height))
	mempoolSize.Set(float64(s.mempool.Size()))
	s.log.Debug("block committed", "height", block.Header.Height, "hash", block.Hash,
		"txs", len(included), "dropped", len(done)-len(included))
	return block, nil
}

// Run starts the block-production loop with the given interval. It blocks
// until done is closed.
func (s *Sequencer) Run(interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if s.IsProposer() {
				if _, err := s.ProduceBlock(); err != nil {
					s.log.Error("produce block", "err", err)
				}
			}
		}
	}
}
