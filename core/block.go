package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tolelom/tolchallenge/crypto"
)

// ErrBlockIntegrity is returned when a block's hash or tx root does not
// match its contents.
var ErrBlockIntegrity = errors.New("block integrity check failed")

// BlockHeader contains the block metadata that is hashed and signed.
type BlockHeader struct {
	ChainID   string `json:"chain_id"`
	Height    int64  `json:"height"`
	PrevHash  string `json:"prev_hash"`
	StateRoot string `json:"state_root"` // hash of state after executing this block
	TxRoot    string `json:"tx_root"`    // hash of all transaction IDs
	Timestamp int64  `json:"timestamp"`  // unix nanoseconds; the clock challenge handlers see
	Proposer  string `json:"proposer"`   // proposer's pubkey hex
}

// Block is a collection of transactions with a signed header.
type Block struct {
	Header       BlockHeader    `json:"header"`
	Transactions []*Transaction `json:"transactions"`
	Hash         string         `json:"hash"`
	Signature    string         `json:"signature"`
}

// ComputeHash returns the SHA-256 hash of the serialised header.
// Returns an empty string if marshalling fails (which cannot happen in practice).
func (b *Block) ComputeHash() string {
	data, err := json.Marshal(b.Header)
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// SetTransactions replaces the block body and recomputes the tx root.
func (b *Block) SetTransactions(txs []*Transaction) {
	b.Transactions = txs
	b.Header.TxRoot = ComputeTxRoot(txs)
}

// Sign sets Hash and signs the block with the proposer's private key.
func (b *Block) Sign(priv crypto.PrivateKey) {
	b.Hash = b.ComputeHash()
	b.Signature = crypto.Sign(priv, []byte(b.Hash))
}

// Verify checks the block signature against the given public key.
func (b *Block) Verify(pub crypto.PublicKey) error {
	if err := b.CheckIntegrity(); err != nil {
		return err
	}
	return crypto.Verify(pub, []byte(b.Hash), b.Signature)
}

// CheckIntegrity reports whether Hash matches the header and TxRoot matches
// the transactions.
func (b *Block) CheckIntegrity() error {
	if b.Hash != b.ComputeHash() {
		return fmt.Errorf("%w: hash %s does not match header", ErrBlockIntegrity, b.Hash)
	}
	if b.Header.TxRoot != ComputeTxRoot(b.Transactions) {
		return fmt.Errorf("%w: tx root mismatch at height %d", ErrBlockIntegrity, b.Header.Height)
	}
	return nil
}

// ComputeTxRoot builds a deterministic root hash from all transaction IDs.
func ComputeTxRoot(txs []*Transaction) string {
	if len(txs) == 0 {
		return crypto.Hash([]byte("empty"))
	}
	ids := make([]string, len(txs))
	for i, tx := range txs {
		ids[i] = tx.ID
	}
	return crypto.HashParts(ids...)
}

// NewBlock creates an unsigned block for chainID with the given parameters.
func NewBlock(chainID string, height int64, prevHash, proposer string, txs []*Transaction) *Block {
	return &Block{
		Header: BlockHeader{
			ChainID:   chainID,
			Height:    height,
			PrevHash:  prevHash,
			TxRoot:    ComputeTxRoot(txs),
			Timestamp: time.Now().UnixNano(),
			Proposer:  proposer,
		},
		Transactions: txs,
	}
}
