package core

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

const (
	defaultMempoolSize = 10_000
	maxTxAge           = int64(time.Hour)       // reject txs older than 1 hour
	maxTxFuture        = int64(5 * time.Minute) // reject txs more than 5 min in the future
)

var (
	ErrMempoolFull   = errors.New("mempool full")
	ErrDuplicateTx   = errors.New("tx already in pool")
	ErrTxExpired     = errors.New("transaction expired")
	ErrTxFromFuture  = errors.New("transaction timestamp too far in the future")
	ErrWrongChain    = errors.New("transaction is for a different chain")
	ErrUnknownTxType = errors.New("unknown transaction type")
	ErrInvalidTxSig  = errors.New("invalid tx signature")
)

// MempoolOption configures a Mempool.
type MempoolOption func(*Mempool)

// WithChainID rejects transactions whose ChainID differs from id.
func WithChainID(id string) MempoolOption {
	return func(m *Mempool) { m.chainID = id }
}

// WithCapacity bounds the number of pending transactions.
func WithCapacity(n int) MempoolOption {
	return func(m *Mempool) { m.capacity = n }
}

// WithClock replaces time.Now for timestamp window checks.
func WithClock(now func() time.Time) MempoolOption {
	return func(m *Mempool) { m.now = now }
}

// WithTxTypes rejects transactions of any type not in types.
func WithTxTypes(types []TxType) MempoolOption {
	return func(m *Mempool) {
		m.types = make(map[TxType]bool, len(types))
		for _, t := range types {
			m.types[t] = true
		}
	}
}

// Mempool is a thread-safe pending-transaction pool.
type Mempool struct {
	mu  sync.RWMutex
	txs map[string]*Transaction
	ord []string // insertion-ordered IDs for deterministic pending iteration

	chainID  string
	capacity int
	now      func() time.Time
	types    map[TxType]bool // nil → any type
}

// NewMempool creates an empty mempool.
func NewMempool(opts ...MempoolOption) *Mempool {
	m := &Mempool{
		txs:      make(map[string]*Transaction),
		capacity: defaultMempoolSize,
		now:      time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Add validates and inserts a transaction. Returns an error if the pool is
// full, the tx is already present, the signature is invalid, the chain id
// or type is not accepted, or the timestamp is out of the acceptable window
// (-1 h / +5 min).
func (m *Mempool) Add(tx *Transaction) error {
	if m.chainID != "" && tx.ChainID != m.chainID {
		return fmt.Errorf("%w: got %q want %q", ErrWrongChain, tx.ChainID, m.chainID)
	}
	if m.types != nil && !m.types[tx.Type] {
		return fmt.Errorf("%w: %q", ErrUnknownTxType, tx.Type)
	}
	if err := tx.Verify(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTxSig, err)
	}
	now := m.now().UnixNano()
	if now-tx.Timestamp > maxTxAge {
		return ErrTxExpired
	}
	if tx.Timestamp-now > maxTxFuture {
		return ErrTxFromFuture
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.txs) >= m.capacity {
		return ErrMempoolFull
	}
	if _, exists := m.txs[tx.ID]; exists {
		return ErrDuplicateTx
	}
	m.txs[tx.ID] = tx
	m.ord = append(m.ord, tx.ID)
	return nil
}

// Get returns a transaction by ID.
func (m *Mempool) Get(id string) (*Transaction, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.txs[id]
	return tx, ok
}

// Pending returns up to n pending transactions. Senders appear in the order
// their first transaction arrived; each sender's transactions are grouped
// and sorted by nonce so out-of-order submissions still execute.
func (m *Mempool) Pending(n int) []*Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var senders []string
	bySender := make(map[string][]*Transaction)
	for _, id := range m.ord {
		tx, ok := m.txs[id]
		if !ok {
			continue
		}
		if _, seen := bySender[tx.From]; !seen {
			senders = append(senders, tx.From)
		}
		bySender[tx.From] = append(bySender[tx.From], tx)
	}

	result := make([]*Transaction, 0, min(n, len(m.txs)))
	for _, from := range senders {
		txs := bySender[from]
		slices.SortStableFunc(txs, func(a, b *Transaction) int {
			switch {
			case a.Nonce < b.Nonce:
				return -1
			case a.Nonce > b.Nonce:
				return 1
			}
			return 0
		})
		for _, tx := range txs {
			if len(result) >= n {
				return result
			}
			result = append(result, tx)
		}
	}
	return result
}

// Remove deletes transactions by ID (called after block commit).
func (m *Mempool) Remove(ids []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := make(map[string]bool, len(ids))
	for _, id := range ids {
		delete(m.txs, id)
		removed[id] = true
	}
	m.ord = slices.DeleteFunc(m.ord, func(id string) bool { return removed[id] })
}

// Size returns the current number of pending transactions.
func (m *Mempool) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.txs)
}
