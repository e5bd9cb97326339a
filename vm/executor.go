package vm

import (
	"fmt"
	"math"

	"github.com/tolelom/tolchallenge/core"
	"github.com/tolelom/tolchallenge/events"
)

// Context is passed to every Handler and provides access to the chain state,
// the current block and the triggering transaction. Events raised through
// Emit are delivered only if the transaction commits.
type Context struct {
	State core.State
	Block *core.Block
	Tx    *core.Transaction

	pending []events.Event
}

// NewContext builds a Context outside the executor, for module tests and
// read-only callers.
func NewContext(state core.State, block *core.Block, tx *core.Transaction) *Context {
	return &Context{State: state, Block: block, Tx: tx}
}

// Sender returns the address that signed the triggering transaction.
func (c *Context) Sender() string {
	if c.Tx == nil {
		return ""
	}
	return c.Tx.From
}

// Now returns the block timestamp in unix nanoseconds.
func (c *Context) Now() int64 {
	if c.Block == nil {
		return 0
	}
	return c.Block.Header.Timestamp
}

// Emit queues ev; TxID and BlockHeight are filled in from the context.
func (c *Context) Emit(typ events.EventType, data map[string]any) {
	ev := events.Event{Type: typ, Data: data}
	if c.Tx != nil {
		ev.TxID = c.Tx.ID
	}
	if c.Block != nil {
		ev.BlockHeight = c.Block.Header.Height
	}
	c.pending = append(c.pending, ev)
}

// Events returns the events queued so far.
func (c *Context) Events() []events.Event {
	return c.pending
}

// Executor applies transactions to the state using an injected Registry.
type Executor struct {
	state    core.State
	registry *Registry
	emitter  *events.Emitter
}

// NewExecutor creates an Executor with the given state, handler registry and
// event emitter. emitter may be nil.
func NewExecutor(state core.State, registry *Registry, emitter *events.Emitter) *Executor {
	return &Executor{state: state, registry: registry, emitter: emitter}
}

// ExecuteBlock applies all transactions in block sequentially.
// A failing transaction causes the whole block to be rejected; block
// producers filter failing transactions out with ExecuteTx first.
func (e *Executor) ExecuteBlock(block *core.Block) error {
	for _, tx := range block.Transactions {
		if err := e.ExecuteTx(block, tx); err != nil {
			return fmt.Errorf("tx %s failed: %w", tx.ID, err)
		}
	}
	return nil
}

// ExecuteTx verifies and executes a single transaction with snapshot/rollback.
// No state write or event of a failed transaction survives.
func (e *Executor) ExecuteTx(block *core.Block, tx *core.Transaction) error {
	if err := tx.Verify(); err != nil {
		return fmt.Errorf("signature: %w", err)
	}

	snapID, err := e.state.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	ctx := NewContext(e.state, block, tx)
	if err := e.applyTx(ctx); err != nil {
		if revertErr := e.state.RevertToSnapshot(snapID); revertErr != nil {
			return fmt.Errorf("revert snapshot after tx failure: %w (revert: %v)", err, revertErr)
		}
		return err
	}

	if e.emitter != nil {
		for _, ev := range ctx.pending {
			e.emitter.Emit(ev)
		}
		e.emitter.Emit(events.Event{
			Type:        events.EventTxExecuted,
			TxID:        tx.ID,
			BlockHeight: block.Header.Height,
			Data:        map[string]any{"type": string(tx.Type), "from": tx.From},
		})
	}
	return nil
}

// applyTx deducts the fee, increments the nonce, then dispatches to the handler.
func (e *Executor) applyTx(ctx *Context) error {
	tx := ctx.Tx
	acc, err := e.state.GetAccount(tx.From)
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}
	if acc.Nonce != tx.Nonce {
		return fmt.Errorf("invalid nonce: expected %d got %d", acc.Nonce, tx.Nonce)
	}
	if acc.Balance < tx.Fee {
		return fmt.Errorf("insufficient balance for fee: have %d need %d", acc.Balance, tx.Fee)
	}
	if acc.Nonce == math.MaxUint64 {
		return fmt.Errorf("nonce overflow for account %s", tx.From)
	}
	acc.Balance -= tx.Fee
	acc.Nonce++
	if err := e.state.SetAccount(acc); err != nil {
		return err
	}
	return e.registry.Execute(tx.Type, ctx, tx.Payload)
}
