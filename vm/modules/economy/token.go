package economy

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tolelom/tolchallenge/core"
	"github.com/tolelom/tolchallenge/crypto"
	"github.com/tolelom/tolchallenge/events"
	"github.com/tolelom/tolchallenge/vm"
)

// Module registers the economy transaction handlers.
type Module struct{}

// Register implements vm.Module.
func (Module) Register(r *vm.Registry) {
	r.Register(core.TxTransfer, handleTransfer)
	r.Register(core.TxTokenCreate, handleTokenCreate)
	r.Register(core.TxTokenTransfer, handleTokenTransfer)
	r.Register(core.TxTokenApprove, handleTokenApprove)
}

// TokenID derives the id of a token created by txID.
func TokenID(txID, symbol string) string {
	return crypto.HashParts("token", txID, symbol)
}

func handleTransfer(ctx *vm.Context, payload json.RawMessage) error {
	var p core.TransferPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode transfer payload: %w", err)
	}
	if p.Amount == 0 {
		return errors.New("transfer amount must be > 0")
	}
	if err := NewLedger(ctx.State).TransferNative(ctx.Sender(), p.To, p.Amount); err != nil {
		return err
	}
	ctx.Emit(events.EventTokenTransfer, map[string]any{
		"from":   ctx.Sender(),
		"to":     p.To,
		"amount": p.Amount,
	})
	return nil
}

func handleTokenCreate(ctx *vm.Context, payload json.RawMessage) error {
	var p core.TokenCreatePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode token_create payload: %w", err)
	}
	if p.Symbol == "" {
		return errors.New("token symbol required")
	}
	if p.Supply == 0 {
		return errors.New("token supply must be > 0")
	}

	id := TokenID(ctx.Tx.ID, p.Symbol)
	if _, err := ctx.State.GetToken(id); err == nil {
		return fmt.Errorf("token %q already exists", id)
	} else if !errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("checking token %q: %w", id, err)
	}

	tok := &core.Token{
		ID:          id,
		Symbol:      p.Symbol,
		Issuer:      ctx.Sender(),
		TotalSupply: p.Supply,
		CreatedAt:   ctx.Now(),
	}
	if err := ctx.State.SetToken(tok); err != nil {
		return err
	}
	if err := NewLedger(ctx.State).mint(id, ctx.Sender(), p.Supply); err != nil {
		return err
	}
	ctx.Emit(events.EventTokenCreated, map[string]any{
		"token":  id,
		"symbol": p.Symbol,
		"issuer": ctx.Sender(),
		"supply": p.Supply,
	})
	return nil
}

func handleTokenTransfer(ctx *vm.Context, payload json.RawMessage) error {
	var p core.TokenTransferPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode token_transfer payload: %w", err)
	}
	if p.Amount == 0 {
		return errors.New("transfer amount must be > 0")
	}
	if err := NewLedger(ctx.State).TokenTransfer(p.Token, ctx.Sender(), p.To, p.Amount); err != nil {
		return err
	}
	ctx.Emit(events.EventTokenTransfer, map[string]any{
		"token":  p.Token,
		"from":   ctx.Sender(),
		"to":     p.To,
		"amount": p.Amount,
	})
	return nil
}

func handleTokenApprove(ctx *vm.Context, payload json.RawMessage) error {
	var p core.TokenApprovePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode token_approve payload: %w", err)
	}
	if _, err := ctx.State.GetToken(p.Token); err != nil {
		return fmt.Errorf("token %q: %w", p.Token, err)
	}
	if err := NewLedger(ctx.State).Approve(p.Token, ctx.Sender(), p.Spender, p.Amount); err != nil {
		return err
	}
	ctx.Emit(events.EventTokenApproval, map[string]any{
		"token":   p.Token,
		"owner":   ctx.Sender(),
		"spender": p.Spender,
		"amount":  p.Amount,
	})
	return nil
}
