package access

import (
	"encoding/json"
	"fmt"

	"github.com/tolelom/tolchallenge/core"
	"github.com/tolelom/tolchallenge/events"
	"github.com/tolelom/tolchallenge/vm"
)

// Register installs the role-administration transaction handlers.
func (g *Gate) Register(r *vm.Registry) {
	r.Register(core.TxRoleGrant, g.handleGrant)
	r.Register(core.TxRoleRevoke, g.handleRevoke)
	r.Register(core.TxRoleRenounce, g.handleRenounce)
	r.Register(core.TxAdminTransferBegin, g.handleTransferBegin)
	r.Register(core.TxAdminTransferAccept, g.handleTransferAccept)
	r.Register(core.TxAdminTransferCancel, g.handleTransferCancel)
}

func decodeRole(payload json.RawMessage) (core.RolePayload, error) {
	var p core.RolePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return p, fmt.Errorf("decode role payload: %w", err)
	}
	return p, nil
}

func (g *Gate) handleGrant(ctx *vm.Context, payload json.RawMessage) error {
	p, err := decodeRole(payload)
	if err != nil {
		return err
	}
	if err := g.GrantRole(ctx.State, ctx.Sender(), p.Role, p.Account); err != nil {
		return err
	}
	ctx.Emit(events.EventRoleGranted, map[string]any{"role": p.Role, "account": p.Account, "sender": ctx.Sender()})
	return nil
}

func (g *Gate) handleRevoke(ctx *vm.Context, payload json.RawMessage) error {
	p, err := decodeRole(payload)
	if err != nil {
		return err
	}
	if err := g.RevokeRole(ctx.State, ctx.Sender(), p.Role, p.Account); err != nil {
		return err
	}
	ctx.Emit(events.EventRoleRevoked, map[string]any{"role": p.Role, "account": p.Account, "sender": ctx.Sender()})
	return nil
}

func (g *Gate) handleRenounce(ctx *vm.Context, payload json.RawMessage) error {
	p, err := decodeRole(payload)
	if err != nil {
		return err
	}
	if err := g.RenounceRole(ctx.State, ctx.Sender(), p.Role); err != nil {
		return err
	}
	ctx.Emit(events.EventRoleRevoked, map[string]any{"role": p.Role, "account": ctx.Sender(), "sender": ctx.Sender()})
	return nil
}

func (g *Gate) handleTransferBegin(ctx *vm.Context, payload json.RawMessage) error {
	var p core.AdminTransferPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode admin_transfer_begin payload: %w", err)
	}
	as, err := g.BeginDefaultAdminTransfer(ctx.State, ctx.Sender(), p.NewAdmin, ctx.Now())
	if err != nil {
		return err
	}
	ctx.Emit(events.EventAdminTransferStarted, map[string]any{"new_admin": p.NewAdmin, "schedule": as.Schedule})
	return nil
}

func (g *Gate) handleTransferAccept(ctx *vm.Context, _ json.RawMessage) error {
	as, err := g.AcceptDefaultAdminTransfer(ctx.State, ctx.Sender(), ctx.Now())
	if err != nil {
		return err
	}
	ctx.Emit(events.EventAdminTransferred, map[string]any{"admin": as.Holder})
	return nil
}

func (g *Gate) handleTransferCancel(ctx *vm.Context, _ json.RawMessage) error {
	return g.CancelDefaultAdminTransfer(ctx.State, ctx.Sender())
}
