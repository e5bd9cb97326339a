package challenge

import (
	"encoding/json"
	"fmt"

	"github.com/tolelom/tolchallenge/core"
	"github.com/tolelom/tolchallenge/vm"
)

// Register implements vm.Module.
func (e *Engine) Register(r *vm.Registry) {
	r.Register(core.TxChallengeCreate, e.handleCreate)
	r.Register(core.TxChallengeJoin, e.handleJoin)
	r.Register(core.TxChallengeLeave, e.handleRef(e.Leave))
	r.Register(core.TxChallengeLock, e.handleRef(e.Lock))
	r.Register(core.TxChallengeCancel, e.handleRef(e.Cancel))
	r.Register(core.TxChallengeResolve, e.handleResolve)
	r.Register(core.TxProviderVaultSet, e.handleProviderVault)
}

func decode[T any](payload json.RawMessage, kind string) (T, error) {
	var p T
	if err := json.Unmarshal(payload, &p); err != nil {
		return p, fmt.Errorf("decode %s payload: %w", kind, err)
	}
	return p, nil
}

func (e *Engine) handleCreate(ctx *vm.Context, payload json.RawMessage) error {
	p, err := decode[core.ChallengeCreatePayload](payload, "challenge_create")
	if err != nil {
		return err
	}
	_, err = e.Create(ctx, p)
	return err
}

func (e *Engine) handleJoin(ctx *vm.Context, payload json.RawMessage) error {
	p, err := decode[core.ChallengeJoinPayload](payload, "challenge_join")
	if err != nil {
		return err
	}
	return e.Join(ctx, p)
}

func (e *Engine) handleRef(op func(*vm.Context, string) error) vm.Handler {
	return func(ctx *vm.Context, payload json.RawMessage) error {
		p, err := decode[core.ChallengeRefPayload](payload, "challenge")
		if err != nil {
			return err
		}
		return op(ctx, p.ChallengeID)
	}
}

func (e *Engine) handleResolve(ctx *vm.Context, payload json.RawMessage) error {
	p, err := decode[core.ChallengeResolvePayload](payload, "challenge_resolve")
	if err != nil {
		return err
	}
	return e.Resolve(ctx, p)
}

func (e *Engine) handleProviderVault(ctx *vm.Context, payload json.RawMessage) error {
	p, err := decode[core.ProviderVaultPayload](payload, "provider_vault_set")
	if err != nil {
		return err
	}
	return e.SetProviderVault(ctx, p.Vault)
}
