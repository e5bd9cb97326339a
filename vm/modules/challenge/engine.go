// Package challenge implements pooled-stake challenges: an admin creates a
// challenge, players join by staking the entry amount behind an admission
// proof, and the challenge's mediator later splits the pool between
// winners, a mediator vault and the protocol's provider vault.
//
// State machine:
//
//	open -> locked -> resolved
//	open -> canceled
//	locked -> canceled
//
// All stakes are held by ModuleAccount. Every mutating operation runs under
// the engine's Guard and inside the executor's per-transaction snapshot, so
// a failure at any step (including a failed transfer) leaves no trace.
package challenge

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tolelom/tolchallenge/access"
	"github.com/tolelom/tolchallenge/core"
	"github.com/tolelom/tolchallenge/events"
	"github.com/tolelom/tolchallenge/proof"
	"github.com/tolelom/tolchallenge/vm"
	"github.com/tolelom/tolchallenge/vm/modules/economy"
)

// Ledger moves funds between accounts. Implementations report every failure.
type Ledger interface {
	TransferNative(from, to string, amount uint64) error
	TokenTransfer(token, from, to string, amount uint64) error
	TokenAllowance(token, owner, spender string) (uint64, error)
	TokenTransferFrom(token, owner, spender, to string, amount uint64) error
}

// AccessControl answers role membership queries.
type AccessControl interface {
	HasRole(st core.State, role, account string) (bool, error)
}

// Config tunes an Engine. Zero values select the defaults.
type Config struct {
	// ImageID is the only guest program whose proofs admit players.
	ImageID proof.Digest
	// Ledger builds the fund-movement adapter for a state; defaults to
	// economy.NewLedger.
	Ledger func(core.State) Ledger
	Logger *slog.Logger
}

// Engine runs the challenge lifecycle.
type Engine struct {
	oracle    proof.Verifier
	acl       AccessControl
	imageID   proof.Digest
	newLedger func(core.State) Ledger
	guard     Guard
	log       *slog.Logger
}

// New creates an Engine that admits players through oracle and checks
// administrative calls against acl.
func New(cfg Config, oracle proof.Verifier, acl AccessControl) *Engine {
	e := &Engine{
		oracle:    oracle,
		acl:       acl,
		imageID:   cfg.ImageID,
		newLedger: cfg.Ledger,
		log:       cfg.Logger,
	}
	if e.imageID.IsZero() {
		e.imageID = proof.DefaultImageID
	}
	if e.newLedger == nil {
		e.newLedger = func(st core.State) Ledger { return economy.NewLedger(st) }
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	e.log = e.log.With("component", "challenge")
	return e
}

// ImageID returns the accepted guest program id.
func (e *Engine) ImageID() proof.Digest { return e.imageID }

// run executes fn under the reentrancy guard and records the outcome.
func (e *Engine) run(op string, fn func() error) error {
	release, err := e.guard.Enter()
	if err != nil {
		observe(op, err)
		return err
	}
	defer release()
	err = fn()
	observe(op, err)
	return err
}

func (e *Engine) requireRole(st core.State, role, account string) error {
	ok, err := e.acl.HasRole(st, role, account)
	if err != nil {
		return fmt.Errorf("role lookup: %w", err)
	}
	if !ok {
		return &access.UnauthorizedError{Account: account, Role: role}
	}
	return nil
}

// Create opens a new challenge. The caller needs ADMIN_ROLE.
func (e *Engine) Create(ctx *vm.Context, p core.ChallengeCreatePayload) (*core.Challenge, error) {
	var created *core.Challenge
	err := e.run("create", func() error {
		if err := e.requireRole(ctx.State, access.AdminRole, ctx.Sender()); err != nil {
			return err
		}
		if !p.IsNative && p.Token == "" {
			return &CreateChallengeError{Code: CreateInvalidToken}
		}
		if p.EntryAmount == 0 || p.Limit < 1 {
			return &CreateChallengeError{Code: CreateInvalidAmount}
		}
		if p.Mediator == "" {
			return &CreateChallengeError{Code: CreateInvalidMediator}
		}
		if !p.IsNative {
			if _, err := ctx.State.GetToken(p.Token); err != nil {
				if errors.Is(err, core.ErrNotFound) {
					return &CreateChallengeError{Code: CreateInvalidToken}
				}
				return err
			}
		}

		c := &core.Challenge{
			Mediator:       p.Mediator,
			Players:        []string{},
			EntryAmount:    p.EntryAmount,
			Limit:          p.Limit,
			State:          core.ChallengeOpen,
			Verified:       p.Verified,
			IsNative:       p.IsNative,
			ProviderAmount: p.ProviderAmount,
			MediatorAmount: p.MediatorAmount,
			Out:            p.Out,
			CorrelationID:  p.CorrelationID,
			CreatedAt:      ctx.Now(),
		}
		if !p.IsNative {
			c.Token = p.Token
		}
		if err := NewRegistry(ctx.State, ModuleAccount).Insert(c); err != nil {
			return err
		}

		ctx.Emit(events.EventChallengeCreated, map[string]any{
			"challenge_id":   c.ID,
			"correlation_id": p.CorrelationID,
			"mediator":       c.Mediator,
		})
		e.log.Debug("challenge created", "challenge_id", c.ID, "correlation_id", p.CorrelationID)
		created = c
		return nil
	})
	return created, err
}

// Join admits the caller after verifying their admission proof, collecting
// the entry stake into custody.
func (e *Engine) Join(ctx *vm.Context, p core.ChallengeJoinPayload) error {
	return e.run("join", func() error {
		caller := ctx.Sender()

		// The proof is checked before anything is read for update or pulled.
		if err := e.verifyAdmission(p.Input, p.Seal); err != nil {
			return err
		}

		reg := NewRegistry(ctx.State, ModuleAccount)
		c, err := reg.Get(p.ChallengeID)
		if err != nil {
			return err
		}
		if c.State != core.ChallengeOpen {
			return &JoinChallengeError{Code: JoinNotOpen}
		}
		if uint64(len(c.Players)) >= c.Limit {
			return &JoinChallengeError{Code: JoinFull}
		}
		if c.HasPlayer(caller) {
			return &JoinChallengeError{Code: JoinAlreadyJoined}
		}
		if err := e.collect(e.newLedger(ctx.State), c, caller, p.Value); err != nil {
			return err
		}

		c.Players = append(c.Players, caller)
		if err := reg.Put(c); err != nil {
			return err
		}
		ctx.Emit(events.EventChallengeJoined, map[string]any{"challenge_id": c.ID, "player": caller})
		e.log.Debug("player joined", "challenge_id", c.ID, "player", caller, "players", len(c.Players))
		return nil
	})
}

func (e *Engine) verifyAdmission(rawInput, rawSeal string) error {
	input, err := proof.ParseInput(rawInput)
	if err != nil {
		return &VerificationError{Err: err}
	}
	seal, err := hex.DecodeString(strings.TrimPrefix(rawSeal, "0x"))
	if err != nil {
		return &VerificationError{Err: fmt.Errorf("decode seal: %w", err)}
	}
	if err := e.oracle.Verify(seal, e.imageID, proof.InputDigest(input)); err != nil {
		return &VerificationError{Err: err}
	}
	return nil
}

// collect pulls the entry stake from player into custody.
func (e *Engine) collect(l Ledger, c *core.Challenge, player string, value uint64) error {
	if c.IsNative {
		if value != c.EntryAmount {
			return &JoinChallengeError{Code: JoinWrongValue}
		}
		if err := l.TransferNative(player, ModuleAccount, value); err != nil {
			return &TransferFailedError{To: ModuleAccount, Amount: value, Err: err}
		}
		return nil
	}
	if value != 0 {
		return &JoinChallengeError{Code: JoinWrongValue}
	}
	allowance, err := l.TokenAllowance(c.Token, player, ModuleAccount)
	if err != nil {
		return fmt.Errorf("token allowance: %w", err)
	}
	if allowance < c.EntryAmount {
		return &JoinChallengeError{Code: JoinInsufficientAllowance}
	}
	if err := l.TokenTransferFrom(c.Token, player, ModuleAccount, ModuleAccount, c.EntryAmount); err != nil {
		return &TransferFailedError{To: ModuleAccount, Amount: c.EntryAmount, Err: err}
	}
	return nil
}

// pay moves amount of the challenge's asset from custody to to.
func (e *Engine) pay(l Ledger, c *core.Challenge, to string, amount uint64) error {
	var err error
	if c.IsNative {
		err = l.TransferNative(ModuleAccount, to, amount)
	} else {
		err = l.TokenTransfer(c.Token, ModuleAccount, to, amount)
	}
	if err != nil {
		return &TransferFailedError{To: to, Amount: amount, Err: err}
	}
	return nil
}

// Leave removes the caller from an open challenge and refunds their stake.
func (e *Engine) Leave(ctx *vm.Context, id string) error {
	return e.run("leave", func() error {
		caller := ctx.Sender()
		reg := NewRegistry(ctx.State, ModuleAccount)
		c, err := reg.Get(id)
		if err != nil {
			return err
		}
		if c.State != core.ChallengeOpen {
			return &LeaveChallengeError{Code: LeaveNotOpen}
		}
		i := c.PlayerIndex(caller)
		if i < 0 {
			return &LeaveChallengeError{Code: LeaveNotPlayer}
		}

		last := len(c.Players) - 1
		c.Players[i] = c.Players[last]
		c.Players = c.Players[:last]
		if err := reg.Put(c); err != nil {
			return err
		}
		if err := e.pay(e.newLedger(ctx.State), c, caller, c.EntryAmount); err != nil {
			return err
		}
		ctx.Emit(events.EventChallengeLeft, map[string]any{"challenge_id": c.ID, "player": caller})
		e.log.Debug("player left", "challenge_id", c.ID, "player", caller)
		return nil
	})
}

// Lock closes an open challenge to further joins. The caller needs
// ADMIN_ROLE and at least two players must have joined.
func (e *Engine) Lock(ctx *vm.Context, id string) error {
	return e.run("lock", func() error {
		if err := e.requireRole(ctx.State, access.AdminRole, ctx.Sender()); err != nil {
			return err
		}
		reg := NewRegistry(ctx.State, ModuleAccount)
		c, err := reg.Get(id)
		if err != nil {
			return err
		}
		if c.State != core.ChallengeOpen {
			return &LockChallengeError{Code: LockNotOpen}
		}
		if len(c.Players) <= 1 {
			return &LockChallengeError{Code: LockInsufficientPlayers}
		}
		c.State = core.ChallengeLocked
		if err := reg.Put(c); err != nil {
			return err
		}
		ctx.Emit(events.EventChallengeLocked, map[string]any{"challenge_id": c.ID})
		e.log.Debug("challenge locked", "challenge_id", c.ID)
		return nil
	})
}

// Resolve distributes a locked challenge's pool. Only the challenge's
// mediator may call it; mediatorVault receives the mediator fees.
func (e *Engine) Resolve(ctx *vm.Context, p core.ChallengeResolvePayload) error {
	return e.run("resolve", func() error {
		reg := NewRegistry(ctx.State, ModuleAccount)
		c, err := reg.Get(p.ChallengeID)
		if err != nil {
			return err
		}
		if c.State != core.ChallengeLocked {
			return &ResolveChallengeError{Code: ResolveNotLocked}
		}
		if ctx.Sender() != c.Mediator {
			return &ResolveChallengeError{Code: ResolveNotMediator}
		}
		if err := ValidatePayouts(c, p.Payouts); err != nil {
			return err
		}
		providerVault, err := reg.ProviderVault()
		if err != nil {
			return fmt.Errorf("provider vault: %w", err)
		}
		providerFee, mediatorFee := feeTotals(c)

		c.State = core.ChallengeResolved
		c.Payouts = append([]core.Payout(nil), p.Payouts...)
		c.ClosedAt = ctx.Now()
		if err := reg.Put(c); err != nil {
			return err
		}

		l := e.newLedger(ctx.State)
		for _, po := range p.Payouts {
			if err := e.pay(l, c, po.To, po.Amount); err != nil {
				return err
			}
		}
		if err := e.pay(l, c, p.MediatorVault, mediatorFee); err != nil {
			return err
		}
		if err := e.pay(l, c, providerVault, providerFee); err != nil {
			return err
		}

		ctx.Emit(events.EventChallengeResolved, map[string]any{
			"challenge_id":   c.ID,
			"payouts":        c.Payouts,
			"mediator_vault": p.MediatorVault,
			"mediator_fee":   mediatorFee,
			"provider_fee":   providerFee,
		})
		e.log.Debug("challenge resolved", "challenge_id", c.ID, "payouts", len(c.Payouts))
		return nil
	})
}

// Cancel refunds every player and closes the challenge. The caller needs
// ADMIN_ROLE.
func (e *Engine) Cancel(ctx *vm.Context, id string) error {
	return e.run("cancel", func() error {
		if err := e.requireRole(ctx.State, access.AdminRole, ctx.Sender()); err != nil {
			return err
		}
		reg := NewRegistry(ctx.State, ModuleAccount)
		c, err := reg.Get(id)
		if err != nil {
			return err
		}
		if c.State != core.ChallengeOpen && c.State != core.ChallengeLocked {
			return &CancelChallengeError{Code: CancelNotCancelable}
		}
		c.State = core.ChallengeCanceled
		c.ClosedAt = ctx.Now()
		if err := reg.Put(c); err != nil {
			return err
		}

		l := e.newLedger(ctx.State)
		for _, player := range c.Players {
			if err := e.pay(l, c, player, c.EntryAmount); err != nil {
				return err
			}
		}
		ctx.Emit(events.EventChallengeCanceled, map[string]any{"challenge_id": c.ID})
		e.log.Debug("challenge canceled", "challenge_id", c.ID, "refunds", len(c.Players))
		return nil
	})
}

// SetProviderVault changes the protocol revenue vault. The caller needs
// DEFAULT_ADMIN_ROLE.
func (e *Engine) SetProviderVault(ctx *vm.Context, vault string) error {
	return e.run("set_provider_vault", func() error {
		if err := e.requireRole(ctx.State, access.DefaultAdminRole, ctx.Sender()); err != nil {
			return err
		}
		if vault == "" {
			return errors.New("challenge: provider vault address required")
		}
		if err := ctx.State.SetProviderVault(vault); err != nil {
			return err
		}
		ctx.Emit(events.EventProviderVaultSet, map[string]any{"vault": vault})
		return nil
	})
}

// ---- queries ----

// Get returns the challenge with id from st.
func (e *Engine) Get(st core.State, id string) (*core.Challenge, error) {
	return NewRegistry(st, ModuleAccount).Get(id)
}

// Count returns the number of challenges ever created in st.
func (e *Engine) Count(st core.State) (uint64, error) {
	return NewRegistry(st, ModuleAccount).Count()
}

// ProviderVault returns the protocol revenue vault recorded in st.
func (e *Engine) ProviderVault(st core.State) (string, error) {
	return NewRegistry(st, ModuleAccount).ProviderVault()
}
