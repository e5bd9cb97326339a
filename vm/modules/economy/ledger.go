// Package economy moves native value and fungible-token units between
// accounts. Ledger is the fund-movement adapter used by other modules; the
// package also registers the user-facing transfer and token transactions.
package economy

import (
	"errors"
	"fmt"
	"math"

	"github.com/tolelom/tolchallenge/core"
)

var (
	ErrEmptyRecipient        = errors.New("economy: recipient address required")
	ErrInsufficientBalance   = errors.New("economy: insufficient balance")
	ErrInsufficientAllowance = errors.New("economy: insufficient allowance")
	ErrBalanceOverflow       = errors.New("economy: balance overflow")
	ErrUnknownToken          = errors.New("economy: unknown token")
)

// Ledger moves funds within a core.State. Zero-amount movements are no-ops.
type Ledger struct {
	state core.State
}

// NewLedger returns a Ledger writing to st.
func NewLedger(st core.State) *Ledger {
	return &Ledger{state: st}
}

// TransferNative moves amount of the native coin from one account to another.
func (l *Ledger) TransferNative(from, to string, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if to == "" {
		return ErrEmptyRecipient
	}
	sender, err := l.state.GetAccount(from)
	if err != nil {
		return err
	}
	if sender.Balance < amount {
		return fmt.Errorf("%w: %s has %d, need %d", ErrInsufficientBalance, from, sender.Balance, amount)
	}
	if from == to {
		return nil
	}
	sender.Balance -= amount
	if err := l.state.SetAccount(sender); err != nil {
		return err
	}

	recipient, err := l.state.GetAccount(to)
	if err != nil {
		return err
	}
	if recipient.Balance > math.MaxUint64-amount {
		return fmt.Errorf("%w: %s", ErrBalanceOverflow, to)
	}
	recipient.Balance += amount
	return l.state.SetAccount(recipient)
}

// TokenTransfer moves amount units of token from one holder to another.
func (l *Ledger) TokenTransfer(token, from, to string, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if to == "" {
		return ErrEmptyRecipient
	}
	if _, err := l.state.GetToken(token); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return fmt.Errorf("%w: %q", ErrUnknownToken, token)
		}
		return err
	}
	bal, err := l.state.GetTokenBalance(token, from)
	if err != nil {
		return err
	}
	if bal < amount {
		return fmt.Errorf("%w: %s holds %d of %s, need %d", ErrInsufficientBalance, from, bal, token, amount)
	}
	if from == to {
		return nil
	}
	if err := l.state.SetTokenBalance(token, from, bal-amount); err != nil {
		return err
	}
	dst, err := l.state.GetTokenBalance(token, to)
	if err != nil {
		return err
	}
	if dst > math.MaxUint64-amount {
		return fmt.Errorf("%w: %s", ErrBalanceOverflow, to)
	}
	return l.state.SetTokenBalance(token, to, dst+amount)
}

// TokenAllowance returns how many units spender may pull from owner.
func (l *Ledger) TokenAllowance(token, owner, spender string) (uint64, error) {
	return l.state.GetTokenAllowance(token, owner, spender)
}

// Approve sets spender's allowance over owner's units of token.
func (l *Ledger) Approve(token, owner, spender string, amount uint64) error {
	if spender == "" {
		return ErrEmptyRecipient
	}
	return l.state.SetTokenAllowance(token, owner, spender, amount)
}

// TokenTransferFrom lets spender move amount units of owner's token to to,
// consuming allowance.
func (l *Ledger) TokenTransferFrom(token, owner, spender, to string, amount uint64) error {
	if amount == 0 {
		return nil
	}
	allowance, err := l.state.GetTokenAllowance(token, owner, spender)
	if err != nil {
		return err
	}
	if allowance < amount {
		return fmt.Errorf("%w: %s allows %s %d of %s, need %d",
			ErrInsufficientAllowance, owner, spender, allowance, token, amount)
	}
	if err := l.state.SetTokenAllowance(token, owner, spender, allowance-amount); err != nil {
		return err
	}
	return l.TokenTransfer(token, owner, to, amount)
}

// mint credits amount fresh units of token to to.
func (l *Ledger) mint(token, to string, amount uint64) error {
	bal, err := l.state.GetTokenBalance(token, to)
	if err != nil {
		return err
	}
	if bal > math.MaxUint64-amount {
		return fmt.Errorf("%w: %s", ErrBalanceOverflow, to)
	}
	return l.state.SetTokenBalance(token, to, bal+amount)
}
