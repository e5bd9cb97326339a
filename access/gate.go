// Package access implements role-based access control over chain state.
//
// DEFAULT_ADMIN_ROLE administers every role and has exactly one holder.
// It cannot be granted or revoked directly; it moves through a two-step,
// time-delayed handover (begin, then accept after the delay).
package access

import (
	"errors"
	"fmt"
	"time"

	"github.com/tolelom/tolchallenge/core"
)

// Well-known roles.
const (
	DefaultAdminRole = "DEFAULT_ADMIN_ROLE"
	AdminRole        = "ADMIN_ROLE"
)

// DefaultTransferDelay is the default-admin handover delay used when the
// genesis config does not set one.
const DefaultTransferDelay = 300 * time.Second

var (
	ErrEnforcedDefaultAdminRules = errors.New("access: DEFAULT_ADMIN_ROLE can only move through a delayed transfer")
	ErrNoPendingTransfer         = errors.New("access: no pending default admin transfer")
	ErrTransferNotReady          = errors.New("access: default admin transfer delay has not elapsed")
	ErrEmptyAccount              = errors.New("access: account required")
)

// UnauthorizedError reports that Account lacks Role.
type UnauthorizedError struct {
	Account string
	Role    string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("access: account %s is missing role %s", e.Account, e.Role)
}

// Gate answers role queries and performs role administration against a
// core.State. It holds no state of its own beyond the transfer delay.
type Gate struct {
	delay time.Duration
}

// NewGate returns a Gate whose default-admin handover waits delay.
func NewGate(delay time.Duration) *Gate {
	return &Gate{delay: delay}
}

// Delay returns the configured default-admin handover delay.
func (g *Gate) Delay() time.Duration { return g.delay }

// HasRole reports whether account holds role.
func (g *Gate) HasRole(st core.State, role, account string) (bool, error) {
	if account == "" {
		return false, nil
	}
	return st.HasRole(role, account)
}

// CheckRole returns an *UnauthorizedError unless account holds role.
func (g *Gate) CheckRole(st core.State, role, account string) error {
	ok, err := g.HasRole(st, role, account)
	if err != nil {
		return fmt.Errorf("role lookup: %w", err)
	}
	if !ok {
		return &UnauthorizedError{Account: account, Role: role}
	}
	return nil
}

// Bootstrap installs admin as the first DEFAULT_ADMIN_ROLE holder. It is
// only used at genesis.
func (g *Gate) Bootstrap(st core.State, admin string) error {
	if admin == "" {
		return ErrEmptyAccount
	}
	cur, err := st.GetAdminState()
	if err != nil {
		return err
	}
	if cur.Holder != "" {
		return fmt.Errorf("access: default admin already set to %s", cur.Holder)
	}
	if err := st.SetRole(DefaultAdminRole, admin, true); err != nil {
		return err
	}
	return st.SetAdminState(&core.AdminState{Holder: admin})
}

// GrantRole gives account role. caller must be the default admin.
func (g *Gate) GrantRole(st core.State, caller, role, account string) error {
	if role == DefaultAdminRole {
		return ErrEnforcedDefaultAdminRules
	}
	if role == "" || account == "" {
		return ErrEmptyAccount
	}
	if err := g.CheckRole(st, DefaultAdminRole, caller); err != nil {
		return err
	}
	return st.SetRole(role, account, true)
}

// RevokeRole removes role from account. caller must be the default admin.
func (g *Gate) RevokeRole(st core.State, caller, role, account string) error {
	if role == DefaultAdminRole {
		return ErrEnforcedDefaultAdminRules
	}
	if err := g.CheckRole(st, DefaultAdminRole, caller); err != nil {
		return err
	}
	return st.SetRole(role, account, false)
}

// RenounceRole drops role from caller itself.
func (g *Gate) RenounceRole(st core.State, caller, role string) error {
	if role == DefaultAdminRole {
		return ErrEnforcedDefaultAdminRules
	}
	return st.SetRole(role, caller, false)
}

// BeginDefaultAdminTransfer schedules newAdmin to take over once the delay
// has elapsed after now. A later call replaces the pending transfer.
func (g *Gate) BeginDefaultAdminTransfer(st core.State, caller, newAdmin string, now int64) (*core.AdminState, error) {
	if newAdmin == "" {
		return nil, ErrEmptyAccount
	}
	if err := g.CheckRole(st, DefaultAdminRole, caller); err != nil {
		return nil, err
	}
	as, err := st.GetAdminState()
	if err != nil {
		return nil, err
	}
	as.Pending = newAdmin
	as.Schedule = now + int64(g.delay)
	return as, st.SetAdminState(as)
}

// CancelDefaultAdminTransfer drops any pending transfer.
func (g *Gate) CancelDefaultAdminTransfer(st core.State, caller string) error {
	if err := g.CheckRole(st, DefaultAdminRole, caller); err != nil {
		return err
	}
	as, err := st.GetAdminState()
	if err != nil {
		return err
	}
	as.Pending, as.Schedule = "", 0
	return st.SetAdminState(as)
}

// AcceptDefaultAdminTransfer completes the pending transfer. caller must be
// the pending admin and now must be at or past the schedule.
func (g *Gate) AcceptDefaultAdminTransfer(st core.State, caller string, now int64) (*core.AdminState, error) {
	as, err := st.GetAdminState()
	if err != nil {
		return nil, err
	}
	if as.Pending == "" {
		return nil, ErrNoPendingTransfer
	}
	if caller != as.Pending {
		return nil, &UnauthorizedError{Account: caller, Role: "pending " + DefaultAdminRole}
	}
	if now < as.Schedule {
		return nil, fmt.Errorf("%w: ready at %s", ErrTransferNotReady, time.Unix(0, as.Schedule).UTC().Format(time.RFC3339))
	}
	if as.Holder != "" {
		if err := st.SetRole(DefaultAdminRole, as.Holder, false); err != nil {
			return nil, err
		}
	}
	if err := st.SetRole(DefaultAdminRole, caller, true); err != nil {
		return nil, err
	}
	next := &core.AdminState{Holder: caller}
	return next, st.SetAdminState(next)
}
