package challenge

import (
	"errors"
	"fmt"
)

// ErrReentrantCall is returned when an engine operation is entered while
// another one is still running.
var ErrReentrantCall = errors.New("challenge: reentrant call")

// Create precondition codes.
const (
	CreateInvalidToken    uint8 = 0
	CreateInvalidAmount   uint8 = 1
	CreateInvalidMediator uint8 = 2
)

// Join precondition codes.
const (
	JoinNotOpen               uint8 = 0
	JoinFull                  uint8 = 1
	JoinAlreadyJoined         uint8 = 2
	JoinWrongValue            uint8 = 3
	JoinInsufficientAllowance uint8 = 4
)

// Leave precondition codes.
const (
	LeaveNotOpen   uint8 = 0
	LeaveNotPlayer uint8 = 1
)

// Lock precondition codes.
const (
	LockNotOpen             uint8 = 0
	LockInsufficientPlayers uint8 = 1
)

// Resolve precondition codes.
const (
	ResolveNotLocked   uint8 = 0
	ResolveNotMediator uint8 = 1
)

// Cancel precondition code.
const CancelNotCancelable uint8 = 0

var (
	createReasons = map[uint8]string{
		CreateInvalidToken:    "token address required for non-native challenge",
		CreateInvalidAmount:   "entry amount must be positive and limit at least 1",
		CreateInvalidMediator: "mediator required",
	}
	joinReasons = map[uint8]string{
		JoinNotOpen:               "challenge is not open",
		JoinFull:                  "challenge is full",
		JoinAlreadyJoined:         "already joined",
		JoinWrongValue:            "attached value must equal the entry amount",
		JoinInsufficientAllowance: "token allowance below entry amount",
	}
	leaveReasons = map[uint8]string{
		LeaveNotOpen:   "challenge is not open",
		LeaveNotPlayer: "caller is not a player",
	}
	lockReasons = map[uint8]string{
		LockNotOpen:             "challenge is not open",
		LockInsufficientPlayers: "at least two players required",
	}
	resolveReasons = map[uint8]string{
		ResolveNotLocked:   "challenge is not locked",
		ResolveNotMediator: "caller is not the mediator",
	}
	cancelReasons = map[uint8]string{
		CancelNotCancelable: "challenge is neither open nor locked",
	}
)

func describe(op string, code uint8, reasons map[uint8]string) string {
	if r, ok := reasons[code]; ok {
		return fmt.Sprintf("challenge: %s failed (%d): %s", op, code, r)
	}
	return fmt.Sprintf("challenge: %s failed (%d)", op, code)
}

// CreateChallengeError reports which create precondition failed.
type CreateChallengeError struct{ Code uint8 }

func (e *CreateChallengeError) Error() string { return describe("create", e.Code, createReasons) }

// JoinChallengeError reports which join precondition failed.
type JoinChallengeError struct{ Code uint8 }

func (e *JoinChallengeError) Error() string { return describe("join", e.Code, joinReasons) }

// LeaveChallengeError reports which leave precondition failed.
type LeaveChallengeError struct{ Code uint8 }

func (e *LeaveChallengeError) Error() string { return describe("leave", e.Code, leaveReasons) }

// LockChallengeError reports which lock precondition failed.
type LockChallengeError struct{ Code uint8 }

func (e *LockChallengeError) Error() string { return describe("lock", e.Code, lockReasons) }

// ResolveChallengeError reports which resolve precondition failed.
type ResolveChallengeError struct{ Code uint8 }

func (e *ResolveChallengeError) Error() string { return describe("resolve", e.Code, resolveReasons) }

// CancelChallengeError reports which cancel precondition failed.
type CancelChallengeError struct{ Code uint8 }

func (e *CancelChallengeError) Error() string { return describe("cancel", e.Code, cancelReasons) }

// GetChallengeError is returned for ids with no challenge record.
type GetChallengeError struct{ ID string }

func (e *GetChallengeError) Error() string {
	return fmt.Sprintf("challenge: %q not found", e.ID)
}

// PayoutToAddressError is returned when a payout names a non-player.
type PayoutToAddressError struct{ Recipient string }

func (e *PayoutToAddressError) Error() string {
	return fmt.Sprintf("challenge: payout recipient %s is not a player", e.Recipient)
}

// PayoutError is returned when payouts plus fees do not equal the pool.
// Amounts are decimal strings since the sums may exceed 64 bits.
type PayoutError struct {
	Pool        string
	Distributed string
}

func (e *PayoutError) Error() string {
	return fmt.Sprintf("challenge: payouts plus fees total %s, pool is %s", e.Distributed, e.Pool)
}

// TransferFailedError wraps a ledger failure during fund movement.
type TransferFailedError struct {
	To     string
	Amount uint64
	Err    error
}

func (e *TransferFailedError) Error() string {
	return fmt.Sprintf("challenge: transfer of %d to %s failed: %v", e.Amount, e.To, e.Err)
}

func (e *TransferFailedError) Unwrap() error { return e.Err }

// VerificationError wraps a proof oracle rejection.
type VerificationError struct{ Err error }

func (e *VerificationError) Error() string {
	return fmt.Sprintf("challenge: admission proof rejected: %v", e.Err)
}

func (e *VerificationError) Unwrap() error { return e.Err }
