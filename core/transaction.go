package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tolelom/tolchallenge/crypto"
)

// TxType identifies the kind of operation a transaction performs.
type TxType string

const (
	TxTransfer      TxType = "transfer"
	TxTokenCreate   TxType = "token_create"
	TxTokenTransfer TxType = "token_transfer"
	TxTokenApprove  TxType = "token_approve"

	TxRoleGrant           TxType = "role_grant"
	TxRoleRevoke          TxType = "role_revoke"
	TxRoleRenounce        TxType = "role_renounce"
	TxAdminTransferBegin  TxType = "admin_transfer_begin"
	TxAdminTransferAccept TxType = "admin_transfer_accept"
	TxAdminTransferCancel TxType = "admin_transfer_cancel"
	TxProviderVaultSet    TxType = "provider_vault_set"

	TxChallengeCreate  TxType = "challenge_create"
	TxChallengeJoin    TxType = "challenge_join"
	TxChallengeLeave   TxType = "challenge_leave"
	TxChallengeLock    TxType = "challenge_lock"
	TxChallengeResolve TxType = "challenge_resolve"
	TxChallengeCancel  TxType = "challenge_cancel"
)

// Transaction is the atomic unit of work on the chain.
// From holds the sender's full hex-encoded ed25519 public key (64 chars).
// Signature covers all fields except ID and Signature.
type Transaction struct {
	ID        string          `json:"id"`
	ChainID   string          `json:"chain_id"`
	Type      TxType          `json:"type"`
	From      string          `json:"from"` // hex-encoded ed25519 public key
	Nonce     uint64          `json:"nonce"`
	Fee       uint64          `json:"fee"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
}

type signingBody struct {
	ChainID   string          `json:"chain_id"`
	Type      TxType          `json:"type"`
	From      string          `json:"from"`
	Nonce     uint64          `json:"nonce"`
	Fee       uint64          `json:"fee"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Hash returns a deterministic hash of the transaction (sans Signature).
// Returns an empty string if marshalling fails (which cannot happen in practice).
func (tx *Transaction) Hash() string {
	data, err := json.Marshal(signingBody{
		ChainID:   tx.ChainID,
		Type:      tx.Type,
		From:      tx.From,
		Nonce:     tx.Nonce,
		Fee:       tx.Fee,
		Timestamp: tx.Timestamp,
		Payload:   tx.Payload,
	})
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// Sign computes the signature and sets ID.
func (tx *Transaction) Sign(priv crypto.PrivateKey) {
	hash := tx.Hash()
	tx.Signature = crypto.Sign(priv, []byte(hash))
	tx.ID = hash
}

// Verify checks the signature and that From is a valid public key.
func (tx *Transaction) Verify() error {
	if tx.From == "" {
		return errors.New("missing from field")
	}
	pub, err := crypto.PubKeyFromHex(tx.From)
	if err != nil {
		return fmt.Errorf("invalid from (must be ed25519 pubkey hex): %w", err)
	}
	return crypto.Verify(pub, []byte(tx.Hash()), tx.Signature)
}

// NewTransaction creates an unsigned transaction with the current timestamp.
func NewTransaction(chainID string, typ TxType, from string, nonce, fee uint64, payload any) (*Transaction, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Transaction{
		ChainID:   chainID,
		Type:      typ,
		From:      from,
		Nonce:     nonce,
		Fee:       fee,
		Timestamp: time.Now().UnixNano(),
		Payload:   raw,
	}, nil
}

// ---- Payload types ----

// TransferPayload transfers native tokens.
type TransferPayload struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// TokenCreatePayload registers a fungible token and mints its whole supply
// to the sender.
type TokenCreatePayload struct {
	Symbol string `json:"symbol"`
	Supply uint64 `json:"supply"`
}

// TokenTransferPayload moves token units from the sender.
type TokenTransferPayload struct {
	Token  string `json:"token"`
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// TokenApprovePayload sets the spender's allowance over the sender's units.
type TokenApprovePayload struct {
	Token   string `json:"token"`
	Spender string `json:"spender"`
	Amount  uint64 `json:"amount"`
}

// RolePayload names a role and the account it applies to.
type RolePayload struct {
	Role    string `json:"role"`
	Account string `json:"account"`
}

// AdminTransferPayload starts a delayed DEFAULT_ADMIN_ROLE handover.
type AdminTransferPayload struct {
	NewAdmin string `json:"new_admin"`
}

// ProviderVaultPayload sets the protocol revenue vault.
type ProviderVaultPayload struct {
	Vault string `json:"vault"`
}

// ChallengeCreatePayload opens a new challenge.
type ChallengeCreatePayload struct {
	Mediator       string `json:"mediator"`
	EntryAmount    uint64 `json:"entry_amount"`
	Limit          uint64 `json:"limit"`
	Verified       bool   `json:"verified"`
	IsNative       bool   `json:"is_native"`
	Token          string `json:"token,omitempty"`
	ProviderAmount uint64 `json:"provider_amount"`
	MediatorAmount uint64 `json:"mediator_amount"`
	Out            string `json:"out,omitempty"`
	CorrelationID  string `json:"correlation_id,omitempty"`
}

// ChallengeJoinPayload admits the sender to a challenge. Input is the
// decimal secret value the proof commits to; Seal is the hex-encoded proof.
// Value is the native stake attached for native challenges.
type ChallengeJoinPayload struct {
	ChallengeID string `json:"challenge_id"`
	Input       string `json:"input"`
	Seal        string `json:"seal"`
	Value       uint64 `json:"value,omitempty"`
}

// ChallengeRefPayload addresses a challenge by id (leave, lock, cancel).
type ChallengeRefPayload struct {
	ChallengeID string `json:"challenge_id"`
}

// ChallengeResolvePayload distributes a locked challenge's pool.
type ChallengeResolvePayload struct {
	ChallengeID   string   `json:"challenge_id"`
	MediatorVault string   `json:"mediator_vault"`
	Payouts       []Payout `json:"payouts"`
}
