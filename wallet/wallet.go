package wallet

import (
	"github.com/tolelom/tolchallenge/core"
	"github.com/tolelom/tolchallenge/crypto"
)

// Wallet holds a key pair and provides transaction-building helpers.
type Wallet struct {
	priv crypto.PrivateKey
	pub  crypto.PublicKey
}

// New creates a Wallet from an existing private key.
func New(priv crypto.PrivateKey) *Wallet {
	return &Wallet{priv: priv, pub: priv.Public()}
}

// Generate creates a Wallet with a freshly generated key pair.
func Generate() (*Wallet, error) {
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return New(priv), nil
}

// PrivKey returns the raw private key (handle with care).
func (w *Wallet) PrivKey() crypto.PrivateKey {
	return w.priv
}

// PubKey returns the hex-encoded ed25519 public key (used as "from" address).
func (w *Wallet) PubKey() string {
	return w.pub.Hex()
}

// Address returns the short human-readable address (first 20 bytes of SHA-256(pubkey)).
func (w *Wallet) Address() string {
	return w.pub.Address()
}

// NewTx creates a signed transaction. chainID must match the target network.
// nonce should match the account's current nonce.
func (w *Wallet) NewTx(chainID string, typ core.TxType, nonce, fee uint64, payload any) (*core.Transaction, error) {
	tx, err := core.NewTransaction(chainID, typ, w.pub.Hex(), nonce, fee, payload)
	if err != nil {
		return nil, err
	}
	tx.Sign(w.priv)
	return tx, nil
}

// Transfer creates a signed transfer transaction.
func (w *Wallet) Transfer(chainID, to string, amount, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxTransfer, nonce, fee, core.TransferPayload{
		To:     to,
		Amount: amount,
	})
}

// CreateToken creates a signed token_create transaction minting supply to
// the wallet.
func (w *Wallet) CreateToken(chainID, symbol string, supply, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxTokenCreate, nonce, fee, core.TokenCreatePayload{Symbol: symbol, Supply: supply})
}

// TransferToken creates a signed token_transfer transaction.
func (w *Wallet) TransferToken(chainID, token, to string, amount, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxTokenTransfer, nonce, fee, core.TokenTransferPayload{Token: token, To: to, Amount: amount})
}

// Approve creates a signed token_approve transaction.
func (w *Wallet) Approve(chainID, token, spender string, amount, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxTokenApprove, nonce, fee, core.TokenApprovePayload{Token: token, Spender: spender, Amount: amount})
}

// GrantRole creates a signed role_grant transaction.
func (w *Wallet) GrantRole(chainID, role, account string, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxRoleGrant, nonce, fee, core.RolePayload{Role: role, Account: account})
}

// RevokeRole creates a signed role_revoke transaction.
func (w *Wallet) RevokeRole(chainID, role, account string, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxRoleRevoke, nonce, fee, core.RolePayload{Role: role, Account: account})
}

// BeginAdminTransfer creates a signed admin_transfer_begin transaction.
func (w *Wallet) BeginAdminTransfer(chainID, newAdmin string, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxAdminTransferBegin, nonce, fee, core.AdminTransferPayload{NewAdmin: newAdmin})
}

// AcceptAdminTransfer creates a signed admin_transfer_accept transaction.
func (w *Wallet) AcceptAdminTransfer(chainID string, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxAdminTransferAccept, nonce, fee, struct{}{})
}

// SetProviderVault creates a signed provider_vault_set transaction.
func (w *Wallet) SetProviderVault(chainID, vault string, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxProviderVaultSet, nonce, fee, core.ProviderVaultPayload{Vault: vault})
}

// CreateChallenge creates a signed challenge_create transaction.
func (w *Wallet) CreateChallenge(chainID string, p core.ChallengeCreatePayload, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxChallengeCreate, nonce, fee, p)
}

// JoinChallenge creates a signed challenge_join transaction. seal is the
// hex-encoded admission proof for input; value is the attached native stake.
func (w *Wallet) JoinChallenge(chainID, id, input, seal string, value, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxChallengeJoin, nonce, fee, core.ChallengeJoinPayload{
		ChallengeID: id,
		Input:       input,
		Seal:        seal,
		Value:       value,
	})
}

// LeaveChallenge creates a signed challenge_leave transaction.
func (w *Wallet) LeaveChallenge(chainID, id string, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxChallengeLeave, nonce, fee, core.ChallengeRefPayload{ChallengeID: id})
}

// LockChallenge creates a signed challenge_lock transaction.
func (w *Wallet) LockChallenge(chainID, id string, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxChallengeLock, nonce, fee, core.ChallengeRefPayload{ChallengeID: id})
}

// CancelChallenge creates a signed challenge_cancel transaction.
func (w *Wallet) CancelChallenge(chainID, id string, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxChallengeCancel, nonce, fee, core.ChallengeRefPayload{ChallengeID: id})
}

// ResolveChallenge creates a signed challenge_resolve transaction.
func (w *Wallet) ResolveChallenge(chainID, id, mediatorVault string, payouts []core.Payout, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxChallengeResolve, nonce, fee, core.ChallengeResolvePayload{
		ChallengeID:   id,
		MediatorVault: mediatorVault,
		Payouts:       payouts,
	})
}
