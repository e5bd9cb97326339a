package core

// Account holds a participant's native balance and replay-protection nonce.
// Address is the hex-encoded ed25519 public key, or a module account name.
type Account struct {
	Address string `json:"address"` // pubkey hex
	Balance uint64 `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

// ChallengeState is the lifecycle tag of a Challenge.
type ChallengeState string

const (
	ChallengeOpen     ChallengeState = "open"
	ChallengeLocked   ChallengeState = "locked"
	ChallengeCanceled ChallengeState = "canceled"
	ChallengeResolved ChallengeState = "resolved"
)

// Terminal reports whether no further transition is possible from s.
func (s ChallengeState) Terminal() bool {
	return s == ChallengeCanceled || s == ChallengeResolved
}

// Payout is one resolution-time transfer to a participant.
type Payout struct {
	To     string `json:"to"`     // pubkey hex
	Amount uint64 `json:"amount"`
}

// Challenge is a custody record pooling participant stakes toward a
// mediator-adjudicated outcome. Records are never deleted.
type Challenge struct {
	ID             string         `json:"id"`
	Mediator       string         `json:"mediator"` // empty means "no such challenge"
	Players        []string       `json:"players"`
	EntryAmount    uint64         `json:"entry_amount"`
	Limit          uint64         `json:"limit"`
	State          ChallengeState `json:"state"`
	Verified       bool           `json:"verified"`
	IsNative       bool           `json:"is_native"`
	Token          string         `json:"token,omitempty"`
	ProviderAmount uint64         `json:"provider_amount"` // per player, to the provider vault
	MediatorAmount uint64         `json:"mediator_amount"` // per player, to the mediator vault
	Out            string         `json:"out,omitempty"`
	CorrelationID  string         `json:"correlation_id,omitempty"`
	Payouts        []Payout       `json:"payouts,omitempty"`
	CreatedAt      int64          `json:"created_at"`
	ClosedAt       int64          `json:"closed_at,omitempty"`
}

// HasPlayer reports whether addr has joined c.
func (c *Challenge) HasPlayer(addr string) bool {
	return c.PlayerIndex(addr) >= 0
}

// PlayerIndex returns the position of addr in Players, or -1.
func (c *Challenge) PlayerIndex(addr string) int {
	for i, p := range c.Players {
		if p == addr {
			return i
		}
	}
	return -1
}

// Token is a minimal fungible token registered on chain.
type Token struct {
	ID          string `json:"id"`
	Symbol      string `json:"symbol"`
	Issuer      string `json:"issuer"` // pubkey hex
	TotalSupply uint64 `json:"total_supply"`
	CreatedAt   int64  `json:"created_at"`
}

// AdminState tracks the single DEFAULT_ADMIN_ROLE holder and any pending,
// time-delayed handover.
type AdminState struct {
	Holder   string `json:"holder"`
	Pending  string `json:"pending,omitempty"`
	Schedule int64  `json:"schedule,omitempty"` // earliest accept timestamp (unix nanos)
}

// State is the full chain state interface. Implementations must be
// snapshot-able so the executor can roll back failed transactions.
type State interface {
	// Accounts
	GetAccount(address string) (*Account, error)
	SetAccount(account *Account) error

	// Challenges
	GetChallenge(id string) (*Challenge, error)
	SetChallenge(c *Challenge) error
	GetChallengeCount() (uint64, error)
	SetChallengeCount(n uint64) error
	GetProviderVault() (string, error)
	SetProviderVault(addr string) error

	// Tokens
	GetToken(id string) (*Token, error)
	SetToken(t *Token) error
	GetTokenBalance(token, owner string) (uint64, error)
	SetTokenBalance(token, owner string, amount uint64) error
	GetTokenAllowance(token, owner, spender string) (uint64, error)
	SetTokenAllowance(token, owner, spender string, amount uint64) error

	// Roles
	HasRole(role, account string) (bool, error)
	SetRole(role, account string, granted bool) error
	GetAdminState() (*AdminState, error)
	SetAdminState(s *AdminState) error

	// Snapshot / rollback / commit
	Snapshot() (int, error)
	RevertToSnapshot(id int) error
	// ComputeRoot returns the deterministic state root from the current write
	// buffer without flushing. Call this before signing a block.
	ComputeRoot() string
	// Commit flushes the write buffer to the underlying DB and clears it.
	// Always call ComputeRoot() first to obtain the root for the block header.
	Commit() error
}
