package rpc

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tolelom/tolchallenge/core"
	"github.com/tolelom/tolchallenge/indexer"
	"github.com/tolelom/tolchallenge/vm/modules/challenge"
)

// ChallengeQuerier serves read-only challenge lookups.
type ChallengeQuerier interface {
	Get(st core.State, id string) (*core.Challenge, error)
	Count(st core.State) (uint64, error)
	ProviderVault(st core.State) (string, error)
}

// RoleChecker answers role membership queries.
type RoleChecker interface {
	HasRole(st core.State, role, account string) (bool, error)
}

// Deps bundles everything a Handler reads from.
type Deps struct {
	Chain      *core.Blockchain
	Mempool    *core.Mempool
	State      core.State
	Indexer    *indexer.Indexer
	Challenges ChallengeQuerier
	Roles      RoleChecker
	ChainID    string // expected chain_id; used to reject cross-chain replay transactions
}

// Handler holds all dependencies needed to serve RPC methods.
type Handler struct {
	bc         *core.Blockchain
	mempool    *core.Mempool
	state      core.State
	indexer    *indexer.Indexer
	challenges ChallengeQuerier
	roles      RoleChecker
	chainID    string
}

// NewHandler creates an RPC Handler.
func NewHandler(d Deps) *Handler {
	return &Handler{
		bc:         d.Chain,
		mempool:    d.Mempool,
		state:      d.State,
		indexer:    d.Indexer,
		challenges: d.Challenges,
		roles:      d.Roles,
		chainID:    d.ChainID,
	}
}

// Dispatch routes an RPC request to the correct method.
func (h *Handler) Dispatch(req Request) Response {
	switch req.Method {
	case "getBlockHeight":
		return okResponse(req.ID, h.bc.Height())

	case "getBlock":
		return h.getBlock(req)

	case "getBalance":
		return h.getBalance(req)

	case "getChallenge":
		return h.getChallenge(req)

	case "getChallengeCount":
		return h.getChallengeCount(req)

	case "getProviderVault":
		return h.getProviderVault(req)

	case "getChallengesByPlayer":
		return h.getChallengesByPlayer(req)

	case "getChallengesByMediator":
		return h.getChallengesByMediator(req)

	case "getChallengeByCorrelation":
		return h.getChallengeByCorrelation(req)

	case "getToken":
		return h.getToken(req)

	case "getTokenBalance":
		return h.getTokenBalance(req)

	case "getTokenAllowance":
		return h.getTokenAllowance(req)

	case "hasRole":
		return h.hasRole(req)

	case "sendTx":
		return h.sendTx(req)

	case "getMempoolSize":
		return okResponse(req.ID, h.mempool.Size())

	default:
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

// decodeParams unmarshals req.Params into dst and checks the named string
// fields are present.
func decodeParams[T any](req Request, required func(T) (string, bool)) (T, *Response) {
	var params T
	if err := json.Unmarshal(req.Params, &params); err != nil {
		r := errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
		return params, &r
	}
	if required != nil {
		if field, ok := required(params); !ok {
			r := errResponse(req.ID, CodeInvalidParams, field+" is required")
			return params, &r
		}
	}
	return params, nil
}

func (h *Handler) getBlock(req Request) Response {
	params, bad := decodeParams[struct {
		Hash   string `json:"hash"`
		Height *int64 `json:"height"`
	}](req, nil)
	if bad != nil {
		return *bad
	}

	var block *core.Block
	var err error
	if params.Hash != "" {
		block, err = h.bc.GetBlock(params.Hash)
	} else if params.Height != nil {
		block, err = h.bc.GetBlockByHeight(*params.Height)
	} else {
		block = h.bc.Tip()
	}
	if errors.Is(err, core.ErrNotFound) {
		return errResponse(req.ID, CodeNotFound, "block not found")
	}
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	if block == nil {
		return errResponse(req.ID, CodeNotFound, "no block found")
	}
	return okResponse(req.ID, block)
}

type addressParams struct {
	Address string `json:"address"`
}

func requireAddress(p addressParams) (string, bool) { return "address", p.Address != "" }

func (h *Handler) getBalance(req Request) Response {
	params, bad := decodeParams(req, requireAddress)
	if bad != nil {
		return *bad
	}
	acc, err := h.state.GetAccount(params.Address)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]any{"address": params.Address, "balance": acc.Balance, "nonce": acc.Nonce})
}

type idParams struct {
	ID string `json:"id"`
}

func requireID(p idParams) (string, bool) { return "id", p.ID != "" }

func (h *Handler) getChallenge(req Request) Response {
	params, bad := decodeParams(req, requireID)
	if bad != nil {
		return *bad
	}
	c, err := h.challenges.Get(h.state, params.ID)
	var notFound *challenge.GetChallengeError
	if errors.As(err, &notFound) {
		return errResponse(req.ID, CodeChallengeNotFound, err.Error())
	}
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, c)
}

func (h *Handler) getChallengeCount(req Request) Response {
	n, err := h.challenges.Count(h.state)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, n)
}

func (h *Handler) getProviderVault(req Request) Response {
	vault, err := h.challenges.ProviderVault(h.state)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]string{"vault": vault})
}

func (h *Handler) getChallengesByPlayer(req Request) Response {
	params, bad := decodeParams(req, requireAddress)
	if bad != nil {
		return *bad
	}
	ids, err := h.indexer.GetChallengesByPlayer(params.Address)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, nonNil(ids))
}

func (h *Handler) getChallengesByMediator(req Request) Response {
	params, bad := decodeParams(req, requireAddress)
	if bad != nil {
		return *bad
	}
	ids, err := h.indexer.GetChallengesByMediator(params.Address)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, nonNil(ids))
}

func (h *Handler) getChallengeByCorrelation(req Request) Response {
	params, bad := decodeParams[struct {
		CorrelationID string `json:"correlation_id"`
	}](req, nil)
	if bad != nil {
		return *bad
	}
	if params.CorrelationID == "" {
		return errResponse(req.ID, CodeInvalidParams, "correlation_id is required")
	}
	id, err := h.indexer.GetChallengeByCorrelation(params.CorrelationID)
	if errors.Is(err, core.ErrNotFound) {
		return errResponse(req.ID, CodeChallengeNotFound, "no challenge for correlation id")
	}
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]string{"challenge_id": id})
}

func (h *Handler) getToken(req Request) Response {
	params, bad := decodeParams(req, requireID)
	if bad != nil {
		return *bad
	}
	tok, err := h.state.GetToken(params.ID)
	if errors.Is(err, core.ErrNotFound) {
		return errResponse(req.ID, CodeNotFound, "token not found")
	}
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, tok)
}

type tokenParams struct {
	Token   string `json:"token"`
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
}

func (h *Handler) getTokenBalance(req Request) Response {
	params, bad := decodeParams(req, func(p tokenParams) (string, bool) {
		if p.Token == "" {
			return "token", false
		}
		return "owner", p.Owner != ""
	})
	if bad != nil {
		return *bad
	}
	bal, err := h.state.GetTokenBalance(params.Token, params.Owner)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]any{"token": params.Token, "owner": params.Owner, "balance": bal})
}

func (h *Handler) getTokenAllowance(req Request) Response {
	params, bad := decodeParams(req, func(p tokenParams) (string, bool) {
		switch {
		case p.Token == "":
			return "token", false
		case p.Owner == "":
			return "owner", false
		}
		return "spender", p.Spender != ""
	})
	if bad != nil {
		return *bad
	}
	amt, err := h.state.GetTokenAllowance(params.Token, params.Owner, params.Spender)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]any{
		"token":     params.Token,
		"owner":     params.Owner,
		"spender":   params.Spender,
		"allowance": amt,
	})
}

func (h *Handler) hasRole(req Request) Response {
	params, bad := decodeParams(req, func(p struct {
		Role    string `json:"role"`
		Account string `json:"account"`
	}) (string, bool) {
		if p.Role == "" {
			return "role", false
		}
		return "account", p.Account != ""
	})
	if bad != nil {
		return *bad
	}
	ok, err := h.roles.HasRole(h.state, params.Role, params.Account)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]any{"role": params.Role, "account": params.Account, "has_role": ok})
}

func (h *Handler) sendTx(req Request) Response {
	var tx core.Transaction
	if err := json.Unmarshal(req.Params, &tx); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	// Reject transactions destined for a different network to prevent
	// cross-chain replay attacks.
	if tx.ChainID != h.chainID {
		return errResponse(req.ID, CodeInvalidParams,
			fmt.Sprintf("chain ID mismatch: got %q want %q", tx.ChainID, h.chainID))
	}
	// Recompute the ID server-side; do not trust the client-provided value.
	tx.ID = tx.Hash()
	if err := h.mempool.Add(&tx); err != nil {
		code := CodeTxRejected
		if errors.Is(err, core.ErrMempoolFull) {
			code = CodeMempoolFull
		}
		return errResponse(req.ID, code, err.Error())
	}
	return okResponse(req.ID, map[string]string{"tx_id": tx.ID})
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
