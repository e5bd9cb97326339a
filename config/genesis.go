package config

import (
	"fmt"

	"github.com/tolelom/tolchallenge/access"
	"github.com/tolelom/tolchallenge/core"
	"github.com/tolelom/tolchallenge/crypto"
)

// GenesisHash is a canonical all-zeros previous hash for the genesis block.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// CreateGenesisBlock builds and signs block #0 from the genesis config. It
// credits the Alloc balances, installs the initial role holders through
// gate, records the provider vault, and commits state.
func CreateGenesisBlock(cfg *Config, state core.State, gate *access.Gate, proposerPriv crypto.PrivateKey) (*core.Block, error) {
	proposerPub := proposerPriv.Public()
	g := cfg.Genesis

	// Credit all alloc accounts
	for pubkeyHex, balance := range g.Alloc {
		acc := &core.Account{
			Address: pubkeyHex,
			Balance: balance,
			Nonce:   0,
		}
		if err := state.SetAccount(acc); err != nil {
			return nil, err
		}
	}

	admin := g.DefaultAdmin
	if admin == "" {
		admin = proposerPub.Hex()
	}
	if err := gate.Bootstrap(state, admin); err != nil {
		return nil, fmt.Errorf("bootstrap default admin: %w", err)
	}
	for _, a := range append([]string{admin}, g.Admins...) {
		if err := gate.GrantRole(state, admin, access.AdminRole, a); err != nil {
			return nil, fmt.Errorf("grant %s to %s: %w", access.AdminRole, a, err)
		}
	}
	if err := state.SetProviderVault(g.ProviderVault); err != nil {
		return nil, err
	}

	stateRoot := state.ComputeRoot()
	if err := state.Commit(); err != nil {
		return nil, err
	}

	block := core.NewBlock(g.ChainID, 0, GenesisHash, proposerPub.Hex(), nil)
	block.Header.StateRoot = stateRoot
	block.Sign(proposerPriv)
	return block, nil
}
