package challenge

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/tolelom/tolchallenge/core"
	"github.com/tolelom/tolchallenge/crypto"
)

// ModuleAccount is the custody account holding every challenge's stakes. It
// is also the registry address challenge ids are derived from.
const ModuleAccount = "module:challenge"

// DeriveID returns the id of the counter-th challenge created by the
// registry at address.
func DeriveID(address string, counter uint64) string {
	return crypto.HashParts("challenge", address, strconv.FormatUint(counter, 10))
}

// Registry is the challenge store view over a core.State: the id -> record
// mapping plus the creation counter.
type Registry struct {
	state   core.State
	address string
}

// NewRegistry returns the registry at address backed by st.
func NewRegistry(st core.State, address string) *Registry {
	return &Registry{state: st, address: address}
}

// Get returns the challenge with id. A missing record or one whose mediator
// is the zero address yields *GetChallengeError.
func (r *Registry) Get(id string) (*core.Challenge, error) {
	c, err := r.state.GetChallenge(id)
	if errors.Is(err, core.ErrNotFound) {
		return nil, &GetChallengeError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("load challenge %q: %w", id, err)
	}
	if c.Mediator == "" {
		return nil, &GetChallengeError{ID: id}
	}
	return c, nil
}

// Put stores c.
func (r *Registry) Put(c *core.Challenge) error {
	return r.state.SetChallenge(c)
}

// Count returns how many challenges have been created.
func (r *Registry) Count() (uint64, error) {
	return r.state.GetChallengeCount()
}

// Insert assigns c the next id, stores it and advances the counter.
func (r *Registry) Insert(c *core.Challenge) error {
	n, err := r.state.GetChallengeCount()
	if err != nil {
		return fmt.Errorf("challenge counter: %w", err)
	}
	if n == math.MaxUint64 {
		return errors.New("challenge counter overflow")
	}
	c.ID = DeriveID(r.address, n)
	if _, err := r.state.GetChallenge(c.ID); err == nil {
		return fmt.Errorf("challenge %q already exists", c.ID)
	} else if !errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("checking challenge %q: %w", c.ID, err)
	}
	if err := r.state.SetChallenge(c); err != nil {
		return err
	}
	return r.state.SetChallengeCount(n + 1)
}

// ProviderVault returns the protocol revenue vault address.
func (r *Registry) ProviderVault() (string, error) {
	return r.state.GetProviderVault()
}
