package challenge

import (
	"github.com/holiman/uint256"
	"github.com/tolelom/tolchallenge/core"
)

// ValidatePayouts checks a proposed distribution for a locked challenge.
//
// Every recipient must be a player, checked before totals. Then the payouts
// plus the per-player provider and mediator fees must equal the pool
// (players * entry amount) exactly. Sums are taken in 256 bits so no
// combination of uint64 amounts can wrap into equality.
func ValidatePayouts(c *core.Challenge, payouts []core.Payout) error {
	for _, p := range payouts {
		if !c.HasPlayer(p.To) {
			return &PayoutToAddressError{Recipient: p.To}
		}
	}

	n := uint256.NewInt(uint64(len(c.Players)))
	pool := new(uint256.Int).Mul(n, uint256.NewInt(c.EntryAmount))

	total := new(uint256.Int)
	for _, p := range payouts {
		total.Add(total, uint256.NewInt(p.Amount))
	}
	total.Add(total, new(uint256.Int).Mul(n, uint256.NewInt(c.ProviderAmount)))
	total.Add(total, new(uint256.Int).Mul(n, uint256.NewInt(c.MediatorAmount)))

	if !total.Eq(pool) {
		return &PayoutError{Pool: pool.Dec(), Distributed: total.Dec()}
	}
	return nil
}

// feeTotals returns players*providerAmount and players*mediatorAmount. The
// pool they are carved from was collected in uint64 balances, so once
// ValidatePayouts has passed both fit in 64 bits.
func feeTotals(c *core.Challenge) (provider, mediator uint64) {
	n := uint64(len(c.Players))
	return n * c.ProviderAmount, n * c.MediatorAmount
}
