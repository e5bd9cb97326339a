package challenge

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolchallenge/core"
)

func lockedChallenge(players []string, entry, provider, mediator uint64) *core.Challenge {
	return &core.Challenge{
		ID:             "c",
		Mediator:       "m",
		Players:        players,
		EntryAmount:    entry,
		Limit:          uint64(len(players)),
		State:          core.ChallengeLocked,
		IsNative:       true,
		ProviderAmount: provider,
		MediatorAmount: mediator,
	}
}

func TestValidatePayoutsConservation(t *testing.T) {
	players := []string{"a", "b", "c"}
	c := lockedChallenge(players, 100, 5, 7)
	// 3*100 - 3*5 - 3*7 = 264
	for _, tc := range []struct {
		name    string
		payouts []core.Payout
		ok      bool
	}{
		{"exact single", []core.Payout{{To: "a", Amount: 264}}, true},
		{"exact split", []core.Payout{{To: "a", Amount: 100}, {To: "b", Amount: 100}, {To: "c", Amount: 64}}, true},
		{"repeated recipient", []core.Payout{{To: "a", Amount: 132}, {To: "a", Amount: 132}}, true},
		{"under", []core.Payout{{To: "a", Amount: 263}}, false},
		{"over", []core.Payout{{To: "a", Amount: 265}}, false},
		{"empty", nil, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePayouts(c, tc.payouts)
			if tc.ok {
				require.NoError(t, err)
				return
			}
			var payoutErr *PayoutError
			require.ErrorAs(t, err, &payoutErr)
			require.Equal(t, "300", payoutErr.Pool)
		})
	}
}

func TestValidatePayoutsFeesOnly(t *testing.T) {
	c := lockedChallenge([]string{"a", "b"}, 10, 5, 5)
	require.NoError(t, ValidatePayouts(c, nil))
	provider, mediator := feeTotals(c)
	require.Equal(t, uint64(10), provider)
	require.Equal(t, uint64(10), mediator)
}

func TestValidatePayoutsMembershipComesFirst(t *testing.T) {
	c := lockedChallenge([]string{"a", "b"}, 100, 5, 5)
	// Correct total, stranger recipient.
	err := ValidatePayouts(c, []core.Payout{{To: "a", Amount: 90}, {To: "z", Amount: 90}})
	var recipientErr *PayoutToAddressError
	require.ErrorAs(t, err, &recipientErr)
	require.Equal(t, "z", recipientErr.Recipient)

	// Wrong total and stranger recipient: membership is reported.
	err = ValidatePayouts(c, []core.Payout{{To: "z", Amount: 1}})
	require.ErrorAs(t, err, &recipientErr)
}

func TestValidatePayoutsDoesNotWrap(t *testing.T) {
	c := lockedChallenge([]string{"a", "b"}, math.MaxUint64/2, 0, 0)
	// Two payouts whose uint64 sum would wrap to the pool's low bits.
	err := ValidatePayouts(c, []core.Payout{
		{To: "a", Amount: math.MaxUint64},
		{To: "b", Amount: math.MaxUint64},
	})
	var payoutErr *PayoutError
	require.ErrorAs(t, err, &payoutErr)
	require.Equal(t, "36893488147419103230", payoutErr.Distributed)
}
