package storage_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolchallenge/core"
	"github.com/tolelom/tolchallenge/internal/testutil"
	"github.com/tolelom/tolchallenge/storage"
)

func sampleChallenge() *core.Challenge {
	return &core.Challenge{
		ID:             "c1",
		Mediator:       "mediator",
		Players:        []string{"p1", "p2"},
		EntryAmount:    10,
		Limit:          4,
		State:          core.ChallengeLocked,
		IsNative:       true,
		ProviderAmount: 1,
		MediatorAmount: 2,
		CorrelationID:  "corr-1",
		CreatedAt:      42,
	}
}

func TestStateDBReadYourWrites(t *testing.T) {
	db := testutil.NewMemDB()
	st := storage.NewStateDB(db)

	c := sampleChallenge()
	require.NoError(t, st.SetChallenge(c))
	got, err := st.GetChallenge("c1")
	require.NoError(t, err)
	if diff := cmp.Diff(c, got); diff != "" {
		t.Fatalf("challenge mismatch (-want +got):\n%s", diff)
	}
	require.Zero(t, db.Len(), "writes stay buffered until Commit")

	require.NoError(t, st.Commit())
	require.NotZero(t, db.Len())

	fresh := storage.NewStateDB(db)
	got, err = fresh.GetChallenge("c1")
	require.NoError(t, err)
	if diff := cmp.Diff(c, got); diff != "" {
		t.Fatalf("persisted challenge mismatch (-want +got):\n%s", diff)
	}
}

func TestStateDBDefaults(t *testing.T) {
	st := testutil.NewStateDB()

	acc, err := st.GetAccount("nobody")
	require.NoError(t, err)
	require.Equal(t, &core.Account{Address: "nobody"}, acc)

	n, err := st.GetChallengeCount()
	require.NoError(t, err)
	require.Zero(t, n)

	vault, err := st.GetProviderVault()
	require.NoError(t, err)
	require.Empty(t, vault)

	_, err = st.GetChallenge("missing")
	require.ErrorIs(t, err, core.ErrNotFound)

	ok, err := st.HasRole("ADMIN_ROLE", "nobody")
	require.NoError(t, err)
	require.False(t, ok)

	bal, err := st.GetTokenBalance("tok", "nobody")
	require.NoError(t, err)
	require.Zero(t, bal)
}

func TestStateDBSnapshotRevert(t *testing.T) {
	st := testutil.NewStateDB()
	testutil.Fund(t, st, "alice", 100)

	outer, err := st.Snapshot()
	require.NoError(t, err)
	testutil.Fund(t, st, "alice", 50)
	require.NoError(t, st.SetChallengeCount(3))

	inner, err := st.Snapshot()
	require.NoError(t, err)
	require.NoError(t, st.SetRole("ADMIN_ROLE", "alice", true))

	require.NoError(t, st.RevertToSnapshot(inner))
	ok, err := st.HasRole("ADMIN_ROLE", "alice")
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, uint64(50), testutil.Balance(t, st, "alice"))

	require.NoError(t, st.RevertToSnapshot(outer))
	require.Equal(t, uint64(100), testutil.Balance(t, st, "alice"))
	n, err := st.GetChallengeCount()
	require.NoError(t, err)
	require.Zero(t, n)

	// Reverting discards the reverted snapshot and every later one.
	require.Error(t, st.RevertToSnapshot(inner))
	require.Error(t, st.RevertToSnapshot(-1))
}

func TestStateDBSnapshotIsolatedFromLaterWrites(t *testing.T) {
	st := testutil.NewStateDB()
	c := sampleChallenge()
	require.NoError(t, st.SetChallenge(c))

	snap, err := st.Snapshot()
	require.NoError(t, err)
	c.Players = append(c.Players, "p3")
	require.NoError(t, st.SetChallenge(c))
	require.NoError(t, st.RevertToSnapshot(snap))

	got, err := st.GetChallenge(c.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"p1", "p2"}, got.Players)
}

func TestStateDBRoot(t *testing.T) {
	a, b := testutil.NewStateDB(), testutil.NewStateDB()
	require.Equal(t, a.ComputeRoot(), b.ComputeRoot())

	// Insertion order does not affect the root.
	testutil.Fund(t, a, "alice", 1)
	testutil.Fund(t, a, "bob", 2)
	testutil.Fund(t, b, "bob", 2)
	testutil.Fund(t, b, "alice", 1)
	require.Equal(t, a.ComputeRoot(), b.ComputeRoot())

	// Committed and buffered state hash the same.
	before := a.ComputeRoot()
	require.NoError(t, a.Commit())
	require.Equal(t, before, a.ComputeRoot())

	require.NoError(t, a.SetProviderVault("vault"))
	require.NotEqual(t, before, a.ComputeRoot())
}

func TestCommittedViewHidesWriteBuffer(t *testing.T) {
	db := testutil.NewMemDB()
	st := storage.NewStateDB(db)
	view := st.Committed()

	require.NoError(t, st.SetAccount(&core.Account{Address: "alice", Balance: 900}))
	require.NoError(t, st.Commit())

	require.NoError(t, st.SetAccount(&core.Account{Address: "alice", Balance: 990}))
	require.NoError(t, st.SetChallenge(sampleChallenge()))

	acc, err := view.GetAccount("alice")
	require.NoError(t, err)
	require.Equal(t, uint64(900), acc.Balance)
	_, err = view.GetChallenge("c1")
	require.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, st.Commit())
	acc, err = view.GetAccount("alice")
	require.NoError(t, err)
	require.Equal(t, uint64(990), acc.Balance)
	_, err = view.GetChallenge("c1")
	require.NoError(t, err)
}

func TestCommittedViewIsReadOnly(t *testing.T) {
	db := testutil.NewMemDB()
	view := storage.NewStateDB(db).Committed()

	require.NoError(t, view.SetAccount(&core.Account{Address: "alice", Balance: 5}))
	acc, err := view.GetAccount("alice")
	require.NoError(t, err)
	require.Zero(t, acc.Balance)

	_, err = view.Snapshot()
	require.ErrorIs(t, err, storage.ErrReadOnlyState)
	require.ErrorIs(t, view.Commit(), storage.ErrReadOnlyState)
	require.Zero(t, db.Len())
}
