package indexer

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolchallenge/core"
	"github.com/tolelom/tolchallenge/events"
	"github.com/tolelom/tolchallenge/internal/testutil"
)

func TestIndexesFollowChallengeEvents(t *testing.T) {
	em := events.NewEmitter()
	idx := New(testutil.NewMemDB(), em, nil)

	em.Emit(events.Event{Type: events.EventChallengeCreated, Data: map[string]any{
		"challenge_id": "c1", "mediator": "med", "correlation_id": "corr-1",
	}})
	em.Emit(events.Event{Type: events.EventChallengeCreated, Data: map[string]any{
		"challenge_id": "c2", "mediator": "med",
	}})
	for _, j := range []struct{ id, player string }{{"c1", "p1"}, {"c1", "p2"}, {"c2", "p1"}, {"c2", "p1"}} {
		em.Emit(events.Event{Type: events.EventChallengeJoined, Data: map[string]any{"challenge_id": j.id, "player": j.player}})
	}
	em.Emit(events.Event{Type: events.EventChallengeLeft, Data: map[string]any{"challenge_id": "c1", "player": "p1"}})

	for _, tc := range []struct {
		name string
		got  func() ([]string, error)
		want []string
	}{
		{"mediator", func() ([]string, error) { return idx.GetChallengesByMediator("med") }, []string{"c1", "c2"}},
		{"p1", func() ([]string, error) { return idx.GetChallengesByPlayer("p1") }, []string{"c2"}},
		{"p2", func() ([]string, error) { return idx.GetChallengesByPlayer("p2") }, []string{"c1"}},
		{"unknown", func() ([]string, error) { return idx.GetChallengesByPlayer("nobody") }, nil},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.got()
			require.NoError(t, err)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("ids mismatch (-want +got):\n%s", diff)
			}
		})
	}

	id, err := idx.GetChallengeByCorrelation("corr-1")
	require.NoError(t, err)
	require.Equal(t, "c1", id)
	_, err = idx.GetChallengeByCorrelation("corr-2")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestIndexerIgnoresIncompleteEvents(t *testing.T) {
	db := testutil.NewMemDB()
	em := events.NewEmitter()
	New(db, em, nil)

	em.Emit(events.Event{Type: events.EventChallengeCreated, Data: map[string]any{"mediator": "med"}})
	em.Emit(events.Event{Type: events.EventChallengeJoined, Data: map[string]any{"challenge_id": "c1"}})
	em.Emit(events.Event{Type: events.EventChallengeLeft, Data: map[string]any{"player": "p1"}})
	require.Zero(t, db.Len())
}
