package storage_test

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolchallenge/core"
	"github.com/tolelom/tolchallenge/internal/testutil"
	"github.com/tolelom/tolchallenge/storage"
)

func openLevelDB(t *testing.T, dir string) *storage.LevelDB {
	t.Helper()
	db, err := storage.NewLevelDB(filepath.Join(dir, "chain"))
	require.NoError(t, err)
	return db
}

func TestLevelDBBasics(t *testing.T) {
	db := openLevelDB(t, t.TempDir())
	defer db.Close()

	_, err := db.Get([]byte("missing"))
	require.ErrorIs(t, err, core.ErrNotFound)

	batch := db.NewBatch()
	batch.Set([]byte("p:b"), []byte("2"))
	batch.Set([]byte("p:a"), []byte("1"))
	batch.Set([]byte("q:z"), []byte("x"))
	batch.Delete([]byte("p:b"))
	require.NoError(t, batch.Write())

	it := db.NewIterator([]byte("p:"))
	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Key()))
	}
	it.Release()
	require.NoError(t, it.Error())
	require.Equal(t, []string{"p:a"}, keys)

	require.NoError(t, db.Delete([]byte("p:a")))
	_, err = db.Get([]byte("p:a"))
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestBlockStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	db := openLevelDB(t, dir)
	bs := storage.NewBlockStore(db)

	tip, err := bs.GetTip()
	require.NoError(t, err)
	require.Empty(t, tip)

	priv, pub := testutil.Key(t, "proposer")
	block := core.NewBlock("test-chain", 0, "0000", pub, nil)
	block.Sign(priv)
	require.NoError(t, bs.CommitBlock(block))

	st := storage.NewStateDB(db)
	c := sampleChallenge()
	require.NoError(t, st.SetChallenge(c))
	root := st.ComputeRoot()
	require.NoError(t, st.Commit())
	require.NoError(t, db.Close())

	db = openLevelDB(t, dir)
	defer db.Close()
	bs = storage.NewBlockStore(db)

	tip, err = bs.GetTip()
	require.NoError(t, err)
	require.Equal(t, block.Hash, tip)
	got, err := bs.GetBlockByHeight(0)
	require.NoError(t, err)
	if diff := cmp.Diff(block, got); diff != "" {
		t.Fatalf("block mismatch (-want +got):\n%s", diff)
	}

	st = storage.NewStateDB(db)
	require.Equal(t, root, st.ComputeRoot())
	persisted, err := st.GetChallenge(c.ID)
	require.NoError(t, err)
	require.Equal(t, c, persisted)
}
