package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolchallenge/access"
	"github.com/tolelom/tolchallenge/core"
	"github.com/tolelom/tolchallenge/internal/testutil"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, time.Second, cfg.BlockInterval())
	require.Equal(t, 300*time.Second, cfg.Genesis.AdminTransferDelay())

	// Defaults are complete except for the prover keys.
	require.ErrorContains(t, cfg.Validate(), "prover_keys")
	cfg.Proof.ProverKeys = []string{"k"}
	require.NoError(t, cfg.Validate())
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := &Config{RPCPort: 70000, RPCTLS: TLSConfig{Cert: "c.pem"}}
	err := cfg.Validate()
	for _, want := range []string{"data_dir", "rpc_port", "chain_id", "prover_keys", "cert and key"} {
		require.ErrorContains(t, err, want)
	}
}

func TestLoadSaveAndEnvOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := DefaultConfig()
	cfg.BlockIntervalMS = 250
	cfg.Proof.ProverKeys = []string{"abc"}
	cfg.Genesis.Admins = []string{"ops"}
	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, loaded)
	require.Equal(t, 250*time.Millisecond, loaded.BlockInterval())

	t.Setenv("TOL_DATA_DIR", "/var/lib/tol")
	t.Setenv("TOL_RPC_PORT", "9000")
	t.Setenv("TOL_LOG_FORMAT", "json")
	t.Setenv("TOL_RPC_TLS_CERT", "/etc/tol/server.crt")
	require.NoError(t, ApplyEnv(loaded))
	require.Equal(t, "/var/lib/tol", loaded.DataDir)
	require.Equal(t, 9000, loaded.RPCPort)
	require.Equal(t, "json", loaded.Log.Format)
	require.Equal(t, "/etc/tol/server.crt", loaded.RPCTLS.Cert)
	require.Equal(t, "node0", loaded.NodeID, "unset variables keep file values")

	t.Setenv("TOL_RPC_PORT", "not-a-port")
	require.Error(t, ApplyEnv(loaded))

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestCreateGenesisBlock(t *testing.T) {
	priv, proposer := testutil.Key(t, "proposer")
	_, ops := testutil.Key(t, "ops")
	cfg := DefaultConfig()
	cfg.Genesis.Alloc = map[string]uint64{ops: 1_000}
	cfg.Genesis.Admins = []string{ops}
	cfg.Genesis.ProviderVault = "vault"

	st := testutil.NewStateDB()
	gate := access.NewGate(cfg.Genesis.AdminTransferDelay())
	block, err := CreateGenesisBlock(cfg, st, gate, priv)
	require.NoError(t, err)

	require.Equal(t, int64(0), block.Header.Height)
	require.Equal(t, GenesisHash, block.Header.PrevHash)
	require.Equal(t, cfg.Genesis.ChainID, block.Header.ChainID)
	require.Equal(t, st.ComputeRoot(), block.Header.StateRoot)
	require.NoError(t, block.Verify(priv.Public()))

	bc := core.NewBlockchain(testutil.NewMemBlockStore())
	require.NoError(t, bc.AddBlock(block))

	// Without an explicit default admin, the proposer bootstraps.
	for _, c := range []struct {
		role, account string
	}{
		{access.DefaultAdminRole, proposer},
		{access.AdminRole, proposer},
		{access.AdminRole, ops},
	} {
		ok, err := gate.HasRole(st, c.role, c.account)
		require.NoError(t, err)
		require.True(t, ok, "%s should hold %s", c.account, c.role)
	}
	require.Equal(t, uint64(1_000), testutil.Balance(t, st, ops))
	vault, err := st.GetProviderVault()
	require.NoError(t, err)
	require.Equal(t, "vault", vault)

	// A second genesis over the same state is refused.
	_, err = CreateGenesisBlock(cfg, st, gate, priv)
	require.Error(t, err)
}

func TestLoadSecrets(t *testing.T) {
	t.Setenv("TOL_PASSWORD", "")
	s, err := LoadSecrets()
	require.NoError(t, err)
	require.Empty(t, s.KeystorePassword)

	t.Setenv("TOL_PASSWORD", "hunter2")
	s, err = LoadSecrets()
	require.NoError(t, err)
	require.Equal(t, "hunter2", s.KeystorePassword)
}
