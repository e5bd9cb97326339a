package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

// GenesisConfig describes the chain's initial state.
type GenesisConfig struct {
	ChainID string            `json:"chain_id"`
	Alloc   map[string]uint64 `json:"alloc"` // pubkey hex → initial balance

	// DefaultAdmin receives DEFAULT_ADMIN_ROLE; it also gets ADMIN_ROLE.
	DefaultAdmin string   `json:"default_admin"`
	Admins       []string `json:"admins,omitempty"` // additional ADMIN_ROLE holders
	// ProviderVault collects the per-player provider fee of every challenge.
	ProviderVault string `json:"provider_vault"`
	// AdminTransferDelaySec is the wait between starting and accepting a
	// DEFAULT_ADMIN_ROLE handover.
	AdminTransferDelaySec uint64 `json:"admin_transfer_delay_sec"`
}

// AdminTransferDelay returns the configured handover delay.
func (g GenesisConfig) AdminTransferDelay() time.Duration {
	return time.Duration(g.AdminTransferDelaySec) * time.Second
}

// ProofConfig selects the admission proof program and its trusted provers.
type ProofConfig struct {
	ImageID    string   `json:"image_id,omitempty"` // hex; empty → built-in guest
	ProverKeys []string `json:"prover_keys"`        // ed25519 pubkey hexes
	CacheSize  int      `json:"cache_size"`         // verified-seal LRU entries
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `json:"level" env:"TOL_LOG_LEVEL"`   // debug, info, warn, error
	Format string `json:"format" env:"TOL_LOG_FORMAT"` // text or json
}

// TLSConfig holds PEM paths for serving RPC over TLS. ClientCA enables
// client certificate verification.
type TLSConfig struct {
	Cert     string `json:"cert" env:"TOL_RPC_TLS_CERT"`
	Key      string `json:"key" env:"TOL_RPC_TLS_KEY"`
	ClientCA string `json:"client_ca,omitempty" env:"TOL_RPC_TLS_CLIENT_CA"`
}

// Config holds all node configuration.
type Config struct {
	NodeID          string    `json:"node_id" env:"TOL_NODE_ID"`
	DataDir         string    `json:"data_dir" env:"TOL_DATA_DIR"`
	RPCPort         int       `json:"rpc_port" env:"TOL_RPC_PORT"`
	RPCAuthToken    string    `json:"rpc_auth_token,omitempty" env:"TOL_RPC_AUTH_TOKEN"`
	RPCTLS          TLSConfig `json:"rpc_tls"`
	MaxBlockTxs     int       `json:"max_block_txs"`     // max transactions per block; 0 → 500
	BlockIntervalMS int       `json:"block_interval_ms"` // 0 → 1000
	Validators      []string  `json:"validators"`        // authorised proposer pubkey hexes
	Log             LogConfig `json:"log"`

	Proof   ProofConfig   `json:"proof"`
	Genesis GenesisConfig `json:"genesis"`
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *Config {
	return &Config{
		NodeID:          "node0",
		DataDir:         "./data",
		RPCPort:         8545,
		MaxBlockTxs:     500,
		BlockIntervalMS: 1000,
		Log:             LogConfig{Level: "info", Format: "text"},
		Proof:           ProofConfig{CacheSize: 1024},
		Genesis: GenesisConfig{
			ChainID:               "tolchallenge-dev",
			Alloc:                 map[string]uint64{},
			AdminTransferDelaySec: 300,
		},
	}
}

// BlockInterval returns the block production period.
func (c *Config) BlockInterval() time.Duration {
	if c.BlockIntervalMS <= 0 {
		return time.Second
	}
	return time.Duration(c.BlockIntervalMS) * time.Millisecond
}

// Validate reports configuration that cannot start a node.
func (c *Config) Validate() error {
	var errs []error
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}
	if c.RPCPort <= 0 || c.RPCPort > 65535 {
		errs = append(errs, fmt.Errorf("rpc_port %d out of range", c.RPCPort))
	}
	if c.Genesis.ChainID == "" {
		errs = append(errs, errors.New("genesis.chain_id is required"))
	}
	if len(c.Proof.ProverKeys) == 0 {
		errs = append(errs, errors.New("proof.prover_keys needs at least one key"))
	}
	if (c.RPCTLS.Cert == "") != (c.RPCTLS.Key == "") {
		errs = append(errs, errors.New("rpc_tls needs both cert and key"))
	}
	return errors.Join(errs...)
}

// Load reads a JSON config file from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with any TOL_* environment variables that are set.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Secrets are read only from the environment. They never appear in the
// config file or on the command line, where they would leak via ps.
type Secrets struct {
	KeystorePassword string `env:"TOL_PASSWORD"`
}

// LoadSecrets reads Secrets from the environment.
func LoadSecrets() (Secrets, error) {
	var s Secrets
	if err := env.Parse(&s); err != nil {
		return Secrets{}, fmt.Errorf("parse env: %w", err)
	}
	return s, nil
}

// Save writes the config to path as formatted JSON.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
