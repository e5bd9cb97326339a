// Command node starts a tolchallenge node: a single-sequencer chain whose
// state machine runs pooled-stake challenges.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/tolelom/tolchallenge/access"
	"github.com/tolelom/tolchallenge/config"
	"github.com/tolelom/tolchallenge/consensus"
	"github.com/tolelom/tolchallenge/core"
	"github.com/tolelom/tolchallenge/crypto/certgen"
	"github.com/tolelom/tolchallenge/events"
	"github.com/tolelom/tolchallenge/indexer"
	"github.com/tolelom/tolchallenge/proof"
	"github.com/tolelom/tolchallenge/rpc"
	"github.com/tolelom/tolchallenge/storage"
	"github.com/tolelom/tolchallenge/vm"
	"github.com/tolelom/tolchallenge/vm/modules/challenge"
	"github.com/tolelom/tolchallenge/vm/modules/economy"
	"github.com/tolelom/tolchallenge/wallet"
)

type options struct {
	configPath  string
	keyPath     string
	genKey      bool
	genCertsDir string
	certHosts   []string
	dataDir     string
	rpcPort     int
	logLevel    string
}

func parseFlags(args []string) (*options, *pflag.FlagSet, error) {
	o := &options{}
	f := pflag.NewFlagSet("node", pflag.ContinueOnError)
	f.StringVar(&o.configPath, "config", "config.json", "path to config file")
	f.StringVar(&o.keyPath, "key", "validator.key", "path to keystore file")
	f.BoolVar(&o.genKey, "genkey", false, "generate a new validator key and exit")
	f.StringVar(&o.genCertsDir, "gen-rpc-certs", "", "generate CA, server and client certificates for RPC TLS into the given directory and exit")
	f.StringSliceVar(&o.certHosts, "rpc-cert-hosts", nil, "extra host names or IPs for the generated RPC server certificate")
	f.StringVar(&o.dataDir, "data-dir", "", "data directory (overrides config and TOL_DATA_DIR)")
	f.IntVar(&o.rpcPort, "rpc-port", 0, "RPC port (overrides config and TOL_RPC_PORT)")
	f.StringVar(&o.logLevel, "log-level", "", "log level: debug, info, warn, error")
	if err := f.Parse(args); err != nil {
		return nil, nil, err
	}
	return o, f, nil
}

func main() {
	opts, flags, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := run(opts, flags); err != nil {
		slog.Error("node exited", "err", err)
		os.Exit(1)
	}
}

func run(opts *options, flags *pflag.FlagSet) error {
	secrets, err := config.LoadSecrets()
	if err != nil {
		return err
	}
	password := secrets.KeystorePassword

	// ---- generate key mode ----
	if opts.genKey {
		w, err := wallet.Generate()
		if err != nil {
			return err
		}
		if err := wallet.SaveKey(opts.keyPath, password, w.PrivKey()); err != nil {
			return err
		}
		fmt.Printf("Generated key. Public key (validator address): %s\n", w.PubKey())
		fmt.Printf("Saved to: %s\n", opts.keyPath)
		return nil
	}

	// ---- generate RPC certs mode ----
	if opts.genCertsDir != "" {
		if err := certgen.Generate(opts.genCertsDir, certgen.Options{Hosts: opts.certHosts}); err != nil {
			return fmt.Errorf("gen-rpc-certs: %w", err)
		}
		fmt.Printf("RPC certificates generated in %s\n", opts.genCertsDir)
		return nil
	}

	// ---- load config: file < env < flags ----
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := config.ApplyEnv(cfg); err != nil {
		return err
	}
	if flags.Changed("data-dir") {
		cfg.DataDir = opts.dataDir
	}
	if flags.Changed("rpc-port") {
		cfg.RPCPort = opts.rpcPort
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = opts.logLevel
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if password == "" {
		logger.Warn("TOL_PASSWORD not set; keystore uses an empty password")
	}

	// ---- load validator key ----
	privKey, err := wallet.LoadKey(opts.keyPath, password)
	if err != nil {
		return fmt.Errorf("load key: %w", err)
	}

	// ---- open DB ----
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("mkdir data dir: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "chain"))
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	// State, blocks and indexes share one DB under different key prefixes.
	state := storage.NewStateDB(db)
	bc := core.NewBlockchain(storage.NewBlockStore(db))
	if err := bc.Init(); err != nil {
		return fmt.Errorf("blockchain init: %w", err)
	}

	gate := access.NewGate(cfg.Genesis.AdminTransferDelay())

	// ---- genesis block (if fresh chain) ----
	if bc.Tip() == nil {
		genesisBlock, err := config.CreateGenesisBlock(cfg, state, gate, privKey)
		if err != nil {
			return fmt.Errorf("genesis: %w", err)
		}
		if err := bc.AddBlock(genesisBlock); err != nil {
			return fmt.Errorf("add genesis: %w", err)
		}
		logger.Info("genesis block committed", "hash", genesisBlock.Hash, "chain_id", cfg.Genesis.ChainID)
	}

	// ---- proof oracle ----
	imageID := proof.DefaultImageID
	if cfg.Proof.ImageID != "" {
		if imageID, err = proof.DigestFromHex(cfg.Proof.ImageID); err != nil {
			return fmt.Errorf("proof.image_id: %w", err)
		}
	}
	attestations, err := proof.NewAttestationVerifier(cfg.Proof.ProverKeys...)
	if err != nil {
		return err
	}
	oracle, err := proof.NewCachedVerifier(attestations, cfg.Proof.CacheSize)
	if err != nil {
		return err
	}

	// ---- modules ----
	engine := challenge.New(challenge.Config{ImageID: imageID, Logger: logger}, oracle, gate)
	registry := vm.NewRegistry(economy.Module{}, gate, engine)

	emitter := events.NewEmitter()
	emitter.SubscribeAll(func(ev events.Event) {
		logger.Debug("event", "type", ev.Type, "tx", ev.TxID, "height", ev.BlockHeight)
	})
	idx := indexer.New(db, emitter, logger)
	mempool := core.NewMempool(
		core.WithChainID(cfg.Genesis.ChainID),
		core.WithTxTypes(registry.Types()),
	)
	exec := vm.NewExecutor(state, registry, emitter)
	seq := consensus.New(cfg, bc, state, mempool, exec, emitter, privKey, logger)

	// ---- RPC ----
	tlsCfg, err := config.LoadTLSConfig(cfg.RPCTLS)
	if err != nil {
		return fmt.Errorf("rpc tls: %w", err)
	}
	rpcHandler := rpc.NewHandler(rpc.Deps{
		Chain:      bc,
		Mempool:    mempool,
		State:      state.Committed(), // never the sequencer's in-flight buffer
		Indexer:    idx,
		Challenges: engine,
		Roles:      gate,
		ChainID:    cfg.Genesis.ChainID,
	})
	rpcServer := rpc.NewServer(fmt.Sprintf(":%d", cfg.RPCPort), rpcHandler, cfg.RPCAuthToken, tlsCfg, logger)
	if err := rpcServer.Start(); err != nil {
		return fmt.Errorf("rpc start: %w", err)
	}
	defer rpcServer.Stop()
	logger.Info("rpc listening", "addr", rpcServer.Addr(), "tls", tlsCfg != nil, "auth", cfg.RPCAuthToken != "")

	// ---- block production loop ----
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		seq.Run(cfg.BlockInterval(), done)
	}()
	logger.Info("sequencer running",
		"validator", privKey.Public().Hex(),
		"image_id", imageID.Hex(),
		"tx_types", len(registry.Types()))

	// ---- graceful shutdown ----
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down")

	// Stop block production first so no block is written during shutdown.
	close(done)
	wg.Wait()
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("config file not found, using defaults", "path", path)
			return config.DefaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}

func newLogger(c config.LogConfig) (*slog.Logger, error) {
	var level slog.Level
	if c.Level != "" {
		if err := level.UnmarshalText([]byte(c.Level)); err != nil {
			return nil, fmt.Errorf("log level %q: %w", c.Level, err)
		}
	}
	hopts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(c.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(os.Stderr, hopts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, hopts)), nil
	default:
		return nil, fmt.Errorf("log format %q: want text or json", c.Format)
	}
}
