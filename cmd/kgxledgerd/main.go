// kgxledger full node daemon.
//
// Usage:
//
//	kgxledgerd [--mine --wallet] Run node
//	kgxledgerd --help            Show help
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/kgxledger/kgxledger/config"
	"github.com/kgxledger/kgxledger/internal/chain"
	klog "github.com/kgxledger/kgxledger/internal/log"
	"github.com/kgxledger/kgxledger/internal/mempool"
	"github.com/kgxledger/kgxledger/internal/miner"
	"github.com/kgxledger/kgxledger/internal/p2p"
	"github.com/kgxledger/kgxledger/internal/rpc"
	"github.com/kgxledger/kgxledger/internal/storage"
	"github.com/kgxledger/kgxledger/internal/wallet"
)

// mempoolMaxSize bounds the number of pending transactions held in memory.
const mempoolMaxSize = 5000

// nodeWalletName is the keystore entry used for this daemon's own mining
// identity, distinct from any wallet a user manages through kgxledger-cli.
const nodeWalletName = "node"

func main() {
	// ── 1. Load config (defaults → file → flags) ────────────────────────
	cfg, _, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// ── 2. Init logger ───────────────────────────────────────────────────
	logFile := cfg.Log.File
	if logFile == "" {
		logsDir := cfg.LogsDir()
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating logs dir: %v\n", err)
			os.Exit(1)
		}
		logFile = filepath.Join(logsDir, "kgxledger.log")
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	logger := klog.WithComponent("node")

	logger.Info().
		Str("network", string(cfg.Network)).
		Str("datadir", cfg.DataDir).
		Msg("Starting kgxledger node")

	// ── 3. Open storage ──────────────────────────────────────────────────
	db, err := storage.NewBadger(cfg.ChainDataDir())
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.ChainDataDir()).Msg("Failed to open database")
	}
	defer db.Close()

	// ── 4. Create mempool and chain (auto-recovers tip from DB) ─────────
	pool := mempool.New(mempoolMaxSize)
	ch, err := chain.New(db, pool)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create chain")
	}
	logger.Info().
		Uint64("height", ch.Height()).
		Str("tip", ch.Tip().Hash().String()).
		Msg("Chain ready")

	// ── 5. Node wallet (mining coinbase / mining.mineWithTransaction) ───
	var nodeWallet chain.Wallet
	if cfg.Wallet.Enabled || cfg.Mining.Enabled {
		w, err := loadOrCreateNodeWallet(cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to load node wallet")
		}
		nodeWallet = w
		logger.Info().Str("address", w.PublicKey().String()).Msg("Node wallet ready")
	}

	// ── 6. Miner worker (not started unless --mine is set) ──────────────
	var worker *miner.Worker
	if nodeWallet != nil {
		worker = miner.New(ch, nodeWallet)
	}

	// ── 7. P2P node ──────────────────────────────────────────────────────
	var p2pNode *p2p.Node
	if cfg.P2P.Enabled {
		p2pNode = p2p.New(p2p.Config{
			ListenAddr: cfg.P2P.ListenAddr,
			Port:       cfg.P2P.Port,
			Seeds:      cfg.P2P.Seeds,
			DataDir:    cfg.ChainDataDir(),
		})
		p2p.Wire(p2pNode, ch)
		ch.SetBroadcaster(p2pNode)

		if err := p2pNode.Start(); err != nil {
			logger.Fatal().Err(err).Msg("Failed to start P2P node")
		}
		defer p2pNode.Stop()

		logger.Info().
			Str("id", p2pNode.ID().String()).
			Int("port", cfg.P2P.Port).
			Int("seeds", len(cfg.P2P.Seeds)).
			Msg("P2P node started")
	}

	// ── 8. RPC server ────────────────────────────────────────────────────
	var rpcServer *rpc.Server
	if cfg.RPC.Enabled {
		addr := fmt.Sprintf("%s:%d", cfg.RPC.Addr, cfg.RPC.Port)
		rpcServer = rpc.New(addr, ch, pool, p2pNode, worker, nodeWallet)
		rpcServer.SetAllowedIPs(cfg.RPC.AllowedIPs)
		if err := rpcServer.Start(); err != nil {
			logger.Fatal().Err(err).Str("addr", addr).Msg("Failed to start RPC server")
		}
		defer rpcServer.Stop()
		logger.Info().Str("addr", rpcServer.Addr()).Msg("RPC server started")
	}

	// ── 9. Start mining if requested ─────────────────────────────────────
	if cfg.Mining.Enabled {
		if worker == nil {
			logger.Fatal().Msg("mining enabled but no node wallet loaded (no signing identity configured)")
		}
		worker.Start()
		logger.Info().Str("coinbase", nodeWallet.PublicKey().String()).Msg("Mining started")
	}

	// ── 10. Wait for shutdown ─────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")

	if worker != nil {
		worker.Stop()
	}
	logger.Info().Msg("Goodbye!")
}

// loadOrCreateNodeWallet opens the node's own keystore entry, creating a
// fresh mnemonic-derived wallet on first run. The keystore password comes
// from KGXLEDGER_WALLET_PASSWORD; an empty password is accepted for
// devnet convenience but logged as such.
func loadOrCreateNodeWallet(cfg *config.Config) (*wallet.Wallet, error) {
	ks, err := wallet.NewKeystore(cfg.KeystoreDir())
	if err != nil {
		return nil, fmt.Errorf("open keystore: %w", err)
	}
	password := []byte(os.Getenv("KGXLEDGER_WALLET_PASSWORD"))

	names, err := ks.List()
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	if !contains(names, nodeWalletName) {
		mnemonic, err := wallet.GenerateMnemonic()
		if err != nil {
			return nil, fmt.Errorf("generate mnemonic: %w", err)
		}
		seed, err := wallet.SeedFromMnemonic(mnemonic, "")
		if err != nil {
			return nil, fmt.Errorf("derive seed: %w", err)
		}
		if err := ks.Create(nodeWalletName, seed, password, wallet.DefaultParams()); err != nil {
			return nil, fmt.Errorf("create wallet: %w", err)
		}
		mnemonicPath := filepath.Join(cfg.KeystoreDir(), nodeWalletName+".mnemonic")
		if err := os.WriteFile(mnemonicPath, []byte(mnemonic+"\n"), 0600); err != nil {
			return nil, fmt.Errorf("save mnemonic recovery phrase: %w", err)
		}
	}

	seed, err := ks.Load(nodeWalletName, password)
	if err != nil {
		return nil, fmt.Errorf("unlock wallet: %w", err)
	}
	master, err := wallet.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("derive master key: %w", err)
	}
	hd, err := master.DeriveAddress(0, wallet.ChangeExternal, 0)
	if err != nil {
		return nil, fmt.Errorf("derive address: %w", err)
	}
	return wallet.FromHDKey(hd)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
