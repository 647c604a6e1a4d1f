// kgxledger-cli is a command-line client for interacting with a kgxledgerd
// node over JSON-RPC, plus local keystore management.
package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/kgxledger/kgxledger/config"
	"github.com/kgxledger/kgxledger/internal/rpc"
	"github.com/kgxledger/kgxledger/internal/rpcclient"
	"github.com/kgxledger/kgxledger/internal/wallet"
	"github.com/kgxledger/kgxledger/pkg/types"
	"github.com/shopspring/decimal"
	"golang.org/x/term"
)

// keystoreDir returns the keystore path matching kgxledgerd's layout:
// <datadir>/<network>/keystore
func keystoreDir(dataDir, network string) string {
	return filepath.Join(dataDir, network, "keystore")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	rpcURL := "http://127.0.0.1:8545"
	dataDir := config.DefaultDataDir()
	network := "mainnet"

	args := os.Args[1:]
	for len(args) > 0 {
		switch {
		case args[0] == "--rpc" && len(args) > 1:
			rpcURL = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--rpc="):
			rpcURL = args[0][len("--rpc="):]
			args = args[1:]
		case args[0] == "--datadir" && len(args) > 1:
			dataDir = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--datadir="):
			dataDir = args[0][len("--datadir="):]
			args = args[1:]
		case args[0] == "--network" && len(args) > 1:
			network = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--network="):
			network = args[0][len("--network="):]
			args = args[1:]
		default:
			goto dispatch
		}
	}

dispatch:
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	ksDir := keystoreDir(dataDir, network)
	client := rpcclient.New(rpcURL)

	switch args[0] {
	case "status":
		cmdStatus(client)
	case "block":
		cmdBlock(client, args[1:])
	case "tx":
		cmdTx(client, args[1:])
	case "send":
		cmdSend(client, args[1:])
	case "balance":
		cmdBalance(client, args[1:])
	case "mempool":
		cmdMempool(client)
	case "mining":
		cmdMining(client, args[1:])
	case "wallet":
		cmdWallet(client, args[1:], ksDir)
	case "help", "--help", "-h":
		usage()
	default:
		fatal("unknown command %q (try \"help\")", args[0])
	}
}

func usage() {
	fmt.Print(`kgxledger-cli - command line client for kgxledgerd

Usage:
  kgxledger-cli [--rpc url] [--datadir dir] [--network mainnet|testnet] <command> [args]

Global flags:
  --rpc url        JSON-RPC endpoint (default http://127.0.0.1:8545)
  --datadir dir    Data directory for the local keystore (default platform-specific)
  --network name   mainnet or testnet (default mainnet)

Commands:
  status                        Show chain height, tip hash, difficulty
  block <hash|index>            Fetch a block
  tx <txid>                     Fetch a transaction
  mempool                       List pending transactions
  balance <address>             Show the confirmed balance of an address
  send <to> <amount>            Mine a block paying <amount> to <to> from the node's wallet
  mining start|stop             Control the node's miner
  wallet create <name>          Create a new wallet (prints the recovery mnemonic)
  wallet import <name>          Import a wallet from a mnemonic
  wallet list                   List local wallet names
  wallet address <name>         Show a wallet's default receiving address
  wallet new-address <name>     Derive and record the next receiving address
  wallet balance <name>         Show the RPC-reported balance of a wallet's default address
  wallet export-key <name>      Print the raw private key for a wallet's default address
  help                          Show this message
`)
}

func cmdStatus(client *rpcclient.Client) {
	var info rpc.ChainInfo
	if err := client.Call("chain.getInfo", nil, &info); err != nil {
		fatal("%v", err)
	}
	fmt.Printf("height:     %d\n", info.Height)
	fmt.Printf("tip hash:   %s\n", info.TipHash)
	fmt.Printf("difficulty: %d\n", info.Difficulty)
}

func cmdBlock(client *rpcclient.Client, args []string) {
	if len(args) < 1 {
		fatal("usage: block <hash|index>")
	}
	var result interface{}
	if index, ok := parseUint(args[0]); ok {
		if err := client.Call("block.getByIndex", rpc.IndexParam{Index: index}, &result); err != nil {
			fatal("%v", err)
		}
	} else {
		hash, err := types.HexToHash(args[0])
		if err != nil {
			fatal("invalid hash or index %q: %v", args[0], err)
		}
		if err := client.Call("block.getByHash", rpc.HashParam{Hash: hash}, &result); err != nil {
			fatal("%v", err)
		}
	}
	printJSON(result)
}

func cmdTx(client *rpcclient.Client, args []string) {
	if len(args) < 1 {
		fatal("usage: tx <txid>")
	}
	hash, err := types.HexToHash(args[0])
	if err != nil {
		fatal("invalid txid %q: %v", args[0], err)
	}
	var result interface{}
	if err := client.Call("tx.getById", rpc.HashParam{Hash: hash}, &result); err != nil {
		fatal("%v", err)
	}
	printJSON(result)
}

func cmdMempool(client *rpcclient.Client) {
	var result interface{}
	if err := client.Call("mempool.getContent", nil, &result); err != nil {
		fatal("%v", err)
	}
	printJSON(result)
}

func cmdBalance(client *rpcclient.Client, args []string) {
	if len(args) < 1 {
		fatal("usage: balance <address>")
	}
	addr, err := types.ParseAddress(args[0])
	if err != nil {
		fatal("invalid address %q: %v", args[0], err)
	}
	var result rpc.BalanceResult
	if err := client.Call("wallet.getBalance", rpc.AddressParam{Address: addr}, &result); err != nil {
		fatal("%v", err)
	}
	fmt.Println(result.Balance)
}

func cmdSend(client *rpcclient.Client, args []string) {
	if len(args) < 2 {
		fatal("usage: send <to> <amount>")
	}
	amount, err := decimal.NewFromString(args[1])
	if err != nil {
		fatal("invalid amount %q: %v", args[1], err)
	}
	var result rpc.MineResult
	if err := client.Call("mining.mineWithTransaction", rpc.MineWithTransactionParam{
		Receiver: args[0],
		Amount:   amount,
	}, &result); err != nil {
		fatal("%v", err)
	}
	if !result.Mined {
		fmt.Println("lost the mining race, try again")
		return
	}
	fmt.Printf("mined block %d: %s\n", result.Block.Index, result.Block.Hash())
}

func cmdMining(client *rpcclient.Client, args []string) {
	if len(args) < 1 {
		fatal("usage: mining start|stop")
	}
	var result rpc.MiningStatusResult
	switch args[0] {
	case "start":
		if err := client.Call("mining.start", nil, &result); err != nil {
			fatal("%v", err)
		}
	case "stop":
		if err := client.Call("mining.stop", nil, &result); err != nil {
			fatal("%v", err)
		}
	default:
		fatal("usage: mining start|stop")
	}
	fmt.Printf("running: %v\n", result.Running)
}

// ── wallet subcommands ──────────────────────────────────────────────────

func cmdWallet(client *rpcclient.Client, args []string, ksDir string) {
	if len(args) < 1 {
		fatal("usage: wallet create|import|list|address|new-address|balance|export-key ...")
	}
	switch args[0] {
	case "create":
		cmdWalletCreate(args[1:], ksDir)
	case "import":
		cmdWalletImport(args[1:], ksDir)
	case "list":
		cmdWalletList(ksDir)
	case "address":
		cmdWalletAddress(args[1:], ksDir)
	case "new-address":
		cmdWalletNewAddress(args[1:], ksDir)
	case "balance":
		cmdWalletBalance(client, args[1:], ksDir)
	case "export-key":
		cmdWalletExportKey(args[1:], ksDir)
	default:
		fatal("unknown wallet subcommand %q", args[0])
	}
}

func cmdWalletCreate(args []string, ksDir string) {
	if len(args) < 1 {
		fatal("usage: wallet create <name>")
	}
	name := args[0]

	mnemonic, err := wallet.GenerateMnemonic()
	if err != nil {
		fatal("generate mnemonic: %v", err)
	}
	seed, err := wallet.SeedFromMnemonic(mnemonic, "")
	if err != nil {
		fatal("derive seed: %v", err)
	}

	password, err := readPassword("New wallet password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	confirm, err := readPassword("Confirm password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	if string(password) != string(confirm) {
		fatal("passwords do not match")
	}

	ks, err := wallet.NewKeystore(ksDir)
	if err != nil {
		fatal("open keystore: %v", err)
	}
	if err := ks.Create(name, seed, password, wallet.DefaultParams()); err != nil {
		fatal("create wallet: %v", err)
	}
	if err := recordAddress(ks, name, seed, wallet.ChangeExternal, 0); err != nil {
		fatal("derive address: %v", err)
	}

	fmt.Printf("Created wallet %q.\n\n", name)
	fmt.Println("IMPORTANT: write down this recovery phrase. It is the only way to")
	fmt.Println("recover funds if the keystore file is lost.")
	fmt.Println()
	fmt.Println(mnemonic)
}

func cmdWalletImport(args []string, ksDir string) {
	if len(args) < 1 {
		fatal("usage: wallet import <name>")
	}
	name := args[0]

	fmt.Fprint(os.Stderr, "Recovery phrase: ")
	var mnemonic string
	if _, err := fmt.Scan(&mnemonic); err != nil {
		fatal("read mnemonic: %v", err)
	}
	// fmt.Scan only captures one whitespace-delimited token; read the
	// remaining words of the 24-word phrase.
	for i := 0; i < 23; i++ {
		var word string
		if _, err := fmt.Scan(&word); err != nil {
			break
		}
		mnemonic += " " + word
	}
	if !wallet.ValidateMnemonic(mnemonic) {
		fatal("invalid recovery phrase")
	}

	seed, err := wallet.SeedFromMnemonic(mnemonic, "")
	if err != nil {
		fatal("derive seed: %v", err)
	}

	password, err := readPassword("New wallet password: ")
	if err != nil {
		fatal("read password: %v", err)
	}

	ks, err := wallet.NewKeystore(ksDir)
	if err != nil {
		fatal("open keystore: %v", err)
	}
	if err := ks.Create(name, seed, password, wallet.DefaultParams()); err != nil {
		fatal("create wallet: %v", err)
	}
	if err := recordAddress(ks, name, seed, wallet.ChangeExternal, 0); err != nil {
		fatal("derive address: %v", err)
	}

	fmt.Printf("Imported wallet %q.\n", name)
}

func cmdWalletList(ksDir string) {
	ks, err := wallet.NewKeystore(ksDir)
	if err != nil {
		fatal("open keystore: %v", err)
	}
	names, err := ks.List()
	if err != nil {
		fatal("list wallets: %v", err)
	}
	if len(names) == 0 {
		fmt.Println("no wallets")
		return
	}
	for _, n := range names {
		fmt.Println(n)
	}
}

func cmdWalletAddress(args []string, ksDir string) {
	if len(args) < 1 {
		fatal("usage: wallet address <name>")
	}
	ks, err := wallet.NewKeystore(ksDir)
	if err != nil {
		fatal("open keystore: %v", err)
	}
	accounts, err := ks.ListAccounts(args[0])
	if err != nil {
		fatal("list accounts: %v", err)
	}
	if len(accounts) == 0 {
		fatal("wallet %q has no derived addresses", args[0])
	}
	fmt.Println(accounts[0].Address)
}

func cmdWalletNewAddress(args []string, ksDir string) {
	if len(args) < 1 {
		fatal("usage: wallet new-address <name>")
	}
	name := args[0]

	password, err := readPassword("Wallet password: ")
	if err != nil {
		fatal("read password: %v", err)
	}

	ks, err := wallet.NewKeystore(ksDir)
	if err != nil {
		fatal("open keystore: %v", err)
	}
	seed, err := ks.Load(name, password)
	if err != nil {
		fatal("unlock wallet: %v", err)
	}
	accounts, err := ks.ListAccounts(name)
	if err != nil {
		fatal("list accounts: %v", err)
	}
	nextIndex := uint32(len(accounts))

	if err := recordAddress(ks, name, seed, wallet.ChangeExternal, nextIndex); err != nil {
		fatal("derive address: %v", err)
	}
	accounts, err = ks.ListAccounts(name)
	if err != nil {
		fatal("list accounts: %v", err)
	}
	fmt.Println(accounts[len(accounts)-1].Address)
}

func cmdWalletBalance(client *rpcclient.Client, args []string, ksDir string) {
	if len(args) < 1 {
		fatal("usage: wallet balance <name>")
	}
	ks, err := wallet.NewKeystore(ksDir)
	if err != nil {
		fatal("open keystore: %v", err)
	}
	accounts, err := ks.ListAccounts(args[0])
	if err != nil {
		fatal("list accounts: %v", err)
	}
	if len(accounts) == 0 {
		fatal("wallet %q has no derived addresses", args[0])
	}

	addr, err := types.ParseAddress(accounts[0].Address)
	if err != nil {
		fatal("stored address is invalid: %v", err)
	}
	var result rpc.BalanceResult
	if err := client.Call("wallet.getBalance", rpc.AddressParam{Address: addr}, &result); err != nil {
		fatal("%v", err)
	}
	fmt.Println(result.Balance)
}

func cmdWalletExportKey(args []string, ksDir string) {
	if len(args) < 1 {
		fatal("usage: wallet export-key <name>")
	}
	name := args[0]

	password, err := readPassword("Wallet password: ")
	if err != nil {
		fatal("read password: %v", err)
	}

	ks, err := wallet.NewKeystore(ksDir)
	if err != nil {
		fatal("open keystore: %v", err)
	}
	seed, err := ks.Load(name, password)
	if err != nil {
		fatal("unlock wallet: %v", err)
	}
	master, err := wallet.NewMasterKey(seed)
	if err != nil {
		fatal("derive master key: %v", err)
	}
	hd, err := master.DeriveAddress(0, wallet.ChangeExternal, 0)
	if err != nil {
		fatal("derive address: %v", err)
	}
	priv := hd.PrivateKeyBytes()
	if priv == nil {
		fatal("wallet has no private key material")
	}

	fmt.Println("WARNING: anyone with this key can spend the wallet's funds.")
	fmt.Println(hex.EncodeToString(priv))
}

// recordAddress derives the HD key at m/44'/8888'/0'/change/index, records
// it in the keystore's account list, and returns any error from either step.
func recordAddress(ks *wallet.Keystore, walletName string, seed []byte, change, index uint32) error {
	master, err := wallet.NewMasterKey(seed)
	if err != nil {
		return err
	}
	hd, err := master.DeriveAddress(0, change, index)
	if err != nil {
		return err
	}
	return ks.AddAccount(walletName, wallet.AccountEntry{
		Index:   index,
		Change:  change,
		Address: hd.Address().String(),
	})
}

// ── helpers ─────────────────────────────────────────────────────────────

func parseUint(s string) (uint64, bool) {
	var n uint64
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + uint64(r-'0')
	}
	return n, len(s) > 0
}

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fatal("marshal result: %v", err)
	}
	fmt.Println(string(data))
}

func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, err
	}
	return password, nil
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
