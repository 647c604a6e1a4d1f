// Package chain implements the Blockchain aggregate: the single-owner
// state machine that appends, validates, and replaces the active chain of
// blocks and the UTXO set derived from it.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/kgxledger/kgxledger/internal/consensus"
	"github.com/kgxledger/kgxledger/internal/log"
	"github.com/kgxledger/kgxledger/internal/storage"
	"github.com/kgxledger/kgxledger/internal/utxo"
	"github.com/kgxledger/kgxledger/pkg/block"
	"github.com/kgxledger/kgxledger/pkg/tx"
	"github.com/kgxledger/kgxledger/pkg/types"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Chain is the Blockchain aggregate. All mutation goes through its public
// operations; callers that invoke them from more than one goroutine must
// serialize through the mutex the aggregate already holds internally, or
// simply call Chain from a single owner goroutine, per the concurrency
// discipline this package enforces.
type Chain struct {
	mu sync.Mutex

	blocks     []*block.Block
	blockIndex map[types.Hash]int // block hash -> position in blocks
	txIndex    map[types.Hash]int // tx id -> position in blocks

	utxos *utxo.Snapshot
	store *BlockStore

	pool        Pool
	broadcaster Broadcaster

	log zerolog.Logger
}

// New creates a Chain backed by db, recovering from a prior run's persisted
// tip if one exists, or initializing fresh at the fixed genesis block.
func New(db storage.DB, pool Pool) (*Chain, error) {
	if db == nil {
		return nil, fmt.Errorf("chain: storage db is nil")
	}
	c := &Chain{
		store:      NewBlockStore(db),
		blockIndex: make(map[types.Hash]int),
		txIndex:    make(map[types.Hash]int),
		pool:       pool,
		log:        log.WithComponent("chain"),
	}

	if _, tipIndex, ok := c.store.GetTip(); ok {
		if err := c.loadFromStore(tipIndex); err != nil {
			return nil, fmt.Errorf("recover chain from storage: %w", err)
		}
		return c, nil
	}
	if err := c.initGenesis(); err != nil {
		return nil, fmt.Errorf("initialize genesis: %w", err)
	}
	return c, nil
}

func (c *Chain) initGenesis() error {
	gen := block.Genesis()
	snap, err := utxo.ProcessTransactions(gen.Transactions, utxo.NewSnapshot(), gen.Index)
	if err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}
	c.appendLocked(gen, snap)
	if err := c.store.PutBlock(gen); err != nil {
		return fmt.Errorf("persist genesis: %w", err)
	}
	return c.store.SetTip(gen.Hash(), gen.Index)
}

func (c *Chain) loadFromStore(tipIndex uint64) error {
	snap := utxo.NewSnapshot()
	for i := uint64(0); i <= tipIndex; i++ {
		blk, err := c.store.GetBlockByIndex(i)
		if err != nil {
			return fmt.Errorf("load block %d: %w", i, err)
		}
		next, err := utxo.ProcessTransactions(blk.Transactions, snap, blk.Index)
		if err != nil {
			return fmt.Errorf("replay block %d: %w", i, err)
		}
		snap = next
		c.appendLocked(blk, snap)
	}
	return nil
}

// appendLocked appends blk to the in-memory vector and its indices, and
// adopts snap as the current UTXO set. Caller holds c.mu, or is still
// inside single-threaded construction.
func (c *Chain) appendLocked(blk *block.Block, snap *utxo.Snapshot) {
	c.blocks = append(c.blocks, blk)
	pos := len(c.blocks) - 1
	c.blockIndex[blk.Hash()] = pos
	for _, t := range blk.Transactions {
		c.txIndex[t.ID()] = pos
	}
	c.utxos = snap
}

// SetBroadcaster attaches the P2P application late, after both the chain
// and the broadcaster have been constructed — the broadcaster typically
// needs a live Chain to hand inbound gossip to, so neither can depend on
// the other at construction time.
func (c *Chain) SetBroadcaster(b Broadcaster) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.broadcaster = b
}

// Tip returns the current chain tip.
func (c *Chain) Tip() *block.Block {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blocks[len(c.blocks)-1]
}

// Height returns the tip's index.
func (c *Chain) Height() uint64 {
	return c.Tip().Index
}

// Difficulty returns the difficulty the next block must satisfy.
func (c *Chain) Difficulty() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return consensus.NextDifficulty(c.blocks)
}

// Balance sums every unspent output owned by addr in the current UTXO set.
func (c *Chain) Balance(addr types.Address) decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.utxos.Balance(addr)
}

// UTXOs returns the current UTXO snapshot, for read-only use by callers
// such as a wallet computing a balance or selecting coins. The returned
// snapshot is immutable by convention; callers must not mutate it.
func (c *Chain) UTXOs() *utxo.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.utxos
}

// Blocks returns a copy of the full chain, oldest first, for sync and
// inspection purposes.
func (c *Chain) Blocks() []*block.Block {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*block.Block, len(c.blocks))
	copy(out, c.blocks)
	return out
}

// AddBlock validates candidate against the current tip and, if it
// extends the chain successfully, appends it: either every observable
// effect (tip advance, UTXO swap, pool update, persistence) happens, or
// none of it does.
func (c *Chain) AddBlock(candidate *block.Block) (bool, error) {
	if candidate == nil {
		return false, fmt.Errorf("%w: candidate block is nil", ErrBadRequest)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tip := c.blocks[len(c.blocks)-1]
	now := uint64(time.Now().UTC().Unix())
	if err := tip.IsValidNext(candidate, now); err != nil {
		c.log.Debug().Err(err).Uint64("index", candidate.Index).Msg("block rejected by successor check")
		return false, nil
	}

	next, err := utxo.ProcessTransactions(candidate.Transactions, c.utxos, candidate.Index)
	if err != nil {
		c.log.Debug().Err(err).Uint64("index", candidate.Index).Msg("block rejected by ledger")
		return false, nil
	}

	if err := c.store.PutBlock(candidate); err != nil {
		return false, fmt.Errorf("persist block: %w", err)
	}
	if err := c.store.SetTip(candidate.Hash(), candidate.Index); err != nil {
		return false, fmt.Errorf("persist tip: %w", err)
	}
	c.appendLocked(candidate, next)

	if c.pool != nil {
		c.pool.Update(c.utxos)
		c.pool.RemoveConfirmed(candidate.Transactions)
	}

	return true, nil
}

// MineNextRaw seals a block over data on top of the current tip and
// submits it via AddBlock. Returns nil with no error if a concurrent
// append won the race — the caller may retry.
func (c *Chain) MineNextRaw(ctx context.Context, data []*tx.Transaction) (*block.Block, error) {
	c.mu.Lock()
	tip := c.blocks[len(c.blocks)-1]
	index := tip.Index + 1
	prevHash := tip.Hash()
	difficulty := consensus.NextDifficulty(c.blocks)
	c.mu.Unlock()

	timestamp := uint64(time.Now().UTC().Unix())
	mined, err := block.Mine(ctx, index, prevHash, timestamp, data, difficulty)
	if err != nil {
		return nil, err
	}

	accepted, err := c.AddBlock(mined)
	if err != nil {
		return nil, err
	}
	if !accepted {
		return nil, nil
	}

	if c.broadcaster != nil {
		go c.broadcaster.BroadcastLatest(mined)
	}
	return mined, nil
}

// MineNext mines a block paying the coinbase to wallet, including every
// transaction currently pending in the pool.
func (c *Chain) MineNext(ctx context.Context, wallet Wallet) (*block.Block, error) {
	if wallet == nil {
		return nil, fmt.Errorf("%w: wallet is nil", ErrBadRequest)
	}
	c.mu.Lock()
	nextIndex := c.blocks[len(c.blocks)-1].Index + 1
	c.mu.Unlock()

	coinbase := tx.Coinbase(wallet.PublicKey(), nextIndex)
	data := []*tx.Transaction{coinbase}
	if c.pool != nil {
		data = append(data, c.pool.Transactions()...)
	}
	return c.MineNextRaw(ctx, data)
}

// MineWithTransaction mines a block containing exactly a coinbase and one
// wallet-signed transfer to receiverAddress, ignoring any pending pool
// transactions.
func (c *Chain) MineWithTransaction(ctx context.Context, wallet Wallet, receiverAddress string, amount decimal.Decimal) (*block.Block, error) {
	if wallet == nil {
		return nil, fmt.Errorf("%w: wallet is nil", ErrBadRequest)
	}
	receiver, err := types.ParseAddress(receiverAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid receiver address: %v", ErrBadRequest, err)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive, got %s", ErrBadRequest, amount)
	}

	c.mu.Lock()
	nextIndex := c.blocks[len(c.blocks)-1].Index + 1
	snap := c.utxos
	c.mu.Unlock()

	transfer, err := wallet.CreateTransaction(receiver, amount, snap, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}

	coinbase := tx.Coinbase(wallet.PublicKey(), nextIndex)
	return c.MineNextRaw(ctx, []*tx.Transaction{coinbase, transfer})
}

// SendTransaction builds a wallet-signed transfer and submits it to the
// pool without mining. It does not broadcast the new tip since there is
// none — it broadcasts the updated pool contents instead.
func (c *Chain) SendTransaction(wallet Wallet, receiverAddress string, amount decimal.Decimal) (*tx.Transaction, error) {
	if wallet == nil {
		return nil, fmt.Errorf("%w: wallet is nil", ErrBadRequest)
	}
	if c.pool == nil {
		return nil, fmt.Errorf("%w: no transaction pool configured", ErrBadRequest)
	}
	receiver, err := types.ParseAddress(receiverAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid receiver address: %v", ErrBadRequest, err)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive, got %s", ErrBadRequest, amount)
	}

	c.mu.Lock()
	snap := c.utxos
	pending := c.pool.Transactions()
	c.mu.Unlock()

	transfer, err := wallet.CreateTransaction(receiver, amount, snap, pending)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}

	if err := c.pool.AddTransaction(transfer, snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}

	if c.broadcaster != nil {
		go c.broadcaster.BroadcastTransactionPool(c.pool.Transactions())
	}
	return transfer, nil
}

// HandleReceivedTransaction forwards a transaction received from the P2P
// layer to the pool, reporting its accept/reject verdict without
// rebroadcasting (the sender already knows its peers have it).
func (c *Chain) HandleReceivedTransaction(t *tx.Transaction) error {
	if c.pool == nil {
		return fmt.Errorf("%w: no transaction pool configured", ErrBadRequest)
	}
	c.mu.Lock()
	snap := c.utxos
	c.mu.Unlock()
	if err := c.pool.AddTransaction(t, snap); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return nil
}

// GetBlockWithHash looks up a block by hash.
func (c *Chain) GetBlockWithHash(hash types.Hash) (*block.Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pos, ok := c.blockIndex[hash]
	if !ok {
		return nil, fmt.Errorf("%w: block %s", ErrNotFound, hash)
	}
	return c.blocks[pos], nil
}

// GetBlockWithIndex looks up a block by its index.
func (c *Chain) GetBlockWithIndex(index uint64) (*block.Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if index >= uint64(len(c.blocks)) {
		return nil, fmt.Errorf("%w: block index %d", ErrNotFound, index)
	}
	return c.blocks[index], nil
}

// GetTransactionWithID looks up a confirmed transaction by id.
func (c *Chain) GetTransactionWithID(id types.Hash) (*tx.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pos, ok := c.txIndex[id]
	if !ok {
		return nil, fmt.Errorf("%w: transaction %s", ErrNotFound, id)
	}
	for _, t := range c.blocks[pos].Transactions {
		if t.ID() == id {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: transaction %s (index corrupt)", ErrNotFound, id)
}

// accumulatedDifficulty computes Σ 2^difficultyᵢ over a chain — the
// chain-selection metric.
func accumulatedDifficulty(blocks []*block.Block) *big.Int {
	total := big.NewInt(0)
	pow := big.NewInt(2)
	for _, b := range blocks {
		total.Add(total, new(big.Int).Exp(pow, big.NewInt(int64(b.Difficulty)), nil))
	}
	return total
}

// Replace validates newBlocks as a complete candidate chain and, if its
// accumulated difficulty strictly exceeds the current chain's, swaps it in
// atomically along with the UTXO set it produces.
func (c *Chain) Replace(newBlocks []*block.Block) (bool, error) {
	if len(newBlocks) == 0 {
		return false, fmt.Errorf("%w: candidate chain is empty", ErrBadRequest)
	}

	gen := block.Genesis()
	if !newBlocks[0].Equal(gen) {
		c.log.Debug().Msg("candidate chain rejected: first block is not genesis")
		return false, nil
	}

	now := uint64(time.Now().UTC().Unix())
	snap, err := utxo.ProcessTransactions(newBlocks[0].Transactions, utxo.NewSnapshot(), newBlocks[0].Index)
	if err != nil {
		c.log.Debug().Err(err).Msg("candidate chain rejected: invalid genesis ledger state")
		return false, nil
	}
	for i := 1; i < len(newBlocks); i++ {
		if err := newBlocks[i-1].IsValidNext(newBlocks[i], now); err != nil {
			c.log.Debug().Err(err).Int("at", i).Msg("candidate chain rejected by successor check")
			return false, nil
		}
		next, err := utxo.ProcessTransactions(newBlocks[i].Transactions, snap, newBlocks[i].Index)
		if err != nil {
			c.log.Debug().Err(err).Int("at", i).Msg("candidate chain rejected by ledger")
			return false, nil
		}
		snap = next
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	current := accumulatedDifficulty(c.blocks)
	candidate := accumulatedDifficulty(newBlocks)
	if candidate.Cmp(current) <= 0 {
		return false, nil
	}

	blockIndex := make(map[types.Hash]int, len(newBlocks))
	txIndex := make(map[types.Hash]int)
	for i, b := range newBlocks {
		blockIndex[b.Hash()] = i
		for _, t := range b.Transactions {
			txIndex[t.ID()] = i
		}
		if err := c.store.PutBlock(b); err != nil {
			return false, fmt.Errorf("persist replacement block %d: %w", i, err)
		}
	}
	tip := newBlocks[len(newBlocks)-1]
	if err := c.store.SetTip(tip.Hash(), tip.Index); err != nil {
		return false, fmt.Errorf("persist replacement tip: %w", err)
	}

	c.blocks = newBlocks
	c.blockIndex = blockIndex
	c.txIndex = txIndex
	c.utxos = snap

	if c.pool != nil {
		c.pool.Update(c.utxos)
	}
	if c.broadcaster != nil {
		go c.broadcaster.BroadcastLatest(tip)
	}

	return true, nil
}
