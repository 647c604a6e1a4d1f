// Package miner runs continuous block production on its own goroutine,
// driving the Blockchain aggregate's mine_next operation on a loop that a
// caller can start and stop without touching the aggregate directly.
package miner

import (
	"context"
	"sync"

	"github.com/kgxledger/kgxledger/internal/chain"
	"github.com/kgxledger/kgxledger/internal/log"
	"github.com/kgxledger/kgxledger/pkg/block"
	"github.com/rs/zerolog"
)

// Chain is the subset of the Blockchain aggregate the worker drives.
type Chain interface {
	MineNext(ctx context.Context, wallet chain.Wallet) (*block.Block, error)
}

// Worker runs mine_next in a loop on its own goroutine so the caller of
// Start/Stop never blocks on proof-of-work search. Each mining attempt is
// individually cancellable, so a Stop preempts the current attempt without
// leaving partial state — mining is cancellable, but validation and append
// never are. A Replace on the chain does not cancel an attempt in progress:
// that attempt runs to completion, AddBlock rejects its block against the
// new tip, and the loop's next attempt builds on that tip.
type Worker struct {
	chain  Chain
	wallet chain.Wallet
	log    zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a worker that mines for wallet against c.
func New(c Chain, wallet chain.Wallet) *Worker {
	return &Worker{
		chain:  c,
		wallet: wallet,
		log:    log.WithComponent("miner"),
	}
}

// Start begins continuous mining. A second Start call while already
// running is a no-op.
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.run(ctx, w.done)
}

// Stop cancels any in-flight mining attempt and waits for the worker
// goroutine to exit. A Stop call while not running is a no-op.
func (w *Worker) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	done := w.done
	w.cancel = nil
	w.done = nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the worker is currently mining.
func (w *Worker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cancel != nil
}

func (w *Worker) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		blk, err := w.chain.MineNext(ctx, w.wallet)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Error().Err(err).Msg("mining attempt failed")
			continue
		}
		if blk == nil {
			// Lost a race with a concurrently accepted block; retry
			// immediately against the new tip.
			continue
		}
		w.log.Info().Uint64("index", blk.Index).Str("hash", blk.Hash().String()).Msg("mined block")
	}
}
