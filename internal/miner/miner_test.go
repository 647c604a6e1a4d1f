package miner

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kgxledger/kgxledger/internal/chain"
	"github.com/kgxledger/kgxledger/internal/mempool"
	"github.com/kgxledger/kgxledger/internal/storage"
	"github.com/kgxledger/kgxledger/internal/utxo"
	"github.com/kgxledger/kgxledger/pkg/crypto"
	"github.com/kgxledger/kgxledger/pkg/tx"
	"github.com/kgxledger/kgxledger/pkg/types"
	"github.com/shopspring/decimal"
)

// stubWallet mirrors internal/chain's test wallet: it signs transfers from
// a single funded key using plain UTXO coin selection.
type stubWallet struct {
	key  *crypto.PrivateKey
	addr types.Address
}

func newStubWallet(t *testing.T) *stubWallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return &stubWallet{key: key, addr: crypto.AddressFromPubKey(key.PublicKey())}
}

func (w *stubWallet) PublicKey() types.Address { return w.addr }

func (w *stubWallet) CreateTransaction(receiver types.Address, amount decimal.Decimal, utxos tx.UTXOProvider, pending []*tx.Transaction) (*tx.Transaction, error) {
	lister, ok := utxos.(*utxo.Snapshot)
	if !ok {
		return nil, errors.New("stubWallet requires a *utxo.Snapshot for coin selection")
	}
	for _, e := range lister.ByAddress(w.addr) {
		if e.Amount.GreaterThanOrEqual(amount) {
			b := tx.NewBuilder().AddInput(e.Outpoint).AddOutput(receiver, amount)
			if change := e.Amount.Sub(amount); change.IsPositive() {
				b.AddOutput(w.addr, change)
			}
			if err := b.Sign(w.key); err != nil {
				return nil, err
			}
			return b.Build(), nil
		}
	}
	return nil, fmt.Errorf("insufficient funds for %s", amount)
}

func newTestChain(t *testing.T) *chain.Chain {
	t.Helper()
	c, err := chain.New(storage.NewMemory(), mempool.New(100))
	if err != nil {
		t.Fatalf("chain.New failed: %v", err)
	}
	return c
}

func TestWorker_StartMinesBlocksUntilStopped(t *testing.T) {
	c := newTestChain(t)
	w := newStubWallet(t)

	worker := New(c, w)
	if worker.Running() {
		t.Fatal("worker should not be running before Start")
	}

	worker.Start()
	if !worker.Running() {
		t.Error("worker should report running after Start")
	}

	deadline := time.Now().Add(5 * time.Second)
	for c.Height() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	worker.Stop()
	if worker.Running() {
		t.Error("worker should report stopped after Stop")
	}
	if c.Height() == 0 {
		t.Fatal("worker never mined a block before the deadline")
	}
	if !c.Balance(w.addr).GreaterThan(decimal.Zero) {
		t.Error("wallet should have been paid a coinbase by the time a block was mined")
	}
}

func TestWorker_StartIsIdempotent(t *testing.T) {
	c := newTestChain(t)
	w := newStubWallet(t)
	worker := New(c, w)

	worker.Start()
	worker.Start() // second call must be a no-op, not spawn a second goroutine
	if !worker.Running() {
		t.Error("worker should still be running")
	}
	worker.Stop()
}

func TestWorker_StopWithoutStartIsNoop(t *testing.T) {
	c := newTestChain(t)
	w := newStubWallet(t)
	worker := New(c, w)
	worker.Stop() // must not panic or block
	if worker.Running() {
		t.Error("worker was never started")
	}
}

func TestWorker_StopPreemptsInFlightMining(t *testing.T) {
	c := newTestChain(t)
	w := newStubWallet(t)
	worker := New(c, w)

	worker.Start()
	// Stop should return promptly even though mining runs an unbounded
	// proof-of-work search — cancellation must reach block.Mine.
	done := make(chan struct{})
	go func() {
		worker.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return promptly; mining was not cancelled")
	}
}

func TestWorker_RestartsAfterStop(t *testing.T) {
	c := newTestChain(t)
	w := newStubWallet(t)
	worker := New(c, w)

	worker.Start()
	waitForHeight(t, c, 1)
	worker.Stop()

	heightAfterFirstStop := c.Height()

	worker.Start()
	waitForHeight(t, c, heightAfterFirstStop+1)
	worker.Stop()
}

func waitForHeight(t *testing.T, c *chain.Chain, target uint64) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for c.Height() < target {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for height %d, stuck at %d", target, c.Height())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestWorker_ContinuesMiningAcrossMultipleBlocks(t *testing.T) {
	// Exercises the real chain/wallet combination since MineNext's error
	// paths are already covered by internal/chain's own tests; here we
	// only confirm the worker loop keeps mining past its first block
	// until the chain reaches height 2.
	c := newTestChain(t)
	w := newStubWallet(t)
	worker := New(c, w)

	worker.Start()
	waitForHeight(t, c, 2)
	worker.Stop()
}
