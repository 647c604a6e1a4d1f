// Package mempool manages pending transactions waiting for block inclusion.
package mempool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/kgxledger/kgxledger/pkg/tx"
	"github.com/kgxledger/kgxledger/pkg/types"
)

// Mempool errors.
var (
	ErrAlreadyExists = errors.New("transaction already in mempool")
	ErrConflict      = errors.New("transaction conflicts with existing mempool entry")
	ErrPoolFull      = errors.New("mempool is full")
	ErrValidation    = errors.New("transaction failed validation")
)

const defaultMaxSize = 5000

// Pool holds unconfirmed transactions pending block inclusion. It tracks
// insertion order so Transactions always returns a stable, deterministic
// list — there is no fee market here, so order of arrival is the only
// ordering the pool imposes.
type Pool struct {
	mu      sync.RWMutex
	order   []types.Hash
	txs     map[types.Hash]*tx.Transaction
	spends  map[types.Outpoint]types.Hash // outpoint -> txHash, for conflict detection
	maxSize int
}

// New creates an empty mempool that will hold at most maxSize transactions
// (a non-positive maxSize falls back to a sane default).
func New(maxSize int) *Pool {
	if maxSize <= 0 {
		maxSize = defaultMaxSize
	}
	return &Pool{
		txs:     make(map[types.Hash]*tx.Transaction),
		spends:  make(map[types.Outpoint]types.Hash),
		maxSize: maxSize,
	}
}

// AddTransaction validates t against utxos and, if accepted, adds it to the
// pool. It rejects duplicates, conflicting spends, and anything that fails
// ValidateWithUTXOs.
func (p *Pool) AddTransaction(t *tx.Transaction, utxos tx.UTXOProvider) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := t.ID()
	if _, exists := p.txs[id]; exists {
		return ErrAlreadyExists
	}
	if len(p.txs) >= p.maxSize {
		return ErrPoolFull
	}
	for _, in := range t.Inputs {
		if conflict, exists := p.spends[in.PrevOut]; exists {
			return fmt.Errorf("%w: input %s already spent by pending tx %s", ErrConflict, in.PrevOut, conflict)
		}
	}
	if _, err := t.ValidateWithUTXOs(utxos); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	p.txs[id] = t
	p.order = append(p.order, id)
	for _, in := range t.Inputs {
		p.spends[in.PrevOut] = id
	}
	return nil
}

// Update re-validates every pending transaction against the current utxos,
// dropping any whose inputs are no longer unspent — the aggregate calls
// this after every accepted tip change.
func (p *Pool) Update(utxos tx.UTXOProvider) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Walk a copy of p.order and rebuild p.order from the kept ids, so the
	// dropped entries never disturb the range being walked.
	order := append([]types.Hash(nil), p.order...)
	var kept []types.Hash
	for _, id := range order {
		t, ok := p.txs[id]
		if !ok {
			continue
		}
		if _, err := t.ValidateWithUTXOs(utxos); err != nil {
			for _, in := range t.Inputs {
				delete(p.spends, in.PrevOut)
			}
			delete(p.txs, id)
			continue
		}
		kept = append(kept, id)
	}
	p.order = kept
}

// Remove drops a transaction from the pool by id.
func (p *Pool) Remove(id types.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeLocked(id)
}

func (p *Pool) removeLocked(id types.Hash) {
	t, exists := p.txs[id]
	if !exists {
		return
	}
	for _, in := range t.Inputs {
		delete(p.spends, in.PrevOut)
	}
	delete(p.txs, id)
	for i, h := range p.order {
		if h == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

// RemoveConfirmed drops every transaction in txs from the pool — used after
// a block containing them is accepted.
func (p *Pool) RemoveConfirmed(txs []*tx.Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range txs {
		p.removeLocked(t.ID())
	}
}

// Has reports whether id is currently pending.
func (p *Pool) Has(id types.Hash) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, exists := p.txs[id]
	return exists
}

// Get retrieves a pending transaction by id, or nil if absent.
func (p *Pool) Get(id types.Hash) *tx.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.txs[id]
}

// Count returns the number of pending transactions.
func (p *Pool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.order)
}

// Transactions returns the pool's contents in insertion order. The returned
// slice is the pool's external, ordered view onto its pending set.
func (p *Pool) Transactions() []*tx.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*tx.Transaction, 0, len(p.order))
	for _, id := range p.order {
		if t, ok := p.txs[id]; ok {
			out = append(out, t)
		}
	}
	return out
}
