package utxo

import (
	"github.com/kgxledger/kgxledger/pkg/types"
	"github.com/shopspring/decimal"
)

// Snapshot is an immutable-by-convention, in-memory unspent output set: the
// value every ledger operation actually folds over. Only ProcessTransactions
// produces a new Snapshot from an old one; callers never mutate one in place.
type Snapshot struct {
	entries map[types.Outpoint]*Entry
}

// NewSnapshot returns an empty snapshot, the starting state before any
// block has been applied.
func NewSnapshot() *Snapshot {
	return &Snapshot{entries: make(map[types.Outpoint]*Entry)}
}

// Clone returns a deep-enough copy: a new map sharing no mutable state with
// the original, safe for a caller to apply further transactions against
// without disturbing the snapshot it was cloned from.
func (s *Snapshot) Clone() *Snapshot {
	out := &Snapshot{entries: make(map[types.Outpoint]*Entry, len(s.entries))}
	for k, v := range s.entries {
		cp := *v
		out.entries[k] = &cp
	}
	return out
}

// GetUTXO implements tx.UTXOProvider.
func (s *Snapshot) GetUTXO(outpoint types.Outpoint) (types.Address, decimal.Decimal, bool) {
	e, ok := s.entries[outpoint]
	if !ok {
		return types.Address{}, decimal.Zero, false
	}
	return e.Address, e.Amount, true
}

// Has reports whether an outpoint is currently unspent.
func (s *Snapshot) Has(outpoint types.Outpoint) bool {
	_, ok := s.entries[outpoint]
	return ok
}

// Put adds or overwrites an entry.
func (s *Snapshot) Put(e *Entry) {
	s.entries[e.Outpoint] = e
}

// Delete removes an entry. A no-op if the outpoint is already absent.
func (s *Snapshot) Delete(outpoint types.Outpoint) {
	delete(s.entries, outpoint)
}

// Len returns the number of unspent outputs.
func (s *Snapshot) Len() int {
	return len(s.entries)
}

// ByAddress returns every unspent output currently owned by addr.
func (s *Snapshot) ByAddress(addr types.Address) []*Entry {
	var out []*Entry
	for _, e := range s.entries {
		if e.Address == addr {
			out = append(out, e)
		}
	}
	return out
}

// Balance sums every unspent output owned by addr.
func (s *Snapshot) Balance(addr types.Address) decimal.Decimal {
	total := decimal.Zero
	for _, e := range s.entries {
		if e.Address == addr {
			total = total.Add(e.Amount)
		}
	}
	return total
}

// All returns every entry in the snapshot, in no particular order.
func (s *Snapshot) All() []*Entry {
	out := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	return out
}
