package utxo

import (
	"errors"
	"fmt"

	"github.com/kgxledger/kgxledger/pkg/tx"
	"github.com/kgxledger/kgxledger/pkg/types"
)

// Ledger rejection reasons. Callers treat any non-nil error from
// ProcessTransactions as a rejection of the entire candidate block.
var (
	ErrNotCoinbaseFirst   = errors.New("first transaction of a non-genesis block must be coinbase")
	ErrUnexpectedCoinbase = errors.New("only the first transaction of a block may be coinbase")
	ErrWrongCoinbaseIndex = errors.New("coinbase input does not reference the block's own index")
)

// ProcessTransactions is the UTXO ledger's pure fold: given a block's
// transactions and the unspent-output set before it, it returns the
// unspent-output set after applying them, or an error if any transaction
// violates the ledger's rules. It never mutates prior.
//
// blockData is expected to carry a coinbase transaction at position 0 for
// any block with transactions; genesis (no transactions) is exempt.
func ProcessTransactions(blockData []*tx.Transaction, prior *Snapshot, blockIndex uint64) (*Snapshot, error) {
	next := prior.Clone()

	if len(blockData) == 0 {
		return next, nil
	}

	if !blockData[0].IsCoinbase() {
		return nil, ErrNotCoinbaseFirst
	}
	if err := applyCoinbase(blockData[0], next, blockIndex); err != nil {
		return nil, err
	}

	for i, t := range blockData[1:] {
		if t.IsCoinbase() {
			return nil, fmt.Errorf("tx %d: %w", i+1, ErrUnexpectedCoinbase)
		}
		if err := applySpend(t, next); err != nil {
			return nil, fmt.Errorf("tx %d: %w", i+1, err)
		}
	}

	return next, nil
}

func applyCoinbase(t *tx.Transaction, snap *Snapshot, blockIndex uint64) error {
	in := t.Inputs[0]
	if uint64(in.PrevOut.Index) != blockIndex {
		return fmt.Errorf("%w: got %d, want %d", ErrWrongCoinbaseIndex, in.PrevOut.Index, blockIndex)
	}
	id := t.ID()
	for i, out := range t.Outputs {
		op := types.Outpoint{TxID: id, Index: uint32(i)}
		snap.Put(&Entry{Outpoint: op, Address: out.Address, Amount: out.Amount})
	}
	return nil
}

func applySpend(t *tx.Transaction, snap *Snapshot) error {
	// ValidateWithUTXOs looks up each input in snap, which already reflects
	// every output consumed earlier in this same fold — a second spend of
	// an outpoint already removed surfaces as ErrInputNotFound, which is
	// exactly how this ledger prevents double-spends within a block.
	if _, err := t.ValidateWithUTXOs(snap); err != nil {
		return err
	}

	for _, in := range t.Inputs {
		snap.Delete(in.PrevOut)
	}
	id := t.ID()
	for i, out := range t.Outputs {
		op := types.Outpoint{TxID: id, Index: uint32(i)}
		snap.Put(&Entry{Outpoint: op, Address: out.Address, Amount: out.Amount})
	}
	return nil
}
