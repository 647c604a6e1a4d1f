package block

import (
	"context"
	"errors"
	"fmt"

	"github.com/kgxledger/kgxledger/config"
	"github.com/kgxledger/kgxledger/pkg/tx"
	"github.com/kgxledger/kgxledger/pkg/types"
)

// Validation errors.
var (
	ErrTooManyTxs      = errors.New("too many transactions in block")
	ErrBlockTooLarge   = errors.New("block too large")
	ErrBadIndex        = errors.New("candidate index is not predecessor index + 1")
	ErrBadPreviousHash = errors.New("candidate previous hash does not match predecessor hash")
	ErrTimestampTooOld = errors.New("candidate timestamp is too far behind predecessor")
	ErrTimestampTooNew = errors.New("candidate timestamp is too far ahead of wall clock")
	ErrInvalidHash     = errors.New("candidate hash does not match its content or fails difficulty")
)

// timestampToleranceSeconds bounds how far a successor's timestamp may drift
// from its predecessor and from the verifier's own clock, in either
// direction. Both comparisons are strict less-than.
const timestampToleranceSeconds = 60

// Genesis returns the fixed genesis block. Its hash is derived like any
// other block's; it is exempt from proof-of-work only because its own
// declared difficulty (0) is trivially satisfied by any hash.
func Genesis() *Block {
	return &Block{
		Index:        0,
		PreviousHash: types.Hash{},
		Timestamp:    config.GenesisTimestamp,
		Transactions: nil,
		Difficulty:   0,
		Nonce:        0,
	}
}

// HasValidStructure checks field-level invariants that do not depend on
// chain position: transaction count/size limits and per-transaction
// structural validity.
func (b *Block) HasValidStructure() error {
	if len(b.Transactions) > config.MaxBlockTxs {
		return fmt.Errorf("%w: %d txs, max %d", ErrTooManyTxs, len(b.Transactions), config.MaxBlockTxs)
	}

	size := len(b.CanonicalBytes())
	if size > config.MaxBlockSize {
		return fmt.Errorf("%w: %d bytes, max %d", ErrBlockTooLarge, size, config.MaxBlockSize)
	}

	for i, t := range b.Transactions {
		if t == nil {
			return fmt.Errorf("tx %d is nil", i)
		}
		if err := t.ValidateStructure(); err != nil {
			return fmt.Errorf("tx %d: %w", i, err)
		}
	}
	return nil
}

// HasValidHash recomputes the hash from content and checks that it
// satisfies the block's own declared difficulty.
func (b *Block) HasValidHash() bool {
	return matchesDifficulty(b.Hash(), b.Difficulty)
}

// matchesDifficulty reports whether the high `difficulty` bits of hash,
// read most-significant-bit-first across the 32 bytes, are all zero.
func matchesDifficulty(hash types.Hash, difficulty uint64) bool {
	if difficulty == 0 {
		return true
	}
	if difficulty > uint64(types.HashSize*8) {
		return false
	}
	fullBytes := difficulty / 8
	remBits := difficulty % 8

	for i := uint64(0); i < fullBytes; i++ {
		if hash[i] != 0 {
			return false
		}
	}
	if remBits == 0 {
		return true
	}
	mask := byte(0xFF << (8 - remBits))
	return hash[fullBytes]&mask == 0
}

// IsValidNext checks whether candidate may directly follow b in the chain,
// per the successor rule: structure, linkage, timestamp tolerance, and
// proof-of-work. now is the verifier's wall clock, in Unix seconds.
func (b *Block) IsValidNext(candidate *Block, now uint64) error {
	if err := candidate.HasValidStructure(); err != nil {
		return err
	}
	if candidate.Index != b.Index+1 {
		return fmt.Errorf("%w: got %d, want %d", ErrBadIndex, candidate.Index, b.Index+1)
	}
	if candidate.PreviousHash != b.Hash() {
		return fmt.Errorf("%w: got %s, want %s", ErrBadPreviousHash, candidate.PreviousHash, b.Hash())
	}
	if !(b.Timestamp < candidate.Timestamp+timestampToleranceSeconds) {
		return fmt.Errorf("%w: predecessor=%d candidate=%d", ErrTimestampTooOld, b.Timestamp, candidate.Timestamp)
	}
	if !(candidate.Timestamp < now+timestampToleranceSeconds) {
		return fmt.Errorf("%w: candidate=%d now=%d", ErrTimestampTooNew, candidate.Timestamp, now)
	}
	if !candidate.HasValidHash() {
		return ErrInvalidHash
	}
	return nil
}

// Mine searches for a nonce, starting from 0, for which the resulting
// block's hash satisfies difficulty. It is cancellable via ctx; a
// cancellation returns ctx.Err().
func Mine(ctx context.Context, index uint64, prevHash types.Hash, timestamp uint64, txs []*tx.Transaction, difficulty uint64) (*Block, error) {
	b := New(index, prevHash, timestamp, txs, difficulty)
	for nonce := uint64(0); ; nonce++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		b.Nonce = nonce
		if matchesDifficulty(b.Hash(), difficulty) {
			return b, nil
		}
	}
}
