// Package block defines the block type and the structural/hash rules that
// make a block valid on its own, independent of where it sits in a chain.
package block

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/kgxledger/kgxledger/pkg/crypto"
	"github.com/kgxledger/kgxledger/pkg/tx"
	"github.com/kgxledger/kgxledger/pkg/types"
)

// Block is a single link in the chain: an index, a link to its predecessor,
// a set of transactions, and the proof-of-work that binds them together.
type Block struct {
	Index        uint64            `json:"index"`
	PreviousHash types.Hash        `json:"previousHash"` // zero value means "absent" (genesis only).
	Timestamp    uint64            `json:"timestamp"`    // unix seconds.
	Transactions []*tx.Transaction `json:"data"`
	Difficulty   uint64            `json:"difficulty"`
	Nonce        uint64            `json:"nonce"`
}

// New builds a block shell with a computed hash left for the caller to mine.
func New(index uint64, prevHash types.Hash, timestamp uint64, txs []*tx.Transaction, difficulty uint64) *Block {
	return &Block{
		Index:        index,
		PreviousHash: prevHash,
		Timestamp:    timestamp,
		Transactions: txs,
		Difficulty:   difficulty,
	}
}

// HasPreviousHash reports whether this block points at a predecessor.
// Only the genesis block is allowed to answer false.
func (b *Block) HasPreviousHash() bool {
	return !b.PreviousHash.IsZero()
}

// CanonicalBytes returns the big-endian byte layout that is hashed to
// produce the block's identity: index(8) + previousHash(32) + timestamp(8)
// + txID(32)*N + difficulty(8) + nonce(8), with no length or count field.
// This is the one encoding in the whole system that must never change
// shape: any two nodes that disagree on these bytes will disagree on every
// hash above them.
func (b *Block) CanonicalBytes() []byte {
	buf := make([]byte, 0, 56+32*len(b.Transactions))

	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], b.Index)
	buf = append(buf, idx[:]...)

	buf = append(buf, b.PreviousHash[:]...) // zero bytes when absent, by construction.

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], b.Timestamp)
	buf = append(buf, ts[:]...)

	for _, t := range b.Transactions {
		id := t.ID()
		buf = append(buf, id[:]...)
	}

	var diff [8]byte
	binary.BigEndian.PutUint64(diff[:], b.Difficulty)
	buf = append(buf, diff[:]...)

	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], b.Nonce)
	buf = append(buf, nonce[:]...)

	return buf
}

// Hash is the consensus-critical block hash: SHA-256 over CanonicalBytes.
func (b *Block) Hash() types.Hash {
	return crypto.CanonicalHash(b.CanonicalBytes())
}

// Equal reports whether two blocks carry the same content, including nonce
// and the hash that content produces.
func (b *Block) Equal(o *Block) bool {
	if b == nil || o == nil {
		return b == o
	}
	if b.Index != o.Index || b.PreviousHash != o.PreviousHash ||
		b.Timestamp != o.Timestamp || b.Difficulty != o.Difficulty || b.Nonce != o.Nonce {
		return false
	}
	if len(b.Transactions) != len(o.Transactions) {
		return false
	}
	for i := range b.Transactions {
		if b.Transactions[i].ID() != o.Transactions[i].ID() {
			return false
		}
	}
	return true
}

// rawBlock is the flat wire/JSON representation of a block.
type rawBlock struct {
	Index        uint64            `json:"index"`
	PreviousHash string            `json:"previousHash,omitempty"`
	Timestamp    uint64            `json:"timestamp"`
	Data         []json.RawMessage `json:"data"`
	Difficulty   uint64            `json:"difficulty"`
	Nonce        uint64            `json:"nonce"`
	Hash         string            `json:"hash"`
}

// MarshalJSON renders the block in the flat shape used on the wire and by
// the RPC surface, with the hash carried alongside the fields it commits to.
func (b *Block) MarshalJSON() ([]byte, error) {
	data, err := tx.ToRawList(b.Transactions)
	if err != nil {
		return nil, fmt.Errorf("encoding block %d transactions: %w", b.Index, err)
	}
	r := rawBlock{
		Index:      b.Index,
		Timestamp:  b.Timestamp,
		Data:       data,
		Difficulty: b.Difficulty,
		Nonce:      b.Nonce,
		Hash:       b.Hash().String(),
	}
	if b.HasPreviousHash() {
		r.PreviousHash = b.PreviousHash.String()
	}
	return json.Marshal(r)
}

// UnmarshalJSON parses the flat wire shape. The carried hash field is
// discarded: Hash always recomputes from content, and HasValidHash checks
// that recomputed hash against the block's declared difficulty.
func (b *Block) UnmarshalJSON(data []byte) error {
	var r rawBlock
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	txs, err := tx.FromRawList(r.Data)
	if err != nil {
		return fmt.Errorf("decoding block %d transactions: %w", r.Index, err)
	}
	b.Index = r.Index
	b.Timestamp = r.Timestamp
	b.Transactions = txs
	b.Difficulty = r.Difficulty
	b.Nonce = r.Nonce
	if r.PreviousHash != "" {
		h, err := types.HexToHash(r.PreviousHash)
		if err != nil {
			return fmt.Errorf("decoding previousHash: %w", err)
		}
		b.PreviousHash = h
	} else {
		b.PreviousHash = types.Hash{}
	}
	return nil
}
