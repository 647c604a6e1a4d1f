// Package tx defines transaction types, construction and validation.
package tx

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/kgxledger/kgxledger/pkg/crypto"
	"github.com/kgxledger/kgxledger/pkg/types"
	"github.com/shopspring/decimal"
)

// CoinbaseAmount is the fixed block subsidy minted by a coinbase output.
var CoinbaseAmount = decimal.NewFromInt(50)

// AmountScale is the fixed number of decimal places amounts are
// canonicalized to before hashing or signing, so that "1" and "1.0"
// produce the same signing bytes.
const AmountScale = 8

// Transaction represents a ledger transaction: a list of inputs spending
// prior unspent outputs and a list of outputs creating new ones.
type Transaction struct {
	Version uint32   `json:"version"`
	Inputs  []Input  `json:"inputs"`
	Outputs []Output `json:"outputs"`
}

// Input references a UTXO being spent, or — for a coinbase transaction —
// carries the minting block's index in PrevOut.Index with a zero TxID.
type Input struct {
	PrevOut   types.Outpoint `json:"prevout"`
	PubKey    []byte         `json:"pubkey"`
	Signature []byte         `json:"signature"`
}

// IsCoinbase reports whether this input is the coinbase marker: no
// previous output is referenced, and PrevOut.Index instead holds the
// block index the coinbase transaction belongs to.
func (in Input) IsCoinbase() bool {
	return in.PrevOut.TxID.IsZero()
}

// inputJSON is the JSON representation of Input with hex-encoded byte fields.
type inputJSON struct {
	PrevOut   types.Outpoint `json:"prevout"`
	PubKey    *string        `json:"pubkey"`
	Signature *string        `json:"signature"`
}

// MarshalJSON encodes the input with hex-encoded pubkey and signature.
func (in Input) MarshalJSON() ([]byte, error) {
	j := inputJSON{PrevOut: in.PrevOut}
	if in.PubKey != nil {
		p := hex.EncodeToString(in.PubKey)
		j.PubKey = &p
	}
	if in.Signature != nil {
		s := hex.EncodeToString(in.Signature)
		j.Signature = &s
	}
	return json.Marshal(j)
}

// UnmarshalJSON decodes an input with hex-encoded pubkey and signature.
func (in *Input) UnmarshalJSON(data []byte) error {
	var j inputJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	in.PrevOut = j.PrevOut
	if j.PubKey != nil {
		b, err := hex.DecodeString(*j.PubKey)
		if err != nil {
			return err
		}
		in.PubKey = b
	}
	if j.Signature != nil {
		b, err := hex.DecodeString(*j.Signature)
		if err != nil {
			return err
		}
		in.Signature = b
	}
	return nil
}

// Output defines a new unspent output: an exact-decimal amount paid to
// an address. Amount is never a binary float.
type Output struct {
	Address types.Address   `json:"address"`
	Amount  decimal.Decimal `json:"amount"`
}

// Coinbase builds the coinbase transaction minting the block subsidy to
// minerAddress, tagged with the index of the block it belongs to.
func Coinbase(minerAddress types.Address, blockIndex uint64) *Transaction {
	return &Transaction{
		Version: 1,
		Inputs: []Input{{
			PrevOut: types.Outpoint{TxID: types.Hash{}, Index: uint32(blockIndex)},
		}},
		Outputs: []Output{{
			Address: minerAddress,
			Amount:  CoinbaseAmount,
		}},
	}
}

// ID computes the transaction identifier: a BLAKE3 hash of the
// transaction's signing bytes. Not consensus-critical per se (it is an
// opaque identifier to the ledger), so it is not pinned to SHA-256 the
// way the block hash is.
func (t *Transaction) ID() types.Hash {
	return crypto.Hash(t.SigningBytes())
}

// Hash is an alias for ID, matching the Hash method other value types expose.
func (t *Transaction) Hash() types.Hash {
	return t.ID()
}

// SigningBytes returns the canonical byte representation used both for
// computing the transaction ID and as the message signed by each input.
// Format: version(4) | input_count(4) | [prevout_txid(32) + prevout_index(4)
// + pubkey_len(4) + pubkey]... | output_count(4) | [address(20) +
// amount_len(4) + amount]...
//
// Signatures are excluded: they sign over this exact encoding, so
// including them would be circular.
func (t *Transaction) SigningBytes() []byte {
	var buf []byte

	buf = binary.BigEndian.AppendUint32(buf, t.Version)

	buf = binary.BigEndian.AppendUint32(buf, uint32(len(t.Inputs)))
	for _, in := range t.Inputs {
		buf = append(buf, in.PrevOut.TxID[:]...)
		buf = binary.BigEndian.AppendUint32(buf, in.PrevOut.Index)
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(in.PubKey)))
		buf = append(buf, in.PubKey...)
	}

	buf = binary.BigEndian.AppendUint32(buf, uint32(len(t.Outputs)))
	for _, out := range t.Outputs {
		buf = append(buf, out.Address[:]...)
		amt := []byte(out.Amount.StringFixed(AmountScale))
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(amt)))
		buf = append(buf, amt...)
	}

	return buf
}

// TotalOutputValue returns the sum of all output amounts.
func (t *Transaction) TotalOutputValue() decimal.Decimal {
	total := decimal.Zero
	for _, out := range t.Outputs {
		total = total.Add(out.Amount)
	}
	return total
}

// ToRawList renders a slice of transactions in their JSON raw form.
func ToRawList(txs []*Transaction) ([]json.RawMessage, error) {
	raw := make([]json.RawMessage, len(txs))
	for i, t := range txs {
		b, err := json.Marshal(t)
		if err != nil {
			return nil, fmt.Errorf("marshal tx %d: %w", i, err)
		}
		raw[i] = b
	}
	return raw, nil
}

// FromRawList parses a slice of raw transaction JSON into Transactions.
func FromRawList(raw []json.RawMessage) ([]*Transaction, error) {
	txs := make([]*Transaction, len(raw))
	for i, r := range raw {
		var t Transaction
		if err := json.Unmarshal(r, &t); err != nil {
			return nil, fmt.Errorf("unmarshal tx %d: %w", i, err)
		}
		txs[i] = &t
	}
	return txs, nil
}
