// Package utxo manages the unspent transaction output set the ledger is
// derived from.
package utxo

import (
	"github.com/kgxledger/kgxledger/pkg/types"
	"github.com/shopspring/decimal"
)

// Entry represents an unspent transaction output: an amount owned by an
// address, identified by the outpoint that created it.
type Entry struct {
	Outpoint types.Outpoint  `json:"outpoint"`
	Address  types.Address   `json:"address"`
	Amount   decimal.Decimal `json:"amount"`
}

// Set is the storage interface for unspent outputs.
type Set interface {
	Get(outpoint types.Outpoint) (*Entry, error)
	Put(e *Entry) error
	Delete(outpoint types.Outpoint) error
	Has(outpoint types.Outpoint) (bool, error)
	GetByAddress(addr types.Address) ([]*Entry, error)
	ForEach(fn func(*Entry) error) error
	ClearAll() error
}
