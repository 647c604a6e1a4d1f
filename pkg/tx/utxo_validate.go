package tx

import (
	"errors"
	"fmt"

	"github.com/kgxledger/kgxledger/pkg/crypto"
	"github.com/kgxledger/kgxledger/pkg/types"
	"github.com/shopspring/decimal"
)

// UTXO-aware validation errors.
var (
	ErrInputNotFound   = errors.New("input UTXO not found")
	ErrAddressMismatch = errors.New("pubkey does not match UTXO address")
	ErrInsufficientFee = errors.New("inputs do not cover outputs")
)

// UTXOProvider provides read-only access to the UTXO set for validation.
type UTXOProvider interface {
	GetUTXO(outpoint types.Outpoint) (address types.Address, amount decimal.Decimal, ok bool)
}

// ValidateWithUTXOs performs full validation of a non-coinbase transaction
// against the UTXO set: every input must reference an existing, unspent
// output owned by the signing key, signatures must verify, and the total
// input value must cover the total output value. Returns the difference
// (input total minus output total).
func (t *Transaction) ValidateWithUTXOs(provider UTXOProvider) (decimal.Decimal, error) {
	if err := t.ValidateStructure(); err != nil {
		return decimal.Zero, err
	}
	if t.IsCoinbase() {
		return decimal.Zero, fmt.Errorf("coinbase transactions are not validated against the UTXO set")
	}

	total := decimal.Zero
	for i, in := range t.Inputs {
		addr, amount, ok := provider.GetUTXO(in.PrevOut)
		if !ok {
			return decimal.Zero, fmt.Errorf("input %d (%s): %w", i, in.PrevOut, ErrInputNotFound)
		}
		if crypto.AddressFromPubKey(in.PubKey) != addr {
			return decimal.Zero, fmt.Errorf("input %d (%s): %w", i, in.PrevOut, ErrAddressMismatch)
		}
		total = total.Add(amount)
	}

	if err := t.VerifySignatures(); err != nil {
		return decimal.Zero, err
	}

	outputTotal := t.TotalOutputValue()
	if total.LessThan(outputTotal) {
		return decimal.Zero, fmt.Errorf("%w: inputs=%s outputs=%s", ErrInsufficientFee, total, outputTotal)
	}

	return total.Sub(outputTotal), nil
}
