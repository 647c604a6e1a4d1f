package tx

import (
	"errors"
	"fmt"

	"github.com/kgxledger/kgxledger/config"
	"github.com/kgxledger/kgxledger/pkg/crypto"
	"github.com/kgxledger/kgxledger/pkg/types"
)

// Validation errors.
var (
	ErrNoInputs       = errors.New("transaction has no inputs")
	ErrNoOutputs      = errors.New("transaction has no outputs")
	ErrDuplicateInput = errors.New("duplicate input")
	ErrZeroOutput     = errors.New("output amount is not positive")
	ErrMissingPubKey  = errors.New("input missing public key")
	ErrMissingSig     = errors.New("input missing signature")
	ErrInvalidSig     = errors.New("invalid signature")
	ErrTooManyInputs  = errors.New("too many inputs")
	ErrTooManyOutputs = errors.New("too many outputs")
	ErrMultipleInputs = errors.New("coinbase must have exactly one input")
)

// ValidateStructure checks transaction structure and basic rules. It does
// not check UTXO existence — that requires the UTXO set and is performed
// by ValidateWithUTXOs.
func (t *Transaction) ValidateStructure() error {
	if len(t.Inputs) == 0 {
		return ErrNoInputs
	}
	if len(t.Outputs) == 0 {
		return ErrNoOutputs
	}
	if len(t.Inputs) > config.MaxTxInputs {
		return fmt.Errorf("%w: %d inputs, max %d", ErrTooManyInputs, len(t.Inputs), config.MaxTxInputs)
	}
	if len(t.Outputs) > config.MaxTxOutputs {
		return fmt.Errorf("%w: %d outputs, max %d", ErrTooManyOutputs, len(t.Outputs), config.MaxTxOutputs)
	}

	if t.IsCoinbase() {
		if len(t.Inputs) != 1 {
			return ErrMultipleInputs
		}
	} else {
		seen := make(map[types.Outpoint]bool, len(t.Inputs))
		for i, in := range t.Inputs {
			if in.IsCoinbase() {
				return fmt.Errorf("input %d: coinbase marker in non-coinbase transaction", i)
			}
			if seen[in.PrevOut] {
				return fmt.Errorf("input %d: %w", i, ErrDuplicateInput)
			}
			seen[in.PrevOut] = true
			if len(in.PubKey) == 0 {
				return fmt.Errorf("input %d: %w", i, ErrMissingPubKey)
			}
			if len(in.Signature) == 0 {
				return fmt.Errorf("input %d: %w", i, ErrMissingSig)
			}
		}
	}

	for i, out := range t.Outputs {
		if out.Amount.Sign() <= 0 {
			return fmt.Errorf("output %d: %w", i, ErrZeroOutput)
		}
	}

	return nil
}

// IsCoinbase reports whether this transaction is a coinbase: exactly the
// marker shape produced by Coinbase().
func (t *Transaction) IsCoinbase() bool {
	return len(t.Inputs) > 0 && t.Inputs[0].IsCoinbase()
}

// VerifySignatures checks that all non-coinbase input signatures are
// valid for this transaction.
func (t *Transaction) VerifySignatures() error {
	hash := t.ID()
	for i, in := range t.Inputs {
		if in.IsCoinbase() {
			continue
		}
		if !crypto.VerifySignature(hash[:], in.Signature, in.PubKey) {
			return fmt.Errorf("input %d: %w", i, ErrInvalidSig)
		}
	}
	return nil
}
