package wallet

import (
	"errors"
	"fmt"
	"sort"

	"github.com/kgxledger/kgxledger/internal/utxo"
	"github.com/kgxledger/kgxledger/pkg/types"
	"github.com/shopspring/decimal"
)

// Coin selection errors.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNoUTXOs           = errors.New("no UTXOs available")
)

// CoinSelection holds the result of coin selection.
type CoinSelection struct {
	Inputs []*utxo.Entry   // Selected entries to spend.
	Total  decimal.Decimal // Sum of selected input amounts.
	Change decimal.Decimal // Change = Total - target.
}

// SelectCoins chooses entries to fund a transfer of the given target
// amount, skipping any outpoint already committed by a pending
// transaction. It tries two strategies:
//  1. Single entry: the smallest single entry that covers the target
//     (minimizes inputs and avoids linking unrelated outputs together).
//  2. Largest-first accumulation: greedily adds the largest entries
//     until the target is met.
//
// Returns whichever strategy produces the least change.
func SelectCoins(entries []*utxo.Entry, target decimal.Decimal, spent map[types.Outpoint]bool) (*CoinSelection, error) {
	if len(entries) == 0 {
		return nil, ErrNoUTXOs
	}
	if !target.IsPositive() {
		return nil, fmt.Errorf("target must be positive")
	}

	candidates := make([]*utxo.Entry, 0, len(entries))
	for _, e := range entries {
		if e.Amount.IsPositive() && !spent[e.Outpoint] {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNoUTXOs
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Amount.LessThan(candidates[j].Amount)
	})

	var single *CoinSelection
	for _, e := range candidates {
		if e.Amount.GreaterThanOrEqual(target) {
			single = &CoinSelection{
				Inputs: []*utxo.Entry{e},
				Total:  e.Amount,
				Change: e.Amount.Sub(target),
			}
			break // ascending order: first match is the smallest covering entry
		}
	}

	var accum *CoinSelection
	var selected []*utxo.Entry
	total := decimal.Zero
	for i := len(candidates) - 1; i >= 0; i-- {
		selected = append(selected, candidates[i])
		total = total.Add(candidates[i].Amount)
		if total.GreaterThanOrEqual(target) {
			accum = &CoinSelection{
				Inputs: selected,
				Total:  total,
				Change: total.Sub(target),
			}
			break
		}
	}

	switch {
	case single != nil && accum != nil:
		if single.Change.LessThanOrEqual(accum.Change) {
			return single, nil
		}
		return accum, nil
	case single != nil:
		return single, nil
	case accum != nil:
		return accum, nil
	default:
		return nil, fmt.Errorf("%w: have %s, need %s", ErrInsufficientFunds, totalValue(candidates), target)
	}
}

func totalValue(entries []*utxo.Entry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Amount)
	}
	return total
}
