package wallet

import (
	"fmt"

	"github.com/kgxledger/kgxledger/internal/utxo"
	"github.com/kgxledger/kgxledger/pkg/crypto"
	"github.com/kgxledger/kgxledger/pkg/tx"
	"github.com/kgxledger/kgxledger/pkg/types"
	"github.com/shopspring/decimal"
)

// Wallet is a single HD-derived signing key, ready to hand to the ledger
// as its Wallet collaborator: it mines coinbases to PublicKey() and
// builds signed transfers through CreateTransaction.
type Wallet struct {
	key  *crypto.PrivateKey
	addr types.Address
}

// New wraps a signing key as a Wallet.
func New(key *crypto.PrivateKey) *Wallet {
	return &Wallet{key: key, addr: crypto.AddressFromPubKey(key.PublicKey())}
}

// FromHDKey wraps the signer derived at an HD path as a Wallet.
func FromHDKey(hd *HDKey) (*Wallet, error) {
	signer, err := hd.Signer()
	if err != nil {
		return nil, fmt.Errorf("wallet from HD key: %w", err)
	}
	return New(signer), nil
}

// PublicKey returns the address this wallet signs and receives for.
func (w *Wallet) PublicKey() types.Address {
	return w.addr
}

// Balance sums every unspent entry owned by this wallet in the given
// snapshot.
func (w *Wallet) Balance(snap *utxo.Snapshot) Balance {
	total := decimal.Zero
	for _, e := range snap.ByAddress(w.addr) {
		total = total.Add(e.Amount)
	}
	return Balance{Confirmed: total}
}

// CreateTransaction builds a signed transfer of amount to receiver,
// selecting coins from utxos and skipping any outpoint already
// committed by a transaction in pending (so a wallet never double-spends
// against its own unconfirmed transactions).
func (w *Wallet) CreateTransaction(receiver types.Address, amount decimal.Decimal, utxos tx.UTXOProvider, pending []*tx.Transaction) (*tx.Transaction, error) {
	snap, ok := utxos.(*utxo.Snapshot)
	if !ok {
		return nil, fmt.Errorf("wallet requires a *utxo.Snapshot for coin selection")
	}

	spent := make(map[types.Outpoint]bool)
	for _, p := range pending {
		for _, in := range p.Inputs {
			spent[in.PrevOut] = true
		}
	}

	entries := snap.ByAddress(w.addr)
	sel, err := SelectCoins(entries, amount, spent)
	if err != nil {
		return nil, err
	}

	b := tx.NewBuilder().AddOutput(receiver, amount)
	for _, e := range sel.Inputs {
		b.AddInput(e.Outpoint)
	}
	if sel.Change.IsPositive() {
		b.AddOutput(w.addr, sel.Change)
	}
	if err := b.Sign(w.key); err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return b.Build(), nil
}
