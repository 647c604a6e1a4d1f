package chain

import (
	"github.com/kgxledger/kgxledger/pkg/block"
	"github.com/kgxledger/kgxledger/pkg/tx"
	"github.com/kgxledger/kgxledger/pkg/types"
	"github.com/shopspring/decimal"
)

// Wallet is the external collaborator the aggregate mines coinbases for and
// builds wallet-signed transfers through. Implemented by internal/wallet.
type Wallet interface {
	PublicKey() types.Address
	CreateTransaction(receiver types.Address, amount decimal.Decimal, utxos tx.UTXOProvider, pending []*tx.Transaction) (*tx.Transaction, error)
}

// Pool is the transaction pool the aggregate keeps in sync with every
// accepted tip change. Implemented by internal/mempool.Pool.
type Pool interface {
	Transactions() []*tx.Transaction
	AddTransaction(t *tx.Transaction, utxos tx.UTXOProvider) error
	Update(utxos tx.UTXOProvider)
	RemoveConfirmed(txs []*tx.Transaction)
}

// Broadcaster is the external P2P application the aggregate publishes
// accepted state to. A possibly-absent reference: calls are no-ops when
// unset. Late-bound via SetBroadcaster to avoid bidirectional ownership at
// construction time, since the broadcaster itself needs a live Chain to
// hand inbound gossip to.
type Broadcaster interface {
	BroadcastLatest(b *block.Block)
	BroadcastTransactionPool(txs []*tx.Transaction)
}
