package p2p

import (
	"encoding/json"

	klog "github.com/kgxledger/kgxledger/internal/log"
	"github.com/kgxledger/kgxledger/pkg/block"
	"github.com/kgxledger/kgxledger/pkg/tx"
	"github.com/libp2p/go-libp2p/core/peer"
)

// Chain is the subset of the Blockchain aggregate the gossip layer
// drives on inbound messages and publishes outbound state to.
type Chain interface {
	AddBlock(candidate *block.Block) (bool, error)
	HandleReceivedTransaction(t *tx.Transaction) error
}

// Wire attaches a Node to a Chain: inbound gossip messages are applied to
// the chain. It does not register the node as the chain's Broadcaster;
// that is a separate Chain.SetBroadcaster call. Call before Start.
func Wire(n *Node, c Chain) {
	logger := klog.WithComponent("p2p")

	n.SetBlockHandler(func(from peer.ID, data []byte) {
		var blk block.Block
		if err := json.Unmarshal(data, &blk); err != nil {
			logger.Warn().Str("peer", from.String()).Err(err).Msg("malformed block gossip")
			return
		}
		accepted, err := c.AddBlock(&blk)
		if err != nil {
			logger.Warn().Str("peer", from.String()).Err(err).Msg("rejected block gossip")
			return
		}
		if !accepted {
			logger.Debug().Str("peer", from.String()).Uint64("index", blk.Index).Msg("block gossip did not extend tip")
		}
	})

	n.SetTxHandler(func(from peer.ID, data []byte) {
		var t tx.Transaction
		if err := json.Unmarshal(data, &t); err != nil {
			logger.Warn().Str("peer", from.String()).Err(err).Msg("malformed transaction gossip")
			return
		}
		if err := c.HandleReceivedTransaction(&t); err != nil {
			logger.Debug().Str("peer", from.String()).Err(err).Msg("rejected transaction gossip")
		}
	})
}

// BroadcastLatest publishes the JSON-raw form of the newly accepted tip.
// Implements internal/chain.Broadcaster.
func (n *Node) BroadcastLatest(b *block.Block) {
	if err := n.BroadcastBlock(b); err != nil {
		klog.WithComponent("p2p").Warn().Err(err).Msg("broadcast latest block failed")
	}
}

// BroadcastTransactionPool publishes each pending transaction to the
// transaction-pool topic. Implements internal/chain.Broadcaster.
func (n *Node) BroadcastTransactionPool(txs []*tx.Transaction) {
	logger := klog.WithComponent("p2p")
	for _, t := range txs {
		if err := n.BroadcastTx(t); err != nil {
			logger.Warn().Err(err).Msg("broadcast pool transaction failed")
		}
	}
}
