package rpc

import (
	"github.com/kgxledger/kgxledger/pkg/block"
	"github.com/kgxledger/kgxledger/pkg/tx"
	"github.com/kgxledger/kgxledger/pkg/types"
	"github.com/shopspring/decimal"
)

// JSON-RPC 2.0 error codes. -32001/-32002 are this server's mapping of
// the aggregate's bad-request/not-found error kinds; the rest are the
// standard JSON-RPC reserved codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeBadRequest     = -32001
	CodeNotFound       = -32002
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      interface{} `json:"id"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ── Param types ─────────────────────────────────────────────────────────

// HashParam is used by block.getByHash and tx.getById.
type HashParam struct {
	Hash types.Hash `json:"hash"`
}

// IndexParam is used by block.getByIndex.
type IndexParam struct {
	Index uint64 `json:"index"`
}

// AddressParam is used by wallet.getBalance.
type AddressParam struct {
	Address types.Address `json:"address"`
}

// TxSubmitParam is used by tx.submit.
type TxSubmitParam struct {
	Transaction *tx.Transaction `json:"transaction"`
}

// MineWithTransactionParam is used by mining.mineWithTransaction.
type MineWithTransactionParam struct {
	Receiver string          `json:"receiver"`
	Amount   decimal.Decimal `json:"amount"`
}

// SendTransactionParam carries a receiver and an amount. No method in the
// server's dispatch table decodes it.
type SendTransactionParam struct {
	Receiver string          `json:"receiver"`
	Amount   decimal.Decimal `json:"amount"`
}

// ── Result types ────────────────────────────────────────────────────────

// ChainInfo is the result of chain.getInfo.
type ChainInfo struct {
	Height     uint64     `json:"height"`
	TipHash    types.Hash `json:"tipHash"`
	Difficulty uint64     `json:"difficulty"`
}

// SubmitResult is the result of tx.submit: a validation-rejection is
// reported as {accepted: false}, never an error.
type SubmitResult struct {
	Accepted bool       `json:"accepted"`
	TxID     types.Hash `json:"txId,omitempty"`
	Reason   string     `json:"reason,omitempty"`
}

// MineResult is the result of mining.mineWithTransaction: a lost mining
// race is reported as {mined: false}, never an error.
type MineResult struct {
	Mined bool         `json:"mined"`
	Block *block.Block `json:"block,omitempty"`
}

// BalanceResult is the result of wallet.getBalance.
type BalanceResult struct {
	Address types.Address   `json:"address"`
	Balance decimal.Decimal `json:"balance"`
}

// AddressResult is the result of wallet.getAddress.
type AddressResult struct {
	Address types.Address `json:"address"`
}

// MiningStatusResult is the result of mining.start and mining.stop.
type MiningStatusResult struct {
	Running bool `json:"running"`
}
