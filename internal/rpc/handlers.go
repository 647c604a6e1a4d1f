package rpc

import (
	"context"
	"errors"

	"github.com/kgxledger/kgxledger/internal/chain"
)

// errorFor translates a Blockchain aggregate error into a JSON-RPC error
// object per the bad-request/not-found mapping of the control surface.
func errorFor(err error) *Error {
	switch {
	case errors.Is(err, chain.ErrBadRequest):
		return &Error{Code: CodeBadRequest, Message: err.Error()}
	case errors.Is(err, chain.ErrNotFound):
		return &Error{Code: CodeNotFound, Message: err.Error()}
	default:
		return &Error{Code: CodeInternalError, Message: err.Error()}
	}
}

func (s *Server) handleChainGetInfo(req *Request) (interface{}, *Error) {
	tip := s.chain.Tip()
	return ChainInfo{
		Height:     s.chain.Height(),
		TipHash:    tip.Hash(),
		Difficulty: s.chain.Difficulty(),
	}, nil
}

func (s *Server) handleChainGetBlocks(req *Request) (interface{}, *Error) {
	return s.chain.Blocks(), nil
}

func (s *Server) handleBlockGetByHash(req *Request) (interface{}, *Error) {
	var p HashParam
	if err := parseParams(req, &p); err != nil {
		return nil, err
	}
	blk, err := s.chain.GetBlockWithHash(p.Hash)
	if err != nil {
		return nil, errorFor(err)
	}
	return blk, nil
}

func (s *Server) handleBlockGetByIndex(req *Request) (interface{}, *Error) {
	var p IndexParam
	if err := parseParams(req, &p); err != nil {
		return nil, err
	}
	blk, err := s.chain.GetBlockWithIndex(p.Index)
	if err != nil {
		return nil, errorFor(err)
	}
	return blk, nil
}

func (s *Server) handleTxGetByID(req *Request) (interface{}, *Error) {
	var p HashParam
	if err := parseParams(req, &p); err != nil {
		return nil, err
	}
	t, err := s.chain.GetTransactionWithID(p.Hash)
	if err != nil {
		return nil, errorFor(err)
	}
	return t, nil
}

func (s *Server) handleTxSubmit(req *Request) (interface{}, *Error) {
	var p TxSubmitParam
	if err := parseParams(req, &p); err != nil {
		return nil, err
	}
	if p.Transaction == nil {
		return nil, &Error{Code: CodeInvalidParams, Message: "transaction required"}
	}

	if err := s.chain.HandleReceivedTransaction(p.Transaction); err != nil {
		if errors.Is(err, chain.ErrBadRequest) {
			return SubmitResult{Accepted: false, Reason: err.Error()}, nil
		}
		return nil, errorFor(err)
	}

	// HandleReceivedTransaction assumes the caller already knows about the
	// transaction (it is the gossip path's entrypoint too), so it never
	// broadcasts. A submission arriving over RPC is new to everyone else.
	if s.p2pNode != nil {
		s.p2pNode.BroadcastTransactionPool(s.pool.Transactions())
	}
	return SubmitResult{Accepted: true, TxID: p.Transaction.ID()}, nil
}

func (s *Server) handleMempoolGetContent(req *Request) (interface{}, *Error) {
	return s.pool.Transactions(), nil
}

func (s *Server) handleWalletGetBalance(req *Request) (interface{}, *Error) {
	var p AddressParam
	if err := parseParams(req, &p); err != nil {
		return nil, err
	}
	return BalanceResult{Address: p.Address, Balance: s.chain.Balance(p.Address)}, nil
}

func (s *Server) handleWalletGetAddress(req *Request) (interface{}, *Error) {
	if s.wallet == nil {
		return nil, &Error{Code: CodeNotFound, Message: "no wallet configured on this node"}
	}
	return AddressResult{Address: s.wallet.PublicKey()}, nil
}

func (s *Server) handleMiningStart(req *Request) (interface{}, *Error) {
	if s.worker == nil {
		return nil, &Error{Code: CodeNotFound, Message: "mining is not available on this node"}
	}
	s.worker.Start()
	return MiningStatusResult{Running: true}, nil
}

func (s *Server) handleMiningStop(req *Request) (interface{}, *Error) {
	if s.worker == nil {
		return nil, &Error{Code: CodeNotFound, Message: "mining is not available on this node"}
	}
	s.worker.Stop()
	return MiningStatusResult{Running: false}, nil
}

func (s *Server) handleMiningMineWithTransaction(ctx context.Context, req *Request) (interface{}, *Error) {
	if s.wallet == nil {
		return nil, &Error{Code: CodeNotFound, Message: "no wallet configured on this node"}
	}
	var p MineWithTransactionParam
	if err := parseParams(req, &p); err != nil {
		return nil, err
	}

	blk, err := s.chain.MineWithTransaction(ctx, s.wallet, p.Receiver, p.Amount)
	if err != nil {
		return nil, errorFor(err)
	}
	if blk == nil {
		return MineResult{Mined: false}, nil
	}
	return MineResult{Mined: true, Block: blk}, nil
}
