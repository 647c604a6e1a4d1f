// Package rpc implements the JSON-RPC 2.0 control surface.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/kgxledger/kgxledger/internal/chain"
	klog "github.com/kgxledger/kgxledger/internal/log"
	"github.com/kgxledger/kgxledger/internal/mempool"
	"github.com/kgxledger/kgxledger/internal/miner"
	"github.com/kgxledger/kgxledger/internal/p2p"
	"github.com/rs/zerolog"
)

// maxBodySize is the maximum allowed request body size (1 MB).
const maxBodySize = 1 << 20

// Server is the JSON-RPC 2.0 HTTP server exposing the Blockchain
// aggregate's operations.
type Server struct {
	addr       string
	chain      *chain.Chain
	pool       *mempool.Pool
	p2pNode    *p2p.Node     // nil = no gossip broadcast on submit
	worker     *miner.Worker // nil = mining.start/stop unavailable
	wallet     chain.Wallet  // nil = wallet.getAddress/mining.mineWithTransaction unavailable
	allowedIPs []string      // empty = no restriction
	server     *http.Server
	logger     zerolog.Logger
	ln         net.Listener
}

// New creates an RPC server bound to addr. pool is used for
// mempool.getContent. p2pNode, worker, and wallet are optional — pass nil
// to disable the operations that need them.
func New(addr string, ch *chain.Chain, pool *mempool.Pool, p2pNode *p2p.Node, worker *miner.Worker, wallet chain.Wallet) *Server {
	s := &Server{
		addr:    addr,
		chain:   ch,
		pool:    pool,
		p2pNode: p2pNode,
		worker:  worker,
		wallet:  wallet,
		logger:  klog.WithComponent("rpc"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRequest)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start begins listening and serving in a background goroutine. It
// returns immediately after the listener is bound.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("rpc listen: %w", err)
	}
	s.ln = ln

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("rpc server error")
		}
	}()
	return nil
}

// SetAllowedIPs restricts requests to the given remote IPs. An empty list
// disables the restriction. Call before Start.
func (s *Server) SetAllowedIPs(ips []string) {
	s.allowedIPs = ips
}

// Addr returns the listener address (useful when bound to :0).
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	if len(s.allowedIPs) > 0 && !s.remoteAllowed(r) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, nil, CodeInvalidRequest, "only POST method is allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		writeError(w, nil, CodeParseError, "failed to read request body")
		return
	}
	if len(body) > maxBodySize {
		writeError(w, nil, CodeInvalidRequest, "request body too large")
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, nil, CodeParseError, "invalid JSON")
		return
	}
	if req.JSONRPC != "2.0" {
		writeError(w, req.ID, CodeInvalidRequest, `jsonrpc must be "2.0"`)
		return
	}

	result, rpcErr := s.dispatch(r.Context(), &req)
	if rpcErr != nil {
		writeJSON(w, Response{JSONRPC: "2.0", Error: rpcErr, ID: req.ID})
		return
	}
	writeJSON(w, Response{JSONRPC: "2.0", Result: result, ID: req.ID})
}

// dispatch routes a request to its handler and translates the three
// error kinds of the Blockchain aggregate into JSON-RPC error objects:
// bad-request -> -32001, not-found -> -32002, and validation-rejection
// stays a structured {accepted: false} / {mined: false} result, never an
// error.
func (s *Server) dispatch(ctx context.Context, req *Request) (interface{}, *Error) {
	switch req.Method {
	case "chain.getInfo":
		return s.handleChainGetInfo(req)
	case "chain.getBlocks":
		return s.handleChainGetBlocks(req)
	case "block.getByHash":
		return s.handleBlockGetByHash(req)
	case "block.getByIndex":
		return s.handleBlockGetByIndex(req)
	case "tx.getById":
		return s.handleTxGetByID(req)
	case "tx.submit":
		return s.handleTxSubmit(req)
	case "mempool.getContent":
		return s.handleMempoolGetContent(req)
	case "wallet.getBalance":
		return s.handleWalletGetBalance(req)
	case "wallet.getAddress":
		return s.handleWalletGetAddress(req)
	case "mining.start":
		return s.handleMiningStart(req)
	case "mining.stop":
		return s.handleMiningStop(req)
	case "mining.mineWithTransaction":
		return s.handleMiningMineWithTransaction(ctx, req)
	default:
		return nil, &Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("method %q not found", req.Method)}
	}
}

func (s *Server) remoteAllowed(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	for _, allowed := range s.allowedIPs {
		if allowed == host {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func writeError(w http.ResponseWriter, id interface{}, code int, message string) {
	writeJSON(w, Response{JSONRPC: "2.0", Error: &Error{Code: code, Message: message}, ID: id})
}

func parseParams(req *Request, target interface{}) *Error {
	if req.Params == nil {
		return &Error{Code: CodeInvalidParams, Message: "params required"}
	}
	data, err := json.Marshal(req.Params)
	if err != nil {
		return &Error{Code: CodeInvalidParams, Message: "invalid params"}
	}
	if err := json.Unmarshal(data, target); err != nil {
		return &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
	}
	return nil
}
