// Package rpctest provides an in-memory JSON-RPC node that answers the small
// subset of eth_ methods used by the tally pipeline. It is meant for tests
// that need a real ethclient talking over HTTP.
package rpctest

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

// GasEstimate is the gas limit returned for every eth_estimateGas.
const GasEstimate = 100000

// CallHandler answers an eth_call whose input starts with a registered
// selector. It receives the full input and returns the ABI encoded output.
type CallHandler func(input []byte) ([]byte, error)

// Node is a fake Ethereum JSON-RPC endpoint.
type Node struct {
	*httptest.Server
	ChainID uint64

	mu       sync.Mutex
	code     map[common.Address][]byte
	calls    map[string]CallHandler
	receipts map[common.Hash]uint64
	requests map[string]int
	failing  bool

	nonces   map[common.Address]uint64
	sent     []*SentTx
	autoMine bool
}

// SentTx is a transaction received through eth_sendRawTransaction.
type SentTx struct {
	Tx   *gethtypes.Transaction
	From common.Address
}

type request struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// NewNode starts a fake node for the given chain. It is closed when the test
// finishes.
func NewNode(t testing.TB, chainID uint64) *Node {
	n := &Node{
		ChainID:  chainID,
		code:     make(map[common.Address][]byte),
		calls:    make(map[string]CallHandler),
		receipts: make(map[common.Hash]uint64),
		requests: make(map[string]int),
		nonces:   make(map[common.Address]uint64),
		autoMine: true,
	}
	n.Server = httptest.NewServer(http.HandlerFunc(n.serve))
	t.Cleanup(n.Close)
	return n
}

// SetCode deploys code at addr.
func (n *Node) SetCode(addr common.Address, code []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.code[addr] = code
}

// HandleCall registers the handler for eth_call requests with the selector.
func (n *Node) HandleCall(selector []byte, h CallHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls[hexutil.Encode(selector)] = h
}

// SetReceipt makes the transaction mined with the given status (1 success,
// 0 reverted).
func (n *Node) SetReceipt(hash common.Hash, status uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.receipts[hash] = status
}

// SetFailing makes every request fail with an internal error.
func (n *Node) SetFailing(failing bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failing = failing
}

// SetAutoMine selects whether sent transactions get a successful receipt
// right away (the default) or stay pending forever.
func (n *Node) SetAutoMine(mine bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.autoMine = mine
}

// Sent returns the transactions received so far, in order.
func (n *Node) Sent() []*SentTx {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*SentTx, len(n.sent))
	copy(out, n.sent)
	return out
}

// Requests returns how many times method was called.
func (n *Node) Requests(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.requests[method]
}

func (n *Node) serve(w http.ResponseWriter, r *http.Request) {
	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	resp := response{JSONRPC: "2.0", ID: req.ID}
	result, err := n.handle(&req)
	if err != nil {
		resp.Error = &rpcError{Code: -32000, Message: err.Error()}
	} else {
		resp.Result = result
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (n *Node) handle(req *request) (any, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.requests[req.Method]++
	if n.failing {
		return nil, fmt.Errorf("node unavailable")
	}
	switch req.Method {
	case "eth_chainId":
		return hexutil.Uint64(n.ChainID), nil
	case "eth_getCode":
		addr, err := addressParam(req.Params)
		if err != nil {
			return nil, err
		}
		return hexutil.Bytes(n.code[addr]), nil
	case "eth_call":
		return n.call(req.Params)
	case "eth_getTransactionReceipt":
		var hash common.Hash
		if len(req.Params) == 0 {
			return nil, fmt.Errorf("missing transaction hash")
		}
		if err := json.Unmarshal(req.Params[0], &hash); err != nil {
			return nil, err
		}
		status, ok := n.receipts[hash]
		if !ok {
			return json.RawMessage("null"), nil
		}
		return receipt(hash, status), nil
	case "eth_getTransactionCount":
		addr, err := addressParam(req.Params)
		if err != nil {
			return nil, err
		}
		return hexutil.Uint64(n.nonces[addr]), nil
	case "eth_maxPriorityFeePerGas":
		return (*hexutil.Big)(big.NewInt(1)), nil
	case "eth_getBlockByNumber":
		return header(), nil
	case "eth_estimateGas":
		return hexutil.Uint64(GasEstimate), nil
	case "eth_sendRawTransaction":
		return n.sendRaw(req.Params)
	}
	return nil, fmt.Errorf("method %s not supported", req.Method)
}

func (n *Node) call(params []json.RawMessage) (any, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("missing call arguments")
	}
	var arg struct {
		To    *common.Address `json:"to"`
		Input hexutil.Bytes   `json:"input"`
		Data  hexutil.Bytes   `json:"data"`
	}
	if err := json.Unmarshal(params[0], &arg); err != nil {
		return nil, err
	}
	input := arg.Input
	if len(input) == 0 {
		input = arg.Data
	}
	if arg.To == nil || len(n.code[*arg.To]) == 0 {
		return hexutil.Bytes{}, nil
	}
	if len(input) < 4 {
		return nil, fmt.Errorf("execution reverted")
	}
	h, ok := n.calls[hexutil.Encode(input[:4])]
	if !ok {
		return nil, fmt.Errorf("execution reverted")
	}
	out, err := h(input)
	if err != nil {
		return nil, err
	}
	return hexutil.Bytes(out), nil
}

func (n *Node) sendRaw(params []json.RawMessage) (any, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("missing transaction")
	}
	var raw hexutil.Bytes
	if err := json.Unmarshal(params[0], &raw); err != nil {
		return nil, err
	}
	tx := new(gethtypes.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("invalid transaction: %w", err)
	}
	if tx.ChainId().Uint64() != n.ChainID {
		return nil, fmt.Errorf("invalid chain id %d", tx.ChainId().Uint64())
	}
	from, err := gethtypes.Sender(gethtypes.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return nil, fmt.Errorf("invalid sender: %w", err)
	}
	if tx.Nonce() != n.nonces[from] {
		return nil, fmt.Errorf("nonce too low")
	}
	if tx.To() == nil || len(n.code[*tx.To()]) == 0 {
		return nil, fmt.Errorf("execution reverted")
	}
	n.nonces[from]++
	n.sent = append(n.sent, &SentTx{Tx: tx, From: from})
	if n.autoMine {
		n.receipts[tx.Hash()] = gethtypes.ReceiptStatusSuccessful
	}
	return tx.Hash(), nil
}

func addressParam(params []json.RawMessage) (common.Address, error) {
	if len(params) == 0 {
		return common.Address{}, fmt.Errorf("missing address")
	}
	var s string
	if err := json.Unmarshal(params[0], &s); err != nil {
		return common.Address{}, err
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %s", s)
	}
	return common.HexToAddress(s), nil
}

// header is the latest block, London enabled.
func header() map[string]any {
	zero := common.Hash{}
	return map[string]any{
		"parentHash":       zero,
		"sha3Uncles":       gethtypes.EmptyUncleHash,
		"miner":            common.Address{},
		"stateRoot":        zero,
		"transactionsRoot": gethtypes.EmptyTxsHash,
		"receiptsRoot":     gethtypes.EmptyReceiptsHash,
		"logsBloom":        "0x" + strings.Repeat("00", 256),
		"difficulty":       "0x0",
		"number":           "0x1",
		"gasLimit":         "0x1c9c380",
		"gasUsed":          "0x0",
		"timestamp":        "0x6553f100",
		"extraData":        "0x",
		"baseFeePerGas":    "0x7",
	}
}

func receipt(hash common.Hash, status uint64) map[string]any {
	return map[string]any{
		"type":              "0x2",
		"status":            hexutil.Uint64(status),
		"cumulativeGasUsed": "0x5208",
		"gasUsed":           "0x5208",
		"effectiveGasPrice": "0x1",
		"logsBloom":         "0x" + strings.Repeat("00", 256),
		"logs":              []any{},
		"transactionHash":   hash,
		"transactionIndex":  "0x0",
		"blockHash":         common.HexToHash("0x01"),
		"blockNumber":       "0x1",
		"contractAddress":   nil,
	}
}
