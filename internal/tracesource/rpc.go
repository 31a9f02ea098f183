package tracesource

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"evm-mev-lab/internal/domain"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// HTTPClient implements Source over HTTP JSON-RPC 2.0 against a node with
// the debug tracing API enabled.
type HTTPClient struct {
	endpoint    string
	client      *http.Client
	filter      FrameFilter
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   atomic.Uint64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// WithFrameFilter sets the address filter. Subtrees whose frames touch no
// filtered address and move no native value are pruned from the returned
// traces.
func WithFrameFilter(f FrameFilter) ClientOption {
	return func(c *HTTPClient) {
		c.filter = f
	}
}

// NewHTTPClient creates a new trace source HTTP client.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError represents a JSON-RPC 2.0 error.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// call performs a JSON-RPC call with retries and exponential backoff.
func (c *HTTPClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	reqID := c.requestID.Add(1)
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		// Handle rate limiting
		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		var rpcResp rpcResponse
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}

		if rpcResp.Error != nil {
			// RPC errors are not retried
			return rpcResp.Error
		}

		if result != nil && rpcResp.Result != nil {
			if err := json.Unmarshal(rpcResp.Result, result); err != nil {
				return fmt.Errorf("unmarshal result: %w", err)
			}
		}

		return nil
	}

	return fmt.Errorf("%w: max retries exceeded: %v", ErrUnavailable, lastErr)
}

// LatestBlock retrieves the node's head block number.
func (c *HTTPClient) LatestBlock(ctx context.Context) (uint64, error) {
	var result string
	if err := c.call(ctx, "eth_blockNumber", nil, &result); err != nil {
		return 0, err
	}
	return parseHexUint64(result)
}

// BlockHeader retrieves the block's context without transaction bodies.
func (c *HTTPClient) BlockHeader(ctx context.Context, blockNumber uint64) (*domain.Metadata, error) {
	blockTag := fmt.Sprintf("0x%x", blockNumber)

	var block *rpcBlock
	if err := c.call(ctx, "eth_getBlockByNumber", []interface{}{blockTag, false}, &block); err != nil {
		return nil, err
	}
	if block == nil {
		return nil, ErrBlockNotFound
	}

	meta := &domain.Metadata{
		BlockNumber: blockNumber,
		Builder:     strings.ToLower(block.Miner),
	}
	if ts, err := parseHexUint64(block.Timestamp); err == nil {
		meta.BlockTimestampMs = int64(ts) * 1000
	}
	if fee, ok := parseHexBig(block.BaseFeePerGas); ok {
		meta.BaseFeeWei = domain.RatFromInt(fee)
	}
	return meta, nil
}

// BlockTraces retrieves the call trees of every transaction in the block.
// The transaction envelope (sender, gas price) comes from the block body;
// gas used comes from the root call frame.
func (c *HTTPClient) BlockTraces(ctx context.Context, blockNumber uint64) ([]*domain.TransactionTrace, error) {
	blockTag := fmt.Sprintf("0x%x", blockNumber)

	var block *rpcBlock
	if err := c.call(ctx, "eth_getBlockByNumber", []interface{}{blockTag, true}, &block); err != nil {
		return nil, err
	}
	if block == nil {
		return nil, ErrBlockNotFound
	}

	var traced []tracedTransaction
	params := []interface{}{
		blockTag,
		map[string]interface{}{"tracer": "callTracer"},
	}
	if err := c.call(ctx, "debug_traceBlockByNumber", params, &traced); err != nil {
		return nil, err
	}

	envelopes := make(map[string]*rpcTransaction, len(block.Transactions))
	for i := range block.Transactions {
		tx := &block.Transactions[i]
		envelopes[strings.ToLower(tx.Hash)] = tx
	}

	traces := make([]*domain.TransactionTrace, 0, len(traced))
	for i, tt := range traced {
		if tt.Result == nil {
			continue
		}

		tx := &domain.TransactionTrace{
			Hash:  strings.ToLower(tt.TxHash),
			Index: i,
		}
		if env, ok := envelopes[tx.Hash]; ok {
			tx.Sender = domain.HexToAddress(env.From)
			if idx, err := parseHexUint64(env.TransactionIndex); err == nil {
				tx.Index = int(idx)
			}
			if price, ok := parseHexBig(env.GasPrice); ok {
				tx.GasPriceWei = price
			}
		}
		if gas, err := parseHexUint64(tt.Result.GasUsed); err == nil {
			tx.GasUsed = gas
		}

		next := uint64(0)
		root := buildFrame(tt.Result, &next)
		if c.filter != nil {
			root = pruneFrame(root, c.filter)
		}
		tx.Frames = root

		traces = append(traces, tx)
	}
	return traces, nil
}

// tracedTransaction is one entry of the debug_traceBlockByNumber result.
type tracedTransaction struct {
	TxHash string    `json:"txHash"`
	Result *rpcFrame `json:"result"`
}

// rpcFrame is the call tracer frame shape.
type rpcFrame struct {
	Type    string     `json:"type"`
	From    string     `json:"from"`
	To      string     `json:"to"`
	Value   string     `json:"value"`
	GasUsed string     `json:"gasUsed"`
	Input   string     `json:"input"`
	Output  string     `json:"output"`
	Error   string     `json:"error"`
	Calls   []rpcFrame `json:"calls"`
}

// rpcBlock is the eth_getBlockByNumber result with full transactions.
type rpcBlock struct {
	Number        string           `json:"number"`
	Timestamp     string           `json:"timestamp"`
	Miner         string           `json:"miner"`
	BaseFeePerGas string           `json:"baseFeePerGas"`
	Transactions  []rpcTransaction `json:"transactions"`
}

type rpcTransaction struct {
	Hash             string `json:"hash"`
	From             string `json:"from"`
	GasPrice         string `json:"gasPrice"`
	TransactionIndex string `json:"transactionIndex"`
}

// buildFrame converts a tracer frame into a domain frame, assigning
// depth-first trace indexes.
func buildFrame(rf *rpcFrame, next *uint64) *domain.CallFrame {
	f := &domain.CallFrame{
		Contract:   domain.HexToAddress(rf.To),
		Caller:     domain.HexToAddress(rf.From),
		Input:      decodeHexBytes(rf.Input),
		Output:     decodeHexBytes(rf.Output),
		Success:    rf.Error == "",
		TraceIndex: *next,
	}
	*next++

	if v, ok := parseHexBig(rf.Value); ok {
		f.Value = v
	}

	for i := range rf.Calls {
		f.Children = append(f.Children, buildFrame(&rf.Calls[i], next))
	}
	return f
}

// pruneFrame drops subtrees that touch no filtered address and move no
// native value. Trace indexes assigned before pruning stay intact, so the
// depth-first ordering invariant survives.
func pruneFrame(f *domain.CallFrame, filter FrameFilter) *domain.CallFrame {
	if f == nil {
		return nil
	}
	kept := f.Children[:0]
	for _, child := range f.Children {
		if pruned := pruneFrame(child, filter); pruned != nil {
			kept = append(kept, pruned)
		}
	}
	f.Children = kept

	if len(f.Children) > 0 || filter(f.Contract) {
		return f
	}
	if f.Value != nil && f.Value.Sign() > 0 {
		return f
	}
	if f.TraceIndex == 0 {
		// Root frame always survives so the transaction keeps its shape.
		return f
	}
	return nil
}

func parseHexUint64(s string) (uint64, error) {
	v, ok := parseHexBig(s)
	if !ok || !v.IsUint64() {
		return 0, fmt.Errorf("invalid hex quantity %q", s)
	}
	return v.Uint64(), nil
}

func parseHexBig(s string) (*big.Int, bool) {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	if s == "" {
		return nil, false
	}
	v, ok := new(big.Int).SetString(s, 16)
	return v, ok
}

func decodeHexBytes(s string) []byte {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	if len(s)%2 == 1 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}
