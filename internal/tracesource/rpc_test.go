package tracesource

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"evm-mev-lab/internal/domain"
)

// traceServer answers eth_getBlockByNumber and debug_traceBlockByNumber
// with canned results.
func traceServer(t *testing.T, block interface{}, traced interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}

		var result interface{}
		switch req.Method {
		case "eth_getBlockByNumber":
			result = block
		case "debug_traceBlockByNumber":
			result = traced
		default:
			t.Errorf("unexpected method %s", req.Method)
		}

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  result,
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestHTTPClient_BlockTraces(t *testing.T) {
	block := map[string]interface{}{
		"number":    "0x10",
		"timestamp": "0x65000000",
		"transactions": []map[string]interface{}{
			{
				"hash":             "0xAB01",
				"from":             "0x1000000000000000000000000000000000000001",
				"gasPrice":         "0x3b9aca00",
				"transactionIndex": "0x0",
			},
		},
	}
	traced := []map[string]interface{}{
		{
			"txHash": "0xab01",
			"result": map[string]interface{}{
				"type":    "CALL",
				"from":    "0x1000000000000000000000000000000000000001",
				"to":      "0x2000000000000000000000000000000000000001",
				"gasUsed": "0x5208",
				"input":   "0xa9059cbb",
				"calls": []map[string]interface{}{
					{
						"type":  "CALL",
						"from":  "0x2000000000000000000000000000000000000001",
						"to":    "0x3000000000000000000000000000000000000001",
						"input": "0x",
					},
					{
						"type":  "STATICCALL",
						"from":  "0x2000000000000000000000000000000000000001",
						"to":    "0x3000000000000000000000000000000000000002",
						"input": "0x",
					},
				},
			},
		},
	}

	server := traceServer(t, block, traced)
	defer server.Close()

	client := NewHTTPClient(server.URL)
	traces, err := client.BlockTraces(context.Background(), 16)
	if err != nil {
		t.Fatalf("BlockTraces: %v", err)
	}

	if len(traces) != 1 {
		t.Fatalf("expected 1 trace, got %d", len(traces))
	}

	tx := traces[0]
	if tx.Hash != "0xab01" {
		t.Errorf("hash: got %s", tx.Hash)
	}
	if tx.Sender != domain.HexToAddress("0x1000000000000000000000000000000000000001") {
		t.Errorf("sender: got %s", tx.Sender)
	}
	if tx.GasPriceWei == nil || tx.GasPriceWei.Int64() != 1_000_000_000 {
		t.Errorf("gas price: got %v", tx.GasPriceWei)
	}
	if tx.GasUsed != 21000 {
		t.Errorf("gas used: got %d", tx.GasUsed)
	}

	root := tx.Frames
	if root == nil {
		t.Fatal("expected root frame")
	}
	if root.TraceIndex != 0 || len(root.Children) != 2 {
		t.Fatalf("root: index %d, %d children", root.TraceIndex, len(root.Children))
	}
	if root.Children[0].TraceIndex != 1 || root.Children[1].TraceIndex != 2 {
		t.Errorf("depth-first indexes: got %d, %d", root.Children[0].TraceIndex, root.Children[1].TraceIndex)
	}
	if sel, ok := root.Selector(); !ok || sel != [4]byte{0xa9, 0x05, 0x9c, 0xbb} {
		t.Errorf("selector: got %x ok=%v", sel, ok)
	}

	if err := domain.ValidateTrace(tx); err != nil {
		t.Errorf("ValidateTrace: %v", err)
	}
}

func TestHTTPClient_BlockTraces_NotFound(t *testing.T) {
	server := traceServer(t, nil, nil)
	defer server.Close()

	client := NewHTTPClient(server.URL)
	_, err := client.BlockTraces(context.Background(), 99)
	if !errors.Is(err, ErrBlockNotFound) {
		t.Errorf("expected ErrBlockNotFound, got %v", err)
	}
}

func TestHTTPClient_BlockTraces_FilterPrunesSubtrees(t *testing.T) {
	pool := "0x2000000000000000000000000000000000000001"
	block := map[string]interface{}{
		"number":       "0x10",
		"transactions": []map[string]interface{}{},
	}
	traced := []map[string]interface{}{
		{
			"txHash": "0xab01",
			"result": map[string]interface{}{
				"type": "CALL",
				"from": "0x1000000000000000000000000000000000000001",
				"to":   "0x9000000000000000000000000000000000000001",
				"calls": []map[string]interface{}{
					{
						"type": "CALL",
						"from": "0x9000000000000000000000000000000000000001",
						"to":   pool,
					},
					{
						"type": "CALL",
						"from": "0x9000000000000000000000000000000000000001",
						"to":   "0x9000000000000000000000000000000000000002",
					},
				},
			},
		},
	}

	server := traceServer(t, block, traced)
	defer server.Close()

	filter := func(a domain.Address) bool { return a == domain.HexToAddress(pool) }
	client := NewHTTPClient(server.URL, WithFrameFilter(filter))

	traces, err := client.BlockTraces(context.Background(), 16)
	if err != nil {
		t.Fatalf("BlockTraces: %v", err)
	}
	if len(traces) != 1 {
		t.Fatalf("expected 1 trace, got %d", len(traces))
	}

	root := traces[0].Frames
	if root == nil {
		t.Fatal("root frame must survive pruning")
	}
	if len(root.Children) != 1 {
		t.Fatalf("expected 1 surviving child, got %d", len(root.Children))
	}
	if root.Children[0].Contract != domain.HexToAddress(pool) {
		t.Errorf("surviving child: got %s", root.Children[0].Contract)
	}
	// Indexes assigned before pruning keep the depth-first ordering.
	if err := domain.ValidateTrace(traces[0]); err != nil {
		t.Errorf("ValidateTrace after pruning: %v", err)
	}
}

func TestHTTPClient_LatestBlock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)

		if req.Method != "eth_blockNumber" {
			t.Errorf("expected method eth_blockNumber, got %s", req.Method)
		}

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  "0x112a880",
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	n, err := client.LatestBlock(context.Background())
	if err != nil {
		t.Fatalf("LatestBlock: %v", err)
	}
	if n != 18_000_000 {
		t.Errorf("expected 18000000, got %d", n)
	}
}

func TestHTTPClient_RetriesOnRateLimit(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)

		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  "0x10",
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, WithRetryDelay(10*time.Millisecond))
	n, err := client.LatestBlock(context.Background())
	if err != nil {
		t.Fatalf("LatestBlock: %v", err)
	}
	if n != 16 {
		t.Errorf("expected 16, got %d", n)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
}

func TestHTTPClient_ExhaustedRetriesAreTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL,
		WithMaxRetries(1),
		WithRetryDelay(5*time.Millisecond),
	)
	_, err := client.LatestBlock(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestHTTPClient_BlockHeader(t *testing.T) {
	block := map[string]interface{}{
		"number":        "0x112a880",
		"timestamp":     "0x65000000",
		"miner":         "0x4000000000000000000000000000000000000001",
		"baseFeePerGas": "0x5d21dba00",
	}
	server := traceServer(t, block, nil)
	defer server.Close()

	client := NewHTTPClient(server.URL)
	meta, err := client.BlockHeader(context.Background(), 18_000_000)
	if err != nil {
		t.Fatalf("BlockHeader failed: %v", err)
	}

	if meta.BlockNumber != 18_000_000 {
		t.Errorf("block number: got %d", meta.BlockNumber)
	}
	if meta.BlockTimestampMs != 0x65000000*1000 {
		t.Errorf("timestamp: got %d", meta.BlockTimestampMs)
	}
	if meta.Builder != "0x4000000000000000000000000000000000000001" {
		t.Errorf("builder: got %s", meta.Builder)
	}
	if meta.BaseFeeWei == nil || meta.BaseFeeWei.Cmp(domain.NewRat(25_000_000_000, 1)) != 0 {
		t.Errorf("base fee: got %v", meta.BaseFeeWei)
	}
}

func TestHTTPClient_BlockHeader_NotFound(t *testing.T) {
	server := traceServer(t, nil, nil)
	defer server.Close()

	client := NewHTTPClient(server.URL)
	_, err := client.BlockHeader(context.Background(), 99)
	if !errors.Is(err, ErrBlockNotFound) {
		t.Errorf("expected ErrBlockNotFound, got %v", err)
	}
}
