package tracesource

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WSConfig configures the head subscription client.
type WSConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// WSHeadClient implements HeadSource over an eth_subscribe newHeads
// subscription. The subscription is re-established after reconnects.
type WSHeadClient struct {
	endpoint string
	config   WSConfig

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// subID guards dispatch; zero means no confirmed subscription.
	subID   string
	subIDMu sync.RWMutex

	heads   chan Head
	pending chan string

	done chan struct{}
	wg   sync.WaitGroup

	reconnecting atomic.Bool
}

// NewWSHeadClient creates a head subscription client and connects to the
// endpoint.
func NewWSHeadClient(ctx context.Context, endpoint string, config *WSConfig) (*WSHeadClient, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}

	c := &WSHeadClient{
		endpoint: endpoint,
		config:   cfg,
		pending:  make(chan string, 1),
		done:     make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(1)
	go c.readLoop()

	c.wg.Add(1)
	go c.pingLoop()

	return c, nil
}

// connect establishes the WebSocket connection.
func (c *WSHeadClient) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.conn = conn
	return nil
}

// SubscribeNewHeads subscribes to head announcements. Only one
// subscription per client.
func (c *WSHeadClient) SubscribeNewHeads(ctx context.Context) (<-chan Head, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("client closed")
	}
	if c.heads != nil {
		return nil, fmt.Errorf("already subscribed")
	}

	subID, err := c.subscribeInternal(ctx)
	if err != nil {
		return nil, err
	}

	c.subIDMu.Lock()
	c.subID = subID
	c.subIDMu.Unlock()

	// Buffer absorbs bursts; dispatch blocks rather than dropping heads.
	c.heads = make(chan Head, 1024)
	return c.heads, nil
}

// subscribeInternal sends the subscribe request and waits for the
// subscription ID.
func (c *WSHeadClient) subscribeInternal(ctx context.Context) (string, error) {
	reqID := c.requestID.Add(1)
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "eth_subscribe",
		Params:  []interface{}{"newHeads"},
	}

	c.connMu.Lock()
	if c.conn == nil {
		c.connMu.Unlock()
		return "", fmt.Errorf("not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	err := c.conn.WriteJSON(req)
	c.connMu.Unlock()

	if err != nil {
		return "", fmt.Errorf("write subscribe: %w", err)
	}

	select {
	case subID := <-c.pending:
		return subID, nil
	case <-time.After(30 * time.Second):
		return "", fmt.Errorf("subscription timeout after 30s")
	case <-c.done:
		return "", fmt.Errorf("client closed")
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Close closes the WebSocket connection.
func (c *WSHeadClient) Close() error {
	if c.closed.Swap(true) {
		return nil // Already closed
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.wg.Wait()

	if c.heads != nil {
		close(c.heads)
	}
	return nil
}

// readLoop reads messages and dispatches heads, reconnecting with
// exponential backoff on connection failure.
func (c *WSHeadClient) readLoop() {
	defer c.wg.Done()

	reconnectDelay := c.config.ReconnectDelay

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}

			if !c.reconnecting.Swap(true) {
				go c.reconnect(reconnectDelay)
			}

			reconnectDelay = reconnectDelay * 2
			if reconnectDelay > c.config.MaxReconnectDelay {
				reconnectDelay = c.config.MaxReconnectDelay
			}

			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		// Reset delay on successful read
		reconnectDelay = c.config.ReconnectDelay

		c.handleMessage(message)
	}
}

// reconnect re-establishes the connection and the head subscription.
func (c *WSHeadClient) reconnect(delay time.Duration) {
	defer c.reconnecting.Store(false)

	if c.closed.Load() {
		return
	}

	select {
	case <-c.done:
		return
	case <-time.After(delay):
	}

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.connect(ctx); err != nil {
		// Reconnect failed, will retry on next read error
		return
	}

	if c.heads == nil {
		return
	}

	subID, err := c.subscribeInternal(ctx)
	if err != nil {
		return
	}

	c.subIDMu.Lock()
	c.subID = subID
	c.subIDMu.Unlock()
}

// handleMessage processes an incoming WebSocket message.
func (c *WSHeadClient) handleMessage(message []byte) {
	// Subscription confirmation carries a string result.
	var resp wsSubscribeResponse
	if err := json.Unmarshal(message, &resp); err == nil && resp.Result != "" && resp.ID > 0 {
		select {
		case c.pending <- resp.Result:
		default:
		}
		return
	}

	var notif wsHeadNotification
	if err := json.Unmarshal(message, &notif); err != nil || notif.Method != "eth_subscription" {
		return
	}
	if notif.Params == nil {
		return
	}

	c.subIDMu.RLock()
	subID := c.subID
	c.subIDMu.RUnlock()
	if notif.Params.Subscription != subID || c.heads == nil {
		return
	}

	number, err := parseHexUint64(notif.Params.Result.Number)
	if err != nil {
		return
	}
	head := Head{Number: number}
	if ts, err := parseHexUint64(notif.Params.Result.Timestamp); err == nil {
		head.TimestampMs = int64(ts) * 1000
	}

	// Block until we can send - never drop heads
	select {
	case c.heads <- head:
	case <-c.done:
	}
}

// pingLoop sends periodic ping frames to keep the connection alive.
func (c *WSHeadClient) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					// Connection might be dead, reader will handle reconnect
				}
			}
			c.connMu.Unlock()
		}
	}
}

// WebSocket message types

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsSubscribeResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Result  string `json:"result"` // subscription ID
}

type wsHeadNotification struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  *wsHeadParams `json:"params"`
}

type wsHeadParams struct {
	Subscription string       `json:"subscription"`
	Result       wsHeadResult `json:"result"`
}

type wsHeadResult struct {
	Number    string `json:"number"`
	Timestamp string `json:"timestamp"`
}
