// Package chain maintains the live log subscription against the chain RPC
// node and waits on transaction finality.
package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/anastasiarods/moxie-alerts-bot/internal/logger"
)

var (
	ErrNotConnected = errors.New("websocket not connected")
	ErrMaxRetries   = errors.New("max reconnect retries exceeded")
	ErrRPC          = errors.New("rpc call failed")
)

// ClientConfig holds WebSocket client configuration
type ClientConfig struct {
	URL               string
	ReconnectInterval time.Duration
	MaxRetries        int
	WriteTimeout      time.Duration
	ReadTimeout       time.Duration
}

// LogEvent is a single matched log delivered by the node
type LogEvent struct {
	SubscriptionID  string
	TransactionHash string
}

// LogHandler is called for each matched log
type LogHandler func(event *LogEvent)

// rpcRequest is a JSON-RPC 2.0 request frame
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// rpcResponse is a JSON-RPC 2.0 response frame
type rpcResponse struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// rpcNotification is an eth_subscription push frame
type rpcNotification struct {
	Method string `json:"method"`
	Params struct {
		Subscription string `json:"subscription"`
		Result       struct {
			TransactionHash string `json:"transactionHash"`
		} `json:"result"`
	} `json:"params"`
}

// Client is a WebSocket JSON-RPC client speaking the eth_subscribe protocol
type Client struct {
	config  ClientConfig
	log     logger.Logger
	handler LogHandler

	mu           sync.RWMutex
	conn         *websocket.Conn
	isConnected  bool
	retryCount   int
	reconnecting bool
	done         chan struct{}

	requestID uint64
	pendingMu sync.Mutex
	pending   map[uint64]chan *rpcResponse

	// onReconnect is invoked after a successful transport reconnect; the old
	// server-side subscription does not survive the reconnect
	onReconnect func()
}

// NewClient creates a new WebSocket client
func NewClient(cfg ClientConfig, log logger.Logger) *Client {
	if cfg.ReconnectInterval == 0 {
		cfg.ReconnectInterval = 5 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	return &Client{
		config:  cfg,
		log:     log.With(logger.F("component", "chain-ws")),
		done:    make(chan struct{}),
		pending: make(map[uint64]chan *rpcResponse),
	}
}

// SetHandler sets the log handler
func (c *Client) SetHandler(handler LogHandler) {
	c.handler = handler
}

// SetReconnectHook sets the callback invoked after transport reconnects
func (c *Client) SetReconnectHook(fn func()) {
	c.onReconnect = fn
}

// Start connects and begins reading messages
func (c *Client) Start(ctx context.Context) error {
	if err := c.connect(ctx); err != nil {
		return err
	}

	go c.readLoop(ctx)

	return nil
}

// connect performs the actual connection
func (c *Client) connect(ctx context.Context) error {
	c.log.Info("connecting to rpc websocket", logger.F("url", c.config.URL))

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.config.URL, nil)
	if err != nil {
		c.log.Error("failed to connect to rpc websocket",
			logger.F("error", err),
			logger.F("url", c.config.URL),
		)
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.isConnected = true
	c.retryCount = 0
	c.mu.Unlock()

	c.log.Info("rpc websocket connected", logger.F("url", c.config.URL))
	return nil
}

// readLoop continuously reads messages from the WebSocket
func (c *Client) readLoop(ctx context.Context) {
	defer func() {
		c.mu.Lock()
		c.isConnected = false
		c.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("context cancelled, stopping read loop")
			return
		case <-c.done:
			return
		default:
		}

		if err := c.readMessage(); err != nil {
			select {
			case <-ctx.Done():
				return
			case <-c.done:
				return
			default:
			}

			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Info("rpc websocket closed normally")
				return
			}

			c.log.Error("read error", logger.F("error", err))

			if err := c.reconnect(ctx); err != nil {
				c.log.Error("reconnection failed", logger.F("error", err))
				return
			}

			// The hook issues RPC calls whose responses only this goroutine
			// can deliver, so it must not run on the read loop
			if c.onReconnect != nil {
				go c.onReconnect()
			}
		}
	}
}

// readMessage reads a single frame and routes it to a pending call or the
// log handler
func (c *Client) readMessage() error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}

	if c.config.ReadTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout)); err != nil {
			return err
		}
	}

	_, message, err := conn.ReadMessage()
	if err != nil {
		return err
	}

	// Subscription pushes carry a method field, call responses carry an id
	var notif rpcNotification
	if err := json.Unmarshal(message, &notif); err == nil && notif.Method == "eth_subscription" {
		if notif.Params.Result.TransactionHash == "" {
			c.log.Debug("subscription push without transaction hash, skipping")
			return nil
		}

		c.log.Debug("log received",
			logger.F("subscription", notif.Params.Subscription),
			logger.F("tx_hash", notif.Params.Result.TransactionHash),
		)

		if c.handler != nil {
			c.handler(&LogEvent{
				SubscriptionID:  notif.Params.Subscription,
				TransactionHash: notif.Params.Result.TransactionHash,
			})
		}
		return nil
	}

	var resp rpcResponse
	if err := json.Unmarshal(message, &resp); err != nil {
		c.log.Warn("failed to parse message",
			logger.F("error", err),
			logger.F("message", string(message)),
		)
		return nil // Don't return error for parse failures
	}

	c.pendingMu.Lock()
	ch, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
	}
	c.pendingMu.Unlock()

	if ok {
		ch <- &resp
	} else {
		c.log.Debug("response with no pending call", logger.F("id", resp.ID))
	}

	return nil
}

// call performs a JSON-RPC request and waits for the matching response
func (c *Client) call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	c.mu.RLock()
	conn := c.conn
	isConnected := c.isConnected
	c.mu.RUnlock()

	if !isConnected || conn == nil {
		return nil, ErrNotConnected
	}

	id := atomic.AddUint64(&c.requestID, 1)
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	}

	respCh := make(chan *rpcResponse, 1)
	c.pendingMu.Lock()
	c.pending[id] = respCh
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	message, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	if err := conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout)); err != nil {
		return nil, err
	}

	if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
		c.log.Error("failed to send rpc request",
			logger.F("method", method),
			logger.F("error", err),
		)
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case resp := <-respCh:
		if resp.Error != nil {
			return nil, fmt.Errorf("%w: %s (code %d)", ErrRPC, resp.Error.Message, resp.Error.Code)
		}
		return resp.Result, nil
	}
}

// SubscribeLogs subscribes to logs for the given contract and topics and
// returns the server-assigned subscription id
func (c *Client) SubscribeLogs(ctx context.Context, address string, topics []string) (string, error) {
	filter := map[string]any{
		"address": address,
		"topics":  topics,
	}

	result, err := c.call(ctx, "eth_subscribe", []any{"logs", filter})
	if err != nil {
		return "", err
	}

	var subID string
	if err := json.Unmarshal(result, &subID); err != nil {
		return "", fmt.Errorf("unexpected eth_subscribe result: %w", err)
	}

	c.log.Info("log subscription established",
		logger.F("subscription", subID),
		logger.F("address", address),
		logger.F("topics", len(topics)),
	)

	return subID, nil
}

// Unsubscribe cancels a server-side subscription
func (c *Client) Unsubscribe(ctx context.Context, subID string) error {
	result, err := c.call(ctx, "eth_unsubscribe", []any{subID})
	if err != nil {
		return err
	}

	var ok bool
	if err := json.Unmarshal(result, &ok); err == nil && !ok {
		c.log.Warn("node did not acknowledge unsubscribe", logger.F("subscription", subID))
	}

	c.log.Debug("subscription cancelled", logger.F("subscription", subID))
	return nil
}

// reconnect attempts to reconnect to the WebSocket
func (c *Client) reconnect(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return nil
	default:
	}

	c.mu.Lock()
	if c.reconnecting {
		c.mu.Unlock()
		return nil
	}
	c.reconnecting = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.reconnecting = false
		c.mu.Unlock()
	}()

	for {
		c.mu.Lock()
		c.retryCount++
		retryCount := c.retryCount
		c.mu.Unlock()

		if c.config.MaxRetries > 0 && retryCount > c.config.MaxRetries {
			return ErrMaxRetries
		}

		c.log.Info("attempting reconnection",
			logger.F("attempt", retryCount),
			logger.F("max_retries", c.config.MaxRetries),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return nil
		case <-time.After(c.config.ReconnectInterval):
			if err := c.connect(ctx); err != nil {
				c.log.Warn("reconnection attempt failed",
					logger.F("error", err),
					logger.F("attempt", retryCount),
				)
				continue
			}
			return nil
		}
	}
}

// Close closes the WebSocket connection gracefully
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
	default:
		close(c.done)
	}

	if c.conn != nil {
		_ = c.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		err := c.conn.Close()
		c.conn = nil
		c.isConnected = false
		return err
	}

	return nil
}

// IsConnected returns the connection status
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}
