package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"pairflow/internal/market"
)

// DefaultBaseURL is the combined-stream endpoint.
const DefaultBaseURL = "wss://stream.binance.com:9443/stream"

const (
	reconnectBase = time.Second
	reconnectMax  = 30 * time.Second
)

// TickHandler receives every well-formed trade tick in arrival order.
type TickHandler func(market.Tick)

// WSClient maintains a websocket subscription to trade streams and routes
// decoded ticks to a handler. Reconnects with exponential backoff on any
// read or dial failure.
type WSClient struct {
	baseURL string
	logger  *zap.Logger

	mu      sync.Mutex
	symbols []string
	conn    *websocket.Conn

	handler   TickHandler
	connected atomic.Bool
	swapped   atomic.Bool // set when symbols change, forces a resubscribe
}

// NewWSClient creates a client for the given symbols. Pass DefaultBaseURL
// unless testing against a local endpoint.
func NewWSClient(baseURL string, symbols []string, logger *zap.Logger) *WSClient {
	return &WSClient{
		baseURL: baseURL,
		symbols: append([]string(nil), symbols...),
		logger:  logger,
	}
}

// SetTickHandler sets the function to handle incoming ticks. Must be called
// before Run.
func (c *WSClient) SetTickHandler(h TickHandler) {
	c.handler = h
}

// IsConnected reports whether a live connection currently exists.
func (c *WSClient) IsConnected() bool {
	return c.connected.Load()
}

// UpdateSymbols replaces the subscribed symbol set. The active connection is
// closed so the read loop reconnects against the new stream path.
func (c *WSClient) UpdateSymbols(symbols []string) {
	c.mu.Lock()
	c.symbols = append([]string(nil), symbols...)
	conn := c.conn
	c.mu.Unlock()

	c.swapped.Store(true)
	if conn != nil {
		_ = conn.Close()
	}
}

// Run connects and consumes trade events until the context is canceled.
// Connection failures are retried indefinitely with backoff.
func (c *WSClient) Run(ctx context.Context) error {
	backoff := reconnectBase
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := c.connect(ctx); err != nil {
			c.logger.Error("websocket dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleepCtx(ctx, backoff) {
				return ctx.Err()
			}
			backoff = min(backoff*2, reconnectMax)
			continue
		}
		backoff = reconnectBase

		c.readLoop(ctx)
		c.connected.Store(false)
		if c.swapped.CompareAndSwap(true, false) {
			c.logger.Info("symbol set changed, reconnecting")
			continue
		}
		if ctx.Err() == nil {
			c.logger.Warn("websocket connection lost, reconnecting")
		}
	}
}

// Close tears down the current connection, unblocking the read loop.
func (c *WSClient) Close() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (c *WSClient) connect(ctx context.Context) error {
	c.mu.Lock()
	path := StreamPath(c.symbols)
	c.mu.Unlock()
	if path == "" {
		return fmt.Errorf("no symbols to subscribe")
	}

	url := c.baseURL + "?streams=" + path
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = conn
	c.mu.Unlock()

	c.connected.Store(true)
	c.logger.Info("websocket connected", zap.String("url", url))
	return nil
}

func (c *WSClient) readLoop(ctx context.Context) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !c.swapped.Load() {
				c.logger.Error("websocket read error", zap.Error(err))
			}
			return
		}
		c.dispatch(msg)
	}
}

func (c *WSClient) dispatch(msg []byte) {
	var env StreamEnvelope
	if err := json.Unmarshal(msg, &env); err != nil {
		c.logger.Warn("malformed stream message", zap.Error(err))
		return
	}
	var ev TradeEvent
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		c.logger.Warn("malformed trade event", zap.String("stream", env.Stream), zap.Error(err))
		return
	}
	if ev.EventType != "trade" {
		return
	}
	tick, err := ev.Tick()
	if err != nil {
		c.logger.Warn("unparseable trade fields", zap.String("symbol", ev.Symbol), zap.Error(err))
		return
	}
	if c.handler != nil {
		c.handler(tick)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
