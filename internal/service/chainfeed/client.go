package chainfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"QuantLens/internal/domain/models"
	drepo "QuantLens/internal/domain/repository"
	applogger "QuantLens/pkg/logger"
)

// Client implements a ChainStream backed by a websocket option-chain feed.
// The feed pushes {"type":"chain","data":<ChainSnapshot>} frames per subscribed underlying.
type Client struct {
	apiKey         string
	websocketURL   string
	underlyings    []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	l              *applogger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
}

var _ drepo.ChainStream = (*Client)(nil)

// New creates a chain feed client.
func New(apiKey, websocketURL string, underlyings []string, reconnectDelay, pingInterval time.Duration, l *applogger.Logger) *Client {
	if l == nil {
		l = applogger.Nop()
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Client{
		apiKey:         apiKey,
		websocketURL:   websocketURL,
		underlyings:    underlyings,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		l:              l.With("chainfeed"),
	}
}

// Connect establishes the websocket connection.
func (c *Client) Connect(ctx context.Context) error {
	u := c.websocketURL
	if c.apiKey != "" {
		u = fmt.Sprintf("%s?token=%s", c.websocketURL, url.QueryEscape(c.apiKey))
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("chainfeed connect: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	c.l.Info("connected", applogger.String("url", c.websocketURL))
	return nil
}

type subscribeMsg struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
}

// Subscribe subscribes to the configured underlyings.
func (c *Client) Subscribe(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || !c.connected {
		return fmt.Errorf("chainfeed not connected")
	}
	for _, s := range c.underlyings {
		if err := c.conn.WriteJSON(subscribeMsg{Type: "subscribe", Symbol: s}); err != nil {
			return fmt.Errorf("subscribe %s: %w", s, err)
		}
		c.l.Debug("subscribed", applogger.String("underlying", s))
	}
	return nil
}

type feedMessage struct {
	Type string               `json:"type"`
	Data models.ChainSnapshot `json:"data"`
}

// Read streams chain snapshots and errors until ctx ends or the connection drops.
func (c *Client) Read(ctx context.Context) (<-chan *models.ChainSnapshot, <-chan error) {
	out := make(chan *models.ChainSnapshot, 64)
	errCh := make(chan error, 1)
	done := make(chan struct{})

	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				c.mu.Lock()
				if c.conn != nil {
					_ = c.conn.WriteMessage(websocket.PingMessage, nil)
				}
				c.mu.Unlock()
			}
		}
	}()

	go func() {
		defer close(done)
		defer close(out)
		defer close(errCh)
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			errCh <- fmt.Errorf("chainfeed conn nil")
			return
		}
		for {
			if ctx.Err() != nil {
				return
			}
			_, b, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					errCh <- fmt.Errorf("chainfeed read: %w", err)
				}
				return
			}
			var m feedMessage
			if err := json.Unmarshal(b, &m); err != nil || m.Type != "chain" {
				continue
			}
			if m.Data.Underlying == "" || len(m.Data.Contracts) == 0 {
				continue
			}
			snap := m.Data
			if snap.AsOf.IsZero() {
				snap.AsOf = time.Now().UTC()
			}
			select {
			case out <- &snap:
			case <-ctx.Done():
				return
			default:
				c.l.Warn("dropping snapshot on backpressure", applogger.String("underlying", snap.Underlying))
			}
		}
	}()

	return out, errCh
}

// Reconnect closes and reconnects after the configured delay.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	select {
	case <-time.After(c.reconnectDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the websocket connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}
