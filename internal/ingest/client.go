package ingest

import (
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Client handles the websocket connection to the upstream candle stream
// and message routing.
type Client struct {
	url            string
	topics         []string
	reconnectDelay time.Duration
	conn           *websocket.Conn
	handler        func([]byte)
	logger         *zap.Logger
}

// NewClient creates a new upstream client subscribing to the given
// candle topics.
func NewClient(url string, topics []string, reconnectDelay time.Duration, logger *zap.Logger) *Client {
	if reconnectDelay <= 0 {
		reconnectDelay = 3 * time.Second
	}
	return &Client{
		url:            url,
		topics:         topics,
		reconnectDelay: reconnectDelay,
		logger:         logger,
	}
}

// Topic builds the subscription topic for one series.
func Topic(symbol, interval string) string {
	return fmt.Sprintf("candle.%s.%s", interval, symbol)
}

// SetMessageHandler sets the function to handle incoming messages.
func (c *Client) SetMessageHandler(h func([]byte)) {
	c.handler = h
}

// Connect establishes the websocket connection and subscribes to the
// configured candle topics. It does not start the listener.
func (c *Client) Connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		c.logger.Error("failed to connect to upstream", zap.String("url", c.url), zap.Error(err))
		return err
	}
	c.conn = conn
	c.logger.Info("upstream connected", zap.String("url", c.url))

	subMsg := map[string]interface{}{
		"op":   "subscribe",
		"args": c.topics,
	}

	if err := conn.WriteJSON(subMsg); err != nil {
		c.logger.Error("failed to send subscription", zap.Error(err))
		return err
	}

	return nil
}

// Listen reads messages until the connection drops, then reconnects and
// resubscribes indefinitely.
func (c *Client) Listen() {
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			c.logger.Error("upstream read error", zap.Error(err))

			for {
				time.Sleep(c.reconnectDelay)
				if err := c.reconnectAndResubscribe(); err != nil {
					c.logger.Warn("retrying upstream reconnect", zap.Error(err))
					continue
				}
				c.logger.Info("upstream reconnected")
				break
			}
			continue // Start listening again with the new connection
		}

		if c.handler != nil {
			c.handler(msg)
		}
	}
}

func (c *Client) reconnectAndResubscribe() error {
	newConn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		return err
	}

	// Close the old connection if it exists
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = newConn

	subMsg := map[string]interface{}{
		"op":   "subscribe",
		"args": c.topics,
	}

	if err := c.conn.WriteJSON(subMsg); err != nil {
		return fmt.Errorf("upstream subscribe failed: %w", err)
	}

	return nil
}
