package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/cyvasse-online/server/internal/logging"
	"github.com/cyvasse-online/server/pkg/domain"
	"github.com/gorilla/websocket"
)

// ClientOptions represents websocket client options
type ClientOptions struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	// SendBufferSize is the number of outbound messages a client may have
	// pending before it is considered too slow and disconnected.
	SendBufferSize int
}

// DefaultClientOptions returns default client options
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  64 * 1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
	}
}

// Client is one websocket connection. It implements domain.Conn.
//
// A read pump hands inbound frames to the handler in arrival order and a
// write pump drains the send buffer. Close may be called from any
// goroutine, including the pumps themselves.
type Client struct {
	id        domain.ConnID
	conn      *websocket.Conn
	ctx       context.Context
	cancel    context.CancelFunc
	logger    *logging.Logger
	options   ClientOptions
	sendChan  chan []byte
	handler   domain.MessageHandler
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewClient creates a new WebSocket client
func NewClient(id domain.ConnID, conn *websocket.Conn, logger *logging.Logger, options ClientOptions) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		id:       id,
		conn:     conn,
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger.WithFields(map[string]any{"conn_id": id}),
		options:  options,
		sendChan: make(chan []byte, options.SendBufferSize),
	}
}

// ID implements domain.Conn
func (c *Client) ID() domain.ConnID {
	return c.id
}

// Send implements domain.Conn. It never waits for the network: a full
// buffer is reported as domain.ErrSendBufferFull.
func (c *Client) Send(ctx context.Context, message []byte) error {
	if c.ctx.Err() != nil {
		return domain.ErrConnectionClosed
	}

	select {
	case c.sendChan <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return domain.ErrConnectionClosed
	default:
		return domain.ErrSendBufferFull
	}
}

// Receive sets the handler for inbound messages. Call before Start.
func (c *Client) Receive(handler domain.MessageHandler) {
	c.handler = handler
}

// Close implements domain.Conn. The send channel is left open; the write
// pump stops on the cancelled context instead.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.logger.Debug("closing client connection")
		c.cancel()

		deadline := time.Now().Add(time.Second)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)

		err = c.conn.Close()
	})
	return err
}

// Context implements domain.Conn
func (c *Client) Context() context.Context {
	return c.ctx
}

// Start starts the client read and write pumps
func (c *Client) Start() {
	c.wg.Add(2)
	go c.readPump()
	go c.writePump()
}

// Wait blocks until both pumps have returned.
func (c *Client) Wait() {
	c.wg.Wait()
}

// readPump pumps messages from the websocket connection
func (c *Client) readPump() {
	defer c.wg.Done()
	defer func() {
		c.logger.Debug("read pump stopped")
		_ = c.Close()
	}()

	c.conn.SetReadLimit(c.options.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.options.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.options.ReadTimeout))
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read error", "error", err)
			}
			return
		}

		if messageType != websocket.TextMessage {
			continue
		}

		if c.handler == nil {
			continue
		}
		if err := c.handler(message); err != nil {
			c.logger.Warn("message handler error", "error", err)
			return
		}
	}
}

// writePump pumps messages to the websocket connection
func (c *Client) writePump() {
	defer c.wg.Done()
	defer func() {
		c.logger.Debug("write pump stopped")
		_ = c.Close()
	}()

	ticker := time.NewTicker(c.options.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return

		case message := <-c.sendChan:
			if err := c.write(websocket.TextMessage, message); err != nil {
				c.logger.Debug("websocket write error", "error", err)
				return
			}

			// Drain any queued messages
			n := len(c.sendChan)
			for range n {
				if err := c.write(websocket.TextMessage, <-c.sendChan); err != nil {
					c.logger.Debug("websocket write error", "error", err)
					return
				}
			}

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("websocket ping error", "error", err)
				return
			}
		}
	}
}

func (c *Client) write(messageType int, data []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.options.WriteTimeout))
	return c.conn.WriteMessage(messageType, data)
}
