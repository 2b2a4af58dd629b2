// Package client speaks the match protocol from the player's side. It is
// used by the command-line client and by end-to-end tests.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/cyvasse-online/server/internal/logging"
	"github.com/cyvasse-online/server/pkg/domain"
	"github.com/cyvasse-online/server/pkg/errors"
	"github.com/cyvasse-online/server/pkg/transport/protocol"
	"github.com/cyvasse-online/server/pkg/transport/websocket"
	gorillaws "github.com/gorilla/websocket"
	"go.uber.org/atomic"
)

// Options represents client options
type Options struct {
	Logger *logging.Logger
	// RequestTimeout bounds the wait for a reply. Defaults to 5s.
	RequestTimeout time.Duration
	// Transport configures the underlying websocket pumps.
	Transport websocket.ClientOptions
}

// DefaultOptions returns default client options
func DefaultOptions() Options {
	return Options{
		Logger:         logging.Discard(),
		RequestTimeout: 5 * time.Second,
		Transport:      websocket.DefaultClientOptions(),
	}
}

// Reply is the replyData of a serverReply.
type Reply struct {
	Success      bool            `json:"success"`
	Error        string          `json:"error"`
	ErrorDetails string          `json:"errorDetails"`
	Raw          json.RawMessage `json:"-"`
}

// Decode unmarshals the full replyData into v.
func (r Reply) Decode(v any) error {
	return json.Unmarshal(r.Raw, v)
}

// Err returns the reply's error code as a protocol error, or nil.
func (r Reply) Err() error {
	if r.Success {
		return nil
	}
	return protocol.ErrorForCode(r.Error, r.ErrorDetails)
}

// NotificationHandler receives the notificationData of one notification.
type NotificationHandler func(data map[string]json.RawMessage)

// RelayHandler receives an in-match message from the opponent as sent.
type RelayHandler func(msgType protocol.MsgType, raw []byte)

type inbound struct {
	MsgType          protocol.MsgType           `json:"msgType"`
	MsgID            json.RawMessage            `json:"msgID"`
	ReplyData        json.RawMessage            `json:"replyData"`
	NotificationData map[string]json.RawMessage `json:"notificationData"`
}

// Client represents a match protocol client
type Client struct {
	url     url.URL
	options Options
	logger  *logging.Logger
	ws      *websocket.Client

	nextID  *atomic.Int64
	pending sync.Map // msgID -> chan Reply

	handlersMu    sync.RWMutex
	notifications map[protocol.NotificationType]NotificationHandler
	relay         RelayHandler
}

// New creates a client for the server at serverURL.
func New(serverURL url.URL, options Options) *Client {
	if options.Logger == nil {
		options.Logger = logging.Discard()
	}
	if options.RequestTimeout <= 0 {
		options.RequestTimeout = 5 * time.Second
	}
	if options.Transport.SendBufferSize == 0 {
		options.Transport = websocket.DefaultClientOptions()
	}

	return &Client{
		url:           serverURL,
		options:       options,
		logger:        options.Logger.Component("client"),
		nextID:        atomic.NewInt64(0),
		notifications: make(map[protocol.NotificationType]NotificationHandler),
	}
}

// Connect dials the server and announces the protocol version.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := gorillaws.DefaultDialer.DialContext(ctx, c.url.String(), nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeTransport, "DIAL_ERROR", "failed to connect to server")
	}

	c.ws = websocket.NewClient(domain.NewConnID(), conn, c.logger, c.options.Transport)
	c.ws.Receive(c.handleMessage)
	c.ws.Start()

	version := fmt.Sprintf("%d.0", protocol.MajorVersion)
	reply, err := c.Request(ctx, protocol.ActionInitComm, map[string]any{"protocolVersion": version})
	if err == nil {
		err = reply.Err()
	}
	if err != nil {
		_ = c.Close()
		return err
	}

	c.logger.Info("connected to server", "url", c.url.String())
	return nil
}

// Close closes the connection
func (c *Client) Close() error {
	if c.ws == nil {
		return nil
	}
	err := c.ws.Close()
	c.ws.Wait()
	return err
}

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.ws.Context().Done()
}

// OnNotification registers a handler for one notification type.
func (c *Client) OnNotification(t protocol.NotificationType, handler NotificationHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.notifications[t] = handler
}

// OnRelay registers the handler for chat and game messages from the
// opponent.
func (c *Client) OnRelay(handler RelayHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.relay = handler
}

// SendChat sends a chat message to the opponent.
func (c *Client) SendChat(ctx context.Context, message string) error {
	return c.send(ctx, map[string]any{
		"msgType": protocol.MsgTypeChatMsg,
		"msgData": map[string]any{"message": message},
	})
}

// SendGame sends a game action to the opponent.
func (c *Client) SendGame(ctx context.Context, action string, param any) error {
	return c.send(ctx, map[string]any{
		"msgType": protocol.MsgTypeGameMsg,
		"msgID":   c.nextID.Inc(),
		"msgData": map[string]any{"action": action, "param": param},
	})
}

// Request sends a serverRequest and waits for its reply. Only the first
// reply to a request is returned.
func (c *Client) Request(ctx context.Context, action protocol.Action, param any) (Reply, error) {
	id := c.nextID.Inc()
	key := strconv.FormatInt(id, 10)

	ch := make(chan Reply, 1)
	c.pending.Store(key, ch)
	defer c.pending.Delete(key)

	err := c.send(ctx, map[string]any{
		"msgType":     protocol.MsgTypeServerRequest,
		"msgID":       id,
		"requestData": map[string]any{"action": action, "param": param},
	})
	if err != nil {
		return Reply{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.options.RequestTimeout)
	defer cancel()

	select {
	case r := <-ch:
		return r, nil
	case <-ctx.Done():
		return Reply{}, errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout, "REQUEST_TIMEOUT",
			fmt.Sprintf("no reply to %s", action))
	case <-c.ws.Context().Done():
		return Reply{}, domain.ErrConnectionClosed
	}
}

func (c *Client) send(ctx context.Context, msg map[string]any) error {
	if c.ws == nil {
		return errors.New(errors.ErrorTypeTransport, "NOT_CONNECTED", "not connected to server")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "MARSHAL_ERROR", "failed to marshal message")
	}
	return c.ws.Send(ctx, data)
}

// handleMessage processes incoming messages
func (c *Client) handleMessage(data []byte) error {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Warn("ignoring malformed message from server", "error", err)
		return nil
	}

	switch msg.MsgType {
	case protocol.MsgTypeServerReply:
		c.handleReply(msg)
	case protocol.MsgTypeNotification:
		c.handleNotification(msg.NotificationData)
	default:
		c.handlersMu.RLock()
		relay := c.relay
		c.handlersMu.RUnlock()
		if relay != nil {
			relay(msg.MsgType, data)
		}
	}
	return nil
}

func (c *Client) handleReply(msg inbound) {
	reply := Reply{Raw: msg.ReplyData}
	if err := json.Unmarshal(msg.ReplyData, &reply); err != nil {
		c.logger.Warn("ignoring malformed reply", "error", err)
		return
	}

	v, ok := c.pending.Load(string(msg.MsgID))
	if !ok {
		c.logger.Debug("reply to unknown request", "msg_id", string(msg.MsgID))
		return
	}

	select {
	case v.(chan Reply) <- reply:
	default:
		c.logger.Debug("unexpected extra reply", "msg_id", string(msg.MsgID))
	}
}

func (c *Client) handleNotification(data map[string]json.RawMessage) {
	var t protocol.NotificationType
	if err := json.Unmarshal(data["type"], &t); err != nil {
		c.logger.Warn("notification without type")
		return
	}

	c.handlersMu.RLock()
	handler, ok := c.notifications[t]
	c.handlersMu.RUnlock()

	if ok {
		handler(data)
		return
	}
	c.logger.Debug("no handler for notification", "type", t)
}
