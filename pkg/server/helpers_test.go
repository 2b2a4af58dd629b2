package server_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/cyvasse-online/server/internal/logging"
	"github.com/cyvasse-online/server/pkg/domain"
	"github.com/cyvasse-online/server/pkg/server"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

// fakeConn records everything sent to it.
type fakeConn struct {
	id     domain.ConnID
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	msgs   []map[string]any
	closed bool
	// onSend runs inside Send for every recorded message, after the
	// message is recorded and without mu held.
	onSend func(msg map[string]any)
}

func newFakeConn() *fakeConn {
	ctx, cancel := context.WithCancel(context.Background())
	return &fakeConn{id: domain.NewConnID(), ctx: ctx, cancel: cancel}
}

func (c *fakeConn) ID() domain.ConnID { return c.id }

func (c *fakeConn) Send(_ context.Context, message []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.ErrConnectionClosed
	}
	var m map[string]any
	if err := json.Unmarshal(message, &m); err != nil {
		c.mu.Unlock()
		return err
	}
	c.msgs = append(c.msgs, m)
	hook := c.onSend
	c.mu.Unlock()

	if hook != nil {
		hook(m)
	}
	return nil
}

// hookSends installs fn as the connection's onSend hook.
func (c *fakeConn) hookSends(fn func(msg map[string]any)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSend = fn
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.cancel()
	return nil
}

func (c *fakeConn) Context() context.Context { return c.ctx }

func (c *fakeConn) messages() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]map[string]any(nil), c.msgs...)
}

func (c *fakeConn) matching(pred func(map[string]any) bool) []map[string]any {
	var out []map[string]any
	for _, m := range c.messages() {
		if pred(m) {
			out = append(out, m)
		}
	}
	return out
}

func (c *fakeConn) notifications(typ string) []map[string]any {
	return c.matching(func(m map[string]any) bool {
		if m["msgType"] != "notification" {
			return false
		}
		data, _ := m["notificationData"].(map[string]any)
		return data["type"] == typ
	})
}

func (c *fakeConn) ofType(msgType string) []map[string]any {
	return c.matching(func(m map[string]any) bool { return m["msgType"] == msgType })
}

// harness drives an engine through fake connections.
type harness struct {
	t      *testing.T
	engine *server.Engine
	nextID int
}

func newHarness(t *testing.T, opts ...func(*server.Options)) *harness {
	t.Helper()

	o := server.Options{
		Workers: 4,
		Logger:  logging.Discard(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	e := server.New(o)
	e.Start(context.Background())
	t.Cleanup(e.Stop)

	return &harness{t: t, engine: e}
}

func (h *harness) connect() *fakeConn {
	c := newFakeConn()
	h.engine.Connect(c)
	return c
}

func (h *harness) deliver(c *fakeConn, msg any) {
	h.t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(h.t, err)
	require.NoError(h.t, h.engine.Deliver(c.ID(), data))
}

// request sends a serverRequest and returns its msgID.
func (h *harness) request(c *fakeConn, action string, param any) int {
	h.nextID++
	h.deliver(c, map[string]any{
		"msgType":     "serverRequest",
		"msgID":       h.nextID,
		"requestData": map[string]any{"action": action, "param": param},
	})
	return h.nextID
}

// reply waits for the replyData answering msgID.
func (h *harness) reply(c *fakeConn, msgID int) map[string]any {
	h.t.Helper()

	var found map[string]any
	require.Eventually(h.t, func() bool {
		for _, m := range c.ofType("serverReply") {
			if m["msgID"] == float64(msgID) {
				found, _ = m["replyData"].(map[string]any)
				return true
			}
		}
		return false
	}, waitFor, 5*time.Millisecond, "no reply to msgID %d", msgID)
	return found
}

// call sends a request and waits for its reply.
func (h *harness) call(c *fakeConn, action string, param any) map[string]any {
	h.t.Helper()
	return h.reply(c, h.request(c, action, param))
}

// create opens a match with c seated as color.
func (h *harness) create(c *fakeConn, color string, random, public bool) (matchID, playerID string) {
	h.t.Helper()
	r := h.call(c, "createGame", map[string]any{
		"ruleSet": "mikelepage",
		"color":   color,
		"random":  random,
		"public":  public,
	})
	require.Equal(h.t, true, r["success"], "createGame failed: %v", r)
	return r["matchID"].(string), r["playerID"].(string)
}

// waitNotifications waits until c holds at least n notifications of typ.
func waitNotifications(t *testing.T, c *fakeConn, typ string, n int) []map[string]any {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(c.notifications(typ)) >= n
	}, waitFor, 5*time.Millisecond, "expected %d %s notifications", n, typ)
	return c.notifications(typ)
}

// requestPayload builds a serverRequest that can be delivered from any
// goroutine with engine.Deliver.
func requestPayload(msgID int, action string, param map[string]any) []byte {
	data, _ := json.Marshal(map[string]any{
		"msgType":     "serverRequest",
		"msgID":       msgID,
		"requestData": map[string]any{"action": action, "param": param},
	})
	return data
}

// awaitReplies polls c until it holds n serverReply messages. It is safe to
// call off the test goroutine.
func awaitReplies(c *fakeConn, n int) bool {
	deadline := time.Now().Add(waitFor)
	for time.Now().Before(deadline) {
		if len(c.ofType("serverReply")) >= n {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}

func isNotification(msg map[string]any, typ string) bool {
	data, _ := msg["notificationData"].(map[string]any)
	return msg["msgType"] == "notification" && data["type"] == typ
}
