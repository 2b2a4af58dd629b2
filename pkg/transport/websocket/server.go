package websocket

import (
	"net/http"
	"sync"

	"github.com/cyvasse-online/server/internal/eventbus"
	"github.com/cyvasse-online/server/internal/logging"
	"github.com/cyvasse-online/server/pkg/domain"
	"github.com/gorilla/websocket"
)

const eventSource = "websocket-server"

// Acceptor receives the lifecycle of every accepted connection. For a
// given connection, Connect happens before any Deliver and Disconnect
// after the last one.
type Acceptor interface {
	Connect(conn domain.Conn)
	Deliver(id domain.ConnID, payload []byte) error
	Disconnect(id domain.ConnID)
}

// Server represents a WebSocket server
type Server struct {
	upgrader websocket.Upgrader
	acceptor Acceptor
	logger   *logging.Logger
	eventBus eventbus.Bus
	options  ServerOptions

	mu      sync.Mutex
	clients map[domain.ConnID]*Client
}

// NewServer creates a new WebSocket server
func NewServer(opts ...ServerOption) *Server {
	options := ServerOptions{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
		Logger: logging.Discard(),
		Client: DefaultClientOptions(),
	}

	for _, opt := range opts {
		opt(&options)
	}

	return &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  options.ReadBufferSize,
			WriteBufferSize: options.WriteBufferSize,
			CheckOrigin:     options.CheckOrigin,
		},
		acceptor: options.Acceptor,
		logger:   options.Logger.Component("websocket"),
		eventBus: options.EventBus,
		options:  options,
		clients:  make(map[domain.ConnID]*Client),
	}
}

// ServeHTTP implements http.Handler. It returns once the connection is
// closed and the acceptor has been told.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade error",
			"error", err,
			"remote_addr", r.RemoteAddr,
		)
		return
	}

	id := domain.NewConnID()
	client := NewClient(id, conn, s.logger, s.options.Client)
	client.Receive(func(message []byte) error {
		return s.acceptor.Deliver(id, message)
	})

	s.track(client)
	s.acceptor.Connect(client)
	s.publish(eventbus.EventConnOpened, eventbus.ConnData{ConnID: string(id), RemoteAddr: r.RemoteAddr})
	s.logger.Info("client connected",
		"conn_id", id,
		"remote_addr", r.RemoteAddr,
	)

	client.Start()
	client.Wait()

	s.acceptor.Disconnect(id)
	s.untrack(id)
	s.publish(eventbus.EventConnClosed, eventbus.ConnData{ConnID: string(id), RemoteAddr: r.RemoteAddr})
	s.logger.Info("client disconnected", "conn_id", id)
}

// Connections returns the number of open connections.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// CloseAll closes every open connection. Hijacked connections are not
// closed by http.Server.Shutdown, so callers do it here.
func (s *Server) CloseAll() {
	s.mu.Lock()
	clients := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		_ = c.Close()
	}
}

func (s *Server) track(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.ID()] = c
}

func (s *Server) untrack(id domain.ConnID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, id)
}

func (s *Server) publish(t eventbus.EventType, data eventbus.ConnData) {
	if s.eventBus == nil {
		return
	}
	s.eventBus.PublishAsync(eventbus.NewEvent(t, eventSource, data))
}
