package server

import (
	"context"
	"time"

	"github.com/cyvasse-online/server/internal/eventbus"
	"github.com/cyvasse-online/server/internal/idgen"
	"github.com/cyvasse-online/server/internal/logging"
	"github.com/cyvasse-online/server/pkg/domain"
	"go.uber.org/atomic"
)

// Options configures an Engine.
type Options struct {
	// Workers is the size of the worker pool.
	Workers int
	// Ordering selects pinned or shared job queues. Defaults to pinned.
	Ordering Ordering
	Logger   *logging.Logger
	// EventBus receives lifecycle events. Optional.
	EventBus eventbus.Bus
	// IDs generates match and player identifiers. Defaults to idgen.New().
	IDs IDGenerator
}

// Engine is the match-coordination core: connections come in through
// Connect, Deliver and Disconnect; everything else happens on the workers.
type Engine struct {
	registry   *Registry
	dispatcher *Dispatcher
	pool       *Pool
	logger     *logging.Logger
	running    *atomic.Bool
	received   *atomic.Int64
	startedAt  *atomic.Time
}

// New creates an engine. Call Start before delivering messages.
func New(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.IDs == nil {
		opts.IDs = idgen.New()
	}
	if opts.Ordering == "" {
		opts.Ordering = OrderingPinned
	}

	registry := NewRegistry(opts.IDs)
	dispatcher := NewDispatcher(registry, opts.EventBus, opts.Logger)

	return &Engine{
		registry:   registry,
		dispatcher: dispatcher,
		pool:       NewPool(opts.Workers, opts.Ordering, dispatcher.Dispatch, opts.Logger),
		logger:     opts.Logger.Component("engine"),
		running:    atomic.NewBool(false),
		received:   atomic.NewInt64(0),
		startedAt:  atomic.NewTime(time.Time{}),
	}
}

// Start launches the worker pool.
func (e *Engine) Start(ctx context.Context) {
	if !e.running.CompareAndSwap(false, true) {
		return
	}
	e.startedAt.Store(time.Now())
	e.pool.Start(ctx)
	e.logger.Info("engine started")
}

// Stop wakes and joins all workers. Queued jobs are abandoned.
func (e *Engine) Stop() {
	if !e.running.CompareAndSwap(true, false) {
		return
	}
	e.pool.Stop()
	e.logger.Info("engine stopped")
}

// Connect registers a newly opened connection.
func (e *Engine) Connect(conn domain.Conn) {
	e.registry.Connect(conn)
	e.logger.Debug("connection registered", "conn_id", conn.ID())
}

// Deliver queues a message received on id for the workers.
func (e *Engine) Deliver(id domain.ConnID, payload []byte) error {
	if !e.running.Load() {
		return domain.ErrEngineStopped
	}
	e.received.Inc()
	return e.pool.Submit(Job{Conn: id, Payload: payload, Received: time.Now()})
}

// Disconnect runs the cleanup for a closed connection. It is idempotent.
func (e *Engine) Disconnect(id domain.ConnID) {
	e.dispatcher.Disconnect(id)
	e.logger.Debug("connection removed", "conn_id", id)
}

// SetMaintenance turns maintenance mode on or off.
func (e *Engine) SetMaintenance(on bool) {
	e.dispatcher.SetMaintenance(on)
}

// ToggleMaintenance flips maintenance mode and returns the new state.
func (e *Engine) ToggleMaintenance() bool {
	for {
		old := e.dispatcher.Maintenance()
		if e.dispatcher.SetMaintenance(!old) == old {
			return !old
		}
	}
}

// Registry exposes the session and match registry.
func (e *Engine) Registry() *Registry { return e.registry }

// Lists exposes the discovery lists.
func (e *Engine) Lists() *Lists { return e.dispatcher.Lists() }

// Stats returns a snapshot of engine counters.
func (e *Engine) Stats() domain.EngineStats {
	conns, matches, sessions := e.registry.Counts()

	var uptime float64
	if started := e.startedAt.Load(); e.running.Load() && !started.IsZero() {
		uptime = time.Since(started).Seconds()
	}

	return domain.EngineStats{
		ConnectedClients: conns,
		ActiveMatches:    matches,
		ActiveSessions:   sessions,
		QueuedJobs:       e.pool.Len(),
		JobsProcessed:    e.pool.Processed(),
		JobsFailed:       e.pool.Failed(),
		MessagesSent:     e.dispatcher.Sent(),
		MessagesReceived: e.received.Load(),
		Maintenance:      e.dispatcher.Maintenance(),
		Uptime:           uptime,
	}
}
