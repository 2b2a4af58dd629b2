package persist

import (
	"context"
	"sync"
	"time"

	"github.com/cyvasse-online/server/internal/eventbus"
	"github.com/cyvasse-online/server/internal/logging"
	"go.uber.org/atomic"
)

const writeTimeout = 5 * time.Second

// write is one queued store operation.
type write struct {
	kind string
	do   func(ctx context.Context, s Store) error
}

// Worker drains a bounded queue of writes into a Store on one goroutine.
// Submit never blocks: when the queue is full the write is dropped.
type Worker struct {
	store  Store
	logger *logging.Logger
	queue  chan write

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	written *atomic.Int64
	failed  *atomic.Int64
	dropped *atomic.Int64

	subs []string
	bus  eventbus.Bus
}

// NewWorker creates a worker with room for queueSize pending writes.
func NewWorker(store Store, queueSize int, logger *logging.Logger) *Worker {
	return &Worker{
		store:   store,
		logger:  logger.Component("persist"),
		queue:   make(chan write, queueSize),
		written: atomic.NewInt64(0),
		failed:  atomic.NewInt64(0),
		dropped: atomic.NewInt64(0),
	}
}

// Start launches the writer goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop detaches from the bus, closes the queue and waits for the pending
// writes to finish.
func (w *Worker) Stop() {
	w.Detach()

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()

	w.wg.Wait()
}

// SubmitMatch queues a match record.
func (w *Worker) SubmitMatch(m MatchRecord) bool {
	return w.submit(write{kind: "match", do: func(ctx context.Context, s Store) error {
		return s.SaveMatch(ctx, m)
	}})
}

// SubmitPlayer queues a player record.
func (w *Worker) SubmitPlayer(p PlayerRecord) bool {
	return w.submit(write{kind: "player", do: func(ctx context.Context, s Store) error {
		return s.SavePlayer(ctx, p)
	}})
}

func (w *Worker) submit(wr write) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		return false
	}

	select {
	case w.queue <- wr:
		return true
	default:
		w.dropped.Inc()
		w.logger.Warn("persistence queue full, dropping write", "kind", wr.kind)
		return false
	}
}

// Attach subscribes the worker to match and player lifecycle events.
func (w *Worker) Attach(bus eventbus.Bus) {
	w.bus = bus
	w.subs = append(w.subs,
		bus.Subscribe(eventbus.EventMatchCreated, w.onMatchCreated),
		bus.Subscribe(eventbus.EventPlayerAdmitted, w.onPlayerAdmitted),
	)
}

// Detach removes the subscriptions made by Attach.
func (w *Worker) Detach() {
	if w.bus == nil {
		return
	}
	for _, id := range w.subs {
		w.bus.Unsubscribe(id)
	}
	w.subs = nil
	w.bus = nil
}

func (w *Worker) onMatchCreated(e *eventbus.Event) {
	data, ok := e.Data.(eventbus.MatchData)
	if !ok {
		return
	}
	w.SubmitMatch(MatchRecord{
		MatchID:            data.MatchID,
		RuleSet:            data.RuleSet,
		SearchingForPlayer: data.Random,
		Public:             data.Public,
		CreatedAt:          e.Timestamp,
	})
}

func (w *Worker) onPlayerAdmitted(e *eventbus.Event) {
	data, ok := e.Data.(eventbus.PlayerData)
	if !ok || data.Resumed {
		return
	}
	w.SubmitPlayer(PlayerRecord{
		PlayerID:  data.PlayerID,
		MatchID:   data.MatchID,
		Color:     data.Color,
		CreatedAt: e.Timestamp,
	})
}

// Written returns the number of records stored.
func (w *Worker) Written() int64 { return w.written.Load() }

// Failed returns the number of writes the store rejected.
func (w *Worker) Failed() int64 { return w.failed.Load() }

// Dropped returns the number of writes discarded on a full queue.
func (w *Worker) Dropped() int64 { return w.dropped.Load() }

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	for wr := range w.queue {
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		err := wr.do(wctx, w.store)
		cancel()

		if err != nil {
			w.failed.Inc()
			w.logger.Error("persisting record failed", "kind", wr.kind, "error", err)
			continue
		}
		w.written.Inc()
	}
}
