package eventbus

import (
	"context"
	"sync"

	"github.com/cyvasse-online/server/internal/logging"
	"github.com/rs/xid"
	"github.com/samber/lo"
	"go.uber.org/atomic"
)

// Handler represents an event handler function
type Handler func(event *Event)

// Bus represents an event bus
type Bus interface {
	// Publish publishes an event to all subscribers
	Publish(event *Event)

	// PublishAsync publishes an event asynchronously
	PublishAsync(event *Event)

	// Subscribe subscribes to events of a specific type
	Subscribe(eventType EventType, handler Handler) string

	// SubscribeAll subscribes to all events
	SubscribeAll(handler Handler) string

	// Unsubscribe removes a subscription
	Unsubscribe(id string)

	// Start starts the event bus
	Start(ctx context.Context)

	// Stop stops the event bus
	Stop()
}

// subscription represents a single subscription
type subscription struct {
	id        string
	eventType EventType
	handler   Handler
}

// InMemoryBus is an in-memory implementation of the event bus. Async events
// are delivered in publish order by a single goroutine.
type InMemoryBus struct {
	subscribers map[EventType][]*subscription
	allHandlers []*subscription
	mu          sync.RWMutex
	eventChan   chan *Event
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	logger      *logging.Logger
	dropped     *atomic.Int64
}

// NewInMemoryBus creates a new in-memory event bus
func NewInMemoryBus(bufferSize int, logger *logging.Logger) *InMemoryBus {
	ctx, cancel := context.WithCancel(context.Background())
	return &InMemoryBus{
		subscribers: make(map[EventType][]*subscription),
		allHandlers: make([]*subscription, 0),
		eventChan:   make(chan *Event, bufferSize),
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger.Component("eventbus"),
		dropped:     atomic.NewInt64(0),
	}
}

// Publish publishes an event synchronously. Handlers run outside the
// subscription lock so they may subscribe or unsubscribe themselves.
func (b *InMemoryBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := make([]*subscription, 0, len(b.subscribers[event.Type])+len(b.allHandlers))
	handlers = append(handlers, b.subscribers[event.Type]...)
	handlers = append(handlers, b.allHandlers...)
	b.mu.RUnlock()

	for _, sub := range handlers {
		b.deliver(sub, event)
	}
}

func (b *InMemoryBus) deliver(sub *subscription, event *Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"subscription_id", sub.id,
				"event_type", event.Type,
				"panic", r,
			)
		}
	}()
	sub.handler(event)
}

// PublishAsync publishes an event asynchronously. A full buffer drops the
// event; publishers never block.
func (b *InMemoryBus) PublishAsync(event *Event) {
	select {
	case <-b.ctx.Done():
		return
	default:
	}

	select {
	case b.eventChan <- event:
	default:
		b.dropped.Inc()
		b.logger.Warn("event buffer full, dropping event",
			"event_type", event.Type,
			"dropped_total", b.dropped.Load(),
		)
	}
}

// Dropped returns the number of async events dropped so far.
func (b *InMemoryBus) Dropped() int64 {
	return b.dropped.Load()
}

// Subscribe subscribes to events of a specific type
func (b *InMemoryBus) Subscribe(eventType EventType, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscription{
		id:        xid.New().String(),
		eventType: eventType,
		handler:   handler,
	}

	b.subscribers[eventType] = append(b.subscribers[eventType], sub)
	return sub.id
}

// SubscribeAll subscribes to all events
func (b *InMemoryBus) SubscribeAll(handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscription{
		id:      xid.New().String(),
		handler: handler,
	}

	b.allHandlers = append(b.allHandlers, sub)
	return sub.id
}

// Unsubscribe removes a subscription
func (b *InMemoryBus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	notID := func(sub *subscription, _ int) bool { return sub.id != id }

	for eventType, subs := range b.subscribers {
		b.subscribers[eventType] = lo.Filter(subs, notID)
	}
	b.allHandlers = lo.Filter(b.allHandlers, notID)
}

// Start starts the event bus
func (b *InMemoryBus) Start(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			b.cancel()
		case <-b.ctx.Done():
		}
	}()

	b.wg.Add(1)
	go b.processEvents()
}

// Stop stops the event bus. Events still buffered are discarded.
func (b *InMemoryBus) Stop() {
	b.cancel()
	b.wg.Wait()
}

// processEvents processes events from the channel
func (b *InMemoryBus) processEvents() {
	defer b.wg.Done()

	for {
		select {
		case <-b.ctx.Done():
			return
		case event := <-b.eventChan:
			if event != nil {
				b.Publish(event)
			}
		}
	}
}
