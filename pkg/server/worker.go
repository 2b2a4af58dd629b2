package server

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/cyvasse-online/server/internal/logging"
	"github.com/cyvasse-online/server/pkg/errors"
	"go.uber.org/atomic"
)

// Ordering selects how jobs are spread over workers.
type Ordering string

const (
	// OrderingPinned gives every worker its own queue and routes each
	// connection to one of them, so a connection's messages are handled in
	// the order they arrived.
	OrderingPinned Ordering = "pinned"
	// OrderingShared lets any idle worker take the next job. Two messages
	// from one connection may then complete out of order.
	OrderingShared Ordering = "shared"
)

// JobFunc processes one job.
type JobFunc func(ctx context.Context, job Job) error

// Pool runs a fixed number of workers over one or more job queues.
type Pool struct {
	queues     []*JobQueue
	size       int
	handle     JobFunc
	logger     *logging.Logger
	errHandler errors.Handler
	wg         sync.WaitGroup
	cancel     context.CancelFunc
	processed  *atomic.Int64
	failed     *atomic.Int64
}

// NewPool creates a pool of size workers. size below one is treated as one.
func NewPool(size int, ordering Ordering, handle JobFunc, logger *logging.Logger) *Pool {
	if size < 1 {
		size = 1
	}

	n := 1
	if ordering == OrderingPinned {
		n = size
	}

	queues := make([]*JobQueue, n)
	for i := range queues {
		queues[i] = NewJobQueue()
	}

	return &Pool{
		queues:     queues,
		size:       size,
		handle:     handle,
		logger:     logger.Component("worker-pool"),
		errHandler: errors.NewDefaultHandler(logger.Logger),
		processed:  atomic.NewInt64(0),
		failed:     atomic.NewInt64(0),
	}
}

// Start launches the workers.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	for i := range p.size {
		q := p.queues[i%len(p.queues)]
		p.wg.Add(1)
		go p.work(ctx, i, q)
	}

	p.logger.Info("worker pool started", "workers", p.size, "queues", len(p.queues))
}

// Submit routes job to its queue.
func (p *Pool) Submit(job Job) error {
	return p.queueFor(job).Enqueue(job)
}

// Stop closes every queue and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	for _, q := range p.queues {
		q.Close()
	}
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()

	p.logger.Info("worker pool stopped",
		"processed", p.processed.Load(),
		"failed", p.failed.Load(),
	)
}

// Len returns the number of jobs waiting across all queues.
func (p *Pool) Len() int {
	n := 0
	for _, q := range p.queues {
		n += q.Len()
	}
	return n
}

// Processed returns the number of jobs handled, successful or not.
func (p *Pool) Processed() int64 { return p.processed.Load() }

// Failed returns the number of jobs that returned an error or panicked.
func (p *Pool) Failed() int64 { return p.failed.Load() }

func (p *Pool) queueFor(job Job) *JobQueue {
	if len(p.queues) == 1 {
		return p.queues[0]
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(job.Conn))
	return p.queues[h.Sum32()%uint32(len(p.queues))]
}

func (p *Pool) work(ctx context.Context, id int, q *JobQueue) {
	defer p.wg.Done()

	for {
		job, ok := q.Dequeue()
		if !ok {
			return
		}
		p.run(ctx, id, job)
	}
}

// run handles one job. A panic or error is logged and the worker moves on.
func (p *Pool) run(ctx context.Context, id int, job Job) {
	logger := p.logger.WithFields(map[string]any{"worker": id, "conn_id": job.Conn})
	ctx = logging.WithLogger(ctx, logger)

	defer p.processed.Inc()
	defer func() {
		if r := recover(); r != nil {
			p.failed.Inc()
			p.errHandler.HandleWithLogger(ctx, errors.New(errors.ErrorTypeInternal, "WORKER_PANIC", "job panicked").
				WithDetails(fmt.Sprint(r)), logger.Logger)
		}
	}()

	if err := p.handle(ctx, job); err != nil {
		p.failed.Inc()
		p.errHandler.HandleWithLogger(ctx, err, logger.Logger)
	}
}
