package server_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cyvasse-online/server/internal/logging"
	"github.com/cyvasse-online/server/pkg/domain"
	"github.com/cyvasse-online/server/pkg/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func TestJobQueue_FIFO(t *testing.T) {
	q := server.NewJobQueue()
	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(server.Job{Conn: "c1", Payload: []byte(p)}))
	}
	assert.Equal(t, 3, q.Len())

	for _, want := range []string{"a", "b", "c"} {
		job, ok := q.Dequeue()
		require.True(t, ok)
		assert.Equal(t, want, string(job.Payload))
	}
	assert.Zero(t, q.Len())
}

func TestJobQueue_DequeueBlocksUntilEnqueue(t *testing.T) {
	q := server.NewJobQueue()

	got := make(chan server.Job, 1)
	go func() {
		job, ok := q.Dequeue()
		if ok {
			got <- job
		}
	}()

	select {
	case <-got:
		t.Fatal("dequeue returned on an empty queue")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, q.Enqueue(server.Job{Conn: "c1", Payload: []byte("x")}))

	select {
	case job := <-got:
		assert.Equal(t, "x", string(job.Payload))
	case <-time.After(time.Second):
		t.Fatal("dequeue was not woken")
	}
}

func TestJobQueue_CloseWakesAllWaiters(t *testing.T) {
	q := server.NewJobQueue()

	const waiters = 8
	var wg sync.WaitGroup
	wg.Add(waiters)
	for range waiters {
		go func() {
			defer wg.Done()
			_, ok := q.Dequeue()
			assert.False(t, ok)
		}()
	}

	time.Sleep(10 * time.Millisecond)
	q.Close()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiters not released by Close")
	}

	assert.ErrorIs(t, q.Enqueue(server.Job{}), domain.ErrQueueClosed)
}

func TestPool_ProcessesEveryJobOnce(t *testing.T) {
	for _, ordering := range []server.Ordering{server.OrderingPinned, server.OrderingShared} {
		t.Run(string(ordering), func(t *testing.T) {
			var mu sync.Mutex
			seen := make(map[string]int)

			pool := server.NewPool(4, ordering, func(_ context.Context, job server.Job) error {
				mu.Lock()
				defer mu.Unlock()
				seen[string(job.Payload)]++
				return nil
			}, logging.Discard())
			pool.Start(context.Background())
			defer pool.Stop()

			const jobs = 200
			for i := range jobs {
				conn := domain.ConnID(rune('a' + i%7))
				require.NoError(t, pool.Submit(server.Job{Conn: conn, Payload: []byte{byte(i), byte(i >> 8)}}))
			}

			require.Eventually(t, func() bool { return pool.Processed() == jobs }, time.Second, 5*time.Millisecond)

			mu.Lock()
			defer mu.Unlock()
			assert.Len(t, seen, jobs)
			for _, n := range seen {
				assert.Equal(t, 1, n)
			}
		})
	}
}

func TestPool_SurvivesPanicsAndErrors(t *testing.T) {
	ok := atomic.NewInt64(0)
	pool := server.NewPool(1, server.OrderingShared, func(_ context.Context, job server.Job) error {
		switch string(job.Payload) {
		case "panic":
			panic("boom")
		case "error":
			return assert.AnError
		}
		ok.Inc()
		return nil
	}, logging.Discard())
	pool.Start(context.Background())
	defer pool.Stop()

	for _, p := range []string{"panic", "fine", "error", "fine"} {
		require.NoError(t, pool.Submit(server.Job{Conn: "c1", Payload: []byte(p)}))
	}

	require.Eventually(t, func() bool { return pool.Processed() == 4 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(2), ok.Load())
	assert.Equal(t, int64(2), pool.Failed())
}

func TestPool_PinnedPreservesPerConnectionOrder(t *testing.T) {
	var mu sync.Mutex
	order := make(map[domain.ConnID][]int)

	pool := server.NewPool(8, server.OrderingPinned, func(_ context.Context, job server.Job) error {
		mu.Lock()
		defer mu.Unlock()
		order[job.Conn] = append(order[job.Conn], int(job.Payload[0]))
		return nil
	}, logging.Discard())
	pool.Start(context.Background())
	defer pool.Stop()

	conns := []domain.ConnID{"alpha", "beta", "gamma", "delta"}
	const perConn = 50
	for i := range perConn {
		for _, c := range conns {
			require.NoError(t, pool.Submit(server.Job{Conn: c, Payload: []byte{byte(i)}}))
		}
	}

	require.Eventually(t, func() bool { return pool.Processed() == int64(perConn*len(conns)) }, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for _, c := range conns {
		require.Len(t, order[c], perConn)
		for i, v := range order[c] {
			assert.Equal(t, i, v, "conn %s out of order", c)
		}
	}
}
