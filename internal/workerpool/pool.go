// Package workerpool runs a fixed set of long-lived workers. Worker i is the
// only goroutine that ever calls the handler with worker index i, so state
// bound to a worker (a socket, for instance) is never shared.
package workerpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("worker pool closed")

// queueDepth is the number of jobs a worker may have waiting.
const queueDepth = 16

// Handler answers one job on behalf of a worker.
type Handler func(ctx context.Context, worker int, payload []byte) (bool, error)

// Job is a single unit of work. The result is delivered on Results, which
// the submitter must buffer so that workers never block on delivery.
type Job struct {
	Index   int
	Payload []byte
	Results chan<- Result
}

// Result is the outcome of a Job.
type Result struct {
	Index  int
	Worker int
	Answer bool
	Err    error
}

type queued struct {
	ctx context.Context
	job Job
}

// Pool is a bounded set of workers with one request queue each.
type Pool struct {
	queues  []chan queued
	handle  Handler
	done    chan struct{}
	wg      sync.WaitGroup
	handled int64

	// mu keeps Submit from enqueueing once Close has started.
	mu     sync.RWMutex
	closed bool
}

// New starts size workers running handle.
func New(size int, handle Handler) *Pool {
	if size <= 0 {
		size = 1
	}

	p := &Pool{
		queues: make([]chan queued, size),
		handle: handle,
		done:   make(chan struct{}),
	}
	for i := range p.queues {
		p.queues[i] = make(chan queued, queueDepth)
	}

	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go func(workerID int) {
			defer p.wg.Done()
			p.worker(workerID)
		}(i)
	}
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.queues)
}

// Handled returns the number of jobs the handler has run so far.
func (p *Pool) Handled() int64 {
	return atomic.LoadInt64(&p.handled)
}

// Submit queues job for the given worker. It blocks while that worker's
// queue is full.
func (p *Pool) Submit(ctx context.Context, worker int, job Job) error {
	q := p.queues[worker%len(p.queues)]

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case q <- queued{ctx: ctx, job: job}:
		return nil
	}
}

// Close stops the workers and waits for them. Jobs still queued are
// answered with ErrClosed.
func (p *Pool) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.done)
	}
	p.mu.Unlock()
	p.wg.Wait()

	for i, q := range p.queues {
		for {
			select {
			case item := <-q:
				item.job.Results <- Result{Index: item.job.Index, Worker: i, Err: ErrClosed}
				continue
			default:
			}
			break
		}
	}
}

func (p *Pool) worker(workerID int) {
	q := p.queues[workerID]
	for {
		select {
		case <-p.done:
			return
		case item := <-q:
			res := Result{Index: item.job.Index, Worker: workerID}
			if err := item.ctx.Err(); err != nil {
				res.Err = err
			} else {
				atomic.AddInt64(&p.handled, 1)
				res.Answer, res.Err = p.handle(item.ctx, workerID, item.job.Payload)
			}
			item.job.Results <- res
		}
	}
}
