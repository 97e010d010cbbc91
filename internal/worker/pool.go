// Package worker runs independent enrichment jobs concurrently. The pool is
// generic over Job/Result; batch.go binds it to snapshot files.
package worker

import (
	"context"
	"sync"
)

// Job is a unit of work.
type Job interface {
	Execute(ctx context.Context) Result
}

// Result is the outcome of one job.
type Result interface {
	GetError() error
}

// Pool executes jobs on a fixed number of workers. Results are collected
// under a mutex rather than sent on a channel, so workers never block on a
// full results buffer and Submit stays unblocked no matter how many jobs are
// queued before Wait.
type Pool struct {
	workers    int
	jobQueue   chan Job
	mu         sync.Mutex
	results    []Result
	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc
	closeOnce  sync.Once
}

// NewPool creates a pool with the given worker count.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		workers:    workers,
		jobQueue:   make(chan Job, workers*2),
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Start launches the workers.
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobQueue:
			if !ok {
				return
			}
			p.collect(job.Execute(p.ctx))
		}
	}
}

func (p *Pool) collect(result Result) {
	p.mu.Lock()
	p.results = append(p.results, result)
	p.mu.Unlock()
}

// Submit queues a job. Submissions after Shutdown are dropped.
func (p *Pool) Submit(job Job) {
	select {
	case <-p.ctx.Done():
		return
	case p.jobQueue <- job:
	}
}

// Wait closes the queue, waits for the workers, and returns every result in
// completion order.
func (p *Pool) Wait() []Result {
	p.closeQueue()
	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Result, len(p.results))
	copy(out, p.results)
	return out
}

// Shutdown cancels outstanding work immediately.
func (p *Pool) Shutdown() {
	p.cancelFunc()
	p.wg.Wait()
}

func (p *Pool) closeQueue() {
	p.closeOnce.Do(func() {
		close(p.jobQueue)
	})
}
