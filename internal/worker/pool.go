// Package worker provides a small bounded pool for running independent tasks
// concurrently. The pipeline uses it to render segments in parallel; frames
// for different segments share no mutable state beyond the output directory.
package worker

import (
	"context"
	"sync"
)

type Task func(ctx context.Context) error

type Pool struct {
	workers   int
	tasks     chan Task
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once

	mu       sync.Mutex
	failures []error
}

func NewPool(ctx context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Pool{
		workers: workers,
		tasks:   make(chan Task, workers*2),
		ctx:     ctx,
		cancel:  cancel,
	}
}

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
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			if err := task(p.ctx); err != nil {
				p.mu.Lock()
				p.failures = append(p.failures, err)
				p.mu.Unlock()
			}
		}
	}
}

// Submit enqueues a task, blocking while all workers are busy and the queue
// is full. Workers never park mid-task, so Submit always makes progress.
func (p *Pool) Submit(task Task) {
	select {
	case <-p.ctx.Done():
	case p.tasks <- task:
	}
}

// Wait closes the task queue, waits for the workers, and returns every
// non-nil task error in completion order.
func (p *Pool) Wait() []error {
	p.closeOnce.Do(func() { close(p.tasks) })
	p.wg.Wait()
	p.cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failures
}
