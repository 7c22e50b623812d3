package workers

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
)

// Job is one unit of work. The context is the pool's, cancelled with the parent.
type Job func(ctx context.Context) error

// Pool runs submitted jobs on a fixed number of goroutines.
// With one worker, jobs run in submission order.
type Pool struct {
	jobs       chan Job
	maxWorkers int
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	errors     []error
	errorsMu   sync.Mutex
	logger     arbor.ILogger
}

// NewPool creates a pool bound to parent; cancelling parent stops the workers
func NewPool(parent context.Context, maxWorkers int, logger arbor.ILogger) *Pool {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}

	ctx, cancel := context.WithCancel(parent)

	return &Pool{
		jobs:       make(chan Job, maxWorkers*2),
		maxWorkers: maxWorkers,
		ctx:        ctx,
		cancel:     cancel,
		logger:     logger,
	}
}

// Start begins the worker goroutines
func (p *Pool) Start() {
	for i := 0; i < p.maxWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Submit queues a job, blocking while the queue is full
func (p *Pool) Submit(job Job) error {
	select {
	case p.jobs <- job:
		return nil
	case <-p.ctx.Done():
		return fmt.Errorf("worker pool stopped: %w", p.ctx.Err())
	}
}

// Wait closes the queue and blocks until every worker has returned.
// The pool cannot be reused afterwards.
func (p *Pool) Wait() {
	close(p.jobs)
	p.wg.Wait()
	p.cancel()
}

// Errors returns the errors returned by failed jobs
func (p *Pool) Errors() []error {
	p.errorsMu.Lock()
	defer p.errorsMu.Unlock()
	return append([]error(nil), p.errors...)
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			if err := p.run(job); err != nil {
				p.errorsMu.Lock()
				p.errors = append(p.errors, err)
				p.errorsMu.Unlock()

				p.logger.Debug().Err(err).Int("worker_id", id).Msg("Job failed")
			}

		case <-p.ctx.Done():
			// Drain so Wait's close never races a blocked Submit
			for range p.jobs {
			}
			return
		}
	}
}

func (p *Pool) run(job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return job(p.ctx)
}
