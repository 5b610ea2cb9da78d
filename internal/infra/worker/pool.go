// File: internal/infra/worker/pool.go
package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/rs/zerolog"
)

// ErrQueueFull is returned by Submit when the job queue is saturated; the
// job is dropped rather than blocking the caller.
var ErrQueueFull = errors.New("worker queue full")

// Job is a unit of background work (bot reply generation in the dev backend).
type Job func(ctx context.Context) error

// Pool runs submitted jobs on a fixed set of workers behind a bounded queue.
type Pool struct {
	wg   sync.WaitGroup
	jobs chan Job
	quit chan struct{}
	n    int
	log  *zerolog.Logger
}

func NewPool(workers int, logger *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	l := logger.With().Str("component", "WorkerPool").Logger()
	return &Pool{jobs: make(chan Job, workers*4), quit: make(chan struct{}), n: workers, log: &l}
}

func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
	p.log.Debug().Int("workers", p.n).Msg("pool started")
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.quit:
			return
		case job := <-p.jobs:
			if job == nil {
				continue
			}
			if err := job(ctx); err != nil {
				p.log.Warn().Err(err).Int("worker", id).Msg("job failed")
			}
		}
	}
}

// Stop signals the workers and waits for in-flight jobs to finish. Queued
// jobs that no worker picked up yet are abandoned.
func (p *Pool) Stop() {
	close(p.quit)
	p.wg.Wait()
}

// Submit enqueues a job without blocking; a saturated queue drops it.
func (p *Pool) Submit(job Job) error {
	if job == nil {
		return errors.New("nil job")
	}
	select {
	case p.jobs <- job:
		return nil
	default:
		p.log.Warn().Int("queued", len(p.jobs)).Msg("job dropped, queue full")
		return ErrQueueFull
	}
}
