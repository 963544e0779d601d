// File: internal/infra/worker/pool.go
package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/rs/zerolog"

	"telegram-license-server/internal/infra/metrics"
)

// A very small worker pool that runs submitted tasks in the background.
// Webhook notifications and deferred replays go through it.

type Task func(ctx context.Context) error

var ErrQueueFull = errors.New("worker queue full")

// Submitter is what producers need from a pool.
type Submitter interface {
	Submit(task Task) error
}

type Pool struct {
	name string
	wg   sync.WaitGroup
	jobs chan Task
	quit chan struct{}
	n    int
	log  *zerolog.Logger
}

func NewPool(name string, workers, queueSize int, logger *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if queueSize <= 0 {
		queueSize = workers * 4
	}
	return &Pool{name: name, jobs: make(chan Task, queueSize), quit: make(chan struct{}), n: workers, log: logger}
}

func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-p.quit:
					return
				case task := <-p.jobs:
					p.run(ctx, id, task)
				}
			}
		}(i)
	}
}

func (p *Pool) run(ctx context.Context, id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			metrics.IncTask(p.name, "failed")
			p.log.Error().Interface("panic", r).Str("pool", p.name).Int("worker", id).Msg("task panicked")
		}
	}()
	if err := task(ctx); err != nil {
		metrics.IncTask(p.name, "failed")
		p.log.Warn().Err(err).Str("pool", p.name).Int("worker", id).Msg("task error")
		return
	}
	metrics.IncTask(p.name, "ok")
}

func (p *Pool) Stop() {
	close(p.quit)
	p.wg.Wait()
}

func (p *Pool) Submit(task Task) error {
	if task == nil {
		return errors.New("nil task")
	}
	select {
	case p.jobs <- task:
		return nil
	default:
		// drop when saturated; callers decide whether to defer
		metrics.IncTask(p.name, "dropped")
		return ErrQueueFull
	}
}
