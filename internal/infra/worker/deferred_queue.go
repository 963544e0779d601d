package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"telegram-license-server/internal/infra/metrics"
)

const (
	DefaultReleaseInterval = 10 * time.Second
	BusyReleaseInterval    = 15 * time.Second
	// busyThreshold is the queue length above which releases slow down.
	busyThreshold = 5
)

// DeferredQueue holds work that failed because storage was saturated and
// hands it back to a pool one item at a time, slower when the backlog grows.
// It is best-effort: items live in memory only.
type DeferredQueue struct {
	mu    sync.Mutex
	items []Task
	max   int

	out      Submitter
	interval time.Duration
	busy     time.Duration
	log      *zerolog.Logger
}

func NewDeferredQueue(out Submitter, max int, logger *zerolog.Logger) *DeferredQueue {
	return &DeferredQueue{
		out:      out,
		max:      max,
		interval: DefaultReleaseInterval,
		busy:     BusyReleaseInterval,
		log:      logger,
	}
}

// WithIntervals overrides the release pacing.
func (q *DeferredQueue) WithIntervals(normal, busy time.Duration) *DeferredQueue {
	q.interval, q.busy = normal, busy
	return q
}

// Push enqueues task, or returns ErrQueueFull when max items are waiting.
func (q *DeferredQueue) Push(task Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.max > 0 && len(q.items) >= q.max {
		return ErrQueueFull
	}
	q.items = append(q.items, task)
	metrics.SetDeferredDepth(len(q.items))
	q.log.Info().Int("depth", len(q.items)).Msg("request deferred")
	return nil
}

func (q *DeferredQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// NextInterval is the wait before the next release.
func (q *DeferredQueue) NextInterval() time.Duration {
	if q.Len() > busyThreshold {
		return q.busy
	}
	return q.interval
}

// Run releases one item per interval until ctx is done.
func (q *DeferredQueue) Run(ctx context.Context) {
	for {
		timer := time.NewTimer(q.NextInterval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		q.releaseOne()
	}
}

func (q *DeferredQueue) releaseOne() {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return
	}
	task := q.items[0]
	q.items = q.items[1:]
	depth := len(q.items)
	q.mu.Unlock()

	if err := q.out.Submit(task); err != nil {
		q.log.Warn().Err(err).Msg("deferred release failed, requeueing")
		q.mu.Lock()
		q.items = append(q.items, task)
		depth = len(q.items)
		q.mu.Unlock()
	} else {
		q.log.Info().Int("depth", depth).Msg("deferred request released")
	}
	metrics.SetDeferredDepth(depth)
}
