// Package scheduler runs work items on a fixed pool of workers.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"

	"github.com/kubev2v/inventory-collector/internal/models"
)

var ErrClosed = errors.New("scheduler is closed")

type Work func(ctx context.Context) (any, error)

type job struct {
	ctx    context.Context
	work   Work
	future *models.Future[models.Result[any]]
}

type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	queue  []job
	closed bool
	wake   chan struct{}

	wg sync.WaitGroup
}

// NewScheduler starts n workers. n below 1 is treated as 1.
func NewScheduler(n int) *Scheduler {
	if n < 1 {
		n = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		ctx:    ctx,
		cancel: cancel,
		wake:   make(chan struct{}, n),
	}
	for i := 0; i < n; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
	zap.S().Named("scheduler").Debugw("scheduler started", "workers", n)
	return s
}

// AddWork queues w. The returned future resolves with the result of w, or
// with the context error when the future is stopped before w starts.
func (s *Scheduler) AddWork(w Work) *models.Future[models.Result[any]] {
	ctx, cancel := context.WithCancel(s.ctx)
	future := models.NewFuture[models.Result[any]](cancel)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		future.Resolve(models.Result[any]{Err: ErrClosed})
		return future
	}
	s.queue = append(s.queue, job{ctx: ctx, work: w, future: future})
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return future
}

// Close cancels running work, fails queued work and waits for the workers.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	pending := s.queue
	s.queue = nil
	s.mu.Unlock()

	s.cancel()
	for _, j := range pending {
		j.future.Resolve(models.Result[any]{Err: ErrClosed})
	}
	s.wg.Wait()
}

func (s *Scheduler) next() (job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return job{}, false
	}
	j := s.queue[0]
	s.queue = s.queue[1:]
	return j, true
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()
	for {
		j, ok := s.next()
		if !ok {
			select {
			case <-s.ctx.Done():
				return
			case <-s.wake:
				continue
			}
		}
		s.run(id, j)
	}
}

func (s *Scheduler) run(id int, j job) {
	defer func() {
		if r := recover(); r != nil {
			zap.S().Named("scheduler").Errorw("work panicked", "worker", id, "panic", r, "stack", string(debug.Stack()))
			j.future.Resolve(models.Result[any]{Err: fmt.Errorf("work panicked: %v", r)})
		}
	}()
	defer j.future.Stop()

	if err := j.ctx.Err(); err != nil {
		j.future.Resolve(models.Result[any]{Err: err})
		return
	}
	data, err := j.work(j.ctx)
	j.future.Resolve(models.Result[any]{Data: data, Err: err})
}
