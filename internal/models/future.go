package models

import (
	"context"
	"sync"
)

// Result is the value produced by a scheduled unit of work.
type Result[T any] struct {
	Data T
	Err  error
}

// Future is resolved once by the scheduler when the work returns.
type Future[T any] struct {
	mu       sync.Mutex
	value    T
	resolved bool
	done     chan struct{}
	cancel   context.CancelFunc
}

func NewFuture[T any](cancel context.CancelFunc) *Future[T] {
	return &Future[T]{done: make(chan struct{}), cancel: cancel}
}

func (f *Future[T]) Resolve(v T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolved {
		return
	}
	f.value = v
	f.resolved = true
	close(f.done)
}

// Poll returns the value and whether the future is resolved.
func (f *Future[T]) Poll() (T, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.resolved
}

func (f *Future[T]) IsResolved() bool {
	_, ok := f.Poll()
	return ok
}

// C is closed when the future resolves.
func (f *Future[T]) C() <-chan struct{} {
	return f.done
}

// Wait blocks until the future resolves or ctx is done.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		v, _ := f.Poll()
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Stop cancels the context handed to the work.
func (f *Future[T]) Stop() {
	if f.cancel != nil {
		f.cancel()
	}
}
