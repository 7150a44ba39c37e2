package coredispatch

import (
	"context"
	"sync"
)

// Promise is a write-once result slot. It is the back-reference target
// of every waiting coroutine: Promise holds a set of completion
// callbacks to invoke, a lookup relation rather than ownership, never
// the other way around.
type Promise[T any] struct {
	mu        sync.Mutex
	done      chan struct{}
	fired     bool
	value     T
	err       error
	callbacks []func()
}

func newPromise[T any]() *Promise[T] {
	return &Promise[T]{done: make(chan struct{})}
}

// set publishes v and err. Only the first call has any effect; later
// calls (e.g. a redundant cancellation after a real result already
// landed) are silently ignored.
func (p *Promise[T]) set(v T, err error) {
	p.mu.Lock()
	if p.fired {
		p.mu.Unlock()
		return
	}
	p.fired = true
	p.value, p.err = v, err
	cbs := p.callbacks
	p.callbacks = nil
	close(p.done)
	p.mu.Unlock()

	for _, cb := range cbs {
		cb()
	}
}

// onComplete registers fn to run once the promise has a result. If
// the promise is already complete, fn runs immediately on the calling
// goroutine.
func (p *Promise[T]) onComplete(fn func()) {
	p.mu.Lock()
	if p.fired {
		p.mu.Unlock()
		fn()
		return
	}
	p.callbacks = append(p.callbacks, fn)
	p.mu.Unlock()
}

func (p *Promise[T]) isDone() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *Promise[T]) result() (T, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value, p.err
}

// Future is the generic read side of a Promise. Get blocks the calling
// goroutine (not a coroutine; coroutines use Await) until a result is
// available or ctx is done.
type Future[T any] struct {
	p *Promise[T]
}

func (p *Promise[T]) Future() *Future[T] { return &Future[T]{p: p} }

func (f *Future[T]) isDone() bool               { return f.p.isDone() }
func (f *Future[T]) result() (T, error)         { return f.p.result() }
func (f *Future[T]) onComplete(fn func())       { f.p.onComplete(fn) }

// Get blocks until the future's promise is fulfilled or ctx is done,
// whichever comes first.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.p.done:
		return f.p.result()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
