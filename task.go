package coredispatch

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/webriots/coro"
)

// taskRecord is the type-erased record backing every submitted unit of
// work, coroutine or I/O alike. Keeping it non-generic lets a single
// Slab[taskRecord] allocate every task regardless of its result type;
// the generic CoroHandle/PromiseHandle views close over the erased
// record to recover a typed result.
type taskRecord struct {
	kind     taskKind
	poolType QueueType
	queueID  int
	priority Priority
	disp     *Dispatcher

	state     atomic.Int32
	parkState atomic.Int32
	yield     yieldReason

	// coroutine machinery, set only for kind == kindCoroutine.
	resume       func(struct{}) (struct{}, bool)
	cancelCoro   func()
	suspendPoint func()

	// ioRun performs the entire synchronous I/O callable invocation
	// for kind == kindIO tasks.
	ioRun func()

	// cancelPromise publishes ErrCancelled to this task's promise. It
	// is a no-op if the promise already has a result.
	cancelPromise func()

	resultErr error
	next      atomic.Pointer[taskRecord]

	postedAt time.Time
}

// chainDone is a sentinel value stored into a taskRecord's next field
// once execute has finished with it and found no continuation chained
// on yet. A later Then call sees this sentinel instead of nil and
// admits its continuation itself, rather than relying on execute to
// come back and check a field it has already moved past.
var chainDone = &taskRecord{}

func (t *taskRecord) getState() taskState { return taskState(t.state.Load()) }
func (t *taskRecord) setState(s taskState) { t.state.Store(int32(s)) }

// TaskHandle is the minimal capability a synchronization primitive
// built on top of the dispatcher (see the dsync package) needs: the
// ability to park the calling coroutine and to wake a parked one from
// any goroutine. CoroHandle[R] implements it for every R.
type TaskHandle interface {
	Context() context.Context
	Suspend()
	Resume()
}

// CoroHandle is the callable-facing view of a running coroutine task.
// A coroutine callable receives one of these and uses SetResult (and
// optionally SetError) to publish its outcome before returning.
type CoroHandle[R any] struct {
	t      *taskRecord
	ctx    context.Context
	result R
	err    error
}

// Context returns the context associated with this task.
func (h *CoroHandle[R]) Context() context.Context { return h.ctx }

// QueueID returns the id of the queue this task is running on, so a
// callable can post a new task onto the same queue explicitly (e.g.
// PostQueue(d, h.QueueID(), ...)) rather than relying on the
// QueueIDSame sentinel, which the public submission API does not
// resolve implicitly.
func (h *CoroHandle[R]) QueueID() int { return h.t.queueID }

// SetResult sets the value this task's own Future reports once the
// callable returns; a continuation chained with Then receives it as
// its parent result.
func (h *CoroHandle[R]) SetResult(v R) { h.result = v }

// SetError marks the task as failed. If set, the callable's own
// return status is ignored.
func (h *CoroHandle[R]) SetError(err error) { h.err = err }

// Cancelled reports whether the dispatcher has been terminated and
// this task should stop cooperatively at its next convenient point.
func (h *CoroHandle[R]) Cancelled() bool { return h.t.getState() == stateCancelled }

// Yield cooperatively gives up the worker thread. The task is
// re-admitted to its own queue immediately and will run again once
// the scheduler cycles back to it.
func (h *CoroHandle[R]) Yield() {
	t := h.t
	t.yield = reasonYield
	t.setState(stateReady)
	t.suspendPoint()
}

// Suspend parks the task until a matching Resume call, on this handle
// or any other reference to the same task, admits it back onto its
// queue. Suspend is the primitive Await and the dsync package build
// on.
//
// A Resume can race ahead of Suspend: a completion callback registered
// just before Suspend is called may fire, on another goroutine,
// before Suspend runs. CompareAndSwap catches that case (parkState is
// already notified rather than idle) and returns immediately instead
// of parking with nobody left to wake it.
func (h *CoroHandle[R]) Suspend() {
	t := h.t
	if !t.parkState.CompareAndSwap(parkIdle, parking) {
		t.parkState.Store(parkIdle)
		return
	}
	t.yield = reasonAwait
	t.setState(stateWaiting)
	t.suspendPoint()
}

// Resume admits a parked task back onto its queue. It is safe to call
// from any goroutine, including one racing the target task's own
// Suspend call: the notify-before-park handshake in parkState
// guarantees the task is only ever enqueued after its owning worker's
// resume call has actually returned.
func (h *CoroHandle[R]) Resume() {
	t := h.t
	if t.parkState.Swap(notified) == parked {
		t.disp.unparkAwait(t)
	}
}

// Await suspends h until f is ready, then returns f's result. It
// accepts the same ThreadFuture a caller outside the dispatcher would
// use with Get, so a coroutine can await another task's result with
// the value returned by ThreadContext.Future. It is a free function,
// not a method, because Go methods cannot introduce a type parameter
// beyond the receiver's own.
func Await[R, T any](h *CoroHandle[R], f *ThreadFuture[T]) (T, error) {
	if f.f.isDone() {
		return f.f.result()
	}
	f.f.onComplete(h.Resume)
	h.Suspend()
	return f.f.result()
}

// PromiseHandle is the callable-facing view of an I/O task. I/O
// callables run synchronously on a dedicated I/O worker and have no
// coroutine to suspend; they simply publish a result and return.
type PromiseHandle[R any] struct {
	ctx    context.Context
	result R
	err    error
}

func (h *PromiseHandle[R]) Context() context.Context { return h.ctx }
func (h *PromiseHandle[R]) SetResult(v R)             { h.result = v }
func (h *PromiseHandle[R]) SetError(err error)        { h.err = err }

// ThreadContext is the caller-facing handle for a submitted coroutine
// task. It exposes the task's Future and supports chaining a
// continuation with Then.
type ThreadContext[R any] struct {
	t      *taskRecord
	future *Future[R]
}

// Future returns the read side of this task's result.
func (c *ThreadContext[R]) Future() *ThreadFuture[R] { return &ThreadFuture[R]{f: c.future} }

// QueueID reports the queue this task, and any continuation chained
// onto it with Then, runs on.
func (c *ThreadContext[R]) QueueID() int { return c.t.queueID }

// ThreadFuture is the caller-facing read-only view of a task's result.
type ThreadFuture[R any] struct {
	f *Future[R]
}

// Get blocks until the result is available or ctx is done.
func (tf *ThreadFuture[R]) Get(ctx context.Context) (R, error) { return tf.f.Get(ctx) }

// IsReady reports whether the result is already available.
func (tf *ThreadFuture[R]) IsReady() bool { return tf.f.isDone() }

// Then chains a coroutine continuation onto c's task: fn does not run
// until c's task reaches Completed, on the same queue, and receives
// c's result. The two tasks form a chain sharing a single queue id, as
// the dispatcher's ordering guarantees require.
func Then[R, S any](c *ThreadContext[R], fn func(*CoroHandle[S], R) int) *ThreadContext[S] {
	d := c.t.disp
	promise := newPromise[S]()
	next := d.newTaskRecord(kindCoroutine, c.t.poolType, c.t.queueID, c.t.priority)

	resume, cancel := coro.New(func(yield func(struct{}) struct{}, suspend func() struct{}) (z struct{}) {
		next.suspendPoint = func() { suspend() }

		parentResult, parentErr := c.future.result()
		handle := &CoroHandle[S]{t: next, ctx: context.Background()}
		if parentErr != nil {
			handle.err = parentErr
		} else if status := fn(handle, parentResult); status != 0 && handle.err == nil {
			handle.err = fmt.Errorf("coredispatch: task returned non-zero status %d", status)
		}

		next.resultErr = handle.err
		next.setState(stateCompleted)
		promise.set(handle.result, handle.err)
		return
	})
	next.resume = resume
	next.cancelCoro = cancel
	next.cancelPromise = func() {
		var zero S
		promise.set(zero, ErrCancelled)
	}

	if !c.t.next.CompareAndSwap(nil, next) {
		// execute already finished the parent and found nothing chained
		// on it (next was swapped to chainDone); admit the continuation
		// ourselves instead of relying on a check that already happened.
		d.admitChain(next)
	}
	return &ThreadContext[S]{t: next, future: promise.Future()}
}
