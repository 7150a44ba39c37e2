package coredispatch

import (
	"context"
	"fmt"
	"runtime"
	"runtime/trace"
	"sync"
	"sync/atomic"
	"time"

	"github.com/webriots/coro"
)

const defaultSlabCapacity = 4096

const (
	taskTraceRegionType = "coredispatch-task"
	taskTraceCategory   = "coredispatch"
)

// pool groups one worker pool's queues, workers, and lifecycle.
type pool struct {
	queues []*runQueue
	stats  []*queueStats
	wg     sync.WaitGroup
	stop   chan struct{}
}

func newPool(n int) *pool {
	p := &pool{
		queues: make([]*runQueue, n),
		stats:  make([]*queueStats, n),
		stop:   make(chan struct{}),
	}
	for i := 0; i < n; i++ {
		p.queues[i] = newRunQueue(i)
		p.stats[i] = &queueStats{}
	}
	return p
}

// config holds constructor options. Configuration is deliberately
// limited to constructor parameters: this is an embedded library, not
// a CLI or service, and there is no on-disk or environment-variable
// configuration to parse.
type config struct {
	numCoroutineThreads        int
	numIOThreads               int
	pinCoroutineThreadsToCores bool
	logger                     Logger
}

// Option configures a Dispatcher at construction time.
type Option func(*config)

// WithCoroutineThreads sets the coroutine pool size. n <= 0 selects
// runtime.NumCPU().
func WithCoroutineThreads(n int) Option {
	return func(c *config) { c.numCoroutineThreads = n }
}

// WithIOThreads sets the I/O pool size. n == 0 disables the I/O pool
// entirely; PostAsyncIO then fails with ErrUnsupported.
func WithIOThreads(n int) Option {
	return func(c *config) { c.numIOThreads = n }
}

// WithPinCoroutineThreadsToCores requests that coroutine workers lock
// themselves to their OS thread via runtime.LockOSThread, Go's
// idiomatic analogue of core affinity. It has no effect if the
// coroutine pool is larger than runtime.NumCPU().
func WithPinCoroutineThreadsToCores(pin bool) Option {
	return func(c *config) { c.pinCoroutineThreadsToCores = pin }
}

// WithLogger installs a structured logger. The zero value is a no-op
// logger.
func WithLogger(l Logger) Option {
	return func(c *config) { c.logger = l }
}

// Dispatcher multiplexes coroutine tasks over a fixed worker pool and
// offloads blocking work to a separate I/O worker pool.
type Dispatcher struct {
	cfg    config
	logger Logger

	coroPool *pool
	ioPool   *pool // nil when numIOThreads == 0

	slab *Slab[taskRecord]

	terminateOnce sync.Once
	terminated    atomic.Bool
	draining      atomic.Bool

	// parkedMu guards parked, the set of tasks currently suspended
	// (Waiting on a future or a dsync primitive) rather than sitting in
	// a runQueue. Terminate needs this set to cancel them: a parked
	// task is invisible to the queue-draining loop, since it isn't in
	// any queue until something calls Resume on it.
	parkedMu sync.Mutex
	parked   map[*taskRecord]struct{}
}

// New constructs a Dispatcher and starts its worker pools.
func New(opts ...Option) *Dispatcher {
	cfg := config{numCoroutineThreads: -1, numIOThreads: 5}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.numCoroutineThreads <= 0 {
		cfg.numCoroutineThreads = runtime.NumCPU()
	}
	if cfg.logger == nil {
		cfg.logger = noopLogger{}
	}

	d := &Dispatcher{cfg: cfg, logger: cfg.logger, parked: make(map[*taskRecord]struct{})}
	d.slab = NewSlab[taskRecord](defaultSlabCapacity)

	d.coroPool = newPool(cfg.numCoroutineThreads)
	pin := cfg.pinCoroutineThreadsToCores && cfg.numCoroutineThreads <= runtime.NumCPU()
	d.startPool(d.coroPool, QueueCoroutine, pin)

	if cfg.numIOThreads > 0 {
		d.ioPool = newPool(cfg.numIOThreads)
		d.startPool(d.ioPool, QueueIO, false)
	}

	d.logger.Info("dispatcher started", "coroutine_threads", cfg.numCoroutineThreads, "io_threads", cfg.numIOThreads)
	return d
}

func (d *Dispatcher) startPool(p *pool, qt QueueType, pin bool) {
	for i := range p.queues {
		w := &worker{id: i, pool: p, disp: d, q: p.queues[i]}
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			if pin {
				runtime.LockOSThread()
				defer runtime.UnlockOSThread()
			}
			d.logger.Debug("worker started", "pool", qt.String(), "queue", w.id)
			w.loop(p.stop)
			d.logger.Debug("worker stopped", "pool", qt.String(), "queue", w.id)
		}()
	}
}

func (d *Dispatcher) poolFor(qt QueueType) *pool {
	if qt == QueueIO {
		return d.ioPool
	}
	return d.coroPool
}

func (d *Dispatcher) statsFor(qt QueueType, qid int) *queueStats {
	p := d.poolFor(qt)
	if p == nil || qid < 0 || qid >= len(p.stats) {
		return &queueStats{}
	}
	return p.stats[qid]
}

// newTaskRecord allocates a task record from the slab and fills in its
// shared fields.
func (d *Dispatcher) newTaskRecord(kind taskKind, pt QueueType, qid int, pri Priority) *taskRecord {
	t := d.slab.Create(func(t *taskRecord) { *t = taskRecord{} })
	t.kind = kind
	t.poolType = pt
	t.queueID = qid
	t.priority = pri
	t.disp = d
	t.postedAt = time.Now()
	t.setState(statePending)
	return t
}

// resolveQueueID maps a queue id argument, including the sentinels, to
// a concrete index in the named pool.
func (d *Dispatcher) resolveQueueID(qt QueueType, id int, currentQueueID int) (int, error) {
	p := d.poolFor(qt)
	if p == nil {
		return 0, ErrUnsupported
	}
	n := len(p.queues)
	switch id {
	case QueueIDAny:
		best, bestLen := 0, p.queues[0].len()
		for i := 1; i < n; i++ {
			if l := p.queues[i].len(); l < bestLen {
				best, bestLen = i, l
			}
		}
		return best, nil
	case QueueIDSame:
		if currentQueueID < 0 || currentQueueID >= n {
			return 0, ErrInvalidQueueID
		}
		return currentQueueID, nil
	case QueueIDAll:
		return 0, ErrInvalidQueueID
	default:
		if id < 0 || id >= n {
			return 0, ErrInvalidQueueID
		}
		return id, nil
	}
}

func (d *Dispatcher) enqueueNew(t *taskRecord) {
	t.setState(stateReady)
	d.poolFor(t.poolType).queues[t.queueID].enqueue(t, t.priority)
	d.statsFor(t.poolType, t.queueID).recordPosted()
}

func (d *Dispatcher) requeueSameQueue(t *taskRecord) {
	t.setState(stateReady)
	d.poolFor(t.poolType).queues[t.queueID].enqueue(t, t.priority)
}

// trackParked registers t as suspended (Waiting on a future or a
// dsync primitive) so Terminate can find and cancel it even though it
// is not sitting in any runQueue.
func (d *Dispatcher) trackParked(t *taskRecord) {
	d.parkedMu.Lock()
	d.parked[t] = struct{}{}
	d.parkedMu.Unlock()
}

func (d *Dispatcher) untrackParked(t *taskRecord) {
	d.parkedMu.Lock()
	delete(d.parked, t)
	d.parkedMu.Unlock()
}

func (d *Dispatcher) unparkAwait(t *taskRecord) {
	d.untrackParked(t)
	t.parkState.Store(parkIdle)
	t.setState(stateReady)
	d.poolFor(t.poolType).queues[t.queueID].unpark(t)
}

func (d *Dispatcher) admitChain(t *taskRecord) {
	t.setState(stateReady)
	d.poolFor(t.poolType).queues[t.queueID].enqueue(t, t.priority)
}

// cancelTask marks t cancelled and publishes ErrCancelled to its
// promise, abandoning its coroutine if it has one. Used by Terminate
// for tasks that never reached completion.
func (d *Dispatcher) cancelTask(t *taskRecord) {
	t.setState(stateCancelled)
	if t.cancelCoro != nil {
		t.cancelCoro()
	}
	if t.cancelPromise != nil {
		t.cancelPromise()
	}
}

// execute runs one task to a suspend point or to completion, invoked
// by the worker that dequeued it.
func (d *Dispatcher) execute(t *taskRecord) {
	start := time.Now()
	t.setState(stateRunning)

	region := trace.StartRegion(context.Background(), taskTraceRegionType)
	defer region.End()

	switch t.kind {
	case kindCoroutine:
		t.yield = reasonNone
		_, alive := t.resume(struct{}{})
		if alive {
			switch t.yield {
			case reasonAwait:
				if t.parkState.CompareAndSwap(parking, parked) {
					d.trackParked(t)
				} else {
					// The completion callback already fired and found
					// the task not yet parked; it deferred the enqueue
					// to us.
					d.unparkAwait(t)
				}
			default:
				d.requeueSameQueue(t)
			}
			return
		}
	case kindIO:
		t.ioRun()
	}

	qs := d.statsFor(t.poolType, t.queueID)
	qs.recordExecuted(time.Since(start), t.priority == PriorityHigh, t.resultErr != nil)
	trace.Logf(context.Background(), taskTraceCategory, "DONE pool=%v queue=%d", t.poolType, t.queueID)
	if t.resultErr != nil {
		d.logger.Warn("task error", "pool", t.poolType.String(), "queue", t.queueID, "err", t.resultErr)
	}

	if next := t.next.Swap(chainDone); next != nil && next != chainDone {
		d.admitChain(next)
	}
}

// Size reports the number of tasks currently queued (not counting one
// possibly running) on the named queue, or across all queues in the
// pool if id == QueueIDAll.
func (d *Dispatcher) Size(qt QueueType, id int) int {
	p := d.poolFor(qt)
	if p == nil {
		return 0
	}
	if id == QueueIDAll {
		total := 0
		for _, q := range p.queues {
			total += q.len()
		}
		return total
	}
	if id < 0 || id >= len(p.queues) {
		return 0
	}
	return p.queues[id].len()
}

// Empty reports whether Size(qt, id) == 0.
func (d *Dispatcher) Empty(qt QueueType, id int) bool { return d.Size(qt, id) == 0 }

// Stats returns a snapshot of the named queue's counters, or their
// aggregate across the pool if id == QueueIDAll.
func (d *Dispatcher) Stats(qt QueueType, id int) Stats {
	p := d.poolFor(qt)
	if p == nil {
		return Stats{}
	}
	if id == QueueIDAll {
		var agg Stats
		for i := range p.stats {
			agg = mergeStats(agg, p.stats[i].snapshot(p.queues[i].len()))
		}
		return agg
	}
	if id < 0 || id >= len(p.stats) {
		return Stats{}
	}
	return p.stats[id].snapshot(p.queues[id].len())
}

// ResetStats zeroes the named queue's counters, or every queue's in
// the pool if id == QueueIDAll.
func (d *Dispatcher) ResetStats(qt QueueType, id int) {
	p := d.poolFor(qt)
	if p == nil {
		return
	}
	if id == QueueIDAll {
		for _, s := range p.stats {
			s.reset()
		}
		return
	}
	if id >= 0 && id < len(p.stats) {
		p.stats[id].reset()
	}
}

// Drain disables external submission and blocks until every queue is
// empty. It does not cancel in-flight work, unlike Terminate.
func (d *Dispatcher) Drain() {
	d.draining.Store(true)
	for {
		empty := true
		for _, p := range d.pools() {
			for _, q := range p.queues {
				if q.len() > 0 {
					empty = false
				}
			}
		}
		if empty {
			return
		}
		time.Sleep(time.Millisecond)
	}
}

// Terminate stops both worker pools and cancels every task that never
// reached completion, whether still sitting in a queue or parked on a
// Suspend/Await, publishing ErrCancelled to their promises. It is
// idempotent and safe to call more than once.
func (d *Dispatcher) Terminate() {
	d.terminateOnce.Do(func() {
		d.terminated.Store(true)
		d.logger.Info("dispatcher terminating")

		for _, p := range d.pools() {
			close(p.stop)
		}
		// Wait for every worker to actually stop before touching queues
		// or the parked set: a worker mid-execute can still enqueue a
		// continuation or park a task right up until its loop exits, so
		// draining first could miss work a worker adds afterward.
		for _, p := range d.pools() {
			p.wg.Wait()
		}

		for _, p := range d.pools() {
			for _, q := range p.queues {
				for {
					t, ok := q.dequeue()
					if !ok {
						break
					}
					d.cancelTask(t)
				}
			}
		}

		d.parkedMu.Lock()
		parked := make([]*taskRecord, 0, len(d.parked))
		for t := range d.parked {
			parked = append(parked, t)
		}
		d.parked = make(map[*taskRecord]struct{})
		d.parkedMu.Unlock()
		for _, t := range parked {
			d.cancelTask(t)
		}
	})
}

func (d *Dispatcher) pools() []*pool {
	pools := []*pool{d.coroPool}
	if d.ioPool != nil {
		pools = append(pools, d.ioPool)
	}
	return pools
}

// --- Public submission API ---
//
// These are free functions, not Dispatcher methods, because Go methods
// cannot introduce a type parameter beyond the receiver's own.

// Post submits a coroutine task to the least-loaded coroutine queue at
// normal priority.
func Post[R any](d *Dispatcher, fn func(*CoroHandle[R]) int) (*ThreadContext[R], error) {
	return PostQueue[R](d, QueueIDAny, PriorityNormal, fn)
}

// PostQueue submits a coroutine task to a specific queue and priority.
func PostQueue[R any](d *Dispatcher, queueID int, pri Priority, fn func(*CoroHandle[R]) int) (*ThreadContext[R], error) {
	return postCoro[R](d, queueID, pri, fn, false)
}

// PostFirst behaves exactly like Post. It exists alongside Post to
// mirror the two-name admission API, which historically differed in
// the returned handle's chaining capability; here Then works
// uniformly on any ThreadContext, so the two are equivalent.
func PostFirst[R any](d *Dispatcher, fn func(*CoroHandle[R]) int) (*ThreadContext[R], error) {
	return PostFirstQueue[R](d, QueueIDAny, PriorityNormal, fn)
}

// PostFirstQueue behaves exactly like PostQueue. See PostFirst.
func PostFirstQueue[R any](d *Dispatcher, queueID int, pri Priority, fn func(*CoroHandle[R]) int) (*ThreadContext[R], error) {
	return postCoro[R](d, queueID, pri, fn, false)
}

// PostFrom submits fn from within an already-running coroutine
// identified by from, to the least-loaded coroutine queue. Unlike
// Post, this stays admitted while the dispatcher is draining: Drain's
// contract only blocks submissions arriving from outside the
// dispatcher, not the follow-up work a running task schedules for
// itself.
func PostFrom[R any](from TaskHandle, d *Dispatcher, fn func(*CoroHandle[R]) int) (*ThreadContext[R], error) {
	return PostFromQueue[R](from, d, QueueIDAny, PriorityNormal, fn)
}

// PostFromQueue is PostFrom targeting a specific queue and priority.
func PostFromQueue[R any](from TaskHandle, d *Dispatcher, queueID int, pri Priority, fn func(*CoroHandle[R]) int) (*ThreadContext[R], error) {
	return postCoro[R](d, queueID, pri, fn, true)
}

func postCoro[R any](d *Dispatcher, queueID int, pri Priority, fn func(*CoroHandle[R]) int, internal bool) (*ThreadContext[R], error) {
	if d.terminated.Load() {
		return nil, ErrTerminated
	}
	if d.draining.Load() && !internal {
		return nil, ErrDraining
	}
	qid, err := d.resolveQueueID(QueueCoroutine, queueID, -1)
	if err != nil {
		return nil, err
	}

	promise := newPromise[R]()
	t := d.newTaskRecord(kindCoroutine, QueueCoroutine, qid, pri)

	resume, cancel := coro.New(func(yield func(struct{}) struct{}, suspend func() struct{}) (z struct{}) {
		t.suspendPoint = func() { suspend() }
		handle := &CoroHandle[R]{t: t, ctx: context.Background()}
		status := fn(handle)
		if handle.err == nil && status != 0 {
			handle.err = fmt.Errorf("coredispatch: task returned non-zero status %d", status)
		}
		t.resultErr = handle.err
		t.setState(stateCompleted)
		promise.set(handle.result, handle.err)
		return
	})
	t.resume = resume
	t.cancelCoro = cancel
	t.cancelPromise = func() {
		var zero R
		promise.set(zero, ErrCancelled)
	}

	d.enqueueNew(t)
	return &ThreadContext[R]{t: t, future: promise.Future()}, nil
}

// PostAsyncIO submits a blocking callable to the least-loaded I/O
// queue.
func PostAsyncIO[R any](d *Dispatcher, fn func(*PromiseHandle[R]) int) (*ThreadFuture[R], error) {
	return PostAsyncIOQueue[R](d, QueueIDAny, fn)
}

// PostAsyncIOQueue is PostAsyncIO targeting a specific I/O queue.
func PostAsyncIOQueue[R any](d *Dispatcher, queueID int, fn func(*PromiseHandle[R]) int) (*ThreadFuture[R], error) {
	return postIO[R](d, queueID, fn, false)
}

// PostAsyncIOFrom is PostAsyncIO submitted from within an already
// running coroutine identified by from. See PostFrom.
func PostAsyncIOFrom[R any](from TaskHandle, d *Dispatcher, fn func(*PromiseHandle[R]) int) (*ThreadFuture[R], error) {
	return PostAsyncIOFromQueue[R](from, d, QueueIDAny, fn)
}

// PostAsyncIOFromQueue is PostAsyncIOFrom targeting a specific I/O
// queue.
func PostAsyncIOFromQueue[R any](from TaskHandle, d *Dispatcher, queueID int, fn func(*PromiseHandle[R]) int) (*ThreadFuture[R], error) {
	return postIO[R](d, queueID, fn, true)
}

func postIO[R any](d *Dispatcher, queueID int, fn func(*PromiseHandle[R]) int, internal bool) (*ThreadFuture[R], error) {
	if d.terminated.Load() {
		return nil, ErrTerminated
	}
	if d.draining.Load() && !internal {
		return nil, ErrDraining
	}
	if d.ioPool == nil {
		return nil, ErrUnsupported
	}
	qid, err := d.resolveQueueID(QueueIO, queueID, -1)
	if err != nil {
		return nil, err
	}

	promise := newPromise[R]()
	t := d.newTaskRecord(kindIO, QueueIO, qid, PriorityNormal)
	t.ioRun = func() {
		h := &PromiseHandle[R]{ctx: context.Background()}
		status := fn(h)
		if h.err == nil && status != 0 {
			h.err = fmt.Errorf("coredispatch: io task returned non-zero status %d", status)
		}
		t.resultErr = h.err
		t.setState(stateCompleted)
		promise.set(h.result, h.err)
	}
	t.cancelPromise = func() {
		var zero R
		promise.set(zero, ErrCancelled)
	}

	d.enqueueNew(t)
	return &ThreadFuture[R]{f: promise}, nil
}
