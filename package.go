// Package coredispatch provides a parallel coroutine-and-IO task
// dispatcher. It multiplexes cooperatively scheduled coroutines over a
// fixed pool of worker goroutines while offloading blocking work to a
// separate I/O worker pool.
//
// Key components:
//
//   - Dispatcher: owns both worker pools, the per-queue run queues and
//     statistics, and the public submission API (Post, PostQueue,
//     PostFirst, PostFirstQueue, PostAsyncIO, PostAsyncIOQueue).
//
//   - CoroHandle/PromiseHandle: the callable-facing views passed to a
//     submitted coroutine or I/O callable. They publish a result (or
//     error) to the task's promise and, for coroutines, expose Yield
//     and Suspend/Resume for cooperative blocking.
//
//   - ThreadContext/ThreadFuture: the caller-facing handles returned
//     from a Post* call. ThreadContext additionally supports chaining
//     a continuation with Then.
//
//   - Slab: a fixed-capacity slot allocator with heap-overflow
//     fallback. A Dispatcher takes its task records from a Slab and
//     does not return them to it, so once the Slab's 4096 slots are
//     used, further task records are heap-allocated.
//
//   - Spinlock: a short-hold test-and-set lock guarding the slab's
//     free-index stack.
package coredispatch
