package coredispatch

import (
	"runtime"
	"time"
)

// Tiered idle backoff thresholds for a worker whose queue and every
// peer queue in its pool came up empty. Spinning with runtime.Gosched
// handles brief lulls cheaply; a parked worker still polls
// periodically so Terminate is guaranteed to wake it within one poll
// interval even if it races the stop-channel close.
const (
	workerSpinIterations = 64
	workerParkPoll       = 2 * time.Millisecond
)

type worker struct {
	id   int
	pool *pool
	disp *Dispatcher
	q    *runQueue
}

func (w *worker) loop(stop <-chan struct{}) {
	idle := 0
	for {
		select {
		case <-stop:
			return
		default:
		}

		t, ok := w.q.dequeue()
		if !ok {
			t, ok = w.steal()
		}
		if ok {
			idle = 0
			w.disp.execute(t)
			continue
		}

		idle++
		if idle <= workerSpinIterations {
			runtime.Gosched()
			continue
		}

		select {
		case <-w.q.wake:
			idle = 0
		case <-stop:
			return
		case <-time.After(workerParkPoll):
		}
	}
}

// steal rotates through peer queues in the same pool, starting after
// this worker's own index and skipping itself, taking the first
// available task.
func (w *worker) steal() (*taskRecord, bool) {
	n := len(w.pool.queues)
	for i := 1; i < n; i++ {
		peer := w.pool.queues[(w.id+i)%n]
		if t, ok := peer.steal(); ok {
			return t, true
		}
	}
	return nil, false
}
