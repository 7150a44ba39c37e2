package dsync

import (
	"sync"

	"github.com/webriots/coredispatch"
)

// WaitGroup is used to wait for a collection of tasks to finish.
// Tasks call Add(1) when they start and Done() when they finish.
// Other tasks can call Wait() to block until all tasks have finished.
type WaitGroup struct {
	noCopy noCopy
	mu     sync.Mutex
	v      int32
	w      uint32
	sema   sema
}

// Add adds delta to the WaitGroup counter. If the counter becomes
// zero and there are tasks waiting, they will be resumed. If the
// counter goes negative, Add panics.
func (wg *WaitGroup) Add(delta int) {
	wg.mu.Lock()

	wg.v += int32(delta)

	if wg.v < 0 {
		wg.mu.Unlock()
		panic("dsync: negative WaitGroup counter")
	}

	if wg.w != 0 && delta > 0 && wg.v == int32(delta) {
		wg.mu.Unlock()
		panic("dsync: WaitGroup misuse: Add called concurrently with Wait")
	}

	if wg.v > 0 || wg.w == 0 {
		wg.mu.Unlock()
		return
	}

	waiters := wg.w
	wg.w = 0
	wg.mu.Unlock()

	for ; waiters != 0; waiters-- {
		wg.sema.release()
	}
}

// Done decrements the WaitGroup counter by one. It's a convenience
// method equivalent to Add(-1).
func (wg *WaitGroup) Done() {
	wg.Add(-1)
}

// Wait suspends the calling task until the WaitGroup counter is zero.
// If the counter is already zero, it returns immediately.
func (wg *WaitGroup) Wait(task coredispatch.TaskHandle) {
	wg.mu.Lock()
	if wg.v == 0 {
		wg.mu.Unlock()
		return
	}
	wg.w++
	wg.mu.Unlock()

	wg.sema.acquire(task)
}
