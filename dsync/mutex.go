package dsync

import (
	"sync"

	"github.com/webriots/coredispatch"
)

// Mutex provides mutual exclusion for coroutines running on a
// Dispatcher. Only one task holds the lock at a time; others
// attempting to acquire it suspend until it's released.
type Mutex struct {
	noCopy noCopy
	mu     sync.Mutex
	held   bool
	sema   sema
}

// Lock acquires the mutex for the given task. If the mutex is already
// held, the task suspends until it becomes available.
func (m *Mutex) Lock(task coredispatch.TaskHandle) {
	m.mu.Lock()
	if !m.held {
		m.held = true
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.sema.acquire(task)
}

// Unlock releases the mutex. If a task is waiting, it is resumed
// holding the lock; otherwise the lock becomes free.
func (m *Mutex) Unlock() {
	m.mu.Lock()
	if m.sema.waiting() == 0 {
		m.held = false
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.sema.release()
}

// WaitCount returns the number of tasks waiting to acquire the mutex.
func (m *Mutex) WaitCount() int {
	return m.sema.waiting()
}
