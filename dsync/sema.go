package dsync

import (
	"sync"

	"github.com/gammazero/deque"
	"github.com/webriots/coredispatch"
)

// sema is a counting semaphore over coredispatch.TaskHandle. Its wait
// queue is guarded by a real mutex: coredispatch runs coroutines
// across many worker threads, so acquire/release can race in a way
// the single-loop teacher this is grounded on never had to consider.
type sema struct {
	noCopy noCopy
	mu     sync.Mutex
	v      uint32
	w      deque.Deque[coredispatch.TaskHandle]
}

func (s *sema) acquire(t coredispatch.TaskHandle) {
	s.mu.Lock()
	if s.v > 0 {
		s.v--
		s.mu.Unlock()
		return
	}
	s.w.PushBack(t)
	s.mu.Unlock()

	t.Suspend()
}

func (s *sema) release() {
	s.mu.Lock()
	if s.w.Len() == 0 {
		s.v++
		s.mu.Unlock()
		return
	}
	t := s.w.PopFront()
	s.mu.Unlock()

	t.Resume()
}

func (s *sema) waiting() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Len()
}
