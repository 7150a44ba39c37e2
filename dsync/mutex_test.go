package dsync

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/webriots/coredispatch"
)

func TestMutexExcludesConcurrentCriticalSections(t *testing.T) {
	r := require.New(t)

	d := coredispatch.New(coredispatch.WithCoroutineThreads(4), coredispatch.WithIOThreads(0))
	defer d.Terminate()

	var mu Mutex
	var current atomic.Int32
	var maxSeen atomic.Int32
	var successes atomic.Int32

	const n = 20
	futures := make([]*coredispatch.ThreadFuture[struct{}], n)
	for i := 0; i < n; i++ {
		tc, err := coredispatch.Post[struct{}](d, func(h *coredispatch.CoroHandle[struct{}]) int {
			mu.Lock(h)
			defer mu.Unlock()

			cur := current.Add(1)
			for {
				seen := maxSeen.Load()
				if cur <= seen || maxSeen.CompareAndSwap(seen, cur) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			current.Add(-1)
			successes.Add(1)
			h.SetResult(struct{}{})
			return 0
		})
		r.NoError(err)
		futures[i] = tc.Future()
	}

	for _, f := range futures {
		_, err := f.Get(context.Background())
		r.NoError(err)
	}

	r.Equal(int32(1), maxSeen.Load(), "mutex must never admit two tasks at once")
	r.Equal(int32(n), successes.Load())
}

func TestMutexWaitCount(t *testing.T) {
	r := require.New(t)

	// One dedicated queue per task: the holder deliberately blocks its
	// worker on a raw channel rather than cooperatively suspending, so
	// every waiter needs a worker of its own to be dequeued and reach
	// its own Suspend call.
	const waiters = 3
	d := coredispatch.New(coredispatch.WithCoroutineThreads(1+waiters), coredispatch.WithIOThreads(0))
	defer d.Terminate()

	var mu Mutex
	release := make(chan struct{})
	holding := make(chan struct{})

	_, err := coredispatch.PostQueue[struct{}](d, 0, coredispatch.PriorityNormal, func(h *coredispatch.CoroHandle[struct{}]) int {
		mu.Lock(h)
		close(holding)
		<-release
		mu.Unlock()
		h.SetResult(struct{}{})
		return 0
	})
	r.NoError(err)
	<-holding

	futures := make([]*coredispatch.ThreadFuture[struct{}], waiters)
	for i := 0; i < waiters; i++ {
		queueID := i + 1
		tc, err := coredispatch.PostQueue[struct{}](d, queueID, coredispatch.PriorityNormal, func(h *coredispatch.CoroHandle[struct{}]) int {
			mu.Lock(h)
			defer mu.Unlock()
			h.SetResult(struct{}{})
			return 0
		})
		r.NoError(err)
		futures[i] = tc.Future()
	}

	r.Eventually(func() bool { return mu.WaitCount() == waiters }, time.Second, time.Millisecond)

	close(release)
	for _, f := range futures {
		_, err := f.Get(context.Background())
		r.NoError(err)
	}
}
