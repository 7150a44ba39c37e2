package coredispatch

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSpinlockMutualExclusion(t *testing.T) {
	r := require.New(t)

	var lock Spinlock
	var mu sync.Mutex // reference truth, guards counter independently
	counter := 0
	const goroutines = 50
	const iterations = 200

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				lock.Lock()
				mu.Lock()
				counter++
				mu.Unlock()
				lock.Unlock()
			}
		}()
	}
	wg.Wait()

	r.Equal(goroutines*iterations, counter)
}

func TestSpinlockTryLock(t *testing.T) {
	r := require.New(t)

	var lock Spinlock
	r.True(lock.TryLock())
	r.False(lock.TryLock())
	lock.Unlock()
	r.True(lock.TryLock())
}

func TestSpinlockDoubleUnlockPanics(t *testing.T) {
	r := require.New(t)

	var lock Spinlock
	r.Panics(func() { lock.Unlock() })

	lock.Lock()
	lock.Unlock()
	r.Panics(func() { lock.Unlock() })
}
