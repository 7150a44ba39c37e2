// Package dsync provides synchronization primitives for coroutines
// running on a coredispatch.Dispatcher: Mutex, WaitGroup, ErrGroup,
// and SingleFlight. These sit outside the dispatcher's own contract,
// built entirely from the Suspend/Resume capability every CoroHandle
// exposes.
//
// Unlike a single-loop coroutine scheduler, a Dispatcher runs many
// coroutines across many OS threads at once, so every primitive here
// guards its internal wait queue with a real mutex rather than relying
// on single-goroutine exclusivity.
package dsync

// noCopy prevents copying of values that embed it. It implements
// sync.Locker to provide a standard way to detect improper copying,
// the same trick sync.Mutex's embedded noCopy field uses.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
