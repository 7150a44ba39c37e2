package dsync

import (
	"sync"

	"github.com/webriots/coredispatch"
)

// call represents an in-flight Do invocation shared among duplicate
// callers keyed on the same value.
type call struct {
	wg   WaitGroup
	val  any
	err  error
	dups int
}

// SingleFlight deduplicates concurrent calls with the same key so
// that only one of them actually runs; the rest suspend and share its
// result. Callers may arrive from different worker threads at once,
// so the call map is guarded by a real mutex.
type SingleFlight struct {
	mu sync.Mutex
	m  map[any]*call
}

// Do executes fn for key, or, if a call for key is already in
// flight, suspends the calling task until that call finishes and
// returns its result. shared reports whether the result was given to
// more than one caller: it is true for every duplicate that waited,
// and for the caller that ran fn if any duplicate waited on it.
func (g *SingleFlight) Do(task coredispatch.TaskHandle, key any, fn func() (any, error)) (v any, err error, shared bool) {
	g.mu.Lock()
	if g.m == nil {
		g.m = make(map[any]*call)
	}

	if c, ok := g.m[key]; ok {
		c.dups++
		g.mu.Unlock()
		c.wg.Wait(task)
		return c.val, c.err, true
	}

	c := new(call)
	c.wg.Add(1)
	g.m[key] = c
	g.mu.Unlock()

	g.doCall(c, key, fn)
	return c.val, c.err, c.dups > 0
}

func (g *SingleFlight) doCall(c *call, key any, fn func() (any, error)) {
	defer func() {
		c.wg.Done()
		g.mu.Lock()
		if g.m[key] == c {
			delete(g.m, key)
		}
		g.mu.Unlock()
	}()

	c.val, c.err = fn()
}
