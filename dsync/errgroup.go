package dsync

import (
	"context"
	"sync"

	"github.com/webriots/coredispatch"
)

// ErrGroup runs a collection of coroutine tasks on a Dispatcher and
// collects the first error any of them returns. It's the coroutine
// analogue of golang.org/x/sync/errgroup, built on WaitGroup and a
// shared cancellable context.
type ErrGroup struct {
	d        *coredispatch.Dispatcher
	queueID  int
	priority coredispatch.Priority

	ctx    context.Context
	cancel context.CancelCauseFunc

	wg WaitGroup

	mu  sync.Mutex
	err error
}

// NewErrGroup creates an ErrGroup whose tasks run on d, on the given
// queue and priority, under a context derived from ctx that's
// cancelled with the first error any task returns.
func NewErrGroup(ctx context.Context, d *coredispatch.Dispatcher, queueID int, priority coredispatch.Priority) *ErrGroup {
	gctx, cancel := context.WithCancelCause(ctx)
	return &ErrGroup{d: d, queueID: queueID, priority: priority, ctx: gctx, cancel: cancel}
}

// Go submits fn as a new coroutine task on the group's dispatcher and
// queue. If fn returns a non-nil error, the group's context is
// cancelled with that error and it becomes the error Wait returns,
// unless an earlier task already set one.
func (g *ErrGroup) Go(fn func(context.Context) error) {
	g.wg.Add(1)

	_, err := coredispatch.PostQueue[struct{}](g.d, g.queueID, g.priority, func(h *coredispatch.CoroHandle[struct{}]) int {
		defer g.wg.Done()

		if runErr := fn(g.ctx); runErr != nil {
			g.mu.Lock()
			first := g.err == nil
			if first {
				g.err = runErr
			}
			g.mu.Unlock()
			if first {
				g.cancel(runErr)
			}
			h.SetError(runErr)
			return 1
		}
		return 0
	})
	if err != nil {
		g.wg.Done()
		g.mu.Lock()
		if g.err == nil {
			g.err = err
		}
		g.mu.Unlock()
		g.cancel(err)
	}
}

// Wait suspends the calling task until every task submitted with Go
// has finished, then returns the first error encountered, if any.
func (g *ErrGroup) Wait(self coredispatch.TaskHandle) error {
	g.wg.Wait(self)
	g.cancel(nil)
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err
}
