package coredispatch

// QueueType selects which worker pool a queue id refers to.
type QueueType uint8

const (
	QueueCoroutine QueueType = iota
	QueueIO
)

func (t QueueType) String() string {
	if t == QueueIO {
		return "io"
	}
	return "coroutine"
}

// Queue id sentinels accepted by the submission API, mirroring the
// dispatcher's queue-selection contract.
const (
	// QueueIDAny lets the dispatcher pick the least-loaded queue.
	QueueIDAny = -1
	// QueueIDSame names the queue of the currently running
	// coroutine. The public submission API has no implicit notion of
	// "currently running": every Post* function resolves queue ids
	// without a current queue, so QueueIDSame passed to one fails with
	// ErrInvalidQueueID. Callers posting from inside a coroutine pass
	// CoroHandle.QueueID() explicitly instead. Then uses no sentinel;
	// it reuses its parent's queue id directly.
	QueueIDSame = -2
	// QueueIDAll targets every queue in the pool. Valid only for
	// Size, Empty, Stats and ResetStats, not for submission.
	QueueIDAll = -3
)

// Priority controls placement within a run queue's two internal
// sequences.
type Priority uint8

const (
	PriorityNormal Priority = iota
	PriorityHigh
)

// taskState is the lifecycle state of a task record.
type taskState int32

const (
	statePending taskState = iota
	stateReady
	stateRunning
	stateWaiting
	stateCompleted
	stateCancelled
)

// taskKind distinguishes the two task record variants.
type taskKind uint8

const (
	kindCoroutine taskKind = iota
	kindIO
)

// yieldReason records why a coroutine's suspend point returned control
// to its owning worker, so the worker knows how to requeue it.
type yieldReason int32

const (
	reasonNone yieldReason = iota
	reasonYield
	reasonAwait
)

// parkState implements the classic notify-before-park handshake: a
// completion callback firing concurrently with the task's own suspend
// call must never resume the task before the owning worker's resume
// call has actually returned.
const (
	parkIdle int32 = iota
	parking
	parked
	notified
)
