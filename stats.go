package coredispatch

import (
	"sync/atomic"
	"time"
)

// Stats is an immutable snapshot of a single queue's counters.
type Stats struct {
	Posted            uint64
	Executed          uint64
	QueuedNow         uint64
	HighPriorityCount uint64
	Errors            uint64
	AvgLatency        time.Duration
}

func mergeStats(a, b Stats) Stats {
	return Stats{
		Posted:            a.Posted + b.Posted,
		Executed:          a.Executed + b.Executed,
		QueuedNow:         a.QueuedNow + b.QueuedNow,
		HighPriorityCount: a.HighPriorityCount + b.HighPriorityCount,
		Errors:            a.Errors + b.Errors,
		AvgLatency:        weightedAvg(a.AvgLatency, a.Executed, b.AvgLatency, b.Executed),
	}
}

func weightedAvg(a time.Duration, na uint64, b time.Duration, nb uint64) time.Duration {
	total := na + nb
	if total == 0 {
		return 0
	}
	return time.Duration((int64(a)*int64(na) + int64(b)*int64(nb)) / int64(total))
}

// queueStats owns the live counters for one queue. The counters are
// not confined to one goroutine: posted is incremented by whichever
// goroutine submits a task to the queue, and the rest by whichever
// worker executes a task assigned to it (a stolen task still counts
// against its assigned queue). Every field is therefore an atomic.
type queueStats struct {
	posted       atomic.Uint64
	executed     atomic.Uint64
	highCount    atomic.Uint64
	errors       atomic.Uint64
	totalLatency atomic.Int64 // nanoseconds
}

func (s *queueStats) recordPosted() {
	s.posted.Add(1)
}

func (s *queueStats) recordExecuted(d time.Duration, high bool, errored bool) {
	s.executed.Add(1)
	s.totalLatency.Add(int64(d))
	if high {
		s.highCount.Add(1)
	}
	if errored {
		s.errors.Add(1)
	}
}

func (s *queueStats) snapshot(queuedNow int) Stats {
	executed := s.executed.Load()
	var avg time.Duration
	if executed > 0 {
		avg = time.Duration(s.totalLatency.Load() / int64(executed))
	}
	return Stats{
		Posted:            s.posted.Load(),
		Executed:          executed,
		QueuedNow:         uint64(queuedNow),
		HighPriorityCount: s.highCount.Load(),
		Errors:            s.errors.Load(),
		AvgLatency:        avg,
	}
}

func (s *queueStats) reset() {
	s.posted.Store(0)
	s.executed.Store(0)
	s.highCount.Store(0)
	s.errors.Store(0)
	s.totalLatency.Store(0)
}
