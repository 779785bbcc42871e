// Package iwaker implements the per-hart FIFO of deferred interrupt-context
// closures described in spec.md §4.F: producers in any context may Push a
// closure; only the trap handler calls Drain, which repeats until the
// queue is empty so that closures queuing further closures are captured
// within the same trap.
//
// Queue must be callable from interrupt context (a PLIC-dispatched
// handler queuing a wake-up) and from ordinary process context alike, so
// it is guarded with spin.Mutex rather than one of the interrupt-disabling
// lock families; those exist to protect longer critical sections from
// preemption, not a handful of slice operations safe to contend briefly
// from any context.
package iwaker

import "github.com/tinyrange/rvkernel/internal/lock/spin"

// Closure is a non-blocking, interrupt-context-safe callback.
type Closure func()

// Queue is the FIFO itself.
type Queue struct {
	mu      spin.Mutex
	pending []Closure
}

// Push enqueues a closure. Safe to call from any context.
func (q *Queue) Push(c Closure) {
	q.mu.Lock()
	q.pending = append(q.pending, c)
	q.mu.Unlock()
}

// Len reports how many closures are currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Drain repeatedly pops and runs every queued closure until the queue is
// empty, capturing closures that queue further closures within the same
// call (spec.md §4.F). Callers must ensure this only runs from the trap
// handler, and that closures do not block.
func (q *Queue) Drain() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.mu.Unlock()
			return
		}
		next := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()
		next()
	}
}
