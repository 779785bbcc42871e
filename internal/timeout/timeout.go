// Package timeout implements the TimeoutFuture from spec.md §4.K: a
// future that resolves once a deadline instant has passed, backed by
// the per-hart timerqueue rather than a dedicated goroutine timer, so a
// timeout participates in the same preemption-slice bookkeeping as
// every other scheduled event.
package timeout

import (
	"sort"

	"github.com/tinyrange/rvkernel/internal/async"
	"github.com/tinyrange/rvkernel/internal/lock/spin"
	"github.com/tinyrange/rvkernel/internal/timerqueue"
)

// Clock reports the current instant in the kernel's tick unit. In the
// hosted simulation this is backed by a monotonic counter advanced by
// the trap dispatcher on every timer interrupt; on real hardware it
// would read the time CSR.
type Clock interface {
	Now() uint64
}

// Registry is the per-hart "sorted list ordered by deadline" spec.md
// §4.K calls for: Poll inserts (self, waker) here instead of requiring
// whoever eventually fires the timeout to already hold the matching
// Future/Waker pair, and OnTimerEvent (timeout_on_event) wakes and
// removes every entry whose deadline has passed. It implements
// trap.TimeoutHandler so the trap dispatcher can drive it directly on
// every TimeoutFuture timer event.
type Registry struct {
	mu      spin.Mutex
	entries []*regEntry
}

type regEntry struct {
	deadline uint64
	future   *Future
	waker    async.Waker
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry { return &Registry{} }

// insert records w as f's current waker, keeping entries sorted
// ascending by deadline. A future already present just has its waker
// replaced in place, since repeated polls of the same Await loop insert
// the same future again without changing its deadline.
func (r *Registry) insert(f *Future, w async.Waker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.future == f {
			e.waker = w
			return
		}
	}
	i := sort.Search(len(r.entries), func(i int) bool { return r.entries[i].deadline >= f.Deadline })
	e := &regEntry{deadline: f.Deadline, future: f, waker: w}
	r.entries = append(r.entries, nil)
	copy(r.entries[i+1:], r.entries[i:])
	r.entries[i] = e
}

// OnTimerEvent implements trap.TimeoutHandler and spec.md §4.K's
// timeout_on_event(now): wake and remove every entry whose deadline has
// passed. Entries are sorted, so due ones are always a prefix.
func (r *Registry) OnTimerEvent(now uint64) {
	r.mu.Lock()
	i := 0
	for i < len(r.entries) && r.entries[i].deadline <= now {
		i++
	}
	due := append([]*regEntry(nil), r.entries[:i]...)
	r.entries = r.entries[i:]
	r.mu.Unlock()

	for _, e := range due {
		e.waker.Wake()
	}
}

// Len reports how many timeouts are currently registered, across all
// deadlines.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Future is a TimeoutFuture: Ready once now() >= Deadline.
type Future struct {
	Deadline uint64
	clock    Clock
	queue    *timerqueue.Queue
	registry *Registry
	armed    bool
}

// New creates a Future that resolves at deadline, per clock's time base.
// The first Poll call arms a TimeoutFuture event on queue so the trap
// dispatcher's timer-interrupt path knows to re-check this deadline,
// and every Poll call before it resolves registers the waker with
// registry so OnTimerEvent can find it generically rather than the
// caller having to hold onto the exact Future/Waker pair itself.
func New(clock Clock, queue *timerqueue.Queue, registry *Registry, deadline uint64) *Future {
	return &Future{Deadline: deadline, clock: clock, queue: queue, registry: registry}
}

// Poll implements async.Future.
func (f *Future) Poll(w async.Waker) async.PollResult {
	now := f.clock.Now()
	if now >= f.Deadline {
		return async.Ready(nil)
	}
	if !f.armed {
		f.queue.Push(timerqueue.Event{Instant: f.Deadline, Cause: timerqueue.TimeoutFuture})
		f.armed = true
	}
	if f.registry != nil {
		f.registry.insert(f, w)
	}
	return async.Pending
}
