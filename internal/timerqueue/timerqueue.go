// Package timerqueue implements the per-hart min-heap of future timer
// events from spec.md §3/§4.E, plus the single SBI timer arm/rearm
// sequence the trap handler drives on every timer interrupt.
//
// container/heap is the standard library's own priority-queue interface
// and is the idiomatic Go way to implement a min-heap. No package in the
// retrieval pack supplies one (the teacher's own queues, e.g.
// tinyrange-cc's virtio used-ring cursor, are plain ring counters, not
// priority structures), so this is the documented standard-library
// exception the grounding ledger requires.
package timerqueue

import (
	"container/heap"
	"context"
	"fmt"

	"github.com/tinyrange/rvkernel/internal/lock/spin"
)

// Cause distinguishes why a timer event was queued, per spec.md §3.
type Cause int

const (
	ContextSwitch Cause = iota
	TimeoutFuture
)

// ordinal backs the tie-break rule from spec.md §4.E: "when two events
// share an instant, ContextSwitch outranks TimeoutFuture", i.e. sorts
// first.
func (c Cause) ordinal() int {
	switch c {
	case ContextSwitch:
		return 0
	default:
		return 1
	}
}

// Event is one entry in the queue.
type Event struct {
	Instant uint64
	Cause   Cause
}

// Caller is the SBI timer-extension collaborator (spec.md §6: SBI timer
// extension, set_timer). The SBI call ABI itself is out of this module's
// scope; Arm only needs this one method.
type Caller interface {
	SetTimer(ctx context.Context, absoluteInstant uint64) error
}

type eventHeap []Event

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].Instant != h[j].Instant {
		return h[i].Instant < h[j].Instant
	}
	return h[i].Cause.ordinal() < h[j].Cause.ordinal()
}
func (h eventHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x any)        { *h = append(*h, x.(Event)) }
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	*h = old[:n-1]
	return ev
}

// Queue is one hart's timer event heap.
type Queue struct {
	mu   spin.Mutex
	heap eventHeap
	sbi  Caller
}

// New creates a Queue that arms sbi's timer on this hart.
func New(sbi Caller) *Queue {
	return &Queue{sbi: sbi}
}

// Push inserts an event.
func (q *Queue) Push(ev Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	heap.Push(&q.heap, ev)
}

// PopEarliest removes and returns the event with the smallest instant
// (ties broken by Cause ordinal). Returns false if the queue is empty.
func (q *Queue) PopEarliest() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.heap.Len() == 0 {
		return Event{}, false
	}
	return heap.Pop(&q.heap).(Event), true
}

// PeekEarliest returns the earliest event without removing it.
func (q *Queue) PeekEarliest() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.heap.Len() == 0 {
		return Event{}, false
	}
	return q.heap[0], true
}

// Len reports the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}

// Arm computes the earliest instant and issues one SBI set-timer call.
// Per spec.md §4.E the queue must be non-empty when Arm is called; the
// scheduler is responsible for keeping a ContextSwitch event enqueued at
// all times.
func (q *Queue) Arm(ctx context.Context) error {
	ev, ok := q.PeekEarliest()
	if !ok {
		return fmt.Errorf("timerqueue: Arm called on empty queue")
	}
	return q.sbi.SetTimer(ctx, ev.Instant)
}
