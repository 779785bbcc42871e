// Package async implements the cooperative future/waker runtime from
// spec.md §4.L: a Future is polled from inside a process's own Yield
// loop, and a Waker lets whatever eventually makes progress possible
// (a VirtIO interrupt, a timer firing) resume the waiting process
// without either side needing to know about the other's lifetime.
//
// The cycle-breaking shape follows spec.md §9 exactly: a Process holds
// a strong reference to each of its Tasks (process.Process.AddTask), a
// Task holds only a weak.Pointer back to its owning Process, and a
// Waker holds only a weak.Pointer to the Task it can wake. Dropping the
// process (it exits) lets every Task, and every Waker anyone squirrelled
// away, become inert rather than keeping the whole chain alive, the
// direct Go analogue of the original's Weak<Process>/Weak<Task> pair,
// using the weak package the runtime gained in Go 1.24.
package async

import (
	"weak"

	"github.com/tinyrange/rvkernel/internal/process"
)

// PollResult is what a Future reports on each poll.
type PollResult struct {
	Ready bool
	Value any
}

// Pending is the zero PollResult: not ready yet.
var Pending = PollResult{}

// Ready wraps v as a completed PollResult.
func Ready(v any) PollResult { return PollResult{Ready: true, Value: v} }

// Future is anything pollable: spec.md §4.K/§4.L's TimeoutFuture and
// BlockRequestFuture both implement this.
type Future interface {
	Poll(w Waker) PollResult
}

// Task pairs a Future with a weak handle back to the process that owns
// it, so Wakers created for this task never have to know the process
// directly.
type Task struct {
	Future Future
	proc   weak.Pointer[process.Process]
}

// NewTask creates a Task for fut owned by owner, registers it on owner
// via AddTask so it stays alive while pending, and returns it.
func NewTask(owner *process.Process, fut Future) *Task {
	t := &Task{Future: fut, proc: weak.Make(owner)}
	owner.AddTask(t)
	return t
}

// Waker wakes the process that owns t, if it still exists.
type Waker struct {
	task weak.Pointer[Task]
}

// NewWaker returns a Waker over t.
func NewWaker(t *Task) Waker { return Waker{task: weak.Make(t)} }

// Wake resumes the owning process, if both the task and its process are
// still alive. Safe to call from any context (process.Process.Wake is
// lock-free), including a PLIC-dispatched interrupt handler.
func (w Waker) Wake() {
	t := w.task.Value()
	if t == nil {
		return
	}
	p := t.proc.Value()
	if p == nil {
		return
	}
	p.Wake()
}

// Await polls fut in a loop from inside rc's process, yielding between
// polls, until it resolves. This is the "awaiting a future is just a
// structured yield loop" pattern spec.md §4.L describes: no separate
// blocking primitive, because the process's own Yield already does the
// job of giving up the hart until something calls Wake.
func Await(rc *process.RunContext, owner *process.Process, fut Future) any {
	t := NewTask(owner, fut)
	w := NewWaker(t)
	defer owner.RemoveTask(t)

	for {
		res := fut.Poll(w)
		if res.Ready {
			return res.Value
		}
		rc.Yield()
	}
}
