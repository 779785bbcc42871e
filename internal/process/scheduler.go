package process

import (
	"context"

	"github.com/tinyrange/rvkernel/internal/csr"
	"github.com/tinyrange/rvkernel/internal/sbi"
	"github.com/tinyrange/rvkernel/internal/timerqueue"
)

// PreemptionSlice is the default quantum armed on the timer queue after
// every context switch, per spec.md §4.G/§6.
const PreemptionSlice = 10_000_000 // 10ms in the kernel's tick unit

// Scheduler drives one hart's process selection loop: pick a runnable
// process, context-switch into it, re-arm the preemption timer, repeat.
// It owns no process state itself (that lives in Table) so multiple
// harts can share one Table while each running its own Scheduler loop.
type Scheduler struct {
	table *Table
	timer *timerqueue.Queue
	sbi   sbi.Caller
}

// NewScheduler builds a Scheduler over table, arming sbi through timer
// for preemption.
func NewScheduler(table *Table, timer *timerqueue.Queue, caller sbi.Caller) *Scheduler {
	return &Scheduler{table: table, timer: timer, sbi: caller}
}

// ContextSwitch hands the hart to pid's process and blocks until it
// suspends (yields, awaits, or exits), per spec.md §4.H. On exit the
// process is removed from the table. Returns whether the process is
// still alive afterwards.
func (s *Scheduler) ContextSwitch(core *csr.Core, p *Process) (alive bool) {
	exited := p.runOnce()
	if exited {
		s.table.Remove(core, p.PID)
		return false
	}
	// A voluntary yield only gives up the current slice, not the right
	// to run again: requeue it as Pending for the next scheduling
	// decision. A process blocked on a future instead stays Yielded
	// until the future's waker (component L) calls Wake explicitly,
	// which this no-op-safe call would simply be a redundant second
	// wake for.
	if p.State() == Yielded {
		p.Wake()
	}
	return true
}

// RunSlice performs one scheduler iteration, per spec.md §4.G's idle
// path: pick a runnable process; if none is pickable and the table is
// otherwise empty, nothing remains but idles, so shut down via SBI
// instead of re-arming; otherwise spawn a one-shot idle process (one
// WFI, then exit) and context-switch into it. Call this in a loop from
// the hart's top-level goroutine.
func (s *Scheduler) RunSlice(ctx context.Context, core *csr.Core) error {
	p := s.table.Pick(core)
	if p == nil {
		if s.table.Count(core) == 0 {
			return s.Shutdown(ctx)
		}
		p = s.spawnIdle(core)
	}
	s.ContextSwitch(core, p)

	s.timer.Push(timerqueue.Event{Instant: PreemptionSlice, Cause: timerqueue.ContextSwitch})
	return s.timer.Arm(ctx)
}

// spawnIdle spawns the idle process spec.md §4.G calls for when
// something is still pending elsewhere in the table but nothing is
// Pending right now: park the hart for exactly one WFI, then exit, so
// the next RunSlice re-evaluates Pick rather than looping the same
// idle process forever.
func (s *Scheduler) spawnIdle(core *csr.Core) *Process {
	return s.table.Spawn(core, true, "idle", 0, func(rc *RunContext) {
		core.WFI()
	})
}

// Shutdown issues the SBI system-reset call, spec.md §4.G's final
// idle-path alternative: reached once no processes remain other than
// idles.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	return s.sbi.Shutdown(ctx)
}
