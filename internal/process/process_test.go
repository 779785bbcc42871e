package process

import (
	"context"
	"testing"
	"time"

	"github.com/tinyrange/rvkernel/internal/csr"
	"github.com/tinyrange/rvkernel/internal/sbi"
	"github.com/tinyrange/rvkernel/internal/timerqueue"
)

func newTestScheduler() (*Scheduler, *Table, *csr.Core) {
	core := &csr.Core{}
	table := NewTable()
	tq := timerqueue.New(sbi.NewFake())
	return NewScheduler(table, tq, sbi.NewFake()), table, core
}

func newTestSchedulerWithCaller(caller *sbi.Fake) (*Scheduler, *Table, *csr.Core) {
	core := &csr.Core{}
	table := NewTable()
	tq := timerqueue.New(caller)
	return NewScheduler(table, tq, caller), table, core
}

// TestSchedulerRoundRobinFairness covers spec.md testable property 1 and
// the S1 scenario: N processes each incrementing a counter and yielding
// should all make progress in round-robin order rather than one process
// starving the others.
func TestSchedulerRoundRobinFairness(t *testing.T) {
	s, table, core := newTestScheduler()

	const n = 4
	const rounds = 5
	counts := make([]int, n)
	done := make(chan struct{}, n)

	for i := 0; i < n; i++ {
		i := i
		table.Spawn(core, false, "counter", 0, func(rc *RunContext) {
			for r := 0; r < rounds; r++ {
				counts[i]++
				rc.Yield()
			}
			done <- struct{}{}
		})
	}

	finished := 0
	for finished < n {
		p := table.Pick(core)
		if p == nil {
			t.Fatalf("scheduler ran dry before all processes finished")
		}
		alive := s.ContextSwitch(core, p)
		if !alive {
			finished++
			continue
		}
		if p.State() == Pending {
			// Re-enqueue semantics: Pick already marked it Scheduled
			// before the switch; after yielding it is Pending again
			// and will be picked up on a future scan naturally since
			// it is still in the queue.
		}
	}

	select {
	case <-done:
	default:
		t.Fatalf("expected at least one process to signal completion")
	}

	for i, c := range counts {
		if c != rounds {
			t.Fatalf("process %d ran %d times, want %d (unfair scheduling)", i, c, rounds)
		}
	}
}

// TestYieldCounterAbsorbsRaceWithWake covers spec.md testable property 2:
// a Wake that arrives while a process is Running/Scheduled must not be
// lost, and the subsequent Yield it races with must become a no-op
// rather than actually suspending.
func TestYieldCounterAbsorbsRaceWithWake(t *testing.T) {
	core := &csr.Core{}
	table := NewTable()

	yielded := make(chan struct{})
	resumed := make(chan struct{})
	p := table.Spawn(core, false, "racer", 0, func(rc *RunContext) {
		// Simulate a wake landing while we are still Running, before
		// we call Yield: the counter must absorb it so this Yield
		// returns immediately instead of blocking forever.
		rc.proc.yieldCounter.Add(1)
		rc.Yield()
		close(yielded)
		rc.Yield() // this one should actually suspend
		close(resumed)
	})

	exited := p.runOnce()
	if exited {
		t.Fatalf("process exited after first run, want it to have absorbed the no-op yield and kept running")
	}
	select {
	case <-yielded:
	case <-time.After(time.Second):
		t.Fatalf("process never reached past the absorbed yield")
	}

	// At this point the process is blocked in its second Yield (real
	// suspend), so its state must be Yielded.
	if p.State() != Yielded {
		t.Fatalf("state = %v, want Yielded", p.State())
	}

	p.Wake()
	if p.State() != Pending {
		t.Fatalf("state after Wake = %v, want Pending", p.State())
	}

	exited = p.runOnce()
	if !exited {
		t.Fatalf("expected process to exit on its second run")
	}
	select {
	case <-resumed:
	default:
		t.Fatalf("process body did not run to completion")
	}
}

// TestIdleIsOneShot covers spec.md §4.G's idle path: a process still
// exists elsewhere in the table (so Shutdown must not fire), but nothing
// is Pending right now, so RunSlice must spawn an idle process that runs
// exactly one WFI and exits, rather than looping forever.
func TestIdleIsOneShot(t *testing.T) {
	s, table, core := newTestScheduler()

	// A real process that is parked (Yielded, not Pending) so Pick finds
	// nothing runnable, but the table is not empty.
	table.Spawn(core, false, "parked", 0, func(rc *RunContext) {
		rc.Yield()
	}).RunOnce()

	idle := s.spawnIdle(core)
	if idle.Name != "idle" {
		t.Fatalf("spawnIdle did not spawn the idle process")
	}
	if exited := idle.RunOnce(); !exited {
		t.Fatalf("idle process did not exit after its one WFI")
	}
}

// TestRunSliceShutsDownWhenOnlyIdleWouldRemain covers spec.md §4.G's
// final idle-path alternative: once the table holds no process at all,
// RunSlice must shut down via SBI instead of spawning another idle and
// re-arming the preemption timer forever.
func TestRunSliceShutsDownWhenOnlyIdleWouldRemain(t *testing.T) {
	caller := sbi.NewFake()
	s, table, core := newTestSchedulerWithCaller(caller)

	if table.Count(core) != 0 {
		t.Fatalf("table should start empty")
	}
	if err := s.RunSlice(context.Background(), core); err != nil {
		t.Fatalf("RunSlice: %v", err)
	}
	if !caller.ShutdownHit {
		t.Fatalf("RunSlice did not shut down via SBI with an empty table")
	}
}

// TestRunSliceSpawnsIdleWhenSomethingStillParked covers the other half of
// spec.md §4.G's idle path: a process remains in the table but is not
// Pending, so RunSlice must park the hart in a one-shot idle process
// rather than shutting down.
func TestRunSliceSpawnsIdleWhenSomethingStillParked(t *testing.T) {
	caller := sbi.NewFake()
	s, table, core := newTestSchedulerWithCaller(caller)

	table.Spawn(core, false, "parked", 0, func(rc *RunContext) {
		rc.Yield()
	}).RunOnce()

	if err := s.RunSlice(context.Background(), core); err != nil {
		t.Fatalf("RunSlice: %v", err)
	}
	if caller.ShutdownHit {
		t.Fatalf("RunSlice shut down even though a parked process remained")
	}
}
