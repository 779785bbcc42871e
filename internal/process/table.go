package process

import (
	"weak"

	"github.com/tinyrange/rvkernel/internal/csr"
	"github.com/tinyrange/rvkernel/internal/lock/shared"
	"github.com/tinyrange/rvkernel/internal/trapframe"
)

// Table owns every live process plus the round-robin schedule queue.
// The schedule queue holds weak.Pointer handles rather than *Process so a
// process that exits and is dropped from the pid map can be collected
// without the queue itself needing an explicit removal pass, spec.md §9
// calls for exactly this "doesn't keep a process alive by itself" shape,
// previously satisfied in the original by Rust's Weak<T>; Go 1.24's
// weak.Pointer is the direct idiomatic analogue.
type Table struct {
	mu       shared.Mutex
	byPID    map[uint64]*Process
	nextScan uint64 // smallest pid that might be free, per spec.md's allocator

	queue []weak.Pointer[Process]
	qpos  int // round-robin cursor into queue
}

// NewTable creates an empty process table. Pid 1 is reserved for the
// per-hart boot context (spec.md §3) and is never handed out by Spawn.
func NewTable() *Table {
	return &Table{byPID: make(map[uint64]*Process), nextScan: 2}
}

// allocPID returns the smallest unused pid >= 2, per spec.md §4.G.
// Caller must hold t.mu.
func (t *Table) allocPID() uint64 {
	for {
		if _, taken := t.byPID[t.nextScan]; !taken {
			pid := t.nextScan
			t.nextScan++
			return pid
		}
		t.nextScan++
	}
}

// Spawn creates a new process, pins a zeroed trap frame for it, starts
// its goroutine (blocked until first scheduled), and enqueues a weak
// reference to it for the scheduler to pick up. Per spec.md §4.G, a
// spawned process starts Pending.
func (t *Table) Spawn(core *csr.Core, supervisor bool, name string, arg uint64, entry EntryFunc) *Process {
	t.mu.Lock(core)
	defer t.mu.Unlock(core)

	pid := t.allocPID()
	frame := trapframe.New(core.LoadHartID(), pid)
	p := newProcess(pid, supervisor, name, frame, nil, arg, entry)
	t.byPID[pid] = p
	p.start()
	t.queue = append(t.queue, weak.Make(p))
	return p
}

// Get looks up a process by pid.
func (t *Table) Get(core *csr.Core, pid uint64) *Process {
	t.mu.Lock(core)
	defer t.mu.Unlock(core)
	return t.byPID[pid]
}

// Remove deletes a process from the table, e.g. on Exit. The weak
// reference left in the schedule queue is reaped lazily by Pick.
func (t *Table) Remove(core *csr.Core, pid uint64) {
	t.mu.Lock(core)
	defer t.mu.Unlock(core)
	delete(t.byPID, pid)
	if pid >= 2 && pid < t.nextScan {
		t.nextScan = pid // freed pid is now the smallest that might be free
	}
}

// Count returns the number of live processes (not counting the boot
// context), used to decide whether the idle path should run.
func (t *Table) Count(core *csr.Core) int {
	t.mu.Lock(core)
	defer t.mu.Unlock(core)
	return len(t.byPID)
}

// Pick implements the round-robin scan of spec.md §4.G: starting just
// after the last picked entry, scan forward for a Pending process,
// compacting away any weak reference whose target has already been
// collected (its process exited and was Removed) as it goes. Returns nil
// if nothing in the queue is runnable.
func (t *Table) Pick(core *csr.Core) *Process {
	t.mu.Lock(core)
	defer t.mu.Unlock(core)

	n := len(t.queue)
	if n == 0 {
		return nil
	}

	live := t.queue[:0:0]
	var picked *Process
	for i := 0; i < n; i++ {
		idx := (t.qpos + i) % n
		ref := t.queue[idx]
		p := ref.Value()
		if p == nil {
			continue // expired: drop from the compacted queue
		}
		live = append(live, ref)
		if picked == nil && p.State() == Pending {
			picked = p
			picked.state.Store(int32(Scheduled))
		}
	}
	t.queue = live
	if picked != nil {
		// Advance the cursor past the picked entry so the next Pick
		// starts its scan after it, giving round-robin fairness
		// (spec.md testable property 1).
		for i, ref := range t.queue {
			if ref.Value() == picked {
				t.qpos = (i + 1) % len(t.queue)
				break
			}
		}
	}
	return picked
}
