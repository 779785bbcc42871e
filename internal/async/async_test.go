package async

import (
	"runtime"
	"testing"

	"github.com/tinyrange/rvkernel/internal/csr"
	"github.com/tinyrange/rvkernel/internal/process"
)

type countingFuture struct {
	readyAfter int
	polls      int
}

func (f *countingFuture) Poll(w Waker) PollResult {
	f.polls++
	if f.polls >= f.readyAfter {
		return Ready(f.polls)
	}
	return Pending
}

func TestAwaitResolvesAfterPolling(t *testing.T) {
	core := &csr.Core{}
	table := process.NewTable()

	var result any
	done := make(chan struct{})
	fut := &countingFuture{readyAfter: 3}

	p := table.Spawn(core, false, "awaiter", 0, func(rc *process.RunContext) {
		result = Await(rc, rc.Proc(), fut)
		close(done)
	})

	for i := 0; i < 3; i++ {
		if exited := p.RunOnce(); exited && i < 2 {
			t.Fatalf("process exited early after %d runs", i+1)
		}
	}

	select {
	case <-done:
	default:
		t.Fatalf("Await did not resolve after 3 polls")
	}
	if result != 3 {
		t.Fatalf("result = %v, want 3", result)
	}
}

func TestWakerIsInertAfterTaskCollected(t *testing.T) {
	task := &Task{Future: &countingFuture{readyAfter: 1}}
	w := NewWaker(task)
	task = nil
	runtime.GC()
	// Must not panic even though the task is gone.
	w.Wake()
}
