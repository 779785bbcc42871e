package blockdev

import (
	"testing"

	"github.com/tinyrange/rvkernel/internal/async"
	"github.com/tinyrange/rvkernel/internal/csr"
	"github.com/tinyrange/rvkernel/internal/process"
	"github.com/tinyrange/rvkernel/internal/virtqueue"
)

// newParkedWaiter spawns a process that immediately yields once and
// blocks there, returning it plus a Waker tied to it through a real
// async.Task, the only way to observe a blockdev completion
// waker firing, since async.Waker only ever resumes its owning process.
func newParkedWaiter(t *testing.T, core *csr.Core, table *process.Table) (*process.Process, async.Waker) {
	t.Helper()
	var taskCh = make(chan *async.Task, 1)
	p := table.Spawn(core, false, "waiter", 0, func(rc *process.RunContext) {
		task := async.NewTask(rc.Proc(), nil)
		taskCh <- task
		rc.Yield()
	})
	if exited := p.RunOnce(); exited {
		t.Fatalf("waiter exited instead of parking on Yield")
	}
	if p.State() != process.Yielded {
		t.Fatalf("waiter state = %v, want Yielded", p.State())
	}
	task := <-taskCh
	return p, async.NewWaker(task)
}

func TestBlockReadResolvesWithDeviceByte(t *testing.T) {
	q, err := virtqueue.New(8)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer q.Close()

	core := &csr.Core{}
	table := process.NewTable()
	p, w := newParkedWaiter(t, core, table)

	buf := make([]byte, 512)
	req := &Request{Sector: 0, Buffer: buf}
	fut := NewFuture(req)

	if res := fut.Poll(w); res.Ready {
		t.Fatalf("future ready before submission")
	}
	if err := Submit(q, req, w); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res := fut.Poll(w); res.Ready {
		t.Fatalf("future ready before device completion")
	}

	// Device "writes" byte 0x41 into the guest buffer, reports OK, and
	// publishes a used-ring entry for the request's descriptor chain.
	buf[0] = 0x41
	req.status[0] = StatusOK
	q.CompleteUsed(req.head, uint32(len(buf)))
	q.PollCompletions() // drains the used ring, fires the registered waker

	if exited := p.RunOnce(); !exited {
		t.Fatalf("waiter did not resume after the completion waker fired")
	}

	res := fut.Poll(w)
	if !res.Ready {
		t.Fatalf("future still pending after completion")
	}
	if buf[0] != 0x41 {
		t.Fatalf("buffer[0] = 0x%x, want 0x41", buf[0])
	}
}

func TestBlockWriteReportsDeviceError(t *testing.T) {
	q, err := virtqueue.New(8)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer q.Close()

	core := &csr.Core{}
	table := process.NewTable()
	_, w := newParkedWaiter(t, core, table)

	req := &Request{Sector: 3, Buffer: []byte("payload"), Write: true}
	fut := NewFuture(req)

	if err := Submit(q, req, w); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	req.status[0] = StatusIOErr
	q.CompleteUsed(req.head, 0)
	q.PollCompletions()

	res := fut.Poll(w)
	if !res.Ready {
		t.Fatalf("expected Ready even on device error")
	}
	if res.Value == nil {
		t.Fatalf("expected a non-nil error result for StatusIOErr")
	}
}
