package trapframe

import (
	"testing"

	"github.com/tinyrange/rvkernel/internal/csr"
)

func TestPublishAndCurrent(t *testing.T) {
	var core csr.Core
	boot := New(0, 1)
	proc := New(0, 7)

	Publish(&core, boot)
	if Current(&core) != boot {
		t.Fatalf("Current() did not return boot frame")
	}

	Publish(&core, proc)
	if Current(&core) != proc {
		t.Fatalf("Current() did not return proc frame")
	}
	if !proc.HasFlag(FlagIsCurrent) {
		t.Fatalf("proc frame missing IsCurrent flag")
	}

	Retarget(&core, proc, boot)
	if Current(&core) != boot {
		t.Fatalf("Retarget did not republish boot frame")
	}
	if proc.HasFlag(FlagIsCurrent) {
		t.Fatalf("proc frame retained IsCurrent flag after retarget")
	}
}

func TestWithCurrentInvariant(t *testing.T) {
	var core csr.Core
	f := New(5, 2)
	Publish(&core, f)

	var ran bool
	if err := WithCurrent(&core, 5, func(*Frame) { ran = true }); err != nil {
		t.Fatalf("WithCurrent returned error: %v", err)
	}
	if !ran {
		t.Fatalf("callback did not run")
	}

	if err := WithCurrent(&core, 6, func(*Frame) {}); err == nil {
		t.Fatalf("expected hartid mismatch error")
	}
}

func TestFlags(t *testing.T) {
	f := New(0, 1)
	if f.HasFlag(FlagHasTrappedBefore) {
		t.Fatalf("fresh frame should not have HasTrappedBefore set")
	}
	f.SetFlag(FlagHasTrappedBefore)
	if !f.HasFlag(FlagHasTrappedBefore) {
		t.Fatalf("SetFlag did not take effect")
	}
	f.ClearFlag(FlagHasTrappedBefore)
	if f.HasFlag(FlagHasTrappedBefore) {
		t.Fatalf("ClearFlag did not take effect")
	}
}
