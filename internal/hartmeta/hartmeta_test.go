package hartmeta

import (
	"testing"

	"github.com/tinyrange/rvkernel/internal/csr"
	"github.com/tinyrange/rvkernel/internal/trapframe"
)

func TestInsertAndGet(t *testing.T) {
	reg := NewRegistry()
	var core0 csr.Core
	m := &HartMeta{HartID: 0, Core: &core0}

	if err := reg.Insert(&core0, m); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := reg.Insert(&core0, m); err == nil {
		t.Fatalf("expected duplicate insert to fail")
	}
	if reg.Get(&core0, 0) != m {
		t.Fatalf("Get did not return inserted entry")
	}
	if reg.Get(&core0, 99) != nil {
		t.Fatalf("Get should return nil for unregistered hart")
	}
	if reg.Count(&core0) != 1 {
		t.Fatalf("Count = %d, want 1", reg.Count(&core0))
	}
}

func TestBootFrameAndPanicFlag(t *testing.T) {
	var core csr.Core
	m := &HartMeta{HartID: 0, Core: &core}
	f := trapframe.New(0, 1)
	m.SetBootFrame(f)
	if m.BootFrame() != f {
		t.Fatalf("BootFrame did not round-trip")
	}

	reg := NewRegistry()
	_ = reg.Insert(&core, m)
	if reg.AnyPanicking(&core) {
		t.Fatalf("fresh registry should not report panicking")
	}
	m.SetPanicking()
	if !reg.AnyPanicking(&core) {
		t.Fatalf("expected AnyPanicking to observe the flag")
	}
}
